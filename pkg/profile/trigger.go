package profile

// DefaultCompressionThreshold is the number of appended messages after
// which a compression is due.
const DefaultCompressionThreshold = 8

// NeedsCompression reports whether enough messages have accumulated since
// the last compression. A non-positive threshold means the default.
func NeedsCompression(p TherapyProfile, threshold int) bool {
	if threshold <= 0 {
		threshold = DefaultCompressionThreshold
	}
	return p.MessagesSinceCompression >= threshold
}
