// Package compression folds recent conversation into the therapy profile by
// asking a summarizer for a structured update.
package compression

import (
	"context"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/theracowch/cowch/pkg/logger"
	"github.com/theracowch/cowch/pkg/metrics"
	"github.com/theracowch/cowch/pkg/profile"
)

const DefaultWindow = 8

type Options struct {
	// Threshold is the messagesSinceCompression count that triggers a
	// compression.
	Threshold int
	// Window is how many trailing history entries feed a compression.
	Window int
}

// Compressor runs at most one compression per user at a time. Triggers that
// arrive while one is in flight share its result.
type Compressor struct {
	store      *profile.Store
	summarizer Summarizer
	threshold  int
	window     int
	group      singleflight.Group
}

func NewCompressor(store *profile.Store, summarizer Summarizer, opts Options) *Compressor {
	if opts.Threshold <= 0 {
		opts.Threshold = profile.DefaultCompressionThreshold
	}
	if opts.Window <= 0 {
		opts.Window = DefaultWindow
	}
	return &Compressor{
		store:      store,
		summarizer: summarizer,
		threshold:  opts.Threshold,
		window:     opts.Window,
	}
}

func (c *Compressor) Threshold() int {
	return c.threshold
}

// CompressProfile summarizes recent into the user's profile and returns the
// resulting profile. It never fails: on any error the stored profile is
// left untouched and returned as is.
func (c *Compressor) CompressProfile(ctx context.Context, userID string, recent []profile.Message) profile.TherapyProfile {
	v, _, shared := c.group.Do(userID, func() (interface{}, error) {
		return c.compress(ctx, userID, recent), nil
	})
	if shared {
		metrics.CompressionsCoalesced.Inc()
	}
	return v.(profile.TherapyProfile)
}

// MaybeCompress compresses the user's profile over the recent history
// window when the trigger fires. It reports whether a compression ran.
func (c *Compressor) MaybeCompress(ctx context.Context, userID string) bool {
	p := c.store.GetProfile(ctx, userID)
	if !profile.NeedsCompression(p, c.threshold) {
		return false
	}
	c.CompressProfile(ctx, userID, c.RecentWindow(ctx, userID))
	return true
}

// RecentWindow returns the trailing history messages used for compression.
func (c *Compressor) RecentWindow(ctx context.Context, userID string) []profile.Message {
	history := c.store.GetFullHistory(ctx, userID)
	if len(history) > c.window {
		history = history[len(history)-c.window:]
	}
	return profile.Messages(history)
}

func (c *Compressor) compress(ctx context.Context, userID string, recent []profile.Message) profile.TherapyProfile {
	current := c.store.GetProfile(ctx, userID)
	if c.summarizer == nil {
		metrics.CompressionsTotal.WithLabelValues(metrics.OutcomeSummarizerErr).Inc()
		logger.WarnCF("compression", "No summarizer configured, skipping compression", map[string]interface{}{"user": userID})
		return current
	}

	prompt := profile.BuildCompressionPrompt(recent, current)

	start := time.Now()
	raw, err := c.summarizer.Summarize(ctx, prompt)
	metrics.CompressionLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.CompressionsTotal.WithLabelValues(metrics.OutcomeSummarizerErr).Inc()
		logger.WarnCF("compression", "Profile compression failed", map[string]interface{}{
			"user":  userID,
			"error": err.Error(),
		})
		return current
	}

	update, err := profile.ParseCompressionUpdate(raw)
	if err != nil {
		metrics.CompressionsTotal.WithLabelValues(metrics.OutcomeParseErr).Inc()
		logger.WarnCF("compression", "Compression result was not usable", map[string]interface{}{
			"user":  userID,
			"error": err.Error(),
		})
		return current
	}

	merged, saved := c.store.Update(ctx, userID, func(latest profile.TherapyProfile) (profile.TherapyProfile, bool) {
		return profile.Merge(latest, update, c.store.Now()), true
	})
	if !saved {
		metrics.CompressionsTotal.WithLabelValues(metrics.OutcomeSaveErr).Inc()
		logger.WarnCF("compression", "Compressed profile could not be saved", map[string]interface{}{"user": userID})
		return merged
	}

	metrics.CompressionsTotal.WithLabelValues(metrics.OutcomeSuccess).Inc()
	logger.InfoCF("compression", "Profile compressed successfully", map[string]interface{}{
		"user":          userID,
		"session_count": merged.SessionCount,
		"patterns":      len(merged.Patterns),
		"messages":      len(recent),
	})
	return merged
}
