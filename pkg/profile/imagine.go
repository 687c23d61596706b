package profile

import "strings"

// Imagine holds engagement counters for the seven IMAGINE domains. The JSON
// shape always carries exactly the keys I, M, A, G, I2, N and E.
type Imagine struct {
	I  int `json:"I"`
	M  int `json:"M"`
	A  int `json:"A"`
	G  int `json:"G"`
	I2 int `json:"I2"`
	N  int `json:"N"`
	E  int `json:"E"`
}

var imagineDomainKeys = map[string]string{
	"self":         "I",
	"mindfulness":  "M",
	"acceptance":   "A",
	"gratitude":    "G",
	"interactions": "I2",
	"nurturing":    "N",
	"exploring":    "E",
}

// ImagineKey resolves a domain name ("gratitude") or a raw key ("I2") to
// its counter key.
func ImagineKey(domain string) (string, bool) {
	d := strings.TrimSpace(domain)
	if key, ok := imagineDomainKeys[strings.ToLower(d)]; ok {
		return key, true
	}
	switch strings.ToUpper(d) {
	case "I", "M", "A", "G", "I2", "N", "E":
		return strings.ToUpper(d), true
	}
	return "", false
}

// Increment bumps the counter for domain. Unknown domains are ignored.
func (im *Imagine) Increment(domain string) bool {
	key, ok := ImagineKey(domain)
	if !ok {
		return false
	}
	switch key {
	case "I":
		im.I++
	case "M":
		im.M++
	case "A":
		im.A++
	case "G":
		im.G++
	case "I2":
		im.I2++
	case "N":
		im.N++
	case "E":
		im.E++
	}
	return true
}

func (im Imagine) normalize() Imagine {
	im.I = nonNegative(im.I)
	im.M = nonNegative(im.M)
	im.A = nonNegative(im.A)
	im.G = nonNegative(im.G)
	im.I2 = nonNegative(im.I2)
	im.N = nonNegative(im.N)
	im.E = nonNegative(im.E)
	return im
}
