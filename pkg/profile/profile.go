// Package profile holds the therapy profile: its schema, the compression
// merge rules, and the per-user repository persisted through storage.
package profile

import "time"

const (
	SchemaVersion = 1

	MaxPatterns  = 10
	MaxInsights  = 10
	MaxStrengths = 5

	MinPatternStrength = 1
	MaxPatternStrength = 5
)

// TherapyProfile is the durable, compressed therapeutic context for one user.
type TherapyProfile struct {
	Version      int       `json:"version"`
	Created      time.Time `json:"created"`
	Updated      time.Time `json:"updated"`
	SessionCount int       `json:"sessionCount"`
	MessageCount int       `json:"messageCount"`

	Patterns        []string       `json:"patterns"`
	PatternStrength map[string]int `json:"patternStrength"`

	Imagine Imagine `json:"imagine"`

	Insights     []string    `json:"insights"`
	ActiveThemes []string    `json:"activeThemes"`
	Strengths    []string    `json:"strengths"`
	Preferences  Preferences `json:"preferences"`
	LastSession  LastSession `json:"lastSession"`

	LastCompression          *time.Time `json:"lastCompression"`
	MessagesSinceCompression int        `json:"messagesSinceCompression"`
}

type Preferences struct {
	RespondsTo []string `json:"respondsTo"`
	// Avoids is kept for schema compatibility; nothing populates it yet.
	Avoids []string `json:"avoids"`
}

type LastSession struct {
	Date    *time.Time `json:"date"`
	Summary *string    `json:"summary"`
	Mood    *string    `json:"mood"`
}

// EmptyProfile returns a profile with zero counters and empty collections.
func EmptyProfile(now time.Time) TherapyProfile {
	return TherapyProfile{
		Version:         SchemaVersion,
		Created:         now,
		Updated:         now,
		Patterns:        []string{},
		PatternStrength: map[string]int{},
		Insights:        []string{},
		ActiveThemes:    []string{},
		Strengths:       []string{},
		Preferences: Preferences{
			RespondsTo: []string{},
			Avoids:     []string{},
		},
	}
}

func (p TherapyProfile) clone() TherapyProfile {
	out := p
	out.Patterns = append([]string{}, p.Patterns...)
	out.PatternStrength = make(map[string]int, len(p.PatternStrength))
	for k, v := range p.PatternStrength {
		out.PatternStrength[k] = v
	}
	out.Insights = append([]string{}, p.Insights...)
	out.ActiveThemes = append([]string{}, p.ActiveThemes...)
	out.Strengths = append([]string{}, p.Strengths...)
	out.Preferences.RespondsTo = append([]string{}, p.Preferences.RespondsTo...)
	out.Preferences.Avoids = append([]string{}, p.Preferences.Avoids...)
	out.LastSession = LastSession{
		Date:    cloneTime(p.LastSession.Date),
		Summary: cloneString(p.LastSession.Summary),
		Mood:    cloneString(p.LastSession.Mood),
	}
	out.LastCompression = cloneTime(p.LastCompression)
	return out
}

// normalize repairs a decoded profile so every collection is non-nil and
// counters are non-negative.
func (p TherapyProfile) normalize(now time.Time) TherapyProfile {
	if p.Version <= 0 {
		p.Version = SchemaVersion
	}
	if p.Created.IsZero() {
		p.Created = now
	}
	if p.Updated.IsZero() {
		p.Updated = p.Created
	}
	if p.Patterns == nil {
		p.Patterns = []string{}
	}
	if p.PatternStrength == nil {
		p.PatternStrength = map[string]int{}
	}
	if p.Insights == nil {
		p.Insights = []string{}
	}
	if p.ActiveThemes == nil {
		p.ActiveThemes = []string{}
	}
	if p.Strengths == nil {
		p.Strengths = []string{}
	}
	if p.Preferences.RespondsTo == nil {
		p.Preferences.RespondsTo = []string{}
	}
	if p.Preferences.Avoids == nil {
		p.Preferences.Avoids = []string{}
	}
	p.SessionCount = nonNegative(p.SessionCount)
	p.MessageCount = nonNegative(p.MessageCount)
	p.MessagesSinceCompression = nonNegative(p.MessagesSinceCompression)
	p.Imagine = p.Imagine.normalize()
	return p
}

func nonNegative(v int) int {
	if v < 0 {
		return 0
	}
	return v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}

func cloneString(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}
