package profile

import "strings"

// RecentContextMessages is how many history entries ride along with a chat
// request.
const RecentContextMessages = 3

// APIContext is the compact context shipped with every chat request.
type APIContext struct {
	Profile        ProfileContext `json:"profile"`
	RecentMessages []HistoryEntry `json:"recentMessages"`
}

// ProfileContext is the flattened projection of a TherapyProfile.
type ProfileContext struct {
	SessionCount int     `json:"sessionCount"`
	Patterns     string  `json:"patterns"`
	ActiveThemes string  `json:"activeThemes"`
	Insights     string  `json:"insights"`
	Strengths    string  `json:"strengths"`
	RespondsTo   string  `json:"respondsTo"`
	LastSession  *string `json:"lastSession"`
	Imagine      Imagine `json:"imagine"`
}

// BuildAPIContext projects the profile and the last few history entries
// into the chat request context.
func BuildAPIContext(p TherapyProfile, history []HistoryEntry) APIContext {
	insights := p.Insights
	if len(insights) > 3 {
		insights = insights[:3]
	}
	return APIContext{
		Profile: ProfileContext{
			SessionCount: p.SessionCount,
			Patterns:     strings.Join(p.Patterns, ", "),
			ActiveThemes: strings.Join(p.ActiveThemes, ", "),
			Insights:     strings.Join(insights, "; "),
			Strengths:    strings.Join(p.Strengths, ", "),
			RespondsTo:   strings.Join(p.Preferences.RespondsTo, ", "),
			LastSession:  cloneString(p.LastSession.Summary),
			Imagine:      p.Imagine,
		},
		RecentMessages: lastEntries(history, RecentContextMessages),
	}
}
