package profile

import "time"

// MaxHistoryEntries bounds the persisted conversation history.
const MaxHistoryEntries = 100

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is one conversation turn without bookkeeping.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// HistoryEntry is a persisted conversation turn.
type HistoryEntry struct {
	ID        string    `json:"id,omitempty"`
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

func (e HistoryEntry) Message() Message {
	return Message{Role: e.Role, Content: e.Content}
}

// Messages strips bookkeeping from entries.
func Messages(entries []HistoryEntry) []Message {
	out := make([]Message, 0, len(entries))
	for _, e := range entries {
		out = append(out, e.Message())
	}
	return out
}

// trimHistory keeps the newest limit entries.
func trimHistory(entries []HistoryEntry, limit int) []HistoryEntry {
	if limit <= 0 {
		limit = MaxHistoryEntries
	}
	if len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries
}

// lastEntries returns up to n trailing entries.
func lastEntries(entries []HistoryEntry, n int) []HistoryEntry {
	if n <= 0 {
		return []HistoryEntry{}
	}
	if len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return append([]HistoryEntry{}, entries...)
}
