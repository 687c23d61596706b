package profile

import (
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

const compressionSchema = `{
  "patterns": ["list", "of", "patterns"],
  "patternStrength": {"pattern": strength_1_to_5},
  "insights": ["max 5 key insights about this person"],
  "activeThemes": ["what they're currently working on"],
  "strengths": ["strengths you've noticed"],
  "respondsTo": ["therapeutic approaches that work"],
  "lastSessionSummary": "One sentence about this session",
  "mood": "their current emotional state"
}`

// BuildCompressionPrompt renders the summarizer instruction for the given
// recent messages and current profile.
func BuildCompressionPrompt(recent []Message, p TherapyProfile) string {
	profileJSON, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		profileJSON = []byte("{}")
	}

	lines := make([]string, 0, len(recent))
	for _, m := range recent {
		lines = append(lines, fmt.Sprintf("%s: %s", m.Role, m.Content))
	}

	var sb strings.Builder
	sb.WriteString("You are updating a therapy profile for a wellness app user. ")
	sb.WriteString("Analyze these recent messages and update the profile.\n\n")
	sb.WriteString("CURRENT PROFILE:\n")
	sb.Write(profileJSON)
	sb.WriteString("\n\nRECENT MESSAGES (since last compression):\n")
	sb.WriteString(strings.Join(lines, "\n\n"))
	sb.WriteString("\n\nReturn ONLY valid JSON with these fields (keep values concise):\n")
	sb.WriteString(compressionSchema)
	sb.WriteString("\n\nFocus on therapeutic relevance. Be concise. Max 200 words total.")
	return sb.String()
}
