package persona

import (
	"fmt"
	"strings"

	"github.com/theracowch/cowch/pkg/profile"
)

// BuildSystemPrompt assembles the chat system prompt from the framework
// text, the current wellness focus, the session phase and what the profile
// remembers about the user.
func BuildSystemPrompt(framework, pattern, phase string, apiCtx *profile.APIContext) string {
	var sb strings.Builder
	sb.WriteString(strings.TrimSpace(framework))

	pattern = strings.TrimSpace(pattern)
	phase = strings.TrimSpace(phase)
	if pattern != "" {
		sb.WriteString("\n\nCurrent wellness focus: ")
		sb.WriteString(pattern)
	}
	if phase != "" {
		sb.WriteString("\nSession phase: ")
		sb.WriteString(phase)
	}

	if summary := profileSummary(apiCtx); summary != "" {
		sb.WriteString("\n\n")
		sb.WriteString(summary)
	}

	sb.WriteString("\n\n")
	sb.WriteString(responseGuidance)
	return sb.String()
}

func profileSummary(apiCtx *profile.APIContext) string {
	if apiCtx == nil {
		return ""
	}
	p := apiCtx.Profile
	lines := make([]string, 0, 8)
	add := func(label, value string) {
		if value = strings.TrimSpace(value); value != "" {
			lines = append(lines, fmt.Sprintf("- %s: %s", label, value))
		}
	}
	add("Recurring patterns", p.Patterns)
	add("Currently working on", p.ActiveThemes)
	add("Key insights", p.Insights)
	add("Strengths noticed", p.Strengths)
	add("Responds well to", p.RespondsTo)
	if p.LastSession != nil {
		add("Last session", *p.LastSession)
	}
	if len(lines) == 0 {
		return ""
	}
	header := fmt.Sprintf("WHAT YOU KNOW ABOUT THIS PERSON (%d previous sessions):", p.SessionCount)
	return header + "\n" + strings.Join(lines, "\n")
}
