package persona

import "strings"

const PatternGeneral = "general"

type patternRule struct {
	pattern  string
	keywords []string
}

// Rules are checked in order; the first match wins.
var patternRules = []patternRule{
	{pattern: "anxiety", keywords: []string{"anxious", "worry", "nervous", "panic", "scared", "fear"}},
	{pattern: "depression", keywords: []string{"sad", "depressed", "down", "worthless", "useless", "low self"}},
	{pattern: "relationships", keywords: []string{"relationship", "partner", "husband", "wife", "boyfriend", "girlfriend", "family", "friend"}},
	{pattern: "trauma", keywords: []string{"childhood", "parent", "trauma", "abuse", "past"}},
	{pattern: "perfectionism", keywords: []string{"perfect", "mistake", "failure", "should", "must"}},
}

// DetectPattern tags a user message with the wellness pattern it most
// likely touches. Matching is case-insensitive substring search.
func DetectPattern(message string) string {
	lower := strings.ToLower(message)
	for _, rule := range patternRules {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.pattern
			}
		}
	}
	return PatternGeneral
}
