package profile

import "time"

// Merge folds a compression result into p and returns the new profile. The
// input profile is not modified. Bookkeeping (lastCompression,
// messagesSinceCompression, sessionCount) runs even for an empty update.
func Merge(p TherapyProfile, u CompressionUpdate, now time.Time) TherapyProfile {
	out := p.clone()

	if u.Patterns != nil {
		out.Patterns = lastUnique(append(out.Patterns, u.Patterns...), MaxPatterns)
	}
	if u.PatternStrength != nil {
		for k, v := range u.PatternStrength {
			out.PatternStrength[k] = v
		}
	}
	if u.Insights != nil {
		insights := make([]string, 0, len(u.Insights)+len(out.Insights))
		insights = append(insights, u.Insights...)
		insights = append(insights, out.Insights...)
		if len(insights) > MaxInsights {
			insights = insights[:MaxInsights]
		}
		out.Insights = insights
	}
	if u.ActiveThemes != nil {
		out.ActiveThemes = append([]string{}, u.ActiveThemes...)
	}
	if u.Strengths != nil {
		out.Strengths = lastUnique(append(out.Strengths, u.Strengths...), MaxStrengths)
	}
	if u.RespondsTo != nil {
		out.Preferences.RespondsTo = append([]string{}, u.RespondsTo...)
	}
	if u.LastSessionSummary != "" || u.Mood != "" {
		date := now
		out.LastSession = LastSession{
			Date:    &date,
			Summary: optionalString(u.LastSessionSummary),
			Mood:    optionalString(u.Mood),
		}
	}

	compressedAt := now
	out.LastCompression = &compressedAt
	out.MessagesSinceCompression = 0
	out.SessionCount++
	return out
}

// lastUnique dedupes values keeping first occurrences in order, then keeps
// the last limit entries.
func lastUnique(values []string, limit int) []string {
	seen := make(map[string]struct{}, len(values))
	unique := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		unique = append(unique, v)
	}
	if len(unique) > limit {
		unique = unique[len(unique)-limit:]
	}
	return unique
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
