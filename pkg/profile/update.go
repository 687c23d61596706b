package profile

import (
	"errors"
	"math"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
)

// ErrNoJSONObject means the summarizer output held nothing decodable as a
// JSON object.
var ErrNoJSONObject = errors.New("compression result contains no JSON object")

// CompressionUpdate is the validated form of a summarizer result. A nil
// slice or map means the field was absent (or had the wrong type); an empty
// string means the same for the string fields.
type CompressionUpdate struct {
	Patterns           []string
	PatternStrength    map[string]int
	Insights           []string
	ActiveThemes       []string
	Strengths          []string
	RespondsTo         []string
	LastSessionSummary string
	Mood               string
}

// IsEmpty reports whether no optional field is present.
func (u CompressionUpdate) IsEmpty() bool {
	return u.Patterns == nil &&
		u.PatternStrength == nil &&
		u.Insights == nil &&
		u.ActiveThemes == nil &&
		u.Strengths == nil &&
		u.RespondsTo == nil &&
		u.LastSessionSummary == "" &&
		u.Mood == ""
}

// ParseCompressionUpdate decodes raw model output into a CompressionUpdate.
// Prose or markdown fences around the object are tolerated. Fields with the
// wrong shape are dropped rather than failing the whole update.
func ParseCompressionUpdate(raw string) (CompressionUpdate, error) {
	fields, err := decodeObject(raw)
	if err != nil {
		return CompressionUpdate{}, err
	}

	return CompressionUpdate{
		Patterns:           stringList(fields["patterns"]),
		PatternStrength:    strengthMap(fields["patternStrength"]),
		Insights:           stringList(fields["insights"]),
		ActiveThemes:       stringList(fields["activeThemes"]),
		Strengths:          stringList(fields["strengths"]),
		RespondsTo:         stringList(fields["respondsTo"]),
		LastSessionSummary: stringValue(fields["lastSessionSummary"]),
		Mood:               stringValue(fields["mood"]),
	}, nil
}

func decodeObject(raw string) (map[string]json.RawMessage, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrNoJSONObject
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err == nil && fields != nil {
		return fields, nil
	}

	// Best effort extraction from markdown code fences or mixed output.
	start := strings.Index(raw, "{")
	end := strings.LastIndex(raw, "}")
	if start >= 0 && end > start {
		fields = nil
		if err := json.Unmarshal([]byte(raw[start:end+1]), &fields); err == nil && fields != nil {
			return fields, nil
		}
	}
	return nil, ErrNoJSONObject
}

func isAbsent(raw json.RawMessage) bool {
	trimmed := strings.TrimSpace(string(raw))
	return trimmed == "" || trimmed == "null"
}

func stringList(raw json.RawMessage) []string {
	if isAbsent(raw) {
		return nil
	}
	var items []interface{}
	if err := json.Unmarshal(raw, &items); err != nil {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		out = append(out, s)
	}
	return out
}

func strengthMap(raw json.RawMessage) map[string]int {
	if isAbsent(raw) {
		return nil
	}
	var values map[string]interface{}
	if err := json.Unmarshal(raw, &values); err != nil || values == nil {
		return nil
	}
	out := make(map[string]int, len(values))
	for k, v := range values {
		key := strings.TrimSpace(k)
		if key == "" {
			continue
		}
		var f float64
		switch vv := v.(type) {
		case float64:
			f = vv
		case string:
			parsed, err := strconv.ParseFloat(strings.TrimSpace(vv), 64)
			if err != nil {
				continue
			}
			f = parsed
		default:
			continue
		}
		if math.IsNaN(f) || math.IsInf(f, 0) {
			continue
		}
		out[key] = clampStrength(int(math.Round(f)))
	}
	return out
}

func clampStrength(v int) int {
	if v < MinPatternStrength {
		return MinPatternStrength
	}
	if v > MaxPatternStrength {
		return MaxPatternStrength
	}
	return v
}

func stringValue(raw json.RawMessage) string {
	if isAbsent(raw) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.TrimSpace(s)
}
