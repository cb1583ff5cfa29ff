package source

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var fencedJSON = regexp.MustCompile("```(?:json)?\\s*(\\{[\\s\\S]*?\\})\\s*```")

// ExtractJSON isolates and decodes the JSON object in an LLM answer. Code fences are
// tried first, then the span from the first "{" to the last "}".
func ExtractJSON(raw string) (map[string]any, error) {
	candidates := make([]string, 0, 2)
	if m := fencedJSON.FindStringSubmatch(raw); m != nil {
		candidates = append(candidates, m[1])
	}
	if start, end := strings.Index(raw, "{"), strings.LastIndex(raw, "}"); start >= 0 && end > start {
		candidates = append(candidates, raw[start:end+1])
	}
	if len(candidates) == 0 {
		return nil, &Error{Kind: ErrParse, Capability: "extract", Err: fmt.Errorf("no JSON object in response")}
	}

	var lastErr error
	for _, c := range candidates {
		var out map[string]any
		if err := json.Unmarshal([]byte(c), &out); err != nil {
			lastErr = err
			continue
		}
		return out, nil
	}
	return nil, &Error{Kind: ErrParse, Capability: "extract", Err: lastErr}
}

// StringField returns a trimmed string value from an extracted object. Null, missing
// and placeholder values come back empty.
func StringField(m map[string]any, key string) string {
	v, ok := m[key]
	if !ok || v == nil {
		return ""
	}
	var s string
	if str, ok := v.(string); ok {
		s = str
	} else {
		s = fmt.Sprint(v)
	}
	s = strings.TrimSpace(s)
	switch strings.ToLower(s) {
	case "null", "n/a", "none", "not found", "unknown":
		return ""
	}
	return s
}

// StringList returns the string items of an array value, trimmed and de-duplicated.
func StringList(m map[string]any, key string) []string {
	out := []string{}
	arr, ok := m[key].([]any)
	if !ok {
		return out
	}
	seen := make(map[string]bool, len(arr))
	for _, item := range arr {
		s, ok := item.(string)
		if !ok {
			continue
		}
		s = strings.TrimSpace(s)
		if s == "" || seen[strings.ToLower(s)] {
			continue
		}
		seen[strings.ToLower(s)] = true
		out = append(out, s)
	}
	return out
}
