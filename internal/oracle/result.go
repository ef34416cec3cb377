package oracle

import (
	"encoding/json"
	"strings"
)

// Result is the tagged outcome of parsing an oracle response against a
// fixed schema. Exactly one of Parsed/Unparseable applies; callers must
// handle both (the degraded-mode fallback is the handling of
// Unparseable).
type Result[T any] struct {
	Parsed bool
	Value  T
	// Raw holds the original model output when parsing failed.
	Raw string
}

// Parse attempts to decode the oracle's output into the schema T.
// Models frequently wrap their JSON in markdown code fences or
// surrounding prose, so parsing tolerates both by extracting the
// outermost JSON object first.
func Parse[T any](raw string) Result[T] {
	var value T
	candidate := extractJSON(raw)
	if candidate == "" {
		return Result[T]{Raw: raw}
	}
	if err := json.Unmarshal([]byte(candidate), &value); err != nil {
		return Result[T]{Raw: raw}
	}
	return Result[T]{Parsed: true, Value: value}
}

// extractJSON returns the outermost {...} object in s, or "" when none
// exists.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}
