package core

import (
	"fmt"
	"time"
)

// formatTime renders a timestamp as RFC 3339 text, or nil for the zero time
// so unset optionals stay distinguishable in map form.
func formatTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}

	return t.Format(time.RFC3339Nano)
}

// parseTime accepts nil, time.Time or RFC 3339 text. Nil parses to the zero
// time.
func parseTime(raw any) (time.Time, error) {
	switch v := raw.(type) {
	case nil:
		return time.Time{}, nil
	case time.Time:
		return v, nil
	case string:
		if v == "" {
			return time.Time{}, nil
		}

		return time.Parse(time.RFC3339Nano, v)
	default:
		return time.Time{}, fmt.Errorf("cannot parse %T as time", raw)
	}
}

// toStrings accepts nil, []string or []any of strings.
func toStrings(raw any) []string {
	switch v := raw.(type) {
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}

		return out
	default:
		return nil
	}
}

// toStringMap accepts nil or map[string]any.
func toStringMap(raw any) map[string]any {
	if m, ok := raw.(map[string]any); ok {
		return m
	}

	return nil
}

// toInt accepts the integer shapes a map round-trip produces.
func toInt(raw any) (int, error) {
	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		return int(v), nil
	case Priority:
		return int(v), nil
	default:
		return 0, fmt.Errorf("cannot parse %T as int", raw)
	}
}

// toFloat accepts the numeric shapes a map round-trip produces.
func toFloat(raw any) (float64, error) {
	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, fmt.Errorf("cannot parse %T as float", raw)
	}
}
