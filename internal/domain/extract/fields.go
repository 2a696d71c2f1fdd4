package extract

import (
	"fmt"
	"strings"
)

// String reads key as a string. Missing keys and nulls give "".
// Numbers and booleans are formatted rather than dropped.
func String(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64, bool:
		return fmt.Sprint(v)
	default:
		return ""
	}
}

// Strings reads key as a list of non-empty strings. A single string is
// treated as a one-element list.
func Strings(m map[string]any, key string) []string {
	out := []string{}
	switch v := m[key].(type) {
	case string:
		if s := strings.TrimSpace(v); s != "" {
			out = append(out, s)
		}
	case []any:
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				continue
			}
			if s = strings.TrimSpace(s); s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

// Bool reads key as a boolean. The strings "true"/"tak" count as true.
func Bool(m map[string]any, key string) bool {
	switch v := m[key].(type) {
	case bool:
		return v
	case string:
		switch strings.ToLower(strings.TrimSpace(v)) {
		case "true", "tak", "yes":
			return true
		}
	}
	return false
}

// Child reads key as a nested object. Anything else gives nil.
func Child(m map[string]any, key string) map[string]any {
	v, _ := m[key].(map[string]any)
	return v
}
