package relay

import (
	"fmt"
	"strings"
)

// ExtractCode scans a callback payload for an authorization code using
// case-insensitive candidate key matching. The scan stops at the first
// candidate whose *key* exists in the payload: a matched key with an
// empty value fails extraction rather than falling through to later
// candidates. List values yield their first element.
func ExtractCode(payload map[string]any, candidateKeys []string) (string, bool) {
	if len(payload) == 0 || len(candidateKeys) == 0 {
		return "", false
	}
	lowered := make(map[string]any, len(payload))
	for key, value := range payload {
		lowered[strings.ToLower(key)] = value
	}
	for _, candidate := range candidateKeys {
		value, ok := lowered[strings.ToLower(candidate)]
		if !ok {
			continue
		}
		return coerceCodeValue(value)
	}
	return "", false
}

func coerceCodeValue(value any) (string, bool) {
	switch v := value.(type) {
	case nil:
		return "", false
	case string:
		if v == "" {
			return "", false
		}
		return v, true
	case []string:
		if len(v) == 0 {
			return "", false
		}
		return v[0], v[0] != ""
	case []any:
		if len(v) == 0 {
			return "", false
		}
		first := fmt.Sprint(v[0])
		return first, first != ""
	case bool:
		if !v {
			return "", false
		}
		return "true", true
	case float64:
		if v == 0 {
			return "", false
		}
		return formatNumber(v), true
	case int:
		if v == 0 {
			return "", false
		}
		return fmt.Sprint(v), true
	default:
		coerced := fmt.Sprint(v)
		return coerced, coerced != ""
	}
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprint(int64(v))
	}
	return fmt.Sprint(v)
}
