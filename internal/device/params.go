package device

import (
	"strconv"
	"strings"
)

func floatParam(m map[string]any, key string, def float64) (float64, bool) {
	v, ok := m[key]
	if !ok || v == nil {
		return def, true
	}
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return def, false
}

func stringParam(m map[string]any, key, def string) string {
	if s, ok := m[key].(string); ok && strings.TrimSpace(s) != "" {
		return strings.TrimSpace(s)
	}
	return def
}

func boolParam(m map[string]any, key string, def bool) bool {
	if b, ok := m[key].(bool); ok {
		return b
	}
	return def
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
