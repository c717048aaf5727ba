package exchange

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

func ToMap(v any) (map[string]any, bool) {
	m, ok := v.(map[string]any)
	return m, ok
}

func ToSlice(v any) ([]any, bool) {
	s, ok := v.([]any)
	return s, ok
}

// String returns the first non-empty value among keys. Numeric ids are
// rendered without exponent.
func String(m map[string]any, keys ...string) string {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if s := StringAny(v); s != "" {
				return s
			}
		}
	}
	return ""
}

func StringAny(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case json.Number:
		return val.String()
	case float64:
		if val == math.Trunc(val) && math.Abs(val) < 1e18 {
			return strconv.FormatInt(int64(val), 10)
		}
		return strconv.FormatFloat(val, 'f', -1, 64)
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case bool:
		return strconv.FormatBool(val)
	}
	return ""
}

// Float returns the first finite numeric value among keys.
func Float(m map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := FloatAny(v); ok {
				return f, true
			}
		}
	}
	return 0, false
}

func FloatAny(v any) (float64, bool) {
	var f float64
	switch val := v.(type) {
	case float64:
		f = val
	case float32:
		f = float64(val)
	case int:
		f = float64(val)
	case int64:
		f = float64(val)
	case int32:
		f = float64(val)
	case json.Number:
		parsed, err := val.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func IntAny(v any, fallback int) int {
	if f, ok := FloatAny(v); ok {
		return int(f)
	}
	return fallback
}

// Int64 reads the first integer-like value among keys.
func Int64(m map[string]any, keys ...string) (int64, bool) {
	for _, key := range keys {
		if v, ok := m[key]; ok {
			if f, ok := FloatAny(v); ok {
				return int64(f), true
			}
		}
	}
	return 0, false
}

// Maps keeps the map elements of a slice.
func Maps(v any) []map[string]any {
	items, ok := ToSlice(v)
	if !ok {
		if typed, ok := v.([]map[string]any); ok {
			return typed
		}
		return nil
	}
	out := make([]map[string]any, 0, len(items))
	for _, item := range items {
		if m, ok := ToMap(item); ok {
			out = append(out, m)
		}
	}
	return out
}

// Base strips quote suffixes from a market symbol: BTCUSDT, BTC-USD and
// BTCUSDT_UMCBL all yield BTC.
func Base(symbol string) string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	s = strings.TrimSuffix(s, "_UMCBL")
	for _, suffix := range []string{"-USDT", "USDT", "-USD", "/USDC", "USDC"} {
		if strings.HasSuffix(s, suffix) && len(s) > len(suffix) {
			return strings.TrimSuffix(s, suffix)
		}
	}
	return s
}
