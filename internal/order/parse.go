package order

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseAmount accepts numbers or numeric strings with thousands separators.
// Missing values return ok=false; malformed or non-positive values are errors.
func ParseAmount(v any) (float64, bool, error) {
	var n float64
	switch t := v.(type) {
	case nil:
		return 0, false, nil
	case float64:
		n = t
	case float32:
		n = float64(t)
	case int:
		n = float64(t)
	case int64:
		n = float64(t)
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s", ErrInvalidOrder, AnchorInvalidMessage)
		}
		n = f
	case string:
		cleaned := strings.TrimSpace(strings.ReplaceAll(t, ",", ""))
		if cleaned == "" {
			return 0, false, nil
		}
		f, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0, false, fmt.Errorf("%w: %s", ErrInvalidOrder, AnchorInvalidMessage)
		}
		n = f
	default:
		return 0, false, fmt.Errorf("%w: %s", ErrInvalidOrder, AnchorInvalidMessage)
	}
	if math.IsNaN(n) || math.IsInf(n, 0) || n <= 0 {
		return 0, false, fmt.Errorf("%w: %s", ErrInvalidOrder, AnchorInvalidMessage)
	}
	return n, true, nil
}

// ParseInt reads an integer-like value; missing or malformed values return ok=false.
func ParseInt(v any) (int, bool) {
	switch t := v.(type) {
	case int:
		return t, true
	case int64:
		return int(t), true
	case float64:
		return int(t), true
	case json.Number:
		i, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0, false
			}
			return int(f), true
		}
		return int(i), true
	case string:
		i, err := strconv.Atoi(strings.TrimSpace(t))
		if err != nil {
			return 0, false
		}
		return i, true
	}
	return 0, false
}
