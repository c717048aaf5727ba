package exchange

import (
	"strings"

	venue "pokedesk/internal/exchange"
)

func OrderIDFromResponse(resp map[string]any) string {
	if resp == nil {
		return ""
	}
	return orderIDFromAny(resp)
}

// Statuses returns the per-order status entries of an order or cancel
// response.
func Statuses(resp map[string]any) []any {
	inner, _ := resp["response"].(map[string]any)
	data, _ := inner["data"].(map[string]any)
	statuses, _ := data["statuses"].([]any)
	return statuses
}

// StatusError reports a top-level "err" status or the first per-order error.
func StatusError(resp map[string]any) error {
	if resp == nil {
		return nil
	}
	if status, _ := resp["status"].(string); strings.EqualFold(status, "err") {
		text, _ := resp["response"].(string)
		if text == "" {
			text = "action rejected"
		}
		return venue.Classify(200, "", text, 0)
	}
	for _, entry := range Statuses(resp) {
		m, ok := entry.(map[string]any)
		if !ok {
			continue
		}
		if text, ok := m["error"].(string); ok && text != "" {
			return venue.Classify(200, "", text, 0)
		}
	}
	return nil
}

// FillFromResponse returns the average price and total size of an
// immediately filled order.
func FillFromResponse(resp map[string]any) (avgPx, size string, ok bool) {
	for _, entry := range Statuses(resp) {
		m, _ := entry.(map[string]any)
		filled, _ := m["filled"].(map[string]any)
		if filled == nil {
			continue
		}
		return venue.StringAny(filled["avgPx"]), venue.StringAny(filled["totalSz"]), true
	}
	return "", "", false
}

func orderIDFromAny(v any) string {
	switch val := v.(type) {
	case map[string]any:
		for _, key := range []string{"orderId", "orderID", "oid", "id"} {
			if id := venue.StringAny(val[key]); id != "" {
				return id
			}
		}
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	case []any:
		for _, nested := range val {
			if id := orderIDFromAny(nested); id != "" {
				return id
			}
		}
	}
	return ""
}
