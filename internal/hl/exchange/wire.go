package exchange

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

func LimitOrderWire(asset int, isBuy bool, size, limit float64, reduceOnly bool, tif Tif, cloid string) (OrderWire, error) {
	if tif == "" {
		return OrderWire{}, errors.New("tif is required")
	}
	price, sizeWire, err := priceAndSize(limit, size)
	if err != nil {
		return OrderWire{}, err
	}
	return OrderWire{
		Asset:      asset,
		IsBuy:      isBuy,
		Price:      price,
		Size:       sizeWire,
		ReduceOnly: reduceOnly,
		OrderType:  OrderTypeWire{Limit: &LimitOrderType{Tif: tif}},
		Cloid:      cloid,
	}, nil
}

// StopLossOrderWire builds a reduce-only market stop. isBuy closes a short.
func StopLossOrderWire(asset int, isBuy bool, size, triggerPx, limitPx float64, cloid string) (OrderWire, error) {
	price, sizeWire, err := priceAndSize(limitPx, size)
	if err != nil {
		return OrderWire{}, err
	}
	trigger, err := FloatToWire(triggerPx)
	if err != nil {
		return OrderWire{}, fmt.Errorf("trigger price: %w", err)
	}
	return OrderWire{
		Asset:      asset,
		IsBuy:      isBuy,
		Price:      price,
		Size:       sizeWire,
		ReduceOnly: true,
		OrderType:  OrderTypeWire{Trigger: &TriggerOrderType{IsMarket: true, TriggerPx: trigger, Tpsl: "sl"}},
		Cloid:      cloid,
	}, nil
}

func priceAndSize(price, size float64) (string, string, error) {
	p, err := FloatToWire(price)
	if err != nil {
		return "", "", fmt.Errorf("price: %w", err)
	}
	s, err := FloatToWire(size)
	if err != nil {
		return "", "", fmt.Errorf("size: %w", err)
	}
	return p, s, nil
}

// FloatToWire renders x with at most 8 decimals and rejects values that
// would lose precision.
func FloatToWire(x float64) (string, error) {
	rounded := fmt.Sprintf("%.8f", x)
	parsed, err := strconv.ParseFloat(rounded, 64)
	if err != nil {
		return "", err
	}
	if math.Abs(parsed-x) >= 1e-12 {
		return "", fmt.Errorf("float_to_wire causes rounding: %f", x)
	}
	trimmed := strings.TrimRight(rounded, "0")
	trimmed = strings.TrimRight(trimmed, ".")
	if trimmed == "" || trimmed == "-0" {
		trimmed = "0"
	}
	return trimmed, nil
}
