package contract

import (
	"math"

	"github.com/shopspring/decimal"
)

// Meta holds the exchange constraints for one symbol.
type Meta struct {
	Symbol      string  `json:"symbol"`
	PriceScale  int     `json:"priceScale"`
	SizeScale   int     `json:"sizeScale"`
	PriceTick   float64 `json:"priceTick"`
	SizeTick    float64 `json:"sizeTick"`
	MinSize     float64 `json:"minSize,omitempty"`
	MaxLeverage int     `json:"maxLeverage,omitempty"`
}

// DefaultMeta is used when no exchange data has ever been fetched.
func DefaultMeta() Meta {
	return Meta{
		Symbol:     "DEFAULT",
		PriceScale: 1,
		SizeScale:  6,
		PriceTick:  0.1,
		SizeTick:   0.000001,
	}
}

// FromPrecision derives a meta from display precision alone.
func FromPrecision(symbol string, priceScale, sizeScale int) Meta {
	return Meta{
		Symbol:     symbol,
		PriceScale: priceScale,
		SizeScale:  sizeScale,
		PriceTick:  TickForScale(priceScale),
		SizeTick:   TickForScale(sizeScale),
	}
}

func TickForScale(scale int) float64 {
	return decimal.New(1, -int32(max(0, scale))).InexactFloat64()
}

// WithPrecision narrows the meta to the profile precision: ticks never get
// finer than 10^-scale for the given scales.
func (m Meta) WithPrecision(priceScale, sizeScale int) Meta {
	if priceScale >= 0 && (m.PriceScale == 0 || priceScale < m.PriceScale) {
		m.PriceScale = priceScale
	}
	if sizeScale >= 0 && (m.SizeScale == 0 || sizeScale < m.SizeScale) {
		m.SizeScale = sizeScale
	}
	if floor := TickForScale(m.PriceScale); m.PriceTick < floor {
		m.PriceTick = floor
	}
	if floor := TickForScale(m.SizeScale); m.SizeTick < floor {
		m.SizeTick = floor
	}
	return m
}

func (m Meta) QuantizePrice(v float64) float64 {
	return Floor(v, m.PriceTick)
}

func (m Meta) QuantizeSize(v float64) float64 {
	return Floor(v, m.SizeTick)
}

func (m Meta) FormatPrice(v float64) string {
	return FormatFixed(m.QuantizePrice(v), m.PriceScale)
}

func (m Meta) FormatSize(v float64) string {
	return FormatFixed(m.QuantizeSize(v), m.SizeScale)
}

// Floor rounds v toward zero to a multiple of tick. Non-finite values and
// non-positive ticks pass through.
func Floor(v, tick float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) || tick <= 0 {
		return v
	}
	t := decimal.NewFromFloat(tick)
	steps := decimal.NewFromFloat(v).DivRound(t, 16).Truncate(0)
	return steps.Mul(t).InexactFloat64()
}

// FloorDecimals floors v to the given number of decimals.
func FloorDecimals(v float64, decimals int) float64 {
	return Floor(v, TickForScale(decimals))
}

func FormatFixed(v float64, scale int) string {
	return decimal.NewFromFloat(v).StringFixed(int32(max(0, scale)))
}

// FormatTrimmed renders v with at most scale decimals and no trailing zeros.
func FormatTrimmed(v float64, scale int) string {
	return decimal.NewFromFloat(v).Round(int32(max(0, scale))).String()
}

// TickDecimals counts the decimals needed to print a tick exactly.
func TickDecimals(tick float64) int {
	if tick <= 0 {
		return 0
	}
	exp := decimal.NewFromFloat(tick).Exponent()
	if exp >= 0 {
		return 0
	}
	return int(-exp)
}
