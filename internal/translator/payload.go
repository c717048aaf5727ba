package translator

import (
	"pokedesk/internal/contract"
	"pokedesk/internal/order"
	"pokedesk/internal/roster"
)

const (
	ProductUSDTFutures = "USDT-FUTURES"
	MarginCoinUSDT     = "USDT"
)

// StopLossPreset carries a stop-loss embedded in the main perp order.
type StopLossPreset struct {
	Price        string
	TriggerPrice string
	TriggerType  string
	ExecutePrice string
}

// PerpPayload is a perpetual order under construction. Empty fields are
// omitted from the wire map.
type PerpPayload struct {
	Symbol      string
	ProductType string
	MarginMode  string
	MarginCoin  string
	ClientOid   string
	Side        string
	OrderType   string
	TimeInForce string
	Force       string
	Size        string
	Price       string
	HoldSide    string
	TradeSide   string
	ReduceOnly  string
	Leverage    string
	StopLoss    *StopLossPreset
}

func (p *PerpPayload) Wire() map[string]any {
	out := map[string]any{}
	put(out, "symbol", p.Symbol)
	put(out, "productType", p.ProductType)
	put(out, "marginMode", p.MarginMode)
	put(out, "marginCoin", p.MarginCoin)
	put(out, "clientOid", p.ClientOid)
	put(out, "side", p.Side)
	put(out, "orderType", p.OrderType)
	put(out, "timeInForceValue", p.TimeInForce)
	put(out, "force", p.Force)
	put(out, "size", p.Size)
	put(out, "price", p.Price)
	put(out, "holdSide", p.HoldSide)
	put(out, "tradeSide", p.TradeSide)
	put(out, "reduceOnly", p.ReduceOnly)
	put(out, "leverage", p.Leverage)
	if p.StopLoss != nil {
		put(out, "presetStopLossPrice", p.StopLoss.Price)
		put(out, "presetStopLossTriggerPrice", p.StopLoss.TriggerPrice)
		put(out, "presetStopLossTriggerType", p.StopLoss.TriggerType)
		put(out, "presetStopLossExecutePrice", p.StopLoss.ExecutePrice)
	}
	return out
}

type SpotPayload struct {
	Symbol    string
	ClientOid string
	Side      string
	OrderType string
	Force     string
	Size      string
	Price     string
}

func (p *SpotPayload) Wire() map[string]any {
	out := map[string]any{}
	put(out, "symbol", p.Symbol)
	put(out, "clientOid", p.ClientOid)
	put(out, "side", p.Side)
	put(out, "orderType", p.OrderType)
	put(out, "force", p.Force)
	put(out, "size", p.Size)
	put(out, "price", p.Price)
	return out
}

func put(m map[string]any, key, value string) {
	if value != "" {
		m[key] = value
	}
}

// Preparation is the translated order plus routing metadata. Exactly one
// of Perp and Spot is set, matching Route.
type Preparation struct {
	Route        order.Route
	Direction    order.Direction
	Perp         *PerpPayload
	Spot         *SpotPayload
	Profile      roster.Profile
	Token        string
	HoldSide     string
	PositionMode order.PositionMode
	Meta         *contract.Meta
}

func (p *Preparation) IsPerp() bool {
	return p.Route == order.RoutePerp
}

func (p *Preparation) Symbol() string {
	return p.Profile.Symbol(p.IsPerp())
}

func (p *Preparation) SetSize(size string) {
	if p.Perp != nil {
		p.Perp.Size = size
	}
	if p.Spot != nil {
		p.Spot.Size = size
	}
}

func (p *Preparation) SetPrice(price string) {
	if p.Perp != nil {
		p.Perp.Price = price
	}
	if p.Spot != nil {
		p.Spot.Price = price
	}
}

func (p *Preparation) Size() string {
	if p.Perp != nil {
		return p.Perp.Size
	}
	if p.Spot != nil {
		return p.Spot.Size
	}
	return ""
}

func (p *Preparation) Price() string {
	if p.Perp != nil {
		return p.Perp.Price
	}
	if p.Spot != nil {
		return p.Spot.Price
	}
	return ""
}

// Wire converts the payload for dispatch.
func (p *Preparation) Wire() map[string]any {
	if p.Perp != nil {
		return p.Perp.Wire()
	}
	if p.Spot != nil {
		return p.Spot.Wire()
	}
	return map[string]any{}
}

// PriceDecimals and SizeDecimals follow the route precision of the profile.
func (p *Preparation) PriceDecimals() int {
	return p.Profile.PriceDecimals(p.IsPerp())
}

func (p *Preparation) SizeDecimals() int {
	return p.Profile.SizeDecimals(p.IsPerp())
}

// Long reports a position that loses when price falls.
func (p *Preparation) Long() bool {
	return p.Direction != order.DirectionShort
}
