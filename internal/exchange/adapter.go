package exchange

import (
	"context"

	"pokedesk/internal/order"
)

// Adapter is the uniform surface of one exchange venue. Payloads are wire
// maps produced by the translator; every call returns a normalized envelope
// or a typed *Error.
type Adapter interface {
	Name() string
	HasCredentials() bool

	PlaceOrder(ctx context.Context, payload map[string]any, route order.Route, demo bool) (Envelope, error)
	AttachStopLoss(ctx context.Context, payload map[string]any, demo bool) (Envelope, error)
	CancelStopLoss(ctx context.Context, payload map[string]any, demo bool) (Envelope, error)
	CancelAll(ctx context.Context, symbol string, demo bool) (Envelope, error)
	ClosePositions(ctx context.Context, payload map[string]any, demo bool) (Envelope, error)
	CancelPlanOrders(ctx context.Context, payload map[string]any, demo bool) (Envelope, error)

	ListPositions(ctx context.Context, demo bool) (Envelope, error)
	ListFills(ctx context.Context, symbol string, demo bool) (Envelope, error)
	ListOpenOrders(ctx context.Context, demo bool) (Envelope, error)
	ListContracts(ctx context.Context) (Envelope, error)
	PositionMode(ctx context.Context) (order.PositionMode, error)
	Tickers(ctx context.Context, route order.Route) (Envelope, error)
	Balances(ctx context.Context) (BalanceSummary, error)
}

// BalanceSummary is the quote-currency energy of the account. Perp and Spot
// are nil when the venue did not report them.
type BalanceSummary struct {
	Total     float64
	Available *float64
	Perp      *float64
	Spot      *float64
}

// Source labels which wallets contributed to the total.
func (b BalanceSummary) Source() string {
	switch {
	case b.Perp != nil && b.Spot != nil:
		return "both"
	case b.Perp != nil:
		return "perp"
	case b.Spot != nil:
		return "spot"
	}
	return "none"
}
