package translator

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"pokedesk/internal/contract"
	"pokedesk/internal/order"
	"pokedesk/internal/roster"
)

var ErrUnknownInstrument = errors.New("unknown instrument")

// Translator maps themed orders onto exchange payload skeletons. It does no
// I/O.
type Translator struct {
	roster     *roster.Roster
	marginMode string
	newToken   func() string
}

func New(r *roster.Roster, marginMode string) *Translator {
	return &Translator{
		roster:     r,
		marginMode: normalizeMarginMode(marginMode),
		newToken:   func() string { return uuid.NewString() },
	}
}

func (t *Translator) Roster() *roster.Roster {
	return t.roster
}

// Profile looks a species up by display name.
func (t *Translator) Profile(species string) (roster.Profile, error) {
	profile, ok := t.roster.Lookup(species)
	if !ok {
		return roster.Profile{}, fmt.Errorf("%w: %s", ErrUnknownInstrument, species)
	}
	return profile, nil
}

// RouteFor decides spot or perp. A declared stop-loss forces perp whenever
// the species has a perp market.
func RouteFor(o order.EncounterOrder, profile roster.Profile) order.Route {
	if !profile.HasPerp() {
		return order.RouteSpot
	}
	if o.HasStopLoss() || o.Level >= 2 {
		return order.RoutePerp
	}
	return order.RouteSpot
}

func (t *Translator) ToExchangePayload(o order.EncounterOrder) (*Preparation, error) {
	profile, err := t.Profile(o.Species)
	if err != nil {
		return nil, err
	}
	route := RouteFor(o, profile)
	prep := &Preparation{
		Route:     route,
		Direction: order.DirectionSpotLong,
		Profile:   profile,
		Token:     t.newToken(),
	}
	perp := route == order.RoutePerp
	size := floorFormat(o.Strength, profile.SizeDecimals(perp))
	price := ""
	if o.Style == order.StyleLimit && o.LimitPrice > 0 {
		price = floorFormat(o.LimitPrice, profile.PriceDecimals(perp))
	}

	if perp {
		prep.Direction = order.DirectionLong
		prep.HoldSide = "long"
		side := "buy"
		if o.Action == order.ActionRelease {
			prep.Direction = order.DirectionShort
			prep.HoldSide = "short"
			side = "sell"
		}
		prep.Perp = &PerpPayload{
			Symbol:      profile.PerpSymbol,
			ProductType: ProductUSDTFutures,
			MarginMode:  t.marginMode,
			MarginCoin:  MarginCoinUSDT,
			ClientOid:   prep.Token,
			Side:        side,
			OrderType:   string(o.Style),
			TimeInForce: "normal",
			Size:        size,
			Price:       price,
			HoldSide:    prep.HoldSide,
		}
		return prep, nil
	}

	side := "buy"
	if o.Action == order.ActionRelease {
		side = "sell"
	}
	prep.Spot = &SpotPayload{
		Symbol:    profile.SpotSymbol,
		ClientOid: prep.Token,
		Side:      side,
		OrderType: string(o.Style),
		Force:     "gtc",
		Size:      size,
		Price:     price,
	}
	return prep, nil
}

func floorFormat(v float64, decimals int) string {
	return contract.FormatFixed(contract.FloorDecimals(v, decimals), decimals)
}

func normalizeMarginMode(mode string) string {
	if strings.EqualFold(strings.TrimSpace(mode), "isolated") {
		return "isolated"
	}
	return "crossed"
}
