package engine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pokedesk/internal/contract"
	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
	"pokedesk/internal/roster"
	"pokedesk/internal/translator"
)

// prepareOrder pins the effective level and turns a quote amount into a
// Pokeball strength.
func (s *Service) prepareOrder(ctx context.Context, o order.EncounterOrder) (order.EncounterOrder, error) {
	o.Level = o.EffectiveLevel()
	o.LV = 0
	if o.QuoteHP == 0 {
		return o, nil
	}
	profile, err := s.translator.Profile(o.Species)
	if err != nil {
		return o, invalid(msgUnknownSpecies, o.Species)
	}
	qty, err := s.sizeFromQuote(ctx, o, profile)
	if err != nil {
		return o, err
	}
	o.Strength = qty
	return o, nil
}

func (s *Service) sizeFromQuote(ctx context.Context, o order.EncounterOrder, profile roster.Profile) (float64, error) {
	if o.QuoteHP <= 0 {
		return 0, invalid(msgQuoteRequired)
	}
	route := translator.RouteFor(o, profile)
	perp := route == order.RoutePerp
	notional := decimal.NewFromFloat(o.QuoteHP).Mul(decimal.NewFromInt(int64(max(1, o.Level))))

	mark, err := s.markPrice(ctx, profile, route)
	if err != nil {
		return 0, err
	}
	if mark <= 0 {
		return 0, invalid(msgMarketOffline)
	}
	markDec := decimal.NewFromFloat(mark)

	decimals := profile.SizeDecimals(perp)
	minQty := decimal.New(1, -int32(decimals))
	if perp {
		if meta, ok := s.lookupMeta(ctx, profile.PerpSymbol); ok && meta.MinSize > 0 {
			if minSize := decimal.NewFromFloat(meta.MinSize); minSize.GreaterThan(minQty) {
				minQty = minSize
			}
		}
	}
	minNotional := markDec.Mul(minQty)
	if notional.LessThan(minNotional) {
		return 0, invalid(msgMinNotional, formatQuoteAmount(minNotional.InexactFloat64()))
	}
	qty := notional.DivRound(markDec, 16).Truncate(int32(decimals))
	if qty.LessThan(minQty) {
		return 0, invalid(msgMinNotional, formatQuoteAmount(minNotional.InexactFloat64()))
	}
	if !qty.IsPositive() {
		return 0, invalid(msgBelowTier)
	}
	return qty.InexactFloat64(), nil
}

// markPrice prefers the price feed and falls back to a ticker fetch.
func (s *Service) markPrice(ctx context.Context, profile roster.Profile, route order.Route) (float64, error) {
	base := strings.ToUpper(strings.TrimSpace(profile.Base))
	if base == "" {
		return 0, invalid(msgMissingMarket)
	}
	if s.prices != nil {
		if q, ok := s.prices.Price(base); ok && q.Price > 0 {
			return q.Price, nil
		}
	}
	if px, ok := s.markFromExchange(ctx, base, route); ok {
		return px, nil
	}
	return 0, invalid(msgPriceUnavailable)
}

func (s *Service) markFromExchange(ctx context.Context, base string, route order.Route) (float64, bool) {
	routes := []order.Route{order.RoutePerp}
	if route == order.RouteSpot {
		routes = append(routes, order.RouteSpot)
	}
	for _, r := range routes {
		env, err := s.adapter.Tickers(ctx, r)
		if err != nil {
			s.log.Debug("ticker fallback failed", zap.String("route", string(r)), zap.Error(err))
			continue
		}
		for _, entry := range env.Records {
			if exchange.Base(exchange.String(entry, "symbol")) != base {
				continue
			}
			if px, ok := pickPrice(entry, "markPrice", "lastPr", "last", "close", "price"); ok {
				return px, true
			}
		}
	}
	return 0, false
}

func pickPrice(entry map[string]any, keys ...string) (float64, bool) {
	for _, key := range keys {
		if px, ok := exchange.Float(entry, key); ok && px > 0 {
			return px, true
		}
	}
	return 0, false
}

func (s *Service) lookupMeta(ctx context.Context, symbol string) (contract.Meta, bool) {
	if s.contracts == nil || symbol == "" {
		return contract.Meta{}, false
	}
	for _, candidate := range symbolCandidates(symbol) {
		if meta, ok := s.contracts.Get(ctx, candidate); ok {
			return meta, true
		}
	}
	return contract.Meta{}, false
}

// contractMeta returns the venue constraints narrowed to the profile
// precision. Without venue data it falls back to profile precision and
// finally to DefaultMeta.
func (s *Service) contractMeta(ctx context.Context, prep *translator.Preparation) contract.Meta {
	symbol := prep.Symbol()
	priceScale, sizeScale := prep.PriceDecimals(), prep.SizeDecimals()
	meta, ok := s.lookupMeta(ctx, symbol)
	switch {
	case ok:
		meta = meta.WithPrecision(priceScale, sizeScale)
	case symbol != "":
		s.log.Info("contract meta missing, using profile precision", zap.String("symbol", symbol))
		meta = contract.FromPrecision(strings.ToUpper(symbol), priceScale, sizeScale)
	default:
		s.log.Info("contract meta missing, using defaults")
		meta = contract.DefaultMeta()
	}
	prep.Meta = &meta
	return meta
}

// applyContractMeta floors size, limit price and anchor stop to the
// contract ticks.
func (s *Service) applyContractMeta(o order.EncounterOrder, prep *translator.Preparation, meta contract.Meta, adj *adjustments) (order.EncounterOrder, error) {
	adj.setScale(meta.PriceScale)
	if adj.priceTickFormatted == "" {
		adj.priceTickFormatted = contract.FormatFixed(meta.PriceTick, meta.PriceScale)
	}

	qty := meta.QuantizeSize(o.Strength)
	if qty <= 0 {
		return o, invalid(msgContractTick, meta.FormatSize(meta.SizeTick))
	}
	if meta.MinSize > 0 && qty < meta.MinSize {
		return o, invalid(msgContractMin, contract.FormatFixed(meta.MinSize, max(meta.SizeScale, contract.TickDecimals(meta.MinSize))))
	}
	o.Strength = qty
	size := meta.FormatSize(qty)
	prep.SetSize(size)
	adj.roundedQty = size

	if o.Style == order.StyleLimit && o.LimitPrice > 0 {
		px := meta.QuantizePrice(o.LimitPrice)
		o.LimitPrice = px
		formatted := contract.FormatFixed(px, prep.PriceDecimals())
		prep.SetPrice(formatted)
		adj.roundedPrice = formatted
	}
	if o.StopLossMode == order.StopLossPrice && o.StopLossValue > 0 {
		stop := meta.QuantizePrice(o.StopLossValue)
		o.StopLossValue = stop
		adj.roundedStop = contract.FormatFixed(stop, prep.PriceDecimals())
	}
	return o, nil
}

// symbolCandidates lists the spellings a futures symbol may be cached under.
func symbolCandidates(symbol string) []string {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return nil
	}
	if base, ok := strings.CutSuffix(s, "_UMCBL"); ok && base != "" {
		return []string{s, base}
	}
	return []string{s, s + "_UMCBL"}
}

// formatQuoteAmount renders a quote amount with thousands separators and
// no trailing zeros.
func formatQuoteAmount(amount float64) string {
	d := decimal.NewFromFloat(amount)
	var text string
	switch {
	case amount >= 1:
		text = d.StringFixed(2)
	case amount >= 0.01:
		text = d.StringFixed(4)
	default:
		text = d.StringFixed(6)
	}
	if strings.Contains(text, ".") {
		text = strings.TrimRight(strings.TrimRight(text, "0"), ".")
	}
	if amount < 1000 {
		return text
	}
	intPart, frac, hasFrac := strings.Cut(text, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if hasFrac {
		b.WriteByte('.')
		b.WriteString(frac)
	}
	return b.String()
}
