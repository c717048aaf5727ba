package engine

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pokedesk/internal/contract"
	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
	"pokedesk/internal/translator"
)

const (
	planTypeStopLoss = "sl"
	triggerTypeMark  = "mark_price"
)

func requiresStopLoss(o order.EncounterOrder, prep *translator.Preparation) bool {
	switch o.Action {
	case order.ActionCatch:
		return true
	case order.ActionRelease:
		return prep.IsPerp()
	}
	return false
}

// validateStopLoss rejects missing or wrong-side stops before any network
// call. Anchor stops on limit orders are compared after flooring both
// prices to the same tick.
func validateStopLoss(o order.EncounterOrder, prep *translator.Preparation) error {
	if !requiresStopLoss(o, prep) {
		return nil
	}
	if o.StopLossMode == "" || o.StopLossValue == 0 {
		return invalid(msgRopeRequired)
	}
	if o.StopLossMode == order.StopLossPrice && o.StopLossValue <= 0 {
		return invalid(msgAnchorPositive)
	}
	if o.StopLossMode == order.StopLossPercent && o.StopLossValue <= 0 {
		return invalid(msgDistancePositive)
	}
	if o.StopLossMode != order.StopLossPrice || o.Style != order.StyleLimit || o.LimitPrice <= 0 {
		return nil
	}
	tick := stopTick(prep)
	stop := contract.Floor(o.StopLossValue, tick)
	limit := contract.Floor(o.LimitPrice, tick)
	if prep.Long() && stop >= limit {
		return invalid(msgRopeBelowLong)
	}
	if !prep.Long() && stop <= limit {
		return invalid(msgRopeAboveShort)
	}
	return nil
}

// checkMarketAnchor holds an anchor stop on a market order to the loss side
// of the current sensor price. An unreadable sensor skips the check.
func (s *Service) checkMarketAnchor(ctx context.Context, o order.EncounterOrder, prep *translator.Preparation, demo bool) error {
	if !requiresStopLoss(o, prep) || o.StopLossMode != order.StopLossPrice || (o.Style == order.StyleLimit && o.LimitPrice > 0) {
		return nil
	}
	sensor, ok, err := s.sensorPrice(ctx, prep, o.StopLossTrigger, demo)
	if err != nil {
		s.log.Debug("anchor sensor check skipped", zap.String("symbol", prep.Symbol()), zap.Error(err))
		return nil
	}
	if !ok || sensor <= 0 {
		return nil
	}
	tick := stopTick(prep)
	stop := contract.Floor(o.StopLossValue, tick)
	mark := contract.Floor(sensor, tick)
	if prep.Long() && stop >= mark {
		return invalid(msgRopeBelowLong)
	}
	if !prep.Long() && stop <= mark {
		return invalid(msgRopeAboveShort)
	}
	return nil
}

func stopTick(prep *translator.Preparation) float64 {
	if tick := contract.TickForScale(prep.PriceDecimals()); tick > 0 {
		return tick
	}
	if prep.Meta != nil && prep.Meta.PriceTick > 0 {
		return prep.Meta.PriceTick
	}
	return contract.DefaultMeta().PriceTick
}

// distanceStop applies a percent distance to base on the losing side.
func distanceStop(long bool, percent, base float64) float64 {
	ratio := decimal.NewFromFloat(percent).Div(decimal.NewFromInt(100))
	factor := decimal.NewFromInt(1).Add(ratio)
	if long {
		factor = decimal.NewFromInt(1).Sub(ratio)
	}
	target := decimal.NewFromFloat(base).Mul(factor)
	if target.IsNegative() {
		return 0
	}
	return target.InexactFloat64()
}

// deriveStopPrice computes the final stop from a known entry price.
func deriveStopPrice(o order.EncounterOrder, prep *translator.Preparation, entry float64) (float64, error) {
	if !requiresStopLoss(o, prep) {
		return 0, nil
	}
	target := o.StopLossValue
	if o.StopLossMode != order.StopLossPrice {
		target = distanceStop(prep.Long(), o.StopLossValue, entry)
	}
	if prep.Long() && target >= entry {
		return 0, invalid(msgRopeBelowLong)
	}
	if !prep.Long() && target <= entry {
		return 0, invalid(msgRopeAboveShort)
	}
	if target <= 0 {
		return 0, invalid(msgAnchorPositive)
	}
	return target, nil
}

// embedStopLoss writes preset stop fields onto the perp payload. A stop
// that lands on the wrong side of the entry reference after flooring is
// nudged by one tick.
func (s *Service) embedStopLoss(ctx context.Context, o order.EncounterOrder, prep *translator.Preparation, adj *adjustments, demo bool) (string, error) {
	meta := contract.DefaultMeta()
	if prep.Meta != nil {
		meta = *prep.Meta
	}

	var target, entryRef float64
	hasEntry := false
	isLimit := o.Style == order.StyleLimit && o.LimitPrice > 0
	if o.StopLossMode == order.StopLossPrice {
		target = o.StopLossValue
		if isLimit {
			entryRef, hasEntry = o.LimitPrice, true
		}
	} else {
		if isLimit {
			entryRef = o.LimitPrice
		} else {
			px, ok, err := s.sensorPrice(ctx, prep, o.StopLossTrigger, demo)
			if err != nil {
				return "", friendlyError(err, adj)
			}
			if !ok {
				return "", invalid(msgSensorOffline)
			}
			entryRef = px
		}
		hasEntry = true
		target = distanceStop(prep.Long(), o.StopLossValue, entryRef)
	}
	if target <= 0 {
		return "", invalid(msgRopeCalcFailed)
	}

	stop := meta.QuantizePrice(target)
	tick := meta.PriceTick
	if hasEntry {
		if prep.Long() && stop >= entryRef {
			stop = meta.QuantizePrice(max(entryRef-tick, 0))
			if stop <= 0 || stop >= entryRef {
				return "", invalid(msgEmbedBelowLong)
			}
		}
		if !prep.Long() && stop <= entryRef {
			stop = meta.QuantizePrice(entryRef + tick)
			if stop <= entryRef {
				return "", invalid(msgEmbedAboveShort)
			}
		}
	}

	formatted := contract.FormatFixed(stop, prep.PriceDecimals())
	adj.setScale(meta.PriceScale)
	adj.roundedStop = formatted
	prep.Perp.StopLoss = &translator.StopLossPreset{
		Price:        formatted,
		TriggerPrice: formatted,
		TriggerType:  triggerTypeMark,
		ExecutePrice: formatted,
	}
	return formatted, nil
}

// attachStopLoss places the separate protective order and returns its
// reference.
func (s *Service) attachStopLoss(ctx context.Context, o order.EncounterOrder, prep *translator.Preparation, stopPrice float64, demo bool, adj *adjustments) (string, error) {
	var payload map[string]any
	if prep.IsPerp() {
		meta := contract.DefaultMeta()
		if prep.Meta != nil {
			meta = *prep.Meta
		}
		formatted := contract.FormatFixed(meta.QuantizePrice(stopPrice), prep.PriceDecimals())
		adj.setScale(meta.PriceScale)
		adj.roundedStop = formatted
		payload = map[string]any{
			"symbol":               prep.Profile.PerpSymbol,
			"productType":          translator.ProductUSDTFutures,
			"marginCoin":           translator.MarginCoinUSDT,
			"planType":             planTypeStopLoss,
			"stopLossTriggerPrice": formatted,
			"stopLossTriggerType":  string(o.StopLossTrigger),
			"triggerPrice":         formatted,
			"size":                 meta.FormatSize(o.Strength),
		}
		if prep.HoldSide != "" {
			payload["holdSide"] = prep.HoldSide
		}
	} else {
		formatted := contract.FormatFixed(contract.FloorDecimals(stopPrice, prep.PriceDecimals()), prep.PriceDecimals())
		adj.roundedStop = formatted
		payload = map[string]any{
			"symbol":       prep.Profile.SpotSymbol,
			"side":         "sell",
			"orderType":    "market",
			"triggerPrice": formatted,
			"triggerType":  spotTriggerType(o.StopLossTrigger),
			"size":         prep.Size(),
			"planType":     "amount",
		}
	}
	env, err := s.adapter.AttachStopLoss(ctx, payload, demo)
	if err != nil {
		return "", err
	}
	ref := exchange.String(env.First(), "tpslId", "orderId", "planOrderId", "planId")
	if ref == "" {
		return "", invalid(msgRopeSetupFailed)
	}
	s.log.Info("escape rope attached",
		zap.String("symbol", exchange.String(payload, "symbol")),
		zap.String("trigger", exchange.String(payload, "triggerPrice")),
		zap.String("reference", ref),
	)
	return ref, nil
}

func spotTriggerType(trigger order.TriggerSource) string {
	if trigger == order.TriggerLast {
		return "fill_price"
	}
	return triggerTypeMark
}

// cancelStopLoss removes a separate protective order. Embedded stops live
// on the main order and cannot be cancelled on their own.
func (s *Service) cancelStopLoss(ctx context.Context, p *pendingStop) error {
	if p.reference == "" || p.embedded {
		return nil
	}
	var payload map[string]any
	if p.prep.IsPerp() {
		payload = map[string]any{
			"symbol":      p.prep.Profile.PerpSymbol,
			"productType": translator.ProductUSDTFutures,
			"marginCoin":  translator.MarginCoinUSDT,
			"orderId":     p.reference,
			"planType":    planTypeStopLoss,
		}
		if p.prep.HoldSide != "" {
			payload["holdSide"] = p.prep.HoldSide
		}
	} else {
		payload = map[string]any{
			"symbol":  p.prep.Profile.SpotSymbol,
			"orderId": p.reference,
		}
	}
	_, err := s.adapter.CancelStopLoss(ctx, payload, p.demo)
	return err
}

// sensorPrice reads the mark or last price from the route's tickers.
// Failures in demo mode read as an offline sensor.
func (s *Service) sensorPrice(ctx context.Context, prep *translator.Preparation, trigger order.TriggerSource, demo bool) (float64, bool, error) {
	env, err := s.adapter.Tickers(ctx, prep.Route)
	if err != nil {
		if demo {
			s.log.Debug("sensor fetch failed in demo", zap.Error(err))
			return 0, false, nil
		}
		return 0, false, err
	}
	symbol := strings.ToUpper(prep.Symbol())
	keys := []string{"markPrice", "close", "last", "lastPr", "price"}
	if trigger == order.TriggerLast {
		keys = []string{"lastPr", "last", "close", "price", "markPrice"}
	}
	for _, entry := range env.Records {
		if strings.ToUpper(exchange.String(entry, "symbol")) != symbol {
			continue
		}
		px, ok := pickPrice(entry, keys...)
		return px, ok, nil
	}
	return 0, false, nil
}
