package engine

import (
	"context"
	"strings"

	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
)

const (
	reasonNotPerp         = "not_perp"
	reasonFlagDisabled    = "flag_disabled"
	reasonMissingStopLoss = "missing_stop_loss"
)

// Preview is the dry-run translation of an order form.
type Preview struct {
	EmbedSL      bool           `json:"embedSL"`
	PositionMode string         `json:"positionMode,omitempty"`
	Payload      map[string]any `json:"payload"`
	Reasons      []string       `json:"reasons"`
}

// BuildOrderPreview translates a loosely typed order form into the payload
// that would be dispatched, without placing anything. Embed reasons are
// reported when the stop-loss cannot ride on the main order.
func (s *Service) BuildOrderPreview(ctx context.Context, raw map[string]any) (Preview, error) {
	o, err := s.previewOrder(raw)
	if err != nil {
		return Preview{}, err
	}
	if err := o.Normalize(); err != nil {
		return Preview{}, invalid("%s", trimInvalid(err))
	}
	o, err = s.prepareOrder(ctx, o)
	if err != nil {
		return Preview{}, err
	}
	prep, err := s.translator.ToExchangePayload(o)
	if err != nil {
		return Preview{}, invalid(msgUnknownSpecies, o.Species)
	}
	adj := &adjustments{}
	if prep.IsPerp() {
		meta := s.contractMeta(ctx, prep)
		if o, err = s.applyContractMeta(o, prep, meta, adj); err != nil {
			return Preview{}, err
		}
	}

	mode := order.PositionModeUnknown
	if prep.IsPerp() {
		mode = s.resolvePositionMode(ctx)
		s.applyPositionMode(prep, mode, o)
	}

	var reasons []string
	if !prep.IsPerp() {
		reasons = append(reasons, reasonNotPerp)
	}
	if !s.opts.EmbedStopLoss {
		reasons = append(reasons, reasonFlagDisabled)
	}
	if !o.HasStopLoss() {
		reasons = append(reasons, reasonMissingStopLoss)
	}

	embed := prep.IsPerp() && s.opts.EmbedStopLoss && o.HasStopLoss()
	if embed {
		if _, err := s.embedStopLoss(ctx, o, prep, adj, false); err != nil {
			return Preview{}, err
		}
		reasons = nil
	}
	if prep.IsPerp() {
		s.clampLeverage(prep, o.EffectiveLevel())
	}

	preview := Preview{
		EmbedSL: embed,
		Payload: prep.Wire(),
		Reasons: reasons,
	}
	if preview.Reasons == nil {
		preview.Reasons = []string{}
	}
	switch {
	case prep.PositionMode != order.PositionModeUnknown:
		preview.PositionMode = string(prep.PositionMode)
	case mode != order.PositionModeUnknown:
		preview.PositionMode = string(mode)
	default:
		if m := s.PositionMode(); m != order.PositionModeUnknown {
			preview.PositionMode = string(m)
		}
	}
	return preview, nil
}

func (s *Service) previewOrder(raw map[string]any) (order.EncounterOrder, error) {
	o := order.EncounterOrder{
		Species: exchange.String(raw, "species"),
		Action:  order.ActionRelease,
		Style:   order.StyleLimit,
	}
	switch strings.ToLower(exchange.String(raw, "action")) {
	case "", "throw", "catch", "buy":
		o.Action = order.ActionCatch
	}
	if strings.ToLower(exchange.String(raw, "orderType")) == string(order.StyleMarket) {
		o.Style = order.StyleMarket
	}

	var err error
	if o.Strength, _, err = order.ParseAmount(raw["size"]); err != nil {
		return o, invalid("%s", trimInvalid(err))
	}
	if o.Style == order.StyleLimit {
		if o.LimitPrice, _, err = order.ParseAmount(raw["price"]); err != nil {
			return o, invalid("%s", trimInvalid(err))
		}
	}

	rope, _ := exchange.ToMap(raw["rope"])
	ropeValue := rope["value"]
	if ropeValue == nil {
		for _, key := range []string{"stopLoss", "stop_loss", "stop"} {
			if v, ok := raw[key]; ok && v != nil {
				ropeValue = v
				break
			}
		}
	}
	stop, hasStop, err := order.ParseAmount(ropeValue)
	if err != nil {
		return o, invalid("%s", trimInvalid(err))
	}
	if hasStop {
		o.StopLossValue = stop
		switch strings.ToLower(exchange.String(rope, "mode")) {
		case "percent", "distance":
			o.StopLossMode = order.StopLossPercent
		default:
			o.StopLossMode = order.StopLossPrice
		}
	}
	o.StopLossTrigger = order.TriggerMark
	if sensor := strings.ToLower(exchange.String(rope, "sensor")); sensor != "" && !strings.HasPrefix(sensor, "mark") {
		o.StopLossTrigger = order.TriggerLast
	}

	if level, ok := order.ParseInt(raw["level"]); ok && level > 0 {
		o.Level = level
	} else if lv, ok := order.ParseInt(raw["lv"]); ok && lv > 0 {
		o.Level = lv
	} else {
		fallback := s.opts.DefaultLevel
		if lev, ok := order.ParseInt(raw["leverage"]); ok {
			fallback = lev
		}
		o.Level = max(2, fallback)
	}
	return o, nil
}
