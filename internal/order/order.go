package order

import (
	"errors"
	"fmt"
	"math"
	"strings"
)

type Action string

const (
	ActionCatch   Action = "throw_pokeball"
	ActionRelease Action = "release_pokemon"
	ActionHeal    Action = "use_potion"
	ActionRun     Action = "run_away"
)

func ParseAction(s string) (Action, error) {
	switch Action(strings.ToLower(strings.TrimSpace(s))) {
	case ActionCatch, "catch", "throw", "buy", "":
		return ActionCatch, nil
	case ActionRelease, "release", "sell":
		return ActionRelease, nil
	case ActionHeal, "heal":
		return ActionHeal, nil
	case ActionRun, "run":
		return ActionRun, nil
	}
	return "", fmt.Errorf("unknown action %q", s)
}

// Opens reports whether the action adds exposure and is subject to guardrails.
func (a Action) Opens() bool {
	return a == ActionCatch
}

type Style string

const (
	StyleMarket Style = "market"
	StyleLimit  Style = "limit"
)

type StopLossMode string

const (
	StopLossPrice   StopLossMode = "price"
	StopLossPercent StopLossMode = "percent"
)

type TriggerSource string

const (
	TriggerMark TriggerSource = "mark_price"
	TriggerLast TriggerSource = "last_price"
)

type Route string

const (
	RouteSpot Route = "spot"
	RoutePerp Route = "perp"
)

type Direction string

const (
	DirectionSpotLong Direction = "spot_long"
	DirectionLong     Direction = "long"
	DirectionShort    Direction = "short"
)

type PositionMode string

const (
	PositionModeUnknown PositionMode = ""
	PositionModeOneWay  PositionMode = "one_way"
	PositionModeHedge   PositionMode = "hedge"
)

const (
	StrengthRequiredMessage = "Professor Elm: choose a Poké Ball strength before confirming."
	AnchorInvalidMessage    = "That anchor isn't a valid number. Try plain digits like 104409.94."
)

var ErrInvalidOrder = errors.New("invalid order")

// EncounterOrder is an inbound themed order. Zero numeric values mean unset.
type EncounterOrder struct {
	Species           string        `json:"species"`
	Action            Action        `json:"action"`
	Style             Style         `json:"order_style"`
	Strength          float64       `json:"pokeball_strength"`
	QuoteHP           float64       `json:"quote_hp,omitempty"`
	LimitPrice        float64       `json:"limit_price,omitempty"`
	Level             int           `json:"level"`
	LV                int           `json:"lv,omitempty"`
	DemoMode          bool          `json:"demo_mode"`
	LegacyStopLoss    float64       `json:"stop_loss,omitempty"`
	StopLossMode      StopLossMode  `json:"stop_loss_mode,omitempty"`
	StopLossValue     float64       `json:"stop_loss_value,omitempty"`
	StopLossTrigger   TriggerSource `json:"stop_loss_trigger,omitempty"`
	ClientAdventureID string        `json:"client_adventure_id,omitempty"`
}

// HasStopLoss is true when both a mode and a value were declared.
func (o EncounterOrder) HasStopLoss() bool {
	return o.StopLossMode != "" && o.StopLossValue != 0
}

// EffectiveLevel prefers the LV override and never drops below 1.
func (o EncounterOrder) EffectiveLevel() int {
	level := o.Level
	if o.LV > 0 {
		level = o.LV
	}
	return max(1, level)
}

// Normalize fills defaults, promotes the legacy stop-loss field and
// validates numeric inputs.
func (o *EncounterOrder) Normalize() error {
	o.Species = strings.TrimSpace(o.Species)
	if o.Species == "" {
		return fmt.Errorf("%w: species is required", ErrInvalidOrder)
	}
	if o.Action == "" {
		o.Action = ActionCatch
	}
	switch o.Action {
	case ActionCatch, ActionRelease, ActionHeal, ActionRun:
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidOrder, o.Action)
	}
	if o.Style == "" {
		o.Style = StyleMarket
	}
	if o.Style != StyleMarket && o.Style != StyleLimit {
		return fmt.Errorf("%w: unknown order style %q", ErrInvalidOrder, o.Style)
	}
	if o.Level == 0 {
		o.Level = 1
	}
	if o.Level < 1 || o.LV < 0 {
		return fmt.Errorf("%w: level must be at least 1", ErrInvalidOrder)
	}
	if o.StopLossTrigger == "" {
		o.StopLossTrigger = TriggerMark
	}
	if o.StopLossTrigger != TriggerMark && o.StopLossTrigger != TriggerLast {
		return fmt.Errorf("%w: unknown stop-loss trigger %q", ErrInvalidOrder, o.StopLossTrigger)
	}
	for _, v := range []float64{o.LimitPrice, o.LegacyStopLoss, o.StopLossValue} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s", ErrInvalidOrder, AnchorInvalidMessage)
		}
	}
	if o.LegacyStopLoss > 0 && o.StopLossValue == 0 {
		o.StopLossValue = o.LegacyStopLoss
		if o.StopLossMode == "" {
			o.StopLossMode = StopLossPrice
		}
	}
	if o.LegacyStopLoss == 0 && o.StopLossValue > 0 {
		o.LegacyStopLoss = o.StopLossValue
	}
	if o.StopLossMode != "" && o.StopLossMode != StopLossPrice && o.StopLossMode != StopLossPercent {
		return fmt.Errorf("%w: unknown stop-loss mode %q", ErrInvalidOrder, o.StopLossMode)
	}
	if math.IsNaN(o.Strength) || math.IsInf(o.Strength, 0) || o.Strength < 0 || o.QuoteHP < 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, StrengthRequiredMessage)
	}
	if o.Action != ActionRun && o.Strength <= 0 && o.QuoteHP <= 0 {
		return fmt.Errorf("%w: %s", ErrInvalidOrder, StrengthRequiredMessage)
	}
	return nil
}

type StopLossStatus string

const (
	StopLossNone     StopLossStatus = "none"
	StopLossEmbedded StopLossStatus = "embedded"
	StopLossAttached StopLossStatus = "attached"
	StopLossFailed   StopLossStatus = "failed"
)

// Receipt is the normalized outcome of one executed order.
type Receipt struct {
	AdventureID            string         `json:"adventure_id"`
	Species                string         `json:"species"`
	Action                 Action         `json:"action"`
	Filled                 bool           `json:"filled"`
	FillPrice              *float64       `json:"fill_price"`
	FillSize               *float64       `json:"fill_size"`
	LevelUsed              int            `json:"level_used"`
	LeverageApplied        int            `json:"leverage_applied,omitempty"`
	DemoMode               bool           `json:"demo_mode"`
	Badge                  string         `json:"badge,omitempty"`
	Narration              string         `json:"narration,omitempty"`
	StopLossReference      string         `json:"stop_loss_reference,omitempty"`
	StopLossStatus         StopLossStatus `json:"stop_loss_status"`
	StopLossError          string         `json:"stop_loss_error,omitempty"`
	NormalizedPrice        string         `json:"normalizedPrice,omitempty"`
	NormalizedTriggerPrice string         `json:"normalizedTriggerPrice,omitempty"`
	PriceScale             int            `json:"priceScale,omitempty"`
	PriceTickFormatted     string         `json:"priceTickFormatted,omitempty"`
	RawResponse            map[string]any `json:"raw_response"`
}

type GuardrailStatus struct {
	CooldownSeconds   int     `json:"cooldown_seconds"`
	CooldownRemaining float64 `json:"cooldown_remaining"`
	MaxPartySize      int     `json:"max_party_size"`
	MinimumEnergy     float64 `json:"minimum_energy"`
}
