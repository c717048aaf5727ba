package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"pokedesk/internal/exchange"
)

const (
	msgCredentials      = "Prof. Oak: Pokégear is missing credentials. Toggle demo mode or add keys before live adventures."
	msgCooldown         = "Professor Elm says to rest for %d more seconds."
	msgPartyFull        = "Party is full! Release a partner before another throw."
	msgEnergyLow        = "Energy reserves are low. Refill before throwing another Poké Ball."
	msgRopeRequired     = "Professor Elm insists you equip an Escape Rope before entering this encounter."
	msgAnchorPositive   = "Anchor must be greater than zero."
	msgDistancePositive = "Distance must be a positive percentage."
	msgRopeBelowLong    = "Your Escape Rope must be set below your anchor point for a long."
	msgRopeAboveShort   = "Your Escape Rope must be set above your anchor point for a short."
	msgEmbedBelowLong   = "Escape Rope must be set below the entry reference for a long adventure."
	msgEmbedAboveShort  = "Escape Rope must be set above the entry reference for a short adventure."
	msgRopeCalcFailed   = "Escape Rope calculation failed."
	msgRopeSetupFailed  = "Escape Rope setup failed; the Professor suggests retrying."
	msgSensorOffline    = "Pokédex Sensor temporarily offline. Try again shortly."
	msgPriceUnavailable = "Professor Elm: price data not available right now."
	msgMarketOffline    = "Professor Elm: market sensors are offline. Try again shortly."
	msgMissingMarket    = "Encounter species is missing market metadata."
	msgQuoteRequired    = "Encounter HP sizing requires a positive quote amount."
	msgMinNotional      = "Ace needs at least %s HP at this level."
	msgBelowTier        = "Encounter size is below the minimum tier after rounding."
	msgContractTick     = "Prof. Oak: contract size must be at least %s."
	msgContractMin      = "Prof. Oak: minimum contract size is %s."
	msgUnknownSpecies   = "Unknown species: %s"
	msgNoSymbol         = "%s does not have a tradable symbol configured."
	msgStillWaiting     = "Prof. Oak is still waiting for a reply. Try again shortly."
	msgUnreachable      = "Prof. Oak can't reach the exchange right now. Try again in a moment."
	msgScaleHint        = "Prof. Oak: your rope price needs at most %d decimals. I rounded it to %s. Please confirm again."
	msgStepHint         = "Prof. Oak: quantity must follow the exchange step. I adjusted it to %s."
	msgRelayed          = "Prof. Oak relayed: %s"
	msgCouldNotThrow    = "Prof. Oak: couldn't throw that ball. %s"
	msgOneWay           = "Mode is ONE-WAY. I'll send one-way orders (no side field)."
	msgSomethingWrong   = "Something went wrong."
)

// ValidationError is shown to the caller verbatim and never retried.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

func invalid(format string, args ...any) error {
	return &ValidationError{Message: exchange.SanitizeVendor(fmt.Sprintf(format, args...))}
}

// ExchangeError is a venue failure translated into a user-facing message.
type ExchangeError struct {
	Kind    exchange.Kind
	Message string
	Err     error
}

func (e *ExchangeError) Error() string {
	return e.Message
}

func (e *ExchangeError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err was raised by local checks.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// adjustments records the values the engine rounded, so a scale or step
// rejection can echo them back.
type adjustments struct {
	priceScale         int
	hasPriceScale      bool
	priceTickFormatted string
	roundedPrice       string
	roundedStop        string
	roundedQty         string
}

func (a *adjustments) setScale(scale int) {
	if !a.hasPriceScale {
		a.priceScale = scale
		a.hasPriceScale = true
	}
}

func friendlyError(err error, adj *adjustments) *ExchangeError {
	var already *ExchangeError
	if errors.As(err, &already) {
		return already
	}
	if adj == nil {
		adj = &adjustments{}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &ExchangeError{Kind: exchange.KindTimeout, Message: msgStillWaiting, Err: err}
	}
	exErr := exchange.ClassifyTransport(err)
	detail := exchange.SanitizeVendor(strings.TrimSpace(exErr.Text))
	out := &ExchangeError{Kind: exErr.Kind, Err: err}
	switch exErr.Kind {
	case exchange.KindTimeout:
		out.Message = msgStillWaiting
	case exchange.KindNetwork:
		out.Message = msgUnreachable
	case exchange.KindCredentialsMissing:
		out.Message = msgCredentials
	case exchange.KindOneWayMode:
		out.Message = msgOneWay
	case exchange.KindInvalidScale:
		if hint := scaleHint(adj); hint != "" {
			out.Message = hint
		}
	case exchange.KindInvalidStep:
		if adj.roundedQty != "" {
			out.Message = fmt.Sprintf(msgStepHint, adj.roundedQty)
		}
	}
	if out.Message != "" {
		return out
	}
	if detail == "" {
		out.Message = fmt.Sprintf(msgCouldNotThrow, msgSomethingWrong)
		return out
	}
	if exErr.Status != 0 || exErr.Code != "" {
		out.Message = fmt.Sprintf(msgRelayed, detail)
		return out
	}
	out.Message = fmt.Sprintf(msgCouldNotThrow, detail)
	return out
}

func scaleHint(adj *adjustments) string {
	rounded := adj.roundedPrice
	if rounded == "" {
		rounded = adj.roundedStop
	}
	if rounded == "" {
		return ""
	}
	decimals := adj.priceScale
	if !adj.hasPriceScale {
		decimals = defaultPriceScale
	}
	return fmt.Sprintf(msgScaleHint, decimals, rounded)
}
