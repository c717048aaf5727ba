package engine

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"pokedesk/internal/order"
	"pokedesk/internal/translator"
)

// resolvePositionMode asks the venue for its mode and keeps the last good
// answer when the probe fails.
func (s *Service) resolvePositionMode(ctx context.Context) order.PositionMode {
	if !s.adapter.HasCredentials() {
		s.mu.Lock()
		s.positionMode = order.PositionModeUnknown
		s.mu.Unlock()
		return order.PositionModeUnknown
	}
	mode, err := s.adapter.PositionMode(ctx)
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.log.Debug("position mode probe failed", zap.Error(err))
		return s.positionMode
	}
	if mode != order.PositionModeUnknown {
		s.positionMode = mode
	}
	return s.positionMode
}

// applyPositionMode finishes a perp payload for the account mode. One-way
// accounts get a trade side and no hold side; hedge accounts keep the hold
// side, which is remembered per symbol for later closes.
func (s *Service) applyPositionMode(prep *translator.Preparation, mode order.PositionMode, o order.EncounterOrder) {
	if !prep.IsPerp() || prep.Perp == nil {
		return
	}
	symbol := prep.Profile.PerpSymbol
	p := prep.Perp

	s.mu.Lock()
	defer s.mu.Unlock()
	if mode == order.PositionModeOneWay {
		prep.PositionMode = order.PositionModeOneWay
		prep.HoldSide = ""
		s.positionMode = order.PositionModeOneWay
		delete(s.holdSides, symbol)

		p.HoldSide = ""
		p.TradeSide = "open"
		if p.Force == "" && (p.TimeInForce == "" || p.TimeInForce == "normal" || p.TimeInForce == "gtc") {
			p.Force = "gtc"
		}
		p.ReduceOnly = ""
		if o.Action == order.ActionRun || o.Action == order.ActionRelease {
			p.TradeSide = "close"
			p.ReduceOnly = "YES"
		}
		return
	}

	prep.PositionMode = order.PositionModeHedge
	if mode == order.PositionModeHedge {
		s.positionMode = mode
	}
	p.ReduceOnly = ""
	p.TradeSide = ""
	if prep.HoldSide != "" {
		p.HoldSide = prep.HoldSide
		s.holdSides[symbol] = prep.HoldSide
	} else {
		delete(s.holdSides, symbol)
	}
}

func (s *Service) rememberedHoldSide(symbol string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.holdSides[symbol]
}

func (s *Service) forgetHoldSide(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.holdSides, symbol)
}

// clampLeverage caps the requested level at the venue maximum and writes
// the applied value into the payload.
func (s *Service) clampLeverage(prep *translator.Preparation, requested int) (int, string) {
	limit := 0
	if prep.Meta != nil {
		limit = prep.Meta.MaxLeverage
	}
	if limit <= 0 {
		limit = prep.Profile.MaxLeverage
	}
	applied := requested
	if limit > 0 && limit < requested {
		applied = limit
	}
	if prep.Perp != nil {
		prep.Perp.Leverage = strconv.Itoa(applied)
	}
	if applied < requested {
		return applied, fmt.Sprintf("League cap set LV to %d.", applied)
	}
	return applied, ""
}
