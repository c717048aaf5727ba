package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
	"pokedesk/internal/translator"
)

// runAway closes everything held on a species: fine-tune jobs and their
// protective orders first, then the position, then leftover plan orders.
func (s *Service) runAway(ctx context.Context, o order.EncounterOrder, demo bool) (order.Receipt, error) {
	profile, err := s.translator.Profile(o.Species)
	if err != nil {
		return order.Receipt{}, invalid(msgUnknownSpecies, o.Species)
	}

	for _, token := range s.tasks.CancelGroup(profile.Name) {
		if err := s.tasks.Await(ctx, token); err != nil && !errors.Is(err, context.Canceled) {
			s.log.Debug("fine-tune shutdown", zap.String("token", token), zap.Error(err))
		}
	}

	if profile.HasPerp() {
		symbol := profile.PerpSymbol
		mode := s.resolvePositionMode(ctx)

		flash := map[string]any{
			"symbol":      symbol,
			"productType": translator.ProductUSDTFutures,
		}
		holdSide := ""
		if mode != order.PositionModeOneWay {
			holdSide = s.rememberedHoldSide(symbol)
			if holdSide != "" {
				flash["holdSide"] = holdSide
			}
		}
		closed := false
		if _, err := s.adapter.ClosePositions(ctx, flash, demo); err != nil {
			if exchange.KindOf(err) == exchange.KindOneWayMode {
				return order.Receipt{}, &ExchangeError{Kind: exchange.KindOneWayMode, Message: msgOneWay, Err: err}
			}
			s.log.Warn("flash close failed, trying position close", zap.String("symbol", symbol), zap.Error(err))
			fallback := map[string]any{
				"symbol":      symbol,
				"marginCoin":  translator.MarginCoinUSDT,
				"productType": translator.ProductUSDTFutures,
			}
			if holdSide != "" {
				fallback["holdSide"] = holdSide
			}
			if _, err := s.adapter.ClosePositions(ctx, fallback, demo); err != nil {
				s.log.Warn("position close failed", zap.String("symbol", symbol), zap.Error(err))
			} else {
				closed = true
			}
		} else {
			closed = true
		}
		if closed {
			s.forgetHoldSide(symbol)
		}

		if _, err := s.adapter.CancelPlanOrders(ctx, map[string]any{
			"symbol":     symbol,
			"marginCoin": translator.MarginCoinUSDT,
		}, demo); err != nil {
			s.log.Debug("plan order cleanup failed", zap.String("symbol", symbol), zap.Error(err))
		}
	}

	s.ListPartyStatus(ctx, demo)

	message := exchange.SanitizeVendor(fmt.Sprintf("Trainer ran safely and closed all spot and perp trails for %s.", o.Species))
	badge := badgeFor(order.ActionRun)
	s.appendEvent(ctx, message, badge, map[string]any{"species": o.Species, "demo": demo})
	s.mu.Lock()
	s.lastEncounter = s.now()
	s.mu.Unlock()

	receipt := order.Receipt{
		AdventureID:    uuid.NewString(),
		Species:        o.Species,
		Action:         order.ActionRun,
		Filled:         true,
		LevelUsed:      o.EffectiveLevel(),
		DemoMode:       demo,
		Badge:          badge,
		Narration:      message,
		StopLossStatus: order.StopLossNone,
		RawResponse:    map[string]any{"message": message},
	}
	if s.audit != nil {
		s.audit.Record(receipt)
	}
	return receipt, nil
}
