package engine

import (
	"context"
	"math"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"pokedesk/internal/contract"
	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
	"pokedesk/internal/translator"
)

const cleanupTimeout = 5 * time.Second

// pendingStop is the state of one percent stop-loss awaiting its fill.
// It is owned by its fine-tune job.
type pendingStop struct {
	order       order.EncounterOrder
	prep        *translator.Preparation
	adventureID string
	token       string
	reference   string
	embedded    bool
	sensorPrice float64
	provisional float64
	demo        bool
	createdAt   time.Time
	attempts    int
}

func (s *Service) scheduleFineTune(p *pendingStop) {
	if p.order.StopLossMode != order.StopLossPercent {
		return
	}
	s.tasks.Schedule(p.token, p.prep.Profile.Name, func(ctx context.Context) error {
		return s.fineTune(ctx, p)
	})
}

// fineTune polls fills for the order's average entry and moves the
// provisional stop when it is off by a tick or more. Without a fill the
// protective order is cancelled.
func (s *Service) fineTune(ctx context.Context, p *pendingStop) error {
	tick := contract.DefaultMeta().PriceTick
	if p.prep.Meta != nil && p.prep.Meta.PriceTick > 0 {
		tick = p.prep.Meta.PriceTick
	} else if !p.prep.IsPerp() {
		tick = contract.TickForScale(p.prep.PriceDecimals())
	}
	stage := map[string]any{"clientOid": p.token, "stage": "escape-fine-tune"}

	for attempt := 1; attempt <= s.opts.FineTuneAttempts; attempt++ {
		p.attempts = attempt
		entry, ok := s.averageEntryPrice(ctx, p)
		if ctx.Err() != nil {
			s.abandonOnCancel(ctx, p)
			return ctx.Err()
		}
		if ok {
			final, err := deriveStopPrice(p.order, p.prep, entry)
			if err != nil {
				s.appendEvent(ctx, err.Error(), "", stage)
				return nil
			}
			if math.Abs(final-p.provisional) < tick {
				s.appendEvent(ctx, "Escape Rope set using sensor anchor.", "", stage)
				return nil
			}
			if err := s.replaceStopLoss(ctx, p, final); err != nil {
				if ctx.Err() != nil {
					s.abandonOnCancel(ctx, p)
					return ctx.Err()
				}
				s.metrics.StopLossFailed.Inc()
				s.notify(ctx, "Escape Rope fine-tune failed for "+p.order.Species+": "+friendlyError(err, nil).Message)
				return err
			}
			s.metrics.FineTuneAdjusted.Inc()
			s.appendEvent(ctx, "Escape Rope fine-tuned to your Distance (%) anchor.", "", map[string]any{
				"clientOid": p.token,
				"stage":     "escape-fine-tune",
				"final":     final,
			})
			return nil
		}
		if attempt == s.opts.FineTuneAttempts {
			break
		}
		timer := time.NewTimer(s.opts.FineTuneInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			s.abandonOnCancel(ctx, p)
			return ctx.Err()
		case <-timer.C:
		}
	}

	if err := s.cancelStopLoss(ctx, p); err != nil {
		s.log.Debug("stalled escape rope cancel failed", zap.String("token", p.token), zap.Error(err))
	}
	s.metrics.FineTuneAbandoned.Inc()
	s.appendEvent(ctx, "Escape Rope cancelled after entry stalled.", "", map[string]any{
		"clientOid": p.token,
		"stage":     "escape-timeout",
	})
	s.notify(ctx, "Escape Rope for "+p.order.Species+" was abandoned: no fill arrived for "+p.adventureID+".")
	return nil
}

// abandonOnCancel removes a live protective order once the job is
// cancelled. Failures are only logged.
func (s *Service) abandonOnCancel(ctx context.Context, p *pendingStop) {
	cleanup, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	if err := s.cancelStopLoss(cleanup, p); err != nil {
		s.log.Debug("escape rope cleanup failed", zap.String("token", p.token), zap.Error(err))
	}
}

func (s *Service) replaceStopLoss(ctx context.Context, p *pendingStop, price float64) error {
	if err := s.cancelStopLoss(ctx, p); err != nil {
		s.log.Debug("provisional escape rope cancel failed", zap.String("token", p.token), zap.Error(err))
	}
	ref, err := s.attachStopLoss(ctx, p.order, p.prep, price, p.demo, &adjustments{})
	if err != nil {
		p.reference = ""
		return err
	}
	p.reference = ref
	p.provisional = price
	return nil
}

// averageEntryPrice is the volume-weighted price of fills matching the
// order id or client token.
func (s *Service) averageEntryPrice(ctx context.Context, p *pendingStop) (float64, bool) {
	env, err := s.adapter.ListFills(ctx, p.prep.Symbol(), p.demo)
	if err != nil {
		if p.demo && p.sensorPrice > 0 {
			return p.sensorPrice, true
		}
		s.log.Debug("fill lookup failed", zap.String("token", p.token), zap.Error(err))
		return 0, false
	}
	notional := decimal.Zero
	size := decimal.Zero
	for _, fill := range env.Records {
		if exchange.String(fill, "orderId") != p.adventureID && exchange.String(fill, "clientOid") != p.token {
			continue
		}
		px, ok := exchange.Float(fill, "fillPrice", "price", "priceAvg")
		if !ok {
			continue
		}
		qty, ok := exchange.Float(fill, "fillQuantity", "size", "baseVolume")
		if !ok {
			continue
		}
		q := decimal.NewFromFloat(qty)
		notional = notional.Add(decimal.NewFromFloat(px).Mul(q))
		size = size.Add(q)
	}
	if !size.IsPositive() {
		return 0, false
	}
	return notional.DivRound(size, 16).InexactFloat64(), true
}
