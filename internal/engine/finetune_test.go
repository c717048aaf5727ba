package engine

import (
	"context"
	"strings"
	"testing"
	"time"

	"pokedesk/internal/order"
)

func percentCatch() order.EncounterOrder {
	return order.EncounterOrder{
		Species:       "Dragonite",
		Action:        order.ActionCatch,
		Style:         order.StyleMarket,
		Strength:      0.01,
		Level:         1,
		StopLossMode:  order.StopLossPercent,
		StopLossValue: 2,
	}
}

func fineTuneVenue(fills ...map[string]any) *fakeVenue {
	v := newFakeVenue()
	v.tickers[order.RoutePerp] = []map[string]any{{"symbol": "BTCUSDT", "markPrice": 101.0}}
	v.fills = fills
	return v
}

func fineTuneOptions(attempts int) Options {
	return Options{
		DemoMode:         true,
		FineTuneAttempts: attempts,
		FineTuneInterval: 10 * time.Millisecond,
	}
}

func TestFineTuneMovesStopToFillAnchor(t *testing.T) {
	venue := fineTuneVenue(map[string]any{"orderId": "A1", "fillPrice": 100.0, "fillQuantity": 0.01})
	h := newHarness(t, venue, fineTuneOptions(5))

	receipt, err := h.svc.ExecuteOrder(context.Background(), percentCatch())
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if receipt.StopLossStatus != order.StopLossAttached || receipt.StopLossReference != "SL1" {
		t.Fatalf("unexpected stop status %s ref %s", receipt.StopLossStatus, receipt.StopLossReference)
	}
	if !strings.HasSuffix(receipt.Narration, "Escape Rope armed (Distance (%)).") {
		t.Fatalf("unexpected narration: %q", receipt.Narration)
	}
	if got := venue.attachedAt(0)["triggerPrice"]; got != "98.9" {
		t.Fatalf("expected provisional stop 98.9 from sensor, got %v", got)
	}

	waitFor(t, "replacement stop", func() bool {
		_, attached, _ := venue.counts()
		return attached == 2
	})
	if got := venue.attachedAt(1)["triggerPrice"]; got != "98.0" {
		t.Fatalf("expected final stop 98.0, got %v", got)
	}
	if got := venue.cancelledStopAt(0)["orderId"]; got != "SL1" {
		t.Fatalf("expected provisional stop SL1 cancelled, got %v", got)
	}
	waitFor(t, "fine-tune metric", func() bool { return h.m.fineTuneAdjusted.value() == 1 })
	waitFor(t, "fine-tune journal entry", func() bool {
		return hasEvent(t, h.journal, "Escape Rope fine-tuned to your Distance (%) anchor.")
	})
}

func TestFineTuneKeepsStopWithinOneTick(t *testing.T) {
	venue := fineTuneVenue(map[string]any{"clientOid": "ignored", "orderId": "A1", "price": 101.0, "size": 0.01})
	h := newHarness(t, venue, fineTuneOptions(5))

	if _, err := h.svc.ExecuteOrder(context.Background(), percentCatch()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	waitFor(t, "sensor anchor entry", func() bool {
		return hasEvent(t, h.journal, "Escape Rope set using sensor anchor.")
	})
	if _, attached, cancelled := venue.counts(); attached != 1 || cancelled != 0 {
		t.Fatalf("expected stop untouched, got %d attached and %d cancelled", attached, cancelled)
	}
}

func TestFineTuneAbandonsStalledEntry(t *testing.T) {
	venue := fineTuneVenue()
	h := newHarness(t, venue, fineTuneOptions(3))

	if _, err := h.svc.ExecuteOrder(context.Background(), percentCatch()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	waitFor(t, "stalled entry", func() bool {
		return hasEvent(t, h.journal, "Escape Rope cancelled after entry stalled.")
	})
	if got := venue.cancelledStopAt(0)["orderId"]; got != "SL1" {
		t.Fatalf("expected SL1 cancelled, got %v", got)
	}
	if h.m.fineTuneAbandoned.value() != 1 {
		t.Fatalf("expected abandon metric")
	}
	waitFor(t, "abandon alert", func() bool { return len(h.alerts.sent()) == 1 })
}

func TestRunAwayStopsPendingFineTune(t *testing.T) {
	venue := fineTuneVenue()
	h := newHarness(t, venue, fineTuneOptions(1000))

	if _, err := h.svc.ExecuteOrder(context.Background(), percentCatch()); err != nil {
		t.Fatalf("execute: %v", err)
	}
	if len(h.svc.PendingStopLosses()) != 1 {
		t.Fatalf("expected one pending fine-tune, got %v", h.svc.PendingStopLosses())
	}
	if _, err := h.svc.ExecuteOrder(context.Background(), order.EncounterOrder{Species: "Dragonite", Action: order.ActionRun}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if _, _, cancelled := venue.counts(); cancelled != 1 {
		t.Fatalf("expected provisional stop cleanup, got %d cancels", cancelled)
	}
	if got := venue.cancelledStopAt(0)["orderId"]; got != "SL1" {
		t.Fatalf("expected SL1 cancelled, got %v", got)
	}
	waitFor(t, "registry drain", func() bool { return len(h.svc.PendingStopLosses()) == 0 })
}

func TestDeriveStopPrice(t *testing.T) {
	h := newHarness(t, newFakeVenue(), Options{})
	o := percentCatch()
	prep, err := h.svc.translator.ToExchangePayload(o)
	if err != nil {
		t.Fatalf("translate: %v", err)
	}
	got, err := deriveStopPrice(o, prep, 100)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if got != 98 {
		t.Fatalf("expected 98, got %v", got)
	}
	if distanceStop(false, 2, 100) != 102 {
		t.Fatalf("expected short distance stop 102")
	}

	anchor := o
	anchor.StopLossMode = order.StopLossPrice
	anchor.StopLossValue = 105
	if _, err := deriveStopPrice(anchor, prep, 100); !IsValidation(err) {
		t.Fatalf("expected wrong-side anchor to fail, got %v", err)
	}
}
