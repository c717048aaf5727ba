package audit

import (
	"testing"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/order"
)

func TestNewDisabledReturnsNil(t *testing.T) {
	w, err := New(config.AuditConfig{}, zap.NewNop())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if w != nil {
		t.Fatalf("expected nil writer when disabled")
	}
	w.Record(order.Receipt{AdventureID: "ignored"})
	if w.Dropped() != 0 {
		t.Fatalf("expected nil writer to report no drops")
	}
}

func TestNewRejectsMissingDSNAndOddSchema(t *testing.T) {
	if _, err := New(config.AuditConfig{Enabled: true}, zap.NewNop()); err == nil {
		t.Fatalf("expected missing dsn error")
	}
	_, err := New(config.AuditConfig{Enabled: true, DSN: "postgres://localhost/x", Schema: "bad; drop"}, zap.NewNop())
	if err == nil {
		t.Fatalf("expected schema validation error")
	}
}

func TestRecordDropsWhenQueueFull(t *testing.T) {
	w := newWriter(nil, "public", 1, zap.NewNop())
	w.Record(order.Receipt{AdventureID: "a"})
	w.Record(order.Receipt{AdventureID: "b"})
	w.Record(order.Receipt{AdventureID: "c"})
	if got := w.Dropped(); got != 2 {
		t.Fatalf("expected 2 dropped receipts, got %d", got)
	}
	row := <-w.rows
	if row.AdventureID != "a" {
		t.Fatalf("expected first receipt queued, got %s", row.AdventureID)
	}
}

func TestRowFromReceipt(t *testing.T) {
	price := 101.5
	now := time.Date(2024, 6, 1, 8, 0, 0, 0, time.FixedZone("x", 3600))
	row := RowFromReceipt(order.Receipt{
		AdventureID:       "adv-1",
		Species:           "Dragonite",
		Action:            order.ActionCatch,
		Filled:            true,
		FillPrice:         &price,
		LeverageApplied:   5,
		StopLossStatus:    order.StopLossAttached,
		StopLossReference: "sl-1",
		RawResponse:       map[string]any{"orderId": "1"},
	}, now)
	if row.Time.Location() != time.UTC {
		t.Fatalf("expected UTC timestamp, got %v", row.Time.Location())
	}
	if row.Action != "throw_pokeball" || row.StopLossStatus != "attached" || row.Leverage != 5 {
		t.Fatalf("unexpected row %+v", row)
	}
	if string(row.Raw) != `{"orderId":"1"}` {
		t.Fatalf("unexpected raw %s", row.Raw)
	}
	empty := RowFromReceipt(order.Receipt{}, now)
	if string(empty.Raw) != "{}" {
		t.Fatalf("expected empty raw object, got %s", empty.Raw)
	}
}
