package journal

import (
	"context"
	"fmt"
	"testing"
	"time"
)

func TestStoreKeepsNewestEntries(t *testing.T) {
	store, err := New(":memory:", 3)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		err := store.Append(ctx, Entry{
			ID:        fmt.Sprintf("id-%d", i),
			Timestamp: base.Add(time.Duration(i) * time.Second),
			Message:   fmt.Sprintf("event %d", i),
		})
		if err != nil {
			t.Fatalf("append failed: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 10)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	if entries[0].ID != "id-4" || entries[2].ID != "id-2" {
		t.Fatalf("expected newest first from id-4 to id-2, got %s..%s", entries[0].ID, entries[2].ID)
	}
	if !entries[0].Timestamp.Equal(base.Add(4 * time.Second)) {
		t.Fatalf("unexpected timestamp %v", entries[0].Timestamp)
	}
}

func TestStorePayloadAndBadge(t *testing.T) {
	store, err := New("", 0)
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	defer store.Close()

	ctx := context.Background()
	err = store.Append(ctx, Entry{
		ID:        "a",
		Timestamp: time.Now(),
		Message:   "Trainer threw a Poké Ball at Lapras.",
		Badge:     "Capture Combo",
		Payload:   map[string]any{"route": "spot", "level": 1},
	})
	if err != nil {
		t.Fatalf("append failed: %v", err)
	}
	if err := store.Append(ctx, Entry{ID: "b", Timestamp: time.Now(), Message: "plain"}); err != nil {
		t.Fatalf("append failed: %v", err)
	}

	entries, err := store.Recent(ctx, 1)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	if len(entries) != 1 || entries[0].ID != "b" || entries[0].Payload != nil {
		t.Fatalf("expected bare entry b, got %+v", entries)
	}

	entries, err = store.Recent(ctx, 2)
	if err != nil {
		t.Fatalf("recent failed: %v", err)
	}
	got := entries[1]
	if got.Badge != "Capture Combo" {
		t.Fatalf("expected badge, got %q", got.Badge)
	}
	if got.Payload["route"] != "spot" || got.Payload["level"] != float64(1) {
		t.Fatalf("unexpected payload %v", got.Payload)
	}
}
