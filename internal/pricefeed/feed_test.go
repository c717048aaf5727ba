package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/exchange"
	"pokedesk/internal/hl/ws"
	"pokedesk/internal/order"
)

type fakeTickers struct {
	perp  []map[string]any
	spot  []map[string]any
	errs  map[order.Route]error
	calls map[order.Route]int
}

func (f *fakeTickers) Tickers(ctx context.Context, route order.Route) (exchange.Envelope, error) {
	if f.calls == nil {
		f.calls = map[order.Route]int{}
	}
	f.calls[route]++
	if err := f.errs[route]; err != nil {
		return exchange.Envelope{}, err
	}
	if route == order.RouteSpot {
		return exchange.OKEnvelope(nil, f.spot...), nil
	}
	return exchange.OKEnvelope(nil, f.perp...), nil
}

type countCounter struct{ n int }

func (c *countCounter) Inc() { c.n++ }

func testConfig() config.PriceFeedConfig {
	return config.PriceFeedConfig{Interval: time.Second, Timeout: time.Second, Retries: 0}
}

func TestPollOnceCollectsPerpThenSpot(t *testing.T) {
	src := &fakeTickers{
		perp: []map[string]any{
			{"symbol": "BTCUSDT", "lastPr": "65000.5"},
			{"symbol": "ETHUSDT", "lastPr": "", "markPrice": "3200"},
			{"symbol": "PEPEUSDT", "lastPr": "0.00001"},
		},
		spot: []map[string]any{{"symbol": "WLDUSDT", "close": "2.5"}},
	}
	feed := New(src, []string{"btc", "ETH", "WLD", "BTC"}, testConfig(), nil, zap.NewNop())
	if err := feed.PollOnce(context.Background()); err != nil {
		t.Fatalf("poll: %v", err)
	}
	btc, ok := feed.Price("BTC")
	if !ok || btc.Price != 65000.5 || btc.Source != SourcePerp {
		t.Fatalf("expected perp BTC quote, got %+v", btc)
	}
	if eth, _ := feed.Price("eth"); eth.Price != 3200 {
		t.Fatalf("expected mark price fallback 3200, got %v", eth.Price)
	}
	if wld, _ := feed.Price("WLD"); wld.Source != SourceSpot {
		t.Fatalf("expected spot WLD quote, got %+v", wld)
	}
	if _, ok := feed.Price("PEPE"); ok {
		t.Fatalf("expected unpinned base ignored")
	}
	snap := feed.Snapshot()
	if !snap.Healthy || len(snap.Items) != 3 || snap.Items[0].Base != "BTC" {
		t.Fatalf("unexpected snapshot %+v", snap)
	}
}

func TestPollOnceFailureMarksUnhealthy(t *testing.T) {
	boom := &exchange.Error{Kind: exchange.KindUnknown, Text: "boom"}
	src := &fakeTickers{errs: map[order.Route]error{order.RoutePerp: boom, order.RouteSpot: boom}}
	failed := &countCounter{}
	feed := New(src, []string{"BTC"}, testConfig(), failed, zap.NewNop())
	err := feed.PollOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected joined error, got %v", err)
	}
	if failed.n != 1 || feed.Snapshot().Healthy {
		t.Fatalf("expected failure counted and unhealthy snapshot")
	}
	if src.calls[order.RoutePerp] != 1 {
		t.Fatalf("expected unknown errors not retried, got %d calls", src.calls[order.RoutePerp])
	}
}

func TestHandleMessageAppliesMids(t *testing.T) {
	feed := New(&fakeTickers{}, []string{"BTC", "ETH"}, testConfig(), nil, zap.NewNop())
	data, _ := json.Marshal(map[string]any{"mids": map[string]any{"BTC": "64000", "DOGE": "0.1"}})
	feed.HandleMessage(ws.Message{Channel: "allMids", Data: data})
	feed.HandleMessage(ws.Message{Channel: "trades", Data: data})
	q, ok := feed.Price("BTC")
	if !ok || q.Price != 64000 || q.Source != SourceMids {
		t.Fatalf("expected BTC mid 64000, got %+v", q)
	}
	if _, ok := feed.Price("DOGE"); ok {
		t.Fatalf("expected unpinned mid ignored")
	}
}

func TestWeight(t *testing.T) {
	if got := Weight(1); got != 100 {
		t.Fatalf("expected weight 100 for price 1, got %v", got)
	}
	if got := Weight(0.0001); got != 5 {
		t.Fatalf("expected floor weight 5, got %v", got)
	}
	if got := Weight(1e30); got != 999 {
		t.Fatalf("expected cap 999, got %v", got)
	}
}
