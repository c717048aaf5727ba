package cex

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
)

func newTestAdapter(t *testing.T, handler http.HandlerFunc, withCreds bool) *Adapter {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	cfg := config.CEXConfig{BaseURL: srv.URL, DemoBaseURL: srv.URL + "/demo", Timeout: time.Second, ProbeTimeout: time.Second}
	if withCreds {
		cfg.APIKey = "key"
		cfg.APISecret = "secret"
		cfg.Passphrase = "pass"
	}
	return New(cfg, zap.NewNop())
}

func TestSignMatchesKnownVector(t *testing.T) {
	got := Sign("secret", "1700000000000", "post", "/api/v2/mix/order/place-order", `{"a":1}`)
	again := Sign("secret", "1700000000000", "POST", "/api/v2/mix/order/place-order", `{"a":1}`)
	if got == "" || got != again {
		t.Fatalf("expected stable signature regardless of method case, got %q and %q", got, again)
	}
	if Sign("other", "1700000000000", "POST", "/api/v2/mix/order/place-order", `{"a":1}`) == got {
		t.Fatalf("expected signature to depend on the secret")
	}
}

func TestPlaceOrderSignsAndDefaultsProductType(t *testing.T) {
	var gotBody map[string]any
	var gotHeaders http.Header
	var gotPath string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotHeaders = r.Header.Clone()
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &gotBody)
		ts := r.Header.Get("ACCESS-TIMESTAMP")
		if r.Header.Get("ACCESS-SIGN") != Sign("secret", ts, r.Method, r.URL.RequestURI(), string(raw)) {
			t.Errorf("signature mismatch")
		}
		_, _ = w.Write([]byte(`{"code":"00000","msg":"success","data":{"orderId":"123","clientOid":"c1"}}`))
	}, true)

	env, err := adapter.PlaceOrder(context.Background(), map[string]any{"symbol": "BTCUSDT", "size": "0.010"}, order.RoutePerp, false)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if gotPath != pathMixPlaceOrder {
		t.Fatalf("expected mix path, got %s", gotPath)
	}
	if gotBody["productType"] != "USDT-FUTURES" {
		t.Fatalf("expected productType default, got %v", gotBody)
	}
	if gotHeaders.Get("ACCESS-KEY") != "key" || gotHeaders.Get("ACCESS-PASSPHRASE") != "pass" || gotHeaders.Get("locale") != "en-US" {
		t.Fatalf("missing auth headers: %v", gotHeaders)
	}
	if exchange.String(env.First(), "orderId") != "123" {
		t.Fatalf("expected order id 123, got %v", env.First())
	}
}

func TestDemoWithoutCredentialsIsSimulated(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		t.Errorf("unexpected network call to %s", r.URL.Path)
	}, false)
	env, err := adapter.PlaceOrder(context.Background(), map[string]any{"symbol": "ETHUSDT", "size": "1"}, order.RouteSpot, true)
	if err != nil {
		t.Fatalf("simulated order: %v", err)
	}
	if !env.OK || exchange.String(env.First(), "status") != "filled" || exchange.String(env.First(), "orderId") == "" {
		t.Fatalf("unexpected simulated envelope %+v", env)
	}
	if env.Msg != "Simulated order." {
		t.Fatalf("expected simulated message, got %q", env.Msg)
	}
	if _, err := adapter.PlaceOrder(context.Background(), map[string]any{"symbol": "ETHUSDT"}, order.RouteSpot, false); !errors.Is(err, exchange.ErrCredentialsMissing) {
		t.Fatalf("expected credentials error for live order, got %v", err)
	}
}

func TestDemoWithCredentialsUsesDemoURL(t *testing.T) {
	var gotPath string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		_, _ = w.Write([]byte(`{"code":"00000","data":{"orderId":"1"}}`))
	}, true)
	if _, err := adapter.PlaceOrder(context.Background(), map[string]any{"symbol": "BTCUSDT"}, order.RouteSpot, true); err != nil {
		t.Fatalf("demo order: %v", err)
	}
	if !strings.HasPrefix(gotPath, "/demo/") {
		t.Fatalf("expected demo base url, got %s", gotPath)
	}
}

func TestRejectedOrderIsClassified(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"code":"40774","msg":"The order type for unilateral position must also be the unilateral position type."}`))
	}, true)
	_, err := adapter.ClosePositions(context.Background(), map[string]any{"symbol": "BTCUSDT"}, false)
	if exchange.KindOf(err) != exchange.KindOneWayMode {
		t.Fatalf("expected one-way kind, got %v", err)
	}
}

func TestBusinessErrorWithOKStatus(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"code":"40762","msg":"The order amount exceeds the balance"}`))
	}, true)
	_, err := adapter.PlaceOrder(context.Background(), map[string]any{"symbol": "BTCUSDT"}, order.RoutePerp, false)
	if exchange.KindOf(err) != exchange.KindInsufficientMargin {
		t.Fatalf("expected insufficient margin, got %v", err)
	}
}

func TestRateLimitCarriesRetryAfter(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "2")
		w.WriteHeader(http.StatusTooManyRequests)
	}, true)
	_, err := adapter.ListFills(context.Background(), "BTCUSDT", false)
	var exErr *exchange.Error
	if !errors.As(err, &exErr) || exErr.Kind != exchange.KindRateLimited || exErr.RetryAfter != 2*time.Second {
		t.Fatalf("expected rate limit with retry-after, got %v", err)
	}
}

func TestCancelAllFallsBackThroughCandidates(t *testing.T) {
	var mu sync.Mutex
	var symbols []string
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		symbol, _ := body["symbol"].(string)
		mu.Lock()
		symbols = append(symbols, symbol)
		mu.Unlock()
		if symbol != "BTCUSDT_UMCBL" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"code":"40034","msg":"symbol not exist"}`))
			return
		}
		_, _ = w.Write([]byte(`{"code":"00000","data":{"successList":[{"orderId":"1"}]}}`))
	}, true)
	if _, err := adapter.CancelAll(context.Background(), "btcusdt", false); err != nil {
		t.Fatalf("cancel all: %v", err)
	}
	if len(symbols) != 2 || symbols[0] != "BTCUSDT" || symbols[1] != "BTCUSDT_UMCBL" {
		t.Fatalf("unexpected attempts %v", symbols)
	}
}

func TestSymbolCandidates(t *testing.T) {
	got := SymbolCandidates("BTCUSDT_UMCBL")
	if strings.Join(got, ",") != "BTCUSDT_UMCBL,BTCUSDT" {
		t.Fatalf("unexpected candidates %v", got)
	}
}

func TestPositionModeIsCached(t *testing.T) {
	calls := 0
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		_, _ = w.Write([]byte(`{"code":"00000","data":[{"marginCoin":"USDT","posMode":"one_way_mode"}]}`))
	}, true)
	for i := 0; i < 3; i++ {
		mode, err := adapter.PositionMode(context.Background())
		if err != nil || mode != order.PositionModeOneWay {
			t.Fatalf("expected one_way, got %q (%v)", mode, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected cached position mode, got %d calls", calls)
	}
}

func TestParsePositionMode(t *testing.T) {
	cases := map[any]order.PositionMode{
		"hedge_mode":   order.PositionModeHedge,
		"One-Way-Mode": order.PositionModeOneWay,
		float64(2):     order.PositionModeHedge,
		"cross":        order.PositionModeUnknown,
	}
	for in, expected := range cases {
		if got := ParsePositionMode(in); got != expected {
			t.Fatalf("%v: expected %q, got %q", in, expected, got)
		}
	}
}

func TestBalancesSumPerpAndSpot(t *testing.T) {
	adapter := newTestAdapter(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case pathMixAccounts:
			_, _ = w.Write([]byte(`{"code":"00000","data":[{"marginCoin":"USDT","available":"80","accountEquity":"120"}]}`))
		case pathSpotAssets:
			_, _ = w.Write([]byte(`{"code":"00000","data":[{"coin":"USDT","available":"30"}]}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}, true)
	summary, err := adapter.Balances(context.Background())
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if summary.Total != 150 || summary.Available == nil || *summary.Available != 110 {
		t.Fatalf("unexpected summary %+v", summary)
	}
	if summary.Source() != "both" || *summary.Perp != 80 {
		t.Fatalf("expected both sources, got %s", summary.Source())
	}
}
