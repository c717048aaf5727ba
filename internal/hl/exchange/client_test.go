package exchange

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	venue "pokedesk/internal/exchange"
)

const testKey = "4f3edf983ac636a65a842ce7c78d9aa706d3b113bce036f81af8f9b72d3d80b2"

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	signer, err := NewSigner(testKey, false)
	if err != nil {
		t.Fatalf("signer error: %v", err)
	}
	client, err := NewClient(server.URL, time.Second, signer, "", zap.NewNop())
	if err != nil {
		t.Fatalf("client init: %v", err)
	}
	return client
}

func TestNextNonceAtLeastNow(t *testing.T) {
	c := &Client{}
	start := uint64(time.Now().UnixMilli())
	nonce := c.nextNonce()
	if nonce < start {
		t.Fatalf("expected nonce >= %d, got %d", start, nonce)
	}
}

func TestNextNonceMonotonicWhenTimeDoesNotAdvance(t *testing.T) {
	c := &Client{}
	base := uint64(time.Now().UnixMilli()) + 86_400_000
	c.lastNonce.Store(base)
	if got := c.nextNonce(); got != base+1 {
		t.Fatalf("expected %d, got %d", base+1, got)
	}
	if got := c.nextNonce(); got != base+2 {
		t.Fatalf("expected %d, got %d", base+2, got)
	}
}

func TestNextNonceConcurrentUnique(t *testing.T) {
	c := &Client{}
	base := uint64(time.Now().UnixMilli()) + 86_400_000
	c.lastNonce.Store(base)

	const n = 64
	results := make([]uint64, n)
	var wg sync.WaitGroup
	wg.Add(n)
	for i := 0; i < n; i++ {
		go func(idx int) {
			defer wg.Done()
			results[idx] = c.nextNonce()
		}(i)
	}
	wg.Wait()

	seen := make(map[uint64]struct{}, n)
	for i, nonce := range results {
		if _, ok := seen[nonce]; ok {
			t.Fatalf("duplicate nonce %d at index %d", nonce, i)
		}
		seen[nonce] = struct{}{}
	}
}

func TestPlaceOrderPostsSignedAction(t *testing.T) {
	var body map[string]any
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/exchange" {
			t.Errorf("expected /exchange, got %s", r.URL.Path)
		}
		_ = json.NewDecoder(r.Body).Decode(&body)
		_, _ = w.Write([]byte(`{"status":"ok","response":{"type":"order","data":{"statuses":[{"resting":{"oid":77}}]}}}`))
	})
	order, err := LimitOrderWire(0, true, 0.01, 60000, false, TifGtc, "")
	if err != nil {
		t.Fatalf("order wire: %v", err)
	}
	resp, err := client.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if got := OrderIDFromResponse(resp); got != "77" {
		t.Fatalf("expected order id 77, got %s", got)
	}
	action, _ := body["action"].(map[string]any)
	if action["type"] != "order" || action["grouping"] != "na" {
		t.Fatalf("unexpected action %v", action)
	}
	sig, _ := body["signature"].(map[string]any)
	if sig["r"] == "" || sig["v"] == nil {
		t.Fatalf("expected signature, got %v", sig)
	}
}

func TestPlaceOrderSurfacesStatusError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":"ok","response":{"type":"order","data":{"statuses":[{"error":"Insufficient margin to place order."}]}}}`))
	})
	order, _ := LimitOrderWire(0, true, 1, 60000, false, TifGtc, "")
	_, err := client.PlaceOrder(context.Background(), order)
	if venue.KindOf(err) != venue.KindInsufficientMargin {
		t.Fatalf("expected insufficient margin, got %v", err)
	}
}

func TestPostClassifiesRateLimit(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Retry-After", "1")
		w.WriteHeader(http.StatusTooManyRequests)
	})
	_, err := client.CancelByCloid(context.Background(), 0, "0x01")
	var exErr *venue.Error
	if !errors.As(err, &exErr) || exErr.Kind != venue.KindRateLimited || exErr.RetryAfter != time.Second {
		t.Fatalf("expected rate limited with retry-after, got %v", err)
	}
}
