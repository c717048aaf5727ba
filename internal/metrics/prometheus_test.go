package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestPrometheusCounters(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.OrdersPlaced.Inc()
	prom.Metrics.GuardrailRejected.Inc()
	prom.Metrics.StopLossEmbedded.Inc()
	prom.Metrics.FineTuneAbandoned.Inc()

	assertCounter(t, prom.counters["orders_placed_total"], 2)
	assertCounter(t, prom.counters["guardrail_rejected_total"], 1)
	assertCounter(t, prom.counters["stop_loss_embedded_total"], 1)
	assertCounter(t, prom.counters["fine_tune_abandoned_total"], 1)
	assertCounter(t, prom.counters["stop_loss_attached_total"], 0)
}

func TestPrometheusHandlerExposesNamespace(t *testing.T) {
	prom := NewPrometheus()
	prom.Metrics.FeedPollFailed.Inc()
	srv := httptest.NewServer(prom.Handler())
	defer srv.Close()
	resp, err := srv.Client().Get(srv.URL)
	if err != nil {
		t.Fatalf("scrape failed: %v", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(resp.Body)
	if !strings.Contains(string(body), "pokedesk_feed_poll_failed_total 1") {
		t.Fatalf("expected feed counter in scrape, got %s", string(body))
	}
}

func TestNoopCountersAreSafe(t *testing.T) {
	m := NewNoop()
	m.OrdersFailed.Inc()
	m.StopLossFailed.Inc()
}

func assertCounter(t *testing.T, counter prometheus.Counter, expected float64) {
	t.Helper()
	if got := testutil.ToFloat64(counter); got != expected {
		t.Fatalf("expected %v, got %v", expected, got)
	}
}
