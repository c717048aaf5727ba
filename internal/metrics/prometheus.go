package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const promNamespace = "pokedesk"

type promCounter struct {
	counter prometheus.Counter
}

func (p promCounter) Inc() {
	p.counter.Inc()
}

type Prometheus struct {
	Metrics *Metrics

	registry *prometheus.Registry
	counters map[string]prometheus.Counter
}

var counterHelp = []struct {
	name string
	help string
}{
	{"orders_placed_total", "Total number of orders accepted by the exchange."},
	{"orders_failed_total", "Total number of order dispatch failures."},
	{"guardrail_rejected_total", "Total number of orders rejected by cooldown, party or reserve guardrails."},
	{"stop_loss_embedded_total", "Total number of stop-losses embedded on the main order."},
	{"stop_loss_attached_total", "Total number of separate protective orders placed."},
	{"stop_loss_failed_total", "Total number of protective orders that failed after a fill."},
	{"fine_tune_adjusted_total", "Total number of percent stop-losses moved to the real fill price."},
	{"fine_tune_abandoned_total", "Total number of fine-tune tasks that found no fill."},
	{"feed_poll_failed_total", "Total number of price feed polls that exhausted retries."},
}

func NewPrometheus() *Prometheus {
	registry := prometheus.NewRegistry()
	counters := make(map[string]prometheus.Counter, len(counterHelp))
	for _, c := range counterHelp {
		counter := prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: promNamespace,
			Name:      c.name,
			Help:      c.help,
		})
		registry.MustRegister(counter)
		counters[c.name] = counter
	}
	m := &Metrics{
		OrdersPlaced:      promCounter{counters["orders_placed_total"]},
		OrdersFailed:      promCounter{counters["orders_failed_total"]},
		GuardrailRejected: promCounter{counters["guardrail_rejected_total"]},
		StopLossEmbedded:  promCounter{counters["stop_loss_embedded_total"]},
		StopLossAttached:  promCounter{counters["stop_loss_attached_total"]},
		StopLossFailed:    promCounter{counters["stop_loss_failed_total"]},
		FineTuneAdjusted:  promCounter{counters["fine_tune_adjusted_total"]},
		FineTuneAbandoned: promCounter{counters["fine_tune_abandoned_total"]},
		FeedPollFailed:    promCounter{counters["feed_poll_failed_total"]},
	}
	return &Prometheus{
		Metrics:  m,
		registry: registry,
		counters: counters,
	}
}

func (p *Prometheus) Handler() http.Handler {
	return promhttp.HandlerFor(p.registry, promhttp.HandlerOpts{})
}
