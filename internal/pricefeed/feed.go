package pricefeed

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/exchange"
	"pokedesk/internal/hl/rest"
	"pokedesk/internal/hl/ws"
	"pokedesk/internal/metrics"
	"pokedesk/internal/order"
)

const (
	SourcePerp = "perp"
	SourceSpot = "spot"
	SourceMids = "mids"
)

var (
	ErrNoQuotes = errors.New("no quotes collected from ticker payloads")
	priceKeys   = []string{"lastPr", "askPr", "bidPr", "markPrice", "close", "last", "price"}
)

type TickerSource interface {
	Tickers(ctx context.Context, route order.Route) (exchange.Envelope, error)
}

// MidsStream pushes mid prices over a websocket.
type MidsStream interface {
	Subscribe(ctx context.Context, sub ws.Subscription) error
	Run(ctx context.Context, handler func(ws.Message)) error
}

type Quote struct {
	Base      string
	Price     float64
	Source    string
	UpdatedAt time.Time
	Weight    float64
}

type Item struct {
	Base     string  `json:"base"`
	Price    float64 `json:"price"`
	Source   string  `json:"source"`
	WeightKg float64 `json:"weightKg"`
}

type Snapshot struct {
	Healthy bool   `json:"healthy"`
	TS      int64  `json:"ts"`
	Items   []Item `json:"items"`
}

// Feed polls venue tickers for a fixed set of bases.
type Feed struct {
	source   TickerSource
	bases    []string
	interval time.Duration
	timeout  time.Duration
	policy   exchange.RetryPolicy
	failed   metrics.Counter
	log      *zap.Logger
	now      func() time.Time

	mu      sync.RWMutex
	quotes  map[string]Quote
	healthy bool
	lastTS  time.Time
}

func New(source TickerSource, bases []string, cfg config.PriceFeedConfig, failed metrics.Counter, log *zap.Logger) *Feed {
	if log == nil {
		log = zap.NewNop()
	}
	policy := exchange.DefaultRetryPolicy()
	policy.Retries = max(0, cfg.Retries)
	return &Feed{
		source:   source,
		bases:    normalizeBases(bases),
		interval: cfg.Interval,
		timeout:  cfg.Timeout,
		policy:   policy,
		failed:   failed,
		log:      log,
		now:      time.Now,
		quotes:   make(map[string]Quote),
	}
}

func normalizeBases(bases []string) []string {
	seen := make(map[string]bool, len(bases))
	out := make([]string, 0, len(bases))
	for _, b := range bases {
		b = strings.ToUpper(strings.TrimSpace(b))
		if b == "" || seen[b] {
			continue
		}
		seen[b] = true
		out = append(out, b)
	}
	return out
}

// Run polls until ctx ends.
func (f *Feed) Run(ctx context.Context) {
	interval := f.interval
	if interval <= 0 {
		interval = 3 * time.Second
	}
	for {
		if err := f.PollOnce(ctx); err != nil && ctx.Err() == nil {
			f.log.Warn("price feed poll failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

// PollOnce refreshes quotes from perp tickers, then spot tickers for any
// base the perp listing lacked.
func (f *Feed) PollOnce(ctx context.Context) error {
	now := f.now()
	quotes := map[string]Quote{}
	missing := f.missingSet()
	var errs []error
	for _, route := range []order.Route{order.RoutePerp, order.RouteSpot} {
		if len(missing) == 0 {
			break
		}
		env, err := f.fetch(ctx, route)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		source := SourcePerp
		if route == order.RouteSpot {
			source = SourceSpot
		}
		for _, entry := range env.Records {
			base := exchange.Base(exchange.String(entry, "symbol", "instId", "coin"))
			if !missing[base] {
				continue
			}
			price, ok := extractPrice(entry)
			if !ok {
				continue
			}
			quotes[base] = newQuote(base, price, source, now)
			delete(missing, base)
		}
	}
	if len(quotes) == 0 {
		f.markFailure(now)
		if len(errs) > 0 {
			return errors.Join(errs...)
		}
		return ErrNoQuotes
	}
	f.mu.Lock()
	for base, q := range quotes {
		f.quotes[base] = q
	}
	f.healthy = true
	f.lastTS = now
	f.mu.Unlock()
	if len(missing) > 0 {
		f.log.Debug("price feed missing quotes", zap.Int("missing", len(missing)))
	}
	return nil
}

func (f *Feed) fetch(ctx context.Context, route order.Route) (exchange.Envelope, error) {
	return exchange.Do(ctx, f.policy, func(ctx context.Context) (exchange.Envelope, error) {
		if f.timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, f.timeout)
			defer cancel()
		}
		return f.source.Tickers(ctx, route)
	})
}

func (f *Feed) markFailure(now time.Time) {
	if f.failed != nil {
		f.failed.Inc()
	}
	f.mu.Lock()
	if f.lastTS.IsZero() {
		f.lastTS = now
	}
	f.healthy = false
	f.mu.Unlock()
}

func (f *Feed) missingSet() map[string]bool {
	out := make(map[string]bool, len(f.bases))
	for _, b := range f.bases {
		out[b] = true
	}
	return out
}

// StreamMids subscribes to pushed mids and applies them until ctx ends.
func (f *Feed) StreamMids(ctx context.Context, stream MidsStream) error {
	if err := stream.Subscribe(ctx, ws.AllMids()); err != nil {
		return err
	}
	return stream.Run(ctx, f.HandleMessage)
}

// HandleMessage applies an allMids push; other channels are ignored.
func (f *Feed) HandleMessage(msg ws.Message) {
	if msg.Channel != "allMids" {
		return
	}
	var payload struct {
		Mids map[string]any `json:"mids"`
	}
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		f.log.Debug("allMids decode failed", zap.Error(err))
		return
	}
	mids := rest.ParseMids(payload.Mids)
	now := f.now()
	wanted := f.missingSet()
	f.mu.Lock()
	defer f.mu.Unlock()
	updated := 0
	for coin, px := range mids {
		if !wanted[coin] {
			continue
		}
		f.quotes[coin] = newQuote(coin, px, SourceMids, now)
		updated++
	}
	if updated > 0 {
		f.healthy = true
		f.lastTS = now
	}
}

// Price returns the last quote for base.
func (f *Feed) Price(base string) (Quote, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	q, ok := f.quotes[strings.ToUpper(strings.TrimSpace(base))]
	return q, ok
}

func (f *Feed) Snapshot() Snapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	ts := f.lastTS
	if ts.IsZero() {
		ts = f.now()
	}
	snap := Snapshot{Healthy: f.healthy && len(f.quotes) > 0, TS: ts.UnixMilli(), Items: []Item{}}
	for _, base := range f.bases {
		q, ok := f.quotes[base]
		if !ok {
			continue
		}
		snap.Items = append(snap.Items, Item{Base: base, Price: q.Price, Source: q.Source, WeightKg: q.Weight})
	}
	return snap
}

func extractPrice(entry map[string]any) (float64, bool) {
	for _, key := range priceKeys {
		if px, ok := exchange.Float(entry, key); ok && px > 0 {
			return px, true
		}
	}
	return 0, false
}

// Weight maps a price onto the display weight scale.
func Weight(price float64) float64 {
	raw := 50 * (math.Log10(math.Max(price, 1e-7)) + 2)
	return math.Max(5, math.Min(999, raw))
}

func newQuote(base string, price float64, source string, now time.Time) Quote {
	return Quote{Base: base, Price: price, Source: source, UpdatedAt: now, Weight: Weight(price)}
}
