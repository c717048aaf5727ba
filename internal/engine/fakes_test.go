package engine

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/contract"
	"pokedesk/internal/exchange"
	"pokedesk/internal/journal"
	"pokedesk/internal/metrics"
	"pokedesk/internal/order"
	"pokedesk/internal/pricefeed"
	"pokedesk/internal/roster"
	"pokedesk/internal/tasks"
	"pokedesk/internal/translator"
)

type fakeVenue struct {
	mu sync.Mutex

	name        string
	creds       bool
	mode        order.PositionMode
	tickers     map[order.Route][]map[string]any
	fills       []map[string]any
	balances    exchange.BalanceSummary
	balancesErr error
	positions   []map[string]any
	openOrders  []map[string]any
	placeRecord map[string]any
	placeErr    error
	attachErr   error
	closeErrs   []error
	cancelAllOK map[string]bool

	placed         []map[string]any
	attached       []map[string]any
	cancelledStops []map[string]any
	closes         []map[string]any
	planCancels    []map[string]any
	cancelAll      []string
}

func newFakeVenue() *fakeVenue {
	return &fakeVenue{
		name:        config.VenueCEX,
		placeRecord: map[string]any{"orderId": "A1"},
		tickers:     map[order.Route][]map[string]any{},
		cancelAllOK: map[string]bool{},
	}
}

func (f *fakeVenue) Name() string { return f.name }

func (f *fakeVenue) HasCredentials() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.creds
}

func (f *fakeVenue) PlaceOrder(ctx context.Context, payload map[string]any, route order.Route, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.placed = append(f.placed, payload)
	if f.placeErr != nil {
		return exchange.Envelope{}, f.placeErr
	}
	return exchange.OKEnvelope(f.placeRecord, f.placeRecord), nil
}

func (f *fakeVenue) AttachStopLoss(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attached = append(f.attached, payload)
	if f.attachErr != nil {
		return exchange.Envelope{}, f.attachErr
	}
	record := map[string]any{"orderId": fmt.Sprintf("SL%d", len(f.attached))}
	return exchange.OKEnvelope(record, record), nil
}

func (f *fakeVenue) CancelStopLoss(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelledStops = append(f.cancelledStops, payload)
	return exchange.OKEnvelope(nil), nil
}

func (f *fakeVenue) CancelAll(ctx context.Context, symbol string, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cancelAll = append(f.cancelAll, symbol)
	if f.cancelAllOK[symbol] {
		return exchange.OKEnvelope(nil), nil
	}
	return exchange.Envelope{OK: false, Code: "40001", Msg: "Bitget says no"}, nil
}

func (f *fakeVenue) ClosePositions(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes = append(f.closes, payload)
	if len(f.closeErrs) > 0 {
		err := f.closeErrs[0]
		f.closeErrs = f.closeErrs[1:]
		if err != nil {
			return exchange.Envelope{}, err
		}
	}
	return exchange.OKEnvelope(nil), nil
}

func (f *fakeVenue) CancelPlanOrders(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.planCancels = append(f.planCancels, payload)
	return exchange.OKEnvelope(nil), nil
}

func (f *fakeVenue) ListPositions(ctx context.Context, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.OKEnvelope(nil, f.positions...), nil
}

func (f *fakeVenue) ListFills(ctx context.Context, symbol string, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.OKEnvelope(nil, f.fills...), nil
}

func (f *fakeVenue) ListOpenOrders(ctx context.Context, demo bool) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.OKEnvelope(nil, f.openOrders...), nil
}

func (f *fakeVenue) ListContracts(ctx context.Context) (exchange.Envelope, error) {
	return exchange.OKEnvelope(nil), nil
}

func (f *fakeVenue) PositionMode(ctx context.Context) (order.PositionMode, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.mode, nil
}

func (f *fakeVenue) Tickers(ctx context.Context, route order.Route) (exchange.Envelope, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return exchange.OKEnvelope(nil, f.tickers[route]...), nil
}

func (f *fakeVenue) Balances(ctx context.Context) (exchange.BalanceSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balances, f.balancesErr
}

func (f *fakeVenue) counts() (placed, attached, cancelledStops int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.placed), len(f.attached), len(f.cancelledStops)
}

func (f *fakeVenue) attachedAt(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attached[i]
}

func (f *fakeVenue) cancelledStopAt(i int) map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cancelledStops[i]
}

type fakePrices map[string]float64

func (p fakePrices) Price(base string) (pricefeed.Quote, bool) {
	px, ok := p[base]
	if !ok {
		return pricefeed.Quote{}, false
	}
	return pricefeed.Quote{Base: base, Price: px, Source: "feed"}, true
}

type fakeMeta map[string]contract.Meta

func (m fakeMeta) Get(ctx context.Context, symbol string) (contract.Meta, bool) {
	meta, ok := m[symbol]
	return meta, ok
}

type fakeNotifier struct {
	mu    sync.Mutex
	texts []string
}

func (n *fakeNotifier) Notify(ctx context.Context, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.texts = append(n.texts, text)
	return nil
}

func (n *fakeNotifier) sent() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.texts...)
}

type fakeRecorder struct {
	mu       sync.Mutex
	receipts []order.Receipt
}

func (r *fakeRecorder) Record(receipt order.Receipt) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.receipts = append(r.receipts, receipt)
}

type counter struct {
	n atomic.Int64
}

func (c *counter) Inc() { c.n.Add(1) }

func (c *counter) value() int64 { return c.n.Load() }

type testMetrics struct {
	guardrailRejected counter
	stopLossFailed    counter
	fineTuneAdjusted  counter
	fineTuneAbandoned counter
}

func (m *testMetrics) metrics() *metrics.Metrics {
	out := metrics.NewNoop()
	out.GuardrailRejected = &m.guardrailRejected
	out.StopLossFailed = &m.stopLossFailed
	out.FineTuneAdjusted = &m.fineTuneAdjusted
	out.FineTuneAbandoned = &m.fineTuneAbandoned
	return out
}

type harness struct {
	svc     *Service
	venue   *fakeVenue
	journal *journal.Store
	alerts  *fakeNotifier
	audit   *fakeRecorder
	m       *testMetrics
}

func testProfiles() []roster.Profile {
	return []roster.Profile{
		{
			Name:               "Dragonite",
			Element:            "Dragon",
			Sprite:             "dragonite",
			Base:               "BTC",
			SpotSymbol:         "BTCUSDT",
			PerpSymbol:         "BTCUSDT",
			PricePrecision:     1,
			SizePrecision:      4,
			PerpPricePrecision: 1,
			PerpSizePrecision:  3,
			MaxLeverage:        20,
			HPScale:            100,
		},
		{
			Name:           "Pidgey",
			Element:        "Flying",
			Sprite:         "pidgey",
			Base:           "PIDG",
			SpotSymbol:     "PIDGUSDT",
			PricePrecision: 2,
			SizePrecision:  2,
			HPScale:        10,
		},
	}
}

func newHarness(t *testing.T, venue *fakeVenue, opts Options) *harness {
	t.Helper()
	store, err := journal.New(":memory:", 50)
	if err != nil {
		t.Fatalf("journal: %v", err)
	}
	h := &harness{
		venue:   venue,
		journal: store,
		alerts:  &fakeNotifier{},
		audit:   &fakeRecorder{},
		m:       &testMetrics{},
	}
	if opts.EnergyScale == 0 {
		opts.EnergyScale = 1000
	}
	if opts.EnergySource == "" {
		opts.EnergySource = "perp"
	}
	h.svc = New(Deps{
		Adapter:    venue,
		Translator: translator.New(roster.New(testProfiles()), "crossed"),
		Contracts:  fakeMeta{},
		Prices:     fakePrices{"BTC": 50000},
		Tasks:      tasks.New(zap.NewNop()),
		Journal:    store,
		Audit:      h.audit,
		Alerts:     h.alerts,
		Metrics:    h.m.metrics(),
	}, opts, zap.NewNop())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = h.svc.Close(ctx)
		_ = store.Close()
	})
	return h
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for %s", what)
}

func hasEvent(t *testing.T, store *journal.Store, message string) bool {
	t.Helper()
	entries, err := store.Recent(context.Background(), 50)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	for _, e := range entries {
		if strings.Contains(e.Message, message) {
			return true
		}
	}
	return false
}
