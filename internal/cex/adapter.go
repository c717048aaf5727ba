package cex

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/exchange"
	"pokedesk/internal/order"
)

const (
	pathSpotPlaceOrder     = "/api/v2/spot/trade/place-order"
	pathSpotPlacePlan      = "/api/v2/spot/trade/place-plan-order"
	pathSpotCancelPlan     = "/api/v2/spot/trade/cancel-plan-order"
	pathSpotTickers        = "/api/v2/spot/market/tickers"
	pathSpotAssets         = "/api/v2/spot/account/assets"
	pathMixPlaceOrder      = "/api/v2/mix/order/place-order"
	pathMixPlaceTPSL       = "/api/v2/mix/order/place-pos-tpsl"
	pathMixCancelTPSL      = "/api/v2/mix/order/cancel-pos-tpsl"
	pathMixCancelAll       = "/api/v2/mix/order/cancel-all-orders"
	pathMixClosePositions  = "/api/v2/mix/order/close-positions"
	pathMixCancelPlan      = "/api/v2/mix/order/cancel-plan-order"
	pathMixOrdersPending   = "/api/v2/mix/order/orders-pending"
	pathMixFills           = "/api/v2/mix/order/fills"
	pathMixAllPositions    = "/api/v2/mix/position/all-position"
	pathMixAccounts        = "/api/v2/mix/account/accounts"
	pathMixContracts       = "/api/v2/mix/market/contracts"
	pathMixTickers         = "/api/v2/mix/market/tickers"
	positionModeTTL        = 60 * time.Second
	defaultProbeTimeout    = 5 * time.Second
	simulatedOrderMessage  = "Simulated order."
	simulatedStatusFilled  = "filled"
	simulatedStatusCreated = "created"
)

// Adapter speaks the centralized exchange REST API. Without credentials,
// demo calls are simulated locally.
type Adapter struct {
	client       *Client
	probeTimeout time.Duration
	log          *zap.Logger

	mu         sync.Mutex
	mode       order.PositionMode
	modeCached time.Time
}

func New(cfg config.CEXConfig, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	creds := Credentials{APIKey: cfg.APIKey, APISecret: cfg.APISecret, Passphrase: cfg.Passphrase}
	probe := cfg.ProbeTimeout
	if probe <= 0 {
		probe = defaultProbeTimeout
	}
	return &Adapter{
		client:       NewClient(cfg.BaseURL, cfg.DemoBaseURL, creds, cfg.Locale, cfg.Timeout, log),
		probeTimeout: probe,
		log:          log,
	}
}

func (a *Adapter) Name() string {
	return config.VenueCEX
}

func (a *Adapter) HasCredentials() bool {
	return a.client.creds.Complete()
}

func (a *Adapter) simulated(demo bool) bool {
	return demo && !a.HasCredentials()
}

func (a *Adapter) PlaceOrder(ctx context.Context, payload map[string]any, route order.Route, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return simulateOrder(payload, route), nil
	}
	path := pathSpotPlaceOrder
	if route == order.RoutePerp {
		path = pathMixPlaceOrder
	}
	return a.client.do(ctx, request{method: "POST", path: path, body: clone(payload), signed: true, demo: demo})
}

// AttachStopLoss places a protective order. Payloads carrying marginCoin
// target the futures position endpoint, others become spot plan orders.
func (a *Adapter) AttachStopLoss(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	perp := isPerpPayload(payload)
	if a.simulated(demo) {
		data := map[string]any{"status": simulatedStatusCreated, "symbol": payload["symbol"]}
		if perp {
			data["orderId"] = uuid.NewString()
		} else {
			data["planOrderId"] = uuid.NewString()
		}
		return wrap(data, ""), nil
	}
	path := pathSpotPlacePlan
	if perp {
		path = pathMixPlaceTPSL
	}
	return a.client.do(ctx, request{method: "POST", path: path, body: clone(payload), signed: true, demo: demo})
}

func (a *Adapter) CancelStopLoss(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return wrap(map[string]any{"status": "cancelled", "symbol": payload["symbol"]}, ""), nil
	}
	path := pathSpotCancelPlan
	if isPerpPayload(payload) {
		path = pathMixCancelTPSL
	}
	return a.client.do(ctx, request{method: "POST", path: path, body: clone(payload), signed: true, demo: demo})
}

// CancelAll tries the symbol, its _UMCBL variant and its base until one
// attempt is accepted.
func (a *Adapter) CancelAll(ctx context.Context, symbol string, demo bool) (exchange.Envelope, error) {
	normalized := strings.ToUpper(strings.TrimSpace(symbol))
	if a.simulated(demo) {
		return wrap(map[string]any{"symbol": normalized, "attemptedSymbols": []any{normalized}}, ""), nil
	}
	var lastErr error
	var last exchange.Envelope
	for _, candidate := range SymbolCandidates(normalized) {
		env, err := a.client.do(ctx, request{
			method: "POST",
			path:   pathMixCancelAll,
			body:   map[string]any{"productType": productType, "symbol": candidate},
			signed: true,
			demo:   demo,
		})
		if err == nil {
			return env, nil
		}
		last, lastErr = env, err
		a.log.Debug("cancel-all candidate rejected", zap.String("symbol", candidate), zap.Error(err))
	}
	if lastErr == nil {
		lastErr = &exchange.Error{Kind: exchange.KindUnknown, Text: "no symbol to cancel"}
	}
	return last, lastErr
}

// SymbolCandidates lists the spellings the futures API may know a symbol by.
func SymbolCandidates(symbol string) []string {
	if symbol == "" {
		return nil
	}
	out := []string{symbol}
	if base, ok := strings.CutSuffix(symbol, "_UMCBL"); ok {
		out = append(out, base)
	} else {
		out = append(out, symbol+"_UMCBL")
	}
	if prefix, _, ok := strings.Cut(symbol, "_"); ok {
		out = append(out, prefix)
	}
	seen := map[string]bool{}
	uniq := out[:0]
	for _, s := range out {
		if s != "" && !seen[s] {
			seen[s] = true
			uniq = append(uniq, s)
		}
	}
	return uniq
}

func (a *Adapter) ClosePositions(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return wrap(map[string]any{"symbol": payload["symbol"], "successList": []any{}}, ""), nil
	}
	return a.client.do(ctx, request{method: "POST", path: pathMixClosePositions, body: clone(payload), signed: true, demo: demo})
}

func (a *Adapter) CancelPlanOrders(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return wrap(map[string]any{"symbol": payload["symbol"]}, ""), nil
	}
	return a.client.do(ctx, request{method: "POST", path: pathMixCancelPlan, body: clone(payload), signed: true, demo: demo})
}

func (a *Adapter) ListPositions(ctx context.Context, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return exchange.OKEnvelope(nil), nil
	}
	q := url.Values{"productType": {productType}, "marginCoin": {"USDT"}}
	return a.client.do(ctx, request{method: "GET", path: pathMixAllPositions, query: q, signed: true, demo: demo})
}

func (a *Adapter) ListFills(ctx context.Context, symbol string, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return exchange.OKEnvelope(nil), nil
	}
	q := url.Values{"productType": {productType}}
	if symbol != "" {
		q.Set("symbol", symbol)
	}
	return a.client.do(ctx, request{method: "GET", path: pathMixFills, query: q, signed: true, demo: demo})
}

func (a *Adapter) ListOpenOrders(ctx context.Context, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		return exchange.OKEnvelope(nil), nil
	}
	q := url.Values{"productType": {productType}}
	return a.client.do(ctx, request{method: "GET", path: pathMixOrdersPending, query: q, signed: true, demo: demo})
}

func (a *Adapter) ListContracts(ctx context.Context) (exchange.Envelope, error) {
	q := url.Values{"productType": {productType}}
	return a.client.do(ctx, request{method: "GET", path: pathMixContracts, query: q})
}

func (a *Adapter) Tickers(ctx context.Context, route order.Route) (exchange.Envelope, error) {
	if route == order.RouteSpot {
		return a.client.do(ctx, request{method: "GET", path: pathSpotTickers})
	}
	q := url.Values{"productType": {productType}}
	return a.client.do(ctx, request{method: "GET", path: pathMixTickers, query: q})
}

// PositionMode queries the futures account and caches the answer for a
// minute. Without credentials the mode is unknown.
func (a *Adapter) PositionMode(ctx context.Context) (order.PositionMode, error) {
	if !a.HasCredentials() {
		return order.PositionModeUnknown, nil
	}
	a.mu.Lock()
	if a.mode != order.PositionModeUnknown && time.Since(a.modeCached) < positionModeTTL {
		mode := a.mode
		a.mu.Unlock()
		return mode, nil
	}
	a.mu.Unlock()

	probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
	defer cancel()
	env, err := a.client.do(probeCtx, request{
		method: "GET",
		path:   pathMixAccounts,
		query:  url.Values{"productType": {productType}},
		signed: true,
	})
	if err != nil {
		a.mu.Lock()
		mode := a.mode
		a.mu.Unlock()
		return mode, err
	}
	mode := extractPositionMode(env.Records)
	if mode != order.PositionModeUnknown {
		a.mu.Lock()
		if mode != a.mode {
			a.log.Info("position mode detected", zap.String("mode", string(mode)))
		}
		a.mode = mode
		a.modeCached = time.Now()
		a.mu.Unlock()
	}
	return mode, nil
}

func extractPositionMode(records []map[string]any) order.PositionMode {
	for _, entry := range records {
		for _, key := range []string{"positionMode", "posMode", "holdMode"} {
			if v, ok := entry[key]; ok {
				if mode := ParsePositionMode(v); mode != order.PositionModeUnknown {
					return mode
				}
			}
		}
	}
	return order.PositionModeUnknown
}

// ParsePositionMode accepts the numeric and textual spellings seen on the
// account endpoints.
func ParsePositionMode(v any) order.PositionMode {
	if f, ok := v.(float64); ok {
		switch int(f) {
		case 1:
			return order.PositionModeOneWay
		case 2:
			return order.PositionModeHedge
		}
		return order.PositionModeUnknown
	}
	text := strings.ToLower(strings.TrimSpace(exchange.StringAny(v)))
	text = strings.NewReplacer("-", "_", " ", "_").Replace(text)
	switch text {
	case "":
		return order.PositionModeUnknown
	case "oneway", "one_way", "onewaymode", "single", "one_way_mode":
		return order.PositionModeOneWay
	case "hedge", "hedging", "hedge_mode", "two_way", "dual":
		return order.PositionModeHedge
	}
	if strings.Contains(text, "hedge") {
		return order.PositionModeHedge
	}
	if strings.Contains(text, "one") && strings.Contains(text, "way") {
		return order.PositionModeOneWay
	}
	return order.PositionModeUnknown
}

// Balances sums the USDT futures equity and the USDT spot balance. It fails
// only when both probes fail.
func (a *Adapter) Balances(ctx context.Context) (exchange.BalanceSummary, error) {
	if !a.HasCredentials() {
		return exchange.BalanceSummary{}, exchange.ErrCredentialsMissing
	}
	policy := exchange.DefaultRetryPolicy()
	var summary exchange.BalanceSummary
	var errs []error
	var available []float64
	var totals []float64

	perp, err := exchange.Do(ctx, policy, func(ctx context.Context) (exchange.Envelope, error) {
		probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
		defer cancel()
		return a.client.do(probeCtx, request{method: "GET", path: pathMixAccounts, query: url.Values{"productType": {productType}}, signed: true})
	})
	if err != nil {
		errs = append(errs, err)
	} else if avail, total, ok := pickBalance(perp.Records, "marginCoin",
		[]string{"available", "availableEq", "availBal", "usdtAvailable", "crossedMaxAvailable"},
		[]string{"accountEquity", "equity", "usdtEquity", "totalEq", "marginEquity"}); ok {
		summary.Perp = &avail
		available = append(available, avail)
		totals = append(totals, total)
	}

	spot, err := exchange.Do(ctx, policy, func(ctx context.Context) (exchange.Envelope, error) {
		probeCtx, cancel := context.WithTimeout(ctx, a.probeTimeout)
		defer cancel()
		return a.client.do(probeCtx, request{method: "GET", path: pathSpotAssets, query: url.Values{"coin": {"USDT"}}, signed: true})
	})
	if err != nil {
		errs = append(errs, err)
	} else if avail, total, ok := pickBalance(spot.Records, "coin",
		[]string{"available", "availableBalance", "availableForTrade", "free"},
		[]string{"equity", "usdtEquity", "total", "balance"}); ok {
		summary.Spot = &avail
		available = append(available, avail)
		totals = append(totals, total)
	}

	if summary.Perp == nil && summary.Spot == nil {
		if len(errs) > 0 {
			return summary, errors.Join(errs...)
		}
		return summary, &exchange.Error{Kind: exchange.KindUnknown, Text: "no USDT balance reported"}
	}
	for _, t := range totals {
		summary.Total += t
	}
	var sum float64
	for _, v := range available {
		sum += v
	}
	summary.Available = &sum
	a.log.Debug("energy fetched", zap.Float64("total", summary.Total), zap.String("source", summary.Source()))
	return summary, nil
}

// pickBalance finds the USDT row and returns (available, total). A missing
// total falls back to available and vice versa.
func pickBalance(records []map[string]any, coinKey string, availKeys, totalKeys []string) (float64, float64, bool) {
	for _, entry := range records {
		if coin := exchange.String(entry, coinKey); coin != "" && !strings.EqualFold(coin, "USDT") {
			continue
		}
		avail, hasAvail := exchange.Float(entry, availKeys...)
		total, hasTotal := exchange.Float(entry, totalKeys...)
		switch {
		case hasAvail && hasTotal:
			return max(0, avail), max(0, total), true
		case hasAvail:
			return max(0, avail), max(0, avail), true
		case hasTotal:
			return max(0, total), max(0, total), true
		}
	}
	return 0, 0, false
}

func isPerpPayload(payload map[string]any) bool {
	_, ok := payload["marginCoin"]
	return ok
}

func clone(payload map[string]any) map[string]any {
	out := make(map[string]any, len(payload))
	for k, v := range payload {
		out[k] = v
	}
	return out
}

func wrap(data map[string]any, msg string) exchange.Envelope {
	raw := map[string]any{"code": "00000", "msg": msg, "data": data}
	env := exchange.OKEnvelope(raw, data)
	env.Msg = msg
	return env
}

func simulateOrder(payload map[string]any, route order.Route) exchange.Envelope {
	data := map[string]any{
		"orderId":   uuid.NewString(),
		"clientOid": payload["clientOid"],
		"status":    simulatedStatusFilled,
		"symbol":    payload["symbol"],
		"route":     string(route),
		"price":     payload["price"],
		"size":      payload["size"],
		"holdSide":  payload["holdSide"],
	}
	return wrap(data, simulatedOrderMessage)
}
