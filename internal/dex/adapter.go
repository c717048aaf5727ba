package dex

import (
	"context"
	"encoding/hex"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/contract"
	"pokedesk/internal/exchange"
	hlexchange "pokedesk/internal/hl/exchange"
	"pokedesk/internal/hl/rest"
	"pokedesk/internal/order"
)

const (
	assetsTTL             = 5 * time.Minute
	maxPriceDecimals      = 6
	maxSignificantFigures = 5
	simulatedOrderMessage = "Simulated order."
)

// InfoAPI is the read side of the venue.
type InfoAPI interface {
	Universe(ctx context.Context) ([]map[string]any, error)
	AllMids(ctx context.Context) (map[string]float64, error)
	ClearinghouseState(ctx context.Context, user string) (map[string]any, error)
	UserFills(ctx context.Context, user string) ([]map[string]any, error)
	FrontendOpenOrders(ctx context.Context, user string) ([]map[string]any, error)
}

// TradeAPI submits signed actions.
type TradeAPI interface {
	PlaceOrders(ctx context.Context, orders []hlexchange.OrderWire, grouping string) (map[string]any, error)
	CancelOrder(ctx context.Context, asset int, orderID int64) (map[string]any, error)
	CancelByCloid(ctx context.Context, asset int, cloid string) (map[string]any, error)
	UpdateLeverage(ctx context.Context, asset int, isCross bool, leverage int) (map[string]any, error)
}

type asset struct {
	index       int
	name        string
	szDecimals  int
	maxLeverage int
}

// Adapter maps translator payloads onto signed perp actions. The venue
// nets positions per coin and is reported as hedge mode; spot routes are
// rejected.
type Adapter struct {
	info     InfoAPI
	trade    TradeAPI
	user     string
	slippage float64
	log      *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	assets   map[string]asset
	assetsAt time.Time
}

func New(cfg config.DEXConfig, log *zap.Logger) (*Adapter, error) {
	if log == nil {
		log = zap.NewNop()
	}
	info := rest.New(cfg.BaseURL, cfg.Timeout, log)
	var trade TradeAPI
	user := strings.TrimSpace(cfg.WalletAddress)
	if cfg.HasCredentials() {
		signer, err := hlexchange.NewSigner(cfg.PrivateKey, !cfg.Testnet)
		if err != nil {
			return nil, fmt.Errorf("dex signer: %w", err)
		}
		client, err := hlexchange.NewClient(cfg.BaseURL, cfg.Timeout, signer, cfg.VaultAddress, log)
		if err != nil {
			return nil, fmt.Errorf("dex client: %w", err)
		}
		trade = client
		if cfg.VaultAddress != "" {
			user = cfg.VaultAddress
		}
	}
	return NewWithClients(info, trade, user, cfg.MarketSlippage, log), nil
}

// NewWithClients builds an adapter over explicit clients. A nil trade API
// leaves the adapter read-only and simulates demo orders.
func NewWithClients(info InfoAPI, trade TradeAPI, user string, slippage float64, log *zap.Logger) *Adapter {
	if log == nil {
		log = zap.NewNop()
	}
	if slippage <= 0 {
		slippage = 0.05
	}
	return &Adapter{info: info, trade: trade, user: user, slippage: slippage, log: log, now: time.Now}
}

func (a *Adapter) Name() string {
	return config.VenueDEX
}

func (a *Adapter) HasCredentials() bool {
	return a.trade != nil && a.user != ""
}

func (a *Adapter) simulated(demo bool) bool {
	return demo || a.trade == nil
}

func (a *Adapter) PlaceOrder(ctx context.Context, payload map[string]any, route order.Route, demo bool) (exchange.Envelope, error) {
	if route == order.RouteSpot {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindUnknown, Text: "spot orders are not available on this venue"}
	}
	if a.simulated(demo) {
		return simulateOrder(payload, route), nil
	}
	coin := coinOf(payload)
	info, err := a.asset(ctx, coin)
	if err != nil {
		return exchange.Envelope{}, err
	}
	if lev := exchange.IntAny(payload["leverage"], 0); lev > 0 {
		isCross := !strings.EqualFold(exchange.String(payload, "marginMode"), "isolated")
		if _, err := a.trade.UpdateLeverage(ctx, info.index, isCross, min(lev, max(1, info.maxLeverage))); err != nil {
			a.log.Warn("leverage update rejected", zap.String("coin", coin), zap.Error(err))
		}
	}
	isBuy := strings.EqualFold(exchange.String(payload, "side"), "buy")
	size, ok := exchange.Float(payload, "size")
	if !ok || size <= 0 {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindInvalidStep, Text: "order size is missing"}
	}
	cloid := Cloid(exchange.String(payload, "clientOid"))
	reduceOnly := strings.EqualFold(exchange.String(payload, "reduceOnly"), "YES") ||
		strings.EqualFold(exchange.String(payload, "tradeSide"), "close")

	var px float64
	tif := hlexchange.TifIoc
	if strings.EqualFold(exchange.String(payload, "orderType"), "limit") {
		px, _ = exchange.Float(payload, "price")
		tif = tifFor(exchange.String(payload, "force"))
	} else {
		px, err = a.slippagePrice(ctx, info, isBuy)
		if err != nil {
			return exchange.Envelope{}, err
		}
	}
	if px <= 0 {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindInvalidScale, Text: "order price is missing"}
	}
	entry, err := hlexchange.LimitOrderWire(info.index, isBuy, size, WirePrice(px, info.szDecimals), reduceOnly, tif, cloid)
	if err != nil {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindInvalidScale, Text: err.Error(), Err: err}
	}
	orders := []hlexchange.OrderWire{entry}
	grouping := hlexchange.GroupingNone
	if trigger, ok := exchange.Float(payload, "presetStopLossTriggerPrice", "presetStopLossPrice"); ok && trigger > 0 {
		stop, err := a.stopWire(info, !isBuy, size, trigger, "")
		if err != nil {
			return exchange.Envelope{}, err
		}
		orders = append(orders, stop)
		grouping = hlexchange.GroupingNormalTPSL
	}
	resp, err := a.trade.PlaceOrders(ctx, orders, grouping)
	if err != nil {
		return exchange.Envelope{}, err
	}
	a.log.Info("dex order placed", zap.String("coin", coin), zap.Bool("buy", isBuy), zap.Float64("size", size), zap.Int("orders", len(orders)))
	return orderEnvelope(resp, coin, exchange.String(payload, "clientOid")), nil
}

// AttachStopLoss places a reduce-only market trigger closing holdSide.
func (a *Adapter) AttachStopLoss(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	if a.simulated(demo) {
		data := map[string]any{"orderId": uuid.NewString(), "status": "created", "symbol": payload["symbol"]}
		return wrap(data, ""), nil
	}
	coin := coinOf(payload)
	info, err := a.asset(ctx, coin)
	if err != nil {
		return exchange.Envelope{}, err
	}
	trigger, ok := exchange.Float(payload, "triggerPrice", "stopLossTriggerPrice")
	if !ok || trigger <= 0 {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindInvalidScale, Text: "trigger price is missing"}
	}
	size, ok := exchange.Float(payload, "size")
	if !ok || size <= 0 {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindInvalidStep, Text: "stop size is missing"}
	}
	isBuy := strings.EqualFold(exchange.String(payload, "holdSide"), "short")
	if side := exchange.String(payload, "side"); side != "" {
		isBuy = strings.EqualFold(side, "buy")
	}
	stop, err := a.stopWire(info, isBuy, size, trigger, Cloid(exchange.String(payload, "clientOid")))
	if err != nil {
		return exchange.Envelope{}, err
	}
	resp, err := a.trade.PlaceOrders(ctx, []hlexchange.OrderWire{stop}, hlexchange.GroupingNone)
	if err != nil {
		return exchange.Envelope{}, err
	}
	a.log.Info("dex stop-loss placed", zap.String("coin", coin), zap.Float64("trigger", trigger), zap.Float64("size", size))
	return orderEnvelope(resp, coin, ""), nil
}

func (a *Adapter) stopWire(info asset, isBuy bool, size, trigger float64, cloid string) (hlexchange.OrderWire, error) {
	limit := trigger * (1 - a.slippage)
	if isBuy {
		limit = trigger * (1 + a.slippage)
	}
	wire, err := hlexchange.StopLossOrderWire(info.index, isBuy, size, WirePrice(trigger, info.szDecimals), WirePrice(limit, info.szDecimals), cloid)
	if err != nil {
		return hlexchange.OrderWire{}, &exchange.Error{Kind: exchange.KindInvalidScale, Text: err.Error(), Err: err}
	}
	return wire, nil
}

// CancelStopLoss cancels by numeric order id, or by cloid for 0x references.
func (a *Adapter) CancelStopLoss(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	ref := exchange.String(payload, "orderId", "planId", "tpslId")
	if a.simulated(demo) {
		return wrap(map[string]any{"status": "cancelled", "orderId": ref, "symbol": payload["symbol"]}, ""), nil
	}
	if ref == "" {
		return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindUnknown, Text: "orderId or planId is required to cancel a stop-loss"}
	}
	return a.cancelRef(ctx, coinOf(payload), ref)
}

func (a *Adapter) cancelRef(ctx context.Context, coin, ref string) (exchange.Envelope, error) {
	info, err := a.asset(ctx, coin)
	if err != nil {
		return exchange.Envelope{}, err
	}
	var resp map[string]any
	if strings.HasPrefix(ref, "0x") {
		resp, err = a.trade.CancelByCloid(ctx, info.index, ref)
	} else {
		oid, perr := strconv.ParseInt(ref, 10, 64)
		if perr != nil {
			return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindUnknown, Text: fmt.Sprintf("invalid order id %q", ref), Err: perr}
		}
		resp, err = a.trade.CancelOrder(ctx, info.index, oid)
	}
	if err != nil {
		return exchange.Envelope{}, err
	}
	return exchange.OKEnvelope(resp, map[string]any{"orderId": ref, "symbol": coin, "status": "cancelled"}), nil
}

// CancelAll cancels every open order on the coin one by one.
func (a *Adapter) CancelAll(ctx context.Context, symbol string, demo bool) (exchange.Envelope, error) {
	coin := exchange.Base(symbol)
	if a.simulated(demo) {
		return wrap(map[string]any{"symbol": coin, "attemptedSymbols": []any{coin}}, ""), nil
	}
	open, err := a.info.FrontendOpenOrders(ctx, a.user)
	if err != nil {
		return exchange.Envelope{}, err
	}
	var cancelled []any
	var lastErr error
	for _, o := range open {
		if !strings.EqualFold(exchange.String(o, "coin"), coin) {
			continue
		}
		oid := exchange.String(o, "oid")
		if _, err := a.cancelRef(ctx, coin, oid); err != nil {
			lastErr = err
			a.log.Debug("cancel rejected", zap.String("coin", coin), zap.String("oid", oid), zap.Error(err))
			continue
		}
		cancelled = append(cancelled, oid)
	}
	if lastErr != nil && len(cancelled) == 0 {
		return exchange.Envelope{}, lastErr
	}
	return wrap(map[string]any{"symbol": coin, "attemptedSymbols": []any{coin}, "cancelled": cancelled}, "Orders cancelled"), nil
}

// ClosePositions flattens the coin's position with a reduce-only IOC at the
// slippage price. A holdSide in the payload restricts the close to that side.
func (a *Adapter) ClosePositions(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	coin := coinOf(payload)
	if a.simulated(demo) {
		return wrap(map[string]any{"symbol": coin, "status": "success"}, ""), nil
	}
	positions, err := a.positions(ctx)
	if err != nil {
		return exchange.Envelope{}, err
	}
	hold := strings.ToLower(exchange.String(payload, "holdSide"))
	for _, pos := range positions {
		if !strings.EqualFold(exchange.String(pos, "symbol"), coin) {
			continue
		}
		side := exchange.String(pos, "holdSide")
		if hold != "" && side != hold {
			continue
		}
		size, _ := exchange.Float(pos, "total")
		info, err := a.asset(ctx, coin)
		if err != nil {
			return exchange.Envelope{}, err
		}
		isBuy := side == "short"
		px, err := a.slippagePrice(ctx, info, isBuy)
		if err != nil {
			return exchange.Envelope{}, err
		}
		wire, err := hlexchange.LimitOrderWire(info.index, isBuy, size, WirePrice(px, info.szDecimals), true, hlexchange.TifIoc, "")
		if err != nil {
			return exchange.Envelope{}, &exchange.Error{Kind: exchange.KindInvalidStep, Text: err.Error(), Err: err}
		}
		resp, err := a.trade.PlaceOrders(ctx, []hlexchange.OrderWire{wire}, hlexchange.GroupingNone)
		if err != nil {
			return exchange.Envelope{}, err
		}
		a.log.Info("dex position closed", zap.String("coin", coin), zap.Float64("size", size))
		return orderEnvelope(resp, coin, ""), nil
	}
	return wrap(map[string]any{"symbol": coin, "status": "no_position"}, ""), nil
}

func (a *Adapter) CancelPlanOrders(ctx context.Context, payload map[string]any, demo bool) (exchange.Envelope, error) {
	ref := exchange.String(payload, "orderId", "planId")
	if ref == "" || a.simulated(demo) {
		return a.CancelAll(ctx, coinOf(payload), demo)
	}
	return a.cancelRef(ctx, coinOf(payload), ref)
}

func (a *Adapter) ListPositions(ctx context.Context, demo bool) (exchange.Envelope, error) {
	if !a.HasCredentials() {
		return exchange.OKEnvelope(nil), nil
	}
	positions, err := a.positions(ctx)
	if err != nil {
		return exchange.Envelope{}, err
	}
	return exchange.OKEnvelope(positions, positions...), nil
}

func (a *Adapter) positions(ctx context.Context) ([]map[string]any, error) {
	state, err := a.info.ClearinghouseState(ctx, a.user)
	if err != nil {
		return nil, err
	}
	var out []map[string]any
	for _, entry := range exchange.Maps(state["assetPositions"]) {
		pos, _ := exchange.ToMap(entry["position"])
		szi, ok := exchange.Float(pos, "szi")
		if !ok || szi == 0 {
			continue
		}
		side := "long"
		if szi < 0 {
			side = "short"
		}
		lev, _ := exchange.ToMap(pos["leverage"])
		out = append(out, map[string]any{
			"symbol":        exchange.String(pos, "coin"),
			"holdSide":      side,
			"total":         strconv.FormatFloat(math.Abs(szi), 'f', -1, 64),
			"openPriceAvg":  exchange.String(pos, "entryPx"),
			"liquidationPx": exchange.String(pos, "liquidationPx"),
			"unrealizedPL":  exchange.String(pos, "unrealizedPnl"),
			"usdtValue":     exchange.String(pos, "positionValue"),
			"margin":        exchange.String(pos, "marginUsed"),
			"leverage":      exchange.String(lev, "value"),
			"marginMode":    exchange.String(lev, "type"),
		})
	}
	return out, nil
}

func (a *Adapter) ListFills(ctx context.Context, symbol string, demo bool) (exchange.Envelope, error) {
	if !a.HasCredentials() {
		return exchange.OKEnvelope(nil), nil
	}
	fills, err := a.info.UserFills(ctx, a.user)
	if err != nil {
		return exchange.Envelope{}, err
	}
	coin := exchange.Base(symbol)
	var out []map[string]any
	for _, f := range fills {
		if coin != "" && !strings.EqualFold(exchange.String(f, "coin"), coin) {
			continue
		}
		out = append(out, map[string]any{
			"orderId":   exchange.String(f, "oid"),
			"clientOid": exchange.String(f, "cloid"),
			"symbol":    exchange.String(f, "coin"),
			"side":      sideName(exchange.String(f, "side")),
			"price":     exchange.String(f, "px"),
			"size":      exchange.String(f, "sz"),
			"fee":       exchange.String(f, "fee"),
			"cTime":     exchange.String(f, "time"),
			"tradeId":   exchange.String(f, "tid"),
		})
	}
	return exchange.OKEnvelope(fills, out...), nil
}

func (a *Adapter) ListOpenOrders(ctx context.Context, demo bool) (exchange.Envelope, error) {
	if !a.HasCredentials() {
		return exchange.OKEnvelope(nil), nil
	}
	open, err := a.info.FrontendOpenOrders(ctx, a.user)
	if err != nil {
		return exchange.Envelope{}, err
	}
	out := make([]map[string]any, 0, len(open))
	for _, o := range open {
		rec := map[string]any{
			"orderId":     exchange.String(o, "oid"),
			"clientOid":   exchange.String(o, "cloid"),
			"symbol":      exchange.String(o, "coin"),
			"productType": "perp",
			"side":        sideName(exchange.String(o, "side")),
			"orderType":   strings.ToLower(exchange.String(o, "orderType")),
			"price":       exchange.String(o, "limitPx"),
			"size":        exchange.String(o, "sz", "origSz"),
			"status":      "live",
			"uTime":       exchange.String(o, "timestamp"),
		}
		if trigger := exchange.String(o, "triggerPx"); trigger != "" && trigger != "0.0" {
			rec["triggerPrice"] = trigger
			rec["planType"] = "sl"
		}
		if reduce, ok := o["reduceOnly"].(bool); ok && reduce {
			rec["tradeSide"] = "close"
		}
		out = append(out, rec)
	}
	return exchange.OKEnvelope(open, out...), nil
}

// ListContracts reports each perp with its size decimals and the price
// decimals the venue allows for it.
func (a *Adapter) ListContracts(ctx context.Context) (exchange.Envelope, error) {
	assets, err := a.refreshAssets(ctx)
	if err != nil {
		return exchange.Envelope{}, err
	}
	out := make([]map[string]any, 0, len(assets))
	for _, as := range assets {
		rec := map[string]any{
			"symbol":     as.name,
			"sizeScale":  as.szDecimals,
			"priceScale": max(0, maxPriceDecimals-as.szDecimals),
			"sizeTick":   contract.TickForScale(as.szDecimals),
		}
		if as.maxLeverage > 0 {
			rec["maxLeverage"] = as.maxLeverage
		}
		out = append(out, rec)
	}
	return exchange.OKEnvelope(nil, out...), nil
}

func (a *Adapter) PositionMode(ctx context.Context) (order.PositionMode, error) {
	return order.PositionModeHedge, nil
}

func (a *Adapter) Tickers(ctx context.Context, route order.Route) (exchange.Envelope, error) {
	mids, err := a.info.AllMids(ctx)
	if err != nil {
		return exchange.Envelope{}, err
	}
	out := make([]map[string]any, 0, len(mids))
	for coin, px := range mids {
		if strings.HasPrefix(coin, "@") {
			continue
		}
		s := strconv.FormatFloat(px, 'f', -1, 64)
		out = append(out, map[string]any{"symbol": coin, "lastPr": s, "markPrice": s})
	}
	return exchange.OKEnvelope(mids, out...), nil
}

// Balances reads the perp margin summary; available is account value minus
// margin in use.
func (a *Adapter) Balances(ctx context.Context) (exchange.BalanceSummary, error) {
	if !a.HasCredentials() {
		return exchange.BalanceSummary{}, exchange.ErrCredentialsMissing
	}
	state, err := exchange.Do(ctx, exchange.DefaultRetryPolicy(), func(ctx context.Context) (map[string]any, error) {
		return a.info.ClearinghouseState(ctx, a.user)
	})
	if err != nil {
		return exchange.BalanceSummary{}, err
	}
	summary, _ := exchange.ToMap(state["marginSummary"])
	value, ok := exchange.Float(summary, "accountValue")
	if !ok {
		return exchange.BalanceSummary{}, &exchange.Error{Kind: exchange.KindUnknown, Text: "no margin summary reported"}
	}
	used, _ := exchange.Float(summary, "totalMarginUsed")
	available := max(0, value-used)
	a.log.Debug("energy fetched", zap.Float64("total", value), zap.Float64("available", available))
	return exchange.BalanceSummary{Total: value, Available: &available, Perp: &available}, nil
}

func (a *Adapter) asset(ctx context.Context, coin string) (asset, error) {
	a.mu.Lock()
	info, ok := a.assets[coin]
	fresh := a.now().Sub(a.assetsAt) < assetsTTL
	a.mu.Unlock()
	if ok && fresh {
		return info, nil
	}
	if _, err := a.refreshAssets(ctx); err != nil {
		if ok {
			return info, nil
		}
		return asset{}, err
	}
	a.mu.Lock()
	info, ok = a.assets[coin]
	a.mu.Unlock()
	if !ok {
		return asset{}, &exchange.Error{Kind: exchange.KindUnknown, Text: fmt.Sprintf("unknown perp market %s", coin)}
	}
	return info, nil
}

func (a *Adapter) refreshAssets(ctx context.Context) ([]asset, error) {
	universe, err := a.info.Universe(ctx)
	if err != nil {
		return nil, err
	}
	list := make([]asset, 0, len(universe))
	byName := make(map[string]asset, len(universe))
	for i, entry := range universe {
		name := strings.ToUpper(exchange.String(entry, "name"))
		if name == "" {
			continue
		}
		as := asset{
			index:       i,
			name:        name,
			szDecimals:  exchange.IntAny(entry["szDecimals"], 0),
			maxLeverage: exchange.IntAny(entry["maxLeverage"], 0),
		}
		list = append(list, as)
		byName[name] = as
	}
	a.mu.Lock()
	a.assets = byName
	a.assetsAt = a.now()
	a.mu.Unlock()
	return list, nil
}

func (a *Adapter) slippagePrice(ctx context.Context, info asset, isBuy bool) (float64, error) {
	mids, err := a.info.AllMids(ctx)
	if err != nil {
		return 0, err
	}
	mid, ok := mids[info.name]
	if !ok || mid <= 0 {
		return 0, &exchange.Error{Kind: exchange.KindUnknown, Text: fmt.Sprintf("no mid price for %s", info.name)}
	}
	if isBuy {
		return mid * (1 + a.slippage), nil
	}
	return mid * (1 - a.slippage), nil
}

// WirePrice floors px to five significant figures and to the decimals the
// asset allows. Integer prices are always accepted.
func WirePrice(px float64, szDecimals int) float64 {
	if px <= 0 {
		return px
	}
	decimals := max(0, maxPriceDecimals-szDecimals)
	intDigits := int(math.Floor(math.Log10(px))) + 1
	if sig := maxSignificantFigures - intDigits; sig < decimals {
		decimals = max(0, sig)
	}
	return contract.FloorDecimals(px, decimals)
}

// Cloid renders a client order id as the venue's 16-byte hex form. Tokens
// that are not UUIDs get a fresh one.
func Cloid(token string) string {
	id, err := uuid.Parse(token)
	if err != nil {
		if token == "" {
			return ""
		}
		id = uuid.New()
	}
	return "0x" + hex.EncodeToString(id[:])
}

func tifFor(force string) hlexchange.Tif {
	switch strings.ToLower(force) {
	case "post_only", "alo":
		return hlexchange.TifAlo
	case "ioc", "fok":
		return hlexchange.TifIoc
	}
	return hlexchange.TifGtc
}

func coinOf(payload map[string]any) string {
	return exchange.Base(exchange.String(payload, "symbol"))
}

func sideName(side string) string {
	if strings.EqualFold(side, "B") || strings.EqualFold(side, "buy") {
		return "buy"
	}
	return "sell"
}

func orderEnvelope(resp map[string]any, coin, clientOid string) exchange.Envelope {
	rec := map[string]any{
		"orderId":   hlexchange.OrderIDFromResponse(resp),
		"clientOid": clientOid,
		"symbol":    coin,
		"status":    "live",
	}
	if px, sz, ok := hlexchange.FillFromResponse(resp); ok {
		rec["status"] = "filled"
		rec["price"] = px
		rec["size"] = sz
	}
	return exchange.OKEnvelope(resp, rec)
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
		"status":    "filled",
		"symbol":    payload["symbol"],
		"route":     string(route),
		"price":     payload["price"],
		"size":      payload["size"],
		"holdSide":  payload["holdSide"],
	}
	return wrap(data, simulatedOrderMessage)
}
