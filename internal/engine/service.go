package engine

import (
	"context"
	"errors"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/contract"
	"pokedesk/internal/exchange"
	"pokedesk/internal/journal"
	"pokedesk/internal/metrics"
	"pokedesk/internal/order"
	"pokedesk/internal/pricefeed"
	"pokedesk/internal/tasks"
	"pokedesk/internal/translator"
)

const (
	defaultPriceScale       = 1
	defaultFineTuneAttempts = 12
	defaultFineTuneInterval = 500 * time.Millisecond
	recentEventLimit        = 50
)

// MetaSource resolves contract constraints by symbol.
type MetaSource interface {
	Get(ctx context.Context, symbol string) (contract.Meta, bool)
}

type PriceSource interface {
	Price(base string) (pricefeed.Quote, bool)
}

// Journal stores the adventure log.
type Journal interface {
	Append(ctx context.Context, entry journal.Entry) error
	Recent(ctx context.Context, limit int) ([]journal.Entry, error)
}

// Recorder receives receipts for audit. It must not block.
type Recorder interface {
	Record(receipt order.Receipt)
}

type Notifier interface {
	Notify(ctx context.Context, text string) error
}

type Deps struct {
	Adapter    exchange.Adapter
	Translator *translator.Translator
	Contracts  MetaSource
	Prices     PriceSource
	Tasks      *tasks.Registry
	Journal    Journal
	Audit      Recorder
	Alerts     Notifier
	Metrics    *metrics.Metrics
}

type Options struct {
	Cooldown          time.Duration
	MaxPartySize      int
	MinimumReserve    float64
	DemoMode          bool
	EnergyScale       float64
	EnergySource      string
	ShowEnergyNumbers bool
	EmbedStopLoss     bool
	DefaultLevel      int
	PinnedBases       []string
	FineTuneAttempts  int
	FineTuneInterval  time.Duration
}

// OptionsFromConfig maps the guardrail and order sections of cfg.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		Cooldown:          cfg.Guardrails.Cooldown,
		MaxPartySize:      cfg.Guardrails.MaxPartySize,
		MinimumReserve:    cfg.Guardrails.MinimumReserve,
		DemoMode:          cfg.Orders.DemoMode,
		EnergyScale:       cfg.Orders.EnergyScale,
		EnergySource:      cfg.Orders.EnergySource,
		ShowEnergyNumbers: cfg.Orders.ShowEnergyNumbersValue(),
		EmbedStopLoss:     cfg.Orders.EmbedStopLossValue(),
		DefaultLevel:      cfg.Orders.DefaultLevel,
		PinnedBases:       cfg.PriceFeed.PinnedBases,
	}
}

// Service is the order engine. It owns guardrail bookkeeping and the
// percent stop-loss fine-tune jobs.
type Service struct {
	adapter    exchange.Adapter
	translator *translator.Translator
	contracts  MetaSource
	prices     PriceSource
	tasks      *tasks.Registry
	journal    Journal
	audit      Recorder
	alerts     Notifier
	metrics    *metrics.Metrics
	opts       Options
	log        *zap.Logger
	now        func() time.Time

	// orderMu serializes opening orders from guardrail check to the
	// last-encounter stamp.
	orderMu sync.Mutex

	mu            sync.Mutex
	lastEncounter time.Time
	lastDemo      bool
	positionMode  order.PositionMode
	holdSides     map[string]string
	energy        energyState
	guardrails    order.GuardrailStatus
}

type energyState struct {
	present  bool
	fill     float64
	source   string
	snapshot float64
	online   bool
}

func New(deps Deps, opts Options, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewNoop()
	}
	if deps.Tasks == nil {
		deps.Tasks = tasks.New(log)
	}
	if opts.FineTuneAttempts <= 0 {
		opts.FineTuneAttempts = defaultFineTuneAttempts
	}
	if opts.FineTuneInterval <= 0 {
		opts.FineTuneInterval = defaultFineTuneInterval
	}
	if opts.DefaultLevel <= 0 {
		opts.DefaultLevel = 1
	}
	s := &Service{
		adapter:    deps.Adapter,
		translator: deps.Translator,
		contracts:  deps.Contracts,
		prices:     deps.Prices,
		tasks:      deps.Tasks,
		journal:    deps.Journal,
		audit:      deps.Audit,
		alerts:     deps.Alerts,
		metrics:    deps.Metrics,
		opts:       opts,
		log:        log,
		now:        time.Now,
		lastDemo:   opts.DemoMode,
		holdSides:  make(map[string]string),
		energy:     energyState{source: "none"},
	}
	s.guardrails = order.GuardrailStatus{
		CooldownSeconds: int(opts.Cooldown / time.Second),
		MaxPartySize:    opts.MaxPartySize,
		MinimumEnergy:   opts.MinimumReserve,
	}
	return s
}

func (s *Service) resolveDemo(o order.EncounterOrder) bool {
	return o.DemoMode || s.opts.DemoMode
}

func (s *Service) locked(demo bool) bool {
	return !demo && !s.adapter.HasCredentials()
}

// ExecuteOrder runs one themed order through the guardrails, translation,
// quantization and dispatch, then protects it with an Escape Rope.
func (s *Service) ExecuteOrder(ctx context.Context, o order.EncounterOrder) (order.Receipt, error) {
	lc := newLifecycle()
	receipt, err := s.executeOrder(ctx, o, lc)
	if err != nil {
		stage := lc.Fail()
		s.log.Warn("order rejected",
			zap.String("species", o.Species),
			zap.String("action", string(o.Action)),
			zap.String("stage", stage.String()),
			zap.Error(err),
		)
		s.appendEvent(ctx, err.Error(), "", map[string]any{
			"species": o.Species,
			"action":  string(o.Action),
			"stage":   stage.String(),
		})
		return order.Receipt{}, err
	}
	lc.Advance(StageDone)
	return receipt, nil
}

func (s *Service) executeOrder(ctx context.Context, o order.EncounterOrder, lc *lifecycle) (order.Receipt, error) {
	if err := o.Normalize(); err != nil {
		return order.Receipt{}, invalid("%s", trimInvalid(err))
	}
	demo := s.resolveDemo(o)

	if s.locked(demo) && o.Action != order.ActionRun {
		return order.Receipt{}, &ExchangeError{Kind: exchange.KindCredentialsMissing, Message: msgCredentials, Err: exchange.ErrCredentialsMissing}
	}
	if o.Action == order.ActionRun {
		return s.runAway(ctx, o, demo)
	}
	if o.Action.Opens() {
		s.orderMu.Lock()
		defer s.orderMu.Unlock()
	}

	lc.Advance(StageCooldownCheck)
	if err := s.checkCooldown(o); err != nil {
		s.metrics.GuardrailRejected.Inc()
		return order.Receipt{}, err
	}

	lc.Advance(StageGuardrailCheck)
	status := s.ListPartyStatus(ctx, demo)
	if err := s.enforcePartyLimit(o, len(status.Party)); err != nil {
		s.metrics.GuardrailRejected.Inc()
		return order.Receipt{}, err
	}
	if err := s.enforceEnergyGuard(o, demo); err != nil {
		s.metrics.GuardrailRejected.Inc()
		return order.Receipt{}, err
	}

	adj := &adjustments{}
	lc.Advance(StagePreparing)
	o, err := s.prepareOrder(ctx, o)
	if err != nil {
		return order.Receipt{}, err
	}
	prep, err := s.translator.ToExchangePayload(o)
	if err != nil {
		return order.Receipt{}, invalid(msgUnknownSpecies, o.Species)
	}

	lc.Advance(StageQuantizing)
	if prep.IsPerp() {
		meta := s.contractMeta(ctx, prep)
		if o, err = s.applyContractMeta(o, prep, meta, adj); err != nil {
			return order.Receipt{}, err
		}
	}

	var mode order.PositionMode
	leverage := 1
	leverageNote := ""
	if prep.IsPerp() {
		lc.Advance(StagePositionMode)
		mode = s.resolvePositionMode(ctx)
		s.applyPositionMode(prep, mode, o)
		s.log.Info("perp order payload keys",
			zap.String("mode", modeLabel(prep.PositionMode)),
			zap.Strings("keys", sortedKeys(prep.Wire())),
		)
		lc.Advance(StageLeverageClamp)
		leverage, leverageNote = s.clampLeverage(prep, o.EffectiveLevel())
	}

	lc.Advance(StageStopLossValidating)
	if err := validateStopLoss(o, prep); err != nil {
		return order.Receipt{}, err
	}
	if err := s.checkMarketAnchor(ctx, o, prep, demo); err != nil {
		return order.Receipt{}, err
	}

	requires := requiresStopLoss(o, prep)
	embedded := false
	stopRef := ""
	if requires && prep.IsPerp() && s.opts.EmbedStopLoss && o.HasStopLoss() {
		lc.Advance(StageEmbedding)
		ref, err := s.embedStopLoss(ctx, o, prep, adj, demo)
		if err != nil {
			return order.Receipt{}, err
		}
		stopRef = ref
		embedded = true
	}

	lc.Advance(StageDispatching)
	env, err := s.adapter.PlaceOrder(ctx, prep.Wire(), prep.Route, demo)
	if err != nil {
		s.metrics.OrdersFailed.Inc()
		s.log.Warn("exchange error during place order", zap.String("symbol", prep.Symbol()), zap.Error(err))
		return order.Receipt{}, friendlyError(err, adj)
	}
	if !env.OK {
		s.metrics.OrdersFailed.Inc()
		return order.Receipt{}, friendlyError(exchange.Classify(200, env.Code, env.Msg, 0), adj)
	}
	s.metrics.OrdersPlaced.Inc()
	if embedded {
		s.metrics.StopLossEmbedded.Inc()
	}

	adventureID := o.ClientAdventureID
	if adventureID == "" {
		adventureID = extractAdventureID(env)
	}
	filled := extractFilled(env)
	entry, hasEntry := extractFillPrice(env)
	if !hasEntry && o.LimitPrice > 0 {
		entry, hasEntry = o.LimitPrice, true
	}

	stopStatus := order.StopLossNone
	stopErr := ""
	if embedded {
		stopStatus = order.StopLossEmbedded
	}
	if requires && !embedded {
		lc.Advance(StageProtecting)
		ref, err := s.protect(ctx, o, prep, adventureID, demo, adj)
		if err != nil {
			stopStatus = order.StopLossFailed
			stopErr = err.Error()
			s.metrics.StopLossFailed.Inc()
			s.log.Warn("escape rope failed after dispatch",
				zap.String("species", o.Species),
				zap.String("adventure_id", adventureID),
				zap.Error(err),
			)
			s.notify(ctx, "Escape Rope failed for "+o.Species+" ("+adventureID+"): the position is open but unprotected. "+stopErr)
		} else {
			stopRef = ref
			stopStatus = order.StopLossAttached
			s.metrics.StopLossAttached.Inc()
		}
	}

	narration := narrate(narrationInput{
		species:      o.Species,
		action:       o.Action,
		route:        prep.Route,
		direction:    prep.Direction,
		leverage:     leverage,
		leverageNote: leverageNote,
		stopRef:      stopRef,
		stopMode:     o.StopLossMode,
		quoteHP:      o.QuoteHP,
		level:        o.Level,
	})
	if stopStatus == order.StopLossFailed {
		narration += " Escape Rope could not be attached; the position is open but unprotected."
	}
	narration = exchange.SanitizeVendor(narration)

	receipt := order.Receipt{
		AdventureID:            adventureID,
		Species:                o.Species,
		Action:                 o.Action,
		Filled:                 filled,
		FillSize:               extractFillSize(env),
		LevelUsed:              o.Level,
		DemoMode:               demo,
		Badge:                  badgeFor(o.Action),
		Narration:              narration,
		StopLossReference:      stopRef,
		StopLossStatus:         stopStatus,
		StopLossError:          stopErr,
		NormalizedPrice:        adj.roundedPrice,
		NormalizedTriggerPrice: adj.roundedStop,
		PriceTickFormatted:     adj.priceTickFormatted,
		RawResponse:            env.RawMap(),
	}
	if hasEntry {
		px := entry
		receipt.FillPrice = &px
	}
	if adj.hasPriceScale {
		receipt.PriceScale = adj.priceScale
	}
	if prep.IsPerp() {
		receipt.LeverageApplied = leverage
	}

	s.appendEvent(ctx, narration, receipt.Badge, map[string]any{
		"payload":   prep.Wire(),
		"response":  env.Raw,
		"route":     string(prep.Route),
		"direction": string(prep.Direction),
		"stop_loss": stopRef,
		"level":     o.Level,
		"demo":      demo,
	})
	s.mu.Lock()
	s.lastEncounter = s.now()
	s.mu.Unlock()
	if s.audit != nil {
		s.audit.Record(receipt)
	}
	return receipt, nil
}

// protect attaches the separate protective order after dispatch. Percent
// stops start from a sensor or limit price and are fine-tuned later.
func (s *Service) protect(ctx context.Context, o order.EncounterOrder, prep *translator.Preparation, adventureID string, demo bool, adj *adjustments) (string, error) {
	if o.StopLossMode == order.StopLossPrice {
		ref, err := s.attachStopLoss(ctx, o, prep, o.StopLossValue, demo, adj)
		if err != nil {
			return "", friendlyError(err, adj)
		}
		return ref, nil
	}

	reference := 0.0
	if o.Style == order.StyleLimit && o.LimitPrice > 0 {
		reference = o.LimitPrice
	} else {
		px, ok, err := s.sensorPrice(ctx, prep, o.StopLossTrigger, demo)
		if err != nil {
			return "", friendlyError(err, adj)
		}
		if !ok {
			return "", invalid(msgSensorOffline)
		}
		reference = px
	}
	provisional := distanceStop(prep.Long(), o.StopLossValue, reference)
	ref, err := s.attachStopLoss(ctx, o, prep, provisional, demo, adj)
	if err != nil {
		return "", friendlyError(err, adj)
	}
	s.appendEvent(ctx, "Escape Rope armed. Awaiting fine-tune...", "", map[string]any{
		"species":     o.Species,
		"mode":        "distance",
		"provisional": provisional,
	})
	s.scheduleFineTune(&pendingStop{
		order:       o,
		prep:        prep,
		adventureID: adventureID,
		token:       prep.Token,
		reference:   ref,
		sensorPrice: reference,
		provisional: provisional,
		demo:        demo,
		createdAt:   s.now(),
	})
	return ref, nil
}

func (s *Service) checkCooldown(o order.EncounterOrder) error {
	if !o.Action.Opens() || s.opts.Cooldown <= 0 {
		return nil
	}
	s.mu.Lock()
	last := s.lastEncounter
	s.mu.Unlock()
	if last.IsZero() {
		return nil
	}
	elapsed := s.now().Sub(last)
	if elapsed < s.opts.Cooldown {
		remaining := int((s.opts.Cooldown - elapsed) / time.Second)
		return invalid(msgCooldown, remaining)
	}
	return nil
}

func (s *Service) enforcePartyLimit(o order.EncounterOrder, partySize int) error {
	if !o.Action.Opens() {
		return nil
	}
	if s.opts.MaxPartySize > 0 && partySize >= s.opts.MaxPartySize {
		return invalid(msgPartyFull)
	}
	return nil
}

func (s *Service) enforceEnergyGuard(o order.EncounterOrder, demo bool) error {
	if !o.Action.Opens() || demo {
		return nil
	}
	s.mu.Lock()
	present, amount := s.energy.present, s.energy.snapshot
	s.mu.Unlock()
	if !present {
		return nil
	}
	if amount < s.opts.MinimumReserve {
		return invalid(msgEnergyLow)
	}
	return nil
}

// Guardrails reports the limits with a fresh cooldown countdown.
func (s *Service) Guardrails() order.GuardrailStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	status := s.guardrails
	status.CooldownRemaining = s.cooldownRemainingLocked()
	return status
}

func (s *Service) cooldownRemainingLocked() float64 {
	if s.lastEncounter.IsZero() {
		return 0
	}
	remaining := s.opts.Cooldown - s.now().Sub(s.lastEncounter)
	return math.Max(0, remaining.Seconds())
}

func (s *Service) updateGuardrailsLocked() {
	minimum := s.opts.MinimumReserve
	if s.lastDemo {
		minimum = 0
	}
	s.guardrails = order.GuardrailStatus{
		CooldownSeconds:   int(s.opts.Cooldown / time.Second),
		CooldownRemaining: s.cooldownRemainingLocked(),
		MaxPartySize:      s.opts.MaxPartySize,
		MinimumEnergy:     minimum,
	}
}

// PositionMode is the last mode the venue reported.
func (s *Service) PositionMode() order.PositionMode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.positionMode
}

// RecentEvents returns the newest journal entries first.
func (s *Service) RecentEvents(ctx context.Context) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.Recent(ctx, recentEventLimit)
}

// PendingStopLosses lists tokens with a running fine-tune job.
func (s *Service) PendingStopLosses() []string {
	return s.tasks.Active()
}

// Close stops the fine-tune jobs.
func (s *Service) Close(ctx context.Context) error {
	return s.tasks.Close(ctx)
}

func (s *Service) appendEvent(ctx context.Context, message, badge string, payload map[string]any) {
	if s.journal == nil {
		return
	}
	entry := journal.Entry{
		ID:        uuid.NewString(),
		Timestamp: s.now().UTC(),
		Message:   exchange.SanitizeVendor(message),
		Badge:     badge,
		Payload:   payload,
	}
	if err := s.journal.Append(context.WithoutCancel(ctx), entry); err != nil {
		s.log.Warn("journal append failed", zap.Error(err))
	}
}

func (s *Service) notify(ctx context.Context, text string) {
	if s.alerts == nil {
		return
	}
	if err := s.alerts.Notify(context.WithoutCancel(ctx), exchange.SanitizeVendor(text)); err != nil {
		s.log.Warn("alert failed", zap.Error(err))
	}
}

func extractAdventureID(env exchange.Envelope) string {
	if id := exchange.String(env.First(), "orderId", "clientOid", "clientOrderId"); id != "" {
		return id
	}
	return uuid.NewString()
}

func extractFilled(env exchange.Envelope) bool {
	switch exchange.String(env.First(), "status") {
	case "filled", "success", "full-fill", "FILLED", "SUCCESS":
		return true
	}
	return false
}

func extractFillPrice(env exchange.Envelope) (float64, bool) {
	px, ok := exchange.Float(env.First(), "price", "fillPrice", "priceAvg")
	if !ok || px <= 0 {
		return 0, false
	}
	return px, true
}

func extractFillSize(env exchange.Envelope) *float64 {
	sz, ok := exchange.Float(env.First(), "size", "fillQuantity", "baseVolume")
	if !ok {
		return nil
	}
	return &sz
}

func trimInvalid(err error) string {
	msg := err.Error()
	prefix := order.ErrInvalidOrder.Error() + ": "
	if errors.Is(err, order.ErrInvalidOrder) && len(msg) > len(prefix) {
		return msg[len(prefix):]
	}
	return msg
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func modeLabel(mode order.PositionMode) string {
	if mode == order.PositionModeUnknown {
		return "unknown"
	}
	return string(mode)
}
