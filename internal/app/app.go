package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"pokedesk/internal/alerts"
	"pokedesk/internal/audit"
	"pokedesk/internal/cex"
	"pokedesk/internal/config"
	"pokedesk/internal/contract"
	"pokedesk/internal/dex"
	"pokedesk/internal/engine"
	"pokedesk/internal/exchange"
	"pokedesk/internal/hl/ws"
	"pokedesk/internal/journal"
	"pokedesk/internal/metrics"
	"pokedesk/internal/pricefeed"
	"pokedesk/internal/roster"
	"pokedesk/internal/tasks"
	"pokedesk/internal/translator"
)

const shutdownTimeout = 5 * time.Second

// App owns every long-lived component and wires them explicitly.
type App struct {
	cfg       *config.Config
	log       *zap.Logger
	adapter   exchange.Adapter
	roster    *roster.Roster
	contracts *contract.Cache
	feed      *pricefeed.Feed
	mids      *ws.Client
	journal   *journal.Store
	audit     *audit.Writer
	alerts    *alerts.Telegram
	prom      *metrics.Prometheus
	metrics   *metrics.Metrics
	tasks     *tasks.Registry
	engine    *engine.Service
	ops       console

	operatorWarned bool
	closeOnce      sync.Once
}

func New(cfg *config.Config, log *zap.Logger) (*App, error) {
	if log == nil {
		log = zap.NewNop()
	}
	adapter, err := NewAdapter(cfg, log)
	if err != nil {
		return nil, err
	}

	m := metrics.NewNoop()
	var prom *metrics.Prometheus
	if cfg.Metrics.EnabledValue() {
		prom = metrics.NewPrometheus()
		m = prom.Metrics
	}

	if cfg.Journal.SQLitePath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.SQLitePath), 0o755); err != nil {
			return nil, err
		}
	}
	store, err := journal.New(cfg.Journal.SQLitePath, cfg.Journal.Capacity)
	if err != nil {
		return nil, fmt.Errorf("journal: %w", err)
	}
	auditWriter, err := audit.New(cfg.Audit, log)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("audit: %w", err)
	}

	r := roster.New(roster.Pinned(cfg.Venue, cfg.PriceFeed.PinnedBases))
	contracts := contract.NewCache(adapter, cfg.Contracts.TTL, log)
	feed := pricefeed.New(adapter, cfg.PriceFeed.PinnedBases, cfg.PriceFeed, m.FeedPollFailed, log)
	var mids *ws.Client
	if cfg.Venue == config.VenueDEX {
		mids = ws.New(cfg.DEX.WSURL, cfg.DEX.ReconnectDelay, cfg.DEX.PingInterval, log)
	}
	alertsClient := alerts.NewTelegram(cfg.Telegram, log)
	registry := tasks.New(log)

	a := &App{
		cfg:       cfg,
		log:       log,
		adapter:   adapter,
		roster:    r,
		contracts: contracts,
		feed:      feed,
		mids:      mids,
		journal:   store,
		audit:     auditWriter,
		alerts:    alertsClient,
		prom:      prom,
		metrics:   m,
		tasks:     registry,
	}
	a.engine = engine.New(a.engineDeps(), engine.OptionsFromConfig(cfg), log)
	a.ops = a.engine
	return a, nil
}

func (a *App) engineDeps() engine.Deps {
	deps := engine.Deps{
		Adapter:    a.adapter,
		Translator: translator.New(a.roster, a.cfg.Orders.MarginMode),
		Contracts:  a.contracts,
		Prices:     a.feed,
		Tasks:      a.tasks,
		Journal:    a.journal,
		Metrics:    a.metrics,
	}
	// typed nils must not reach the engine's interface checks
	if a.audit != nil {
		deps.Audit = a.audit
	}
	if a.alerts.Enabled() {
		deps.Alerts = a.alerts
	}
	return deps
}

// NewAdapter builds the exchange adapter for the configured venue.
func NewAdapter(cfg *config.Config, log *zap.Logger) (exchange.Adapter, error) {
	switch cfg.Venue {
	case config.VenueCEX:
		return cex.New(cfg.CEX, log), nil
	case config.VenueDEX:
		adapter, err := dex.New(cfg.DEX, log)
		if err != nil {
			return nil, err
		}
		return adapter, nil
	}
	return nil, fmt.Errorf("unknown venue %q", cfg.Venue)
}

func (a *App) Engine() *engine.Service {
	return a.engine
}

// Species resolves a species name, base token or market symbol to its
// roster name. Unknown tokens are returned unchanged.
func (a *App) Species(token string) string {
	if a.roster != nil {
		if profile, err := a.roster.Resolve(token); err == nil {
			return profile.Name
		}
	}
	return token
}

// Run starts the price feed, audit writer, metrics endpoint and operator
// console, then blocks until ctx ends.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.log.Info("pokedesk starting",
		zap.String("venue", a.cfg.Venue),
		zap.Bool("demo", a.cfg.Orders.DemoMode),
		zap.Bool("trading_locked", a.cfg.TradingLocked()),
		zap.Strings("roster", a.roster.Names()),
	)

	a.audit.Start(ctx)
	go a.feed.Run(ctx)
	if a.mids != nil {
		go func() {
			if err := a.feed.StreamMids(ctx, a.mids); err != nil && !errors.Is(err, context.Canceled) {
				a.log.Warn("mids stream stopped", zap.Error(err))
			}
		}()
	}
	if err := a.startMetricsServer(ctx); err != nil {
		return err
	}
	a.startOperator(ctx)

	<-ctx.Done()
	return ctx.Err()
}

func (a *App) startMetricsServer(ctx context.Context) error {
	if a.prom == nil {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(a.cfg.Metrics.Path, a.prom.Handler())
	srv := &http.Server{
		Addr:              a.cfg.Metrics.Address,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			a.log.Warn("metrics server failed", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()
	a.log.Info("metrics enabled", zap.String("address", a.cfg.Metrics.Address), zap.String("path", a.cfg.Metrics.Path))
	return nil
}

// Close stops fine-tune jobs and releases storage. Safe to call twice.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if a.engine != nil {
			if err := a.engine.Close(ctx); err != nil {
				a.log.Warn("fine-tune shutdown incomplete", zap.Error(err))
			}
		}
		if a.mids != nil {
			_ = a.mids.Close()
		}
		if err := a.audit.Close(); err != nil {
			a.log.Warn("audit close failed", zap.Error(err))
		}
		if a.journal != nil {
			_ = a.journal.Close()
		}
	})
}
