package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync/atomic"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"pokedesk/internal/config"
	"pokedesk/internal/order"
)

const (
	writeTimeout     = 3 * time.Second
	defaultQueueSize = 256
)

var schemaName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// Row is one receipt as stored in the audit table.
type Row struct {
	Time           time.Time
	AdventureID    string
	Species        string
	Action         string
	Filled         bool
	FillPrice      *float64
	FillSize       *float64
	Leverage       int
	Demo           bool
	StopLossStatus string
	StopLossRef    string
	Narration      string
	Raw            []byte
}

// RowFromReceipt flattens a receipt. The raw exchange response is kept as
// JSON.
func RowFromReceipt(r order.Receipt, now time.Time) Row {
	raw, err := json.Marshal(r.RawResponse)
	if err != nil || len(r.RawResponse) == 0 {
		raw = []byte("{}")
	}
	return Row{
		Time:           now.UTC(),
		AdventureID:    r.AdventureID,
		Species:        r.Species,
		Action:         string(r.Action),
		Filled:         r.Filled,
		FillPrice:      r.FillPrice,
		FillSize:       r.FillSize,
		Leverage:       r.LeverageApplied,
		Demo:           r.DemoMode,
		StopLossStatus: string(r.StopLossStatus),
		StopLossRef:    r.StopLossReference,
		Narration:      r.Narration,
		Raw:            raw,
	}
}

// Writer is a write-only receipt sink. Record never blocks; rows are
// dropped when the queue is full.
type Writer struct {
	db      *sql.DB
	log     *zap.Logger
	schema  string
	rows    chan Row
	started atomic.Bool
	dropped atomic.Uint64
	now     func() time.Time
}

func New(cfg config.AuditConfig, log *zap.Logger) (*Writer, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log == nil {
		log = zap.NewNop()
	}
	dsn := strings.TrimSpace(cfg.DSN)
	if dsn == "" {
		return nil, errors.New("audit dsn is required")
	}
	schema := strings.TrimSpace(cfg.Schema)
	if schema == "" {
		schema = "public"
	}
	if !schemaName.MatchString(schema) {
		return nil, fmt.Errorf("audit schema %q is not a plain identifier", schema)
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	w := newWriter(db, schema, cfg.QueueSize, log)
	if err := w.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func newWriter(db *sql.DB, schema string, queueSize int, log *zap.Logger) *Writer {
	if queueSize <= 0 {
		queueSize = defaultQueueSize
	}
	return &Writer{
		db:     db,
		log:    log,
		schema: schema,
		rows:   make(chan Row, queueSize),
		now:    time.Now,
	}
}

func (w *Writer) Start(ctx context.Context) {
	if w == nil {
		return
	}
	if !w.started.CompareAndSwap(false, true) {
		return
	}
	go w.run(ctx)
}

func (w *Writer) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}

func (w *Writer) Record(receipt order.Receipt) {
	if w == nil {
		return
	}
	select {
	case w.rows <- RowFromReceipt(receipt, w.now()):
	default:
		if w.dropped.Add(1) == 1 {
			w.log.Warn("audit queue full")
		}
	}
}

// Dropped counts receipts lost to a full queue.
func (w *Writer) Dropped() uint64 {
	if w == nil {
		return 0
	}
	return w.dropped.Load()
}

func (w *Writer) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case row := <-w.rows:
			w.write(ctx, row)
		}
	}
}

func (w *Writer) ensureSchema(ctx context.Context) error {
	if w.schema != "public" {
		if err := w.exec(ctx, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", w.schema)); err != nil {
			return err
		}
	}
	if err := w.exec(ctx, fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
		ts TIMESTAMPTZ NOT NULL,
		adventure_id TEXT NOT NULL,
		species TEXT NOT NULL,
		action TEXT NOT NULL,
		filled BOOLEAN NOT NULL,
		fill_price DOUBLE PRECISION,
		fill_size DOUBLE PRECISION,
		leverage INTEGER NOT NULL DEFAULT 0,
		demo BOOLEAN NOT NULL,
		stop_loss_status TEXT NOT NULL,
		stop_loss_ref TEXT NOT NULL DEFAULT '',
		narration TEXT NOT NULL DEFAULT '',
		raw JSONB NOT NULL DEFAULT '{}'::jsonb
	)`, w.table("receipts"))); err != nil {
		return err
	}
	if err := w.exec(ctx, "CREATE EXTENSION IF NOT EXISTS timescaledb"); err != nil {
		w.log.Warn("timescale extension ensure failed", zap.Error(err))
		return nil
	}
	if err := w.exec(ctx, fmt.Sprintf("SELECT create_hypertable('%s', 'ts', if_not_exists => TRUE)", w.table("receipts"))); err != nil {
		w.log.Warn("receipts hypertable create failed", zap.Error(err))
	}
	return nil
}

func (w *Writer) write(ctx context.Context, row Row) {
	if w.db == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	query := fmt.Sprintf(`INSERT INTO %s (
		ts, adventure_id, species, action, filled, fill_price, fill_size,
		leverage, demo, stop_loss_status, stop_loss_ref, narration, raw
	) VALUES (
		$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13
	)`, w.table("receipts"))
	if _, err := w.db.ExecContext(ctx, query,
		row.Time,
		row.AdventureID,
		row.Species,
		row.Action,
		row.Filled,
		row.FillPrice,
		row.FillSize,
		row.Leverage,
		row.Demo,
		row.StopLossStatus,
		row.StopLossRef,
		row.Narration,
		string(row.Raw),
	); err != nil {
		w.log.Warn("receipt insert failed", zap.String("adventure_id", row.AdventureID), zap.Error(err))
	}
}

func (w *Writer) exec(ctx context.Context, query string) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	_, err := w.db.ExecContext(ctx, query)
	return err
}

func (w *Writer) table(name string) string {
	return w.schema + "." + name
}
