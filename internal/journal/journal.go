package journal

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

const defaultCapacity = 50

// Entry is one adventure log line.
type Entry struct {
	ID        string         `json:"id"`
	Timestamp time.Time      `json:"timestamp"`
	Message   string         `json:"message"`
	Badge     string         `json:"badge,omitempty"`
	Payload   map[string]any `json:"payload,omitempty"`
}

// Store keeps the newest entries in SQLite and drops older rows past
// capacity.
type Store struct {
	db       *sql.DB
	capacity int
}

func New(path string, capacity int) (*Store, error) {
	if path == "" {
		path = ":memory:"
	}
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	// every connection to :memory: opens a separate database
	db.SetMaxOpenConns(1)
	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, capacity: capacity}, nil
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS events (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL,
		ts INTEGER NOT NULL,
		message TEXT NOT NULL,
		badge TEXT NOT NULL DEFAULT '',
		payload TEXT
	)`)
	return err
}

func (s *Store) Append(ctx context.Context, entry Entry) error {
	var payload sql.NullString
	if len(entry.Payload) > 0 {
		raw, err := json.Marshal(entry.Payload)
		if err != nil {
			return fmt.Errorf("encode journal payload: %w", err)
		}
		payload = sql.NullString{String: string(raw), Valid: true}
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO events (id, ts, message, badge, payload) VALUES (?, ?, ?, ?, ?)`,
		entry.ID, entry.Timestamp.UnixMilli(), entry.Message, entry.Badge, payload,
	); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM events WHERE seq <= (SELECT MAX(seq) FROM events) - ?`, s.capacity,
	); err != nil {
		return err
	}
	return tx.Commit()
}

// Recent returns up to limit entries, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > s.capacity {
		limit = s.capacity
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, ts, message, badge, payload FROM events ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		var (
			entry   Entry
			ts      int64
			payload sql.NullString
		)
		if err := rows.Scan(&entry.ID, &ts, &entry.Message, &entry.Badge, &payload); err != nil {
			return nil, err
		}
		entry.Timestamp = time.UnixMilli(ts).UTC()
		if payload.Valid && payload.String != "" {
			if err := json.Unmarshal([]byte(payload.String), &entry.Payload); err != nil {
				return nil, fmt.Errorf("decode journal payload: %w", err)
			}
		}
		out = append(out, entry)
	}
	return out, rows.Err()
}

func (s *Store) Close() error {
	return s.db.Close()
}
