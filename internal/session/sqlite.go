package session

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/iliamunaev/checkout-engine/internal/model"
)

const schema = `
CREATE TABLE IF NOT EXISTS session_entries (
    session_id TEXT NOT NULL,
    entry_key  TEXT NOT NULL,
    value_json BLOB NOT NULL,
    expires_at INTEGER NOT NULL DEFAULT 0,
    updated_at INTEGER NOT NULL,
    PRIMARY KEY (session_id, entry_key)
);
CREATE TABLE IF NOT EXISTS shown_warnings (
    session_id TEXT NOT NULL,
    ref_id     TEXT NOT NULL,
    shown_at   INTEGER NOT NULL,
    PRIMARY KEY (session_id, ref_id)
);`

// DB is a SQLite database holding many sessions' records.
type DB struct {
	sqlDB *sql.DB
	now   func() time.Time
}

// Open opens the database at path and creates the tables if needed.
func Open(path string) (*DB, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}

	dsn := filepath.Clean(path) + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if _, err := sqlDB.Exec(schema); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &DB{sqlDB: sqlDB, now: time.Now}, nil
}

// Close releases the underlying connection.
func (d *DB) Close() error {
	if d == nil || d.sqlDB == nil {
		return nil
	}
	return d.sqlDB.Close()
}

// Session returns the Store scoped to one browser session.
func (d *DB) Session(id string) *SQLiteStore {
	return &SQLiteStore{db: d, id: strings.TrimSpace(id)}
}

// SQLiteStore is a Store backed by DB for a single session id.
type SQLiteStore struct {
	db *DB
	id string
}

func (s *SQLiteStore) ready() error {
	if s == nil || s.db == nil || s.db.sqlDB == nil {
		return ErrNotConfigured
	}
	if s.id == "" {
		return fmt.Errorf("session id is required")
	}
	return nil
}

func (s *SQLiteStore) LastOrder(ctx context.Context) (model.CompletedOrder, bool, error) {
	var o model.CompletedOrder
	ok, err := s.get(ctx, KeyLastOrder, &o)
	if err != nil || !ok {
		return model.CompletedOrder{}, false, err
	}
	return o, true, nil
}

func (s *SQLiteStore) SaveLastOrder(ctx context.Context, o model.CompletedOrder) error {
	return s.put(ctx, KeyLastOrder, o, time.Time{})
}

func (s *SQLiteStore) WarningShown(ctx context.Context, refID string) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}
	var one int
	err := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT 1 FROM shown_warnings WHERE session_id = ? AND ref_id = ?`,
		s.id, strings.TrimSpace(refID),
	).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get shown warning: %w", err)
	}
	return true, nil
}

func (s *SQLiteStore) MarkWarningShown(ctx context.Context, refID string) error {
	if err := s.ready(); err != nil {
		return err
	}
	_, err := s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO shown_warnings (session_id, ref_id, shown_at) VALUES (?, ?, ?)
		 ON CONFLICT(session_id, ref_id) DO NOTHING`,
		s.id, strings.TrimSpace(refID), s.db.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("mark shown warning: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ProspectCart(ctx context.Context) (model.ProspectCart, bool, error) {
	var c model.ProspectCart
	ok, err := s.get(ctx, KeyProspectCart, &c)
	if err != nil || !ok {
		return model.ProspectCart{}, false, err
	}
	return c, true, nil
}

func (s *SQLiteStore) SaveProspectCart(ctx context.Context, c model.ProspectCart) error {
	return s.put(ctx, KeyProspectCart, c, c.ExpiresAt)
}

// get loads key into dst. Entries past their expiry are deleted and
// reported as absent.
func (s *SQLiteStore) get(ctx context.Context, key string, dst any) (bool, error) {
	if err := s.ready(); err != nil {
		return false, err
	}

	var raw []byte
	var expiresAt int64
	err := s.db.sqlDB.QueryRowContext(ctx,
		`SELECT value_json, expires_at FROM session_entries WHERE session_id = ? AND entry_key = ?`,
		s.id, key,
	).Scan(&raw, &expiresAt)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}

	if expiresAt > 0 && !s.db.now().Before(time.UnixMilli(expiresAt)) {
		if _, err := s.db.sqlDB.ExecContext(ctx,
			`DELETE FROM session_entries WHERE session_id = ? AND entry_key = ?`, s.id, key,
		); err != nil {
			return false, fmt.Errorf("delete expired %s: %w", key, err)
		}
		return false, nil
	}

	if err := json.Unmarshal(raw, dst); err != nil {
		return false, fmt.Errorf("decode %s: %w", key, err)
	}
	return true, nil
}

func (s *SQLiteStore) put(ctx context.Context, key string, v any, expiresAt time.Time) error {
	if err := s.ready(); err != nil {
		return err
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	var exp int64
	if !expiresAt.IsZero() {
		exp = expiresAt.UTC().UnixMilli()
	}
	_, err = s.db.sqlDB.ExecContext(ctx,
		`INSERT INTO session_entries (session_id, entry_key, value_json, expires_at, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(session_id, entry_key) DO UPDATE SET
		    value_json = excluded.value_json,
		    expires_at = excluded.expires_at,
		    updated_at = excluded.updated_at`,
		s.id, key, raw, exp, s.db.now().UTC().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
