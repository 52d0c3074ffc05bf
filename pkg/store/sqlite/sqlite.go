// Package sqlite provides a [store.Store] in a local SQLite file, the natural
// home for a single user's cached renders and conversation history.
//
// The driver is github.com/mattn/go-sqlite3 and needs cgo.
package sqlite

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	_ "github.com/mattn/go-sqlite3"

	"github.com/MrWong99/solace/pkg/store"
)

var _ store.Store = (*Store)(nil)

// MemoryDSN is a private in-memory database, useful in tests.
const MemoryDSN = "file::memory:"

const ddlKV = `
CREATE TABLE IF NOT EXISTS kv (
    key         TEXT      PRIMARY KEY,
    value       TEXT      NOT NULL,
    updated_at  TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
)`

// Store is a [store.Store] on top of a SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (creating if needed) the database at path, switches it to WAL
// journaling and creates the kv table. An empty path means [MemoryDSN].
func New(ctx context.Context, path string) (_ *Store, err error) {
	db, err := sql.Open("sqlite3", cmp.Or(path, MemoryDSN))
	if err != nil {
		return nil, fmt.Errorf("sqlite store: open: %w", err)
	}
	defer func() {
		if err != nil {
			err = errors.Join(err, db.Close())
		}
	}()

	// One connection: an in-memory database is per connection, and a single
	// local user never needs more.
	db.SetMaxOpenConns(1)

	if _, err := db.ExecContext(ctx, `PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("sqlite store: set journal mode: %w", err)
	}
	if _, err := db.ExecContext(ctx, ddlKV); err != nil {
		return nil, fmt.Errorf("sqlite store: migrate kv: %w", err)
	}
	return &Store{db: db}, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, key string, v any) error {
	var raw string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM kv WHERE key = ?`, key).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("sqlite store: get %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(raw), v); err != nil {
		return fmt.Errorf("sqlite store: decode %q: %w", key, err)
	}
	return nil
}

// Set implements [store.Store].
func (s *Store) Set(ctx context.Context, key string, v any) error {
	const q = `
		INSERT INTO kv (key, value, updated_at)
		VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (key) DO UPDATE
		SET value = excluded.value, updated_at = excluded.updated_at`

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("sqlite store: encode %q: %w", key, err)
	}
	if _, err := s.db.ExecContext(ctx, q, key, string(raw)); err != nil {
		return fmt.Errorf("sqlite store: set %q: %w", key, err)
	}
	return nil
}

// Delete implements [store.Store].
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM kv WHERE key = ?`, key); err != nil {
		return fmt.Errorf("sqlite store: delete %q: %w", key, err)
	}
	return nil
}

// Ping implements [store.Store].
func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
