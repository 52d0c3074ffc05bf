// Package postgres provides a PostgreSQL-backed [store.Store].
//
// Values live in a single table keyed by text with a JSONB payload. [Migrate]
// creates the table if it does not exist; [New] runs it automatically.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/MrWong99/solace/pkg/store"
)

var _ store.Store = (*Store)(nil)

const ddlKV = `
CREATE TABLE IF NOT EXISTS kv (
    key         TEXT         PRIMARY KEY,
    value       JSONB        NOT NULL,
    updated_at  TIMESTAMPTZ  NOT NULL DEFAULT now()
);`

// Migrate creates the kv table. It is idempotent.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	if _, err := pool.Exec(ctx, ddlKV); err != nil {
		return fmt.Errorf("postgres store: migrate kv: %w", err)
	}
	return nil
}

// Store is a [store.Store] on top of a [pgxpool.Pool].
type Store struct {
	pool *pgxpool.Pool
}

// New connects to dsn, pings the server and runs [Migrate].
func New(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}
	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Get implements [store.Store].
func (s *Store) Get(ctx context.Context, key string, v any) error {
	const q = `SELECT value FROM kv WHERE key = $1`

	var raw []byte
	err := s.pool.QueryRow(ctx, q, key).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}
	if err != nil {
		return fmt.Errorf("postgres store: get %q: %w", key, err)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("postgres store: decode %q: %w", key, err)
	}
	return nil
}

// Set implements [store.Store].
func (s *Store) Set(ctx context.Context, key string, v any) error {
	const q = `
		INSERT INTO kv (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`

	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("postgres store: encode %q: %w", key, err)
	}
	if _, err := s.pool.Exec(ctx, q, key, raw); err != nil {
		return fmt.Errorf("postgres store: set %q: %w", key, err)
	}
	return nil
}

// Delete implements [store.Store].
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM kv WHERE key = $1`, key); err != nil {
		return fmt.Errorf("postgres store: delete %q: %w", key, err)
	}
	return nil
}

// Ping checks connectivity. It backs the /healthz readiness check.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases all pooled connections.
func (s *Store) Close() {
	s.pool.Close()
}
