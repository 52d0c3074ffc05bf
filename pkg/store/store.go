// Package store defines a small JSON key/value persistence interface.
//
// Solace keeps very little state: rendered speech payloads cached by content
// hash, and the companion conversation history. Values are stored as JSON so
// both the in-memory backend and the PostgreSQL backend round-trip the same
// Go types.
//
// Implementations must be safe for concurrent use.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
)

// ErrNotFound is returned by [Store.Get] when no value exists for the key.
var ErrNotFound = errors.New("store: not found")

// Store persists JSON-encodable values by key.
type Store interface {
	// Get decodes the value stored under key into v. Returns [ErrNotFound]
	// when the key is absent.
	Get(ctx context.Context, key string, v any) error

	// Set encodes v as JSON and stores it under key, replacing any previous
	// value.
	Set(ctx context.Context, key string, v any) error

	// Delete removes key. Deleting an absent key is not an error.
	Delete(ctx context.Context, key string) error

	// Ping reports whether the backend is reachable.
	Ping(ctx context.Context) error
}

// Memory is a process-local [Store]. The zero value is ready to use.
type Memory struct {
	mu   sync.RWMutex
	data map[string][]byte
}

var _ Store = (*Memory)(nil)

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// Get implements [Store].
func (m *Memory) Get(_ context.Context, key string, v any) error {
	m.mu.RLock()
	raw, ok := m.data[key]
	m.mu.RUnlock()
	if !ok {
		return fmt.Errorf("%w: %q", ErrNotFound, key)
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return fmt.Errorf("store: decode %q: %w", key, err)
	}
	return nil
}

// Set implements [Store].
func (m *Memory) Set(_ context.Context, key string, v any) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("store: encode %q: %w", key, err)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = make(map[string][]byte)
	}
	m.data[key] = raw
	return nil
}

// Delete implements [Store].
func (m *Memory) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

// Ping implements [Store]. A memory store is always reachable.
func (m *Memory) Ping(context.Context) error { return nil }

// Len returns the number of stored keys.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.data)
}
