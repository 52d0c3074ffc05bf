// Package resilience keeps a failing generation backend from being hammered.
//
// A [Breaker] is a three-state circuit breaker (closed, open, half-open).
// [Speech] and [Text] wrap providers so that once a backend has failed
// repeatedly, further requests fail fast with [ErrCircuitOpen] until a probe
// succeeds. Nothing is retried; the caller still sees every error.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrCircuitOpen is returned instead of calling the backend while the
// breaker is open.
var ErrCircuitOpen = errors.New("resilience: circuit breaker is open")

// State is the operating mode of a [Breaker].
type State int

const (
	// Closed forwards every call.
	Closed State = iota

	// Open rejects calls with [ErrCircuitOpen] until the cool-down elapses.
	Open

	// HalfOpen lets probe calls through to decide whether to close again.
	HalfOpen
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config tunes a [Breaker].
type Config struct {
	// Name labels log lines, e.g. "speech/gemini".
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open. Default: 30s.
	Cooldown time.Duration

	// Probes is the number of successful half-open calls needed to close.
	// Default: 1.
	Probes int

	// Now is the clock. Default: time.Now.
	Now func() time.Time
}

// Breaker implements the circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	probes      int
	now         func() time.Time

	mu        sync.Mutex
	state     State
	failures  int
	openedAt  time.Time
	inFlight  int
	successes int
}

// NewBreaker creates a closed [Breaker]. Zero config fields take defaults.
func NewBreaker(cfg Config) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.Probes <= 0 {
		cfg.Probes = 1
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		probes:      cfg.Probes,
		now:         cfg.Now,
	}
}

// Do runs fn if the breaker allows it. Errors caused by ctx ending are
// passed through without counting against the backend.
func (b *Breaker) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if probe {
		b.inFlight--
	}
	switch {
	case err == nil:
		b.succeeded(probe)
	case ctx.Err() != nil:
		// cancelled by the caller, says nothing about the backend
	default:
		b.failed(probe)
	}
	return err
}

// admit decides whether a call may go ahead and whether it is a probe.
func (b *Breaker) admit() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == Open {
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrCircuitOpen
		}
		b.state = HalfOpen
		b.successes = 0
		slog.Info("circuit breaker half-open", "name", b.name)
	}
	if b.state == HalfOpen {
		if b.inFlight+b.successes >= b.probes {
			return false, ErrCircuitOpen
		}
		b.inFlight++
		return true, nil
	}
	return false, nil
}

// failed must be called with b.mu held.
func (b *Breaker) failed(probe bool) {
	if !probe && b.state == Open {
		return
	}
	if probe || b.state == HalfOpen {
		b.trip()
		slog.Warn("circuit breaker re-opened", "name", b.name)
		return
	}
	b.failures++
	if b.failures >= b.maxFailures {
		b.trip()
		slog.Warn("circuit breaker opened", "name", b.name, "consecutive_failures", b.failures)
	}
}

// succeeded must be called with b.mu held.
func (b *Breaker) succeeded(probe bool) {
	if !probe {
		b.failures = 0
		return
	}
	if b.state != HalfOpen {
		return
	}
	b.successes++
	if b.successes >= b.probes {
		b.state = Closed
		b.failures = 0
		b.successes = 0
		slog.Info("circuit breaker closed", "name", b.name)
	}
}

func (b *Breaker) trip() {
	b.state = Open
	b.openedAt = b.now()
	b.successes = 0
}

// State returns the current state. An open breaker whose cool-down has
// elapsed reports [HalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == Open && b.now().Sub(b.openedAt) >= b.cooldown {
		return HalfOpen
	}
	return b.state
}

// Reset forces the breaker closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
	slog.Info("circuit breaker reset", "name", b.name)
}
