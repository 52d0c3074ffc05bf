// Package playback plays fully decoded speech buffers on the shared output
// device.
//
// A [Player] owns at most one [Session] at a time. Starting a new session
// stops the previous one first, so two sessions never overlap. A session can
// carry a maximum duration: once that much device time has played, the gain
// is ramped linearly to near silence, an end chime sounds and the session
// goes idle.
//
// All timing is taken from the device clock. Elapsed time is derived from it
// on demand and is never accumulated.
package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/audio"
)

const (
	// DefaultFadeOut is the length of the gain ramp at the duration limit.
	DefaultFadeOut = 3 * time.Second

	// DefaultChimeDelay separates the end of the ramp from the chime.
	DefaultChimeDelay = 100 * time.Millisecond

	// fadeFloor is the ramp target. Exponential-style gain controls cannot
	// reach zero, and the chime follows immediately anyway.
	fadeFloor = 0.0001
)

// Options controls a single playback.
type Options struct {
	// MaxDuration limits how long the buffer plays before fading out. Zero
	// plays the full buffer.
	MaxDuration time.Duration
}

// Option is a functional option for [New].
type Option func(*Player)

// WithFadeOut overrides [DefaultFadeOut].
func WithFadeOut(d time.Duration) Option {
	return func(p *Player) { p.fadeOut = max(d, 0) }
}

// WithChimeDelay overrides [DefaultChimeDelay].
func WithChimeDelay(d time.Duration) Option {
	return func(p *Player) { p.chimeDelay = max(d, 0) }
}

// WithChime sets the sound played after a fade-out. A nil source disables
// the chime.
func WithChime(src audio.Source) Option {
	return func(p *Player) { p.chime = src }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// Player starts playback sessions on devices obtained from a shared
// [audio.DeviceRegistry]. It is safe for concurrent use.
type Player struct {
	devices    *audio.DeviceRegistry
	fadeOut    time.Duration
	chimeDelay time.Duration
	chime      audio.Source
	metrics    *observe.Metrics

	// startMu serialises Start so the stop-then-start sequence is atomic.
	startMu sync.Mutex

	// mu guards current and the fade settings above.
	mu      sync.Mutex
	current *Session
}

// New returns a Player that schedules on devices from reg.
func New(reg *audio.DeviceRegistry, opts ...Option) *Player {
	p := &Player{
		devices:    reg,
		fadeOut:    DefaultFadeOut,
		chimeDelay: DefaultChimeDelay,
		chime:      audio.DefaultChime,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Start plays buf from the beginning. Any session this Player still owns is
// stopped first, even if the new one then fails to start.
//
// If the output device cannot be opened or resumed, Start returns an
// [*Error] of kind [DeviceUnavailable] and no session is created.
func (p *Player) Start(ctx context.Context, buf *audio.Buffer, opts Options) (*Session, error) {
	if buf == nil || buf.Len() == 0 {
		return nil, ErrEmptyBuffer
	}

	p.startMu.Lock()
	defer p.startMu.Unlock()

	// Take our reference before dropping the old session's so the shared
	// device stays open across the switch.
	dev, acqErr := p.devices.Acquire(ctx)
	p.Stop()
	if acqErr != nil {
		return nil, &Error{Kind: DeviceUnavailable, Err: acqErr}
	}
	if err := dev.Resume(ctx); err != nil {
		_ = p.devices.Release()
		return nil, &Error{Kind: DeviceUnavailable, Err: err}
	}

	s := &Session{
		id:     uuid.NewString(),
		player: p,
		dev:    dev,
		buf:    buf,
		limit:  max(opts.MaxDuration, 0),
		done:   make(chan struct{}),
	}
	p.mu.Lock()
	s.fadeOut, s.chimeDelay, s.chimeSrc = p.fadeOut, p.chimeDelay, p.chime
	p.current = s
	p.mu.Unlock()
	p.metrics.ActivePlayback.Add(ctx, 1)

	s.mu.Lock()
	err := s.beginLocked(0)
	s.mu.Unlock()
	if err != nil {
		p.metrics.ActivePlayback.Add(ctx, -1)
		p.forget(s)
		_ = p.devices.Release()
		return nil, &Error{Kind: DeviceUnavailable, Err: err}
	}

	slog.Info("playback started",
		"session_id", s.id,
		"total", buf.Duration(),
		"max_duration", s.limit,
	)
	return s, nil
}

// Configure applies fade and chime options to sessions started afterwards.
// A running session keeps the settings it started with.
func (p *Player) Configure(opts ...Option) {
	p.mu.Lock()
	defer p.mu.Unlock()
	metrics := p.metrics
	for _, o := range opts {
		o(p)
	}
	p.metrics = metrics
}

// Current returns the session this Player owns, or nil. A session that has
// gone idle but whose end chime is still sounding is still current.
func (p *Player) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Stop stops the current session, if any. Safe to call at any time.
func (p *Player) Stop() {
	if s := p.Current(); s != nil {
		s.Stop()
	}
}

// forget clears s as the current session once it has released the device.
func (p *Player) forget(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == s {
		p.current = nil
	}
}
