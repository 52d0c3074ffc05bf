// Package soundscape loops synthesised ambient layers on the shared output
// device: white, pink and brown noise plus a beta and a theta binaural beat.
// Every layer has its own level under a master gain and level changes are
// short linear ramps on the device clock.
//
// Layers are looped as back-to-back segments. Two segments per layer are
// always queued on the device, and a device-clock timer at every segment
// boundary queues the next one, so the loop never depends on the caller's
// scheduling latency.
package soundscape

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/audio"
)

// Layer names one ambient sound.
type Layer string

const (
	WhiteNoise Layer = "white"
	PinkNoise  Layer = "pink"
	BrownNoise Layer = "brown"
	BetaWaves  Layer = "beta"
	ThetaWaves Layer = "theta"
)

var layers = []Layer{WhiteNoise, PinkNoise, BrownNoise, BetaWaves, ThetaWaves}

// Layers returns every layer in display order.
func Layers() []Layer { return slices.Clone(layers) }

// ParseLayer accepts a layer name case-insensitively.
func ParseLayer(s string) (Layer, error) {
	l := Layer(strings.ToLower(strings.TrimSpace(s)))
	if !slices.Contains(layers, l) {
		return "", fmt.Errorf("%w %q", ErrUnknownLayer, s)
	}
	return l, nil
}

const (
	// MaxLevel caps a single layer so a full mix does not clip.
	MaxLevel = 0.5

	// DefaultSegment is the length of one looped segment.
	DefaultSegment = 2 * time.Second

	// DefaultFadeOut is the ramp to silence at the duration limit.
	DefaultFadeOut = 10 * time.Second

	// LevelRamp smooths a single level change.
	LevelRamp = 100 * time.Millisecond

	// MixRamp smooths a preset change.
	MixRamp = 500 * time.Millisecond
)

var (
	// ErrUnknownLayer is returned for a layer or preset name that does not
	// exist.
	ErrUnknownLayer = errors.New("soundscape: unknown layer")

	// ErrEnded is returned when changing levels on a session that has ended.
	ErrEnded = errors.New("soundscape: session ended")

	// ErrDeviceUnavailable wraps failures to open or resume the output.
	ErrDeviceUnavailable = errors.New("soundscape: device unavailable")
)

// Levels maps layers to their level in [0, MaxLevel]. Missing layers are
// silent.
type Levels map[Layer]float64

var presets = map[string]Levels{
	"deep-focus": {WhiteNoise: 0.1, BrownNoise: 0.3, BetaWaves: 0.2},
	"rainy-cafe": {PinkNoise: 0.4, BrownNoise: 0.2},
	"meditation": {BrownNoise: 0.1, PinkNoise: 0.1, ThetaWaves: 0.3},
	"silence":    {},
}

// Preset returns a copy of the named mix.
func Preset(name string) (Levels, bool) {
	p, ok := presets[strings.ToLower(name)]
	if !ok {
		return nil, false
	}
	return maps.Clone(p), true
}

// PresetNames returns the preset names, sorted.
func PresetNames() []string { return slices.Sorted(maps.Keys(presets)) }

// Options controls a single soundscape.
type Options struct {
	// MaxDuration fades the mix out after this much device time. Zero loops
	// until stopped.
	MaxDuration time.Duration
}

// Option is a functional option for [New].
type Option func(*Player)

// WithMaster sets the gain applied on top of every layer level.
func WithMaster(g float64) Option {
	return func(p *Player) { p.master = max(g, 0) }
}

// WithSegment overrides [DefaultSegment]. Whole seconds keep the binaural
// layers phase continuous across segment boundaries.
func WithSegment(d time.Duration) Option {
	return func(p *Player) {
		if d > 0 {
			p.segment = d
		}
	}
}

// WithFadeOut overrides [DefaultFadeOut].
func WithFadeOut(d time.Duration) Option {
	return func(p *Player) { p.fadeOut = max(d, 0) }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(p *Player) { p.metrics = m }
}

// Player starts soundscapes on devices from a shared registry. At most one
// soundscape runs at a time. It is safe for concurrent use.
type Player struct {
	devices *audio.DeviceRegistry
	master  float64
	segment time.Duration
	fadeOut time.Duration
	metrics *observe.Metrics

	startMu sync.Mutex

	mu      sync.Mutex
	current *Session
}

// New returns a Player that schedules on devices from reg.
func New(reg *audio.DeviceRegistry, opts ...Option) *Player {
	p := &Player{
		devices: reg,
		master:  1,
		segment: DefaultSegment,
		fadeOut: DefaultFadeOut,
	}
	for _, o := range opts {
		o(p)
	}
	if p.metrics == nil {
		p.metrics = observe.DefaultMetrics()
	}
	return p
}

// Start stops any running soundscape and loops every layer at the given
// levels.
func (p *Player) Start(ctx context.Context, levels Levels, opts Options) (*Session, error) {
	clean, err := sanitize(levels)
	if err != nil {
		return nil, err
	}

	p.startMu.Lock()
	defer p.startMu.Unlock()

	dev, err := p.devices.Acquire(ctx)
	p.Stop()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	if err := dev.Resume(ctx); err != nil {
		_ = p.devices.Release()
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}

	s := &Session{
		id:      uuid.NewString(),
		player:  p,
		dev:     dev,
		master:  p.master,
		segment: p.segment,
		fadeOut: p.fadeOut,
		limit:   max(opts.MaxDuration, 0),
		sources: render(dev.SampleRate(), p.segment),
		levels:  clean,
		queued:  make(map[Layer][]audio.Voice, len(layers)),
		done:    make(chan struct{}),
	}

	p.mu.Lock()
	p.current = s
	p.mu.Unlock()
	p.metrics.ActiveSoundscapes.Add(ctx, 1)

	s.mu.Lock()
	err = s.beginLocked()
	if err != nil {
		s.stopVoicesLocked()
	}
	s.mu.Unlock()
	if err != nil {
		p.metrics.ActiveSoundscapes.Add(ctx, -1)
		p.forget(s)
		_ = p.devices.Release()
		return nil, fmt.Errorf("%w: %w", ErrDeviceUnavailable, err)
	}
	slog.Info("soundscape started", "session_id", s.id, "levels", clean, "max_duration", s.limit)
	return s, nil
}

// Current returns the running soundscape, or nil.
func (p *Player) Current() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Stop stops the running soundscape, if any.
func (p *Player) Stop() {
	if s := p.Current(); s != nil {
		s.Stop()
	}
}

func (p *Player) forget(s *Session) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == s {
		p.current = nil
	}
}

// render synthesises one segment of every layer at rate.
func render(rate int, segment time.Duration) map[Layer]*audio.Buffer {
	beta, theta := audio.BetaBeat, audio.ThetaBeat
	beta.Length, beta.SampleRate = segment, rate
	theta.Length, theta.SampleRate = segment, rate
	return map[Layer]*audio.Buffer{
		WhiteNoise: audio.NoiseBuffer(audio.White, segment, rate, 1),
		PinkNoise:  audio.NoiseBuffer(audio.Pink, segment, rate, 2),
		BrownNoise: audio.NoiseBuffer(audio.Brown, segment, rate, 3),
		BetaWaves:  audio.ToBuffer(beta, rate),
		ThetaWaves: audio.ToBuffer(theta, rate),
	}
}

// sanitize rejects unknown layers and clamps levels into [0, MaxLevel].
func sanitize(in Levels) (Levels, error) {
	out := make(Levels, len(layers))
	for l, v := range in {
		if !slices.Contains(layers, l) {
			return nil, fmt.Errorf("%w %q", ErrUnknownLayer, l)
		}
		out[l] = clampLevel(v)
	}
	return out, nil
}

func clampLevel(v float64) float64 { return min(max(v, 0), MaxLevel) }
