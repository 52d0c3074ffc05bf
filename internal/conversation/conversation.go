// Package conversation runs live two-way voice conversations with a remote
// model.
//
// A [Controller] owns at most one [Session]. Connecting opens the shared
// output device, a session-scoped microphone capture and the remote live
// session, in that order. Once active, a single actor goroutine owns all
// mutable session state: it receives captured frames, inbound transport
// events, voice completions and the stop signal on separate channels and
// handles them one at a time.
//
// Inbound speech chunks are scheduled back to back on the device clock: each
// starts at max(cursor, now) and advances the cursor by its own duration, so
// bursts queue without overlap and late chunks never start in the past.
package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/live"
)

const (
	// DefaultFrameSize is the capture frame length in samples.
	DefaultFrameSize = 4096

	// DefaultInputRate is the rate microphone audio is sent at.
	DefaultInputRate = audio.CaptureSampleRate

	// DefaultOutputRate is the rate of inbound speech chunks.
	DefaultOutputRate = audio.SpeechSampleRate

	// outboundQueue bounds the encoded frames waiting for the transport.
	outboundQueue = 8
)

// Status is the externally visible state of a conversation.
type Status int

const (
	// Disconnected is the initial and the clean terminal state.
	Disconnected Status = iota

	// Connecting covers device setup, microphone acquisition and the remote
	// handshake.
	Connecting

	// Active means audio flows in both directions.
	Active

	// Failed is the terminal state after an error. The cause is available
	// from [Session.Err]. A new Connect starts over.
	Failed
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Active:
		return "active"
	case Failed:
		return "error"
	default:
		return "unknown"
	}
}

// Speaker identifies who said a transcript entry.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one finalized transcript entry.
type Turn struct {
	Speaker Speaker   `json:"speaker"`
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

// Config holds the parameters of one conversation.
type Config struct {
	// SystemInstruction is passed to the remote model.
	SystemInstruction string

	// Voice is the provider's prebuilt voice name. Empty selects the
	// provider default.
	Voice string

	// FrameSize is the capture frame length in samples. Zero means
	// [DefaultFrameSize].
	FrameSize int

	// InputRate is the rate captured audio is converted to before sending.
	// Zero means [DefaultInputRate].
	InputRate int

	// OutputRate is the rate inbound speech chunks are decoded at. Zero
	// means [DefaultOutputRate].
	OutputRate int

	// MaxDecodeFailures is the number of consecutive malformed inbound chunks
	// tolerated. One more ends the conversation with TransportInterrupted.
	// Zero tolerates any number.
	MaxDecodeFailures int
}

func (c Config) withDefaults() Config {
	if c.FrameSize <= 0 {
		c.FrameSize = DefaultFrameSize
	}
	if c.InputRate <= 0 {
		c.InputRate = DefaultInputRate
	}
	if c.OutputRate <= 0 {
		c.OutputRate = DefaultOutputRate
	}
	c.MaxDecodeFailures = max(c.MaxDecodeFailures, 0)
	return c
}

// Option is a functional option for [New].
type Option func(*Controller)

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithProviderName sets the provider label used in metrics and spans.
func WithProviderName(name string) Option {
	return func(c *Controller) { c.providerName = name }
}

// Controller connects live conversations. It is safe for concurrent use.
type Controller struct {
	provider     live.Provider
	devices      *audio.DeviceRegistry
	capture      audio.CaptureSource
	metrics      *observe.Metrics
	providerName string

	// connectMu serialises Connect so the stop-then-connect sequence is atomic.
	connectMu sync.Mutex

	mu         sync.Mutex
	connecting bool
	cancel     context.CancelCauseFunc // set while connecting
	current    *Session
}

// New returns a Controller that talks to provider, plays on devices from reg
// and records from capture.
func New(provider live.Provider, reg *audio.DeviceRegistry, capture audio.CaptureSource, opts ...Option) *Controller {
	c := &Controller{
		provider:     provider,
		devices:      reg,
		capture:      capture,
		providerName: "live",
	}
	for _, o := range opts {
		o(c)
	}
	if c.metrics == nil {
		c.metrics = observe.DefaultMetrics()
	}
	return c
}

// Status reports Connecting while a Connect is in flight, otherwise the
// status of the current session, or Disconnected when there is none.
func (c *Controller) Status() Status {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.connecting {
		return Connecting
	}
	if c.current == nil {
		return Disconnected
	}
	return c.current.Status()
}

// Current returns the most recent session, or nil.
func (c *Controller) Current() *Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Stop tears down the current session, if any. A Connect in progress is
// aborted and returns an error wrapping [ErrStopped].
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel(ErrStopped)
	}
	s := c.current
	c.mu.Unlock()

	if s != nil {
		s.Stop()
	}
}

// Connect tears down any previous session, then opens the output device, the
// microphone and the remote session. It blocks until the session is active
// or one of those steps fails; on failure everything acquired so far is
// released and an [*Error] is returned.
func (c *Controller) Connect(ctx context.Context, cfg Config) (*Session, error) {
	cfg = cfg.withDefaults()

	c.connectMu.Lock()
	defer c.connectMu.Unlock()

	c.Stop()
	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	c.beginConnect(cancel)
	defer c.endConnect()

	dev, err := c.devices.Acquire(ctx)
	if err != nil {
		return nil, &Error{Kind: DeviceUnavailable, Err: err}
	}
	if err := dev.Resume(ctx); err != nil {
		_ = c.devices.Release()
		return nil, &Error{Kind: DeviceUnavailable, Err: err}
	}

	capture, err := c.capture.Open(ctx, cfg.FrameSize)
	if err != nil {
		_ = c.devices.Release()
		if errors.Is(err, audio.ErrPermissionDenied) {
			return nil, &Error{Kind: PermissionDenied, Err: err}
		}
		return nil, &Error{Kind: DeviceUnavailable, Err: err}
	}

	var remote live.Session
	err = c.metrics.Call(ctx, c.providerName, "live", c.metrics.LiveConnectDuration, func(ctx context.Context) error {
		var err error
		remote, err = c.provider.Connect(ctx, live.Config{
			Instructions:    cfg.SystemInstruction,
			Voice:           cfg.Voice,
			InputSampleRate: cfg.InputRate,
		})
		return err
	})
	if err != nil {
		_ = capture.Close()
		_ = c.devices.Release()
		if cause := context.Cause(ctx); errors.Is(cause, ErrStopped) {
			err = cause
		}
		return nil, &Error{Kind: HandshakeFailed, Err: err}
	}

	s := newSession(c, cfg, dev, capture, remote)
	c.mu.Lock()
	if cause := context.Cause(ctx); cause != nil {
		c.mu.Unlock()
		_ = remote.Close()
		_ = capture.Close()
		_ = c.devices.Release()
		return nil, &Error{Kind: HandshakeFailed, Err: cause}
	}
	c.current = s
	c.mu.Unlock()

	c.metrics.ActiveConversations.Add(ctx, 1)
	slog.Info("conversation active",
		"session_id", s.id,
		"provider", c.providerName,
		"frame_size", cfg.FrameSize,
	)
	s.start()
	return s, nil
}

func (c *Controller) beginConnect(cancel context.CancelCauseFunc) {
	c.mu.Lock()
	c.connecting = true
	c.cancel = cancel
	c.mu.Unlock()
}

func (c *Controller) endConnect() {
	c.mu.Lock()
	c.connecting = false
	c.cancel = nil
	c.mu.Unlock()
}

// newSession wires an active session. The actor is not running until start.
func newSession(c *Controller, cfg Config, dev audio.Device, capture audio.Capture, remote live.Session) *Session {
	return &Session{
		id:        uuid.NewString(),
		ctrl:      c,
		cfg:       cfg,
		dev:       dev,
		capture:   capture,
		remote:    remote,
		status:    Active,
		stopCh:    make(chan struct{}),
		done:      make(chan struct{}),
		voiceDone: make(chan audio.Voice),
		outbound:  make(chan string, outboundQueue),
		voices:    make(map[audio.Voice]struct{}),
	}
}

// errDecodeThreshold wraps the last codec error once the tolerated number of
// consecutive malformed chunks is exceeded.
func errDecodeThreshold(n int, err error) error {
	return fmt.Errorf("%d consecutive malformed audio chunks: %w", n, err)
}
