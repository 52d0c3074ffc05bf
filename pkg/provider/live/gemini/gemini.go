// Package gemini is a [live.Provider] for the Gemini Live API.
//
// Sessions run over a WebSocket speaking JSON frames. Connect returns only
// after the server acknowledged the setup frame. Inbound model audio is passed
// on still base64-encoded, and transcripts of both sides are always enabled.
package gemini

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/coder/websocket"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/live"
)

var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*session)(nil)
)

const (
	defaultModel   = "gemini-2.5-flash-native-audio-preview-09-2025"
	defaultBaseURL = "wss://generativelanguage.googleapis.com/ws"
	bidiMethod     = "google.ai.generativelanguage.v1beta.GenerativeService.BidiGenerateContent"

	defaultHandshakeTimeout = 10 * time.Second
	defaultPingEvery        = 20 * time.Second
	defaultPingTimeout      = 5 * time.Second

	// Model audio frames are larger than the websocket default read limit.
	readLimit = 4 << 20
)

// ErrSessionClosed is returned by SendAudio after Close.
var ErrSessionClosed = errors.New("gemini: session closed")

// Option configures a [Provider].
type Option func(*Provider)

// WithModel selects the Live model.
func WithModel(model string) Option {
	return func(p *Provider) { p.model = model }
}

// WithBaseURL points the provider at another endpoint, e.g. a test server.
func WithBaseURL(u string) Option {
	return func(p *Provider) { p.baseURL = u }
}

// WithHandshakeTimeout bounds dialing plus the wait for setupComplete.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(p *Provider) { p.handshakeTimeout = d }
}

// WithKeepalive sets how often an open session pings the server and how
// long each ping may wait for its pong.
func WithKeepalive(every, timeout time.Duration) Option {
	return func(p *Provider) {
		if every > 0 {
			p.pingEvery = every
		}
		if timeout > 0 {
			p.pingTimeout = timeout
		}
	}
}

// Provider opens Gemini Live sessions.
type Provider struct {
	apiKey           string
	model            string
	baseURL          string
	handshakeTimeout time.Duration
	pingEvery        time.Duration
	pingTimeout      time.Duration
}

// New returns a Provider authenticating with apiKey.
func New(apiKey string, opts ...Option) *Provider {
	p := &Provider{
		apiKey:           apiKey,
		model:            defaultModel,
		baseURL:          defaultBaseURL,
		handshakeTimeout: defaultHandshakeTimeout,
		pingEvery:        defaultPingEvery,
		pingTimeout:      defaultPingTimeout,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Connect dials the endpoint and completes the setup exchange. A server error
// frame, a closed socket or the handshake timeout fail the connect.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	hsCtx, cancel := context.WithTimeout(ctx, p.handshakeTimeout)
	defer cancel()

	endpoint := p.baseURL + "/" + bidiMethod + "?key=" + url.QueryEscape(p.apiKey)
	conn, _, err := websocket.Dial(hsCtx, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("gemini: dial: %w", err)
	}
	conn.SetReadLimit(readLimit)

	if err := handshake(hsCtx, conn, p.model, cfg); err != nil {
		conn.Close(websocket.StatusPolicyViolation, "setup failed")
		return nil, err
	}

	rate := cfg.InputSampleRate
	if rate == 0 {
		rate = audio.CaptureSampleRate
	}
	sctx, stop := context.WithCancel(context.Background())
	s := &session{
		conn:      conn,
		inputRate: rate,
		events:    make(chan live.Event, 64),
		ctx:       sctx,
		stop:      stop,
	}
	go s.read()
	go s.keepalive(p.pingEvery, p.pingTimeout)
	return s, nil
}

func handshake(ctx context.Context, conn *websocket.Conn, model string, cfg live.Config) error {
	setup, err := setupFrame(model, cfg)
	if err != nil {
		return fmt.Errorf("gemini: marshal setup: %w", err)
	}
	if err := conn.Write(ctx, websocket.MessageText, setup); err != nil {
		return fmt.Errorf("gemini: send setup: %w", err)
	}
	for {
		_, data, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("gemini: await setup: %w", err)
		}
		var f serverFrame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		switch {
		case f.Error != nil:
			return f.Error
		case f.SetupComplete != nil:
			return nil
		}
	}
}

type session struct {
	conn      *websocket.Conn
	inputRate int
	events    chan live.Event

	ctx  context.Context
	stop context.CancelFunc

	closeOnce sync.Once
	mu        sync.Mutex
	err       error
}

// read owns the events channel and closes it when the socket ends.
func (s *session) read() {
	defer close(s.events)
	for {
		_, data, err := s.conn.Read(s.ctx)
		if err != nil {
			if s.ctx.Err() == nil && websocket.CloseStatus(err) != websocket.StatusNormalClosure {
				s.fail(fmt.Errorf("gemini: read: %w", err))
			}
			return
		}

		var f serverFrame
		if json.Unmarshal(data, &f) != nil {
			continue
		}
		if f.Error != nil {
			s.fail(f.Error)
			return
		}
		if f.ServerContent == nil {
			continue
		}
		for _, ev := range f.ServerContent.events() {
			select {
			case s.events <- ev:
			case <-s.ctx.Done():
				return
			}
		}
	}
}

// keepalive pings until the session ends. A missed pong is only logged; a
// dead socket surfaces through read.
func (s *session) keepalive(every, timeout time.Duration) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-s.ctx.Done():
			return
		case <-t.C:
			ctx, cancel := context.WithTimeout(s.ctx, timeout)
			err := s.conn.Ping(ctx)
			cancel()
			if err != nil && s.ctx.Err() == nil {
				slog.Debug("gemini: keepalive ping failed", "err", err)
			}
		}
	}
}

func (s *session) fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		s.err = err
	}
}

// SendAudio sends one base64 PCM16LE frame at the configured input rate.
func (s *session) SendAudio(encoded string) error {
	if s.ctx.Err() != nil {
		return ErrSessionClosed
	}
	data, err := audioFrame(encoded, s.inputRate)
	if err != nil {
		return fmt.Errorf("gemini: marshal audio: %w", err)
	}
	if err := s.conn.Write(s.ctx, websocket.MessageText, data); err != nil {
		if s.ctx.Err() != nil {
			return ErrSessionClosed
		}
		return fmt.Errorf("gemini: send audio: %w", err)
	}
	return nil
}

func (s *session) Events() <-chan live.Event { return s.events }

// Err is the error that ended the session, nil after a clean close.
func (s *session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close ends the session. Safe to call more than once.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		s.stop()
		s.conn.Close(websocket.StatusNormalClosure, "session closed")
	})
	return nil
}
