// Package mock provides test doubles for the live package interfaces.
//
// Use Provider to verify Connect calls and hand out controlled sessions. Use
// Session to script the inbound event stream and inspect what the
// conversation controller sent.
//
// Example:
//
//	sess := mock.NewSession(16)
//	p := &mock.Provider{Session: sess}
//	handle, _ := p.Connect(ctx, cfg)
//	sess.Emit(live.Event{Kind: live.EventTurnComplete})
//	sess.End(nil) // remote closed cleanly
package mock

import (
	"context"
	"sync"

	"github.com/MrWong99/solace/pkg/provider/live"
)

// ConnectCall records a single invocation of Provider.Connect.
type ConnectCall struct {
	// Ctx is the context passed to Connect.
	Ctx context.Context
	// Cfg is the Config passed to Connect.
	Cfg live.Config
}

// Provider is a mock implementation of live.Provider.
type Provider struct {
	mu sync.Mutex

	// Session is returned by Connect. If nil, Connect returns a new Session
	// with a 64-event buffer.
	Session *Session

	// ConnectErr, if non-nil, is returned as the error from Connect.
	ConnectErr error

	// ConnectCalls records every call to Connect in order.
	ConnectCalls []ConnectCall
}

// Connect records the call and returns Session, ConnectErr.
func (p *Provider) Connect(ctx context.Context, cfg live.Config) (live.Session, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.ConnectCalls = append(p.ConnectCalls, ConnectCall{Ctx: ctx, Cfg: cfg})
	if p.ConnectErr != nil {
		return nil, p.ConnectErr
	}
	if p.Session != nil {
		return p.Session, nil
	}
	return NewSession(64), nil
}

// Calls returns a copy of the recorded Connect calls.
func (p *Provider) Calls() []ConnectCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]ConnectCall(nil), p.ConnectCalls...)
}

// Ensure the mocks implement the live interfaces at compile time.
var (
	_ live.Provider = (*Provider)(nil)
	_ live.Session  = (*Session)(nil)
)

// Session is a mock implementation of live.Session.
type Session struct {
	mu     sync.Mutex
	events chan live.Event
	ended  bool
	err    error
	closed bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// CloseErr, if non-nil, is returned by Close.
	CloseErr error

	sent       []string
	sentNotify chan struct{}
	closeCount int
}

// NewSession returns a Session whose event channel buffers size events.
func NewSession(size int) *Session {
	return &Session{
		events:     make(chan live.Event, size),
		sentNotify: make(chan struct{}, 1),
	}
}

// Emit queues an inbound event. It reports false if the stream has ended or
// the buffer is full.
func (s *Session) Emit(ev live.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return false
	}
	select {
	case s.events <- ev:
		return true
	default:
		return false
	}
}

// End closes the event stream, recording err as the value returned by Err.
// A nil err simulates a clean remote close. Idempotent.
func (s *Session) End(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.ended = true
	s.err = err
	close(s.events)
}

// SendAudio records the frame and returns SendAudioErr.
func (s *Session) SendAudio(encoded string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, encoded)
	select {
	case s.sentNotify <- struct{}{}:
	default:
	}
	return s.SendAudioErr
}

// Events implements live.Session.
func (s *Session) Events() <-chan live.Event { return s.events }

// Err implements live.Session.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Close records the call, ends the event stream and returns CloseErr.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closeCount++
	s.closed = true
	err := s.CloseErr
	s.mu.Unlock()
	s.End(nil)
	return err
}

// Sent returns a copy of every frame passed to SendAudio, in order.
func (s *Session) Sent() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.sent...)
}

// SentNotify receives a value after SendAudio has been called. Notifications
// coalesce; re-check Sent after each receive.
func (s *Session) SentNotify() <-chan struct{} { return s.sentNotify }

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseCallCount returns the number of Close calls.
func (s *Session) CloseCallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCount
}
