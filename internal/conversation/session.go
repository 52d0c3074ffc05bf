package conversation

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/live"
)

// Session is one live conversation. Its exported methods are safe for
// concurrent use.
type Session struct {
	id      string
	ctrl    *Controller
	cfg     Config
	dev     audio.Device
	capture audio.Capture
	remote  live.Session

	stopCh    chan struct{}
	stopOnce  sync.Once
	done      chan struct{}
	voiceDone chan audio.Voice
	outbound  chan string

	// Owned by the actor goroutine.
	frames         <-chan audio.Frame
	voices         map[audio.Voice]struct{}
	cursor         time.Duration
	decodeFailures int

	// Written only by the actor; mu guards readers.
	mu          sync.Mutex
	status      Status
	err         error
	history     []Turn
	pendingUser string
	pendingBot  string
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Status returns Active until the session ends, then Disconnected or Failed.
func (s *Session) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Err returns the error that ended the session. It is nil while active and
// after a clean end.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Done is closed once teardown has finished.
func (s *Session) Done() <-chan struct{} { return s.done }

// History returns a copy of the finalized transcript in turn order.
func (s *Session) History() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.history))
	copy(out, s.history)
	return out
}

// Pending returns the transcript fragments of the turn in progress.
func (s *Session) Pending() (user, assistant string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pendingUser, s.pendingBot
}

// Stop ends the conversation and waits for teardown. It may be called any
// number of times from any goroutine.
func (s *Session) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	<-s.done
}

// start launches the actor and the outbound sender.
func (s *Session) start() {
	s.frames = audio.ConvertStream(s.capture.Frames(), audio.Format{
		SampleRate: s.cfg.InputRate,
		Channels:   1,
	})

	var g errgroup.Group
	g.Go(s.run)
	g.Go(s.send)
	go func() { s.finish(g.Wait()) }()
}

// run is the actor loop. It returns nil on an explicit stop or a clean
// remote close, and the terminal error otherwise.
func (s *Session) run() error {
	defer s.teardown()

	frames := s.frames
	events := s.remote.Events()
	for {
		select {
		case <-s.stopCh:
			return nil

		case f, ok := <-frames:
			if !ok {
				slog.Warn("conversation: capture ended", "session_id", s.id)
				frames = nil
				continue
			}
			s.forward(f)

		case ev, ok := <-events:
			if !ok {
				if err := s.remote.Err(); err != nil {
					return &Error{Kind: TransportInterrupted, Err: err}
				}
				slog.Info("conversation closed by remote", "session_id", s.id)
				return nil
			}
			if err := s.handle(ev); err != nil {
				return err
			}

		case v := <-s.voiceDone:
			delete(s.voices, v)
		}
	}
}

// send drains the outbound queue into the transport.
func (s *Session) send() error {
	for enc := range s.outbound {
		if err := s.remote.SendAudio(enc); err != nil {
			slog.Debug("conversation: send audio", "session_id", s.id, "err", err)
		}
	}
	return nil
}

// forward encodes a captured frame and queues it without waiting. Frames are
// dropped while the transport is behind.
func (s *Session) forward(f audio.Frame) {
	select {
	case s.outbound <- audio.EncodeFrame(f.Samples):
	default:
		slog.Debug("conversation: outbound queue full, dropping frame", "session_id", s.id)
	}
}

func (s *Session) handle(ev live.Event) error {
	switch ev.Kind {
	case live.EventAudio:
		return s.schedule(ev.Audio)
	case live.EventInputTranscript:
		s.mu.Lock()
		s.pendingUser += ev.Text
		s.mu.Unlock()
	case live.EventOutputTranscript:
		s.mu.Lock()
		s.pendingBot += ev.Text
		s.mu.Unlock()
	case live.EventTurnComplete:
		s.completeTurn()
	case live.EventInterrupted:
		s.interrupt()
	default:
		slog.Debug("conversation: ignoring event", "session_id", s.id, "kind", ev.Kind)
	}
	return nil
}

// schedule decodes one speech chunk and queues it right after the previous
// one. Malformed chunks are dropped.
func (s *Session) schedule(chunk string) error {
	ctx := context.Background()
	m := s.ctrl.metrics

	buf, err := audio.DecodePayload(chunk, s.cfg.OutputRate, 1)
	if err != nil {
		s.decodeFailures++
		m.RecordDecodeError(ctx, codecLabel(err))
		m.RecordChunk(ctx, "dropped")
		slog.Warn("conversation: dropping malformed audio chunk",
			"session_id", s.id,
			"consecutive", s.decodeFailures,
			"err", err,
		)
		if limit := s.cfg.MaxDecodeFailures; limit > 0 && s.decodeFailures > limit {
			return &Error{Kind: TransportInterrupted, Err: errDecodeThreshold(s.decodeFailures, err)}
		}
		return nil
	}
	s.decodeFailures = 0

	v, err := s.dev.Schedule(buf, max(s.cursor, s.dev.Now()))
	if err != nil {
		return &Error{Kind: DeviceUnavailable, Err: err}
	}
	s.cursor = v.Start() + v.Duration()
	s.voices[v] = struct{}{}
	m.RecordChunk(ctx, "scheduled")

	go func() {
		<-v.Done()
		select {
		case s.voiceDone <- v:
		case <-s.done:
		}
	}()
	return nil
}

// completeTurn moves the non-empty accumulators into the history, user
// first, and clears both.
func (s *Session) completeTurn() {
	now := time.Now()
	s.mu.Lock()
	var added []Speaker
	if strings.TrimSpace(s.pendingUser) != "" {
		s.history = append(s.history, Turn{Speaker: SpeakerUser, Text: s.pendingUser, At: now})
		added = append(added, SpeakerUser)
	}
	if strings.TrimSpace(s.pendingBot) != "" {
		s.history = append(s.history, Turn{Speaker: SpeakerAssistant, Text: s.pendingBot, At: now})
		added = append(added, SpeakerAssistant)
	}
	s.pendingUser, s.pendingBot = "", ""
	s.mu.Unlock()

	for _, sp := range added {
		s.ctrl.metrics.RecordTurn(context.Background(), string(sp))
	}
}

// interrupt silences everything queued after the user barged in. The next
// chunk starts immediately.
func (s *Session) interrupt() {
	for v := range s.voices {
		v.Stop()
	}
	clear(s.voices)
	s.cursor = 0
	slog.Debug("conversation: interrupted", "session_id", s.id)
}

// teardown releases everything the actor owns. It runs exactly once, when
// the actor exits.
func (s *Session) teardown() {
	if err := s.capture.Close(); err != nil {
		slog.Warn("conversation: close capture", "session_id", s.id, "err", err)
	}
	audio.Drain(s.frames)

	for v := range s.voices {
		v.Stop()
	}
	clear(s.voices)
	s.cursor = 0

	if err := s.remote.Close(); err != nil {
		slog.Debug("conversation: close remote", "session_id", s.id, "err", err)
	}
	close(s.outbound)
}

// finish records the outcome once both goroutines have exited, then releases
// the output device.
func (s *Session) finish(err error) {
	if rerr := s.ctrl.devices.Release(); rerr != nil {
		slog.Warn("conversation: release device", "session_id", s.id, "err", rerr)
	}

	s.mu.Lock()
	if err != nil {
		s.status = Failed
		s.err = err
	} else {
		s.status = Disconnected
	}
	turns := len(s.history)
	s.mu.Unlock()

	s.ctrl.metrics.ActiveConversations.Add(context.Background(), -1)
	if err != nil {
		slog.Warn("conversation ended", "session_id", s.id, "turns", turns, "err", err)
	} else {
		slog.Info("conversation ended", "session_id", s.id, "turns", turns)
	}
	close(s.done)
}

// codecLabel maps a decode error to its metric label.
func codecLabel(err error) string {
	switch {
	case errors.Is(err, audio.ErrInvalidEncoding):
		return "invalid_encoding"
	case errors.Is(err, audio.ErrEmptyPayload):
		return "empty_payload"
	default:
		return "unknown"
	}
}
