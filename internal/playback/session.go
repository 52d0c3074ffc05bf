package playback

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
)

// State is the lifecycle state of a [Session].
type State int

const (
	// Idle is the terminal state. Nothing of the session's speech is playing.
	Idle State = iota

	// Playing means the buffer is audible at full gain.
	Playing

	// FadingOut means the duration limit was reached and the gain is ramping
	// towards silence.
	FadingOut

	// Paused means playback was suspended and can be resumed from the same
	// position.
	Paused
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case FadingOut:
		return "fading_out"
	case Paused:
		return "paused"
	default:
		return "unknown"
	}
}

// EndReason tells why a session went idle.
type EndReason int

const (
	// NotEnded is reported while the session is still running.
	NotEnded EndReason = iota

	// Completed means the buffer played to its end.
	Completed

	// Stopped means Stop was called, directly or by a newer Start.
	Stopped

	// FadedOut means the duration limit was reached.
	FadedOut
)

// String returns the reason name.
func (r EndReason) String() string {
	switch r {
	case NotEnded:
		return "not_ended"
	case Completed:
		return "completed"
	case Stopped:
		return "stopped"
	case FadedOut:
		return "faded"
	default:
		return "unknown"
	}
}

// Session is one playback of a decoded buffer. All methods are safe for
// concurrent use and may be called in any state.
type Session struct {
	id     string
	player *Player
	dev    audio.Device
	buf    *audio.Buffer
	limit  time.Duration

	// Fade settings are copied from the player when the session starts.
	fadeOut    time.Duration
	chimeDelay time.Duration
	chimeSrc   audio.Source

	mu     sync.Mutex
	state  State
	reason EndReason
	// gen invalidates device callbacks armed for an earlier voice.
	gen       uint64
	voice     audio.Voice
	timer     audio.Timer
	chime     audio.Voice
	startedAt time.Duration // device time at which buffer offset zero played
	offset    time.Duration // position while paused
	done      chan struct{}

	releaseOnce sync.Once
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Total returns the buffer's full duration.
func (s *Session) Total() time.Duration { return s.buf.Duration() }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Playing reports whether speech is audible: Playing or FadingOut.
func (s *Session) Playing() bool {
	st := s.State()
	return st == Playing || st == FadingOut
}

// Elapsed returns the playback position: device clock minus the session's
// start time. It is zero once the session is idle and frozen while paused.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch s.state {
	case Playing, FadingOut:
		return max(s.dev.Now()-s.startedAt, 0)
	case Paused:
		return s.offset
	default:
		return 0
	}
}

// Done is closed when the session goes idle.
func (s *Session) Done() <-chan struct{} { return s.done }

// Reason returns why the session ended, or NotEnded.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Stop ends the session immediately and cancels any pending fade. On an idle
// session it only silences a still-sounding end chime. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == Idle {
		chime := s.chime
		s.mu.Unlock()
		if chime != nil {
			chime.Stop()
		}
		return
	}
	s.endLocked(Stopped)
	s.mu.Unlock()
	s.release()
}

// Pause suspends a playing session, remembering its position. The device
// stays held. Returns [ErrNotPlaying] unless the session is Playing.
func (s *Session) Pause() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing {
		return ErrNotPlaying
	}
	s.offset = min(max(s.dev.Now()-s.startedAt, 0), s.buf.Duration())
	s.gen++
	s.stopTimerLocked()
	s.voice.Stop()
	s.state = Paused
	slog.Debug("playback paused", "session_id", s.id, "offset", s.offset)
	return nil
}

// Resume continues a paused session from its remembered position. A device
// failure leaves the session paused and returns an [*Error] of kind
// [DeviceUnavailable].
func (s *Session) Resume(ctx context.Context) error {
	s.mu.Lock()
	if s.state != Paused {
		s.mu.Unlock()
		return ErrNotPlaying
	}
	s.mu.Unlock()

	if err := s.dev.Resume(ctx); err != nil {
		return &Error{Kind: DeviceUnavailable, Err: err}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Paused {
		return ErrNotPlaying
	}
	if err := s.beginLocked(s.offset); err != nil {
		return &Error{Kind: DeviceUnavailable, Err: err}
	}
	slog.Debug("playback resumed", "session_id", s.id, "offset", s.offset)
	return nil
}

// Watch reports Elapsed every interval until the session ends, the position
// passes the total duration, or ctx is done. The channel is closed then.
// Ticks are dropped while the receiver is busy.
func (s *Session) Watch(ctx context.Context, interval time.Duration) <-chan time.Duration {
	ch := make(chan time.Duration, 1)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.done:
				return
			case <-ticker.C:
			}
			el := s.Elapsed()
			select {
			case ch <- el:
			default:
			}
			if el > s.Total() {
				return
			}
		}
	}()
	return ch
}

// beginLocked schedules the buffer from offset at the device's current time
// and arms the natural-end watcher and the fade timer. Must be called with
// s.mu held.
func (s *Session) beginLocked(offset time.Duration) error {
	v, err := s.dev.Schedule(s.buf.Slice(offset), s.dev.Now())
	if err != nil {
		return err
	}
	s.gen++
	gen := s.gen
	s.voice = v
	s.startedAt = v.Start() - offset
	s.state = Playing

	go func() {
		<-v.Done()
		s.voiceEnded(gen)
	}()

	if s.limit > 0 {
		s.timer = s.dev.AfterFunc(max(s.limit-offset, 0), func() { s.beginFade(gen) })
	}
	return nil
}

// voiceEnded handles the buffer running out while still Playing. A voice
// ending during the fade is left to the fade sequence.
func (s *Session) voiceEnded(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != Playing {
		s.mu.Unlock()
		return
	}
	s.endLocked(Completed)
	s.mu.Unlock()
	s.release()
}

// beginFade ramps the gain from its current value to the floor over the
// fade window and arms the chime.
func (s *Session) beginFade(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen || s.state != Playing {
		return
	}
	now := s.dev.Now()
	g := s.voice.Gain()
	from := g.HoldAt(now)
	g.LinearRampTo(fadeFloor, now+s.fadeOut)
	s.state = FadingOut
	s.timer = s.dev.AfterFunc(s.fadeOut+s.chimeDelay, func() { s.fadeDone(gen) })
	slog.Info("playback fading out", "session_id", s.id, "at", now-s.startedAt, "from_gain", from)
}

// fadeDone silences the speech, plays the chime and goes idle. The device is
// released once the chime has finished.
func (s *Session) fadeDone(gen uint64) {
	s.mu.Lock()
	if gen != s.gen || s.state != FadingOut {
		s.mu.Unlock()
		return
	}
	s.endLocked(FadedOut)

	var chime audio.Voice
	if src := s.chimeSrc; src != nil {
		v, err := s.dev.Schedule(src, s.dev.Now())
		if err != nil {
			slog.Warn("playback: schedule chime", "session_id", s.id, "err", err)
		} else {
			chime = v
			s.chime = v
		}
	}
	s.mu.Unlock()

	if chime == nil {
		s.release()
		return
	}
	go func() {
		<-chime.Done()
		s.release()
	}()
}

// endLocked moves the session to Idle. Must be called with s.mu held and
// state != Idle. The caller releases the device.
func (s *Session) endLocked(reason EndReason) {
	s.gen++
	s.stopTimerLocked()
	if s.voice != nil {
		s.voice.Stop()
	}
	s.state = Idle
	s.reason = reason

	m := s.player.metrics
	m.ActivePlayback.Add(context.Background(), -1)
	m.RecordPlaybackEnded(context.Background(), reason.String())
	slog.Info("playback ended", "session_id", s.id, "reason", reason)
	close(s.done)
}

func (s *Session) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

// release drops the session's device reference exactly once.
func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if err := s.player.devices.Release(); err != nil {
			slog.Warn("playback: release device", "session_id", s.id, "err", err)
		}
		s.player.forget(s)
	})
}
