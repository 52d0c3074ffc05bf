package soundscape

import (
	"context"
	"log/slog"
	"maps"
	"sync"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
)

// State is the lifecycle state of a [Session].
type State int

const (
	Idle State = iota
	Playing
	FadingOut
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Playing:
		return "playing"
	case FadingOut:
		return "fading_out"
	default:
		return "unknown"
	}
}

// EndReason tells why a soundscape ended.
type EndReason int

const (
	NotEnded EndReason = iota
	Stopped
	FadedOut
	// Failed means the device refused the next segment.
	Failed
)

func (r EndReason) String() string {
	switch r {
	case NotEnded:
		return "not_ended"
	case Stopped:
		return "stopped"
	case FadedOut:
		return "faded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// Session is one running soundscape. All methods are safe for concurrent use.
type Session struct {
	id      string
	player  *Player
	dev     audio.Device
	master  float64
	segment time.Duration
	fadeOut time.Duration
	limit   time.Duration
	sources map[Layer]*audio.Buffer

	mu        sync.Mutex
	state     State
	reason    EndReason
	levels    Levels
	queued    map[Layer][]audio.Voice
	cursor    time.Duration // device time at which the next segment starts
	startedAt time.Duration
	fadeStart time.Duration
	refill    audio.Timer
	timer     audio.Timer
	done      chan struct{}

	releaseOnce sync.Once
}

// ID returns the session's unique identifier.
func (s *Session) ID() string { return s.id }

// Done is closed when the soundscape ends.
func (s *Session) Done() <-chan struct{} { return s.done }

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Reason returns why the session ended, or NotEnded.
func (s *Session) Reason() EndReason {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Levels returns a copy of the current mix.
func (s *Session) Levels() Levels {
	s.mu.Lock()
	defer s.mu.Unlock()
	return maps.Clone(s.levels)
}

// Elapsed returns the device time since the soundscape started, or zero
// once it has ended.
func (s *Session) Elapsed() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return 0
	}
	return max(s.dev.Now()-s.startedAt, 0)
}

// SetLevel ramps one layer to level over [LevelRamp]. The level is clamped
// into [0, MaxLevel].
func (s *Session) SetLevel(l Layer, level float64) error {
	if _, err := ParseLayer(string(l)); err != nil {
		return err
	}
	return s.apply(Levels{l: level}, false, LevelRamp)
}

// Apply ramps every layer to mix over [MixRamp]. Layers missing from mix
// fade to silence.
func (s *Session) Apply(mix Levels) error {
	clean, err := sanitize(mix)
	if err != nil {
		return err
	}
	return s.apply(clean, true, MixRamp)
}

func (s *Session) apply(mix Levels, replace bool, ramp time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == Idle {
		return ErrEnded
	}
	for _, l := range layers {
		v, ok := mix[l]
		if !ok && !replace {
			continue
		}
		v = clampLevel(v)
		s.levels[l] = v
		if s.state != Playing {
			continue
		}
		now := s.dev.Now()
		for _, voice := range s.queued[l] {
			g := voice.Gain()
			g.HoldAt(now)
			g.LinearRampTo(v*s.master, now+ramp)
		}
	}
	slog.Debug("soundscape levels changed", "session_id", s.id, "levels", s.levels)
	return nil
}

// Stop silences every layer immediately. Idempotent.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return
	}
	s.endLocked(Stopped)
	s.mu.Unlock()
	s.release()
}

// beginLocked queues two segments of every layer from now and arms the
// refill and duration timers. Must be called with s.mu held.
func (s *Session) beginLocked() error {
	now := s.dev.Now()
	s.startedAt, s.cursor = now, now
	for range 2 {
		if err := s.extendLocked(); err != nil {
			return err
		}
	}
	s.state = Playing
	s.armRefillLocked()
	if s.limit > 0 {
		s.timer = s.dev.AfterFunc(s.limit, s.beginFade)
	}
	return nil
}

// extendLocked schedules one more segment of every layer at the cursor.
func (s *Session) extendLocked() error {
	var next time.Duration
	for _, l := range layers {
		v, err := s.dev.Schedule(s.sources[l], s.cursor)
		if err != nil {
			return err
		}
		g := v.Gain()
		g.SetValueAt(s.levels[l]*s.master, 0)
		if s.state == FadingOut {
			g.HoldAt(s.fadeStart)
			g.LinearRampTo(0, s.fadeStart+s.fadeOut)
		}
		s.queued[l] = append(s.queued[l], v)
		next = v.Start() + v.Duration()
	}
	s.cursor = next
	return nil
}

// armRefillLocked fires when the segment now playing ends, which is also
// when the last queued one begins.
func (s *Session) armRefillLocked() {
	at := s.cursor - s.segment
	s.refill = s.dev.AfterFunc(max(at-s.dev.Now(), 0), s.refillDue)
}

func (s *Session) refillDue() {
	s.mu.Lock()
	if s.state == Idle {
		s.mu.Unlock()
		return
	}
	for l, q := range s.queued {
		s.queued[l] = pruneDone(q)
	}
	if err := s.extendLocked(); err != nil {
		slog.Warn("soundscape: schedule segment", "session_id", s.id, "err", err)
		s.endLocked(Failed)
		s.mu.Unlock()
		s.release()
		return
	}
	s.armRefillLocked()
	s.mu.Unlock()
}

// beginFade ramps every queued voice to silence and ends the session once
// the ramp is over.
func (s *Session) beginFade() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != Playing {
		return
	}
	now := s.dev.Now()
	s.state = FadingOut
	s.fadeStart = now
	for _, q := range s.queued {
		for _, v := range q {
			g := v.Gain()
			g.HoldAt(now)
			g.LinearRampTo(0, now+s.fadeOut)
		}
	}
	s.timer = s.dev.AfterFunc(s.fadeOut, s.fadeDone)
	slog.Info("soundscape fading out", "session_id", s.id, "at", now-s.startedAt)
}

func (s *Session) fadeDone() {
	s.mu.Lock()
	if s.state != FadingOut {
		s.mu.Unlock()
		return
	}
	s.endLocked(FadedOut)
	s.mu.Unlock()
	s.release()
}

// endLocked stops every voice and timer and closes done. The caller releases
// the device.
func (s *Session) endLocked(reason EndReason) {
	for _, t := range []audio.Timer{s.refill, s.timer} {
		if t != nil {
			t.Stop()
		}
	}
	s.refill, s.timer = nil, nil
	s.stopVoicesLocked()
	s.state = Idle
	s.reason = reason

	s.player.metrics.ActiveSoundscapes.Add(context.Background(), -1)
	slog.Info("soundscape ended", "session_id", s.id, "reason", reason)
	close(s.done)
}

func (s *Session) stopVoicesLocked() {
	for l, q := range s.queued {
		for _, v := range q {
			v.Stop()
		}
		delete(s.queued, l)
	}
}

func (s *Session) release() {
	s.releaseOnce.Do(func() {
		if err := s.player.devices.Release(); err != nil {
			slog.Warn("soundscape: release device", "session_id", s.id, "err", err)
		}
		s.player.forget(s)
	})
}

func pruneDone(q []audio.Voice) []audio.Voice {
	kept := q[:0]
	for _, v := range q {
		select {
		case <-v.Done():
		default:
			kept = append(kept, v)
		}
	}
	return kept
}
