// Package mock provides in-memory mock implementations of [audio.Device],
// [audio.Voice], [audio.Capture], and [audio.CaptureSource] for use in unit
// tests.
//
// All mocks are safe for concurrent use. They record every method call so that
// tests can assert on call counts and arguments, and they expose exported fields
// that the test can set to control return values.
//
// The mock device has a manual clock: nothing happens until the test calls
// [Device.Advance], which walks the clock forward event by event, finishing
// voices and firing timers synchronously in time order.
//
// Typical usage:
//
//	dev := &mock.Device{}
//	v, _ := dev.Schedule(buf, 0)
//	dev.Advance(buf.Duration())
//	<-v.Done()
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Device        = (*Device)(nil)
	_ audio.Voice         = (*Voice)(nil)
	_ audio.Capture       = (*Capture)(nil)
	_ audio.CaptureSource = (*CaptureSource)(nil)
)

// ─── Device ───────────────────────────────────────────────────────────────────

// Device is a mock implementation of [audio.Device] with a manual clock.
// Set the exported fields before use; inspect the CallCount* fields and
// [Device.Voices] after.
type Device struct {
	mu sync.Mutex

	// Rate is returned by SampleRate. Zero means [audio.SpeechSampleRate].
	Rate int

	// ResumeError is returned by [Device.Resume].
	ResumeError error

	// ScheduleError, when non-nil, is returned by [Device.Schedule].
	ScheduleError error

	// CloseError is returned by [Device.Close].
	CloseError error

	// CallCountResume records how many times Resume was called.
	CallCountResume int

	// CallCountClose records how many times Close was called.
	CallCountClose int

	now    time.Duration
	voices []*Voice
	timers []*timer
	closed bool
}

// Now implements [audio.Device].
func (d *Device) Now() time.Duration {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.now
}

// SampleRate implements [audio.Device].
func (d *Device) SampleRate() int {
	if d.Rate == 0 {
		return audio.SpeechSampleRate
	}
	return d.Rate
}

// Schedule implements [audio.Device]. The voice is recorded and starts at
// max(at, Now()). It finishes when the clock passes its end.
func (d *Device) Schedule(src audio.Source, at time.Duration) (audio.Voice, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.ScheduleError != nil {
		return nil, d.ScheduleError
	}
	if d.closed {
		return nil, audio.ErrDeviceClosed
	}
	v := &Voice{
		Source: src,
		start:  max(at, d.now),
		length: audio.FramesToDuration(src.Len(), src.Rate()),
		gain:   audio.NewEnvelope(1),
		done:   make(chan struct{}),
	}
	d.voices = append(d.voices, v)
	return v, nil
}

// AfterFunc implements [audio.Device]. The callback runs synchronously inside
// [Device.Advance] once the clock reaches it.
func (d *Device) AfterFunc(delay time.Duration, fn func()) audio.Timer {
	d.mu.Lock()
	defer d.mu.Unlock()
	t := &timer{dev: d, due: d.now + max(delay, 0), fn: fn}
	if d.closed {
		t.stopped = true
	}
	d.timers = append(d.timers, t)
	return t
}

// Resume implements [audio.Device]. Returns ResumeError.
func (d *Device) Resume(context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.CallCountResume++
	return d.ResumeError
}

// Close implements [audio.Device]. Stops all voices and timers and returns
// CloseError.
func (d *Device) Close() error {
	d.mu.Lock()
	d.CallCountClose++
	d.closed = true
	voices := append([]*Voice(nil), d.voices...)
	for _, t := range d.timers {
		t.stopped = true
	}
	err := d.CloseError
	d.mu.Unlock()

	for _, v := range voices {
		v.Stop()
	}
	return err
}

// Closed reports whether Close has been called.
func (d *Device) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Voices returns every voice scheduled so far, in scheduling order.
func (d *Device) Voices() []*Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*Voice(nil), d.voices...)
}

// Playing returns the voices that have been scheduled and neither finished
// nor been stopped.
func (d *Device) Playing() []*Voice {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*Voice
	for _, v := range d.voices {
		if !v.isDone() {
			out = append(out, v)
		}
	}
	return out
}

// PendingTimers returns the number of timers that have neither fired nor
// been stopped.
func (d *Device) PendingTimers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, t := range d.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// SetNow moves the clock to t without processing any events. Use it to
// simulate a device that has been running for a while.
func (d *Device) SetNow(t time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.now = t
}

// Advance moves the clock forward by dt. Voices ending and timers falling
// due within the window are processed in time order; callbacks run
// synchronously and may schedule further events, which are processed too if
// they fall inside the window.
func (d *Device) Advance(dt time.Duration) {
	d.mu.Lock()
	target := d.now + dt
	d.mu.Unlock()

	for {
		d.mu.Lock()
		next, ok := d.nextEventLocked(target)
		if !ok {
			d.now = target
			d.mu.Unlock()
			return
		}
		d.now = next

		var ended []*Voice
		for _, v := range d.voices {
			if !v.isDone() && v.start+v.length <= next {
				ended = append(ended, v)
			}
		}
		var due []*timer
		for _, t := range d.timers {
			if !t.fired && !t.stopped && t.due <= next {
				t.fired = true
				due = append(due, t)
			}
		}
		d.mu.Unlock()

		for _, v := range ended {
			v.finish(false)
		}
		for _, t := range due {
			t.fn()
		}
	}
}

// nextEventLocked returns the earliest voice end or timer due at or before
// target. Must be called with d.mu held.
func (d *Device) nextEventLocked(target time.Duration) (time.Duration, bool) {
	next, ok := target, false
	for _, v := range d.voices {
		if end := v.start + v.length; !v.isDone() && end <= next {
			next, ok = end, true
		}
	}
	for _, t := range d.timers {
		if !t.fired && !t.stopped && t.due <= next {
			next, ok = t.due, true
		}
	}
	return next, ok
}

// ─── Voice ────────────────────────────────────────────────────────────────────

// Voice is a mock implementation of [audio.Voice] recorded by [Device].
type Voice struct {
	// Source is the source passed to Schedule.
	Source audio.Source

	start  time.Duration
	length time.Duration
	gain   *audio.Envelope

	mu       sync.Mutex
	stopped  bool
	finished bool
	done     chan struct{}
}

// Start implements [audio.Voice].
func (v *Voice) Start() time.Duration { return v.start }

// Duration implements [audio.Voice].
func (v *Voice) Duration() time.Duration { return v.length }

// Gain implements [audio.Voice].
func (v *Voice) Gain() *audio.Envelope { return v.gain }

// Done implements [audio.Voice].
func (v *Voice) Done() <-chan struct{} { return v.done }

// Stop implements [audio.Voice]. Idempotent.
func (v *Voice) Stop() { v.finish(true) }

// Stopped reports whether the voice was stopped before it finished.
func (v *Voice) Stopped() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped
}

// Finished reports whether the voice played to its end.
func (v *Voice) Finished() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.finished
}

func (v *Voice) isDone() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stopped || v.finished
}

func (v *Voice) finish(stopped bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.stopped || v.finished {
		return
	}
	if stopped {
		v.stopped = true
	} else {
		v.finished = true
	}
	close(v.done)
}

// ─── timer ────────────────────────────────────────────────────────────────────

type timer struct {
	dev     *Device
	due     time.Duration
	fn      func()
	fired   bool
	stopped bool
}

// Stop implements [audio.Timer].
func (t *timer) Stop() bool {
	t.dev.mu.Lock()
	defer t.dev.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}

// ─── Capture ──────────────────────────────────────────────────────────────────

// Capture is a mock implementation of [audio.Capture]. Tests push frames with
// [Capture.Send].
type Capture struct {
	mu     sync.Mutex
	ch     chan audio.Frame
	closed bool

	// CallCountClose records how many times Close was called.
	CallCountClose int
}

// NewCapture returns a capture whose frame channel buffers up to size frames.
func NewCapture(size int) *Capture {
	return &Capture{ch: make(chan audio.Frame, size)}
}

// Frames implements [audio.Capture].
func (c *Capture) Frames() <-chan audio.Frame { return c.ch }

// Send queues a frame. It reports false if the capture is closed or the
// buffer is full.
func (c *Capture) Send(f audio.Frame) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	select {
	case c.ch <- f:
		return true
	default:
		return false
	}
}

// Close implements [audio.Capture]. Idempotent.
func (c *Capture) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.CallCountClose++
	if !c.closed {
		c.closed = true
		close(c.ch)
	}
	return nil
}

// Closed reports whether Close has been called.
func (c *Capture) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// ─── CaptureSource ────────────────────────────────────────────────────────────

// CaptureSource is a mock implementation of [audio.CaptureSource].
type CaptureSource struct {
	mu sync.Mutex

	// OpenResult is returned by Open. When nil a fresh [Capture] with a
	// 64-frame buffer is created per call.
	OpenResult *Capture

	// OpenError is returned by Open when non-nil.
	OpenError error

	// FrameSizes records the frameSize argument of every Open call.
	FrameSizes []int

	// Opened holds every capture handed out, in order.
	Opened []*Capture
}

// Open implements [audio.CaptureSource].
func (s *CaptureSource) Open(_ context.Context, frameSize int) (audio.Capture, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.FrameSizes = append(s.FrameSizes, frameSize)
	if s.OpenError != nil {
		return nil, s.OpenError
	}
	c := s.OpenResult
	if c == nil {
		c = NewCapture(64)
	}
	s.Opened = append(s.Opened, c)
	return c, nil
}

// Last returns the most recently opened capture, or nil.
func (s *CaptureSource) Last() *Capture {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.Opened) == 0 {
		return nil
	}
	return s.Opened[len(s.Opened)-1]
}
