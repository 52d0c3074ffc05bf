package mixer

import (
	"container/heap"
	"context"
	"sync"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
)

// Compile-time interface assertions.
var (
	_ audio.Device = (*Mixer)(nil)
	_ audio.Voice  = (*voice)(nil)
	_ audio.Timer  = (*timer)(nil)
)

const (
	// DefaultChannels is the output channel count when [WithChannels] is not
	// given.
	DefaultChannels = 1

	// defaultQueueCap is the initial capacity hint for the voice queue.
	defaultQueueCap = 16
)

// Option configures a [Mixer] during construction.
type Option func(*Mixer)

// WithChannels sets the number of interleaved output channels.
func WithChannels(n int) Option {
	return func(m *Mixer) {
		if n > 0 {
			m.channels = n
		}
	}
}

// WithResumeFunc installs a hook run by [Mixer.Resume], typically starting
// the platform stream that drives [Mixer.Render].
func WithResumeFunc(fn func(ctx context.Context) error) Option {
	return func(m *Mixer) { m.resumeFn = fn }
}

// WithCloseFunc installs a hook run once by [Mixer.Close] after all voices
// have been stopped, typically closing the platform stream.
func WithCloseFunc(fn func() error) Option {
	return func(m *Mixer) { m.closeFn = fn }
}

// Mixer is a software [audio.Device]. Its clock is the number of frames
// rendered so far divided by the sample rate, so it advances only when
// [Mixer.Render] is called by a platform callback, a [Pump], or a test.
//
// Voices are summed with their gain envelopes evaluated per sample. Timer
// callbacks scheduled with [Mixer.AfterFunc] run on their own goroutine after
// the render quantum in which they became due.
//
// All exported methods are safe for concurrent use.
type Mixer struct {
	rate     int
	channels int
	resumeFn func(ctx context.Context) error
	closeFn  func() error

	mu      sync.Mutex
	pos     int64 // frames rendered so far
	seq     uint64
	pending schedule[*voice]
	active  []*voice
	timers  schedule[*timer]
	resumed bool
	closed  bool

	// callbacks tracks timer callbacks that are still running.
	callbacks sync.WaitGroup
}

// New creates a [Mixer] rendering at sampleRate.
func New(sampleRate int, opts ...Option) *Mixer {
	m := &Mixer{
		rate:     sampleRate,
		channels: DefaultChannels,
		pending:  make(schedule[*voice], 0, defaultQueueCap),
	}
	for _, o := range opts {
		o(m)
	}
	heap.Init(&m.pending)
	heap.Init(&m.timers)
	return m
}

// SampleRate implements [audio.Device].
func (m *Mixer) SampleRate() int { return m.rate }

// Channels returns the number of interleaved output channels.
func (m *Mixer) Channels() int { return m.channels }

// Now implements [audio.Device].
func (m *Mixer) Now() time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.timeOf(m.pos)
}

// Schedule implements [audio.Device].
func (m *Mixer) Schedule(src audio.Source, at time.Duration) (audio.Voice, error) {
	buf := audio.ToBuffer(src, m.rate)

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil, audio.ErrDeviceClosed
	}

	start := max(m.frameOf(at), m.pos)
	v := &voice{
		m:     m,
		buf:   buf,
		start: start,
		gain:  audio.NewEnvelope(1),
		done:  make(chan struct{}),
	}
	m.seq++
	heap.Push(&m.pending, entry[*voice]{at: start, seq: m.seq, item: v})
	return v, nil
}

// AfterFunc implements [audio.Device]. On a closed mixer the callback never
// fires.
func (m *Mixer) AfterFunc(d time.Duration, fn func()) audio.Timer {
	m.mu.Lock()
	defer m.mu.Unlock()

	t := &timer{m: m, fn: fn}
	if m.closed {
		t.stopped = true
		return t
	}
	m.seq++
	heap.Push(&m.timers, entry[*timer]{at: m.pos + m.frameOf(max(d, 0)), seq: m.seq, item: t})
	return t
}

// Resume implements [audio.Device]. The resume hook runs at most once per
// successful call sequence; a failing hook can be retried.
func (m *Mixer) Resume(ctx context.Context) error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return audio.ErrDeviceClosed
	}
	if m.resumed || m.resumeFn == nil {
		m.resumed = true
		m.mu.Unlock()
		return nil
	}
	fn := m.resumeFn
	m.mu.Unlock()

	if err := fn(ctx); err != nil {
		return err
	}

	m.mu.Lock()
	m.resumed = true
	m.mu.Unlock()
	return nil
}

// Close implements [audio.Device]. It stops every voice, cancels all pending
// timers, and runs the close hook. Close is idempotent; subsequent calls are
// no-ops and return nil.
func (m *Mixer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true

	var stopped []*voice
	stopped = append(stopped, m.active...)
	m.active = nil
	for m.pending.Len() > 0 {
		stopped = append(stopped, heap.Pop(&m.pending).(entry[*voice]).item)
	}
	for m.timers.Len() > 0 {
		heap.Pop(&m.timers).(entry[*timer]).item.stopped = true
	}
	for _, v := range stopped {
		v.stopped = true
	}
	m.mu.Unlock()

	for _, v := range stopped {
		v.finish()
	}
	if m.closeFn != nil {
		return m.closeFn()
	}
	return nil
}

// Render mixes the next len(out)/Channels() frames into out (interleaved)
// and advances the clock by that amount. A closed mixer renders silence
// without advancing.
func (m *Mixer) Render(out []float32) {
	clear(out)
	n := int64(len(out) / m.channels)

	m.mu.Lock()
	if m.closed || n == 0 {
		m.mu.Unlock()
		return
	}
	end := m.pos + n

	for m.pending.Len() > 0 && m.pending.peek() < end {
		v := heap.Pop(&m.pending).(entry[*voice]).item
		if !v.stopped {
			m.active = append(m.active, v)
		}
	}

	var finished []*voice
	kept := m.active[:0]
	for _, v := range m.active {
		if v.stopped {
			continue
		}
		v.mix(out, m.pos, n)
		if v.end() <= end {
			v.stopped = true
			finished = append(finished, v)
			continue
		}
		kept = append(kept, v)
	}
	clear(m.active[len(kept):])
	m.active = kept
	m.pos = end

	var due []*timer
	for m.timers.Len() > 0 && m.timers.peek() <= end {
		t := heap.Pop(&m.timers).(entry[*timer]).item
		if t.stopped {
			continue
		}
		t.fired = true
		due = append(due, t)
	}
	m.callbacks.Add(len(due))
	m.mu.Unlock()

	for _, v := range finished {
		v.finish()
	}
	for _, t := range due {
		go func() {
			defer m.callbacks.Done()
			t.fn()
		}()
	}
}

// Settle blocks until every timer callback fired so far has returned. Offline
// renderers call it between quanta so callbacks observe the clock at the
// quantum in which they fired.
func (m *Mixer) Settle() { m.callbacks.Wait() }

// Idle reports whether nothing is playing, queued, or pending on a timer.
func (m *Mixer) Idle() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.active) > 0 {
		return false
	}
	for _, e := range m.timers {
		if !e.item.stopped {
			return false
		}
	}
	for _, e := range m.pending {
		if !e.item.stopped {
			return false
		}
	}
	return true
}

// timeOf and frameOf round to the nearest unit, so frameOf(timeOf(n)) == n
// and a cursor built from Start()+Duration() lands on the voice's last frame.
func (m *Mixer) timeOf(frames int64) time.Duration {
	return time.Duration(divRound(frames*int64(time.Second), int64(m.rate)))
}

func (m *Mixer) frameOf(d time.Duration) int64 {
	return divRound(int64(d)*int64(m.rate), int64(time.Second))
}

func divRound(a, b int64) int64 {
	if a < 0 {
		return -divRound(-a, b)
	}
	return (a + b/2) / b
}

// ── voice ─────────────────────────────────────────────────────────────────────

// voice is one scheduled buffer. Fields other than done are guarded by m.mu.
type voice struct {
	m       *Mixer
	buf     *audio.Buffer
	start   int64
	gain    *audio.Envelope
	stopped bool

	done     chan struct{}
	doneOnce sync.Once
}

func (v *voice) Start() time.Duration    { return v.m.timeOf(v.start) }
func (v *voice) Duration() time.Duration { return v.m.timeOf(v.end()) - v.m.timeOf(v.start) }
func (v *voice) Gain() *audio.Envelope   { return v.gain }
func (v *voice) Done() <-chan struct{}   { return v.done }

// Stop implements [audio.Voice].
func (v *voice) Stop() {
	v.m.mu.Lock()
	v.stopped = true
	v.m.mu.Unlock()
	v.finish()
}

func (v *voice) finish() { v.doneOnce.Do(func() { close(v.done) }) }

func (v *voice) end() int64 { return v.start + int64(v.buf.Len()) }

// mix adds the voice's contribution to frames [pos, pos+n) into out.
// Must be called with m.mu held.
func (v *voice) mix(out []float32, pos, n int64) {
	chans := v.m.channels
	srcChans := v.buf.Channels()
	length := int64(v.buf.Len())
	for i := range n {
		f := pos + i - v.start
		if f < 0 {
			continue
		}
		if f >= length {
			break
		}
		g := float32(v.gain.ValueAt(v.m.timeOf(pos + i)))
		for c := range chans {
			out[int(i)*chans+c] += g * v.sample(int(f), c, chans, srcChans)
		}
	}
}

// sample maps output channel c onto the buffer's channels: mono sources are
// duplicated, a mono output averages all source channels.
func (v *voice) sample(f, c, chans, srcChans int) float32 {
	switch {
	case srcChans == 1:
		return v.buf.Samples[0][f]
	case chans == 1:
		var sum float32
		for sc := range srcChans {
			sum += v.buf.Samples[sc][f]
		}
		return sum / float32(srcChans)
	default:
		return v.buf.Samples[c%srcChans][f]
	}
}

// ── timer ─────────────────────────────────────────────────────────────────────

type timer struct {
	m       *Mixer
	fn      func()
	fired   bool
	stopped bool
}

// Stop implements [audio.Timer].
func (t *timer) Stop() bool {
	t.m.mu.Lock()
	defer t.m.mu.Unlock()
	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
