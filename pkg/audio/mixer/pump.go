package mixer

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/MrWong99/solace/pkg/audio"
)

// DefaultQuantum is the render block size used by [Pump] and [RenderOffline]
// when none is given.
const DefaultQuantum = 20 * time.Millisecond

// Sink receives rendered, interleaved blocks.
type Sink interface {
	Write(samples []float32) error
}

// NullSink discards everything. Pumping into it keeps the clock running in
// real time without any output hardware.
type NullSink struct{}

// Write implements [Sink].
func (NullSink) Write([]float32) error { return nil }

// Pump renders quantum-sized blocks from m into sink paced by the wall clock
// until ctx is cancelled. It returns ctx.Err() or the first sink error.
func Pump(ctx context.Context, m *Mixer, sink Sink, quantum time.Duration) error {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	block := make([]float32, int(m.frameOf(quantum))*m.channels)

	ticker := time.NewTicker(quantum)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.Render(block)
			if err := sink.Write(block); err != nil {
				return fmt.Errorf("mixer: sink: %w", err)
			}
		}
	}
}

// RenderOffline renders as fast as possible until the mixer has nothing left
// to play and no pending timers, or until limit of device time has been
// rendered (zero means no limit). Timer callbacks are settled between quanta.
func RenderOffline(ctx context.Context, m *Mixer, sink Sink, quantum, limit time.Duration) error {
	if quantum <= 0 {
		quantum = DefaultQuantum
	}
	block := make([]float32, int(m.frameOf(quantum))*m.channels)
	start := m.Now()

	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		m.Settle()
		if m.Idle() {
			return nil
		}
		if limit > 0 && m.Now()-start >= limit {
			return nil
		}
		m.Render(block)
		if err := sink.Write(block); err != nil {
			return fmt.Errorf("mixer: sink: %w", err)
		}
	}
}

// WAVSink collects rendered blocks and writes them as a 16-bit WAV file on
// Close.
type WAVSink struct {
	w        io.WriteSeeker
	rate     int
	channels int
	samples  []float32
}

// NewWAVSink returns a sink that writes to w in m's output format.
func NewWAVSink(w io.WriteSeeker, m *Mixer) *WAVSink {
	return &WAVSink{w: w, rate: m.rate, channels: m.channels}
}

// Write implements [Sink].
func (s *WAVSink) Write(samples []float32) error {
	s.samples = append(s.samples, samples...)
	return nil
}

// Buffer returns everything written so far as a de-interleaved buffer.
func (s *WAVSink) Buffer() *audio.Buffer {
	frames := len(s.samples) / s.channels
	buf := audio.NewBuffer(s.rate, s.channels, frames)
	for i := range frames {
		for c := range s.channels {
			buf.Samples[c][i] = s.samples[i*s.channels+c]
		}
	}
	return buf
}

// Close encodes the collected audio to the underlying writer.
func (s *WAVSink) Close() error {
	return audio.WriteWAV(s.w, s.Buffer())
}
