package audio

import "time"

// Frame is a block of captured audio flowing from a microphone towards the
// transport. Frames are ephemeral: they exist only between capture and
// encoding and are never persisted.
type Frame struct {
	// Samples holds interleaved floating-point samples in [-1.0, 1.0].
	Samples []float32

	// SampleRate in Hz (e.g., 48000 for a default input device, 16000 for
	// the live transport).
	SampleRate int

	// Channels: 1 for mono, 2 for stereo.
	Channels int

	// Timestamp marks when this frame was captured, relative to capture start.
	Timestamp time.Duration
}

// Buffer is a fully materialised, playable block of audio. Samples are stored
// per channel (Samples[c][i]) as floats in [-1.0, 1.0).
//
// A Buffer is owned by the controller that created it and must not be mutated
// once it has been handed to a [Device].
type Buffer struct {
	SampleRate int
	Samples    [][]float32
}

// NewBuffer allocates a silent buffer with the given channel count and length
// in frames.
func NewBuffer(sampleRate, channels, frames int) *Buffer {
	b := &Buffer{SampleRate: sampleRate, Samples: make([][]float32, channels)}
	for c := range b.Samples {
		b.Samples[c] = make([]float32, frames)
	}
	return b
}

// Channels returns the number of channels in b.
func (b *Buffer) Channels() int { return len(b.Samples) }

// Len returns the number of sample frames in b.
func (b *Buffer) Len() int {
	if len(b.Samples) == 0 {
		return 0
	}
	return len(b.Samples[0])
}

// Rate implements [Source].
func (b *Buffer) Rate() int { return b.SampleRate }

// At implements [Source].
func (b *Buffer) At(frame, channel int) float32 {
	return b.Samples[channel][frame]
}

// Duration returns the playback length of b at its own sample rate.
func (b *Buffer) Duration() time.Duration {
	return FramesToDuration(b.Len(), b.SampleRate)
}

// Slice returns a buffer sharing b's storage that starts at offset. An offset
// past the end yields an empty buffer.
func (b *Buffer) Slice(offset time.Duration) *Buffer {
	start := DurationToFrames(offset, b.SampleRate)
	start = min(max(start, 0), b.Len())
	out := &Buffer{SampleRate: b.SampleRate, Samples: make([][]float32, len(b.Samples))}
	for c, ch := range b.Samples {
		out.Samples[c] = ch[start:]
	}
	return out
}

// FramesToDuration converts a frame count at rate into a duration.
func FramesToDuration(frames, rate int) time.Duration {
	if rate <= 0 {
		return 0
	}
	return time.Duration(int64(frames) * int64(time.Second) / int64(rate))
}

// DurationToFrames converts d into a frame count at rate, rounding down.
func DurationToFrames(d time.Duration, rate int) int {
	return int(int64(d) * int64(rate) / int64(time.Second))
}
