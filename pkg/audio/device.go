package audio

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrDeviceClosed is returned when scheduling on a device that has
	// already been closed.
	ErrDeviceClosed = errors.New("audio: device closed")

	// ErrPermissionDenied is returned by a [CaptureSource] when the platform
	// refuses microphone access.
	ErrPermissionDenied = errors.New("audio: capture permission denied")
)

// Source is anything a [Device] can play: a decoded [Buffer] or a synthesised
// [Tone]. Sources are immutable once scheduled.
type Source interface {
	// Rate returns the source's sample rate in Hz.
	Rate() int

	// Channels returns the channel count.
	Channels() int

	// Len returns the number of sample frames.
	Len() int

	// At returns the sample at frame for channel.
	At(frame, channel int) float32
}

// Device is a platform audio output with its own clock.
//
// All scheduling is expressed on the device clock rather than wall time so
// that positions and fades stay correct even if the caller is briefly
// delayed. Implementations must be safe for concurrent use.
type Device interface {
	// Now returns the current output clock: the presentation time of the
	// next sample the device will render.
	Now() time.Duration

	// SampleRate returns the output sample rate in Hz.
	SampleRate() int

	// Schedule starts src at device time at. Times in the past are clamped to
	// Now. Sources at a different rate are resampled to the device rate.
	Schedule(src Source, at time.Duration) (Voice, error)

	// AfterFunc calls fn in its own goroutine once d of device time has
	// elapsed. The returned Timer cancels the call.
	AfterFunc(d time.Duration, fn func()) Timer

	// Resume makes sure the device is running. Devices that start suspended
	// (platform autoplay policies) fail here when they cannot be started.
	Resume(ctx context.Context) error

	// Close stops all voices and releases the device. Idempotent.
	Close() error
}

// Voice is one scheduled playback of a [Source] on a [Device].
type Voice interface {
	// Start returns the device time at which the voice begins.
	Start() time.Duration

	// Duration returns the voice's length at the device rate.
	Duration() time.Duration

	// Gain returns the voice's gain automation. Changes take effect on the
	// next rendered sample.
	Gain() *Envelope

	// Stop silences the voice immediately. Idempotent.
	Stop()

	// Done is closed once the voice has finished playing or was stopped.
	Done() <-chan struct{}
}

// Timer is a pending device-clock callback.
type Timer interface {
	// Stop prevents the callback from firing. It reports whether the call
	// stopped the timer, false if it already fired or was stopped.
	Stop() bool
}

// Capture is an open microphone stream. Frames is closed when the capture is
// closed or the underlying device fails.
type Capture interface {
	Frames() <-chan Frame
	Close() error
}

// CaptureSource opens microphone captures. Each call yields a fresh,
// session-scoped [Capture]; handles are never shared.
type CaptureSource interface {
	// Open starts capturing in frames of frameSize samples. The returned
	// frames may arrive in the device's native format; use [ConvertStream]
	// to normalise them. A platform refusal is reported as
	// [ErrPermissionDenied].
	Open(ctx context.Context, frameSize int) (Capture, error)
}
