//go:build portaudio

// Package portaudio connects the software mixer and microphone capture to
// the host's default audio devices through PortAudio.
//
// It is only built with the "portaudio" build tag because it requires the
// PortAudio C library:
//
//	go build -tags portaudio ./cmd/solace
package portaudio

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	pa "github.com/gordonklaus/portaudio"

	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/audio/mixer"
)

// DefaultFramesPerBuffer is the output callback block size.
const DefaultFramesPerBuffer = 512

// OpenOutput returns an [audio.OpenFunc] that opens the default output device
// as a mono [mixer.Mixer]. The stream starts on the mixer's first Resume and
// is torn down when the mixer is closed.
func OpenOutput(sampleRate, framesPerBuffer int) audio.OpenFunc {
	if framesPerBuffer <= 0 {
		framesPerBuffer = DefaultFramesPerBuffer
	}
	return func(ctx context.Context) (audio.Device, error) {
		if err := pa.Initialize(); err != nil {
			return nil, fmt.Errorf("portaudio: initialize: %w", err)
		}

		var stream *pa.Stream
		m := mixer.New(sampleRate,
			mixer.WithResumeFunc(func(context.Context) error {
				if err := stream.Start(); err != nil {
					return fmt.Errorf("portaudio: start output: %w", err)
				}
				return nil
			}),
			mixer.WithCloseFunc(func() error {
				err := errors.Join(stream.Stop(), stream.Close())
				return errors.Join(err, pa.Terminate())
			}),
		)

		var err error
		stream, err = pa.OpenDefaultStream(0, m.Channels(), float64(sampleRate), framesPerBuffer, func(out []float32) {
			m.Render(out)
		})
		if err != nil {
			_ = pa.Terminate()
			return nil, fmt.Errorf("portaudio: open output: %w", err)
		}
		return m, nil
	}
}

// Microphone is an [audio.CaptureSource] for the default input device.
type Microphone struct {
	// SampleRate requested from the device. Zero means
	// [audio.CaptureSampleRate].
	SampleRate int
}

var _ audio.CaptureSource = Microphone{}

// Open implements [audio.CaptureSource]. Any failure to open or start the
// input stream is reported as [audio.ErrPermissionDenied]; PortAudio does not
// distinguish a refused permission from a missing device.
func (mic Microphone) Open(_ context.Context, frameSize int) (audio.Capture, error) {
	rate := mic.SampleRate
	if rate == 0 {
		rate = audio.CaptureSampleRate
	}
	if err := pa.Initialize(); err != nil {
		return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}

	c := &capture{frames: make(chan audio.Frame, 8)}
	var captured int
	stream, err := pa.OpenDefaultStream(1, 0, float64(rate), frameSize, func(in []float32) {
		samples := make([]float32, len(in))
		copy(samples, in)
		f := audio.Frame{
			Samples:    samples,
			SampleRate: rate,
			Channels:   1,
			Timestamp:  audio.FramesToDuration(captured, rate),
		}
		captured += len(in)
		select {
		case c.frames <- f:
		default:
			c.dropped.Do(func() {
				slog.Warn("portaudio: capture consumer too slow, dropping frames")
			})
		}
	})
	if err != nil {
		_ = pa.Terminate()
		return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = pa.Terminate()
		return nil, fmt.Errorf("%w: %v", audio.ErrPermissionDenied, err)
	}
	c.stream = stream
	return c, nil
}

type capture struct {
	stream    *pa.Stream
	frames    chan audio.Frame
	dropped   sync.Once
	closeOnce sync.Once
	closeErr  error
}

func (c *capture) Frames() <-chan audio.Frame { return c.frames }

// Close stops the input stream before closing the frame channel so the
// callback can no longer send. Idempotent.
func (c *capture) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = errors.Join(c.stream.Stop(), c.stream.Close(), pa.Terminate())
		close(c.frames)
	})
	return c.closeErr
}
