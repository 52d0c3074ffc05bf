package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/audio/mixer"
)

func sampleRate(c config.AudioConfig) int {
	if c.SampleRate > 0 {
		return c.SampleRate
	}
	return audio.SpeechSampleRate
}

func backendName(b config.AudioBackend) string {
	if b == "" {
		return string(config.BackendPortAudio)
	}
	return string(b)
}

// openBackend returns the output opener and microphone for the configured
// backend.
func openBackend(c config.AudioConfig) (audio.OpenFunc, audio.CaptureSource, error) {
	rate := sampleRate(c)
	switch backendName(c.Backend) {
	case string(config.BackendNull):
		return nullOutput(rate), silentMic{}, nil
	case string(config.BackendPortAudio):
		open, mic, ok := portaudioBackend(rate)
		if !ok {
			return nil, nil, fmt.Errorf("audio backend %q needs a binary built with -tags portaudio; set audio.backend to %q on headless machines",
				config.BackendPortAudio, config.BackendNull)
		}
		return open, mic, nil
	}
	return nil, nil, fmt.Errorf("unknown audio backend %q", c.Backend)
}

// nullOutput opens a mixer that is rendered in real time into a
// [mixer.NullSink] until it is closed.
func nullOutput(rate int) audio.OpenFunc {
	return func(context.Context) (audio.Device, error) {
		ctx, cancel := context.WithCancel(context.Background())
		m := mixer.New(rate, mixer.WithCloseFunc(func() error {
			cancel()
			return nil
		}))
		go func() {
			if err := mixer.Pump(ctx, m, mixer.NullSink{}, mixer.DefaultQuantum); err != nil && ctx.Err() == nil {
				slog.Warn("null audio output stopped", "err", err)
			}
		}()
		return m, nil
	}
}

// offlineDevices returns a registry whose device is a mixer that only
// advances when rendered by the caller.
func offlineDevices(c config.AudioConfig) (*audio.DeviceRegistry, *mixer.Mixer) {
	m := mixer.New(sampleRate(c))
	return audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) {
		return m, nil
	}), m
}

// silentMic captures digital silence in real time.
type silentMic struct{}

var _ audio.CaptureSource = silentMic{}

func (silentMic) Open(_ context.Context, frameSize int) (audio.Capture, error) {
	c := &silentCapture{
		frames: make(chan audio.Frame, 1),
		stop:   make(chan struct{}),
	}
	c.wg.Add(1)
	go c.run(frameSize)
	return c, nil
}

type silentCapture struct {
	frames    chan audio.Frame
	stop      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func (c *silentCapture) run(frameSize int) {
	defer c.wg.Done()
	rate := audio.CaptureSampleRate
	ticker := time.NewTicker(audio.FramesToDuration(frameSize, rate))
	defer ticker.Stop()

	var captured int
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
		}
		f := audio.Frame{
			Samples:    make([]float32, frameSize),
			SampleRate: rate,
			Channels:   1,
			Timestamp:  audio.FramesToDuration(captured, rate),
		}
		captured += frameSize
		select {
		case c.frames <- f:
		case <-c.stop:
			return
		default:
		}
	}
}

func (c *silentCapture) Frames() <-chan audio.Frame { return c.frames }

// Close stops the producer before closing the frame channel. Idempotent.
func (c *silentCapture) Close() error {
	c.closeOnce.Do(func() {
		close(c.stop)
		c.wg.Wait()
		close(c.frames)
	})
	return nil
}
