package conversation

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/audio/mixer"
	audiomock "github.com/MrWong99/solace/pkg/audio/mock"
	"github.com/MrWong99/solace/pkg/provider/live"
	livemock "github.com/MrWong99/solace/pkg/provider/live/mock"
)

type fixture struct {
	dev     *audiomock.Device
	reg     *audio.DeviceRegistry
	capture *audiomock.CaptureSource
	remote  *livemock.Session
	prov    *livemock.Provider
	ctrl    *Controller
	reader  *sdkmetric.ManualReader
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		dev:     &audiomock.Device{},
		capture: &audiomock.CaptureSource{},
		remote:  livemock.NewSession(64),
	}
	f.reg = audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) { return f.dev, nil })
	f.prov = &livemock.Provider{Session: f.remote}

	f.reader = sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(f.reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	m, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	f.ctrl = New(f.prov, f.reg, f.capture, WithMetrics(m), WithProviderName("gemini"))
	return f
}

func (f *fixture) connect(t *testing.T, cfg Config) *Session {
	t.Helper()
	s, err := f.ctrl.Connect(context.Background(), cfg)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(s.Stop)
	return s
}

// chunk returns a silent 24 kHz mono payload of length d.
func chunk(d time.Duration) string {
	return audio.EncodeFrame(make([]float32, audio.DurationToFrames(d, audio.SpeechSampleRate)))
}

func emit(t *testing.T, s *livemock.Session, ev live.Event) {
	t.Helper()
	if !s.Emit(ev) {
		t.Fatalf("Emit(%s) rejected", ev.Kind)
	}
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

func waitDone(t *testing.T, s *Session) {
	t.Helper()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not end (status %s)", s.Status())
	}
}

// barrier emits a short chunk and waits until it is scheduled, which proves
// every event emitted before it has been handled. It returns the voice.
func (f *fixture) barrier(t *testing.T) *audiomock.Voice {
	t.Helper()
	n := len(f.dev.Voices())
	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(10 * time.Millisecond)})
	waitFor(t, "barrier chunk", func() bool { return len(f.dev.Voices()) > n })
	return f.dev.Voices()[n]
}

func TestConnect_Active(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	if f.ctrl.Status() != Disconnected {
		t.Fatalf("initial status = %s", f.ctrl.Status())
	}
	s := f.connect(t, Config{SystemInstruction: "Be calm.", Voice: "Kore"})

	if s.Status() != Active || f.ctrl.Status() != Active {
		t.Fatalf("status = %s, want active", s.Status())
	}
	if s.ID() == "" {
		t.Error("session has no ID")
	}
	calls := f.prov.Calls()
	if len(calls) != 1 {
		t.Fatalf("Connect calls = %d, want 1", len(calls))
	}
	want := live.Config{Instructions: "Be calm.", Voice: "Kore", InputSampleRate: 16000}
	if calls[0].Cfg != want {
		t.Errorf("live config = %+v, want %+v", calls[0].Cfg, want)
	}
	if len(f.capture.FrameSizes) != 1 || f.capture.FrameSizes[0] != DefaultFrameSize {
		t.Errorf("capture frame sizes = %v, want [%d]", f.capture.FrameSizes, DefaultFrameSize)
	}
	if f.reg.Refs() != 1 || f.dev.CallCountResume != 1 {
		t.Errorf("refs = %d resumes = %d, want 1/1", f.reg.Refs(), f.dev.CallCountResume)
	}
}

func TestOutbound_EncodesCapturedFrames(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t, Config{})

	samples := []float32{0, 0.5, -0.5, 0.25}
	if !f.capture.Last().Send(audio.Frame{Samples: samples, SampleRate: 16000, Channels: 1}) {
		t.Fatal("capture rejected frame")
	}

	select {
	case <-f.remote.SentNotify():
	case <-time.After(2 * time.Second):
		t.Fatal("frame never sent")
	}
	sent := f.remote.Sent()
	if len(sent) != 1 || sent[0] != audio.EncodeFrame(samples) {
		t.Errorf("sent = %q, want one encoded frame", sent)
	}
}

func TestOutbound_ConvertsToInputFormat(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t, Config{})

	// 48 kHz stereo: 96 interleaved samples, 48 frames, 16 frames at 16 kHz.
	f.capture.Last().Send(audio.Frame{Samples: make([]float32, 96), SampleRate: 48000, Channels: 2})

	waitFor(t, "converted frame", func() bool { return len(f.remote.Sent()) == 1 })
	pcm, err := audio.DecodeBase64(f.remote.Sent()[0])
	if err != nil {
		t.Fatalf("decode sent frame: %v", err)
	}
	if len(pcm) != 16*2 {
		t.Errorf("sent %d bytes, want %d", len(pcm), 16*2)
	}
}

func TestInbound_SchedulesBackToBack(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.dev.SetNow(5 * time.Second)
	f.connect(t, Config{})

	durations := []time.Duration{100 * time.Millisecond, 250 * time.Millisecond, 50 * time.Millisecond}
	for _, d := range durations {
		emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(d)})
	}
	waitFor(t, "three voices", func() bool { return len(f.dev.Voices()) == 3 })

	voices := f.dev.Voices()
	want := 5 * time.Second
	for i, v := range voices {
		if v.Start() != want {
			t.Errorf("voice %d start = %v, want %v", i, v.Start(), want)
		}
		if v.Duration() != durations[i] {
			t.Errorf("voice %d duration = %v, want %v", i, v.Duration(), durations[i])
		}
		want += durations[i]
	}
}

func TestInbound_OddSizedChunksOnMixerAreGapless(t *testing.T) {
	t.Parallel()
	const frames = 1001
	dev := mixer.New(audio.SpeechSampleRate)
	reg := audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) { return dev, nil })
	remote := livemock.NewSession(16)
	ctrl := New(&livemock.Provider{Session: remote}, reg, &audiomock.CaptureSource{})

	s, err := ctrl.Connect(context.Background(), Config{})
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(s.Stop)

	tone := make([]float32, frames)
	for i := range tone {
		tone[i] = 0.5
	}
	for range 4 {
		emit(t, remote, live.Event{Kind: live.EventAudio, Audio: audio.EncodeFrame(tone)})
	}
	// Events are handled in order, so the transcript marks every chunk as scheduled.
	emit(t, remote, live.Event{Kind: live.EventInputTranscript, Text: "ok"})
	waitFor(t, "chunks scheduled", func() bool { u, _ := s.Pending(); return u == "ok" })

	out := make([]float32, 4*frames+8)
	dev.Render(out)
	for i, v := range out {
		want := float32(0)
		if i < 4*frames {
			want = 0.5
		}
		if math.Abs(float64(v-want)) > 1e-3 {
			t.Fatalf("sample %d = %v, want %v", i, v, want)
		}
	}
}

func TestInbound_LateChunkStartsNow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(100 * time.Millisecond)})
	waitFor(t, "first voice", func() bool { return len(f.dev.Voices()) == 1 })

	f.dev.Advance(time.Second)
	v := f.barrier(t)
	if v.Start() != time.Second {
		t.Errorf("late chunk start = %v, want 1s", v.Start())
	}
}

func TestInbound_FinishedVoicesLeaveTheSet(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(100 * time.Millisecond)})
	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(100 * time.Millisecond)})
	waitFor(t, "two voices", func() bool { return len(f.dev.Voices()) == 2 })
	first := f.dev.Voices()[0]

	f.dev.Advance(150 * time.Millisecond)
	if !first.Finished() {
		t.Fatal("first voice did not finish")
	}
	s.Stop()

	if first.Stopped() {
		t.Error("finished voice was stopped again at teardown")
	}
	if !f.dev.Voices()[1].Stopped() {
		t.Error("pending voice not stopped at teardown")
	}
}

func TestTranscript_TurnComplete(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventInputTranscript, Text: "I feel "})
	emit(t, f.remote, live.Event{Kind: live.EventInputTranscript, Text: "tense."})
	emit(t, f.remote, live.Event{Kind: live.EventOutputTranscript, Text: "Let's breathe."})
	f.barrier(t)

	user, bot := s.Pending()
	if user != "I feel tense." || bot != "Let's breathe." {
		t.Errorf("pending = %q, %q", user, bot)
	}
	if len(s.History()) != 0 {
		t.Fatal("history written before turn complete")
	}

	emit(t, f.remote, live.Event{Kind: live.EventTurnComplete})
	f.barrier(t)

	got := s.History()
	if len(got) != 2 {
		t.Fatalf("history = %+v, want two entries", got)
	}
	if got[0].Speaker != SpeakerUser || got[0].Text != "I feel tense." {
		t.Errorf("entry 0 = %+v", got[0])
	}
	if got[1].Speaker != SpeakerAssistant || got[1].Text != "Let's breathe." {
		t.Errorf("entry 1 = %+v", got[1])
	}
	if user, bot := s.Pending(); user != "" || bot != "" {
		t.Errorf("pending after turn = %q, %q", user, bot)
	}
}

func TestTranscript_EmptyAccumulatorsAddNothing(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventTurnComplete})
	emit(t, f.remote, live.Event{Kind: live.EventOutputTranscript, Text: "  \n"})
	emit(t, f.remote, live.Event{Kind: live.EventTurnComplete})
	f.barrier(t)

	if h := s.History(); len(h) != 0 {
		t.Errorf("history = %+v, want empty", h)
	}
	if _, bot := s.Pending(); bot != "" {
		t.Errorf("whitespace fragment survived the turn: %q", bot)
	}

	emit(t, f.remote, live.Event{Kind: live.EventOutputTranscript, Text: "Only me."})
	emit(t, f.remote, live.Event{Kind: live.EventTurnComplete})
	f.barrier(t)
	h := s.History()
	if len(h) != 1 || h[0].Speaker != SpeakerAssistant {
		t.Errorf("history = %+v, want one assistant entry", h)
	}
}

func TestInbound_MalformedChunkDropped(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventInputTranscript, Text: "hi"})
	emit(t, f.remote, live.Event{Kind: live.EventTurnComplete})
	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(100 * time.Millisecond)})
	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: "!!not base64!!"})
	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: "AA=="}) // one byte: no complete sample
	v := f.barrier(t)

	if v.Start() != 100*time.Millisecond {
		t.Errorf("chunk after malformed ones starts at %v, want 100ms", v.Start())
	}
	if len(f.dev.Voices()) != 2 {
		t.Errorf("voices = %d, want 2", len(f.dev.Voices()))
	}
	if s.Status() != Active {
		t.Errorf("status = %s, want active", s.Status())
	}
	if len(s.History()) != 1 {
		t.Errorf("history = %+v, want unchanged", s.History())
	}
}

func TestInbound_DecodeFailureThreshold(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{MaxDecodeFailures: 2})

	bad := live.Event{Kind: live.EventAudio, Audio: "%%%"}
	emit(t, f.remote, bad)
	emit(t, f.remote, bad)
	f.barrier(t) // resets the streak
	emit(t, f.remote, bad)
	emit(t, f.remote, bad)
	f.barrier(t)
	if s.Status() != Active {
		t.Fatalf("status = %s after tolerated failures", s.Status())
	}

	emit(t, f.remote, bad)
	emit(t, f.remote, bad)
	emit(t, f.remote, bad)
	waitDone(t, s)

	if s.Status() != Failed {
		t.Errorf("status = %s, want error", s.Status())
	}
	err := s.Err()
	if !errors.Is(err, ErrTransportInterrupted) || !errors.Is(err, audio.ErrInvalidEncoding) {
		t.Errorf("err = %v, want transport interrupted wrapping invalid encoding", err)
	}
	if !Retryable(err) {
		t.Error("threshold teardown should be retryable")
	}
	if f.reg.Refs() != 0 {
		t.Errorf("refs = %d, want 0", f.reg.Refs())
	}
}

func TestInbound_InterruptedFlushesQueue(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.connect(t, Config{})

	for range 3 {
		emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(time.Second)})
	}
	waitFor(t, "three voices", func() bool { return len(f.dev.Voices()) == 3 })
	f.dev.Advance(500 * time.Millisecond)

	emit(t, f.remote, live.Event{Kind: live.EventInterrupted})
	v := f.barrier(t)

	for i, old := range f.dev.Voices()[:3] {
		if !old.Stopped() {
			t.Errorf("voice %d still queued after interruption", i)
		}
	}
	if v.Start() != 500*time.Millisecond {
		t.Errorf("next chunk start = %v, want now (500ms)", v.Start())
	}
}

func TestStop_TearsDownIdempotently(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(time.Second)})
	waitFor(t, "voice", func() bool { return len(f.dev.Voices()) == 1 })

	s.Stop()
	s.Stop()
	f.ctrl.Stop()

	if s.Status() != Disconnected || s.Err() != nil {
		t.Errorf("status = %s err = %v, want disconnected/nil", s.Status(), s.Err())
	}
	if !f.capture.Last().Closed() {
		t.Error("capture not closed")
	}
	if !f.remote.Closed() {
		t.Error("remote session not closed")
	}
	if !f.dev.Voices()[0].Stopped() {
		t.Error("scheduled voice not stopped")
	}
	if f.reg.Refs() != 0 || !f.dev.Closed() {
		t.Errorf("refs = %d closed = %v, want device released", f.reg.Refs(), f.dev.Closed())
	}
	if f.ctrl.Status() != Disconnected {
		t.Errorf("controller status = %s", f.ctrl.Status())
	}
}

func TestRemoteClose_Disconnects(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	f.remote.End(nil)
	waitDone(t, s)

	if s.Status() != Disconnected || s.Err() != nil {
		t.Errorf("status = %s err = %v, want disconnected/nil", s.Status(), s.Err())
	}
	if !f.capture.Last().Closed() || f.reg.Refs() != 0 {
		t.Error("resources not released after remote close")
	}
}

func TestTransportError_Fails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	cause := errors.New("connection reset")
	f.remote.End(cause)
	waitDone(t, s)

	if s.Status() != Failed || f.ctrl.Status() != Failed {
		t.Errorf("status = %s, want error", s.Status())
	}
	err := s.Err()
	var ce *Error
	if !errors.As(err, &ce) || ce.Kind != TransportInterrupted {
		t.Fatalf("err = %v, want TransportInterrupted", err)
	}
	if !errors.Is(err, cause) || !errors.Is(err, ErrTransportInterrupted) {
		t.Errorf("err = %v does not match cause and sentinel", err)
	}
	if f.reg.Refs() != 0 {
		t.Errorf("refs = %d, want 0", f.reg.Refs())
	}

	// Stop after a failure is a no-op.
	s.Stop()
	if s.Status() != Failed {
		t.Errorf("Stop changed status to %s", s.Status())
	}
}

func TestInbound_DeviceLostFails(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	f.dev.ScheduleError = errors.New("device unplugged")
	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: chunk(time.Second)})
	waitDone(t, s)

	if !errors.Is(s.Err(), ErrDeviceUnavailable) {
		t.Errorf("err = %v, want ErrDeviceUnavailable", s.Err())
	}
}

func TestConnect_Failures(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		setup     func(f *fixture)
		sentinel  error
		retryable bool
		connected bool
	}{
		{
			name:      "permission denied",
			setup:     func(f *fixture) { f.capture.OpenError = audio.ErrPermissionDenied },
			sentinel:  ErrPermissionDenied,
			retryable: false,
		},
		{
			name:      "capture device missing",
			setup:     func(f *fixture) { f.capture.OpenError = errors.New("no input device") },
			sentinel:  ErrDeviceUnavailable,
			retryable: true,
		},
		{
			name:      "output suspended",
			setup:     func(f *fixture) { f.dev.ResumeError = errors.New("suspended") },
			sentinel:  ErrDeviceUnavailable,
			retryable: true,
		},
		{
			name:      "handshake",
			setup:     func(f *fixture) { f.prov.ConnectErr = errors.New("401 unauthorized") },
			sentinel:  ErrHandshakeFailed,
			retryable: true,
			connected: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			f := newFixture(t)
			tt.setup(f)

			s, err := f.ctrl.Connect(context.Background(), Config{})
			if s != nil {
				t.Fatal("Connect returned a session on failure")
			}
			if !errors.Is(err, tt.sentinel) {
				t.Fatalf("err = %v, want %v", err, tt.sentinel)
			}
			if Retryable(err) != tt.retryable {
				t.Errorf("Retryable = %v, want %v", Retryable(err), tt.retryable)
			}
			if f.reg.Refs() != 0 {
				t.Errorf("refs = %d, want 0", f.reg.Refs())
			}
			if got := len(f.prov.Calls()) > 0; got != tt.connected {
				t.Errorf("provider dialled = %v, want %v", got, tt.connected)
			}
			if c := f.capture.Last(); c != nil && !c.Closed() {
				t.Error("capture left open")
			}
			if f.ctrl.Status() != Disconnected {
				t.Errorf("controller status = %s", f.ctrl.Status())
			}
		})
	}
}

func TestConnect_AcquireFailure(t *testing.T) {
	t.Parallel()
	reg := audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) {
		return nil, errors.New("no output")
	})
	ctrl := New(&livemock.Provider{}, reg, &audiomock.CaptureSource{})
	if _, err := ctrl.Connect(context.Background(), Config{}); !errors.Is(err, ErrDeviceUnavailable) {
		t.Fatalf("err = %v, want ErrDeviceUnavailable", err)
	}
}

func TestConnect_ReplacesPreviousSession(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	f.prov.Session = nil // fresh remote per Connect

	first := f.connect(t, Config{})
	second := f.connect(t, Config{})

	if first.Status() != Disconnected {
		t.Errorf("first status = %s, want disconnected", first.Status())
	}
	if second.Status() != Active || f.ctrl.Current() != second {
		t.Errorf("second status = %s, want active and current", second.Status())
	}
	if f.reg.Refs() != 1 {
		t.Errorf("refs = %d, want 1", f.reg.Refs())
	}
	if !first.remote.(*livemock.Session).Closed() {
		t.Error("first remote not closed")
	}
	if len(f.capture.Opened) != 2 || !f.capture.Opened[0].Closed() || f.capture.Opened[1].Closed() {
		t.Error("capture handles are not session scoped")
	}
}

// gatedProvider blocks Connect until release is closed. With deaf set it
// ignores cancellation and always returns session.
type gatedProvider struct {
	entered chan struct{}
	release chan struct{}
	session live.Session
	deaf    bool
}

func (p *gatedProvider) Connect(ctx context.Context, _ live.Config) (live.Session, error) {
	close(p.entered)
	if p.deaf {
		<-p.release
		return p.session, nil
	}
	select {
	case <-p.release:
		return p.session, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func TestController_StatusConnecting(t *testing.T) {
	t.Parallel()
	reg := audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) { return &audiomock.Device{}, nil })
	p := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{}), session: livemock.NewSession(4)}
	ctrl := New(p, reg, &audiomock.CaptureSource{})

	result := make(chan error, 1)
	go func() {
		s, err := ctrl.Connect(context.Background(), Config{})
		if err == nil {
			defer s.Stop()
		}
		result <- err
	}()

	<-p.entered
	if ctrl.Status() != Connecting {
		t.Errorf("status during handshake = %s, want connecting", ctrl.Status())
	}
	close(p.release)
	if err := <-result; err != nil {
		t.Fatalf("Connect: %v", err)
	}
}

func TestStop_DuringConnectAborts(t *testing.T) {
	t.Parallel()
	for _, deaf := range []bool{false, true} {
		name := "provider honours context"
		if deaf {
			name = "provider ignores context"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			reg := audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) { return &audiomock.Device{}, nil })
			capture := &audiomock.CaptureSource{}
			remote := livemock.NewSession(4)
			p := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{}), session: remote, deaf: deaf}
			ctrl := New(p, reg, capture)

			result := make(chan error, 1)
			go func() {
				s, err := ctrl.Connect(context.Background(), Config{})
				if err == nil {
					s.Stop()
				}
				result <- err
			}()

			<-p.entered
			ctrl.Stop()
			close(p.release)

			err := <-result
			if !errors.Is(err, ErrStopped) || !errors.Is(err, ErrHandshakeFailed) {
				t.Fatalf("Connect err = %v, want handshake failure caused by stop", err)
			}
			if ctrl.Status() != Disconnected || ctrl.Current() != nil {
				t.Errorf("status = %s, want disconnected with no session", ctrl.Status())
			}
			if reg.Refs() != 0 {
				t.Errorf("refs = %d, want 0", reg.Refs())
			}
			if len(capture.Opened) != 1 || !capture.Opened[0].Closed() {
				t.Error("capture not closed")
			}
			if deaf && !remote.Closed() {
				t.Error("late remote session not closed")
			}
		})
	}
}

func TestConnect_HandshakeHonoursContext(t *testing.T) {
	t.Parallel()
	reg := audio.NewDeviceRegistry(func(context.Context) (audio.Device, error) { return &audiomock.Device{}, nil })
	p := &gatedProvider{entered: make(chan struct{}), release: make(chan struct{})}
	ctrl := New(p, reg, &audiomock.CaptureSource{})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := ctrl.Connect(ctx, Config{})
	if !errors.Is(err, ErrHandshakeFailed) || !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want handshake failure from deadline", err)
	}
	if reg.Refs() != 0 {
		t.Errorf("refs = %d, want 0", reg.Refs())
	}
}

func TestMetrics_ChunksAndTurns(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	s := f.connect(t, Config{})

	emit(t, f.remote, live.Event{Kind: live.EventAudio, Audio: "bad"})
	emit(t, f.remote, live.Event{Kind: live.EventInputTranscript, Text: "hello"})
	emit(t, f.remote, live.Event{Kind: live.EventTurnComplete})
	f.barrier(t)
	s.Stop()

	var rm metricdata.ResourceMetrics
	if err := f.reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	sums := map[string]map[string]int64{}
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			sum, ok := m.Data.(metricdata.Sum[int64])
			if !ok {
				continue
			}
			for _, dp := range sum.DataPoints {
				key := ""
				for _, kv := range dp.Attributes.ToSlice() {
					if kv.Key == "status" || kv.Key == "speaker" || kv.Key == "kind" {
						key = kv.Value.AsString()
					}
				}
				if sums[m.Name] == nil {
					sums[m.Name] = map[string]int64{}
				}
				sums[m.Name][key] += dp.Value
			}
		}
	}

	checks := []struct {
		metric, key string
		want        int64
	}{
		{"solace.live.chunks", "scheduled", 1},
		{"solace.live.chunks", "dropped", 1},
		{"solace.codec.errors", "invalid_encoding", 1},
		{"solace.live.turns", "user", 1},
		{"solace.active_conversations", "", 0},
	}
	for _, c := range checks {
		if got := sums[c.metric][c.key]; got != c.want {
			t.Errorf("%s{%s} = %d, want %d", c.metric, c.key, got, c.want)
		}
	}
}

func TestStatusStrings(t *testing.T) {
	t.Parallel()
	want := map[Status]string{
		Disconnected: "disconnected",
		Connecting:   "connecting",
		Active:       "active",
		Failed:       "error",
		Status(42):   "unknown",
	}
	for s, w := range want {
		if s.String() != w {
			t.Errorf("%d.String() = %q, want %q", s, s.String(), w)
		}
	}
	kinds := map[ErrorKind]string{
		PermissionDenied:     "permission_denied",
		HandshakeFailed:      "handshake_failed",
		TransportInterrupted: "transport_interrupted",
		DeviceUnavailable:    "device_unavailable",
	}
	for k, w := range kinds {
		if k.String() != w {
			t.Errorf("%d.String() = %q, want %q", k, k.String(), w)
		}
	}
}
