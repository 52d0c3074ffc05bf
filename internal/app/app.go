// Package app wires the Solace subsystems into a running application.
//
// The App owns the shared output device registry, the playback player, the
// soundscape player, the live conversation controller, the key/value store
// and the providers. At most one feature runs at a time: starting a
// playback, a soundscape or a conversation stops whichever one is running.
//
// For testing, inject doubles via functional options (WithStore,
// WithMetrics). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/conversation"
	"github.com/MrWong99/solace/internal/entitlement"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/internal/playback"
	"github.com/MrWong99/solace/internal/soundscape"
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/provider/live"
	"github.com/MrWong99/solace/pkg/provider/speech"
	"github.com/MrWong99/solace/pkg/provider/text"
	"github.com/MrWong99/solace/pkg/store"
	"github.com/MrWong99/solace/pkg/store/postgres"
	"github.com/MrWong99/solace/pkg/store/sqlite"
)

// ErrNotConfigured is returned when a feature needs a provider that was not
// configured.
var ErrNotConfigured = errors.New("app: provider not configured")

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Speech speech.Provider
	Text   text.Provider
	Live   live.Provider

	// Names label metrics and spans, e.g. "gemini".
	SpeechName string
	TextName   string
	LiveName   string
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	devices   *audio.DeviceRegistry
	capture   audio.CaptureSource
	store     store.Store
	metrics   *observe.Metrics

	player *playback.Player
	scape  *soundscape.Player
	conv   *conversation.Controller

	// featureMu serialises feature starts so no two features overlap. It
	// also guards deviceHeld.
	featureMu  sync.Mutex
	deviceHeld bool

	mu        sync.Mutex
	tier      entitlement.Tier
	audioConf config.AudioConfig

	// savers tracks history writes still in flight.
	savers    sync.WaitGroup
	historyMu sync.Mutex

	// closers are called in order during Shutdown.
	closers  []func() error
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects a key/value store instead of creating one from config.
func WithStore(s store.Store) Option {
	return func(a *App) { a.store = s }
}

// WithMetrics overrides [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// New creates an App. devices is the shared output device registry and
// capture opens the microphone; both come from the audio backend chosen in
// main.go.
func New(ctx context.Context, cfg *config.Config, providers *Providers, devices *audio.DeviceRegistry, capture audio.CaptureSource, opts ...Option) (*App, error) {
	if providers == nil {
		providers = &Providers{}
	}
	a := &App{
		cfg:       cfg,
		providers: providers,
		devices:   devices,
		capture:   capture,
		audioConf: cfg.Audio,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	tier, err := entitlement.ParseTier(cfg.Profile.Tier)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.tier = tier

	if err := a.initStore(ctx); err != nil {
		return nil, fmt.Errorf("app: init store: %w", err)
	}

	a.player = playback.New(devices, append(playerOptions(cfg.Audio), playback.WithMetrics(a.metrics))...)
	a.scape = soundscape.New(devices, soundscape.WithMetrics(a.metrics))

	if providers.Live != nil {
		a.conv = conversation.New(providers.Live, devices, capture,
			conversation.WithMetrics(a.metrics),
			conversation.WithProviderName(nameOr(providers.LiveName, "live")),
		)
	}
	return a, nil
}

// initStore opens the configured store or falls back to memory.
func (a *App) initStore(ctx context.Context) error {
	if a.store != nil {
		return nil
	}
	switch sc := a.cfg.Store; {
	case sc.PostgresDSN != "":
		pg, err := postgres.New(ctx, sc.PostgresDSN)
		if err != nil {
			return err
		}
		a.store = pg
		a.closers = append(a.closers, func() error {
			pg.Close()
			return nil
		})
	case sc.SQLitePath != "":
		db, err := sqlite.New(ctx, sc.SQLitePath)
		if err != nil {
			return err
		}
		a.store = db
		a.closers = append(a.closers, db.Close)
	default:
		a.store = store.NewMemory()
	}
	return nil
}

// Store returns the key/value store in use.
func (a *App) Store() store.Store { return a.store }

// Player returns the playback player.
func (a *App) Player() *playback.Player { return a.player }

// Tier returns the current subscription tier.
func (a *App) Tier() entitlement.Tier {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.tier
}

// ApplyConfig applies a hot-reloaded config. Tier and audio tunables take
// effect for the next feature started; anything running is left alone.
func (a *App) ApplyConfig(d config.ConfigDiff) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if d.TierChanged {
		tier, err := entitlement.ParseTier(d.NewTier)
		if err != nil {
			slog.Warn("app: ignoring tier change", "tier", d.NewTier, "err", err)
		} else {
			a.tier = tier
			slog.Info("tier changed", "tier", tier)
		}
	}
	if d.AudioChanged {
		a.audioConf = d.NewAudio
		a.player.Configure(playerOptions(d.NewAudio)...)
		slog.Info("audio settings reloaded")
	}
}

// PlayGeneratedSpeech decodes payload and plays it on the shared device,
// stopping whatever feature is running. A malformed payload is returned as
// an [*audio.CodecError] and nothing is stopped.
func (a *App) PlayGeneratedSpeech(ctx context.Context, payload speech.Payload, opts playback.Options) (*playback.Session, error) {
	buf, err := payload.Decode()
	if err != nil {
		a.metrics.RecordDecodeError(ctx, "speech")
		return nil, fmt.Errorf("app: decode speech: %w", err)
	}
	return a.PlayBuffer(ctx, buf, opts)
}

// PlayFile plays a 16-bit PCM WAV file like [App.PlayBuffer]. A file that
// cannot be read stops nothing.
func (a *App) PlayFile(ctx context.Context, path string, opts playback.Options) (*playback.Session, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("app: play file: %w", err)
	}
	defer f.Close()
	buf, err := audio.ReadWAV(f)
	if err != nil {
		return nil, fmt.Errorf("app: play %s: %w", path, err)
	}
	return a.PlayBuffer(ctx, buf, opts)
}

// PlayBuffer plays buf on the shared device, stopping whatever feature is
// running.
func (a *App) PlayBuffer(ctx context.Context, buf *audio.Buffer, opts playback.Options) (*playback.Session, error) {
	a.featureMu.Lock()
	defer a.featureMu.Unlock()
	a.scape.Stop()
	if a.conv != nil {
		a.conv.Stop()
	}
	a.holdDevice(ctx)
	return a.player.Start(ctx, buf, opts)
}

// StartSoundscape stops whatever feature is running and loops the ambient
// layers at levels.
func (a *App) StartSoundscape(ctx context.Context, levels soundscape.Levels, opts soundscape.Options) (*soundscape.Session, error) {
	a.featureMu.Lock()
	defer a.featureMu.Unlock()
	a.player.Stop()
	if a.conv != nil {
		a.conv.Stop()
	}
	a.holdDevice(ctx)
	return a.scape.Start(ctx, levels, opts)
}

// StartLiveConversation stops any playback or soundscape and connects a live
// conversation. Zero fields of cfg take the configured audio defaults.
func (a *App) StartLiveConversation(ctx context.Context, cfg conversation.Config) (*conversation.Session, error) {
	if a.conv == nil {
		return nil, fmt.Errorf("%w: live", ErrNotConfigured)
	}

	a.mu.Lock()
	ac := a.audioConf
	a.mu.Unlock()
	if cfg.FrameSize == 0 {
		cfg.FrameSize = ac.CaptureFrameSize
	}
	if cfg.MaxDecodeFailures == 0 {
		cfg.MaxDecodeFailures = ac.MaxDecodeFailures
	}

	a.featureMu.Lock()
	defer a.featureMu.Unlock()
	a.player.Stop()
	a.scape.Stop()
	a.holdDevice(ctx)
	return a.conv.Connect(ctx, cfg)
}

// Stop ends whatever feature is running. It does not wait for a feature
// start in progress: a conversation still connecting is aborted.
func (a *App) Stop() {
	a.player.Stop()
	a.scape.Stop()
	if a.conv != nil {
		a.conv.Stop()
	}
}

// holdDevice takes the App's own reference on the shared output device the
// first time a feature starts, so the device stays open between sessions
// until Shutdown. Must be called with featureMu held. A failure is left for
// the feature's own Acquire to report.
func (a *App) holdDevice(ctx context.Context) {
	if a.deviceHeld {
		return
	}
	if _, err := a.devices.Acquire(ctx); err != nil {
		slog.Debug("app: output device not held", "err", err)
		return
	}
	a.deviceHeld = true
}

func (a *App) releaseDevice() {
	a.featureMu.Lock()
	defer a.featureMu.Unlock()
	if !a.deviceHeld {
		return
	}
	a.deviceHeld = false
	if err := a.devices.Release(); err != nil {
		slog.Warn("app: release output device", "err", err)
	}
}

// Synthesize renders script in voice through the speech provider.
func (a *App) Synthesize(ctx context.Context, script, voice string) (speech.Payload, error) {
	if a.providers.Speech == nil {
		return speech.Payload{}, fmt.Errorf("%w: speech", ErrNotConfigured)
	}
	var p speech.Payload
	err := a.metrics.Call(ctx, nameOr(a.providers.SpeechName, "speech"), "speech", a.metrics.SpeechDuration, func(ctx context.Context) error {
		var err error
		p, err = a.providers.Speech.Synthesize(ctx, script, speech.Voice{ID: voice})
		return err
	})
	if err != nil {
		return speech.Payload{}, fmt.Errorf("app: synthesize: %w", err)
	}
	return p, nil
}

// synthesizeCached is [App.Synthesize] backed by the store. Store failures
// are logged and fall through to the provider.
func (a *App) synthesizeCached(ctx context.Context, script, voice string) (speech.Payload, error) {
	key := SpeechKey(voice, script)
	var p speech.Payload
	err := a.store.Get(ctx, key, &p)
	switch {
	case err == nil && p.Data != "":
		slog.Debug("speech cache hit", "key", key)
		return p, nil
	case err != nil && !errors.Is(err, store.ErrNotFound):
		slog.Warn("speech cache read failed", "key", key, "err", err)
	}

	p, err = a.Synthesize(ctx, script, voice)
	if err != nil {
		return speech.Payload{}, err
	}
	if err := a.store.Set(ctx, key, p); err != nil {
		slog.Warn("speech cache write failed", "key", key, "err", err)
	}
	return p, nil
}

// Generate asks the text provider for a script. Blank answers are errors.
func (a *App) Generate(ctx context.Context, req text.Request) (string, error) {
	if a.providers.Text == nil {
		return "", fmt.Errorf("%w: text", ErrNotConfigured)
	}
	var out string
	err := a.metrics.Call(ctx, nameOr(a.providers.TextName, "text"), "text", a.metrics.TextDuration, func(ctx context.Context) error {
		var err error
		out, err = a.providers.Text.Generate(ctx, req)
		return err
	})
	if err != nil {
		return "", fmt.Errorf("app: generate: %w", err)
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return "", errors.New("app: generate: provider returned no text")
	}
	return out, nil
}

// Voices lists the speech provider's voices.
func (a *App) Voices(ctx context.Context) ([]speech.Voice, error) {
	if a.providers.Speech == nil {
		return nil, fmt.Errorf("%w: speech", ErrNotConfigured)
	}
	return a.providers.Speech.Voices(ctx)
}

// Shutdown stops any running feature, waits for pending history writes and
// runs the closers. If ctx expires first the remaining steps are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))
		a.Stop()
		a.releaseDevice()

		saved := make(chan struct{})
		go func() {
			a.savers.Wait()
			close(saved)
		}()
		select {
		case <-saved:
		case <-ctx.Done():
			slog.Warn("shutdown deadline exceeded while saving history")
			shutdownErr = ctx.Err()
			return
		}

		for i, closer := range a.closers {
			if err := ctx.Err(); err != nil {
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = err
				return
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}
		slog.Info("shutdown complete")
	})
	return shutdownErr
}

// SpeechKey is the store key of a cached render.
func SpeechKey(voice, script string) string {
	sum := sha256.Sum256([]byte(voice + script))
	return "speech:" + hex.EncodeToString(sum[:])
}

// playerOptions converts the audio config into playback options. Zero values
// keep the playback defaults.
func playerOptions(c config.AudioConfig) []playback.Option {
	var opts []playback.Option
	if c.FadeOut > 0 {
		opts = append(opts, playback.WithFadeOut(c.FadeOut))
	}
	if c.ChimeDelay > 0 {
		opts = append(opts, playback.WithChimeDelay(c.ChimeDelay))
	}
	switch {
	case c.Chime == nil:
		opts = append(opts, playback.WithChime(audio.DefaultChime))
	case c.Chime.Disabled:
		opts = append(opts, playback.WithChime(nil))
	default:
		opts = append(opts, playback.WithChime(chimeTone(*c.Chime, c.SampleRate)))
	}
	return opts
}

// chimeTone fills unset fields from [audio.DefaultChime].
func chimeTone(c config.ChimeConfig, rate int) audio.Tone {
	t := audio.DefaultChime
	if c.Frequency > 0 {
		t.Frequency = c.Frequency
	}
	if c.Peak > 0 {
		t.Peak = c.Peak
	}
	if c.Attack > 0 {
		t.Attack = c.Attack
	}
	if c.Release > 0 {
		t.Release = c.Release
	}
	t.SampleRate = rate
	return t
}

func nameOr(name, fallback string) string {
	if name == "" {
		return fallback
	}
	return name
}

// historySaveTimeout bounds the write of a finished conversation.
const historySaveTimeout = 10 * time.Second
