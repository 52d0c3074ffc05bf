package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"

	"github.com/MrWong99/solace/internal/entitlement"
)

// ValidProviderNames are the built-in provider names per kind. Other names
// only draw a warning since callers may register their own.
var ValidProviderNames = map[string][]string{
	"speech": {"gemini", "openai"},
	"text":   {"openai", "anthropic", "ollama", "gemini", "deepseek", "mistral", "groq", "llamacpp", "llamafile"},
	"live":   {"gemini"},
}

// Load reads and validates the YAML file at path.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r, rejecting unknown fields, and validates
// the result.
// An empty document yields the zero Config. Useful in tests where configs
// are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every problem in cfg at once, joined.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}

	// Provider name validation: warn for unknown provider names.
	validateProviderName("speech", cfg.Providers.Speech.Name)
	validateProviderName("text", cfg.Providers.Text.Name)
	validateProviderName("live", cfg.Providers.Live.Name)

	if cfg.Providers.Speech.Name == "" {
		slog.Warn("providers.speech is not configured; meditations and sleep stories will not be available")
	}
	if cfg.Providers.Live.Name == "" {
		slog.Warn("providers.live is not configured; the voice companion will not be available")
	}

	// Audio
	a := cfg.Audio
	if a.Backend != "" && !a.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("audio.backend %q is invalid; valid values: portaudio, null", a.Backend))
	}
	if a.SampleRate < 0 {
		errs = append(errs, fmt.Errorf("audio.sample_rate %d must not be negative", a.SampleRate))
	}
	if a.CaptureFrameSize < 0 {
		errs = append(errs, fmt.Errorf("audio.capture_frame_size %d must not be negative", a.CaptureFrameSize))
	}
	if a.FadeOut < 0 {
		errs = append(errs, fmt.Errorf("audio.fade_out %s must not be negative", a.FadeOut))
	}
	if a.ChimeDelay < 0 {
		errs = append(errs, fmt.Errorf("audio.chime_delay %s must not be negative", a.ChimeDelay))
	}
	if a.MaxDecodeFailures < 0 {
		errs = append(errs, fmt.Errorf("audio.max_decode_failures %d must not be negative", a.MaxDecodeFailures))
	}
	if c := a.Chime; c != nil && !c.Disabled {
		if c.Frequency < 0 {
			errs = append(errs, fmt.Errorf("audio.chime.frequency %.1f must not be negative", c.Frequency))
		}
		if c.Peak < 0 || c.Peak > 1 {
			errs = append(errs, fmt.Errorf("audio.chime.peak %.2f is out of range [0, 1]", c.Peak))
		}
		if c.Attack < 0 || c.Release < 0 {
			errs = append(errs, errors.New("audio.chime.attack and audio.chime.release must not be negative"))
		}
		if c.Release > 0 && c.Attack > c.Release {
			errs = append(errs, fmt.Errorf("audio.chime.attack %s exceeds release %s", c.Attack, c.Release))
		}
	}

	// Store
	switch st := cfg.Store; {
	case st.PostgresDSN != "" && st.SQLitePath != "":
		errs = append(errs, errors.New("store: set only one of postgres_dsn and sqlite_path"))
	case st.PostgresDSN == "" && st.SQLitePath == "":
		slog.Debug("no store configured; history and cached renders are kept in memory only")
	}

	// Profile
	if _, err := entitlement.ParseTier(cfg.Profile.Tier); err != nil {
		errs = append(errs, fmt.Errorf("profile.tier: %w", err))
	}

	return errors.Join(errs...)
}

// validateProviderName warns about a name outside [ValidProviderNames].
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name; may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
