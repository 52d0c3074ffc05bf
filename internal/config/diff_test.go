package config_test

import (
	"slices"
	"testing"
	"time"

	"github.com/MrWong99/solace/internal/config"
)

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	cfg := &config.Config{
		Server: config.ServerConfig{LogLevel: config.LogInfo},
		Audio:  config.AudioConfig{FadeOut: 3 * time.Second, Chime: &config.ChimeConfig{Frequency: 660}},
	}
	d := config.Diff(cfg, cfg)
	if !d.Empty() {
		t.Errorf("expected empty diff for identical configs, got %+v", d)
	}
}

func TestDiff_LogLevelChanged(t *testing.T) {
	t.Parallel()
	old := &config.Config{Server: config.ServerConfig{LogLevel: config.LogInfo}}
	new := &config.Config{Server: config.ServerConfig{LogLevel: config.LogDebug}}

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Error("expected LogLevelChanged=true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("expected NewLogLevel=debug, got %q", d.NewLogLevel)
	}
	if d.AudioChanged || d.TierChanged || len(d.RestartRequired) != 0 {
		t.Errorf("unexpected extra changes: %+v", d)
	}
}

func TestDiff_AudioTunables(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		old  config.AudioConfig
		new  config.AudioConfig
		want bool
	}{
		{"fade", config.AudioConfig{FadeOut: time.Second}, config.AudioConfig{FadeOut: 2 * time.Second}, true},
		{"chime delay", config.AudioConfig{}, config.AudioConfig{ChimeDelay: time.Second}, true},
		{"decode failures", config.AudioConfig{}, config.AudioConfig{MaxDecodeFailures: 3}, true},
		{"chime added", config.AudioConfig{}, config.AudioConfig{Chime: &config.ChimeConfig{Disabled: true}}, true},
		{"chime edited", config.AudioConfig{Chime: &config.ChimeConfig{Peak: 0.3}}, config.AudioConfig{Chime: &config.ChimeConfig{Peak: 0.2}}, true},
		{"chime equal", config.AudioConfig{Chime: &config.ChimeConfig{Peak: 0.3}}, config.AudioConfig{Chime: &config.ChimeConfig{Peak: 0.3}}, false},
		{"backend only", config.AudioConfig{Backend: config.BackendNull}, config.AudioConfig{Backend: config.BackendPortAudio}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			d := config.Diff(&config.Config{Audio: tt.old}, &config.Config{Audio: tt.new})
			if d.AudioChanged != tt.want {
				t.Errorf("AudioChanged = %v, want %v", d.AudioChanged, tt.want)
			}
		})
	}
}

func TestDiff_TierChanged(t *testing.T) {
	t.Parallel()
	d := config.Diff(
		&config.Config{Profile: config.ProfileConfig{Tier: "free"}},
		&config.Config{Profile: config.ProfileConfig{Tier: "glow"}},
	)
	if !d.TierChanged || d.NewTier != "glow" {
		t.Errorf("tier diff = %+v", d)
	}
}

func TestDiff_RestartRequired(t *testing.T) {
	t.Parallel()
	old := &config.Config{
		Providers: config.ProvidersConfig{Speech: config.ProviderEntry{Name: "gemini"}},
		Audio:     config.AudioConfig{Backend: config.BackendNull},
	}
	new := &config.Config{
		Server:    config.ServerConfig{MetricsAddr: ":9464"},
		Providers: config.ProvidersConfig{Speech: config.ProviderEntry{Name: "openai"}},
		Audio:     config.AudioConfig{Backend: config.BackendPortAudio},
		Store:     config.StoreConfig{PostgresDSN: "postgres://localhost/solace"},
	}
	d := config.Diff(old, new)
	want := []string{"server.metrics_addr", "providers", "audio.device", "store"}
	if !slices.Equal(d.RestartRequired, want) {
		t.Errorf("RestartRequired = %v, want %v", d.RestartRequired, want)
	}
	if d.Empty() {
		t.Error("Empty() = true for restart-only diff")
	}
}
