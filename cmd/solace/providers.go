package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/MrWong99/solace/internal/app"
	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/resilience"
	"github.com/MrWong99/solace/pkg/provider/live"
	geminilive "github.com/MrWong99/solace/pkg/provider/live/gemini"
	"github.com/MrWong99/solace/pkg/provider/speech"
	geminispeech "github.com/MrWong99/solace/pkg/provider/speech/gemini"
	oaispeech "github.com/MrWong99/solace/pkg/provider/speech/openai"
	"github.com/MrWong99/solace/pkg/provider/text"
	"github.com/MrWong99/solace/pkg/provider/text/anyllm"
)

// registerBuiltinProviders wires all built-in provider factories into reg.
func registerBuiltinProviders(reg *config.Registry) {
	// ── Speech ────────────────────────────────────────────────────────────────

	reg.RegisterSpeech("gemini", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []geminispeech.Option
		if entry.Model != "" {
			opts = append(opts, geminispeech.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminispeech.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, geminispeech.WithTimeout(d))
		}
		return geminispeech.New(context.Background(), entry.APIKey, opts...)
	})

	reg.RegisterSpeech("openai", func(entry config.ProviderEntry) (speech.Provider, error) {
		var opts []oaispeech.Option
		if entry.Model != "" {
			opts = append(opts, oaispeech.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaispeech.WithBaseURL(entry.BaseURL))
		}
		if s := optString(entry.Options, "instructions"); s != "" {
			opts = append(opts, oaispeech.WithInstructions(s))
		}
		if d := optDuration(entry.Options, "timeout"); d > 0 {
			opts = append(opts, oaispeech.WithTimeout(d))
		}
		return oaispeech.New(entry.APIKey, opts...)
	})

	// ── Text ──────────────────────────────────────────────────────────────────
	// Without an api_key hosted backends read their own environment variable.
	// ollama is local and only takes base_url.
	for _, vendor := range anyllm.Backends() {
		reg.RegisterText(vendor, func(entry config.ProviderEntry) (text.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" && vendor != "ollama" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(vendor, entry.Model, opts...)
		})
	}

	// ── Live ──────────────────────────────────────────────────────────────────

	reg.RegisterLive("gemini", func(entry config.ProviderEntry) (live.Provider, error) {
		if entry.APIKey == "" {
			return nil, errors.New("gemini live: api_key must not be empty")
		}
		var opts []geminilive.Option
		if entry.Model != "" {
			opts = append(opts, geminilive.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, geminilive.WithBaseURL(entry.BaseURL))
		}
		if d := optDuration(entry.Options, "handshake_timeout"); d > 0 {
			opts = append(opts, geminilive.WithHandshakeTimeout(d))
		}
		return geminilive.New(entry.APIKey, opts...), nil
	})

	for _, kind := range []string{"speech", "text", "live"} {
		slog.Debug("registered providers", "kind", kind, "names", reg.Names(kind))
	}
}

// buildProviders instantiates the providers named in cfg. An empty slot
// stays nil; the features that need it report [app.ErrNotConfigured].
// Speech and text backends sit behind a circuit breaker.
func buildProviders(cfg *config.Config, reg *config.Registry) (*app.Providers, error) {
	ps := &app.Providers{}

	if name := cfg.Providers.Speech.Name; name != "" {
		p, err := reg.CreateSpeech(cfg.Providers.Speech)
		if err != nil {
			return nil, fmt.Errorf("create speech provider %q: %w", name, err)
		}
		ps.Speech = resilience.Speech(p, resilience.Config{Name: "speech/" + name})
		ps.SpeechName = name
		slog.Info("provider created", "kind", "speech", "name", name)
	}

	if name := cfg.Providers.Text.Name; name != "" {
		p, err := reg.CreateText(cfg.Providers.Text)
		if err != nil {
			return nil, fmt.Errorf("create text provider %q: %w", name, err)
		}
		ps.Text = resilience.Text(p, resilience.Config{Name: "text/" + name})
		ps.TextName = name
		slog.Info("provider created", "kind", "text", "name", name)
	}

	if name := cfg.Providers.Live.Name; name != "" {
		p, err := reg.CreateLive(cfg.Providers.Live)
		if err != nil {
			return nil, fmt.Errorf("create live provider %q: %w", name, err)
		}
		ps.Live, ps.LiveName = p, name
		slog.Info("provider created", "kind", "live", "name", name)
	}

	return ps, nil
}
