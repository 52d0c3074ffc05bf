// Command solace is the entry point for the Solace wellness audio player.
//
// Usage:
//
//	solace [-config solace.yaml] <command> [flags]
//
// Commands:
//
//	meditate   play a library meditation or a generated custom one
//	story      generate and play a sleep story
//	companion  talk to the live voice companion
//	soundscape loop ambient noise and binaural layers
//	play       play a 16-bit PCM WAV file
//	render     render a library meditation to a WAV file
//	voices     list the speech provider's voices
//	history    print the stored companion conversation
//	titles     list the built-in meditations
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MrWong99/solace/internal/app"
	"github.com/MrWong99/solace/internal/config"
	"github.com/MrWong99/solace/internal/health"
	"github.com/MrWong99/solace/internal/observe"
	"github.com/MrWong99/solace/pkg/audio"
	"github.com/MrWong99/solace/pkg/audio/mixer"
)

var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "solace.yaml", "path to the YAML configuration file")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() == 0 {
		usage()
		return 2
	}
	cmd, ok := commands[flag.Arg(0)]
	if !ok {
		fmt.Fprintf(os.Stderr, "solace: unknown command %q\n\n", flag.Arg(0))
		usage()
		return 2
	}
	fs := flag.NewFlagSet(flag.Arg(0), flag.ContinueOnError)
	exec := cmd.setup(fs)
	if err := fs.Parse(flag.Args()[1:]); err != nil {
		return 2
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "solace: config file %q not found, pass -config to point at one\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "solace: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("solace starting",
		"config", *configPath,
		"command", fs.Name(),
		"log_level", cfg.Server.LogLevel,
		"backend", backendName(cfg.Audio.Backend),
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownOtel, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownOtel(sctx); err != nil {
			slog.Warn("telemetry shutdown", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Audio backend ─────────────────────────────────────────────────────────
	open, capture, err := openBackend(cfg.Audio)
	if err != nil {
		slog.Error("failed to select audio backend", "err", err)
		return 1
	}
	devices := audio.NewDeviceRegistry(open)
	var offline *mixer.Mixer
	if cmd.offline {
		devices, offline = offlineDevices(cfg.Audio)
	}

	application, err := app.New(ctx, cfg, providers, devices, capture, app.WithMetrics(metrics))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	// ── Metrics endpoint (optional) ───────────────────────────────────────────
	var srv *http.Server
	if addr := cfg.Server.MetricsAddr; addr != "" && !cmd.offline {
		ready := health.New(
			health.Ping("store", application.Store()),
			health.Configured("speech", func() bool { return providers.Speech != nil }),
		)
		srv = &http.Server{
			Addr:              addr,
			Handler:           observe.Handler(metrics, ready.Register),
			ReadHeaderTimeout: 5 * time.Second,
		}
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			slog.Error("failed to listen for metrics", "addr", addr, "err", err)
			return 1
		}
		go func() {
			if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
				slog.Error("metrics server error", "err", err)
			}
		}()
	}

	// ── Config hot reload ─────────────────────────────────────────────────────
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
		}
		application.ApplyConfig(d)
	})
	if err != nil {
		slog.Warn("config hot reload disabled", "err", err)
	} else {
		defer watcher.Stop()
	}

	if cmd.summary {
		printStartupSummary(cfg)
	}

	// ── Run ───────────────────────────────────────────────────────────────────
	code := 0
	if err := exec(ctx, application, offline); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "solace: %v\n", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Debug("shutting down")
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("metrics server shutdown", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	return code
}

func usage() {
	fmt.Fprintf(os.Stderr, "usage: solace [-config path] <command> [flags]\n\ncommands:\n")
	for _, name := range commandOrder {
		fmt.Fprintf(os.Stderr, "  %-10s %s\n", name, commands[name].help)
	}
	fmt.Fprintln(os.Stderr)
	flag.PrintDefaults()
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         Solace · startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("Speech", cfg.Providers.Speech.Name, cfg.Providers.Speech.Model)
	printProvider("Text", cfg.Providers.Text.Name, cfg.Providers.Text.Model)
	printProvider("Live", cfg.Providers.Live.Name, cfg.Providers.Live.Model)
	printRow("Audio", backendName(cfg.Audio.Backend))
	switch {
	case cfg.Store.PostgresDSN != "":
		printRow("Store", "postgres")
	case cfg.Store.SQLitePath != "":
		printRow("Store", "sqlite")
	default:
		printRow("Store", "memory")
	}
	tier := cfg.Profile.Tier
	if tier == "" {
		tier = "free"
	}
	printRow("Tier", tier)
	if cfg.Server.MetricsAddr != "" {
		printRow("Metrics", cfg.Server.MetricsAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if value == "" {
		value = "(not configured)"
	} else if model != "" {
		value = name + " / " + model
	}
	printRow(kind, value)
}

func printRow(label, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", label, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func slogLevel(level config.LogLevel) slog.Level {
	switch level {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// newLogger logs text to stderr at a level that config reloads can change.
func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// optString extracts a string value from a provider Options map[string]any.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return s
}

// optDuration reads a duration option given either as a Go duration string
// ("30s") or as a number of seconds.
func optDuration(opts map[string]any, key string) time.Duration {
	switch v := opts[key].(type) {
	case string:
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("ignoring malformed duration option", "key", key, "value", v)
			return 0
		}
		return d
	case int:
		return time.Duration(v) * time.Second
	case float64:
		return time.Duration(v * float64(time.Second))
	}
	return 0
}
