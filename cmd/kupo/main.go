// Command kupo is the always-listening assistant and beat detector.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/MrWong99/kupo/internal/app"
	"github.com/MrWong99/kupo/internal/config"
	"github.com/MrWong99/kupo/internal/events"
	"github.com/MrWong99/kupo/internal/health"
	"github.com/MrWong99/kupo/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.StringP("config", "c", "kupo.yaml", "path to the YAML configuration file")
	envFile := flag.StringP("env", "e", ".env", "dotenv file with API keys")
	logLevel := flag.StringP("log-level", "l", "", "override server.log_level (debug, info, warn, error)")
	watch := flag.Bool("watch", true, "reload commands and log level when the config file changes")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "kupo: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "kupo: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "kupo: %v\n", err)
		}
		return 1
	}
	if *logLevel != "" {
		cfg.Server.LogLevel = config.LogLevel(*logLevel)
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(slogLevel(cfg.Server.LogLevel))
	slog.SetDefault(newLogger(level))

	slog.Info("kupo starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(sctx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	engines, err := buildEngines(cfg, reg)
	if err != nil {
		slog.Error("failed to build engines", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	hub := events.NewHub()
	application, err := app.New(cfg, engines, app.WithPublisher(hub))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		closeEngines(engines)
		return 1
	}

	printStartupSummary(cfg)

	srv := startHTTP(cfg.Server.ListenAddr, application, hub)

	if *watch {
		w, err := config.NewWatcher(*configPath, func(_, next *config.Config, d config.ConfigDiff) {
			if d.LogLevelChanged && *logLevel == "" {
				level.Set(slogLevel(d.NewLogLevel))
				slog.Info("log level changed", "level", d.NewLogLevel)
			}
			if err := application.Reload(next, d); err != nil {
				slog.Warn("config reload failed", "err", err)
			}
		})
		if err != nil {
			slog.Warn("config watcher disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("kupo ready; press Ctrl+C to shut down")

	exit := 0
	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		exit = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping…")
	if srv != nil {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}
	}
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		exit = 1
	}
	slog.Info("goodbye")
	return exit
}

// startHTTP serves metrics, probes, the event feed and actor admin endpoints.
// An empty addr disables the server.
func startHTTP(addr string, a *app.App, hub *events.Hub) *http.Server {
	if addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.Handle("GET /events", hub.Handler())
	health.New(a.Checkers()...).Register(mux)
	a.Register(mux)

	srv := &http.Server{
		Addr:              addr,
		Handler:           observe.Middleware(observe.DefaultMetrics(), "/metrics", "/healthz", "/readyz", "/events")(mux),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "addr", addr, "err", err)
		}
	}()
	slog.Info("http server listening", "addr", addr)
	return srv
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║           kupo startup summary        ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Capture", captureLabel(cfg.Audio))
	printRow("Output", string(cfg.Audio.Output))
	printProvider("Wake word", cfg.Providers.WakeWord.Name, "")
	printProvider("VAD", cfg.Providers.VAD.Name, "")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("TTS", cfg.Providers.TTS.Name, cfg.Providers.TTS.Model)
	printRow("Voice", enabled(cfg.Voice.IsEnabled()))
	printRow("Beats", enabled(cfg.Onset.IsEnabled()))
	if t := cfg.Onset.BeatTarget; t != "" {
		printRow("Beat target", t)
	}
	fmt.Printf("║  %-12s    : %-19d ║\n", "Commands", len(cfg.Commands))
	if cfg.Server.ListenAddr != "" {
		printRow("Listen addr", cfg.Server.ListenAddr)
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func captureLabel(a config.AudioConfig) string {
	if a.Device == config.DeviceWAV {
		return "wav " + a.WAVPath
	}
	return fmt.Sprintf("%s %dHz", a.Device, a.SampleRate)
}

func enabled(v bool) string {
	if v {
		return "enabled"
	}
	return "(disabled)"
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

func printRow(kind, value string) {
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
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

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.TimeOnly,
	}))
}
