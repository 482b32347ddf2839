// Command phrasecoach is the main entry point for the phrasecoach turn
// evaluation server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"

	"github.com/MrWong99/phrasecoach/internal/app"
	"github.com/MrWong99/phrasecoach/internal/config"
	"github.com/MrWong99/phrasecoach/internal/observe"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	// ── Logger ────────────────────────────────────────────────────────────────
	// The level lives in a LevelVar so the config watcher can change it.
	var level slog.LevelVar
	slog.SetDefault(newLogger(&level))

	// ── Load configuration ────────────────────────────────────────────────────
	var application *app.App
	watcher, err := config.NewWatcher(*configPath, func(_, _ *config.Config, d config.ConfigDiff) {
		if d.LogLevelChanged {
			level.Set(slogLevel(d.NewLogLevel))
			slog.Info("log level changed", "level", d.NewLogLevel)
		}
		if d.PipelineChanged && application != nil {
			application.ApplyPipeline(d.Pipeline)
		}
		if len(d.RestartRequired) > 0 {
			slog.Warn("config changes need a restart to take effect",
				"sections", strings.Join(d.RestartRequired, ","))
		}
	})
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "phrasecoach: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "phrasecoach: %v\n", err)
		}
		return 1
	}
	cfg := watcher.Current()
	level.Set(slogLevel(cfg.Server.LogLevel))

	slog.Info("phrasecoach starting",
		"config", *configPath,
		"version", version,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	promReg := prometheus.NewRegistry()
	serviceVersion := cfg.Telemetry.ServiceVersion
	if serviceVersion == "" {
		serviceVersion = version
	}
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: serviceVersion,
		Registry:       promReg,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	metrics, err := observe.NewMetrics(otel.GetMeterProvider())
	if err != nil {
		slog.Error("failed to create metrics", "err", err)
		return 1
	}

	// ── Provider registry ─────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	providers, err := buildProviders(cfg, reg, metrics)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	// ── Startup summary ───────────────────────────────────────────────────────
	printStartupSummary(cfg)

	application, err = app.New(ctx, cfg, providers,
		app.WithMetrics(metrics),
		app.WithMetricsHandler(observe.MetricsHandler(promReg)),
		app.WithVersion(version),
		app.WithCloser(func() error { return shutdownTelemetry(context.Background()) }),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	go watcher.Run(ctx)

	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		stop()
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	slog.Info("stopping, draining in-flight turns", "timeout", cfg.Server.ShutdownTimeout)

	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// ── Startup summary ───────────────────────────────────────────────────────────

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║      phrasecoach startup summary      ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printProvider("STT", cfg.Providers.STT.Name, cfg.Providers.STT.Model)
	printProvider("LLM", cfg.Providers.LLM.Name, cfg.Providers.LLM.Model)
	fmt.Printf("║  Fallbacks       : %-19d ║\n", len(cfg.Providers.STT.Fallbacks)+len(cfg.Providers.LLM.Fallbacks))
	fmt.Printf("║  Language        : %-19s ║\n", cfg.Pipeline.Language)
	fmt.Printf("║  Similarity min  : %-19.2f ║\n", cfg.Pipeline.SimilarityThreshold)
	fmt.Printf("║  Confidence min  : %-19.2f ║\n", cfg.Pipeline.ConfidenceThreshold)
	fmt.Printf("║  Listen addr     : %-19s ║\n", cfg.Server.ListenAddr)
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printProvider(kind, name, model string) {
	value := name
	if model != "" {
		value = name + " / " + model
	}
	if len(value) > 19 {
		value = value[:16] + "..."
	}
	fmt.Printf("║  %-12s    : %-19s ║\n", kind, value)
}

// ── Logger ─────────────────────────────────────────────────────────────────────

func newLogger(level slog.Leveler) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

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
