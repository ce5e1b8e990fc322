// Command dialcoach is the main entry point for the dialcoach coaching server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dialcoach/dialcoach/internal/app"
	"github.com/dialcoach/dialcoach/internal/config"
	"github.com/dialcoach/dialcoach/internal/observe"
	"github.com/dialcoach/dialcoach/pkg/provider/transcribe"
	"github.com/dialcoach/dialcoach/pkg/provider/transcribe/assemblyai"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "dialcoach: config file %q not found; copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "dialcoach: %v\n", err)
		}
		return 1
	}

	// Logger with a swappable level so config hot reloads can retarget it.
	level := &slog.LevelVar{}
	level.Set(app.SlogLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("dialcoach starting",
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Telemetry providers; metrics are scraped from /metrics.
	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceName: "dialcoach"})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otelShutdown(shutdownCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	application, err := app.New(ctx, cfg, reg, app.WithLogLevelVar(level))
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	watcher, err := config.NewWatcher(*configPath, application.ApplyConfig)
	if err != nil {
		slog.Error("failed to start config watcher", "err", err)
		return 1
	}
	defer watcher.Stop()

	printStartupSummary(cfg)
	slog.Info("server ready, press Ctrl+C to shut down")

	if err := application.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("run error", "err", err)
		return 1
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// registerBuiltinProviders wires the transcription provider factories that
// ship with dialcoach into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterTranscribe("assemblyai", func(entry config.ProviderEntry) (transcribe.Provider, error) {
		var opts []assemblyai.Option
		if entry.SampleRate != 0 {
			opts = append(opts, assemblyai.WithSampleRate(entry.SampleRate))
		}
		return assemblyai.New(entry.APIKey, opts...)
	})
	slog.Debug("registered provider", "kind", "transcription", "name", "assemblyai")
}

func printStartupSummary(cfg *config.Config) {
	fmt.Println("╔═══════════════════════════════════════╗")
	fmt.Println("║         dialcoach startup summary     ║")
	fmt.Println("╠═══════════════════════════════════════╣")
	printRow("Listen addr", cfg.Server.ListenAddr)
	printRow("Catalog", cfg.Catalog.Path)
	backend := string(cfg.Storage.Backend)
	if backend == "" {
		backend = "memory"
	}
	printRow("Storage", backend)
	if cfg.Transcription.Name != "" {
		printRow("Transcription", cfg.Transcription.Name)
	} else {
		printRow("Transcription", "(manual mode)")
	}
	fmt.Println("╚═══════════════════════════════════════╝")
}

func printRow(label, value string) {
	if value == "" {
		value = "(not set)"
	}
	if len(value) > 19 {
		value = value[:16] + "…"
	}
	fmt.Printf("║  %-14s  : %-19s ║\n", label, value)
}
