// Command codiris-web serves the codiris HTTP API: billing, the waitlist and
// the AI proxy endpoints.
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

	"github.com/codiris/voice/internal/app"
	"github.com/codiris/voice/internal/config"
	"github.com/codiris/voice/internal/observe"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "codiris.yaml", "path to the YAML configuration file")
	reload := flag.Duration("reload-interval", 5*time.Second, "how often to check the config file for changes (0 disables)")
	flag.Parse()

	// ── Load configuration ────────────────────────────────────────────────────
	var (
		srv     *app.Server
		watcher *config.Watcher
		cfg     *config.Config
	)
	if _, err := os.Stat(*configPath); err == nil && *reload > 0 {
		watcher, err = config.NewWatcher(*configPath, func(old, new *config.Config) {
			srv.Apply(config.Diff(old, new))
		}, config.WithInterval(*reload))
		if err != nil {
			fmt.Fprintf(os.Stderr, "codiris-web: %v\n", err)
			return 1
		}
		cfg = watcher.Current()
	} else {
		cfg, err = config.LoadOrDefault(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "codiris-web: %v\n", err)
			return 1
		}
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	level := new(slog.LevelVar)
	level.Set(app.ParseLevel(cfg.Server.LogLevel))
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("codiris-web starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	// ── Signal context ────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ── Telemetry ─────────────────────────────────────────────────────────────
	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "codiris-web",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	reg := config.NewRegistry()
	app.RegisterBuiltins(reg)
	providers, err := app.BuildProviders(cfg, reg)
	if err != nil {
		slog.Error("failed to build providers", "err", err)
		return 1
	}

	srv, err = app.NewServer(cfg, providers, app.WithLevel(level))
	if err != nil {
		slog.Error("failed to initialise server", "err", err)
		_ = providers.Close()
		return 1
	}

	if watcher != nil {
		go watcher.Run(ctx)
		defer watcher.Stop()
	}

	code := 0
	if err := srv.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		code = 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("stopping")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		code = 1
	}
	if err := shutdownTelemetry(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		slog.Warn("telemetry shutdown error", "err", err)
	}
	slog.Info("goodbye")
	return code
}
