// Package cli provides common CLI initialization utilities.
// This package consolidates repeated initialization patterns across
// cmd/roiboard and cmd/roiboard-notifier.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"roiboard/internal/config"
	applog "roiboard/internal/log"
)

// Bootstrap performs the startup sequence shared by every binary: load the
// .env file, load and validate configuration, and install the default
// structured logger at the configured level. Exits the process on invalid
// configuration.
func Bootstrap() (*config.Config, *slog.Logger) {
	// .env is optional; production containers pass real env vars
	_ = godotenv.Load()

	cfg := config.Load()

	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: applog.ParseLevel(cfg.LogLevel),
	}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed",
			"error", err,
			"error_type", applog.ErrorTypeConfiguration)
		os.Exit(1)
	}
	return cfg, logger
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}
