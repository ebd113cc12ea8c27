package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"resumeingest/internal/app"
	"resumeingest/internal/config"
	"resumeingest/internal/logger"
)

func main() {
	log := logger.New(os.Stdout, os.Getenv("LOG_LEVEL"))
	slog.SetDefault(log)

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	log = logger.New(os.Stdout, cfg.LogLevel)
	slog.SetDefault(log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, log); err != nil {
		slog.Error("service exited with error", "error", err)
		os.Exit(1)
	}
	slog.Info("service stopped")
}

func run(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	deps, err := app.Bootstrap(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := deps.Close(); err != nil {
			slog.Warn("failed to close dependencies", "error", err)
		}
	}()

	a, err := app.New(cfg, deps, log)
	if err != nil {
		return err
	}
	return a.Run(ctx)
}
