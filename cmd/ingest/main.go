package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stockpulse/market-data/internal/bus"
	"github.com/stockpulse/market-data/internal/config"
	"github.com/stockpulse/market-data/internal/feed"
	"github.com/stockpulse/market-data/internal/version"
)

func main() {
	configPath := flag.String("config", "", "path to config file (optional; falls back to environment)")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelDebug,
	}))
	slog.SetDefault(logger)

	godotenv.Load()

	logger.Info("starting ingest worker",
		"version", version.Version,
		"commit", version.Commit,
	)

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateIngest(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"upstream_url", cfg.Upstream.URL,
		"symbols", cfg.Upstream.Symbols,
		"brokers", cfg.Bus.Brokers,
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	producer, err := bus.NewProducer(cfg.Bus.Brokers, logger)
	if err != nil {
		logger.Error("failed to create producer", "error", err)
		os.Exit(1)
	}

	manager := feed.NewManager(cfg.Upstream, producer, logger)

	logger.Info("ingest worker running")
	if err := manager.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("feed manager exited", "error", err)
	}

	logger.Info("shutting down...")

	// Flush buffered records before exiting.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	producer.Close(shutdownCtx)

	logger.Info("ingest worker stopped")
}
