package main

import (
	"context"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/stockpulse/market-data/internal/bridge"
	"github.com/stockpulse/market-data/internal/config"
	"github.com/stockpulse/market-data/internal/gateway"
	"github.com/stockpulse/market-data/internal/streamlog"
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

	logger.Info("starting websocket gateway",
		"version", version.Version,
		"commit", version.Commit,
	)

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateGateway(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"addr", cfg.Gateway.Addr,
		"mock_realtime", cfg.Gateway.MockRealtime,
		"broadcast_global", cfg.Bridge.BroadcastGlobal,
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

	hub := gateway.NewHub(logger)
	server := gateway.NewServer(cfg.Gateway, hub, logger)

	// Realtime source: either the pipeline's streams or the mock tape,
	// never both.
	type component interface {
		Start(ctx context.Context) error
		Stop(ctx context.Context) error
	}
	var source component

	if cfg.Gateway.MockRealtime {
		source = gateway.NewMockEmitter(hub, cfg.Upstream.Symbols, cfg.Gateway.MockInterval, logger)
	} else {
		rdb, err := streamlog.NewRedisClient(cfg.Redis)
		if err != nil {
			logger.Error("failed to create redis client", "error", err)
			os.Exit(1)
		}
		defer rdb.Close()

		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Error("failed to ping redis", "error", err)
			os.Exit(1)
		}
		logger.Info("redis connected")

		b := bridge.New(bridge.Config{BroadcastGlobal: cfg.Bridge.BroadcastGlobal}, hub, logger)

		consumerCfg := streamlog.DefaultGroupConsumerConfig(
			[]string{streamlog.StreamTrades, streamlog.StreamBars},
			cfg.Bridge.ConsumerName,
		)
		consumerCfg.BlockTimeout = cfg.Bridge.BlockTimeout
		source = streamlog.NewGroupConsumer(consumerCfg, rdb, b.Handler(), logger)
	}

	if err := source.Start(ctx); err != nil {
		logger.Error("failed to start realtime source", "error", err)
		os.Exit(1)
	}

	httpServer := &http.Server{
		Addr:    cfg.Gateway.Addr,
		Handler: server.Handler(),
	}
	go func() {
		logger.Info("gateway listening", "addr", cfg.Gateway.Addr)
		if err := httpServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("http server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	source.Stop(shutdownCtx)
	httpServer.Shutdown(shutdownCtx)

	logger.Info("websocket gateway stopped")
}
