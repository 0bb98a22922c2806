package main

import (
	"context"
	"encoding/json"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/stockpulse/market-data/internal/bus"
	"github.com/stockpulse/market-data/internal/config"
	"github.com/stockpulse/market-data/internal/database"
	"github.com/stockpulse/market-data/internal/processor"
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

	logger.Info("starting stream processor",
		"version", version.Version,
		"commit", version.Commit,
	)

	cfg, err := config.LoadOrEnv(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.ValidateProcessor(); err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	logger.Info("configuration loaded",
		"brokers", cfg.Bus.Brokers,
		"batch_size", cfg.Writers.BatchSize,
		"flush_interval", cfg.Writers.FlushInterval,
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

	// Connect to database
	db, err := database.Connect(ctx, cfg.Database)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	logger.Info("database connected")

	// Connect to the fan-out streams
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

	tradesSource, err := bus.NewConsumer(cfg.Bus.Brokers, bus.GroupTradesPersist, bus.TopicTrades, logger)
	if err != nil {
		logger.Error("failed to create trades consumer", "error", err)
		os.Exit(1)
	}
	defer tradesSource.Close()

	barsSource, err := bus.NewConsumer(cfg.Bus.Brokers, bus.GroupBarsPersist, bus.TopicBars, logger)
	if err != nil {
		logger.Error("failed to create bars consumer", "error", err)
		os.Exit(1)
	}
	defer barsSource.Close()

	store := processor.NewPGStore(db)
	publisher := streamlog.NewPublisher(rdb)

	writerCfg := processor.DefaultWriterConfig()
	writerCfg.BatchSize = cfg.Writers.BatchSize
	writerCfg.FlushInterval = cfg.Writers.FlushInterval

	health := processor.NewHealth(writerCfg.DegradedAfter)
	tradeWriter := processor.NewTradeWriter(writerCfg, tradesSource, store, publisher, health, logger)
	barWriter := processor.NewBarWriter(writerCfg, barsSource, store, publisher, health, logger)

	healthServer := &http.Server{
		Addr:    cfg.Writers.HealthAddr,
		Handler: healthHandler(db, health, tradeWriter, barWriter),
	}
	go func() {
		logger.Info("starting health server", "addr", cfg.Writers.HealthAddr)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	if err := tradeWriter.Start(ctx); err != nil {
		logger.Error("failed to start trade writer", "error", err)
		os.Exit(1)
	}
	if err := barWriter.Start(ctx); err != nil {
		logger.Error("failed to start bar writer", "error", err)
		os.Exit(1)
	}

	logger.Info("stream processor running")

	<-ctx.Done()

	logger.Info("shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	tradeWriter.Stop(shutdownCtx)
	barWriter.Stop(shutdownCtx)
	healthServer.Shutdown(shutdownCtx)

	logger.Info("stream processor stopped")
}

// healthHandler reports database reachability and writer state.
func healthHandler(db *pgxpool.Pool, health *processor.Health, trades *processor.TradeWriter, bars *processor.BarWriter) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()

		body := struct {
			Status     string                 `json:"status"`
			Components map[string]interface{} `json:"components"`
		}{
			Status:     health.Status(),
			Components: make(map[string]interface{}),
		}

		if err := db.Ping(ctx); err != nil {
			body.Status = "unhealthy"
			body.Components["postgres"] = map[string]string{
				"status": "disconnected",
				"error":  err.Error(),
			}
		} else {
			body.Components["postgres"] = "connected"
		}

		body.Components["trades"] = trades.Metrics()
		body.Components["bars"] = bars.Metrics()

		w.Header().Set("Content-Type", "application/json")
		if body.Status == "unhealthy" {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
		json.NewEncoder(w).Encode(body)
	})

	return mux
}
