package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"gw2-tradepost-bot/internal/advisor"
	"gw2-tradepost-bot/internal/config"
	"gw2-tradepost-bot/internal/gw2"
	"gw2-tradepost-bot/internal/logger"
	"gw2-tradepost-bot/internal/scout"
	"gw2-tradepost-bot/internal/store"
)

func main() {
	// Load application configuration
	cfg, err := config.LoadConfig("./configs")
	if err != nil {
		// We can't use the logger here because it's not initialized yet.
		panic(fmt.Sprintf("could not load config: %v", err))
	}

	// Initialize logger
	log, err := logger.NewLogger(cfg.Logger.Level, cfg.Logger.Format)
	if err != nil {
		panic(err)
	}
	defer log.Sync()
	log.Info("Configuration loaded")

	// Initialize persistence
	st, err := store.NewStore(cfg.Database.DSN)
	if err != nil {
		log.Fatal("Failed to open database", zap.Error(err))
	}
	log.Info("Database opened and schema migrated.")

	// Initialize GW2 API client
	client := gw2.NewClient(&cfg.GW2, log)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pingCtx, pingCancel := context.WithTimeout(ctx, 30*time.Second)
	err = client.Ping(pingCtx)
	pingCancel()
	if err != nil {
		log.Fatal("Failed to reach GW2 API", zap.Error(err))
	}
	log.Info("Successfully connected to GW2 API.")

	// The heuristic is the only built-in strategy; the resilient wrapper
	// leaves room for an external advisor without changing the engine.
	adv := advisor.NewResilient(nil,
		time.Duration(cfg.Advisor.TimeoutSeconds)*time.Second, log)

	engine, err := scout.NewEngine(log, &cfg, client, st, adv)
	if err != nil {
		log.Fatal("Failed to initialize scout engine", zap.Error(err))
	}

	api := scout.NewAPIServer(engine, log)
	api.Start()

	// Graceful shutdown on SIGINT/SIGTERM
	go func() {
		sigchan := make(chan os.Signal, 1)
		signal.Notify(sigchan, syscall.SIGINT, syscall.SIGTERM)
		<-sigchan
		log.Info("Shutdown signal received, gracefully shutting down...")
		cancel()
	}()

	engine.Run(ctx)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := api.Stop(shutdownCtx); err != nil {
		log.Error("API server shutdown failed", zap.Error(err))
	}

	log.Info("Scout has been shut down.")
}
