// Package main is the entry point for the backtest simulation service.
// It exposes portfolio simulation, batch what-if runs, and market data
// management over an HTTP API.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/aristath/backtest/internal/batch"
	"github.com/aristath/backtest/internal/config"
	"github.com/aristath/backtest/internal/database"
	"github.com/aristath/backtest/internal/marketdata"
	"github.com/aristath/backtest/internal/server"
	"github.com/aristath/backtest/internal/statistics"
	"github.com/aristath/backtest/pkg/logger"
)

func main() {
	// Load configuration first to get log level
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting backtest service")

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		log.Fatal().Err(err).Str("dir", cfg.DataDir).Msg("Failed to create data directory")
	}

	// history.db holds daily closes, cache.db holds ephemeral aligned series
	historyDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "history.db"),
		Profile: database.ProfileHistory,
		Name:    "history",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open history database")
	}
	defer historyDB.Close()

	cacheDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "cache.db"),
		Profile: database.ProfileCache,
		Name:    "cache",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open cache database")
	}
	defer cacheDB.Close()

	seriesCache, err := marketdata.NewSeriesCache(cacheDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize series cache")
	}
	if err := seriesCache.Prune(); err != nil {
		log.Warn().Err(err).Msg("Failed to prune series cache")
	}

	historyStore, err := marketdata.NewHistoryStore(historyDB, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize history store")
	}
	historyStore.SetCache(seriesCache)

	stats := statistics.NewCalculator(log)
	runner := batch.NewRunner(cfg.BatchWorkers, stats, log)

	srv := server.New(server.Config{
		Log:       log,
		HistoryDB: historyDB,
		CacheDB:   cacheDB,
		Provider:  historyStore,
		Stats:     stats,
		Runner:    runner,
		Config:    cfg,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	serverErr := make(chan error, 1)
	go func() {
		serverErr <- srv.Start()
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErr:
		log.Fatal().Err(err).Msg("HTTP server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Shutdown signal received")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server shutdown error")
	}

	log.Info().Msg("Shutdown complete")
}
