// Package config provides configuration management functionality.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	DataDir         string // Base directory for the history and cache databases
	LogLevel        string
	Port            int
	DevMode         bool
	BatchWorkers    int     // Worker goroutines for scenario batches
	MinObservations int     // Minimum price observations required per run
	RiskFreeRate    float64 // Annual risk-free rate for ratio calculations
	VaRConfidence   float64 // Confidence level for VaR/CVaR
}

// Load reads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if it exists
	_ = godotenv.Load()

	dataDir := getEnv("BACKTEST_DATA_DIR", "")
	if dataDir == "" {
		dataDir = "./data"
	}

	// Always resolve to absolute path
	absDataDir, err := filepath.Abs(dataDir)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve data directory path: %w", err)
	}

	if err := os.MkdirAll(absDataDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}

	cfg := &Config{
		DataDir:         absDataDir,
		Port:            getEnvAsInt("GO_PORT", 8002),
		DevMode:         getEnvAsBool("DEV_MODE", false),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		BatchWorkers:    getEnvAsInt("BATCH_WORKERS", 8),
		MinObservations: getEnvAsInt("MIN_OBSERVATIONS", 30),
		RiskFreeRate:    getEnvAsFloat("RISK_FREE_RATE", 0.02),
		VaRConfidence:   getEnvAsFloat("VAR_CONFIDENCE", 0.95),
	}

	if cfg.MinObservations < 2 {
		return nil, fmt.Errorf("MIN_OBSERVATIONS must be at least 2, got %d", cfg.MinObservations)
	}
	if cfg.VaRConfidence <= 0 || cfg.VaRConfidence >= 1 {
		return nil, fmt.Errorf("VAR_CONFIDENCE must be in (0, 1), got %.4f", cfg.VaRConfidence)
	}

	return cfg, nil
}

// getEnv retrieves an environment variable value, returning a fallback if
// the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

// getEnvAsInt retrieves an environment variable as an integer
func getEnvAsInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsBool retrieves an environment variable as a boolean
func getEnvAsBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseBool(value); err == nil {
			return parsed
		}
	}
	return fallback
}

// getEnvAsFloat retrieves an environment variable as a float
func getEnvAsFloat(key string, fallback float64) float64 {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.ParseFloat(value, 64); err == nil {
			return parsed
		}
	}
	return fallback
}
