package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

const (
	StorageMemory   = "memory"
	StoragePostgres = "postgres"
)

type Config struct {
	// Server
	Port        string
	Environment string
	LogLevel    string

	// Storage
	StorageDriver string
	DatabaseURL   string

	// Auth
	JWTSecret string

	// Sweep
	SweepInterval       time.Duration
	SweepConcurrency    int
	SweepAuctionTimeout time.Duration

	// Realtime
	RedisAddr     string
	RedisPassword string

	SeedDemoData bool
}

func Load() (*Config, error) {
	interval, err := time.ParseDuration(getEnv("SWEEP_INTERVAL", "60s"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: SWEEP_INTERVAL: %w", err)
	}
	auctionTimeout, err := time.ParseDuration(getEnv("SWEEP_AUCTION_TIMEOUT", "10s"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: SWEEP_AUCTION_TIMEOUT: %w", err)
	}
	concurrency, err := strconv.Atoi(getEnv("SWEEP_CONCURRENCY", "8"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: SWEEP_CONCURRENCY: %w", err)
	}
	seed, err := strconv.ParseBool(getEnv("SEED_DEMO_DATA", "false"))
	if err != nil {
		return nil, fmt.Errorf("invalid configuration: SEED_DEMO_DATA: %w", err)
	}

	cfg := &Config{
		Port:        getEnv("PORT", "8080"),
		Environment: getEnv("ENVIRONMENT", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),

		StorageDriver: getEnv("STORAGE_DRIVER", StorageMemory),
		DatabaseURL:   getEnv("DATABASE_URL", ""),

		JWTSecret: getEnv("JWT_SECRET", ""),

		SweepInterval:       interval,
		SweepConcurrency:    concurrency,
		SweepAuctionTimeout: auctionTimeout,

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		SeedDemoData: seed,
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWTSecret == "" {
		return fmt.Errorf("JWT_SECRET is required")
	}
	switch c.StorageDriver {
	case StorageMemory:
	case StoragePostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when STORAGE_DRIVER=%s", StoragePostgres)
		}
	default:
		return fmt.Errorf("unknown STORAGE_DRIVER %q", c.StorageDriver)
	}
	if c.SweepInterval <= 0 {
		return fmt.Errorf("SWEEP_INTERVAL must be positive")
	}
	if c.SweepConcurrency < 1 {
		return fmt.Errorf("SWEEP_CONCURRENCY must be at least 1")
	}
	if c.SweepAuctionTimeout <= 0 {
		return fmt.Errorf("SWEEP_AUCTION_TIMEOUT must be positive")
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
