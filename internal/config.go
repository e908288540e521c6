package internal

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	Env      string
	Port     int
	LogLevel string

	DatabaseUrl string
	RedisURL    string

	// JWT
	JWTSecret     string
	JWTExpiration time.Duration

	// Response cache
	CacheTTL time.Duration

	// Quota retention sweep
	QuotaRetentionDays int
	QuotaSweepSchedule string

	// Bound on each quota store round trip
	StoreTimeout time.Duration

	// Dataset
	ParquetDataPath string

	// Metrics endpoint authentication
	// If both are empty, the /metrics endpoint will be unprotected (not recommended)
	MetricsUsername string
	MetricsPassword string
}

func NewConfig() (*Config, error) {
	// Load .env file if it exists (ignored in production)
	_ = godotenv.Load()

	cfg := &Config{
		Env:      getEnv("ENV", "development"),
		Port:     getEnvInt("PORT", 8080),
		LogLevel: getEnv("LOG_LEVEL", "debug"),

		// Unset or empty REDIS_URL disables the Redis response cache;
		// the server falls back to an in-process cache.
		RedisURL: getEnv("REDIS_URL", ""),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		JWTExpiration: getEnvDuration("JWT_EXPIRATION", 24*time.Hour),

		CacheTTL: getEnvDuration("CACHE_TTL", 5*time.Minute),

		QuotaRetentionDays: getEnvInt("QUOTA_RETENTION_DAYS", 7),
		QuotaSweepSchedule: getEnv("QUOTA_SWEEP_SCHEDULE", "30 0 * * *"),

		StoreTimeout: getEnvDuration("STORE_TIMEOUT", 3*time.Second),

		ParquetDataPath: getEnv("PARQUET_DATA_PATH", "./data/stocks_ohlc.parquet"),

		MetricsUsername: getEnv("METRICS_USERNAME", ""),
		MetricsPassword: getEnv("METRICS_PASSWORD", ""),
	}

	// Required
	cfg.DatabaseUrl = os.Getenv("DATABASE_URL")
	if cfg.DatabaseUrl == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.JWTSecret == "" {
		if cfg.Env != "development" {
			return nil, fmt.Errorf("JWT_SECRET is required outside development")
		}
		cfg.JWTSecret = "dev-secret-change-me"
	}

	if cfg.QuotaRetentionDays < 1 {
		return nil, fmt.Errorf("QUOTA_RETENTION_DAYS must be at least 1, got %d", cfg.QuotaRetentionDays)
	}

	return cfg, nil
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}
