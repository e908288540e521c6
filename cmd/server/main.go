package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/tickwise/tickwise/internal"
	"github.com/tickwise/tickwise/internal/auth"
	"github.com/tickwise/tickwise/internal/cache"
	"github.com/tickwise/tickwise/internal/dataset"
	"github.com/tickwise/tickwise/internal/handler"
	"github.com/tickwise/tickwise/internal/metrics"
	"github.com/tickwise/tickwise/internal/middleware"
	"github.com/tickwise/tickwise/internal/ratelimit"
	"github.com/tickwise/tickwise/internal/repository"
	"github.com/tickwise/tickwise/internal/service"
)

func run() error {
	ctx := context.Background()

	// Load configuration
	cfg, err := internal.NewConfig()
	if err != nil {
		return fmt.Errorf("config initialization failed: %w", err)
	}

	// Configure logger
	logger := internal.NewLogger(os.Stdout, cfg.Env, cfg.LogLevel)

	// Run migrations over a short-lived database/sql connection
	migrateDB, err := sql.Open("pgx", cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("database connection failed: %w", err)
	}
	if err := migrateDB.PingContext(ctx); err != nil {
		migrateDB.Close()
		return fmt.Errorf("database ping failed: %w", err)
	}
	if err := internal.RunMigrations(migrateDB); err != nil {
		migrateDB.Close()
		return fmt.Errorf("migration failed: %w", err)
	}
	migrateDB.Close()

	// Connection pool for request-path queries
	pool, err := pgxpool.New(ctx, cfg.DatabaseUrl)
	if err != nil {
		return fmt.Errorf("connection pool failed: %w", err)
	}
	defer pool.Close()
	logger.Info("Database ready")

	// Response cache: Redis when configured, in-process otherwise
	var responseCache cache.Cache
	if cfg.RedisURL != "" {
		redisCache, err := cache.NewRedisCache(cfg.RedisURL, logger)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisCache.Close()
		responseCache = redisCache
		logger.Info("Redis cache ready", "url", cfg.RedisURL)
	} else {
		responseCache = cache.NewMemoryCache()
		logger.Warn("REDIS_URL not set, using in-process cache")
	}

	// Historical OHLC dataset
	data := dataset.New(logger)
	if err := data.Load(cfg.ParquetDataPath); err != nil {
		return fmt.Errorf("dataset load failed: %w", err)
	}

	// Initialize repository and services
	repo := repository.New(pool)
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.JWTExpiration)
	userService := service.NewUserService(repo, tokens, logger)

	// Quota enforcement and nightly counter cleanup
	counterStore := ratelimit.NewPostgresStore(pool)
	limiter := ratelimit.NewLimiter(counterStore, logger, cfg.StoreTimeout)
	sweeper := ratelimit.NewSweeper(counterStore, cfg.QuotaRetentionDays, logger)
	if err := sweeper.Start(cfg.QuotaSweepSchedule); err != nil {
		return fmt.Errorf("sweeper start failed: %w", err)
	}
	defer sweeper.Stop()

	// Initialize middleware
	authMw := middleware.NewAuthMiddleware(userService, tokens, logger)
	loggingMw := middleware.NewRequestLoggingMiddleware(logger)

	// Initialize handlers
	authHandler := handler.NewAuthHandler(userService, logger)
	marketHandler := handler.NewMarketHandler(data, limiter, responseCache, cfg.CacheTTL, logger)

	// ==========================================================================
	// Create router and register routes
	// ==========================================================================

	mux := http.NewServeMux()

	// Health check
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Prometheus metrics
	mux.Handle("GET /metrics", metrics.Handler(cfg.MetricsUsername, cfg.MetricsPassword))

	public := middleware.Stack(loggingMw.Handler)
	protected := middleware.Stack(loggingMw.Handler, authMw.WithUser, authMw.RequireUser)

	authHandler.RegisterRoutes(mux, public, protected)
	marketHandler.RegisterRoutes(mux, protected)

	// ==========================================================================
	// Start server
	// ==========================================================================

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: metrics.Middleware(mux),
	}

	// Channel to listen for interrupt signals
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	// Start server in goroutine
	go func() {
		logger.Info("Server started", "address", server.Addr, "env", cfg.Env)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
		}
	}()

	// Wait for interrupt signal
	<-sigChan
	logger.Info("Shutdown signal received, initiating graceful shutdown...")

	// Create shutdown context with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server shutdown error", "error", err)
	}

	logger.Info("Graceful shutdown complete")
	return nil
}

func main() {
	if err := run(); err != nil {
		log.Fatal(err)
	}
}
