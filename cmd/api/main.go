package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/scribe/internal/auth"
	"github.com/aimerfeng/scribe/internal/cache"
	"github.com/aimerfeng/scribe/internal/config"
	"github.com/aimerfeng/scribe/internal/database"
	"github.com/aimerfeng/scribe/internal/generation"
	"github.com/aimerfeng/scribe/internal/llm"
	"github.com/aimerfeng/scribe/internal/logging"
	"github.com/aimerfeng/scribe/internal/middleware"
	"github.com/aimerfeng/scribe/internal/monitoring"
	"github.com/aimerfeng/scribe/internal/server"
	"github.com/aimerfeng/scribe/internal/share"
	"github.com/aimerfeng/scribe/internal/store"
	"github.com/aimerfeng/scribe/internal/usage"
	"github.com/aimerfeng/scribe/migrations"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

func main() {
	// Load configuration first
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize structured logging
	logging.Setup(&cfg.Logging, cfg.Server.Env)

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Str("quota_locking", cfg.Quota.Locking).
		Int("daily_limit", cfg.Quota.DailyLimit).
		Msg("Starting Scribe API server")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	if cfg.Database.AutoMigrate {
		if err := database.RunMigrations(cfg.Database.URL, migrations.FS); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}
	}

	// Initialize database connection
	db, err := database.New(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer db.Close()

	var rdb *redis.Client
	if cfg.Redis.URL != "" {
		r, err := cache.NewRedis(ctx, cfg.Redis.URL)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to redis")
		}
		defer r.Close()
		rdb = r.Client
		log.Info().Msg("Redis connection established")
	}

	// Initialize Prometheus metrics
	monitoring.Init()
	go db.ReportStats(ctx, 15*time.Second)

	// Start metrics server if enabled
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	users := store.NewUserStore(db.Pool)
	history := store.NewHistoryStore(db.Pool)
	shares := store.NewShareStore(db.Pool)

	gate, err := newGate(cfg, users, rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure usage gate")
	}

	limiterStore, err := middleware.NewLimiterStore(rdb)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure rate limiter")
	}

	llmClient := llm.NewClient(&cfg.LLM, llm.DefaultBreakerConfig())
	shareService := share.NewService(shares, cfg.Share.TTL)

	scheduler := share.NewScheduler(shareService, cfg.Share.PurgeInterval)
	if err := scheduler.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start share purge scheduler")
	}
	defer scheduler.Stop()

	// Create and start server
	srv, err := server.NewAPIServer(cfg, server.Deps{
		Auth:         auth.NewService(users, &cfg.JWT, cfg.Quota.DefaultPro),
		Gate:         gate,
		Generation:   generation.NewService(llmClient, history, cfg.History.Limit),
		Shares:       shareService,
		DB:           db,
		Breaker:      llmClient.Breaker(),
		LimiterStore: limiterStore,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to build API server")
	}

	httpServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      srv.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().
			Int("port", cfg.Server.Port).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().
		Str("signal", sig.String()).
		Msg("Shutdown signal received, gracefully shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	stop()

	log.Info().Msg("Server exited gracefully")
}

// newGate wires the usage gate for the configured locking mode
func newGate(cfg *config.Config, users *store.UserStore, rdb *redis.Client) (*usage.Gate, error) {
	loc, err := cfg.Quota.Location()
	if err != nil {
		return nil, err
	}

	opts := []usage.Option{usage.WithLocation(loc)}
	switch cfg.Quota.Locking {
	case config.LockingNone:
	case config.LockingMutex:
		opts = append(opts, usage.WithLocker(config.LockingMutex, usage.NewMutexLocker(), cfg.Quota.LockWait))
	case config.LockingRedis:
		if rdb == nil {
			return nil, errors.New("redis locking requires REDIS_URL")
		}
		opts = append(opts, usage.WithLocker(config.LockingRedis, usage.NewRedisLocker(rdb, cfg.Quota.LockTTL), cfg.Quota.LockWait))
	case config.LockingCAS:
		opts = append(opts, usage.WithCompareAndSwap(users, cfg.Quota.CASAttempts))
	default:
		return nil, fmt.Errorf("unknown locking mode %q", cfg.Quota.Locking)
	}

	return usage.NewGate(users, cfg.Quota.DailyLimit, opts...), nil
}

func startMetricsServer(port int) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", monitoring.Handler())

	metricsServer := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	log.Info().
		Int("port", port).
		Msg("Prometheus metrics server listening")

	if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
