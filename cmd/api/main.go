package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aimerfeng/SkillExchange/internal/cache"
	"github.com/aimerfeng/SkillExchange/internal/config"
	"github.com/aimerfeng/SkillExchange/internal/database"
	"github.com/aimerfeng/SkillExchange/internal/logging"
	"github.com/aimerfeng/SkillExchange/internal/monitoring"
	"github.com/aimerfeng/SkillExchange/internal/server"
	"github.com/aimerfeng/SkillExchange/internal/store"
	"github.com/aimerfeng/SkillExchange/internal/store/memory"
	"github.com/aimerfeng/SkillExchange/internal/store/postgres"
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
	logging.Setup(&cfg.Logging, cfg.Server.Env, "api")

	log.Info().
		Str("env", cfg.Server.Env).
		Str("name", cfg.Server.Name).
		Str("driver", cfg.Database.Driver).
		Msg("Starting SkillExchange API server")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Initialize Prometheus metrics
	monitoring.Init()

	var (
		stores *store.Stores
		checks []server.HealthCheck
	)
	switch cfg.Database.Driver {
	case config.DriverMemory:
		log.Warn().Msg("Using in-memory storage; data is lost on restart")
		stores = memory.New().Stores()
	default:
		connectCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		db, err := database.New(connectCtx, cfg.Database)
		cancel()
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to database")
		}
		defer db.Close()

		if err := database.RunMigrations(cfg.Database.URL); err != nil {
			log.Fatal().Err(err).Msg("Failed to run migrations")
		}

		stores = postgres.New(db.Pool)
		checks = append(checks, server.HealthCheck{Name: "database", Check: db.Health})
		go reportPoolStats(ctx, db)
	}

	var redis *cache.Redis
	if cfg.Redis.Enabled {
		redis, err = cache.NewFromURL(cfg.Redis.URL)
		if err != nil {
			// Rate limiting and token revocation are skipped without Redis
			log.Warn().Err(err).Msg("Redis unavailable, continuing without it")
			redis = nil
		} else {
			defer redis.Close()
		}
	}

	// Start metrics server if enabled
	if cfg.Monitoring.PrometheusEnabled {
		go startMetricsServer(cfg.Monitoring.PrometheusPort)
	}

	// Create and start server
	srv := server.NewAPIServer(cfg, stores, redis, checks...)

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
			Str("url", cfg.Server.URL).
			Msg("API server listening")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Server exited gracefully")
}

// reportPoolStats publishes connection pool usage until ctx is done
func reportPoolStats(ctx context.Context, db *database.DB) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stat := db.Pool.Stat()
			monitoring.SetDBConnections(int(stat.AcquiredConns()), int(stat.IdleConns()))
		}
	}
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

	if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error().Err(err).Msg("Metrics server error")
	}
}
