package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-prep/internal/config"
	"github.com/stemsi/exstem-prep/internal/database"
	"github.com/stemsi/exstem-prep/internal/handler"
	"github.com/stemsi/exstem-prep/internal/logger"
	"github.com/stemsi/exstem-prep/internal/middleware"
	"github.com/stemsi/exstem-prep/internal/repository"
	"github.com/stemsi/exstem-prep/internal/router"
	"github.com/stemsi/exstem-prep/internal/service"
	"github.com/stemsi/exstem-prep/internal/validator"
	"github.com/stemsi/exstem-prep/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("log_level", cfg.LogLevel).
		Msg("Starting ExStem Prep")

	catalog, err := config.LoadCatalog(cfg.CatalogPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load exam catalog")
	}

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// ─── Connect to PostgreSQL ─────────────────────────────────────────
	pool, err := database.NewPostgresPool(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
	}
	defer pool.Close()

	// ─── Connect to Redis ──────────────────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}
	defer rdb.Close()

	// ─── Initialize Repositories ───────────────────────────────────────
	questionRepo := repository.NewQuestionRepository(pool)
	resultRepo := repository.NewExamResultRepository(pool)
	snapshotRepo := repository.NewSessionSnapshotRepository(pool)
	progressRepo := repository.NewSessionProgressRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	clock := service.SystemClock{}
	authService := service.NewAuthService(cfg)

	questionPool := service.NewQuestionPool(questionRepo, log)
	builder := service.NewSessionBuilder(questionPool, catalog, clock, log)
	store := service.NewSessionStore(log, snapshotRepo, service.NewRedisSessionTier(rdb, cfg.VolatileSessionTTL))
	progress := service.NewProgressCache(rdb, progressRepo, cfg.VolatileSessionTTL, clock, log)
	grader := service.NewGrader(catalog.PassThreshold)
	flow := service.NewExamFlowService(questionPool, builder, store, progress, resultRepo, grader, clock, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session:   handler.NewExamSessionHandler(flow, clock),
		Dashboard: handler.NewDashboardHandler(flow),
		WS:        handler.NewWSHandler(flow, clock, cfg.TickInterval, log, cfg.AllowedOrigins),
	}

	limiter := middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst)
	stopCleanup := make(chan struct{})
	go limiter.Cleanup(time.Minute, stopCleanup)

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	progressWorker := worker.NewProgressWorker(progressRepo, rdb, log)
	workers.Add(1)
	go func() {
		defer workers.Done()
		progressWorker.Start(workerCtx)
	}()

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiter, cfg, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	sig := <-quit

	log.Info().Str("signal", sig.String()).Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}
	close(stopCleanup)

	// 2. Stop the progress worker and wait for its final flush.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
