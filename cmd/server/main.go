package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stemsi/mockexam-backend/internal/clock"
	"github.com/stemsi/mockexam-backend/internal/config"
	"github.com/stemsi/mockexam-backend/internal/database"
	"github.com/stemsi/mockexam-backend/internal/handler"
	"github.com/stemsi/mockexam-backend/internal/logger"
	"github.com/stemsi/mockexam-backend/internal/metrics"
	"github.com/stemsi/mockexam-backend/internal/middleware"
	"github.com/stemsi/mockexam-backend/internal/repository"
	"github.com/stemsi/mockexam-backend/internal/router"
	"github.com/stemsi/mockexam-backend/internal/seed"
	"github.com/stemsi/mockexam-backend/internal/service"
	"github.com/stemsi/mockexam-backend/internal/validator"
	"github.com/stemsi/mockexam-backend/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("store", cfg.StoreDriver).
		Str("log_level", cfg.LogLevel).
		Msg("Starting Mock Exam Backend")

	// ─── Initialize Validator & Metrics ────────────────────────────────
	validator.Setup()
	if cfg.MetricsEnabled {
		metrics.Init()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	health := map[string]handler.Pinger{}

	// ─── Persistence ───────────────────────────────────────────────────
	var store repository.Store
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		mem := repository.NewMemoryStore()
		tpl := mem.PutTemplate(seed.DemoTemplate())
		log.Warn().
			Str("template_id", tpl.ID.String()).
			Msg("Using in-memory store; data is lost on restart")
		store = mem
	default:
		pool, err := database.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to connect to PostgreSQL")
		}
		defer pool.Close()
		health["postgres"] = pool
		store = repository.NewPostgresStore(pool)
	}

	// ─── Connect to Redis (optional) ───────────────────────────────────
	rdb, err := database.NewRedisClient(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to Redis")
	}

	var (
		events service.EventBus
		locker worker.Locker
	)
	if rdb != nil {
		defer rdb.Close()
		health["redis"] = handler.PingFunc(func(ctx context.Context) error { return rdb.Ping(ctx).Err() })
		events = service.NewRedisEventBus(rdb, log)
		locker = newSweepLocker(rdb, cfg, log)
	} else {
		events = service.NewLocalEventBus()
	}

	// ─── Initialize Services ──────────────────────────────────────────
	clk := clock.System()
	authService := service.NewAuthService(cfg)
	sessionService := service.NewSessionService(store, clk, events, log)
	markingService := service.NewMarkingService(store, clk, events, log)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		StudentExam: handler.NewStudentExamHandler(sessionService, log),
		Submission:  handler.NewSubmissionHandler(markingService, log),
		Schedule:    handler.NewScheduleHandler(sessionService, log),
		WS:          handler.NewWSHandler(sessionService, log, cfg.AllowedOrigins, 0),
		System:      handler.NewSystemHandler(health, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	submitLimiter := middleware.NewRateLimiter(cfg.SubmitRatePerMinute, time.Minute)
	go submitLimiter.RunCleanup(workerCtx)

	expiryWorker := worker.NewExpiryWorker(sessionService, locker, cfg.SweepInterval, cfg.SweepTimeout, log)
	go expiryWorker.Start(workerCtx)

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, cfg, submitLimiter, log)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Start Server in Goroutine ─────────────────────────────────────
	go func() {
		log.Info().Str("addr", ":"+cfg.ServerPort).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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

	// 2. Stop the sweeper and wait for an in-flight tick to finish.
	expiryWorker.Stop()
	workerCancel()

	log.Info().Msg("Shutdown complete")
}

// newSweepLocker outlives one tick so a slow sweep never loses its lock
// mid-run.
func newSweepLocker(rdb *redis.Client, cfg *config.Config, log zerolog.Logger) worker.Locker {
	return worker.NewRedisLocker(rdb, config.CacheKey.ExpirySweepLockKey(), cfg.SweepTimeout+5*time.Second, log)
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
