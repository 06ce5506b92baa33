package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/stemsi/exstem-proctor/internal/cache"
	"github.com/stemsi/exstem-proctor/internal/config"
	"github.com/stemsi/exstem-proctor/internal/database"
	"github.com/stemsi/exstem-proctor/internal/handler"
	"github.com/stemsi/exstem-proctor/internal/logger"
	"github.com/stemsi/exstem-proctor/internal/middleware"
	"github.com/stemsi/exstem-proctor/internal/repository"
	"github.com/stemsi/exstem-proctor/internal/router"
	"github.com/stemsi/exstem-proctor/internal/service"
	"github.com/stemsi/exstem-proctor/internal/validator"
	"github.com/stemsi/exstem-proctor/internal/worker"
	"golang.org/x/sync/errgroup"
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
		Msg("Starting ExStem Proctor")

	// ─── Initialize Validator ──────────────────────────────────────────
	validator.Setup()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// ─── Migrate ───────────────────────────────────────────────────────
	if cfg.AutoMigrate {
		if err := database.MigrateUp(cfg.DatabaseURL, log); err != nil {
			log.Fatal().Err(err).Msg("Failed to apply migrations")
		}
	}

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

	// ─── Redis-backed adapters ─────────────────────────────────────────
	snapshotCache := cache.NewSnapshotCache(rdb, cfg.SnapshotCacheTTL)
	snapshotQueue := cache.NewSnapshotQueue(rdb)
	monitor := cache.NewMonitorPublisher(rdb)
	tokens := cache.NewTokenStore(rdb)

	// ─── Initialize Services ──────────────────────────────────────────
	store := repository.NewStore(pool)

	authService := service.NewAuthService(cfg, store, tokens, log)
	accountService := service.NewAccountService(store, authService, log)
	accessService := service.NewAccessService(store)
	examService := service.NewExamService(store, log)
	groupService := service.NewGroupService(store, log)
	scoreService := service.NewScoreService(log)
	snapshotService := service.NewSnapshotService(store, snapshotCache, snapshotQueue, log)
	sessionService := service.NewExamSessionService(store, scoreService, snapshotService, monitor, log)
	violationService := service.NewViolationService(store, monitor, log)

	// ─── Rate limiters ─────────────────────────────────────────────────
	limiters := router.Limiters{
		Auth:     middleware.NewRateLimiter(cfg.AuthRateLimit, cfg.AuthRateBurst),
		Autosave: middleware.NewRateLimiter(cfg.AutosaveRateLimit, cfg.AutosaveRateBurst).ByPrincipal(),
	}
	wsLimiter := middleware.NewRateLimiter(cfg.AutosaveRateLimit, cfg.AutosaveRateBurst)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Auth:         handler.NewAuthHandler(authService, log),
		Session:      handler.NewSessionHandler(examService, sessionService, snapshotService, violationService, log),
		Exam:         handler.NewExamHandler(examService, sessionService, accessService, log),
		Question:     handler.NewQuestionHandler(examService, log),
		Group:        handler.NewGroupHandler(groupService, log),
		StudentMgmt:  handler.NewStudentManagementHandler(accountService, authService, log),
		AdminSession: handler.NewAdminSessionHandler(sessionService, violationService, log),
		Monitor:      handler.NewMonitorHandler(examService, sessionService, monitor, log),
		WS:           handler.NewWSHandler(sessionService, snapshotService, violationService, wsLimiter, log, cfg.AllowedOrigins),
		Health: handler.NewHealthHandler(map[string]handler.HealthCheck{
			"postgres": pool.Ping,
			"redis":    func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		}, log),
	}

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(authService, handlers, limiters, cfg)

	srv := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	// ─── Background Workers ───────────────────────────────────────────
	// Workers get their own context so they keep draining while the HTTP
	// server finishes in-flight requests.
	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()
	workers, workerCtx := errgroup.WithContext(workerCtx)

	snapshotWorker := worker.NewSnapshotWorker(store, snapshotQueue,
		func(err error) bool { return errors.Is(err, cache.ErrMalformedItem) },
		cfg.SnapshotBatchSize, cfg.SnapshotBatchTimeout, log)
	retentionWorker := worker.NewRetentionWorker(store, cache.NewLocker(rdb),
		cfg.SnapshotRetentionKeep, cfg.RetentionInterval, log)

	workers.Go(func() error { snapshotWorker.Start(workerCtx); return nil })
	workers.Go(func() error { retentionWorker.Start(workerCtx); return nil })
	workers.Go(func() error {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-workerCtx.Done():
				return nil
			case <-ticker.C:
				limiters.Auth.Cleanup()
				limiters.Autosave.Cleanup()
				wsLimiter.Cleanup()
			}
		}
	})

	// ─── Start Server ──────────────────────────────────────────────────
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("Server error")
		}
	}()

	// ─── Graceful Shutdown ─────────────────────────────────────────────
	<-ctx.Done()
	log.Info().Msg("Shutting down gracefully...")

	// 1. Stop accepting new HTTP requests (5s timeout).
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Stop background workers and wait for buffered snapshots to flush.
	workerCancel()
	if err := workers.Wait(); err != nil {
		log.Error().Err(err).Msg("Worker error")
	}

	log.Info().Msg("Shutdown complete")
}

// init sets zerolog global defaults before main runs.
func init() {
	zerolog.TimeFieldFormat = time.RFC3339
}
