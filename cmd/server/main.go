package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/edusync/proctor/internal/config"
	"github.com/edusync/proctor/internal/database"
	"github.com/edusync/proctor/internal/handler"
	"github.com/edusync/proctor/internal/lms"
	"github.com/edusync/proctor/internal/logger"
	"github.com/edusync/proctor/internal/middleware"
	"github.com/edusync/proctor/internal/repository"
	"github.com/edusync/proctor/internal/router"
	"github.com/edusync/proctor/internal/service"
	"github.com/edusync/proctor/internal/session"
	"github.com/edusync/proctor/internal/validator"
	"github.com/edusync/proctor/internal/worker"
)

func main() {
	// ─── Load Configuration ────────────────────────────────────────────
	cfg := config.Load()

	// ─── Initialize Logger ─────────────────────────────────────────────
	log := logger.Setup(cfg.LogLevel, cfg.LogFormat)
	log.Info().
		Str("port", cfg.ServerPort).
		Str("mode", cfg.GinMode).
		Str("lms", cfg.LMSBaseURL).
		Dur("question_time_limit", cfg.QuestionTimeLimit).
		Int("max_warnings", cfg.MaxWarnings).
		Bool("count_suppressed", cfg.CountSuppressedViolations).
		Msg("Starting proctor service")

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
	violationRepo := repository.NewViolationRepository(pool)

	// ─── Initialize Services ──────────────────────────────────────────
	lmsClient := lms.NewClient(cfg.LMSBaseURL, cfg.LMSTimeout, log)
	sink := service.NewRedisViolationSink(rdb, 1024, log)
	proctorService := service.NewProctorService(
		cfg,
		func(token string) session.Backend { return lmsClient.WithToken(token) },
		service.NewRedisAttemptLock(rdb, cfg.AttemptLockTTL),
		sink,
		log,
	)
	violationService := service.NewViolationService(violationRepo)

	// ─── Initialize Handlers ──────────────────────────────────────────
	handlers := &router.Handlers{
		Session: handler.NewSessionHandler(proctorService, log, cfg.AllowedOrigins),
		Monitor: handler.NewMonitorHandler(proctorService, violationService, log),
	}

	// ─── Start Background Workers ─────────────────────────────────────
	workerCtx, workerCancel := context.WithCancel(context.Background())
	var workers sync.WaitGroup

	violationWorker := worker.NewViolationWorker(pool, rdb, log)
	workers.Add(2)
	go func() {
		defer workers.Done()
		sink.Run(workerCtx)
	}()
	go func() {
		defer workers.Done()
		violationWorker.Start(workerCtx)
	}()

	// Rate limiter for WebSocket upgrades (20 per minute per student).
	limiter := middleware.NewRateLimiter(20, time.Minute)
	go limiter.Run(workerCtx.Done())

	// ─── Setup Router ──────────────────────────────────────────────────
	r := router.SetupRouter(middleware.NewVerifier(cfg.JWTSecret), limiter, handlers, cfg)

	// ─── Create HTTP Server ────────────────────────────────────────────
	srv := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
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

	// 1. Stop accepting new HTTP requests (5s timeout). Hijacked WebSocket
	// connections are not tracked by Shutdown.
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("HTTP server shutdown error")
	}

	// 2. Tear down live sessions so their locks are released.
	proctorService.Shutdown()

	// 3. Stop background workers and wait for queues to drain.
	workerCancel()
	workers.Wait()

	log.Info().Msg("Shutdown complete")
}
