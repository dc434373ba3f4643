package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/100x-Engineers100/ugc-tracker/internal/audit"
	"github.com/100x-Engineers100/ugc-tracker/internal/config"
	"github.com/100x-Engineers100/ugc-tracker/internal/infrastructure/postgres"
	"github.com/100x-Engineers100/ugc-tracker/internal/infrastructure/rabbitmq"
	"github.com/100x-Engineers100/ugc-tracker/internal/infrastructure/redis"
	"github.com/100x-Engineers100/ugc-tracker/internal/linkedin"
	"github.com/100x-Engineers100/ugc-tracker/internal/notify"
	"github.com/100x-Engineers100/ugc-tracker/internal/pkg/logger"
	"github.com/100x-Engineers100/ugc-tracker/internal/security"
	"github.com/100x-Engineers100/ugc-tracker/internal/service"
	"github.com/100x-Engineers100/ugc-tracker/internal/transport/rest"
	"github.com/jackc/pgx/v5/pgxpool"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config load failed: %v\n", err)
		os.Exit(1)
	}

	if cfg.LogLevel != "" {
		_ = os.Setenv("LOG_LEVEL", cfg.LogLevel)
	}

	logger.Init()
	log := logger.Logger.With().
		Str("service", "ugc-tracker").
		Str("env", cfg.AppEnv).
		Logger()

	// Root ctx with signal cancellation. An in-flight batch run ends only
	// by full traversal or by this context.
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// ---- Postgres ----
	dbPool, err := pgxpool.New(rootCtx, cfg.DBDSN)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres pool create failed")
	}
	defer dbPool.Close()

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 5*time.Second)
		defer cancel()

		if err := dbPool.Ping(pingCtx); err != nil {
			log.Fatal().Err(err).Msg("postgres ping failed")
		}
		log.Info().Msg("postgres connected")
	}

	repo := postgres.New(dbPool)

	// ---- Redis ----
	cache := redis.New(cfg.RedisAddr, cfg.RedisPass, cfg.RedisDB, cfg.CacheCohortTTL)

	{
		pingCtx, cancel := context.WithTimeout(rootCtx, 2*time.Second)
		defer cancel()

		// Best-effort ping; the cache degrades to postgres reads
		if err := cache.Client.Ping(pingCtx).Err(); err != nil {
			log.Warn().Err(err).Msg("redis ping failed (continuing)")
		} else {
			log.Info().Msg("redis connected")
		}
	}

	// ---- Notifications ----
	logSink := notify.NewLog()
	var publisher *rabbitmq.Publisher
	notifier := notify.NewFanout(logSink)
	if cfg.NotifyPublished {
		publisher = rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitExchange)
		defer publisher.Close()
		notifier = notify.NewFanout(logSink, publisher)
		log.Info().Str("exchange", cfg.RabbitExchange).Msg("notification publishing enabled")
	}

	auditLog := audit.New(log)

	// ---- Application services ----
	cohorts := service.NewCohortService(repo, cache, notifier, auditLog)
	fetcher := linkedin.NewClient(cfg.LinkedInBaseURL, cfg.LinkedInTimeout, nil)
	runner := service.NewRunner(rootCtx, cohorts, fetcher, repo, notifier, auditLog, cfg.FetchDelay)
	h := rest.NewHandler(cohorts, runner)

	// ---- JWT verifier ----
	verifier := security.NewHS256Verifier(cfg.JWTSecret)

	// ---- Router ----
	httpHandler := rest.NewRouter(rest.RouterDeps{
		Cache:            cache,
		Handler:          h,
		Verifier:         verifier,
		JWTIssuer:        cfg.JWTIssuer,
		RateLimitEnabled: cfg.RLEnabled,
		RateLimit:        cfg.RLLimit,
		RateLimitWindow:  cfg.RLWindow,
	})

	// ---- HTTP server ----
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      20 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	// Start server
	errCh := make(chan error, 1)
	go func() {
		log.Info().Int("port", cfg.Port).Msg("http server starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for shutdown signal or server crash
	select {
	case <-rootCtx.Done():
		log.Info().Msg("shutdown signal received")
	case err := <-errCh:
		log.Error().Err(err).Msg("http server crashed")
	}

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 8*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	log.Info().Msg("shutdown complete")
}
