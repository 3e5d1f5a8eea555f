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

	"github.com/golang-migrate/migrate/v4"

	"github.com/sendiq/sendiq/internal/auth"
	"github.com/sendiq/sendiq/internal/config"
	"github.com/sendiq/sendiq/internal/database"
	"github.com/sendiq/sendiq/internal/email"
	"github.com/sendiq/sendiq/internal/events"
	"github.com/sendiq/sendiq/internal/handler"
	"github.com/sendiq/sendiq/internal/logger"
	"github.com/sendiq/sendiq/internal/middleware"
	"github.com/sendiq/sendiq/internal/model"
	"github.com/sendiq/sendiq/internal/repository"
	"github.com/sendiq/sendiq/internal/router"
	"github.com/sendiq/sendiq/internal/service"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	log := logger.New(cfg.Log.Level, cfg.Log.Format)
	log.Info().Str("version", handler.Version).Str("storage", cfg.Storage.Backend).Msg("starting SendIQ server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := map[string]handler.HealthChecker{}

	// Redis backs rate limiting and cross-process events, and optionally storage
	rdb, err := database.NewRedis(cfg.Redis)
	if err != nil {
		if cfg.Storage.Backend == config.BackendRedis {
			log.Fatal().Err(err).Msg("failed to connect to Redis")
		}
		log.Warn().Err(err).Msg("Redis unavailable, rate limiting and event relay disabled")
		rdb = nil
	} else {
		defer rdb.Close()
		checks["redis"] = rdb
		log.Info().Msg("connected to Redis")
	}

	// Select the key-value backend
	var kv database.KV
	switch cfg.Storage.Backend {
	case config.BackendRedis:
		kv = rdb
	case config.BackendPostgres:
		db, err := database.NewPostgres(cfg.Database)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to connect to database")
		}
		defer db.Close()
		log.Info().Msg("connected to PostgreSQL")

		if err := migrateUp(db); err != nil {
			log.Fatal().Err(err).Msg("failed to apply migrations")
		}
		checks["postgres"] = db
		kv = db
	case config.BackendMemory:
		log.Warn().Msg("using in-memory storage, state will not survive restarts")
		kv = database.NewMemory()
	}

	// Initialize repositories
	prefix := cfg.Storage.KeyPrefix
	scheduledRepo := repository.NewScheduledSendRepository(kv, prefix)
	activityRepo := repository.NewActivityRepository(kv, prefix, cfg.Activity.MaxEntries)
	settingsRepo := repository.NewSettingsRepository(kv, prefix, model.Settings{AutoIntercept: cfg.Settings.AutoIntercept})
	tokenRepo := repository.NewTokenRepository(kv, prefix)

	// Event fan-out: in-process stream subscribers, plus Redis pub/sub when available
	hub := events.NewHub()
	broadcaster := events.Fanout{hub}
	if rdb != nil {
		broadcaster = append(broadcaster, events.NewRedisBroadcaster(rdb, cfg.Events.RedisChannel, log))
	}

	// Mailbox credentials and transport
	creds, err := auth.NewCredentialProvider(cfg.Gmail, tokenRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to initialize mailbox credentials")
	}
	transport := email.NewGmailTransport()

	// Initialize services
	dispatcher := service.NewDispatcher(creds, transport, log)
	store := service.NewScheduleStore(scheduledRepo, broadcaster, log)
	schedulerSvc := service.NewSchedulerService(store, dispatcher, activityRepo, cfg.Scheduler, log)
	massSendSvc := service.NewMassSendService(dispatcher, activityRepo, settingsRepo, broadcaster, cfg.MassSend, log)
	draftSvc := service.NewDraftService(creds, transport, log)
	accountSvc := service.NewAccountService(creds, creds, transport, settingsRepo, activityRepo, log)

	if err := schedulerSvc.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to start scheduler")
	}
	schedulerDone := make(chan error, 1)
	go func() {
		schedulerDone <- schedulerSvc.Run(ctx)
	}()

	// Initialize handlers
	h := handler.New(log, cfg, checks, schedulerSvc, massSendSvc, draftSvc, accountSvc, hub)

	// Initialize middleware
	mw := middleware.New(rdb, log, cfg)

	tokens := auth.NewAPITokens(cfg.Security)
	if !tokens.Enabled() {
		log.Warn().Msg("security.api_secret is empty, API authentication disabled")
	}

	// Set up router
	r := router.New(h, mw, tokens, cfg.Server.AllowedOrigins, middleware.RateLimitConfig{
		Name:   "send",
		Limit:  cfg.Security.RateLimiting.SendLimit,
		Window: cfg.Security.RateLimiting.SendWindow,
		KeyFn:  middleware.SubjectOrIPKey,
	})

	// Create HTTP server
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("addr", addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP server error")
		}
	}()

	// Wait for interrupt signal
	<-ctx.Done()
	log.Info().Msg("shutting down server...")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("server forced to shutdown")
	}
	if err := <-schedulerDone; err != nil {
		log.Error().Err(err).Msg("scheduler stopped with error")
	}

	// Let in-flight mass sends finish
	waited := make(chan struct{})
	go func() {
		massSendSvc.Wait()
		close(waited)
	}()
	select {
	case <-waited:
	case <-shutdownCtx.Done():
		log.Warn().Msg("mass sends still running at shutdown deadline")
	}

	log.Info().Msg("server stopped")
}

func migrateUp(db *database.Postgres) error {
	m, err := database.NewMigrator(db)
	if err != nil {
		return err
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("migration failed: %w", err)
	}
	return nil
}
