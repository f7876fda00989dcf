package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/field-worklog-bot/internal/api"
	"github.com/field-worklog-bot/internal/app"
	"github.com/field-worklog-bot/internal/config"
	"github.com/field-worklog-bot/internal/obs"
	"github.com/field-worklog-bot/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		// the configured logger needs the config; fall back to defaults
		log := logger.New(config.LogConfig{Level: "info", Format: "json"})
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	// Initialize logger
	log := logger.New(cfg.Log)
	log.Info().Msg("Starting field work-log bot...")

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Wire database, sink, services and dialog
	a, err := app.New(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize application")
	}
	defer a.Close()

	// Run migrations
	if err := a.DB.RunMigrations(cfg.Database.MigrationsPath); err != nil {
		log.Fatal().Err(err).Msg("Failed to run database migrations")
	}

	obs.Init()

	// Start the dialog loop and the sync scheduler
	loopDone := make(chan struct{})
	go func() {
		a.Loop.Run(ctx)
		close(loopDone)
	}()
	go a.Services.Scheduler.StartProcessor(ctx)

	// Initialize router
	router := api.NewRouter(a.Services, a.Loop, cfg, log)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.ReadTimeout,
	}

	// Start server in goroutine
	go func() {
		log.Info().Str("port", cfg.Server.Port).Msg("Server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Server failed")
		}
	}()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	// Stop the scheduler, then drain the dialog loop
	a.Services.Scheduler.StopProcessor()
	stop()
	select {
	case <-loopDone:
	case <-shutdownCtx.Done():
		log.Warn().Msg("Dialog loop did not stop in time")
	}

	log.Info().Msg("Server exited gracefully")
}
