package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/chesslog/chesslog/internal/analytics"
	"github.com/chesslog/chesslog/internal/config"
	"github.com/chesslog/chesslog/internal/ingest"
	"github.com/chesslog/chesslog/internal/provider"
	"github.com/chesslog/chesslog/internal/store"
	"github.com/chesslog/chesslog/internal/store/memory"
	"github.com/chesslog/chesslog/internal/store/postgres"
	"github.com/chesslog/chesslog/internal/web"
)

func main() {
	// Setup logging
	log.Logger = zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Local .env files are optional.
	_ = godotenv.Load()

	// Load config
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load config")
	}
	if level, err := zerolog.ParseLevel(cfg.Development.LogLevel); err == nil {
		zerolog.SetGlobalLevel(level)
	}

	accounts, games, jobs, cleanup := openStores(cfg)
	defer cleanup()

	chesscom := provider.NewChessComSource(
		provider.NewFetcher(provider.ChessComProfile, provider.WithLogger(log.Logger)),
		provider.WithChessComLogger(log.Logger),
	)

	coordinator, err := ingest.New(accounts, games, jobs,
		ingest.WithWorkers(cfg.Ingest.Workers),
		ingest.WithUploadDir(cfg.Ingest.UploadDir),
		ingest.WithLogger(log.Logger),
		ingest.WithChessComSource(chesscom),
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create ingestion coordinator")
	}

	service := web.NewService(accounts, games, jobs, coordinator, analytics.NewService(games), chesscom)

	// Create server
	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      service.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server
	go func() {
		log.Info().Str("addr", srv.Addr).Msg("Starting server")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info().Msg("Shutting down server...")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal().Err(err).Msg("Server forced to shutdown")
	}

	// Running imports mark themselves FAILED before the pool drains.
	coordinator.Close()

	log.Info().Msg("Server exited")
}

// openStores returns the configured store views: PostgreSQL when a
// database URL is set, the in-memory store otherwise.
func openStores(cfg *config.Config) (store.AccountStore, store.GameStore, store.JobStore, func()) {
	if cfg.Database.URL == "" {
		log.Warn().Msg("No database configured, using in-memory store")
		db := memory.New()
		return db.Accounts(), db.Games(), db.Jobs(), func() {}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.Database.URL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	if err := db.Migrate(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to run migrations")
	}
	return db.Accounts(), db.Games(), db.Jobs(), db.Close
}
