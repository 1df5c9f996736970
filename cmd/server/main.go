package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/campuslink/campuslink/internal/api"
	"github.com/campuslink/campuslink/internal/auth"
	"github.com/campuslink/campuslink/internal/chat"
	"github.com/campuslink/campuslink/internal/config"
	"github.com/campuslink/campuslink/internal/handlers"
	"github.com/campuslink/campuslink/internal/store"
)

func main() {
	// Load configuration
	cfg := config.Load()

	// Initialize logger
	var logger zerolog.Logger
	if cfg.IsDevelopment() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).
			With().
			Timestamp().
			Logger()
	} else {
		logger = zerolog.New(os.Stdout).
			With().
			Timestamp().
			Logger()
	}

	ctx := context.Background()

	// Initialize the profile/room store: PostgreSQL when configured,
	// SQLite otherwise
	var db store.DataStore
	if cfg.DatabaseURL != "" {
		pg, err := store.NewPostgresStore(ctx, cfg.DatabaseURL)
		if err != nil {
			logger.Fatal().Err(err).Msg("postgres connection failed")
		}
		db = pg
		logger.Info().Msg("connected to PostgreSQL")
	} else {
		sq, err := store.NewSQLiteStore(ctx, cfg.SQLitePath)
		if err != nil {
			logger.Fatal().Err(err).Msg("sqlite open failed")
		}
		db = sq
		logger.Info().Str("path", cfg.SQLitePath).Msg("using SQLite")
	}
	defer db.Close()

	// Initialize the message history store
	history, err := store.NewRedisHistory(ctx, cfg.RedisURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("redis connection failed")
	}
	defer history.Close()
	logger.Info().Msg("connected to Redis")

	// Wire the chat core
	verifier := auth.NewJWTVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	engine := chat.NewEngine(chat.EngineConfig{
		Gateway: chat.GatewayConfig{
			HandshakeTimeout: cfg.HandshakeTimeout,
			SendBuffer:       cfg.SendBuffer,
		},
		AppendTimeout:   cfg.AppendTimeout,
		MaxContentBytes: cfg.MaxContentBytes,
	}, verifier, db, db, history, logger)

	// Create router
	h := handlers.NewHandler(db, history, cfg.HistoryPageLimit, logger)
	router := api.NewRouter(logger, h, verifier, history.Client(), engine.Gateway.HandleWS)

	// Create server
	srv := &http.Server{
		Addr:        ":" + cfg.Port,
		Handler:     router,
		ReadTimeout: 15 * time.Second,
		IdleTimeout: 60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info().
			Str("port", cfg.Port).
			Str("env", cfg.Env).
			Msg("starting CampusLink server")

		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal().Err(err).Msg("server failed to start")
		}
	}()

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info().Msg("shutting down server...")

	// Graceful shutdown with 30 second timeout; live connections are
	// closed before the HTTP listener drains
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := engine.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("connections did not drain cleanly")
	}

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal().Err(err).Msg("server forced to shutdown")
	}

	logger.Info().Msg("server stopped")
}
