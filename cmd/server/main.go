package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jonboulle/clockwork"

	"github.com/scenecast/scenecast/internal/broadcast"
	"github.com/scenecast/scenecast/internal/config"
	"github.com/scenecast/scenecast/internal/logging"
	"github.com/scenecast/scenecast/internal/lookup"
	"github.com/scenecast/scenecast/internal/postcache"
	"github.com/scenecast/scenecast/internal/postgres"
	"github.com/scenecast/scenecast/internal/query"
	"github.com/scenecast/scenecast/internal/server"
	"github.com/scenecast/scenecast/internal/state"
	"github.com/scenecast/scenecast/internal/upstream"
)

func setupConfig() *config.Config {
	cfg, err := config.Load()
	if err != nil {
		// Use log before slog is initialized
		log.Fatalf("Failed to load config: %v", err)
	}
	return cfg
}

func setupDB(cfg *config.Config) *pgxpool.Pool {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		slog.Error("Failed to connect to database", "error", err)
		os.Exit(1)
	}

	if err := postgres.RunMigrations(ctx, db); err != nil {
		slog.Error("Failed to run migrations", "error", err)
		os.Exit(1)
	}

	return db
}

func runGracefulShutdown(srv *server.Server, hub *broadcast.Hub, cancelFeed context.CancelFunc) <-chan struct{} {
	done := make(chan struct{})
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	go func() {
		<-sigChan
		slog.Info("Shutdown signal received, cleaning up...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown error", "error", err)
		}

		cancelFeed()
		hub.Stop()

		close(done)
	}()

	return done
}

func main() {
	clock := clockwork.NewRealClock()

	cfg := setupConfig()

	logging.InitLogger(cfg.LogLevel, cfg.LogFormat)
	slog.Info("Application starting", "env", cfg.AppEnv, "port", cfg.Port)

	pool := setupDB(cfg)
	defer pool.Close()

	sceneRepo := postgres.NewSceneRepo(pool)
	feedbackRepo := postgres.NewFeedbackRepo(pool)

	store := state.NewStore()
	cache := postcache.New(postcache.DefaultTTL, clock)
	lookupClient := lookup.NewClient(cfg.LookupBaseURL)
	querySvc := query.NewService(sceneRepo, store, cache, lookupClient)

	hub := broadcast.NewHub(sceneRepo, feedbackRepo, store, clock)

	// The feed connector reconnects forever; cancellation is the only way out.
	feedCtx, cancelFeed := context.WithCancel(context.Background())
	connector := upstream.NewConnector(cfg.FeedBaseURL, store, clock)
	go connector.Run(feedCtx)

	srv := server.NewServer(cfg, querySvc, hub, sceneRepo, pool)

	done := runGracefulShutdown(srv, hub, cancelFeed)

	if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("Server error", "error", err)
		os.Exit(1)
	}

	<-done
}
