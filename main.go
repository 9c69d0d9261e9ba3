package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/danielhkuo/livepoll/broadcast"
	"github.com/danielhkuo/livepoll/clock"
	"github.com/danielhkuo/livepoll/cliparse"
	"github.com/danielhkuo/livepoll/db"
	"github.com/danielhkuo/livepoll/middleware"
	"github.com/danielhkuo/livepoll/models"
	"github.com/danielhkuo/livepoll/router"
	"github.com/danielhkuo/livepoll/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	var err error

	// A missing .env is fine; real deployments set the environment directly
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env", "error", err)
	}

	// Parse configuration
	cfg, err := cliparse.ParseFlags(os.Args[1:])
	if err != nil {
		slog.Error("Error parsing flags", "error", err)
		os.Exit(1)
	}

	log := setupLogger(cfg.Env)
	slog.SetDefault(log)

	dialect, err := db.ParseDialect(cfg.DatabaseType)
	if err != nil {
		slog.Error("invalid database type", "error", err)
		os.Exit(1)
	}

	// Connect and verify
	dbConn, err := db.Open(dialect, cfg.DatabaseURL)
	if err != nil {
		slog.Error("database connection failed", "error", err)
		os.Exit(1)
	}
	defer dbConn.Close()

	// Create schema (tables)
	if err := db.CreateSchema(dbConn); err != nil {
		slog.Error("schema creation failed", "error", err)
		os.Exit(1)
	}
	slog.Info("Database schema ready", "dialect", dialect)

	store := db.NewStore(dbConn, dialect)

	// The hub authorizes room joins through the registry, which in turn
	// publishes through the hub.
	var reg *session.Registry
	hub := broadcast.NewHub(broadcast.StateFunc(func(ctx context.Context, code, userID string) (models.PollState, error) {
		return reg.GetPollState(ctx, code, userID)
	}), log.With("component", "broadcast"), cfg.CORSOrigin)

	sessionCfg := session.DefaultConfig()
	sessionCfg.LiveBreakdown = cfg.LiveBreakdown
	sessionCfg.CloseRetries = cfg.CloseRetries
	reg = session.NewRegistry(store, hub, clock.Real(), log.With("component", "session"), sessionCfg)

	// Re-arm timers of questions that were live when the process stopped
	if err := reg.Recover(context.Background()); err != nil {
		slog.Error("session recovery failed", "error", err)
		os.Exit(1)
	}

	mux := router.NewRouter(store, reg, hub, cfg)

	server := http.Server{
		Handler: middleware.CORS(cfg.CORSOrigin)(mux),
		Addr:    ":" + strconv.Itoa(cfg.Port),
	}

	// signal.Notify requires the channel to be buffered
	ctrlc := make(chan os.Signal, 1)
	signal.Notify(ctrlc, os.Interrupt, syscall.SIGTERM)
	go func() {
		// Wait for Ctrl-C signal
		<-ctrlc
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		// Websockets are hijacked and not tracked by Shutdown
		hub.Close()
		if err := server.Shutdown(ctx); err != nil {
			server.Close()
		}
	}()

	// Start server
	slog.Info("Listening", "port", cfg.Port, "env", cfg.Env)
	err = server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		slog.Error("Server closed", "error", err)
	} else {
		slog.Info("Server closed", "error", err)
	}
}

// setupLogger picks a human-readable handler locally and JSON elsewhere
func setupLogger(env string) *slog.Logger {
	switch env {
	case cliparse.EnvLocal:
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	case cliparse.EnvDev:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	}
}
