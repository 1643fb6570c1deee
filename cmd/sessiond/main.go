package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/chatfleet/sessiond/internal/config"
	"github.com/chatfleet/sessiond/internal/database"
	"github.com/chatfleet/sessiond/internal/event"
	"github.com/chatfleet/sessiond/internal/protocol/bridge"
	"github.com/chatfleet/sessiond/internal/server"
	"github.com/chatfleet/sessiond/internal/session"
	"github.com/chatfleet/sessiond/internal/store"
	"github.com/chatfleet/sessiond/internal/store/badger"
	"github.com/chatfleet/sessiond/internal/store/memory"
	"github.com/chatfleet/sessiond/internal/store/postgres"
	"github.com/chatfleet/sessiond/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/sessiond.yaml", "path to config file")
	flag.Parse()

	// Set up structured logging
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	logger.Info("starting sessiond",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
	)

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		logger.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Rebuild the logger at the configured level
	logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
		Level: cfg.Log.SlogLevel(),
	}))
	slog.SetDefault(logger)

	logger.Info("configuration loaded",
		"instance_id", cfg.Instance.ID,
		"bridge_url", cfg.Bridge.URL,
		"store_backend", cfg.Store.Backend,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Open the session store
	st, err := openStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("failed to open store", "error", err)
		os.Exit(1)
	}
	defer st.Close()

	logger.Info("store ready", "backend", cfg.Store.Backend)

	// Lifecycle event bus
	bus := event.NewBus(logger)
	defer bus.Close()

	// Bridge dialer
	dialer := bridge.NewDialer(bridge.Config{
		URL:              cfg.Bridge.URL,
		AuthToken:        cfg.Bridge.AuthToken,
		HandshakeTimeout: cfg.Bridge.HandshakeTimeout,
		WriteTimeout:     cfg.Bridge.WriteTimeout,
		AckTimeout:       cfg.Bridge.AckTimeout,
		PingInterval:     cfg.Bridge.PingInterval,
		PongTimeout:      cfg.Bridge.PongTimeout,
		BufferSize:       cfg.Bridge.BufferSize,
	}, logger)

	// Session supervisor
	hooks := session.BuildHooks(cfg.Hooks.Channels, cfg.Hooks.Groups, cfg.Hooks.WelcomeMessage)
	sup := session.NewSupervisor(session.Config{
		MaxRestartAttempts: cfg.Supervisor.MaxRestartAttempts,
		RestartDelay:       cfg.Supervisor.RestartDelay,
		PairingGrace:       cfg.Supervisor.PairingGrace,
	}, dialer, st, bus, logger, session.WithHooks(hooks))

	if err := sup.Start(ctx); err != nil {
		logger.Error("failed to start supervisor", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Supervisor.ShutdownTimeout)
		defer shutdownCancel()
		sup.Stop(shutdownCtx)
	}()

	// Restore previously active sessions
	reconciler := session.NewReconciler(session.ReconcileConfig{
		StartupDelay: cfg.Reconcile.StartupDelay,
		Spacing:      cfg.Reconcile.Spacing,
	}, st, sup, logger)

	if err := reconciler.Start(ctx); err != nil {
		logger.Error("failed to start reconciler", "error", err)
		os.Exit(1)
	}
	defer func() {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Supervisor.ShutdownTimeout)
		defer shutdownCancel()
		reconciler.Stop(shutdownCtx)
	}()

	// Admin API
	handler := server.NewSessionHandler(sup, st, logger)
	srv := server.New(server.Config{
		ListenAddr:      cfg.API.ListenAddr,
		AuthToken:       cfg.API.AuthToken,
		RequestTimeout:  cfg.API.RequestTimeout,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, handler, logger)

	logger.Info("sessiond running",
		"instance_id", cfg.Instance.ID,
		"listen_addr", cfg.API.ListenAddr,
	)

	// Blocks until the context is canceled and the listener has drained
	if err := srv.Run(ctx); err != nil {
		logger.Error("api server error", "error", err)
	}

	logger.Info("shutting down...")
}

// openStore opens the configured store backend.
func openStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.Store.Backend {
	case "memory":
		return memory.New(), nil
	case "badger":
		return badger.Open(cfg.Store.Badger.Path, logger)
	case "postgres":
		pool, err := database.Connect(ctx, cfg.Store.Postgres)
		if err != nil {
			return nil, err
		}
		st := postgres.New(pool, logger)
		if err := st.EnsureSchema(ctx); err != nil {
			st.Close()
			return nil, err
		}
		return st, nil
	default:
		// Unreachable after config validation
		return memory.New(), nil
	}
}
