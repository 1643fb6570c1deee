package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
)

// Config holds admin API settings.
type Config struct {
	ListenAddr      string        // Address to bind (e.g. :8080)
	AuthToken       string        // Static bearer token; empty disables auth
	RequestTimeout  time.Duration // Per-request deadline
	ShutdownTimeout time.Duration // Grace period for in-flight requests
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		ListenAddr:      ":8080",
		RequestTimeout:  30 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Server runs the admin API.
type Server struct {
	cfg        Config
	httpServer *http.Server
	logger     *slog.Logger
}

// New creates the server with its router wired.
func New(cfg Config, h *SessionHandler, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	return &Server{
		cfg: cfg,
		httpServer: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           NewRouter(cfg, h, logger),
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}
}

// Run serves until ctx is canceled, then drains in-flight requests within the
// shutdown grace period.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("admin api listening", "addr", s.cfg.ListenAddr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("listen on %s: %w", s.cfg.ListenAddr, err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()

		s.logger.Info("admin api shutting down")
		return s.httpServer.Shutdown(shutdownCtx)
	})

	return g.Wait()
}
