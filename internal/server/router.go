package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter builds the admin API router.
//
// Routes:
//   - GET /healthz - store ping + session count (unauthenticated)
//   - POST /api/v1/sessions - start a session
//   - GET /api/v1/sessions - list supervised identities
//   - GET /api/v1/sessions/{identity} - one identity's status
//   - DELETE /api/v1/sessions/{identity}?purge= - stop (optionally purge)
//   - POST /api/v1/sessions/{identity}/restart - tear down and redial
func NewRouter(cfg Config, h *SessionHandler, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	// Middleware stack, order matters.
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(cfg.RequestTimeout))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Use(bearerAuth(cfg.AuthToken))

		r.Post("/", h.Start)
		r.Get("/", h.List)
		r.Get("/{identity}", h.Get)
		r.Delete("/{identity}", h.Stop)
		r.Post("/{identity}/restart", h.Restart)
	})

	return r
}

// requestLogger logs one line per completed request. Health probes log at
// DEBUG to keep the noise down.
func requestLogger(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

			next.ServeHTTP(ww, r)

			args := []any{
				"request_id", middleware.GetReqID(r.Context()),
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration", time.Since(start).String(),
			}

			if r.URL.Path == "/healthz" {
				logger.Debug("api request", args...)
			} else {
				logger.Info("api request", args...)
			}
		})
	}
}
