package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/chatfleet/sessiond/internal/identity"
	"github.com/chatfleet/sessiond/internal/session"
	"github.com/chatfleet/sessiond/internal/store"
)

// SessionManager is the supervisor surface the API consumes.
type SessionManager interface {
	StartSession(ctx context.Context, identity, ownerRef string) (session.StartResult, error)
	StopSession(ctx context.Context, identity string, purge bool) error
	RestartSession(ctx context.Context, identity string) (session.StartResult, error)
	Status(identity string) (session.SessionStatus, bool)
	List() []session.SessionStatus
	Connected() int
}

// SessionHandler handles the /api/v1/sessions endpoints.
type SessionHandler struct {
	manager SessionManager
	store   store.Store
	logger  *slog.Logger
}

// NewSessionHandler creates a session handler.
func NewSessionHandler(manager SessionManager, st store.Store, logger *slog.Logger) *SessionHandler {
	if logger == nil {
		logger = slog.Default()
	}

	return &SessionHandler{
		manager: manager,
		store:   st,
		logger:  logger,
	}
}

// startSessionRequest is the request body for POST /api/v1/sessions.
type startSessionRequest struct {
	Identity string `json:"identity"`
	OwnerRef string `json:"owner_ref,omitempty"`
}

// sessionActionResponse is the reply body for start and restart requests.
type sessionActionResponse struct {
	Outcome  string `json:"outcome"`
	Identity string `json:"identity,omitempty"`
	IsNew    bool   `json:"is_new,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

func actionResponse(res session.StartResult) sessionActionResponse {
	return sessionActionResponse{
		Outcome:  string(res.Outcome),
		Identity: res.Identity,
		IsNew:    res.IsNew,
		Reason:   res.Reason,
	}
}

// failureStatus maps a failed start to its HTTP status.
func failureStatus(err error) int {
	switch {
	case errors.Is(err, identity.ErrInvalid):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNotRunning):
		return http.StatusServiceUnavailable
	default:
		// Dial failures and the like: the provider side is at fault.
		return http.StatusBadGateway
	}
}

// Start handles POST /api/v1/sessions.
func (h *SessionHandler) Start(w http.ResponseWriter, r *http.Request) {
	var req startSessionRequest
	if !decodeJSONBody(w, r, &req) {
		return
	}
	if req.Identity == "" {
		writeError(w, http.StatusBadRequest, "identity is required")
		return
	}

	res, err := h.manager.StartSession(r.Context(), req.Identity, req.OwnerRef)
	switch res.Outcome {
	case session.OutcomeStarted:
		writeJSON(w, http.StatusCreated, actionResponse(res))
	case session.OutcomeAlreadyConnected:
		writeJSON(w, http.StatusOK, actionResponse(res))
	case session.OutcomeInProgress:
		writeJSON(w, http.StatusAccepted, actionResponse(res))
	default:
		writeJSON(w, failureStatus(err), actionResponse(res))
	}
}

// Stop handles DELETE /api/v1/sessions/{identity}. The purge query parameter
// deletes the stored credential outright.
func (h *SessionHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")
	purge, _ := strconv.ParseBool(r.URL.Query().Get("purge"))

	if err := h.manager.StopSession(r.Context(), id, purge); err != nil {
		if errors.Is(err, identity.ErrInvalid) {
			writeError(w, http.StatusBadRequest, "invalid identity")
			return
		}
		h.logger.Error("stop session failed", "identity", id, "purge", purge, "error", err)
		writeError(w, http.StatusInternalServerError, "stop failed")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Restart handles POST /api/v1/sessions/{identity}/restart.
func (h *SessionHandler) Restart(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")

	res, err := h.manager.RestartSession(r.Context(), id)
	switch res.Outcome {
	case session.OutcomeStarted:
		writeJSON(w, http.StatusOK, actionResponse(res))
	case session.OutcomeAlreadyConnected, session.OutcomeInProgress:
		writeJSON(w, http.StatusAccepted, actionResponse(res))
	default:
		writeJSON(w, failureStatus(err), actionResponse(res))
	}
}

// List handles GET /api/v1/sessions.
func (h *SessionHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.manager.List())
}

// Get handles GET /api/v1/sessions/{identity}.
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "identity")

	st, ok := h.manager.Status(id)
	if !ok {
		writeError(w, http.StatusNotFound, "unknown identity")
		return
	}

	writeJSON(w, http.StatusOK, st)
}

// healthResponse is the body of GET /healthz.
type healthResponse struct {
	Status    string    `json:"status"`
	Sessions  int       `json:"sessions"`
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error,omitempty"`
}

// Health handles GET /healthz: a store ping plus the live session count.
func (h *SessionHandler) Health(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:    "healthy",
		Sessions:  h.manager.Connected(),
		Timestamp: time.Now().UTC(),
	}

	if err := h.store.Ping(r.Context()); err != nil {
		resp.Status = "unhealthy"
		resp.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}
