package session

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	ErrNotRunning = errors.New("supervisor not running")
	ErrGaveUp     = errors.New("restart budget exhausted")
)

// Start failure reasons, stable for API consumers and logs.
const (
	ReasonInvalidIdentity = "invalid_identity"
	ReasonCredentialLoad  = "credential_load_failed"
	ReasonDialFailed      = "dial_failed"
	ReasonNotRunning      = "supervisor_not_running"
	ReasonGaveUp          = "restart_budget_exhausted"
)

// StartOutcome is the result class of a start request.
type StartOutcome string

const (
	// OutcomeStarted means a new connection is live and registered.
	OutcomeStarted StartOutcome = "started"
	// OutcomeAlreadyConnected means the identity already had a live session.
	OutcomeAlreadyConnected StartOutcome = "already_connected"
	// OutcomeInProgress means another start/stop for this identity holds the
	// lock right now.
	OutcomeInProgress StartOutcome = "in_progress"
	// OutcomeFailed means the start did not produce a session; Reason says why.
	OutcomeFailed StartOutcome = "failed"
)

// StartResult reports what a start request did.
type StartResult struct {
	Outcome  StartOutcome
	Identity string // normalized; empty when normalization failed
	// IsNew is set on OutcomeStarted: the identity had no stored credential
	// and the session begins in pairing mode.
	IsNew bool
	// Reason is set on OutcomeFailed.
	Reason string
}

// SessionStatus is a read-only view of one identity's supervision state.
type SessionStatus struct {
	Identity       string    `json:"identity"`
	Connected      bool      `json:"connected"`
	ConnectedAt    time.Time `json:"connected_at,omitzero"`
	Pairing        bool      `json:"pairing,omitempty"`
	RetryAttempts  int       `json:"retry_attempts,omitempty"`
	PendingRestart bool      `json:"pending_restart,omitempty"`
	GaveUp         bool      `json:"gave_up,omitempty"`
}

// TrafficHandler receives message and call traffic from live sessions.
// Payloads are opaque to the supervisor; handler errors are logged and never
// affect the session.
type TrafficHandler interface {
	HandleMessage(ctx context.Context, identity string, payload []byte) error
	HandleCall(ctx context.Context, identity string, payload []byte) error
}

// Config holds supervisor tuning.
type Config struct {
	// MaxRestartAttempts bounds consecutive automatic restarts per identity.
	// Once exceeded the identity is left down until an explicit start.
	MaxRestartAttempts int
	// RestartDelay is the fixed wait before an automatic restart. No backoff,
	// no jitter.
	RestartDelay time.Duration
	// PairingGrace bounds how long a pairing-mode session may sit unopened
	// before it is abandoned.
	PairingGrace time.Duration
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRestartAttempts: 5,
		RestartDelay:       5 * time.Second,
		PairingGrace:       2 * time.Minute,
	}
}
