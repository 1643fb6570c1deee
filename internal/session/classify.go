package session

import "github.com/chatfleet/sessiond/internal/protocol"

// Action is the supervisor's response to a disconnect. This three-way split
// is the single decision point for whether a session self-heals, terminates
// permanently, or is quietly dropped.
type Action int

const (
	// ActionRetry schedules a restart after the configured delay, counted
	// against the identity's retry budget.
	ActionRetry Action = iota
	// ActionPurge deletes the credential and active-index entry; no retry.
	ActionPurge
	// ActionIgnore tears the session down with no retry and no budget charge.
	ActionIgnore
)

// String returns the action name for logs.
func (a Action) String() string {
	switch a {
	case ActionPurge:
		return "purge"
	case ActionIgnore:
		return "ignore"
	default:
		return "retry"
	}
}

// Classify maps a disconnect cause to exactly one action. It switches on the
// enumerated close code only; provider detail text never influences the
// outcome.
func Classify(cause protocol.CloseCause) Action {
	switch cause.Code {
	case protocol.CodeLoggedOut, protocol.CodeCredentialsRejected:
		// The credential is dead; reconnecting would loop on auth failures.
		return ActionPurge
	case protocol.CodePairingTimeout:
		// The user never approved the pairing; nothing to resume.
		return ActionIgnore
	default:
		// CodeTransportLost, CodeServerShutdown, CodeConnectionReplaced,
		// CodeUnknown: assume the provider is reachable again soon.
		return ActionRetry
	}
}
