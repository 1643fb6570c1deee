package protocol

import "time"

// EventKind discriminates session events.
type EventKind string

const (
	// EventOpened means the session is authenticated and live.
	EventOpened EventKind = "opened"
	// EventClosed means the session ended; Cause says why.
	EventClosed EventKind = "closed"
	// EventCredentials carries a new or rotated credential to persist.
	EventCredentials EventKind = "credentials"
	// EventPairingCode carries a code the user must enter on their device.
	EventPairingCode EventKind = "pairing_code"
	// EventMessage is inbound message traffic; payload stays opaque here.
	EventMessage EventKind = "message"
	// EventCall is inbound call signaling; payload stays opaque here.
	EventCall EventKind = "call"
)

// CloseCode enumerates why a session ended. Disconnect handling switches on
// these codes and never on provider error strings.
type CloseCode int

const (
	// CodeUnknown is the zero value: the provider gave no recognizable cause.
	CodeUnknown CloseCode = iota
	// CodeLoggedOut means the user unlinked this session; the credential is dead.
	CodeLoggedOut
	// CodeCredentialsRejected means the provider refused the stored credential.
	CodeCredentialsRejected
	// CodePairingTimeout means a pairing flow expired before the user approved.
	CodePairingTimeout
	// CodeConnectionReplaced means another client resumed the same credential.
	CodeConnectionReplaced
	// CodeTransportLost means the underlying transport dropped.
	CodeTransportLost
	// CodeServerShutdown means the provider is restarting and asked us to leave.
	CodeServerShutdown
)

// String returns the code's wire name.
func (c CloseCode) String() string {
	switch c {
	case CodeLoggedOut:
		return "logged_out"
	case CodeCredentialsRejected:
		return "credentials_rejected"
	case CodePairingTimeout:
		return "pairing_timeout"
	case CodeConnectionReplaced:
		return "connection_replaced"
	case CodeTransportLost:
		return "transport_lost"
	case CodeServerShutdown:
		return "server_shutdown"
	default:
		return "unknown"
	}
}

// CloseCause pairs the enumerated code with the provider's raw detail text.
// Detail is for logs only.
type CloseCause struct {
	Code   CloseCode
	Detail string
}

// Event is one occurrence on a session's stream.
type Event struct {
	Kind        EventKind
	Credential  []byte     // EventCredentials
	PairingCode string     // EventPairingCode
	Cause       CloseCause // EventClosed
	Payload     []byte     // EventMessage, EventCall; opaque
	ReceivedAt  time.Time
}
