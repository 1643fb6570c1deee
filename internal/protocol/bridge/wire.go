package bridge

import (
	"encoding/json"
	"time"

	"github.com/chatfleet/sessiond/internal/protocol"
)

// Client-to-bridge operations.
const (
	opConnect = "connect"
	opFollow  = "follow"
	opJoin    = "join"
	opSend    = "send"
)

// Bridge-to-client event names.
const (
	eventOpened      = "opened"
	eventClosed      = "closed"
	eventCredentials = "credentials"
	eventPairingCode = "pairing_code"
	eventMessage     = "message"
	eventCall        = "call"
	eventAck         = "ack"
	eventError       = "error"
)

// command is a client-to-bridge frame. The connect frame carries no id; every
// other operation is acknowledged by id.
type command struct {
	Op         string `json:"op"`
	ID         int64  `json:"id,omitempty"`
	Identity   string `json:"identity,omitempty"`
	Credential string `json:"credential,omitempty"` // base64
	Target     string `json:"target,omitempty"`
	Recipient  string `json:"recipient,omitempty"`
	Body       string `json:"body,omitempty"`
}

// frame is a bridge-to-client frame.
type frame struct {
	Event      string          `json:"event"`
	ID         int64           `json:"id,omitempty"`
	Code       string          `json:"code,omitempty"`       // pairing_code
	Credential string          `json:"credential,omitempty"` // base64
	Cause      string          `json:"cause,omitempty"`      // closed
	Detail     string          `json:"detail,omitempty"`     // closed
	Message    string          `json:"message,omitempty"`    // error
	Payload    json.RawMessage `json:"payload,omitempty"`    // message, call
}

// mapCause translates a wire cause name into the enumerated close code.
// Unrecognized names map to CodeUnknown rather than failing the frame.
func mapCause(cause, detail string) protocol.CloseCause {
	code := protocol.CodeUnknown
	switch cause {
	case "logged_out":
		code = protocol.CodeLoggedOut
	case "credentials_rejected":
		code = protocol.CodeCredentialsRejected
	case "pairing_timeout":
		code = protocol.CodePairingTimeout
	case "connection_replaced":
		code = protocol.CodeConnectionReplaced
	case "transport_lost":
		code = protocol.CodeTransportLost
	case "server_shutdown":
		code = protocol.CodeServerShutdown
	}

	return protocol.CloseCause{Code: code, Detail: detail}
}

// Config configures the bridge dialer and the sessions it produces.
type Config struct {
	URL              string        // WebSocket URL of the bridge (e.g. ws://localhost:8765/session)
	AuthToken        string        // Bearer token for the bridge (empty = no auth)
	HandshakeTimeout time.Duration // WebSocket handshake deadline
	WriteTimeout     time.Duration // Write deadline for frames and control messages
	AckTimeout       time.Duration // Max wait for a command acknowledgment
	PingInterval     time.Duration // How often to ping the bridge
	PongTimeout      time.Duration // Max silence before the connection counts as stale
	BufferSize       int           // Event channel buffer per session
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     5 * time.Second,
		AckTimeout:       10 * time.Second,
		PingInterval:     30 * time.Second,
		PongTimeout:      90 * time.Second,
		BufferSize:       256,
	}
}
