package protocol

import (
	"context"
	"errors"
)

// Errors
var (
	ErrConnClosed  = errors.New("session connection closed")
	ErrDialFailed  = errors.New("dial failed")
	ErrSendTimeout = errors.New("send timeout")
)

// Dialer establishes provider sessions on behalf of single identities.
type Dialer interface {
	// Dial opens a session for identity. A nil or empty credential requests a
	// fresh pairing: the provider emits EventPairingCode events and, once the
	// user approves on their device, EventCredentials with the blob to persist.
	// A non-empty credential resumes the existing session.
	Dial(ctx context.Context, identity string, credential []byte) (Conn, error)
}

// Conn is one identity's live session with the provider.
type Conn interface {
	// Events returns the session's event stream. The channel is closed after
	// an EventClosed is delivered or Close is called; callers own draining it.
	Events() <-chan Event

	// Close tears the session down. Safe to call more than once; the provider
	// is not told to invalidate credentials.
	Close() error

	// FollowChannel subscribes the session to a broadcast channel.
	FollowChannel(ctx context.Context, target string) error

	// JoinGroup joins the session to a group conversation via invite target.
	JoinGroup(ctx context.Context, target string) error

	// SendText sends a text message from this session to a recipient.
	SendText(ctx context.Context, recipient, body string) error
}
