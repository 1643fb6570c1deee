// Package store persists session records: the credential blob an identity
// needs to resume its provider session, plus the active-identity index the
// reconciler restores from.
//
// Three backends implement Store: memory (tests, dev), badger (embedded
// default), postgres (shared deployments).
package store

import (
	"context"
	"errors"
	"time"
)

// Errors
var (
	// ErrNotFound is returned by Load for identities with no record.
	ErrNotFound = errors.New("session record not found")
)

// Record is one identity's persisted session state.
type Record struct {
	Identity      string    `json:"identity"`
	Credential    []byte    `json:"credential,omitempty"`
	OwnerRef      string    `json:"owner_ref,omitempty"`
	Active        bool      `json:"active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
	LastConnected time.Time `json:"last_connected,omitempty"`
}

// Clone returns a deep copy so callers can hold Records across store writes.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	cp := *r
	if r.Credential != nil {
		cp.Credential = make([]byte, len(r.Credential))
		copy(cp.Credential, r.Credential)
	}
	return &cp
}

// Store is the session-record persistence contract.
//
// All methods are safe for concurrent use. Identities are expected to be
// normalized before they reach the store.
type Store interface {
	// Load returns the record for identity, or ErrNotFound.
	Load(ctx context.Context, identity string) (*Record, error)

	// Save upserts identity's credential. An empty ownerRef preserves any
	// existing owner reference. CreatedAt is set once; UpdatedAt always.
	Save(ctx context.Context, identity string, credential []byte, ownerRef string) error

	// Delete removes the record and its active-index entry. Deleting an
	// unknown identity is not an error.
	Delete(ctx context.Context, identity string) error

	// MarkActive flags identity as active and stamps last-connected. When no
	// record exists yet (pairing completed before the credential arrived) a
	// skeleton record is created.
	MarkActive(ctx context.Context, identity string, at time.Time) error

	// MarkInactive clears the active flag. Unknown identities are a no-op.
	MarkInactive(ctx context.Context, identity string) error

	// ListActive returns all active identities in ascending order.
	ListActive(ctx context.Context) ([]string, error)

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases backend resources.
	Close() error
}
