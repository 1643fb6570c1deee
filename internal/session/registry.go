package session

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatfleet/sessiond/internal/protocol"
)

// Entry is one live session in the registry.
type Entry struct {
	Identity  string
	Conn      protocol.Conn
	CreatedAt time.Time
	// IsNew marks a session started without a stored credential (pairing mode).
	IsNew bool

	ownerRef string
	cancel   context.CancelFunc // stops the entry's event pump
}

// Registry tracks live connections, at most one per identity.
type Registry struct {
	mu      sync.RWMutex
	entries map[string]*Entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		entries: make(map[string]*Entry),
	}
}

// Get returns identity's entry if one is registered.
func (r *Registry) Get(identity string) (*Entry, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ent, ok := r.entries[identity]
	return ent, ok
}

// SetIfAbsent registers ent unless the identity already has an entry.
// Returns false without modifying the registry when one exists.
func (r *Registry) SetIfAbsent(ent *Entry) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[ent.Identity]; exists {
		return false
	}
	r.entries[ent.Identity] = ent
	return true
}

// Remove deletes identity's entry and returns it. When conn is non-nil the
// entry is removed only if it still holds that conn, so a stale event pump
// can never evict a successor session.
func (r *Registry) Remove(identity string, conn protocol.Conn) (*Entry, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	ent, ok := r.entries[identity]
	if !ok {
		return nil, false
	}
	if conn != nil && ent.Conn != conn {
		return nil, false
	}

	delete(r.entries, identity)
	return ent, true
}

// Len returns the number of live sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.entries)
}

// Identities returns registered identities in ascending order.
func (r *Registry) Identities() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	ids := make([]string, 0, len(r.entries))
	for id := range r.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	return ids
}

// Snapshot returns a copy of the current entries.
func (r *Registry) Snapshot() []*Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	entries := make([]*Entry, 0, len(r.entries))
	for _, ent := range r.entries {
		entries = append(entries, ent)
	}

	return entries
}
