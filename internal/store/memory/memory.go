// Package memory provides an in-memory session store for development and tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/chatfleet/sessiond/internal/store"
)

// Store keeps records in a mutex-guarded map. Zero value is not usable; call New.
type Store struct {
	mu      sync.RWMutex
	records map[string]*store.Record
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		records: make(map[string]*store.Record),
	}
}

// Load returns the record for identity, or store.ErrNotFound.
func (s *Store) Load(ctx context.Context, identity string) (*store.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[identity]
	if !ok {
		return nil, store.ErrNotFound
	}
	return rec.Clone(), nil
}

// Save upserts identity's credential.
func (s *Store) Save(ctx context.Context, identity string, credential []byte, ownerRef string) error {
	now := time.Now().UTC()

	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		rec = &store.Record{
			Identity:  identity,
			CreatedAt: now,
		}
		s.records[identity] = rec
	}

	rec.Credential = append([]byte(nil), credential...)
	if ownerRef != "" {
		rec.OwnerRef = ownerRef
	}
	rec.UpdatedAt = now

	return nil
}

// Delete removes the record. Unknown identities are a no-op.
func (s *Store) Delete(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.records, identity)
	return nil
}

// MarkActive flags identity active, creating a skeleton record when missing.
func (s *Store) MarkActive(ctx context.Context, identity string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		rec = &store.Record{
			Identity:  identity,
			CreatedAt: at.UTC(),
		}
		s.records[identity] = rec
	}

	rec.Active = true
	rec.LastConnected = at.UTC()
	rec.UpdatedAt = time.Now().UTC()

	return nil
}

// MarkInactive clears the active flag. Unknown identities are a no-op.
func (s *Store) MarkInactive(ctx context.Context, identity string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.records[identity]
	if !ok {
		return nil
	}

	rec.Active = false
	rec.UpdatedAt = time.Now().UTC()

	return nil
}

// ListActive returns active identities in ascending order.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var ids []string
	for id, rec := range s.records {
		if rec.Active {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)

	return ids, nil
}

// Ping always succeeds.
func (s *Store) Ping(ctx context.Context) error {
	return nil
}

// Close is a no-op.
func (s *Store) Close() error {
	return nil
}
