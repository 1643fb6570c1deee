// Package badger provides the embedded default session store.
//
// Key namespace:
//
//	rec:<identity>     Record (JSON)
//	active:<identity>  active-index membership (empty value)
//
// The separate active index keeps ListActive a pure prefix scan with no
// record decoding.
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	badgerdb "github.com/dgraph-io/badger/v4"

	"github.com/chatfleet/sessiond/internal/store"
)

const (
	prefixRecord = "rec:"
	prefixActive = "active:"
)

func keyRecord(identity string) []byte {
	return []byte(prefixRecord + identity)
}

func keyActive(identity string) []byte {
	return []byte(prefixActive + identity)
}

// Store persists session records in a local BadgerDB.
type Store struct {
	db     *badgerdb.DB
	logger *slog.Logger
}

// Open opens (or creates) the database at path.
func Open(path string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}

	opts := badgerdb.DefaultOptions(path).WithLogger(nil)

	db, err := badgerdb.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %s: %w", path, err)
	}

	logger.Info("badger session store opened", "path", path)

	return &Store{db: db, logger: logger}, nil
}

// Load returns the record for identity, or store.ErrNotFound.
func (s *Store) Load(ctx context.Context, identity string) (*store.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var rec store.Record
	err := s.db.View(func(txn *badgerdb.Txn) error {
		item, err := txn.Get(keyRecord(identity))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if errors.Is(err, badgerdb.ErrKeyNotFound) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", identity, err)
	}

	return &rec, nil
}

// Save upserts identity's credential.
func (s *Store) Save(ctx context.Context, identity string, credential []byte, ownerRef string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	now := time.Now().UTC()

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		rec, err := getRecord(txn, identity)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			rec = &store.Record{Identity: identity, CreatedAt: now}
		} else if err != nil {
			return err
		}

		rec.Credential = credential
		if ownerRef != "" {
			rec.OwnerRef = ownerRef
		}
		rec.UpdatedAt = now

		return putRecord(txn, rec)
	})
	if err != nil {
		return fmt.Errorf("save %s: %w", identity, err)
	}

	return nil
}

// Delete removes the record and its active-index entry.
func (s *Store) Delete(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		if err := txn.Delete(keyRecord(identity)); err != nil {
			return err
		}
		return txn.Delete(keyActive(identity))
	})
	if err != nil {
		return fmt.Errorf("delete %s: %w", identity, err)
	}

	return nil
}

// MarkActive flags identity active, creating a skeleton record when missing.
func (s *Store) MarkActive(ctx context.Context, identity string, at time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		rec, err := getRecord(txn, identity)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			rec = &store.Record{Identity: identity, CreatedAt: at.UTC()}
		} else if err != nil {
			return err
		}

		rec.Active = true
		rec.LastConnected = at.UTC()
		rec.UpdatedAt = time.Now().UTC()

		if err := putRecord(txn, rec); err != nil {
			return err
		}
		return txn.Set(keyActive(identity), nil)
	})
	if err != nil {
		return fmt.Errorf("mark active %s: %w", identity, err)
	}

	return nil
}

// MarkInactive clears the active flag. Unknown identities are a no-op.
func (s *Store) MarkInactive(ctx context.Context, identity string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badgerdb.Txn) error {
		rec, err := getRecord(txn, identity)
		if errors.Is(err, badgerdb.ErrKeyNotFound) {
			return txn.Delete(keyActive(identity))
		}
		if err != nil {
			return err
		}

		rec.Active = false
		rec.UpdatedAt = time.Now().UTC()

		if err := putRecord(txn, rec); err != nil {
			return err
		}
		return txn.Delete(keyActive(identity))
	})
	if err != nil {
		return fmt.Errorf("mark inactive %s: %w", identity, err)
	}

	return nil
}

// ListActive scans the active-index prefix; identities come back in key order.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var ids []string
	err := s.db.View(func(txn *badgerdb.Txn) error {
		opts := badgerdb.DefaultIteratorOptions
		opts.PrefetchValues = false
		opts.Prefix = []byte(prefixActive)

		it := txn.NewIterator(opts)
		defer it.Close()

		prefix := []byte(prefixActive)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().Key()
			ids = append(ids, string(key[len(prefix):]))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}

	return ids, nil
}

// Ping verifies the database can serve a read transaction.
func (s *Store) Ping(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.View(func(txn *badgerdb.Txn) error {
		return nil
	})
	if err != nil {
		return fmt.Errorf("badger ping: %w", err)
	}

	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func getRecord(txn *badgerdb.Txn, identity string) (*store.Record, error) {
	item, err := txn.Get(keyRecord(identity))
	if err != nil {
		return nil, err
	}

	var rec store.Record
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &rec)
	}); err != nil {
		return nil, err
	}

	return &rec, nil
}

func putRecord(txn *badgerdb.Txn, rec *store.Record) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return txn.Set(keyRecord(rec.Identity), data)
}
