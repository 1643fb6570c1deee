// Package postgres provides the shared-deployment session store backed by pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chatfleet/sessiond/internal/store"
)

// Schema is applied at startup. Idempotent.
const Schema = `
CREATE TABLE IF NOT EXISTS sessions (
    identity       TEXT PRIMARY KEY,
    credential     BYTEA,
    owner_ref      TEXT NOT NULL DEFAULT '',
    active         BOOLEAN NOT NULL DEFAULT FALSE,
    created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    updated_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
    last_connected TIMESTAMPTZ
);

CREATE INDEX IF NOT EXISTS sessions_active_idx ON sessions (identity) WHERE active;
`

// Store persists session records in PostgreSQL.
type Store struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// New wraps an existing pool. The pool's lifetime belongs to the caller until
// Close is called.
func New(pool *pgxpool.Pool, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{pool: pool, logger: logger}
}

// EnsureSchema creates the sessions table and index if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("ensure sessions schema: %w", err)
	}
	return nil
}

// Load returns the record for identity, or store.ErrNotFound.
func (s *Store) Load(ctx context.Context, identity string) (*store.Record, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT identity, credential, owner_ref, active, created_at, updated_at, last_connected
		FROM sessions
		WHERE identity = $1
	`, identity)

	rec, err := scanRecord(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", identity, err)
	}

	return rec, nil
}

// Save upserts identity's credential. An empty ownerRef preserves the stored one.
func (s *Store) Save(ctx context.Context, identity string, credential []byte, ownerRef string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (identity, credential, owner_ref, updated_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (identity) DO UPDATE SET
			credential = EXCLUDED.credential,
			owner_ref  = COALESCE(NULLIF(EXCLUDED.owner_ref, ''), sessions.owner_ref),
			updated_at = now()
	`, identity, credential, ownerRef)
	if err != nil {
		return fmt.Errorf("save %s: %w", identity, err)
	}

	return nil
}

// Delete removes the record. Unknown identities are a no-op.
func (s *Store) Delete(ctx context.Context, identity string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE identity = $1`, identity); err != nil {
		return fmt.Errorf("delete %s: %w", identity, err)
	}
	return nil
}

// MarkActive flags identity active, creating a skeleton row when missing.
func (s *Store) MarkActive(ctx context.Context, identity string, at time.Time) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (identity, active, last_connected, updated_at)
		VALUES ($1, TRUE, $2, now())
		ON CONFLICT (identity) DO UPDATE SET
			active         = TRUE,
			last_connected = EXCLUDED.last_connected,
			updated_at     = now()
	`, identity, at.UTC())
	if err != nil {
		return fmt.Errorf("mark active %s: %w", identity, err)
	}

	return nil
}

// MarkInactive clears the active flag. Unknown identities are a no-op.
func (s *Store) MarkInactive(ctx context.Context, identity string) error {
	_, err := s.pool.Exec(ctx, `
		UPDATE sessions SET active = FALSE, updated_at = now() WHERE identity = $1
	`, identity)
	if err != nil {
		return fmt.Errorf("mark inactive %s: %w", identity, err)
	}

	return nil
}

// ListActive returns active identities in ascending order.
func (s *Store) ListActive(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT identity FROM sessions WHERE active ORDER BY identity
	`)
	if err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan active identity: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list active: %w", err)
	}

	return ids, nil
}

// Ping verifies the pool is healthy.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanRecord(row pgx.Row) (*store.Record, error) {
	var (
		rec           store.Record
		lastConnected *time.Time
	)

	err := row.Scan(
		&rec.Identity,
		&rec.Credential,
		&rec.OwnerRef,
		&rec.Active,
		&rec.CreatedAt,
		&rec.UpdatedAt,
		&lastConnected,
	)
	if err != nil {
		return nil, err
	}

	if lastConnected != nil {
		rec.LastConnected = *lastConnected
	}

	return &rec, nil
}
