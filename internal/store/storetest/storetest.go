// Package storetest runs one behavior suite against every store backend.
package storetest

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/chatfleet/sessiond/internal/store"
)

// Run exercises the Store contract. open must return a fresh, empty store;
// cleanup is handled via t.Cleanup inside open.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("LoadMissing", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if _, err := s.Load(ctx, "15550100"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Load missing: want ErrNotFound, got %v", err)
		}
	})

	t.Run("SaveLoadRoundtrip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.Save(ctx, "15550100", []byte("cred-1"), "user-42"); err != nil {
			t.Fatalf("Save: %v", err)
		}

		rec, err := s.Load(ctx, "15550100")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if rec.Identity != "15550100" {
			t.Errorf("Identity = %q, want %q", rec.Identity, "15550100")
		}
		if string(rec.Credential) != "cred-1" {
			t.Errorf("Credential = %q, want %q", rec.Credential, "cred-1")
		}
		if rec.OwnerRef != "user-42" {
			t.Errorf("OwnerRef = %q, want %q", rec.OwnerRef, "user-42")
		}
		if rec.Active {
			t.Error("new record should not be active")
		}
		if rec.CreatedAt.IsZero() || rec.UpdatedAt.IsZero() {
			t.Error("timestamps not set")
		}
	})

	t.Run("SaveUpsertPreservesOwner", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.Save(ctx, "15550100", []byte("cred-1"), "user-42"); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.Save(ctx, "15550100", []byte("cred-2"), ""); err != nil {
			t.Fatalf("Save update: %v", err)
		}

		rec, err := s.Load(ctx, "15550100")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if string(rec.Credential) != "cred-2" {
			t.Errorf("Credential = %q, want rotated %q", rec.Credential, "cred-2")
		}
		if rec.OwnerRef != "user-42" {
			t.Errorf("OwnerRef = %q, want preserved %q", rec.OwnerRef, "user-42")
		}
	})

	t.Run("DeleteIdempotent", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.Delete(ctx, "19990000"); err != nil {
			t.Fatalf("Delete unknown: %v", err)
		}

		if err := s.Save(ctx, "15550100", []byte("cred"), ""); err != nil {
			t.Fatalf("Save: %v", err)
		}
		if err := s.MarkActive(ctx, "15550100", time.Now()); err != nil {
			t.Fatalf("MarkActive: %v", err)
		}
		if err := s.Delete(ctx, "15550100"); err != nil {
			t.Fatalf("Delete: %v", err)
		}

		if _, err := s.Load(ctx, "15550100"); !errors.Is(err, store.ErrNotFound) {
			t.Fatalf("Load after delete: want ErrNotFound, got %v", err)
		}

		ids, err := s.ListActive(ctx)
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}
		if len(ids) != 0 {
			t.Errorf("deleted identity still active: %v", ids)
		}
	})

	t.Run("MarkActiveCreatesSkeleton", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		at := time.Now().UTC().Truncate(time.Second)
		if err := s.MarkActive(ctx, "15550100", at); err != nil {
			t.Fatalf("MarkActive: %v", err)
		}

		rec, err := s.Load(ctx, "15550100")
		if err != nil {
			t.Fatalf("Load skeleton: %v", err)
		}
		if !rec.Active {
			t.Error("skeleton record not active")
		}
		if rec.LastConnected.IsZero() {
			t.Error("LastConnected not stamped")
		}
		if len(rec.Credential) != 0 {
			t.Errorf("skeleton has credential %q", rec.Credential)
		}
	})

	t.Run("ActiveIndex", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()
		now := time.Now()

		for _, id := range []string{"15550103", "15550101", "15550102"} {
			if err := s.Save(ctx, id, []byte("cred-"+id), ""); err != nil {
				t.Fatalf("Save %s: %v", id, err)
			}
			if err := s.MarkActive(ctx, id, now); err != nil {
				t.Fatalf("MarkActive %s: %v", id, err)
			}
		}

		if err := s.MarkInactive(ctx, "15550102"); err != nil {
			t.Fatalf("MarkInactive: %v", err)
		}
		// Unknown identity is a no-op.
		if err := s.MarkInactive(ctx, "19990000"); err != nil {
			t.Fatalf("MarkInactive unknown: %v", err)
		}

		ids, err := s.ListActive(ctx)
		if err != nil {
			t.Fatalf("ListActive: %v", err)
		}

		want := []string{"15550101", "15550103"}
		if !sort.StringsAreSorted(ids) {
			t.Errorf("ListActive not sorted: %v", ids)
		}
		if len(ids) != len(want) {
			t.Fatalf("ListActive = %v, want %v", ids, want)
		}
		for i := range want {
			if ids[i] != want[i] {
				t.Fatalf("ListActive = %v, want %v", ids, want)
			}
		}

		rec, err := s.Load(ctx, "15550102")
		if err != nil {
			t.Fatalf("Load inactive: %v", err)
		}
		if rec.Active {
			t.Error("MarkInactive did not clear the flag")
		}
	})

	t.Run("LoadReturnsCopy", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		if err := s.Save(ctx, "15550100", []byte("cred"), ""); err != nil {
			t.Fatalf("Save: %v", err)
		}

		first, err := s.Load(ctx, "15550100")
		if err != nil {
			t.Fatalf("Load: %v", err)
		}
		if len(first.Credential) > 0 {
			first.Credential[0] = 'X'
		}
		first.OwnerRef = "tampered"

		second, err := s.Load(ctx, "15550100")
		if err != nil {
			t.Fatalf("Load again: %v", err)
		}
		if string(second.Credential) != "cred" {
			t.Errorf("store shares credential memory with callers: %q", second.Credential)
		}
		if second.OwnerRef == "tampered" {
			t.Error("store shares record memory with callers")
		}
	})

	t.Run("PingHealthy", func(t *testing.T) {
		s := open(t)
		if err := s.Ping(context.Background()); err != nil {
			t.Fatalf("Ping: %v", err)
		}
	})
}
