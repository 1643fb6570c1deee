package postgres

import (
	"strings"
	"testing"
	"time"
)

// fakeRow feeds scanRecord the column layout the sessions queries produce.
type fakeRow struct {
	identity      string
	credential    []byte
	ownerRef      string
	active        bool
	createdAt     time.Time
	updatedAt     time.Time
	lastConnected *time.Time
}

func (r fakeRow) Scan(dest ...any) error {
	*dest[0].(*string) = r.identity
	*dest[1].(*[]byte) = r.credential
	*dest[2].(*string) = r.ownerRef
	*dest[3].(*bool) = r.active
	*dest[4].(*time.Time) = r.createdAt
	*dest[5].(*time.Time) = r.updatedAt
	*dest[6].(**time.Time) = r.lastConnected
	return nil
}

func TestScanRecord(t *testing.T) {
	created := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	connected := created.Add(time.Hour)

	t.Run("full row", func(t *testing.T) {
		rec, err := scanRecord(fakeRow{
			identity:      "15550100",
			credential:    []byte("cred"),
			ownerRef:      "user-42",
			active:        true,
			createdAt:     created,
			updatedAt:     created,
			lastConnected: &connected,
		})
		if err != nil {
			t.Fatalf("scanRecord: %v", err)
		}
		if rec.Identity != "15550100" || !rec.Active {
			t.Errorf("unexpected record: %+v", rec)
		}
		if !rec.LastConnected.Equal(connected) {
			t.Errorf("LastConnected = %v, want %v", rec.LastConnected, connected)
		}
	})

	t.Run("never connected", func(t *testing.T) {
		rec, err := scanRecord(fakeRow{
			identity:  "15550101",
			createdAt: created,
			updatedAt: created,
		})
		if err != nil {
			t.Fatalf("scanRecord: %v", err)
		}
		if !rec.LastConnected.IsZero() {
			t.Errorf("LastConnected = %v, want zero", rec.LastConnected)
		}
	})
}

func TestSchemaIdempotent(t *testing.T) {
	// The schema runs on every startup; everything in it must be IF NOT EXISTS.
	for _, stmt := range []string{"CREATE TABLE", "CREATE INDEX"} {
		count := strings.Count(Schema, stmt)
		guarded := strings.Count(Schema, stmt+" IF NOT EXISTS")
		if count != guarded {
			t.Errorf("%d %s statements, only %d guarded with IF NOT EXISTS", count, stmt, guarded)
		}
	}
}
