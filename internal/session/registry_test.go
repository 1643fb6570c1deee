package session

import (
	"testing"
	"time"
)

func TestRegistry_SetIfAbsent(t *testing.T) {
	reg := NewRegistry()

	first := &Entry{Identity: "15550100", Conn: newFakeConn(), CreatedAt: time.Now()}
	if !reg.SetIfAbsent(first) {
		t.Fatal("first SetIfAbsent should succeed")
	}

	second := &Entry{Identity: "15550100", Conn: newFakeConn()}
	if reg.SetIfAbsent(second) {
		t.Error("SetIfAbsent should fail while an entry exists")
	}

	got, ok := reg.Get("15550100")
	if !ok {
		t.Fatal("Get after SetIfAbsent should find the entry")
	}
	if got != first {
		t.Error("registry replaced the original entry")
	}
	if reg.Len() != 1 {
		t.Errorf("Len = %d, want 1", reg.Len())
	}
}

func TestRegistry_Get_NotFound(t *testing.T) {
	reg := NewRegistry()

	if _, ok := reg.Get("15550100"); ok {
		t.Error("Get on empty registry should report not found")
	}
}

func TestRegistry_Remove_CompareAndDelete(t *testing.T) {
	reg := NewRegistry()

	current := &Entry{Identity: "15550100", Conn: newFakeConn()}
	reg.SetIfAbsent(current)

	// A stale conn must not evict the live entry.
	stale := newFakeConn()
	if _, ok := reg.Remove("15550100", stale); ok {
		t.Error("Remove with a stale conn should fail")
	}
	if reg.Len() != 1 {
		t.Fatalf("Len = %d after stale remove, want 1", reg.Len())
	}

	// The matching conn removes it.
	ent, ok := reg.Remove("15550100", current.Conn)
	if !ok {
		t.Fatal("Remove with the live conn should succeed")
	}
	if ent != current {
		t.Error("Remove returned a different entry")
	}
	if reg.Len() != 0 {
		t.Errorf("Len = %d after remove, want 0", reg.Len())
	}

	// Removing again is a clean miss.
	if _, ok := reg.Remove("15550100", current.Conn); ok {
		t.Error("second Remove should report not found")
	}
}

func TestRegistry_Remove_Unconditional(t *testing.T) {
	reg := NewRegistry()
	reg.SetIfAbsent(&Entry{Identity: "15550100", Conn: newFakeConn()})

	if _, ok := reg.Remove("15550100", nil); !ok {
		t.Error("Remove with nil conn should remove unconditionally")
	}
}

func TestRegistry_Identities_Sorted(t *testing.T) {
	reg := NewRegistry()
	for _, id := range []string{"15550102", "15550100", "15550101"} {
		reg.SetIfAbsent(&Entry{Identity: id, Conn: newFakeConn()})
	}

	ids := reg.Identities()
	want := []string{"15550100", "15550101", "15550102"}
	if len(ids) != len(want) {
		t.Fatalf("Identities = %v, want %v", ids, want)
	}
	for i := range want {
		if ids[i] != want[i] {
			t.Fatalf("Identities = %v, want %v", ids, want)
		}
	}

	if len(reg.Snapshot()) != 3 {
		t.Errorf("Snapshot size = %d, want 3", len(reg.Snapshot()))
	}
}
