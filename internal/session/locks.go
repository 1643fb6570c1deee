package session

import "sync"

// LockTable is a keyed mutex with non-blocking acquisition. It serializes
// lifecycle operations per identity; callers pair a successful TryLock with a
// deferred Unlock so no exit path can leak the lock.
type LockTable struct {
	mu   sync.Mutex
	held map[string]struct{}
}

// NewLockTable creates an empty lock table.
func NewLockTable() *LockTable {
	return &LockTable{
		held: make(map[string]struct{}),
	}
}

// TryLock acquires identity's lock if free. It never blocks.
func (t *LockTable) TryLock(identity string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if _, taken := t.held[identity]; taken {
		return false
	}
	t.held[identity] = struct{}{}
	return true
}

// Unlock releases identity's lock. Releasing a free lock is a no-op.
func (t *LockTable) Unlock(identity string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	delete(t.held, identity)
}
