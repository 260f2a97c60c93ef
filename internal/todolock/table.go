package todolock

import (
	"sort"
	"sync"

	"github.com/Iron-Ham/todohub/internal/event"
)

// Table holds the advisory todo locks of every collection.
//
// Locks are keyed by display name, not by connection: two connections of the
// same user are indistinguishable here. Every operation that changes the
// table publishes a [event.LocksChangedEvent] after the table's mutex has
// been released; attempts that change nothing publish nothing.
type Table struct {
	mu          sync.RWMutex
	collections map[string]map[string]Lock // collectionKey -> todoID -> lock
	bus         *event.Bus
}

// NewTable creates an empty Table that publishes changes to bus.
func NewTable(bus *event.Bus) *Table {
	return &Table{
		collections: make(map[string]map[string]Lock),
		bus:         bus,
	}
}

// Lock gives todoID to holder if nobody holds it yet. If the todo is already
// locked, by anyone including holder, nothing changes. Lock returns the
// resulting holder and whether this call acquired the lock.
func (t *Table) Lock(collectionKey, todoID, holder string) (string, bool) {
	t.mu.Lock()
	locks := t.collections[collectionKey]
	if existing, ok := locks[todoID]; ok {
		t.mu.Unlock()
		return existing.Holder, false
	}
	if locks == nil {
		locks = make(map[string]Lock)
		t.collections[collectionKey] = locks
	}
	locks[todoID] = Lock{
		CollectionKey: collectionKey,
		TodoID:        todoID,
		Holder:        holder,
	}
	t.mu.Unlock()

	t.publish(collectionKey, holder, event.LockAcquired, []string{todoID})
	return holder, true
}

// Unlock removes the lock on todoID if requester holds it. It reports whether
// a lock was removed; a lock held by someone else is left untouched.
func (t *Table) Unlock(collectionKey, todoID, requester string) bool {
	t.mu.Lock()
	existing, ok := t.collections[collectionKey][todoID]
	if !ok || existing.Holder != requester {
		t.mu.Unlock()
		return false
	}
	t.removeLocked(collectionKey, todoID)
	t.mu.Unlock()

	t.publish(collectionKey, requester, event.LockReleased, []string{todoID})
	return true
}

// ReleaseAllFor removes every lock in collectionKey held by holder and
// returns the released todo ids, sorted.
func (t *Table) ReleaseAllFor(holder, collectionKey string) []string {
	t.mu.Lock()
	var released []string
	for todoID, l := range t.collections[collectionKey] {
		if l.Holder == holder {
			released = append(released, todoID)
		}
	}
	for _, todoID := range released {
		t.removeLocked(collectionKey, todoID)
	}
	t.mu.Unlock()

	if len(released) == 0 {
		return nil
	}
	sort.Strings(released)
	t.publish(collectionKey, holder, event.LockDropped, released)
	return released
}

// removeLocked deletes one entry and drops the collection map once empty.
// The caller must hold the write lock.
func (t *Table) removeLocked(collectionKey, todoID string) {
	locks := t.collections[collectionKey]
	delete(locks, todoID)
	if len(locks) == 0 {
		delete(t.collections, collectionKey)
	}
}

// Holder returns who holds todoID in collectionKey, if anyone.
func (t *Table) Holder(collectionKey, todoID string) (string, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()

	l, ok := t.collections[collectionKey][todoID]
	return l.Holder, ok
}

// Snapshot returns todoID -> holder for collectionKey.
func (t *Table) Snapshot(collectionKey string) map[string]string {
	return t.SnapshotExcluding(collectionKey, "")
}

// SnapshotExcluding returns todoID -> holder for collectionKey, leaving out
// locks held by viewer. This is the view a connection of viewer is sent:
// its own locks are known locally, only other people's locks are pushed.
// An empty viewer excludes nothing.
func (t *Table) SnapshotExcluding(collectionKey, viewer string) map[string]string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]string, len(t.collections[collectionKey]))
	for todoID, l := range t.collections[collectionKey] {
		if viewer != "" && l.Holder == viewer {
			continue
		}
		out[todoID] = l.Holder
	}
	return out
}

// HeldBy returns the todo ids holder has locked in collectionKey, sorted.
func (t *Table) HeldBy(holder, collectionKey string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	var ids []string
	for todoID, l := range t.collections[collectionKey] {
		if l.Holder == holder {
			ids = append(ids, todoID)
		}
	}
	sort.Strings(ids)
	return ids
}

func (t *Table) publish(collectionKey, holder string, reason event.LockReason, todoIDs []string) {
	if t.bus == nil {
		return
	}
	t.bus.Publish(event.NewLocksChangedEvent(collectionKey, holder, reason, todoIDs...))
}
