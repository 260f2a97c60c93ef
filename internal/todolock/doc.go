// Package todolock provides the per-collection advisory lock table for todos.
//
// When several people edit the same collection, a client locks a todo while
// its editor is open so others are warned. Locks are advisory and never
// queued: the first lock attempt wins, later attempts silently fail to
// acquire, and only the holder can unlock. When a connection closes, the hub
// calls [Table.ReleaseAllFor] for that user's display name.
//
// # Usage
//
//	table := todolock.NewTable(bus)
//
//	if holder, ok := table.Lock("abc", "t1", "alice"); !ok {
//	    // already held by holder
//	}
//	table.Unlock("abc", "t1", "alice")
//
//	// per-recipient view: locks held by others only
//	view := table.SnapshotExcluding("abc", "bob")
//
// # Thread Safety
//
// [Table] is safe for concurrent use. Each mutation is serialized by a single
// mutex; change events are published after the mutex is released so bus
// handlers may read the table.
package todolock
