package todolock

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/Iron-Ham/todohub/internal/event"
)

func newTestTable(t *testing.T) (*Table, *[]event.LocksChangedEvent) {
	t.Helper()
	bus := event.NewBus()
	var mu sync.Mutex
	var events []event.LocksChangedEvent
	bus.Subscribe(event.TypeLocksChanged, func(e event.Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e.(event.LocksChangedEvent))
	})
	return NewTable(bus), &events
}

func TestLock(t *testing.T) {
	tests := []struct {
		name       string
		setup      func(tb *Table)
		holder     string
		wantHolder string
		wantOK     bool
	}{
		{
			name:       "lock free todo",
			holder:     "alice",
			wantHolder: "alice",
			wantOK:     true,
		},
		{
			name: "second locker does not take over",
			setup: func(tb *Table) {
				tb.Lock("abc", "t1", "alice")
			},
			holder:     "bob",
			wantHolder: "alice",
			wantOK:     false,
		},
		{
			name: "same name relocking is a no-op",
			setup: func(tb *Table) {
				tb.Lock("abc", "t1", "alice")
			},
			holder:     "alice",
			wantHolder: "alice",
			wantOK:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, _ := newTestTable(t)
			if tt.setup != nil {
				tt.setup(tb)
			}

			holder, ok := tb.Lock("abc", "t1", tt.holder)
			if holder != tt.wantHolder || ok != tt.wantOK {
				t.Errorf("Lock() = (%q, %v), want (%q, %v)", holder, ok, tt.wantHolder, tt.wantOK)
			}
			if got, _ := tb.Holder("abc", "t1"); got != tt.wantHolder {
				t.Errorf("Holder() = %q, want %q", got, tt.wantHolder)
			}
		})
	}
}

func TestLock_ScopedPerCollection(t *testing.T) {
	tb, _ := newTestTable(t)

	tb.Lock("abc", "t1", "alice")
	if _, ok := tb.Lock("xyz", "t1", "bob"); !ok {
		t.Fatal("same todo id in another collection should be lockable")
	}

	if h, _ := tb.Holder("abc", "t1"); h != "alice" {
		t.Errorf("abc/t1 holder = %q, want alice", h)
	}
	if h, _ := tb.Holder("xyz", "t1"); h != "bob" {
		t.Errorf("xyz/t1 holder = %q, want bob", h)
	}
}

func TestUnlock(t *testing.T) {
	tests := []struct {
		name      string
		lock      bool
		requester string
		wantOK    bool
		wantHeld  bool
	}{
		{"holder unlocks", true, "alice", true, false},
		{"non-holder cannot unlock", true, "bob", false, true},
		{"unlock of free todo", false, "alice", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tb, _ := newTestTable(t)
			if tt.lock {
				tb.Lock("abc", "t1", "alice")
			}

			if ok := tb.Unlock("abc", "t1", tt.requester); ok != tt.wantOK {
				t.Errorf("Unlock() = %v, want %v", ok, tt.wantOK)
			}
			if _, held := tb.Holder("abc", "t1"); held != tt.wantHeld {
				t.Errorf("held after Unlock() = %v, want %v", held, tt.wantHeld)
			}
		})
	}
}

func TestReleaseAllFor(t *testing.T) {
	tb, _ := newTestTable(t)

	tb.Lock("abc", "t2", "alice")
	tb.Lock("abc", "t1", "alice")
	tb.Lock("abc", "t3", "bob")
	tb.Lock("xyz", "t9", "alice")

	released := tb.ReleaseAllFor("alice", "abc")
	if want := []string{"t1", "t2"}; !reflect.DeepEqual(released, want) {
		t.Errorf("ReleaseAllFor() = %v, want %v", released, want)
	}

	if got := tb.Snapshot("abc"); !reflect.DeepEqual(got, map[string]string{"t3": "bob"}) {
		t.Errorf("abc snapshot = %v", got)
	}
	if h, _ := tb.Holder("xyz", "t9"); h != "alice" {
		t.Error("locks in other collections must survive")
	}

	if again := tb.ReleaseAllFor("alice", "abc"); again != nil {
		t.Errorf("second ReleaseAllFor() = %v, want nil", again)
	}
}

func TestEventsOnlyOnRealChanges(t *testing.T) {
	tb, events := newTestTable(t)

	tb.Lock("abc", "t1", "alice")    // change
	tb.Lock("abc", "t1", "bob")      // no-op
	tb.Unlock("abc", "t1", "bob")    // no-op
	tb.Unlock("abc", "t1", "alice")  // change
	tb.Unlock("abc", "t1", "alice")  // no-op
	tb.Lock("abc", "t2", "alice")    // change
	tb.ReleaseAllFor("bob", "abc")   // no-op
	tb.ReleaseAllFor("alice", "abc") // change

	want := []event.LockReason{event.LockAcquired, event.LockReleased, event.LockAcquired, event.LockDropped}
	if len(*events) != len(want) {
		t.Fatalf("got %d events, want %d", len(*events), len(want))
	}
	for i, e := range *events {
		if e.Reason != want[i] {
			t.Errorf("event %d reason = %q, want %q", i, e.Reason, want[i])
		}
		if e.CollectionKey != "abc" {
			t.Errorf("event %d collection = %q", i, e.CollectionKey)
		}
	}
}

func TestEventHandlerCanReadTable(t *testing.T) {
	bus := event.NewBus()
	tb := NewTable(bus)

	done := make(chan map[string]string, 1)
	bus.Subscribe(event.TypeLocksChanged, func(e event.Event) {
		done <- tb.Snapshot(e.(event.LocksChangedEvent).CollectionKey)
	})

	tb.Lock("abc", "t1", "alice")

	select {
	case snap := <-done:
		if snap["t1"] != "alice" {
			t.Errorf("snapshot from handler = %v", snap)
		}
	case <-time.After(time.Second):
		t.Fatal("handler deadlocked or was not called")
	}
}

func TestSnapshotExcluding(t *testing.T) {
	tb, _ := newTestTable(t)
	tb.Lock("abc", "t1", "alice")
	tb.Lock("abc", "t2", "bob")

	tests := []struct {
		viewer string
		want   map[string]string
	}{
		{"alice", map[string]string{"t2": "bob"}},
		{"bob", map[string]string{"t1": "alice"}},
		{"carol", map[string]string{"t1": "alice", "t2": "bob"}},
		{"", map[string]string{"t1": "alice", "t2": "bob"}},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("viewer=%q", tt.viewer), func(t *testing.T) {
			if got := tb.SnapshotExcluding("abc", tt.viewer); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("SnapshotExcluding() = %v, want %v", got, tt.want)
			}
		})
	}

	if got := tb.SnapshotExcluding("empty", "alice"); len(got) != 0 {
		t.Errorf("unknown collection snapshot = %v, want empty", got)
	}
}

func TestHeldBy(t *testing.T) {
	tb := NewTable(event.NewBus())

	tb.Lock("abc", "t3", "alice")
	tb.Lock("abc", "t1", "alice")
	tb.Lock("abc", "t2", "bob")
	tb.Lock("xyz", "t9", "alice")

	if got := tb.HeldBy("alice", "abc"); !reflect.DeepEqual(got, []string{"t1", "t3"}) {
		t.Errorf("HeldBy() = %v", got)
	}
	if got := tb.HeldBy("carol", "abc"); got != nil {
		t.Errorf("HeldBy(carol) = %v, want nil", got)
	}
}

func TestConcurrentLockFirstWins(t *testing.T) {
	tb, events := newTestTable(t)

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	for i := range 50 {
		wg.Go(func() {
			if _, ok := tb.Lock("abc", "t1", fmt.Sprintf("user-%d", i)); ok {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		})
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if len(*events) != 1 {
		t.Errorf("events = %d, want 1", len(*events))
	}
}

func TestNilBus(t *testing.T) {
	tb := NewTable(nil)
	if _, ok := tb.Lock("abc", "t1", "alice"); !ok {
		t.Fatal("Lock() without bus should still work")
	}
	if !tb.Unlock("abc", "t1", "alice") {
		t.Fatal("Unlock() without bus should still work")
	}
}
