package collab

import (
	"sync"
	"sync/atomic"

	"github.com/Iron-Ham/todohub/internal/event"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/todo"
	"github.com/Iron-Ham/todohub/internal/todolock"
)

// Dispatcher fans messages out to the members of a collection. Delivery is
// best effort: a peer that cannot take a message right now misses it.
//
// Presence and lock views are snapshotted and sent while holding the
// collection's broadcast mutex, so each peer receives them in the order the
// underlying state changed and the last view a peer gets is the current one.
type Dispatcher struct {
	registry *Registry
	presence *Presence
	locks    *todolock.Table
	logger   *logging.Logger

	mu     sync.Mutex
	serial map[string]*sync.Mutex // collectionKey -> broadcast mutex

	delivered atomic.Int64
	dropped   atomic.Int64
}

// NewDispatcher creates a Dispatcher over registry and locks.
func NewDispatcher(registry *Registry, presence *Presence, locks *todolock.Table, logger *logging.Logger) *Dispatcher {
	if logger == nil {
		logger = logging.NopLogger()
	}
	return &Dispatcher{
		registry: registry,
		presence: presence,
		locks:    locks,
		logger:   logger,
		serial:   make(map[string]*sync.Mutex),
	}
}

// Subscribe wires the dispatcher to the state-change events on bus and
// returns the subscription ids.
func (d *Dispatcher) Subscribe(bus *event.Bus) []string {
	return []string{
		bus.Subscribe(event.TypeLocksChanged, func(e event.Event) {
			if ev, ok := e.(event.LocksChangedEvent); ok {
				d.BroadcastLocks(ev.CollectionKey)
			}
		}),
		bus.Subscribe(event.TypePresenceChanged, func(e event.Event) {
			if ev, ok := e.(event.PresenceChangedEvent); ok {
				d.BroadcastPresence(ev.CollectionKey)
			}
		}),
		bus.Subscribe(event.TypeTodoAnnounced, func(e event.Event) {
			ev, ok := e.(event.TodoAnnouncedEvent)
			if !ok {
				return
			}
			view, ok := ev.Todo.(store.TodoView)
			if !ok {
				d.logger.Warn("announced todo has unexpected type", "todo_id", ev.TodoID)
				return
			}
			d.Broadcast(ev.CollectionKey, TodoUpdated{Todo: view, Action: todo.Action(ev.Action)})
		}),
	}
}

// Broadcast sends msg to every member of collectionKey and returns how many
// accepted it.
func (d *Dispatcher) Broadcast(collectionKey string, msg Outbound) int {
	n := 0
	for _, p := range d.registry.MembersOf(collectionKey) {
		if d.deliver(p, msg) {
			n++
		}
	}
	return n
}

// BroadcastPresence sends the current active user list to every member of
// collectionKey.
func (d *Dispatcher) BroadcastPresence(collectionKey string) int {
	unlock := d.serialize(collectionKey)
	defer unlock()
	return d.Broadcast(collectionKey, ActiveUsersUpdated{Users: d.presence.ActiveUsers(collectionKey)})
}

// BroadcastLocks sends each member of collectionKey the locks held by
// everyone but itself.
func (d *Dispatcher) BroadcastLocks(collectionKey string) int {
	unlock := d.serialize(collectionKey)
	defer unlock()

	n := 0
	for _, p := range d.registry.MembersOf(collectionKey) {
		if d.sendLocks(p, collectionKey) {
			n++
		}
	}
	return n
}

// SendLocks sends p its filtered view of the locks in collectionKey.
func (d *Dispatcher) SendLocks(p Peer, collectionKey string) bool {
	unlock := d.serialize(collectionKey)
	defer unlock()
	return d.sendLocks(p, collectionKey)
}

func (d *Dispatcher) sendLocks(p Peer, collectionKey string) bool {
	return d.deliver(p, LocksUpdated{Locks: d.locks.SnapshotExcluding(collectionKey, p.Name())})
}

// Stats returns the number of messages delivered to and dropped by peers.
func (d *Dispatcher) Stats() (delivered, dropped int64) {
	return d.delivered.Load(), d.dropped.Load()
}

// serialize locks the broadcast mutex of collectionKey and returns its
// unlock function. Peer.Send never blocks, so the hold time is one fan-out.
func (d *Dispatcher) serialize(collectionKey string) func() {
	d.mu.Lock()
	m, ok := d.serial[collectionKey]
	if !ok {
		m = &sync.Mutex{}
		d.serial[collectionKey] = m
	}
	d.mu.Unlock()

	m.Lock()
	return m.Unlock
}

func (d *Dispatcher) deliver(p Peer, msg Outbound) bool {
	if p.Send(msg) {
		d.delivered.Add(1)
		return true
	}
	d.dropped.Add(1)
	d.logger.WithConn(p.ID()).Debug("dropped message for busy peer", "type", msg.MessageType())
	return false
}
