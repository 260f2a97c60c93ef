package collab

import (
	"errors"
	"sync"

	"github.com/Iron-Ham/todohub/internal/event"
	"github.com/Iron-Ham/todohub/internal/logging"
	"github.com/Iron-Ham/todohub/internal/store"
	"github.com/Iron-Ham/todohub/internal/todo"
	"github.com/Iron-Ham/todohub/internal/todolock"
)

// Config holds required dependencies for creating a Hub.
type Config struct {
	Bus *event.Bus
}

// Hub is the collaboration service: it owns connection membership and the
// lock table, and turns client messages and committed mutations into
// broadcasts. State changes are published on the bus; the dispatcher turns
// them into messages.
type Hub struct {
	bus        *event.Bus
	registry   *Registry
	presence   *Presence
	locks      *todolock.Table
	dispatcher *Dispatcher
	logger     *logging.Logger

	mu     sync.Mutex
	subIDs []string
	closed bool
}

// NewHub creates a Hub and subscribes its dispatcher to cfg.Bus.
func NewHub(cfg Config, opts ...Option) (*Hub, error) {
	if cfg.Bus == nil {
		return nil, errors.New("collab: Bus is required")
	}

	hc := &hubConfig{}
	for _, opt := range opts {
		opt(hc)
	}
	logger := hc.logger
	if logger == nil {
		logger = logging.NopLogger()
	}
	locks := todolock.NewTable(cfg.Bus)

	registry := NewRegistry()
	presence := NewPresence(registry)
	h := &Hub{
		bus:        cfg.Bus,
		registry:   registry,
		presence:   presence,
		locks:      locks,
		dispatcher: NewDispatcher(registry, presence, locks, logger),
		logger:     logger,
	}
	h.subIDs = h.dispatcher.Subscribe(cfg.Bus)
	if hc.debugTaps {
		h.subIDs = append(h.subIDs, cfg.Bus.SubscribeAll(func(e event.Event) {
			logger.Debug("event", "event_type", e.EventType())
		}))
	}
	return h, nil
}

// Registry returns the connection registry.
func (h *Hub) Registry() *Registry { return h.registry }

// Locks returns the lock table.
func (h *Hub) Locks() *todolock.Table { return h.locks }

// Dispatcher returns the broadcast dispatcher.
func (h *Hub) Dispatcher() *Dispatcher { return h.dispatcher }

// ActiveUsers returns the distinct display names joined to collectionKey.
func (h *Hub) ActiveUsers(collectionKey string) []string {
	return h.presence.ActiveUsers(collectionKey)
}

// Connect records an authenticated connection. It is not a member of any
// collection until it joins.
func (h *Hub) Connect(p Peer) {
	h.logger.WithConn(p.ID()).WithUser(p.Name()).Info("peer connected")
	h.bus.Publish(event.NewPeerConnectedEvent(p.ID(), p.UserID(), p.Name()))
}

// Join binds p to collectionKey. Presence is re-broadcast to the new
// collection and, when p moved, to the one it left. Locks p holds in the
// collection it left are kept. The joiner is sent its view of the new
// collection's locks.
func (h *Hub) Join(p Peer, collectionKey string) {
	_, previous := h.registry.Register(p, collectionKey)
	log := h.logger.WithConn(p.ID()).WithUser(p.Name()).WithCollection(collectionKey)
	if previous != "" {
		log.Info("peer moved collection", "from", previous,
			"kept_locks", h.locks.HeldBy(p.Name(), previous))
		h.bus.Publish(event.NewPresenceChangedEvent(previous))
	} else {
		log.Info("peer joined collection")
	}
	h.bus.Publish(event.NewPresenceChangedEvent(collectionKey))
	h.dispatcher.SendLocks(p, collectionKey)
}

// Lock tries to lock todoID for p. It reports whether p's name now holds
// the lock because of this call. Requests for a collection p has not joined
// are ignored.
func (h *Hub) Lock(p Peer, collectionKey, todoID string) bool {
	if !h.joinedTo(p, collectionKey, "lock") {
		return false
	}
	holder, acquired := h.locks.Lock(collectionKey, todoID, p.Name())
	if !acquired {
		h.logger.WithConn(p.ID()).WithCollection(collectionKey).Debug("todo already locked",
			"todo_id", todoID, "holder", holder)
	}
	return acquired
}

// Unlock releases todoID if p's name holds it.
func (h *Hub) Unlock(p Peer, collectionKey, todoID string) bool {
	if !h.joinedTo(p, collectionKey, "unlock") {
		return false
	}
	return h.locks.Unlock(collectionKey, todoID, p.Name())
}

// Disconnect runs the close cascade for p: leave the collection, release
// every lock held under p's name there, and re-broadcast presence. It
// returns the released todo ids.
func (h *Hub) Disconnect(p Peer) []string {
	collectionKey, joined := h.registry.Unregister(p)
	log := h.logger.WithConn(p.ID()).WithUser(p.Name())

	var released []string
	if joined {
		released = h.locks.ReleaseAllFor(p.Name(), collectionKey)
		h.bus.Publish(event.NewPresenceChangedEvent(collectionKey))
		log = log.WithCollection(collectionKey)
	}

	log.Info("peer disconnected", "released_locks", len(released))
	h.bus.Publish(event.NewPeerDisconnectedEvent(p.ID(), p.Name(), collectionKey, len(released)))
	return released
}

// Handle routes one inbound message from p.
func (h *Hub) Handle(p Peer, msg Inbound) {
	switch m := msg.(type) {
	case JoinCollection:
		h.Join(p, m.CollectionKey)
	case LockTodo:
		h.Lock(p, m.CollectionKey, m.TodoID)
	case UnlockTodo:
		h.Unlock(p, m.CollectionKey, m.TodoID)
	default:
		h.logger.WithConn(p.ID()).Warn("unhandled message", "type", msg.MessageType())
	}
}

// Announce broadcasts a committed todo mutation to the todo's collection.
// It never touches locks.
func (h *Hub) Announce(view store.TodoView, action todo.Action) {
	h.bus.Publish(event.NewTodoAnnouncedEvent(view.CollectionKey, view.ID, string(action), view))
}

// Close detaches the hub from the bus. It is safe to call more than once.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for _, id := range h.subIDs {
		h.bus.Unsubscribe(id)
	}
	h.subIDs = nil
}

func (h *Hub) joinedTo(p Peer, collectionKey, op string) bool {
	key, ok := h.registry.KeyOf(p)
	if ok && key == collectionKey {
		return true
	}
	h.logger.WithConn(p.ID()).Warn("ignoring request for a collection the peer has not joined",
		"op", op, "requested", collectionKey, "joined", key)
	return false
}

var _ todo.Announcer = (*Hub)(nil)
