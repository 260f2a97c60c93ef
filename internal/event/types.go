package event

import "time"

// Event is the interface that all events must implement.
type Event interface {
	// EventType returns a "category.action" identifier such as "locks.changed".
	EventType() string

	// Timestamp returns when the event occurred.
	Timestamp() time.Time
}

// Event type identifiers.
const (
	TypeLocksChanged     = "locks.changed"
	TypePresenceChanged  = "presence.changed"
	TypeTodoAnnounced    = "todo.announced"
	TypePeerConnected    = "peer.connected"
	TypePeerDisconnected = "peer.disconnected"
)

// baseEvent provides common fields for all events.
type baseEvent struct {
	eventType string
	timestamp time.Time
}

func (e baseEvent) EventType() string    { return e.eventType }
func (e baseEvent) Timestamp() time.Time { return e.timestamp }

func newBaseEvent(eventType string) baseEvent {
	return baseEvent{
		eventType: eventType,
		timestamp: time.Now(),
	}
}

// -----------------------------------------------------------------------------
// Lock Events
// -----------------------------------------------------------------------------

// LockReason describes what changed a collection's lock table.
type LockReason string

const (
	LockAcquired LockReason = "acquired"
	LockReleased LockReason = "released"
	// LockDropped means the holder's connection closed.
	LockDropped LockReason = "dropped"
)

// LocksChangedEvent is emitted after the lock table of a collection actually
// changed. No event is emitted for lock or unlock attempts that were no-ops.
type LocksChangedEvent struct {
	baseEvent
	CollectionKey string
	Holder        string
	TodoIDs       []string // affected todos, sorted
	Reason        LockReason
}

// NewLocksChangedEvent creates a LocksChangedEvent.
func NewLocksChangedEvent(collectionKey, holder string, reason LockReason, todoIDs ...string) LocksChangedEvent {
	return LocksChangedEvent{
		baseEvent:     newBaseEvent(TypeLocksChanged),
		CollectionKey: collectionKey,
		Holder:        holder,
		TodoIDs:       todoIDs,
		Reason:        reason,
	}
}

// -----------------------------------------------------------------------------
// Presence Events
// -----------------------------------------------------------------------------

// PresenceChangedEvent is emitted after a connection joined or left a collection.
type PresenceChangedEvent struct {
	baseEvent
	CollectionKey string
}

// NewPresenceChangedEvent creates a PresenceChangedEvent.
func NewPresenceChangedEvent(collectionKey string) PresenceChangedEvent {
	return PresenceChangedEvent{
		baseEvent:     newBaseEvent(TypePresenceChanged),
		CollectionKey: collectionKey,
	}
}

// -----------------------------------------------------------------------------
// Todo Events
// -----------------------------------------------------------------------------

// TodoAnnouncedEvent is emitted after a todo mutation was committed.
// Todo carries the joined projection handed over by the mutation pipeline.
type TodoAnnouncedEvent struct {
	baseEvent
	CollectionKey string
	TodoID        string
	Action        string // "create", "update" or "delete"
	Todo          any
}

// NewTodoAnnouncedEvent creates a TodoAnnouncedEvent.
func NewTodoAnnouncedEvent(collectionKey, todoID, action string, todo any) TodoAnnouncedEvent {
	return TodoAnnouncedEvent{
		baseEvent:     newBaseEvent(TypeTodoAnnounced),
		CollectionKey: collectionKey,
		TodoID:        todoID,
		Action:        action,
		Todo:          todo,
	}
}

// -----------------------------------------------------------------------------
// Connection Lifecycle Events
// -----------------------------------------------------------------------------

// PeerConnectedEvent is emitted when an authenticated connection is accepted.
type PeerConnectedEvent struct {
	baseEvent
	ConnID   string
	UserID   string
	UserName string
}

// NewPeerConnectedEvent creates a PeerConnectedEvent.
func NewPeerConnectedEvent(connID, userID, userName string) PeerConnectedEvent {
	return PeerConnectedEvent{
		baseEvent: newBaseEvent(TypePeerConnected),
		ConnID:    connID,
		UserID:    userID,
		UserName:  userName,
	}
}

// PeerDisconnectedEvent is emitted after a connection's close cascade ran.
type PeerDisconnectedEvent struct {
	baseEvent
	ConnID        string
	UserName      string
	CollectionKey string // empty if the connection never joined
	ReleasedLocks int
}

// NewPeerDisconnectedEvent creates a PeerDisconnectedEvent.
func NewPeerDisconnectedEvent(connID, userName, collectionKey string, releasedLocks int) PeerDisconnectedEvent {
	return PeerDisconnectedEvent{
		baseEvent:     newBaseEvent(TypePeerDisconnected),
		ConnID:        connID,
		UserName:      userName,
		CollectionKey: collectionKey,
		ReleasedLocks: releasedLocks,
	}
}
