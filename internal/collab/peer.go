package collab

// Peer is one live client connection as seen by the hub.
//
// Send must not block: it either queues msg for delivery and returns true,
// or drops it and returns false (queue full or connection closing).
type Peer interface {
	ID() string
	UserID() string
	Name() string
	Send(msg Outbound) bool
}

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	StateConnecting ConnState = iota
	StateAuthenticated
	StateJoined
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateAuthenticated:
		return "authenticated"
	case StateJoined:
		return "joined"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
