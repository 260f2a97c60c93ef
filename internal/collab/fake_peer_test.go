package collab

import (
	"sync"
	"testing"
)

// fakePeer is an in-memory Peer that records what it is sent.
type fakePeer struct {
	id, userID, name string

	mu       sync.Mutex
	received []Outbound
	full     bool
}

func newFakePeer(id, name string) *fakePeer {
	return &fakePeer{id: id, userID: "user-" + name, name: name}
}

func (p *fakePeer) ID() string     { return p.id }
func (p *fakePeer) UserID() string { return p.userID }
func (p *fakePeer) Name() string   { return p.name }

func (p *fakePeer) Send(msg Outbound) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.full {
		return false
	}
	p.received = append(p.received, msg)
	return true
}

func (p *fakePeer) setFull(full bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.full = full
}

// stallingPeer blocks inside Send on the first lock view after
// stallNextLocks, until release is closed. It stands in for a broadcasting
// goroutine that gets descheduled between snapshot and delivery.
type stallingPeer struct {
	*fakePeer

	armed   bool
	stalled chan struct{}
	release chan struct{}
}

func newStallingPeer(id, name string) *stallingPeer {
	return &stallingPeer{
		fakePeer: newFakePeer(id, name),
		stalled:  make(chan struct{}),
		release:  make(chan struct{}),
	}
}

func (p *stallingPeer) stallNextLocks() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.armed = true
}

func (p *stallingPeer) Send(msg Outbound) bool {
	if _, ok := msg.(LocksUpdated); ok {
		p.mu.Lock()
		stall := p.armed
		p.armed = false
		p.mu.Unlock()
		if stall {
			close(p.stalled)
			<-p.release
		}
	}
	return p.fakePeer.Send(msg)
}

// messages returns and clears everything received so far.
func (p *fakePeer) messages() []Outbound {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.received
	p.received = nil
	return out
}

// last returns the most recent message of type T, failing if there is none.
func last[T Outbound](t *testing.T, msgs []Outbound) T {
	t.Helper()
	for i := len(msgs) - 1; i >= 0; i-- {
		if m, ok := msgs[i].(T); ok {
			return m
		}
	}
	var zero T
	t.Fatalf("no %T among %d messages", zero, len(msgs))
	return zero
}

// count returns how many messages of type T are in msgs.
func count[T Outbound](msgs []Outbound) int {
	n := 0
	for _, m := range msgs {
		if _, ok := m.(T); ok {
			n++
		}
	}
	return n
}
