package collab

import "sync"

// Registry tracks which collection each live connection is joined to.
// Members of a collection are kept in join order.
type Registry struct {
	mu      sync.RWMutex
	members map[string][]Peer // collectionKey -> peers in join order
	joined  map[string]string // peer ID -> collectionKey
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		members: make(map[string][]Peer),
		joined:  make(map[string]string),
	}
}

// Register binds p to collectionKey and returns the collection's members
// afterwards. If p was joined elsewhere it is moved and the previous key is
// returned; registering p under its current key changes nothing.
func (r *Registry) Register(p Peer, collectionKey string) (members []Peer, previous string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	previous = r.joined[p.ID()]
	if previous != collectionKey {
		if previous != "" {
			r.removeLocked(p.ID(), previous)
		}
		r.members[collectionKey] = append(r.members[collectionKey], p)
		r.joined[p.ID()] = collectionKey
	} else {
		previous = ""
	}
	return r.snapshotLocked(collectionKey), previous
}

// Unregister removes p from whichever collection it joined and returns that
// key. ok is false if p was not joined.
func (r *Registry) Unregister(p Peer) (collectionKey string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	collectionKey, ok = r.joined[p.ID()]
	if !ok {
		return "", false
	}
	r.removeLocked(p.ID(), collectionKey)
	delete(r.joined, p.ID())
	return collectionKey, true
}

// MembersOf returns the peers joined to collectionKey in join order.
func (r *Registry) MembersOf(collectionKey string) []Peer {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.snapshotLocked(collectionKey)
}

// KeyOf returns the collection p is joined to.
func (r *Registry) KeyOf(p Peer) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	key, ok := r.joined[p.ID()]
	return key, ok
}

// Collections returns the number of collections with at least one member.
func (r *Registry) Collections() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.members)
}

// Len returns the number of joined connections.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.joined)
}

func (r *Registry) removeLocked(peerID, collectionKey string) {
	peers := r.members[collectionKey]
	for i, p := range peers {
		if p.ID() == peerID {
			peers = append(peers[:i:i], peers[i+1:]...)
			break
		}
	}
	if len(peers) == 0 {
		delete(r.members, collectionKey)
		return
	}
	r.members[collectionKey] = peers
}

func (r *Registry) snapshotLocked(collectionKey string) []Peer {
	peers := r.members[collectionKey]
	out := make([]Peer, len(peers))
	copy(out, peers)
	return out
}
