package collab

// Presence derives the live user list of a collection from the registry.
type Presence struct {
	registry *Registry
}

// NewPresence creates a Presence reading from registry.
func NewPresence(registry *Registry) *Presence {
	return &Presence{registry: registry}
}

// ActiveUsers returns the distinct display names of the connections joined
// to collectionKey, in the order they first joined.
func (p *Presence) ActiveUsers(collectionKey string) []string {
	return distinctNames(p.registry.MembersOf(collectionKey))
}

func distinctNames(peers []Peer) []string {
	seen := make(map[string]struct{}, len(peers))
	names := make([]string, 0, len(peers))
	for _, peer := range peers {
		if _, dup := seen[peer.Name()]; dup {
			continue
		}
		seen[peer.Name()] = struct{}{}
		names = append(names, peer.Name())
	}
	return names
}
