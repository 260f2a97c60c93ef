package collab

import (
	"fmt"
	"reflect"
	"sync"
	"testing"
)

func ids(peers []Peer) []string {
	out := make([]string, len(peers))
	for i, p := range peers {
		out[i] = p.ID()
	}
	return out
}

func TestRegistry_Register(t *testing.T) {
	r := NewRegistry()
	a := newFakePeer("c1", "alice")
	b := newFakePeer("c2", "bob")

	members, prev := r.Register(a, "abc")
	if prev != "" || !reflect.DeepEqual(ids(members), []string{"c1"}) {
		t.Fatalf("Register(a) = %v, %q", ids(members), prev)
	}

	members, _ = r.Register(b, "abc")
	if got := ids(members); !reflect.DeepEqual(got, []string{"c1", "c2"}) {
		t.Errorf("members = %v, want join order", got)
	}

	// Idempotent per connection.
	members, prev = r.Register(a, "abc")
	if prev != "" || len(members) != 2 {
		t.Errorf("re-register = %v, %q; want no change", ids(members), prev)
	}
}

func TestRegistry_RegisterMovesPeer(t *testing.T) {
	r := NewRegistry()
	a := newFakePeer("c1", "alice")
	r.Register(a, "abc")

	members, prev := r.Register(a, "xyz")
	if prev != "abc" {
		t.Errorf("previous = %q, want abc", prev)
	}
	if got := ids(members); !reflect.DeepEqual(got, []string{"c1"}) {
		t.Errorf("xyz members = %v", got)
	}
	if got := r.MembersOf("abc"); len(got) != 0 {
		t.Errorf("abc members = %v, want none", ids(got))
	}
	if key, _ := r.KeyOf(a); key != "xyz" {
		t.Errorf("KeyOf() = %q, want xyz", key)
	}
}

func TestRegistry_Unregister(t *testing.T) {
	r := NewRegistry()
	a := newFakePeer("c1", "alice")
	b := newFakePeer("c2", "bob")
	r.Register(a, "abc")
	r.Register(b, "abc")

	key, ok := r.Unregister(a)
	if !ok || key != "abc" {
		t.Fatalf("Unregister() = %q, %v", key, ok)
	}
	if got := ids(r.MembersOf("abc")); !reflect.DeepEqual(got, []string{"c2"}) {
		t.Errorf("members = %v", got)
	}

	if _, ok := r.Unregister(a); ok {
		t.Error("second Unregister() reported membership")
	}
	if _, ok := r.Unregister(newFakePeer("c9", "nobody")); ok {
		t.Error("Unregister() of unknown peer reported membership")
	}

	r.Unregister(b)
	if r.Collections() != 0 || r.Len() != 0 {
		t.Errorf("Collections() = %d, Len() = %d; want empty registry", r.Collections(), r.Len())
	}
}

func TestRegistry_MembersOfReturnsCopy(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakePeer("c1", "alice"), "abc")

	members := r.MembersOf("abc")
	members[0] = newFakePeer("evil", "mallory")

	if got := r.MembersOf("abc")[0].ID(); got != "c1" {
		t.Errorf("registry mutated through snapshot: %q", got)
	}
}

func TestRegistry_SameNameTwoConnections(t *testing.T) {
	r := NewRegistry()
	r.Register(newFakePeer("tab1", "alice"), "abc")
	r.Register(newFakePeer("tab2", "alice"), "abc")

	if got := len(r.MembersOf("abc")); got != 2 {
		t.Errorf("members = %d, want both connections", got)
	}
}

func TestRegistry_Concurrent(t *testing.T) {
	r := NewRegistry()
	var wg sync.WaitGroup
	for i := range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p := newFakePeer(fmt.Sprintf("c%d", i), fmt.Sprintf("u%d", i%7))
			r.Register(p, fmt.Sprintf("k%d", i%3))
			r.MembersOf("k0")
			if i%2 == 0 {
				r.Unregister(p)
			}
		}()
	}
	wg.Wait()

	if r.Len() != 50 {
		t.Errorf("Len() = %d, want 50", r.Len())
	}
}

func TestPresence_ActiveUsers(t *testing.T) {
	r := NewRegistry()
	p := NewPresence(r)

	r.Register(newFakePeer("c1", "alice"), "abc")
	r.Register(newFakePeer("c2", "bob"), "abc")
	r.Register(newFakePeer("c3", "alice"), "abc")
	r.Register(newFakePeer("c4", "carol"), "xyz")

	tests := []struct {
		key  string
		want []string
	}{
		{"abc", []string{"alice", "bob"}},
		{"xyz", []string{"carol"}},
		{"empty", []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			if got := p.ActiveUsers(tt.key); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ActiveUsers(%q) = %v, want %v", tt.key, got, tt.want)
			}
		})
	}
}

func TestConnState_String(t *testing.T) {
	tests := map[ConnState]string{
		StateConnecting:    "connecting",
		StateAuthenticated: "authenticated",
		StateJoined:        "joined",
		StateClosed:        "closed",
		ConnState(42):      "unknown",
	}
	for s, want := range tests {
		if got := s.String(); got != want {
			t.Errorf("ConnState(%d).String() = %q, want %q", s, got, want)
		}
	}
}
