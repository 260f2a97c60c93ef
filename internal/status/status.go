// Package status defines the lifecycle states of a todo and the table of
// transitions between them.
//
// The transition table is the single source of truth for status changes.
// The authoritative mutation path in package todo consults [IsAllowed]
// before committing an update, and clients are expected to apply the same
// table optimistically.
package status

import (
	"fmt"
	"strings"
)

// Status is the lifecycle state of a todo.
type Status string

const (
	// Todo is the initial state of a new item.
	Todo Status = "TODO"
	// Ongoing marks an item someone is working on.
	Ongoing Status = "ONGOING"
	// Done marks a finished item.
	Done Status = "DONE"
)

// transitions maps each state to the states reachable from it in one step.
// The identity transition is handled separately in IsAllowed.
var transitions = map[Status][]Status{
	Todo:    {Ongoing},
	Ongoing: {Todo, Done},
	Done:    {Ongoing},
}

// All returns every known status in lifecycle order.
func All() []Status {
	return []Status{Todo, Ongoing, Done}
}

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	_, ok := transitions[s]
	return ok
}

// String implements fmt.Stringer.
func (s Status) String() string {
	return string(s)
}

// Parse converts a case-insensitive string into a Status.
func Parse(raw string) (Status, error) {
	s := Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("unknown status %q", raw)
	}
	return s, nil
}

// IsAllowed reports whether a todo may move from one status to another.
// Leaving the status unchanged is always allowed.
func IsAllowed(from, to Status) bool {
	if from == to {
		return true
	}
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Next returns the states reachable from s in one step, excluding s itself.
func Next(s Status) []Status {
	next := transitions[s]
	out := make([]Status, len(next))
	copy(out, next)
	return out
}
