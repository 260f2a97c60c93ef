package store

import (
	"time"

	"github.com/Iron-Ham/todohub/internal/status"
)

// User is a person identified by a unique display name.
type User struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	CreatedAt time.Time `json:"createdAt"`
}

// Collection is a named group of todos shared by everyone who knows its key.
type Collection struct {
	Key         string    `json:"key"`
	CreatedByID string    `json:"createdById"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Todo is a single task item as stored.
type Todo struct {
	ID            string        `json:"id"`
	Text          string        `json:"text"`
	Status        status.Status `json:"status"`
	CollectionKey string        `json:"collectionKey"`
	AssignedToID  string        `json:"assignedToId"`
	CreatedByID   string        `json:"createdById"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// TodoView is a Todo joined with its assignee and creator. It is the
// projection returned by the API and pushed to collaborators.
type TodoView struct {
	Todo
	AssignedTo User `json:"assignedTo"`
	CreatedBy  User `json:"createdBy"`
}
