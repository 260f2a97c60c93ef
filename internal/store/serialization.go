package store

import (
	"fmt"
	"strconv"
	"time"

	"github.com/Iron-Ham/todohub/internal/status"
)

// Timestamps are stored as Unix milliseconds.

func userToHash(u User) map[string]any {
	return map[string]any{
		"id":            u.ID,
		"name":          u.Name,
		"created_at_ms": u.CreatedAt.UnixMilli(),
	}
}

func hashToUser(hash map[string]string) (User, error) {
	created, err := parseMillis(hash, "created_at_ms")
	if err != nil {
		return User{}, err
	}
	return User{ID: hash["id"], Name: hash["name"], CreatedAt: created}, nil
}

func collectionToHash(c Collection) map[string]any {
	return map[string]any{
		"key":           c.Key,
		"created_by":    c.CreatedByID,
		"created_at_ms": c.CreatedAt.UnixMilli(),
	}
}

func hashToCollection(hash map[string]string) (Collection, error) {
	created, err := parseMillis(hash, "created_at_ms")
	if err != nil {
		return Collection{}, err
	}
	return Collection{Key: hash["key"], CreatedByID: hash["created_by"], CreatedAt: created}, nil
}

func todoToHash(t Todo) map[string]any {
	return map[string]any{
		"id":             t.ID,
		"text":           t.Text,
		"status":         string(t.Status),
		"collection_key": t.CollectionKey,
		"assigned_to":    t.AssignedToID,
		"created_by":     t.CreatedByID,
		"created_at_ms":  t.CreatedAt.UnixMilli(),
		"updated_at_ms":  t.UpdatedAt.UnixMilli(),
	}
}

func hashToTodo(hash map[string]string) (Todo, error) {
	st, err := status.Parse(hash["status"])
	if err != nil {
		return Todo{}, fmt.Errorf("invalid status field: %w", err)
	}
	created, err := parseMillis(hash, "created_at_ms")
	if err != nil {
		return Todo{}, err
	}
	updated, err := parseMillis(hash, "updated_at_ms")
	if err != nil {
		return Todo{}, err
	}
	return Todo{
		ID:            hash["id"],
		Text:          hash["text"],
		Status:        st,
		CollectionKey: hash["collection_key"],
		AssignedToID:  hash["assigned_to"],
		CreatedByID:   hash["created_by"],
		CreatedAt:     created,
		UpdatedAt:     updated,
	}, nil
}

func parseMillis(hash map[string]string, field string) (time.Time, error) {
	ms, err := strconv.ParseInt(hash[field], 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid %s field: %w", field, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
