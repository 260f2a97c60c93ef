package store

import "fmt"

// UserKey returns the Redis key for a user hash.
func UserKey(prefix, userID string) string {
	return fmt.Sprintf("%s:user:%s", prefix, userID)
}

// UsersByNameKey returns the Redis key of the name -> user id index.
func UsersByNameKey(prefix string) string {
	return prefix + ":users:by-name"
}

// UserCollectionsKey returns the Redis key of the sorted set of collections
// created by a user.
func UserCollectionsKey(prefix, userID string) string {
	return fmt.Sprintf("%s:user:%s:collections", prefix, userID)
}

// CollectionKey returns the Redis key for a collection hash.
func CollectionKey(prefix, key string) string {
	return fmt.Sprintf("%s:collection:%s", prefix, key)
}

// CollectionTodosKey returns the Redis key of the sorted set of todo ids in
// a collection.
func CollectionTodosKey(prefix, key string) string {
	return fmt.Sprintf("%s:collection:%s:todos", prefix, key)
}

// TodoKey returns the Redis key for a todo hash.
func TodoKey(prefix, todoID string) string {
	return fmt.Sprintf("%s:todo:%s", prefix, todoID)
}
