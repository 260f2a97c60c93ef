// Package store persists users, collections and todos in Redis.
//
// Every entity is a Redis hash; ordering indexes are sorted sets scored by
// creation time in milliseconds. All keys live under a configurable prefix:
//
//	{prefix}:user:{id}                    user hash
//	{prefix}:users:by-name                name -> user id
//	{prefix}:user:{id}:collections        collection keys owned by the user
//	{prefix}:collection:{key}             collection hash
//	{prefix}:collection:{key}:todos       todo ids of the collection
//	{prefix}:todo:{id}                    todo hash
//
// Missing entities are reported as *errors.NotFoundError, Redis failures as
// *errors.StoreError.
package store
