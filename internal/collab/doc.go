// Package collab is the real-time collaboration layer: it tracks which
// connections are joined to which collection, holds the advisory todo locks,
// derives presence, and fans out updates to collection members over
// websockets.
//
// # Protocol
//
// A client connects to the websocket endpoint with ?token=<credential>.
// Inbound frames are JSON objects discriminated by "type":
//
//	{"type":"JOIN_COLLECTION","collectionKey":"..."}
//	{"type":"LOCK_TODO","todoId":"...","collectionKey":"..."}
//	{"type":"UNLOCK_TODO","todoId":"...","collectionKey":"..."}
//
// The server pushes:
//
//	{"type":"ACTIVE_USERS_UPDATED","users":[...]}
//	{"type":"LOCKS_UPDATED","locks":{"todoId":"holder"}}
//	{"type":"TODO_UPDATED","todo":{...},"action":"create|update|delete"}
//
// A LOCKS_UPDATED frame never lists locks held under the recipient's own
// display name. Malformed or unknown frames are logged and dropped without a
// reply.
//
// # Structure
//
// [Hub] owns a [Registry] and a [todolock.Table] and publishes state changes
// on an [event.Bus]. The [Dispatcher] subscribes to those events and sends
// the resulting messages through each member's [Peer]. [Handler] adapts
// websocket connections to peers.
package collab
