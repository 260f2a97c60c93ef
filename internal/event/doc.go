// Package event provides a synchronous pub-sub bus and the events exchanged
// by the collaboration layer.
//
// State owners publish after they changed state: the lock table publishes
// [LocksChangedEvent], the hub publishes [PresenceChangedEvent],
// [TodoAnnouncedEvent] and the connection lifecycle events. The broadcast
// dispatcher subscribes to the first three and turns them into outbound
// websocket messages. A wildcard subscriber registered by the server logs
// every event at debug level.
//
// # Thread Safety
//
// [Bus] is safe for concurrent use. Handlers run synchronously on the
// publisher's goroutine, so publishers must not hold their own locks while
// publishing. A panicking handler is recovered and logged.
//
// # Usage
//
//	bus := event.NewBus(event.WithLogger(logger))
//
//	bus.Subscribe(event.TypeLocksChanged, func(e event.Event) {
//	    changed := e.(event.LocksChangedEvent)
//	    dispatcher.BroadcastLocks(changed.CollectionKey)
//	})
//
//	bus.Publish(event.NewPresenceChangedEvent("abc"))
package event
