// Package synchub fans flag change notifications out to subscribers.
//
// Delivery is at-most-once and non-durable: each subscriber owns a bounded
// buffer and, under backpressure, the oldest undelivered event is dropped to
// make room for the newest, so a slow consumer always converges on recent
// state. New subscribers get a snapshot handshake first, one event per flag
// currently in the store followed by SyncComplete carrying the flag count,
// then the live stream. A fixed-interval heartbeat keeps idle connections
// distinguishable from dead ones.
//
// The optional Redis bridge relays events between processes, and the HTTP
// handler exposes the stream over SSE plus an ETag-aware poll endpoint for
// clients that cannot hold a connection open.
//
// Usage:
//
//	hub := synchub.NewHub(store)
//	defer hub.Close()
//
//	sub, err := hub.Subscribe(ctx)
//	if err != nil { ... }
//	for ev := range sub.Events() {
//		switch ev.Type {
//		case synchub.EventSyncComplete:
//			// initial state replayed, ev.Count flags seen
//		case synchub.EventUpdated:
//			// ev.Flag carries the new definition
//		}
//	}
package synchub
