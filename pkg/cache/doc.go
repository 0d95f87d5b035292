// Package cache provides the tiered read-through cache that masks durable
// store latency on the evaluation hot path.
//
// L1 is a bounded in-memory LRU keyed on last access, with a per-entry TTL
// and a background sweep purging expired entries independent of access
// pattern. L2 is an optional networked tier (Redis) consulted only on an L1
// miss; an L2 hit is promoted into L1 under L1's own TTL. L2 absence or
// failure degrades to a miss, never an error, so the caller falls through to
// durable storage.
//
// All L2 operations are bounded by a configurable timeout; hit/miss/eviction
// counters are race-free under concurrent access.
//
//	c := cache.New(cache.Config{L1Capacity: 10_000, L1TTL: time.Minute})
//	defer c.Close()
//
//	if def, ok := c.Get(ctx, "beta-feature"); ok {
//		// serve from cache
//	}
package cache
