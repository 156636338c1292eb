// Package memory implements the tiered memory subsystem.
//
// Records enter as short-term memories held in a bounded in-process cache
// and persisted through the storage backend. A single background worker
// consolidates aged entries: important ones are promoted into new long-term
// records linked back to their source, the rest are evicted from the cache.
// Every state change is announced on the event bus.
//
// Retrieval resolves in three stages: exact id lookup, cache predicate scan,
// then vector similarity search against the storage backend.
package memory
