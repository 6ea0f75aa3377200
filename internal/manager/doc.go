// Package manager orchestrates the persistent store, the TTL cache, the
// invalidation tracker, and the update broadcaster behind a single handle.
//
// Every mutation runs the same pipeline: the store write commits first,
// the cache entries covering that project are removed synchronously, and
// only then is the update event broadcast. A read issued after a mutation
// returns therefore always observes the new state, either as a cache miss
// or a fresh fill. Reads within the TTL may serve a snapshot up to the
// TTL old; that staleness bound is the cache's contract, not a bug.
package manager
