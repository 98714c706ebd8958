// Package cache implements a small persisted cache with expiry and a size
// bound.
//
// Entries live in local storage under "cache_<name>", so a restarted client
// starts warm. An entry is valid while its age is at most the TTL. Expired
// entries are dropped lazily on read and by Cleanup, which Run calls every
// TTL. When an insert pushes the cache over MaxSize the oldest entries by
// strategy go first: LRU orders by last access, FIFO and TTL by insertion.
//
// Get falls back to the fetcher registered for the key. Callers that race on
// the same missing key wait on one shared fetch (singleflight).
package cache
