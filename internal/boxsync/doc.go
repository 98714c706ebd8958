// Package boxsync keeps a local copy of the recycling box collection in step
// with the backend.
//
// # Connection States
//
//	Disconnected ──Start──> Connecting ──fetch ok──> Synced
//	                             ^                      │
//	                             │                 feed drops
//	                          backoff                   v
//	                             └───────────────── Stale
//
// Every session subscribes to the change feed first and then performs a full
// fetch. Changes arriving while the fetch is in flight are buffered and
// applied on top of the fetched collection, so nothing delivered during a
// reconnect is lost. An insert for an id already held replaces it.
//
// Reconnect attempts wait calculateBackoff (doubling from BaseInterval, capped
// at 30s) and are additionally gated by a rate.Limiter.
//
// # Mutations
//
// CreateBox, UpdateBox, UpdateBoxStatus and DeleteBox forward to the backend
// and return its errors. The local collection only changes when the
// corresponding row change arrives on the feed. UpdateBoxStatus rejects an
// amount above the local copy's capacity with ErrInvalidStatus before any
// request is sent.
package boxsync
