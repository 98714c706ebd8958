// Package state provides thread-safe state management for the box collection.
//
// # Overview
//
// Store holds the latest box list shared between the sync goroutine and the
// UI. The syncer writes full fetches (Replace), feed changes (Insert, Update,
// Delete), failures (Fail) and connection state (SetConn); readers take
// Snapshot copies on their own schedule.
//
// # Update Semantics
//
//	// Successful fetch: replace the collection
//	store.Replace(boxes)
//	→ snapshot.Boxes = boxes
//	→ snapshot.LastError = nil
//	→ snapshot.ConsecutiveFailures = 0
//
//	// Failure: keep the old collection, record the error
//	store.Fail(err)
//	→ snapshot.Boxes = <unchanged>
//	→ snapshot.LastError = err
//	→ snapshot.ConsecutiveFailures++
//
// Insert prepends a new box, matching the backend's newest-first order. An
// insert for an id already held replaces that box, so a change delivered
// twice does not duplicate it.
//
// # Defensive Copying
//
// Both Replace and Snapshot copy the box slice, and Snapshot wraps the stored
// error, so the UI can never mutate what the syncer holds.
//
// The zero Store is ready to use.
package state
