// Package events fans storage changes out to interested listeners.
//
// A Bus observes one storage.Store. Local writes arrive as set, remove and
// clear events; writes made by other processes arrive as change events once
// the store syncs. Listeners are grouped by key, with Wildcard listeners
// called after the key's own listeners. Dispatch happens on the writing
// goroutine, and a panicking listener is logged without affecting the others.
package events
