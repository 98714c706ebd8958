// Package storage provides the local key/value store shared by every
// recipunto process on a machine.
//
// # Overview
//
// Store mirrors the small surface of browser storage: string keys mapped to
// string values with GetItem, SetItem, RemoveItem, Clear and Keys. Values
// live in a single SQLite file, so two processes (or two Store handles in one
// process) opened on the same path see the same data.
//
// # Change Propagation
//
// Every row carries a global revision number and the id of the handle that
// wrote it. Removals and clears leave tombstones (NULL values) with a fresh
// revision so that other handles can observe them.
//
// Two hooks report changes:
//
//   - AddInterceptor: called synchronously after each local mutation commits
//   - OnChange: called from Sync for writes made by other handles
//
// Sync reads rows with a revision newer than the last one it saw, skipping
// rows written by this handle, and dispatches them in revision order. Watch
// runs Sync whenever fsnotify reports activity on the database directory and
// on a fallback poll interval.
//
//	s, err := storage.Open(path, storage.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//	go s.Watch(ctx)
//
// # Consistency
//
// Concurrent writers are last-write-wins. There is no merge, and a foreign
// change that is superseded before Sync runs is never reported.
package storage
