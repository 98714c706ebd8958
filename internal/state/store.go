package state

import (
	"fmt"
	"sync"
	"time"

	"github.com/five82/recipunto/internal/box"
)

// ConnState is the realtime connection state of the box collection.
type ConnState int

const (
	// Disconnected means no subscription has been attempted yet, or the
	// syncer has been closed.
	Disconnected ConnState = iota
	// Connecting means a subscription and full fetch are in progress.
	Connecting
	// Synced means the collection is fetched and following the change feed.
	Synced
	// Stale means the feed dropped; the collection may be behind.
	Stale
)

func (c ConnState) String() string {
	switch c {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Synced:
		return "synced"
	case Stale:
		return "stale"
	default:
		return "unknown"
	}
}

// Snapshot represents the latest box collection available to the UI.
type Snapshot struct {
	Boxes               []box.Box
	Loaded              bool // At least one full fetch succeeded
	Conn                ConnState
	LastUpdated         time.Time
	LastError           error
	ConsecutiveFailures int // Number of consecutive fetch or connect failures
}

// IsOffline returns true when the backend has been unreachable for multiple attempts.
func (s Snapshot) IsOffline() bool {
	return s.ConsecutiveFailures >= 2
}

// Box looks up one box by id.
func (s Snapshot) Box(id string) (box.Box, bool) {
	for _, b := range s.Boxes {
		if b.ID == id {
			return b, true
		}
	}
	return box.Box{}, false
}

// Store coordinates concurrent updates to the snapshot.
type Store struct {
	mu       sync.RWMutex
	snapshot Snapshot
}

// Replace installs a freshly fetched collection and clears the error.
func (s *Store) Replace(boxes []box.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.Boxes = cloneBoxes(boxes)
	s.snapshot.Loaded = true
	s.snapshot.LastError = nil
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures = 0
}

// Fail records err. The previous collection is kept.
func (s *Store) Fail(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshot.LastError = err
	s.snapshot.LastUpdated = time.Now()
	s.snapshot.ConsecutiveFailures++
}

// SetConn records the connection state.
func (s *Store) SetConn(c ConnState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot.Conn = c
}

// Insert prepends b, or replaces the existing box with the same id.
func (s *Store) Insert(b box.Box) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if i := s.indexLocked(b.ID); i >= 0 {
		s.snapshot.Boxes[i] = b
	} else {
		boxes := make([]box.Box, 0, len(s.snapshot.Boxes)+1)
		boxes = append(boxes, b)
		s.snapshot.Boxes = append(boxes, s.snapshot.Boxes...)
	}
	s.snapshot.LastUpdated = time.Now()
}

// Update replaces the box with the same id. It reports false when no such
// box is held.
func (s *Store) Update(b box.Box) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(b.ID)
	if i < 0 {
		return false
	}
	s.snapshot.Boxes[i] = b
	s.snapshot.LastUpdated = time.Now()
	return true
}

// Delete removes the box with id. It reports false when no such box is held.
func (s *Store) Delete(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(id)
	if i < 0 {
		return false
	}
	boxes := make([]box.Box, 0, len(s.snapshot.Boxes)-1)
	boxes = append(boxes, s.snapshot.Boxes[:i]...)
	s.snapshot.Boxes = append(boxes, s.snapshot.Boxes[i+1:]...)
	s.snapshot.LastUpdated = time.Now()
	return true
}

// Snapshot returns a copy of the current snapshot.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := s.snapshot
	snap.Boxes = cloneBoxes(s.snapshot.Boxes)
	if s.snapshot.LastError != nil {
		snap.LastError = fmt.Errorf("%w", s.snapshot.LastError)
	}
	return snap
}

func (s *Store) indexLocked(id string) int {
	for i, b := range s.snapshot.Boxes {
		if b.ID == id {
			return i
		}
	}
	return -1
}

func cloneBoxes(items []box.Box) []box.Box {
	if len(items) == 0 {
		return nil
	}
	dup := make([]box.Box, len(items))
	copy(dup, items)
	return dup
}
