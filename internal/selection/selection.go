// Package selection persists the box currently selected in the UI and keeps
// it in step with the synced collection.
package selection

import (
	"encoding/json"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/state"
	"github.com/five82/recipunto/internal/storage"
)

// Key is the storage key of the selection.
const Key = "recipunto:selected-box"

const version = 1

type envelope struct {
	Version     int      `json:"version"`
	SelectedBox *box.Box `json:"selectedBox"`
}

// codec wraps the selection in a versioned envelope. Any other version is
// rejected so the item falls back to no selection.
func codec() persist.Codec[*box.Box] {
	return persist.Codec[*box.Box]{
		Encode: func(b *box.Box) (string, error) {
			data, err := json.Marshal(envelope{Version: version, SelectedBox: b})
			return string(data), err
		},
		Decode: func(s string) (*box.Box, error) {
			var env envelope
			if err := json.Unmarshal([]byte(s), &env); err != nil {
				return nil, err
			}
			if env.Version != version {
				return nil, fmt.Errorf("unsupported selection version %d", env.Version)
			}
			return env.SelectedBox, nil
		},
	}
}

// Store holds the selected box.
type Store struct {
	store *storage.Store
	item  *persist.Item[*box.Box]
	log   *zap.Logger

	mu  sync.Mutex
	src Source
}

// New loads the selection from store.
func New(store *storage.Store, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("selection")
	return &Store{
		store: store,
		item:  persist.NewWithCodec(store, Key, nil, codec(), persist.WithLogger(log)),
		log:   log,
	}
}

// Selected returns a copy of the selected box.
func (s *Store) Selected() (box.Box, bool) {
	b := s.item.Get()
	if b == nil {
		return box.Box{}, false
	}
	return *b, true
}

// Set selects b. A nil b clears the selection. While following a source,
// a stale b is replaced by the source's copy of the same box.
func (s *Store) Set(b *box.Box) {
	if b == nil {
		s.item.Set(nil)
		return
	}
	dup := *b
	if fresh, ok := s.current(dup.ID); ok && stale(dup, fresh) {
		dup = fresh
	}
	s.item.Set(&dup)
}

func (s *Store) current(id string) (box.Box, bool) {
	s.mu.Lock()
	src := s.src
	s.mu.Unlock()
	if src == nil {
		return box.Box{}, false
	}
	return src.Snapshot().Box(id)
}

// Clear drops the selection.
func (s *Store) Clear() { s.item.Set(nil) }

// Reconcile replaces the selection with its fresh copy from boxes when any
// mutable field differs. A selection whose id is missing from boxes is left
// as is. It reports whether the selection changed.
func (s *Store) Reconcile(boxes []box.Box) bool {
	cur, ok := s.Selected()
	if !ok {
		return false
	}
	for _, b := range boxes {
		if b.ID != cur.ID {
			continue
		}
		if !stale(cur, b) {
			return false
		}
		s.log.Debug("refreshing selected box", zap.String("id", b.ID))
		fresh := b
		s.item.Set(&fresh)
		return true
	}
	return false
}

func stale(held, fresh box.Box) bool {
	return held.CurrentAmount != fresh.CurrentAmount ||
		held.IsFull != fresh.IsFull ||
		held.Capacity != fresh.Capacity ||
		held.Lat != fresh.Lat ||
		held.Lng != fresh.Lng
}

// Source publishes collection snapshots. *boxsync.Syncer implements it.
type Source interface {
	Snapshot() state.Snapshot
	Subscribe(fn func(state.Snapshot)) func()
}

// Follow keeps the selection in step with src until the returned function is
// called. It reconciles on every snapshot, on every Set, and when another
// process writes the selection.
func (s *Store) Follow(src Source) func() {
	s.mu.Lock()
	s.src = src
	s.mu.Unlock()

	stopSnap := src.Subscribe(func(snap state.Snapshot) { s.Reconcile(snap.Boxes) })
	stopForeign := s.store.OnChange(func(c storage.Change) {
		if c.Key == Key && c.HasNew {
			s.Reconcile(src.Snapshot().Boxes)
		}
	})
	return func() {
		stopSnap()
		stopForeign()
		s.mu.Lock()
		s.src = nil
		s.mu.Unlock()
	}
}

// Subscribe registers fn for selection changes. fn receives nil when the
// selection is cleared.
func (s *Store) Subscribe(fn func(*box.Box)) func() { return s.item.Subscribe(fn) }

// Close stops following writes from other processes.
func (s *Store) Close() { s.item.Close() }
