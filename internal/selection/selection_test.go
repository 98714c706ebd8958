package selection

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/state"
	"github.com/five82/recipunto/internal/storage"
)

func openStore(t *testing.T, path string) *storage.Store {
	t.Helper()
	s, err := storage.Open(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestSetPersistsVersionedEnvelope(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")
	st := openStore(t, path)
	sel := New(st, nil)

	if _, ok := sel.Selected(); ok {
		t.Fatalf("new store should have no selection")
	}
	sel.Set(&box.Box{ID: "b1", Capacity: 50})

	raw, ok, err := st.GetItem(context.Background(), Key)
	if err != nil || !ok {
		t.Fatalf("stored selection missing: %v", err)
	}
	if !strings.HasPrefix(raw, `{"version":1,"selectedBox":{"id":"b1"`) {
		t.Fatalf("stored = %s", raw)
	}

	again := New(openStore(t, path), nil)
	got, ok := again.Selected()
	if !ok || got.ID != "b1" || got.Capacity != 50 {
		t.Fatalf("reloaded selection = %+v, %v", got, ok)
	}

	sel.Clear()
	if _, ok := sel.Selected(); ok {
		t.Fatalf("selection after Clear")
	}
}

func TestUnknownVersionIsDiscarded(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "storage.db"))
	if err := st.SetItem(context.Background(), Key, `{"version":2,"selectedBox":{"id":"b1"}}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if _, ok := New(st, nil).Selected(); ok {
		t.Fatalf("selection with unknown version should be discarded")
	}
}

func TestSetCopiesBox(t *testing.T) {
	sel := New(openStore(t, filepath.Join(t.TempDir(), "storage.db")), nil)
	b := box.Box{ID: "b1", CurrentAmount: 1}
	sel.Set(&b)
	b.CurrentAmount = 99
	if got, _ := sel.Selected(); got.CurrentAmount != 1 {
		t.Fatalf("selection aliased caller's box")
	}
}

func TestReconcile(t *testing.T) {
	sel := New(openStore(t, filepath.Join(t.TempDir(), "storage.db")), nil)
	sel.Set(&box.Box{ID: "b1", CurrentAmount: 5, Capacity: 50})

	if sel.Reconcile([]box.Box{{ID: "b1", CurrentAmount: 5, Capacity: 50}}) {
		t.Fatalf("identical box should not replace selection")
	}

	fresh := box.Box{ID: "b1", CurrentAmount: 30, Capacity: 50, Lat: 1}
	if !sel.Reconcile([]box.Box{{ID: "other"}, fresh}) {
		t.Fatalf("changed amount should replace selection")
	}
	if got, _ := sel.Selected(); got != fresh {
		t.Fatalf("selection = %+v, want %+v", got, fresh)
	}

	if sel.Reconcile([]box.Box{{ID: "other"}}) {
		t.Fatalf("missing id should leave selection alone")
	}
	if got, ok := sel.Selected(); !ok || got != fresh {
		t.Fatalf("selection changed after id vanished: %+v", got)
	}
}

type fakeSource struct {
	snap state.Snapshot
	fn   func(state.Snapshot)
}

func (f *fakeSource) Snapshot() state.Snapshot { return f.snap }

func (f *fakeSource) Subscribe(fn func(state.Snapshot)) func() {
	f.fn = fn
	return func() { f.fn = nil }
}

func TestFollowReconcilesOnSnapshot(t *testing.T) {
	sel := New(openStore(t, filepath.Join(t.TempDir(), "storage.db")), nil)
	sel.Set(&box.Box{ID: "b1", IsFull: false})

	var notified []*box.Box
	sel.Subscribe(func(b *box.Box) { notified = append(notified, b) })

	src := &fakeSource{}
	stop := sel.Follow(src)
	src.fn(state.Snapshot{Boxes: []box.Box{{ID: "b1", IsFull: true}}})
	stop()

	if got, _ := sel.Selected(); !got.IsFull {
		t.Fatalf("Follow did not reconcile")
	}
	if len(notified) != 1 || notified[0] == nil || !notified[0].IsFull {
		t.Fatalf("subscribers saw %v", notified)
	}
	if src.fn != nil {
		t.Fatalf("stop did not unsubscribe")
	}
}

func TestFollowReconcilesOnSet(t *testing.T) {
	sel := New(openStore(t, filepath.Join(t.TempDir(), "storage.db")), nil)
	src := &fakeSource{snap: state.Snapshot{Boxes: []box.Box{{ID: "b1", CurrentAmount: 30, Capacity: 50}}}}
	stop := sel.Follow(src)

	sel.Set(&box.Box{ID: "b1", CurrentAmount: 10, Capacity: 50})
	if got, _ := sel.Selected(); got.CurrentAmount != 30 {
		t.Fatalf("Set kept stale amount %d", got.CurrentAmount)
	}
	sel.Set(&box.Box{ID: "gone", CurrentAmount: 5})
	if got, _ := sel.Selected(); got.ID != "gone" || got.CurrentAmount != 5 {
		t.Fatalf("unknown box not selected as given: %+v", got)
	}

	stop()
	sel.Set(&box.Box{ID: "b1", CurrentAmount: 10, Capacity: 50})
	if got, _ := sel.Selected(); got.CurrentAmount != 10 {
		t.Fatalf("Set reconciled after stop")
	}
}

func TestFollowReconcilesForeignWrites(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")
	other := New(openStore(t, path), nil)
	store := openStore(t, path)
	sel := New(store, nil)

	src := &fakeSource{snap: state.Snapshot{Boxes: []box.Box{{ID: "b1", IsFull: true, Capacity: 50}}}}
	defer sel.Follow(src)()

	other.Set(&box.Box{ID: "b1", IsFull: false, Capacity: 50})
	if _, err := store.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	got, ok := sel.Selected()
	if !ok || got.ID != "b1" || !got.IsFull {
		t.Fatalf("foreign selection not reconciled: %+v, %v", got, ok)
	}
}
