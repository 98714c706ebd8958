package toggles

import (
	"context"
	"path/filepath"
	"testing"

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

func TestDefaultsAndToggle(t *testing.T) {
	s := New(openStore(t, filepath.Join(t.TempDir(), "storage.db")), nil)

	if s.State() != Defaults() {
		t.Fatalf("initial state = %+v, want defaults", s.State())
	}
	if s.Get(DarkMode) {
		t.Fatalf("darkMode should default off")
	}
	if !s.Toggle(DarkMode) || !s.Get(DarkMode) {
		t.Fatalf("Toggle(DarkMode) did not turn it on")
	}
	if s.Toggle(DarkMode) {
		t.Fatalf("second Toggle should turn it off")
	}
}

func TestSetManyAllAnyReset(t *testing.T) {
	s := New(openStore(t, filepath.Join(t.TempDir(), "storage.db")), nil)

	s.SetMany(map[Name]bool{ShowStats: false, CompactView: true})
	if s.Get(ShowStats) || !s.Get(CompactView) {
		t.Fatalf("SetMany not applied: %+v", s.State())
	}
	if s.All(ShowFilters, ShowStats) {
		t.Fatalf("All should be false when one toggle is off")
	}
	if !s.Any(ShowStats, CompactView) {
		t.Fatalf("Any should be true when one toggle is on")
	}
	if !s.All() || s.Any() {
		t.Fatalf("empty All/Any = %v/%v, want true/false", s.All(), s.Any())
	}

	s.Set(MapFullscreen, true)
	s.Reset()
	if s.State() != Defaults() {
		t.Fatalf("Reset state = %+v", s.State())
	}
}

func TestChangesPropagateAcrossProcesses(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storage.db")
	storeA := openStore(t, path)
	storeB := openStore(t, path)

	a := New(storeA, nil)
	b := New(storeB, nil)

	var seen []bool
	b.Subscribe(func(st State) { seen = append(seen, st.DarkMode) })

	a.Set(DarkMode, true)
	if _, err := storeB.Sync(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}
	if !b.Get(DarkMode) {
		t.Fatalf("other process did not observe darkMode")
	}
	if len(seen) != 1 || !seen[0] {
		t.Fatalf("subscriber saw %v", seen)
	}
}

func TestPartialStoredStateKeepsDefaults(t *testing.T) {
	st := openStore(t, filepath.Join(t.TempDir(), "storage.db"))
	if err := st.SetItem(context.Background(), Key, `{"darkMode":true}`); err != nil {
		t.Fatalf("seed: %v", err)
	}
	s := New(st, nil)
	if !s.Get(DarkMode) || !s.Get(SidebarOpen) {
		t.Fatalf("state = %+v, want darkMode on and defaults kept", s.State())
	}
}

func TestNames(t *testing.T) {
	if len(Names()) != 11 {
		t.Fatalf("Names() has %d entries", len(Names()))
	}
	for _, n := range Names() {
		got, ok := ParseName(n.String())
		if !ok || got != n {
			t.Fatalf("ParseName(%q) = %v, %v", n.String(), got, ok)
		}
	}
	if _, ok := ParseName("nope"); ok {
		t.Fatalf("ParseName accepted unknown name")
	}
	if Name(99).String() != "unknown" {
		t.Fatalf("out of range name string")
	}
}
