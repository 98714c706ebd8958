package ui

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/notify"
	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/selection"
	"github.com/five82/recipunto/internal/state"
	"github.com/five82/recipunto/internal/storage"
	"github.com/five82/recipunto/internal/toggles"
)

type fakeSource struct {
	snap      state.Snapshot
	refreshes int
}

func (f *fakeSource) Snapshot() state.Snapshot { return f.snap }

func (f *fakeSource) Refresh(context.Context) error {
	f.refreshes++
	return nil
}

type statusCall struct {
	id     string
	amount int
	isFull *bool
}

type fakeUpdater struct {
	mu    sync.Mutex
	calls []statusCall
}

func (f *fakeUpdater) update(_ context.Context, id string, amount int, isFull *bool) (box.Box, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, statusCall{id: id, amount: amount, isFull: isFull})
	return box.Box{ID: id, CurrentAmount: amount, Capacity: 10}, nil
}

type harness struct {
	source    *fakeSource
	updater   *fakeUpdater
	selection *selection.Store
	toggles   *toggles.Store
	search    *persist.Item[string]
	center    *notify.Center
}

func testBoxes() []box.Box {
	return []box.Box{
		{ID: "aaaa-1", Lat: 40.41, Lng: -3.70, CurrentAmount: 2, Capacity: 10},
		{ID: "bbbb-2", Lat: 41.38, Lng: 2.17, CurrentAmount: 10, Capacity: 10, IsFull: true},
		{ID: "cccc-3", Lat: 37.39, Lng: -5.98, CurrentAmount: 5, Capacity: 20},
	}
}

func newHarness(t *testing.T, withUpdater bool) (Model, *harness) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "storage.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	h := &harness{
		source:    &fakeSource{snap: state.Snapshot{Boxes: testBoxes(), Loaded: true, Conn: state.Synced}},
		updater:   &fakeUpdater{},
		selection: selection.New(store, nil),
		toggles:   toggles.New(store, nil),
		search:    persist.NewWithCodec(store, "box-search-term", "", persist.String()),
		center:    notify.NewCenter(notify.Options{}),
	}
	opts := Options{
		Source:        h.source,
		Selection:     h.selection,
		Toggles:       h.toggles,
		Search:        h.search,
		Notifications: h.center,
	}
	if withUpdater {
		opts.UpdateStatus = h.updater.update
	}
	m := New(opts)
	m = update(t, m, tea.WindowSizeMsg{Width: 120, Height: 40})
	m = update(t, m, snapshotMsg(h.source.Snapshot()))
	return m, h
}

func update(t *testing.T, m Model, msg tea.Msg) Model {
	t.Helper()
	next, _ := m.Update(msg)
	return next.(Model)
}

func updateCmd(t *testing.T, m Model, msg tea.Msg) (Model, tea.Cmd) {
	t.Helper()
	next, cmd := m.Update(msg)
	return next.(Model), cmd
}

func runes(s string) tea.KeyMsg { return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)} }

func TestNavigateAndSelect(t *testing.T) {
	m, h := newHarness(t, true)

	m = update(t, m, runes("j"))
	if m.selectedRow != 1 {
		t.Fatalf("selectedRow = %d, want 1", m.selectedRow)
	}
	m = update(t, m, runes("G"))
	if m.selectedRow != 2 {
		t.Fatalf("selectedRow after G = %d, want 2", m.selectedRow)
	}
	m = update(t, m, runes("j"))
	if m.selectedRow != 2 {
		t.Fatalf("selectedRow past end = %d, want 2", m.selectedRow)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	sel, ok := h.selection.Selected()
	if !ok || sel.ID != "cccc-3" {
		t.Fatalf("selected = %+v, %v", sel, ok)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if _, ok := h.selection.Selected(); ok {
		t.Fatalf("esc did not clear the selection")
	}
}

func TestCycleFilter(t *testing.T) {
	m, _ := newHarness(t, true)

	m = update(t, m, runes("G"))
	m = update(t, m, runes("f"))
	if m.filter != box.StatusFull {
		t.Fatalf("filter = %q, want full", m.filter)
	}
	got := m.visibleBoxes()
	if len(got) != 1 || got[0].ID != "bbbb-2" {
		t.Fatalf("visible = %+v", got)
	}
	if m.selectedRow != 0 {
		t.Fatalf("selectedRow = %d, want clamped to 0", m.selectedRow)
	}

	m = update(t, m, runes("f"))
	if m.filter != box.StatusAvailable || len(m.visibleBoxes()) != 2 {
		t.Fatalf("available filter = %q, %d boxes", m.filter, len(m.visibleBoxes()))
	}
	m = update(t, m, runes("f"))
	if m.filter != box.StatusAll {
		t.Fatalf("filter = %q, want all", m.filter)
	}
}

func TestSearchPersistsTerm(t *testing.T) {
	m, h := newHarness(t, true)

	m = update(t, m, runes("/"))
	if m.mode != inputSearch {
		t.Fatalf("mode = %v, want search", m.mode)
	}
	m = update(t, m, runes("bbbb"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if m.mode != inputNone {
		t.Fatalf("input still open")
	}
	if got := h.search.Get(); got != "bbbb" {
		t.Fatalf("search = %q, want bbbb", got)
	}
	if got := m.visibleBoxes(); len(got) != 1 || got[0].ID != "bbbb-2" {
		t.Fatalf("visible = %+v", got)
	}

	// Esc clears the term before touching the selection.
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if got := h.search.Get(); got != "" {
		t.Fatalf("search after esc = %q", got)
	}
	if len(m.visibleBoxes()) != 3 {
		t.Fatalf("visible after esc = %d", len(m.visibleBoxes()))
	}
}

func TestSearchCancelKeepsTerm(t *testing.T) {
	m, h := newHarness(t, true)
	h.search.Set("aaaa")

	m = update(t, m, runes("/"))
	m = update(t, m, runes("zz"))
	m = update(t, m, tea.KeyMsg{Type: tea.KeyEsc})
	if m.mode != inputNone {
		t.Fatalf("esc did not close input")
	}
	if got := h.search.Get(); got != "aaaa" {
		t.Fatalf("search = %q, want aaaa", got)
	}
}

func TestUpdateAmount(t *testing.T) {
	m, h := newHarness(t, true)

	m = update(t, m, runes("u"))
	if m.mode != inputAmount || m.editingID != "aaaa-1" {
		t.Fatalf("mode = %v editing %q", m.mode, m.editingID)
	}
	if got := m.input.Value(); got != "2" {
		t.Fatalf("input prefilled with %q, want 2", got)
	}

	m.input.SetValue("7")
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd == nil {
		t.Fatalf("expected a status command")
	}
	msg := cmd()
	if len(h.updater.calls) != 1 {
		t.Fatalf("calls = %d, want 1", len(h.updater.calls))
	}
	call := h.updater.calls[0]
	if call.id != "aaaa-1" || call.amount != 7 || call.isFull != nil {
		t.Fatalf("call = %+v", call)
	}

	m = update(t, m, msg)
	if m.flashIsErr || !strings.Contains(m.flash, "7/10") {
		t.Fatalf("flash = %q (err %v)", m.flash, m.flashIsErr)
	}
}

func TestUpdateAmountRejectsNonNumbers(t *testing.T) {
	m, h := newHarness(t, true)

	m = update(t, m, runes("u"))
	m.input.SetValue("muchos")
	m, cmd := updateCmd(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if cmd != nil {
		t.Fatalf("unexpected command for invalid amount")
	}
	if !m.flashIsErr {
		t.Fatalf("flash = %q, want an error", m.flash)
	}
	if len(h.updater.calls) != 0 {
		t.Fatalf("updater called %d times", len(h.updater.calls))
	}
}

func TestToggleFull(t *testing.T) {
	m, h := newHarness(t, true)

	m = update(t, m, runes("j"))
	_, cmd := updateCmd(t, m, runes("x"))
	if cmd == nil {
		t.Fatalf("expected a status command")
	}
	cmd()
	call := h.updater.calls[0]
	if call.id != "bbbb-2" || call.amount != 10 || call.isFull == nil || *call.isFull {
		t.Fatalf("call = %+v, want bbbb-2 amount 10 isFull=false", call)
	}
}

func TestOfflineMutationReportsError(t *testing.T) {
	m, _ := newHarness(t, false)

	_, cmd := updateCmd(t, m, runes("x"))
	msg := cmd()
	done, ok := msg.(statusDoneMsg)
	if !ok || done.err != ErrOffline {
		t.Fatalf("msg = %#v, want ErrOffline", msg)
	}
	m = update(t, m, msg)
	if !m.flashIsErr {
		t.Fatalf("flash = %q, want error", m.flash)
	}
}

func TestRefreshUsesRefresher(t *testing.T) {
	m, h := newHarness(t, true)

	_, cmd := updateCmd(t, m, runes("r"))
	if _, ok := cmd().(refreshDoneMsg); !ok {
		t.Fatalf("refresh command returned the wrong message")
	}
	if h.source.refreshes != 1 {
		t.Fatalf("refreshes = %d, want 1", h.source.refreshes)
	}
}

func TestThemeFollowsDarkModeToggle(t *testing.T) {
	m, h := newHarness(t, true)

	before := m.theme().Name
	m = update(t, m, runes("T"))
	if !h.toggles.Get(toggles.DarkMode) {
		t.Fatalf("darkMode not toggled")
	}
	if after := m.theme().Name; after == before || after != "Nightfox" {
		t.Fatalf("theme = %q after toggle (was %q)", after, before)
	}
}

func TestNotificationActions(t *testing.T) {
	m, h := newHarness(t, true)
	h.center.Add(notify.Notification{Type: notify.System, Title: "older", Message: "first"})
	h.center.Add(notify.Notification{Type: notify.BoxFull, Title: "newer", Message: "second"})

	m = update(t, m, runes("2"))
	if m.currentView != ViewNotifications {
		t.Fatalf("view = %v, want notifications", m.currentView)
	}

	m = update(t, m, tea.KeyMsg{Type: tea.KeyEnter})
	if got := h.center.Unread(); got != 1 {
		t.Fatalf("unread = %d, want 1", got)
	}
	if !h.center.List()[0].Read {
		t.Fatalf("newest notification not marked read")
	}

	m = update(t, m, runes("m"))
	if got := h.center.Unread(); got != 0 {
		t.Fatalf("unread after mark all = %d", got)
	}

	m = update(t, m, runes("j"))
	m = update(t, m, runes("D"))
	list := h.center.List()
	if len(list) != 1 || list[0].Title != "newer" {
		t.Fatalf("list after delete = %+v", list)
	}
	if m.notifRow != 0 {
		t.Fatalf("notifRow = %d, want 0", m.notifRow)
	}
}

func TestTabCyclesViews(t *testing.T) {
	m, _ := newHarness(t, true)
	want := []View{ViewNotifications, ViewStats, ViewBoxes}
	for _, v := range want {
		m = update(t, m, tea.KeyMsg{Type: tea.KeyTab})
		if m.currentView != v {
			t.Fatalf("view = %v, want %v", m.currentView, v)
		}
	}
}

func TestViewRenders(t *testing.T) {
	m, h := newHarness(t, true)
	h.selection.Set(&testBoxes()[1])

	out := m.View()
	for _, want := range []string{"recipunto", "LIVE", "aaaa", "bbbb", "Details"} {
		if !strings.Contains(out, want) {
			t.Fatalf("view missing %q", want)
		}
	}

	m = update(t, m, runes("3"))
	if out := m.View(); !strings.Contains(out, "Collection") {
		t.Fatalf("stats view missing Collection section")
	}

	m = update(t, m, runes("?"))
	if out := m.View(); !strings.Contains(out, "Keyboard Shortcuts") {
		t.Fatalf("help overlay not rendered")
	}
	m = update(t, m, runes("z"))
	if m.showHelp {
		t.Fatalf("any key should close help")
	}
}

func TestStaticSource(t *testing.T) {
	snap := StaticSource(testBoxes()).Snapshot()
	if !snap.Loaded || len(snap.Boxes) != 3 || snap.Conn != state.Disconnected {
		t.Fatalf("snapshot = %+v", snap)
	}
}
