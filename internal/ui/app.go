package ui

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/five82/recipunto/internal/achievements"
	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/notify"
	"github.com/five82/recipunto/internal/persist"
	"github.com/five82/recipunto/internal/selection"
	"github.com/five82/recipunto/internal/state"
	"github.com/five82/recipunto/internal/tasks"
	"github.com/five82/recipunto/internal/toggles"
)

// View represents the current active view.
type View int

const (
	ViewBoxes View = iota
	ViewNotifications
	ViewStats
)

type inputMode int

const (
	inputNone inputMode = iota
	inputSearch
	inputAmount
)

// Source supplies box snapshots. *boxsync.Syncer implements it.
type Source interface {
	Snapshot() state.Snapshot
}

// Refresher refetches the collection on demand. *boxsync.Syncer implements it.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// StatusFunc sets the fill level of a box.
type StatusFunc func(ctx context.Context, id string, amount int, isFull *bool) (box.Box, error)

// ErrOffline is reported for mutations when no StatusFunc is configured.
var ErrOffline = errors.New("offline: no backend configured")

// Options configures the UI. Source, Selection, Toggles, Search and
// Notifications are required.
type Options struct {
	Context       context.Context
	Source        Source
	UpdateStatus  StatusFunc
	Selection     *selection.Store
	Toggles       *toggles.Store
	Search        *persist.Item[string]
	Notifications *notify.Center
	Tracker       *achievements.Tracker
	Tasks         *tasks.List
	PollTick      time.Duration
}

// Model is the root application state for Bubble Tea.
type Model struct {
	// Configuration
	ctx           context.Context
	source        Source
	updateStatus  StatusFunc
	selection     *selection.Store
	toggles       *toggles.Store
	search        *persist.Item[string]
	notifications *notify.Center
	tracker       *achievements.Tracker
	tasks         *tasks.List
	pollTick      time.Duration
	keys          keyMap

	// UI state
	currentView View
	width       int
	height      int
	ready       bool
	showHelp    bool

	// Data state
	snapshot state.Snapshot

	// Box list state
	selectedRow int
	filter      box.Status

	// Notification list state
	notifRow int

	// Input line for search and amount edits
	mode      inputMode
	input     textinput.Model
	editingID string

	statsViewport viewport.Model

	flash      string
	flashIsErr bool
}

// New creates a new Bubble Tea model.
func New(opts Options) Model {
	ctx := opts.Context
	if ctx == nil {
		ctx = context.Background()
	}
	pollTick := opts.PollTick
	if pollTick <= 0 {
		pollTick = time.Second
	}

	input := textinput.New()
	input.CharLimit = 64

	return Model{
		ctx:           ctx,
		source:        opts.Source,
		updateStatus:  opts.UpdateStatus,
		selection:     opts.Selection,
		toggles:       opts.Toggles,
		search:        opts.Search,
		notifications: opts.Notifications,
		tracker:       opts.Tracker,
		tasks:         opts.Tasks,
		pollTick:      pollTick,
		keys:          DefaultKeyMap(),
		currentView:   ViewBoxes,
		filter:        box.StatusAll,
		input:         input,
	}
}

func (m Model) theme() Theme {
	return ThemeFor(m.toggles.Get(toggles.DarkMode))
}

// Init implements tea.Model.
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		tea.EnterAltScreen,
		tickCmd(m.pollTick),
		fetchSnapshotCmd(m.source),
	)
}

// Update implements tea.Model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		if !m.ready {
			m.statsViewport = viewport.New(msg.Width, max(msg.Height-2, 1))
		} else {
			m.statsViewport.Width = msg.Width
			m.statsViewport.Height = max(msg.Height-2, 1)
		}
		m.ready = true
		m.updateStatsViewport()
		return m, nil

	case tickMsg:
		return m.handleTick()

	case snapshotMsg:
		m.snapshot = state.Snapshot(msg)
		m.clampRows()
		m.updateStatsViewport()
		return m, nil

	case statusDoneMsg:
		if msg.err != nil {
			m.setFlash(msg.err.Error(), true)
		} else {
			m.setFlash("updated "+shortID(msg.box.ID)+" to "+box.FormatCapacity(msg.box.CurrentAmount, msg.box.Capacity), false)
		}
		return m, fetchSnapshotCmd(m.source)

	case refreshDoneMsg:
		if msg.err != nil {
			m.setFlash("refresh failed: "+msg.err.Error(), true)
		} else {
			m.setFlash("boxes refreshed", false)
		}
		return m, fetchSnapshotCmd(m.source)
	}

	return m, nil
}

// View implements tea.Model.
func (m Model) View() string {
	if !m.ready {
		return "Loading..."
	}
	if m.showHelp {
		return m.renderHelp()
	}
	return m.renderMain()
}

// handleKey processes keyboard input.
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if m.showHelp {
		m.showHelp = false
		return m, nil
	}
	if m.mode != inputNone {
		return m.handleInputKey(msg)
	}

	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit
	case key.Matches(msg, m.keys.Help):
		m.showHelp = true
		return m, nil
	case key.Matches(msg, m.keys.ToggleDark):
		m.toggles.Toggle(toggles.DarkMode)
		return m, nil
	case key.Matches(msg, m.keys.Tab):
		m.currentView = (m.currentView + 1) % 3
		return m, nil
	case key.Matches(msg, m.keys.ViewBoxes):
		m.currentView = ViewBoxes
		return m, nil
	case key.Matches(msg, m.keys.ViewNotifications):
		m.currentView = ViewNotifications
		return m, nil
	case key.Matches(msg, m.keys.ViewStats):
		m.currentView = ViewStats
		m.updateStatsViewport()
		return m, nil
	case key.Matches(msg, m.keys.Refresh):
		return m, m.refreshCmd()
	}

	switch m.currentView {
	case ViewBoxes:
		return m.handleBoxesKey(msg)
	case ViewNotifications:
		return m.handleNotificationsKey(msg)
	case ViewStats:
		var cmd tea.Cmd
		m.statsViewport, cmd = m.statsViewport.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleBoxesKey processes keyboard input for the box list.
func (m Model) handleBoxesKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.CycleFilter):
		m.filter = m.filter.Next()
		m.clampRows()
		return m, nil
	case key.Matches(msg, m.keys.Search):
		m.beginInput(inputSearch, m.search.Get(), "search: ")
		return m, textinput.Blink
	case key.Matches(msg, m.keys.ToggleCompact):
		m.toggles.Toggle(toggles.CompactView)
		return m, nil
	case key.Matches(msg, m.keys.ToggleStats):
		m.toggles.Toggle(toggles.ShowStats)
		return m, nil
	case key.Matches(msg, m.keys.Escape):
		if m.search.Get() != "" {
			m.search.Set("")
			m.clampRows()
			return m, nil
		}
		m.selection.Clear()
		return m, nil
	}

	boxes := m.visibleBoxes()
	if len(boxes) == 0 {
		return m, nil
	}
	current := boxes[min(m.selectedRow, len(boxes)-1)]

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.selectedRow < len(boxes)-1 {
			m.selectedRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.selectedRow > 0 {
			m.selectedRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.selectedRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.selectedRow = len(boxes) - 1
	case key.Matches(msg, m.keys.Select):
		m.selection.Set(&current)
	case key.Matches(msg, m.keys.UpdateAmount):
		m.editingID = current.ID
		m.beginInput(inputAmount, itoa(current.CurrentAmount), "amount: ")
		return m, textinput.Blink
	case key.Matches(msg, m.keys.ToggleFull):
		full := !current.IsFull
		return m, m.statusCmd(current.ID, current.CurrentAmount, &full)
	}
	return m, nil
}

// handleNotificationsKey processes keyboard input for the notification list.
func (m Model) handleNotificationsKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	list := m.notifications.List()
	if key.Matches(msg, m.keys.MarkAllRead) {
		m.notifications.MarkAllRead()
		return m, nil
	}
	if len(list) == 0 {
		return m, nil
	}
	m.notifRow = min(m.notifRow, len(list)-1)

	switch {
	case key.Matches(msg, m.keys.Down):
		if m.notifRow < len(list)-1 {
			m.notifRow++
		}
	case key.Matches(msg, m.keys.Up):
		if m.notifRow > 0 {
			m.notifRow--
		}
	case key.Matches(msg, m.keys.Top):
		m.notifRow = 0
	case key.Matches(msg, m.keys.Bottom):
		m.notifRow = len(list) - 1
	case key.Matches(msg, m.keys.Select):
		m.notifications.MarkRead(list[m.notifRow].ID)
	case key.Matches(msg, m.keys.Delete):
		m.notifications.Delete(list[m.notifRow].ID)
		if m.notifRow > 0 && m.notifRow >= len(list)-1 {
			m.notifRow--
		}
	}
	return m, nil
}

func (m *Model) beginInput(mode inputMode, value, prompt string) {
	m.mode = mode
	m.input.Prompt = prompt
	m.input.SetValue(value)
	m.input.CursorEnd()
	m.input.Focus()
}

func (m *Model) endInput() {
	m.mode = inputNone
	m.input.Blur()
	m.editingID = ""
}

// handleInputKey routes keys to the input line until it is confirmed or
// cancelled.
func (m Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case msg.Type == tea.KeyCtrlC:
		return m, tea.Quit
	case msg.Type == tea.KeyEsc:
		m.endInput()
		return m, nil
	case key.Matches(msg, m.keys.Confirm):
		value := strings.TrimSpace(m.input.Value())
		mode, id := m.mode, m.editingID
		m.endInput()
		switch mode {
		case inputSearch:
			m.search.Set(value)
			m.selectedRow = 0
			return m, nil
		case inputAmount:
			amount, ok := atoi(value)
			if !ok {
				m.setFlash("amount must be a whole number", true)
				return m, nil
			}
			return m, m.statusCmd(id, amount, nil)
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// handleTick processes the polling tick. Snapshots are only pulled while
// auto refresh is on.
func (m Model) handleTick() (tea.Model, tea.Cmd) {
	cmds := []tea.Cmd{tickCmd(m.pollTick)}
	if m.toggles.Get(toggles.AutoRefresh) {
		cmds = append(cmds, fetchSnapshotCmd(m.source))
	}
	return m, tea.Batch(cmds...)
}

func (m *Model) setFlash(text string, isErr bool) {
	m.flash = text
	m.flashIsErr = isErr
}

// visibleBoxes returns the snapshot boxes after the status filter and the
// search term.
func (m Model) visibleBoxes() []box.Box {
	boxes := box.Filter(m.snapshot.Boxes, m.filter)
	term := strings.ToLower(strings.TrimSpace(m.search.Get()))
	if term == "" {
		return boxes
	}
	out := boxes[:0]
	for _, b := range boxes {
		if matchesTerm(b, term) {
			out = append(out, b)
		}
	}
	return out
}

func matchesTerm(b box.Box, term string) bool {
	return strings.Contains(strings.ToLower(b.ID), term) ||
		strings.Contains(strings.ToLower(b.CreatedBy), term) ||
		strings.Contains(box.FormatCoordinates(b.Lat, b.Lng), term)
}

// clampRows keeps the cursors inside their lists.
func (m *Model) clampRows() {
	if n := len(m.visibleBoxes()); m.selectedRow >= n {
		m.selectedRow = max(n-1, 0)
	}
	if n := len(m.notifications.List()); m.notifRow >= n {
		m.notifRow = max(n-1, 0)
	}
}

// currentBox returns the box under the cursor.
func (m Model) currentBox() (box.Box, bool) {
	boxes := m.visibleBoxes()
	if len(boxes) == 0 {
		return box.Box{}, false
	}
	return boxes[min(m.selectedRow, len(boxes)-1)], true
}

// Messages

type tickMsg time.Time

type snapshotMsg state.Snapshot

type statusDoneMsg struct {
	box box.Box
	err error
}

type refreshDoneMsg struct{ err error }

// Commands

func tickCmd(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

func fetchSnapshotCmd(source Source) tea.Cmd {
	return func() tea.Msg {
		return snapshotMsg(source.Snapshot())
	}
}

func (m Model) statusCmd(id string, amount int, isFull *bool) tea.Cmd {
	fn, ctx := m.updateStatus, m.ctx
	return func() tea.Msg {
		if fn == nil {
			return statusDoneMsg{err: ErrOffline}
		}
		b, err := fn(ctx, id, amount, isFull)
		return statusDoneMsg{box: b, err: err}
	}
}

func (m Model) refreshCmd() tea.Cmd {
	r, ok := m.source.(Refresher)
	if !ok {
		return fetchSnapshotCmd(m.source)
	}
	ctx := m.ctx
	return func() tea.Msg {
		return refreshDoneMsg{err: r.Refresh(ctx)}
	}
}

// StaticSource serves a fixed collection, used when running offline from
// the cache.
func StaticSource(boxes []box.Box) Source {
	return staticSource{snap: state.Snapshot{Boxes: boxes, Loaded: true, Conn: state.Disconnected}}
}

type staticSource struct{ snap state.Snapshot }

func (s staticSource) Snapshot() state.Snapshot { return s.snap }

// Run starts the Bubble Tea program and blocks until the user quits or ctx
// is cancelled.
func Run(ctx context.Context, opts Options) error {
	if opts.Source == nil {
		return errors.New("ui requires a box source")
	}
	if opts.Context == nil {
		opts.Context = ctx
	}
	p := tea.NewProgram(New(opts), tea.WithAltScreen(), tea.WithContext(ctx))
	_, err := p.Run()
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
