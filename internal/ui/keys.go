package ui

import "github.com/charmbracelet/bubbles/key"

// keyMap defines all keyboard bindings for the application.
type keyMap struct {
	// Global
	Quit       key.Binding
	Help       key.Binding
	ToggleDark key.Binding
	Tab        key.Binding
	Escape     key.Binding
	Refresh    key.Binding

	// View switching
	ViewBoxes         key.Binding
	ViewNotifications key.Binding
	ViewStats         key.Binding

	// Box actions
	CycleFilter   key.Binding
	Select        key.Binding
	Search        key.Binding
	UpdateAmount  key.Binding
	ToggleFull    key.Binding
	ToggleCompact key.Binding
	ToggleStats   key.Binding

	// Notification actions
	MarkAllRead key.Binding
	Delete      key.Binding

	// Navigation
	Up     key.Binding
	Down   key.Binding
	Top    key.Binding
	Bottom key.Binding

	// Input
	Confirm key.Binding
}

// DefaultKeyMap returns the default key bindings.
func DefaultKeyMap() keyMap {
	return keyMap{
		Quit: key.NewBinding(
			key.WithKeys("ctrl+c", "q"),
			key.WithHelp("q", "Quit"),
		),
		Help: key.NewBinding(
			key.WithKeys("h", "?"),
			key.WithHelp("h/?", "Toggle help"),
		),
		ToggleDark: key.NewBinding(
			key.WithKeys("T"),
			key.WithHelp("T", "Dark/light theme"),
		),
		Tab: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "Cycle views"),
		),
		Escape: key.NewBinding(
			key.WithKeys("esc"),
			key.WithHelp("esc", "Clear selection"),
		),
		Refresh: key.NewBinding(
			key.WithKeys("r"),
			key.WithHelp("r", "Refetch boxes"),
		),

		ViewBoxes: key.NewBinding(
			key.WithKeys("1"),
			key.WithHelp("1", "Boxes"),
		),
		ViewNotifications: key.NewBinding(
			key.WithKeys("2"),
			key.WithHelp("2", "Notifications"),
		),
		ViewStats: key.NewBinding(
			key.WithKeys("3"),
			key.WithHelp("3", "Stats"),
		),

		CycleFilter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "Cycle filter"),
		),
		Select: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Select box"),
		),
		Search: key.NewBinding(
			key.WithKeys("/"),
			key.WithHelp("/", "Search boxes"),
		),
		UpdateAmount: key.NewBinding(
			key.WithKeys("u"),
			key.WithHelp("u", "Update amount"),
		),
		ToggleFull: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "Toggle full"),
		),
		ToggleCompact: key.NewBinding(
			key.WithKeys("c"),
			key.WithHelp("c", "Compact rows"),
		),
		ToggleStats: key.NewBinding(
			key.WithKeys("s"),
			key.WithHelp("s", "Header stats"),
		),

		MarkAllRead: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "Mark all read"),
		),
		Delete: key.NewBinding(
			key.WithKeys("D"),
			key.WithHelp("D", "Delete notification"),
		),

		Up: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/up", "Move up"),
		),
		Down: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/down", "Move down"),
		),
		Top: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "Go to top"),
		),
		Bottom: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "Go to bottom"),
		),

		Confirm: key.NewBinding(
			key.WithKeys("enter"),
			key.WithHelp("enter", "Confirm"),
		),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab, k.ViewBoxes, k.ViewNotifications, k.ViewStats},
		{k.Up, k.Down, k.Top, k.Bottom},
		{k.CycleFilter, k.Select, k.Search, k.UpdateAmount, k.ToggleFull, k.Refresh},
		{k.MarkAllRead, k.Delete},
		{k.ToggleDark, k.ToggleCompact, k.ToggleStats, k.Help, k.Quit},
	}
}
