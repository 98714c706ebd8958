// Package ui provides the Bubble Tea terminal interface for recipunto.
//
// # Views
//
// Three views are available and cycle with Tab:
//
//   - Boxes (1): filtered, searchable box list beside a detail pane
//   - Notifications (2): the session's notifications, newest first
//   - Stats (3): collection totals, the user's activity and achievements,
//     and local task counts in a scrollable viewport
//
// # Data Flow
//
// The model polls its Source for a snapshot on every tick while the
// autoRefresh toggle is on. A *boxsync.Syncer is the live source; offline
// runs use StaticSource over the cached list. Mutations run as tea.Cmds and
// report back through statusDoneMsg, after which a fresh snapshot is pulled.
//
// Persistent UI state lives in the shared store, not in the model: the
// theme follows the darkMode toggle, row density follows compactView, the
// search term is the box-search-term item and the held box is the selection
// store. Another recipunto process changing any of them is reflected on
// the next render.
//
// # Key Bindings
//
// Bindings are declared once in keys.go and matched with key.Matches; the
// help overlay is generated from the same keyMap.
package ui
