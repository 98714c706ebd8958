package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/state"
	"github.com/five82/recipunto/internal/toggles"
)

// renderHeader renders the status bar.
func (m Model) renderHeader() string {
	th := m.theme()
	styles := th.Styles().WithBackground(th.Surface)
	bg := NewBgStyle(th.Surface)

	parts := []string{
		bg.Render("recipunto", styles.Logo),
		m.connBadge(styles, bg),
	}

	if !m.snapshot.Loaded {
		return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
	}

	if m.toggles.Get(toggles.ShowStats) {
		st := box.Summarize(m.snapshot.Boxes)
		parts = append(parts,
			bg.Render("Boxes:", styles.MutedText)+bg.Space()+bg.Render(itoa(st.Total), styles.Text),
			bg.Render("Full:", styles.MutedText)+bg.Space()+bg.Render(itoa(st.Full), styles.DangerText),
			bg.Render("Free:", styles.MutedText)+bg.Space()+bg.Render(itoa(st.Available), styles.SuccessText),
		)
		if m.width >= 100 {
			parts = append(parts,
				bg.Render("Use:", styles.MutedText)+bg.Space()+bg.Render(box.FormatPercentage(st.UtilizationRate, 1), styles.Text))
		}
	}

	if unread := m.notifications.Unread(); unread > 0 {
		parts = append(parts, bg.Render(fmt.Sprintf("✉ %d", unread), styles.WarningText.Bold(true)))
	}

	if sel, ok := m.selection.Selected(); ok {
		parts = append(parts, bg.Render("Sel:", styles.MutedText)+bg.Space()+bg.Render(shortID(sel.ID), styles.AccentText))
	}

	if !m.snapshot.LastUpdated.IsZero() {
		ago := humanizeDuration(time.Since(m.snapshot.LastUpdated))
		parts = append(parts, bg.Render("updated "+ago, styles.FaintText))
	}

	return styles.Header.Width(m.width).Render(bg.Join(parts, "  "))
}

// connBadge shows the sync state. Two or more consecutive failures read as
// offline even while reconnecting.
func (m Model) connBadge(styles Styles, bg BgStyle) string {
	snap := m.snapshot
	if snap.IsOffline() {
		label := "● OFFLINE"
		if snap.LastError != nil {
			label += " " + truncate(snap.LastError.Error(), 40)
		}
		return bg.Render(label, styles.DangerText)
	}
	switch snap.Conn {
	case state.Synced:
		return bg.Render("● LIVE", styles.SuccessText)
	case state.Connecting:
		return bg.Render("● CONNECTING", styles.WarningText.Bold(true))
	case state.Stale:
		return bg.Render("● STALE", styles.WarningText.Bold(true))
	default:
		if snap.Loaded {
			return bg.Render("● CACHED", styles.MutedText)
		}
		return bg.Render("● DISCONNECTED", styles.DangerText)
	}
}

// renderCommandBar renders the key hints, or the input line while editing.
func (m Model) renderCommandBar() string {
	th := m.theme()
	styles := th.Styles().WithBackground(th.Surface)
	bg := NewBgStyle(th.Surface)

	if m.mode != inputNone {
		return styles.Header.Width(m.width).Render(m.input.View())
	}

	type cmd struct{ key, desc string }
	var commands []cmd

	switch m.currentView {
	case ViewNotifications:
		commands = []cmd{
			{"j/k", "Navigate"},
			{"enter", "Read"},
			{"m", "All read"},
			{"D", "Delete"},
			{"1", "Boxes"},
			{"?", "More"},
		}
	case ViewStats:
		commands = []cmd{
			{"j/k", "Scroll"},
			{"1", "Boxes"},
			{"2", "Notifications"},
			{"?", "More"},
		}
	default:
		commands = []cmd{
			{"f", filterLabel(m.filter)},
			{"/", "Search"},
			{"enter", "Select"},
			{"u", "Amount"},
			{"x", "Full"},
			{"r", "Refresh"},
			{"2", "Notifications"},
			{"3", "Stats"},
			{"?", "More"},
		}
	}

	colon := bg.Sep(":")
	segments := make([]string, 0, len(commands)+2)
	for _, c := range commands {
		segments = append(segments, bg.Render(c.key, styles.AccentText)+colon+bg.Render(c.desc, styles.MutedText))
	}

	if term := m.search.Get(); term != "" && m.currentView == ViewBoxes {
		segments = append(segments, bg.Render("/"+truncate(term, 18), styles.AccentText))
	}

	if m.flash != "" {
		style := styles.InfoText
		if m.flashIsErr {
			style = styles.DangerText
		}
		segments = append(segments, bg.Render(truncate(m.flash, 60), style))
	}

	segments = append(segments, bg.Render("T", styles.AccentText)+colon+bg.Render(th.Name, styles.FaintText))
	return styles.Header.Width(m.width).Render(strings.Join(segments, bg.Spaces(2)))
}

// filterLabel returns the display label for a status filter.
func filterLabel(s box.Status) string {
	switch s {
	case box.StatusFull:
		return "Full"
	case box.StatusAvailable:
		return "Available"
	default:
		return "All"
	}
}

// renderTitledBox renders content in a frame with the title embedded in the
// top border.
func (m Model) renderTitledBox(title, content string, width, height int, focused bool) string {
	th := m.theme()
	borderColor, bgColor := th.Border, th.SurfaceAlt
	if focused {
		borderColor, bgColor = th.BorderFocus, th.FocusBg
	}
	bg := NewBgStyle(bgColor)
	borderStyle := lipgloss.NewStyle().Foreground(lipgloss.Color(borderColor))
	titleStyle := lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(th.Text))

	innerWidth := max(width-2, 0)
	titleLen := lipgloss.Width(title)
	leftPad := max((innerWidth-titleLen-2)/2, 0)
	rightPad := max(innerWidth-titleLen-2-leftPad, 0)

	top := bg.Render("┌", borderStyle) +
		bg.Render(strings.Repeat("─", leftPad), borderStyle) +
		bg.Render(" "+title+" ", titleStyle) +
		bg.Render(strings.Repeat("─", rightPad), borderStyle) +
		bg.Render("┐", borderStyle)
	bottom := bg.Render("└", borderStyle) +
		bg.Render(strings.Repeat("─", innerWidth), borderStyle) +
		bg.Render("┘", borderStyle)

	contentStyle := lipgloss.NewStyle().Width(innerWidth).MaxWidth(innerWidth).Background(lipgloss.Color(bgColor))
	lines := strings.Split(content, "\n")
	rows := make([]string, 0, max(height-2, 0))
	for i := 0; i < height-2; i++ {
		var line string
		if i < len(lines) {
			line = lines[i]
		}
		rows = append(rows, bg.Render("│", borderStyle)+contentStyle.Render(line)+bg.Render("│", borderStyle))
	}
	return top + "\n" + strings.Join(rows, "\n") + "\n" + bottom
}
