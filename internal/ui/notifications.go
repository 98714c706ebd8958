package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/five82/recipunto/internal/notify"
)

// renderNotifications renders the notification list, newest first.
func (m Model) renderNotifications() string {
	th := m.theme()
	styles := th.Styles()
	contentHeight := m.height - 2

	list := m.notifications.List()
	title := fmt.Sprintf("Notifications (%d unread)", m.notifications.Unread())
	if len(list) == 0 {
		empty := styles.MutedText.Render("No notifications")
		return m.renderTitledBox(title, empty, m.width, contentHeight, true)
	}

	innerWidth := m.width - 2
	perItem := 2
	visible := max((contentHeight-2)/perItem, 1)
	start := 0
	if m.notifRow >= visible {
		start = m.notifRow - visible + 1
	}
	end := min(len(list), start+visible)

	lines := make([]string, 0, (end-start)*perItem)
	for i := start; i < end; i++ {
		rowBg := th.FocusBg
		if i == m.notifRow {
			rowBg = th.SelectionBg
		}
		first, second := m.formatNotification(list[i], rowBg)
		style := lipgloss.NewStyle().Background(lipgloss.Color(rowBg)).Width(innerWidth)
		lines = append(lines, style.Render(first), style.Render(second))
	}
	return m.renderTitledBox(title, strings.Join(lines, "\n"), m.width, contentHeight, true)
}

// formatNotification returns the title line and the message line.
func (m Model) formatNotification(n notify.Notification, bgColor string) (string, string) {
	th := m.theme()
	styles := th.Styles()
	bg := NewBgStyle(bgColor)

	marker := bg.Render(" ", styles.Text)
	if !n.Read {
		marker = bg.Render("●", styles.AccentText)
	}
	first := bg.Join([]string{
		marker,
		bg.Render(padRight(typeLabel(n.Type), 11), typeStyle(styles, n.Type)),
		bg.Render(n.Title, styles.Text.Bold(!n.Read)),
		bg.Render(humanizeDuration(time.Since(n.Timestamp)), styles.FaintText),
	}, " ")
	second := bg.Spaces(2) + bg.Render(truncate(n.Message, max(m.width-8, 10)), styles.MutedText)
	return first, second
}

func typeLabel(t notify.Type) string {
	switch t {
	case notify.BoxFull:
		return "box full"
	case notify.NewBox:
		return "new box"
	case notify.Achievement:
		return "achievement"
	case notify.Warning:
		return "warning"
	default:
		return "system"
	}
}

func typeStyle(s Styles, t notify.Type) lipgloss.Style {
	switch t {
	case notify.BoxFull, notify.Warning:
		return s.DangerText
	case notify.NewBox:
		return s.InfoText
	case notify.Achievement:
		return s.SuccessText
	default:
		return s.MutedText
	}
}
