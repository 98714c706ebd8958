package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/progress"
	"github.com/charmbracelet/lipgloss"

	"github.com/five82/recipunto/internal/box"
	"github.com/five82/recipunto/internal/toggles"
)

// renderMain renders the full UI.
func (m Model) renderMain() string {
	var b strings.Builder
	b.WriteString(m.renderHeader())
	b.WriteString("\n")
	b.WriteString(m.renderCommandBar())
	b.WriteString("\n")
	b.WriteString(m.renderContent())
	return b.String()
}

// renderContent renders the main content area based on current view.
func (m Model) renderContent() string {
	switch m.currentView {
	case ViewNotifications:
		return m.renderNotifications()
	case ViewStats:
		return m.statsViewport.View()
	default:
		return m.renderBoxes()
	}
}

// renderBoxes renders the split list and detail layout.
func (m Model) renderBoxes() string {
	th := m.theme()
	styles := th.Styles()
	contentHeight := m.height - 2

	if !m.snapshot.Loaded {
		msg := styles.WarningText.Render("Loading boxes...")
		return lipgloss.Place(m.width, contentHeight, lipgloss.Center, lipgloss.Center, msg)
	}

	// Wide terminals give the detail pane more room
	listWidth := m.width * 40 / 100
	if m.width >= 160 {
		listWidth = m.width * 30 / 100
	}
	detailWidth := m.width - listWidth

	title := fmt.Sprintf("Boxes (%s) %d/%d", filterLabel(m.filter), len(m.visibleBoxes()), len(m.snapshot.Boxes))
	list := m.renderBoxList(listWidth-2, th.FocusBg, contentHeight-2)
	listPane := m.renderTitledBox(title, list, listWidth, contentHeight, true)

	var detail string
	if b, ok := m.detailBox(); ok {
		detail = m.renderBoxDetail(b, detailWidth-4)
	} else {
		detail = styles.MutedText.Render("No box matches")
	}
	detailPane := m.renderTitledBox("Details", detail, detailWidth, contentHeight, false)

	return lipgloss.JoinHorizontal(lipgloss.Top, listPane, detailPane)
}

// detailBox is the selected box when one is held, otherwise the box under
// the cursor.
func (m Model) detailBox() (box.Box, bool) {
	if sel, ok := m.selection.Selected(); ok {
		return sel, true
	}
	return m.currentBox()
}

// renderBoxList renders visible boxes as rows, scrolled so the cursor stays
// in view.
func (m Model) renderBoxList(width int, bgColor string, height int) string {
	boxes := m.visibleBoxes()
	if len(boxes) == 0 {
		return m.theme().Styles().MutedText.Render("No boxes")
	}

	start := 0
	if height > 0 && m.selectedRow >= height {
		start = m.selectedRow - height + 1
	}
	end := len(boxes)
	if height > 0 {
		end = min(end, start+height)
	}

	compact := m.toggles.Get(toggles.CompactView)
	selectedID := ""
	if sel, ok := m.selection.Selected(); ok {
		selectedID = sel.ID
	}

	th := m.theme()
	lines := make([]string, 0, end-start)
	for i := start; i < end; i++ {
		rowBg := bgColor
		if i == m.selectedRow {
			rowBg = th.SelectionBg
		}
		content := m.formatBoxRow(boxes[i], rowBg, compact, boxes[i].ID == selectedID)
		lines = append(lines, lipgloss.NewStyle().Background(lipgloss.Color(rowBg)).Width(width).Render(content))
	}
	return strings.Join(lines, "\n")
}

// formatBoxRow formats one row: "● id  cur/cap (pct%)  Status".
func (m Model) formatBoxRow(b box.Box, bgColor string, compact, held bool) string {
	th := m.theme()
	styles := th.Styles()
	bg := NewBgStyle(bgColor)

	marker := "●"
	if held {
		marker = "◆"
	}
	parts := []string{
		bg.Render(marker, lipgloss.NewStyle().Foreground(lipgloss.Color(th.FillColor(b)))),
		bg.Render(padRight(shortID(b.ID), 8), styles.Text),
	}
	if compact {
		parts = append(parts, bg.Render(box.FormatCapacityPercentage(b.CurrentAmount, b.Capacity), styles.MutedText))
		return bg.Join(parts, " ")
	}
	parts = append(parts, bg.Render(box.FormatCapacity(b.CurrentAmount, b.Capacity), styles.MutedText))
	status := styles.SuccessText
	if b.IsFull {
		status = styles.DangerText
	}
	parts = append(parts, bg.Render(box.FormatStatus(b.IsFull), status))
	return bg.Join(parts, "  ")
}

// renderBoxDetail renders the fields of one box.
func (m Model) renderBoxDetail(b box.Box, width int) string {
	th := m.theme()
	styles := th.Styles()

	label := func(s string) string { return styles.MutedText.Render(padRight(s, 14)) }
	var lines []string
	row := func(name, value string) { lines = append(lines, label(name)+styles.Text.Render(value)) }

	title := "Box " + shortID(b.ID)
	if sel, ok := m.selection.Selected(); ok && sel.ID == b.ID {
		title += styles.AccentText.Render("  (selected)")
	}
	lines = append(lines, styles.Text.Bold(true).Render(title), "")

	row("ID", b.ID)
	row("Coordinates", box.FormatCoordinates(b.Lat, b.Lng))
	row("Amount", box.FormatCapacity(b.CurrentAmount, b.Capacity))

	barWidth := max(min(width-14, 40), 10)
	bar := progress.New(
		progress.WithSolidFill(th.FillColor(b)),
		progress.WithoutPercentage(),
		progress.WithWidth(barWidth),
	)
	lines = append(lines, label("Fill")+bar.ViewAs(min(b.Fill(), 1)))

	status := styles.SuccessText.Render(box.FormatStatus(b.IsFull))
	if b.IsFull {
		status = styles.DangerText.Render(box.FormatStatus(b.IsFull))
	}
	lines = append(lines, label("Status")+status)

	if b.CreatedBy != "" {
		row("Created by", b.CreatedBy)
	}
	if !b.CreatedAt.IsZero() {
		row("Created", b.CreatedAt.Local().Format("2006-01-02 15:04"))
	}
	if !b.LastUpdated.IsZero() {
		row("Updated", b.LastUpdated.Local().Format("2006-01-02 15:04"))
	}
	if msgs := box.ValidateBox(b); len(msgs) > 0 {
		lines = append(lines, "")
		for _, msg := range msgs {
			lines = append(lines, styles.WarningText.Render("! "+msg))
		}
	}
	return strings.Join(lines, "\n")
}
