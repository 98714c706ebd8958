package ui

import (
	"fmt"
	"strings"

	"github.com/five82/recipunto/internal/achievements"
	"github.com/five82/recipunto/internal/box"
)

// updateStatsViewport rebuilds the stats page content.
func (m *Model) updateStatsViewport() {
	if !m.ready {
		return
	}
	m.statsViewport.SetContent(m.renderStats())
}

// renderStats lists collection stats, the user's activity, achievements and
// local tasks.
func (m Model) renderStats() string {
	styles := m.theme().Styles()
	section := func(title string) string { return styles.AccentText.Bold(true).Render(title) }
	row := func(name, value string) string {
		return "  " + styles.MutedText.Render(padRight(name, 22)) + styles.Text.Render(value)
	}

	var lines []string

	st := box.Summarize(m.snapshot.Boxes)
	lines = append(lines,
		section("Collection"),
		row("Boxes", itoa(st.Total)),
		row("Full / available", fmt.Sprintf("%d / %d", st.Full, st.Available)),
		row("Capacity used", fmt.Sprintf("%d of %d", st.UsedCapacity, st.TotalCapacity)),
		row("Utilization", box.FormatPercentage(st.UtilizationRate, 1)),
		"",
	)

	if m.tracker != nil {
		us := m.tracker.Stats()
		impact := achievements.ImpactOf(us)
		lines = append(lines,
			section("Activity"),
			row("Level", fmt.Sprintf("%d (%d points)", us.Level, us.Points)),
			row("Boxes created", itoa(us.BoxesCreated)),
			row("Status updates", itoa(us.BoxesUpdated)),
			row("Containers recycled", itoa(us.ContainersRecycled)),
			row("CO2 saved", fmt.Sprintf("%.1f kg", us.CO2Saved)),
			row("Streak", fmt.Sprintf("%d days", us.Streak)),
			row("Trees equivalent", itoa(impact.TreesEquivalent)),
			"",
			section("Achievements"),
		)
		for _, a := range m.tracker.Achievements() {
			mark := styles.FaintText.Render("○")
			if a.Earned {
				mark = styles.SuccessText.Render("●")
			}
			progress := fmt.Sprintf("%d/%d", min(a.Progress, a.MaxProgress), a.MaxProgress)
			lines = append(lines, fmt.Sprintf("  %s %s %s %s",
				mark,
				styles.Text.Render(padRight(a.Name, 28)),
				styles.MutedText.Render(padRight(progress, 9)),
				styles.FaintText.Render(fmt.Sprintf("%s · %d pts", a.Rarity, a.Points))))
		}
		lines = append(lines, "")
	}

	if m.tasks != nil {
		ts := m.tasks.Stats()
		lines = append(lines,
			section("Tasks"),
			row("Total", itoa(ts.Total)),
			row("Completed", fmt.Sprintf("%d (%d%%)", ts.Completed, ts.CompletionRate)),
			row("Pending", itoa(ts.Pending)),
			row("Overdue", itoa(ts.Overdue)),
		)
	}

	return strings.Join(lines, "\n")
}
