package watch

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

// Totals counts every delivery seen since the dashboard started.
type Totals struct {
	Accepted int
	Rejected int
}

func renderHeader(status string, connected bool, handlers int, totals Totals, pulse Pulse, theme Theme, width int, now time.Time) string {
	innerWidth := width - 4

	statusText := theme.Accepted.Render("OK")
	switch {
	case !connected:
		statusText = theme.Rejected.Render("CONNECTING")
	case status == "degraded":
		statusText = theme.Warning.Render("DEGRADED")
	case status != "ok" && status != "":
		statusText = theme.Rejected.Render(strings.ToUpper(status))
	}

	last := "never"
	if !pulse.Last().IsZero() {
		last = fmt.Sprintf("%s ago", now.Sub(pulse.Last()).Round(time.Second))
	}

	title := " HOOKSERVER WATCH"
	clock := theme.Dim.Render(now.Format("15:04:05"))
	pad := innerWidth - lipgloss.Width(title) - lipgloss.Width(clock) - 4
	if pad < 1 {
		pad = 1
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		title+strings.Repeat(" ", pad)+clock+" ",
		fmt.Sprintf(" %s  Handlers: %d  Accepted: %s  Rejected: %s",
			statusText,
			handlers,
			theme.Accepted.Render(fmt.Sprint(totals.Accepted)),
			theme.Rejected.Render(fmt.Sprint(totals.Rejected)),
		),
		fmt.Sprintf(" Last delivery: %s %s", last, pulse.Render(theme)),
	)
	return theme.Border.Width(innerWidth).Render(content)
}
