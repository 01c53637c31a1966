package watch

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/hookserver/internal/events"
)

const streamLines = 10

func renderEventStream(log []events.Event, theme Theme, width int) string {
	innerWidth := width - 4

	if len(log) == 0 {
		content := lipgloss.JoinVertical(lipgloss.Left,
			theme.Title.Render("AUDIT STREAM"),
			theme.Dim.Render("  Waiting for events..."),
		)
		return theme.Border.Width(innerWidth).Render(content)
	}

	var lines []string
	for i, e := range log {
		if i >= streamLines {
			break
		}
		lines = append(lines, formatEvent(e, theme))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("AUDIT STREAM"),
		lipgloss.NewStyle().Padding(0, 1).Render(strings.Join(lines, "\n")),
	)
	return theme.Border.Width(innerWidth).Render(content)
}

func formatEvent(e events.Event, theme Theme) string {
	ts := theme.Dim.Render(e.At.Format("15:04:05"))

	var style lipgloss.Style
	switch e.Type {
	case events.HookAccepted, events.AllowlistRefreshed:
		style = theme.Accepted
	case events.HookRejected, events.AllowlistRefreshFailed:
		style = theme.Rejected
	case events.AllowlistInvalidated, events.AllowlistSnapshot:
		style = theme.Warning
	default:
		style = theme.Dim
	}

	return fmt.Sprintf("%s %s %s", ts, style.Render(fmt.Sprintf("%-26s", e.Type)), describe(e))
}

// describe pulls the interesting fields out of an event payload.
func describe(e events.Event) string {
	data := make(map[string]any)
	_ = json.Unmarshal(e.Data, &data)

	var parts []string
	if id, ok := data["delivery_id"].(string); ok && id != "" {
		if len(id) > 8 {
			id = id[:8]
		}
		parts = append(parts, "["+id+"]")
	}
	if ev, ok := data["event"].(string); ok && ev != "" {
		parts = append(parts, ev)
	}
	if status, ok := data["status"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d", int(status)))
	}
	if reason, ok := data["reason"].(string); ok {
		parts = append(parts, reason)
	}
	if blocks, ok := data["blocks"].(float64); ok {
		parts = append(parts, fmt.Sprintf("%d blocks", int(blocks)))
	}
	if msg, ok := data["error"].(string); ok {
		parts = append(parts, msg)
	}

	if len(parts) == 0 {
		raw := string(e.Data)
		if len(raw) > 60 {
			raw = raw[:60] + "..."
		}
		return raw
	}
	return strings.Join(parts, " ")
}
