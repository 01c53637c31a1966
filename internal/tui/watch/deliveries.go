package watch

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/hookserver/internal/events"
)

// noEvent labels deliveries rejected before the event header was read.
const noEvent = "(none)"

// EventStats aggregates deliveries for one event name.
type EventStats struct {
	Event      string
	Accepted   int
	Rejected   int
	Unhandled  int
	LastStatus int
	LastReason string
	LastSeen   time.Time
}

type hookData struct {
	Event      string `json:"event"`
	DeliveryID string `json:"delivery_id"`
	Stage      string `json:"stage"`
	Status     int    `json:"status"`
	Reason     string `json:"reason"`
	Handled    bool   `json:"handled"`
}

// updateDeliveries folds a hook.accepted or hook.rejected event into stats.
// It reports whether e was a delivery.
func updateDeliveries(stats map[string]*EventStats, e events.Event, now time.Time) bool {
	if e.Type != events.HookAccepted && e.Type != events.HookRejected {
		return false
	}
	var d hookData
	if err := json.Unmarshal(e.Data, &d); err != nil {
		return false
	}
	name := d.Event
	if name == "" {
		name = noEvent
	}
	s, ok := stats[name]
	if !ok {
		s = &EventStats{Event: name}
		stats[name] = s
	}

	s.LastStatus = d.Status
	s.LastSeen = now
	if e.Type == events.HookRejected {
		s.Rejected++
		s.LastReason = d.Reason
	} else {
		s.Accepted++
		s.LastReason = ""
		if !d.Handled {
			s.Unhandled++
		}
	}
	return true
}

// sortedStats orders by most recent activity.
func sortedStats(stats map[string]*EventStats) []*EventStats {
	out := make([]*EventStats, 0, len(stats))
	for _, s := range stats {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].LastSeen.Equal(out[j].LastSeen) {
			return out[i].LastSeen.After(out[j].LastSeen)
		}
		return out[i].Event < out[j].Event
	})
	return out
}

func newDeliveryTable() table.Model {
	columns := []table.Column{
		{Title: "Event", Width: 24},
		{Title: "OK", Width: 6},
		{Title: "Rejected", Width: 9},
		{Title: "Unused", Width: 7},
		{Title: "Last", Width: 5},
		{Title: "Reason", Width: 22},
		{Title: "Seen", Width: 9},
	}
	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(true),
		table.WithHeight(8),
	)
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(false)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57")).
		Bold(false)
	t.SetStyles(s)
	return t
}

func deliveryRows(stats []*EventStats) []table.Row {
	rows := make([]table.Row, 0, len(stats))
	for _, s := range stats {
		last := "-"
		if s.LastStatus != 0 {
			last = strconv.Itoa(s.LastStatus)
		}
		rows = append(rows, table.Row{
			s.Event,
			strconv.Itoa(s.Accepted),
			strconv.Itoa(s.Rejected),
			strconv.Itoa(s.Unhandled),
			last,
			s.LastReason,
			s.LastSeen.Format("15:04:05"),
		})
	}
	return rows
}

func renderDeliveries(t table.Model, empty bool, theme Theme, width int) string {
	body := t.View()
	if empty {
		body = theme.Dim.Render("  No deliveries yet")
	}
	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.Title.Render("DELIVERIES"),
		body,
	)
	return theme.Border.Width(width - 4).Render(content)
}
