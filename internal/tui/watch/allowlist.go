package watch

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/hookserver/internal/events"
	"github.com/mattjoyce/hookserver/internal/webhook"
)

// AllowlistState is what the dashboard knows about the receiver's allowlist,
// seeded from /healthz and kept current by allowlist.* events.
type AllowlistState struct {
	Bypassed  bool
	Blocks    int
	Origin    string
	FetchedAt time.Time
	Stale     bool

	Refreshes   int
	Failures    int
	LastError   string
	LastEventAt time.Time
}

type allowlistData struct {
	Blocks    int    `json:"blocks"`
	Origin    string `json:"origin"`
	FetchedAt string `json:"fetched_at"`
	Error     string `json:"error"`
}

func (s *AllowlistState) applyHealth(info webhook.AllowlistInfo) {
	s.Bypassed = info.Bypassed
	s.Blocks = info.Blocks
	s.Origin = info.Origin
	s.Stale = info.Stale
	if info.FetchedAt != nil {
		s.FetchedAt = *info.FetchedAt
	}
}

// apply folds an allowlist lifecycle event into s. It reports whether e was one.
func (s *AllowlistState) apply(e events.Event, now time.Time) bool {
	var d allowlistData
	switch e.Type {
	case events.AllowlistRefreshed, events.AllowlistSnapshot,
		events.AllowlistRefreshFailed, events.AllowlistInvalidated:
		_ = json.Unmarshal(e.Data, &d)
	default:
		return false
	}
	s.LastEventAt = now

	switch e.Type {
	case events.AllowlistRefreshed:
		s.Refreshes++
		s.Stale = false
		s.LastError = ""
		s.setList(d)
	case events.AllowlistSnapshot:
		s.Stale = true
		s.setList(d)
	case events.AllowlistRefreshFailed:
		s.Failures++
		s.Stale = true
		s.LastError = d.Error
	case events.AllowlistInvalidated:
		s.Stale = true
	}
	return true
}

func (s *AllowlistState) setList(d allowlistData) {
	s.Blocks = d.Blocks
	s.Origin = d.Origin
	if t, err := time.Parse(time.RFC3339Nano, d.FetchedAt); err == nil {
		s.FetchedAt = t
	}
}

func renderAllowlist(s AllowlistState, theme Theme, width int) string {
	var lines []string
	switch {
	case s.Bypassed:
		lines = append(lines, theme.Warning.Render(" Origin check bypassed"))
	default:
		state := theme.Accepted.Render("fresh")
		if s.Stale {
			state = theme.Warning.Render("stale")
		}
		fetched := "never"
		if !s.FetchedAt.IsZero() {
			fetched = s.FetchedAt.Local().Format("2006-01-02 15:04:05")
		}
		lines = append(lines,
			fmt.Sprintf(" %d blocks (%s) from %s, fetched %s", s.Blocks, state, orDash(s.Origin), fetched),
			fmt.Sprintf(" Refreshes: %d  Failures: %d", s.Refreshes, s.Failures),
		)
	}
	if s.LastError != "" {
		lines = append(lines, theme.Rejected.Render(" "+truncate(s.LastError, width-10)))
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		append([]string{theme.Title.Render("ALLOWLIST")}, lines...)...,
	)
	return theme.Border.Width(width - 4).Render(content)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func truncate(s string, n int) string {
	if n < 4 || len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
