package watch

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookserver/internal/events"
	"github.com/mattjoyce/hookserver/internal/webhook"
)

func hookEvent(t *testing.T, id int64, typ string, data map[string]any) events.Event {
	t.Helper()
	raw, err := json.Marshal(data)
	require.NoError(t, err)
	return events.Event{ID: id, Type: typ, At: time.Now(), Data: raw}
}

func TestReadStream(t *testing.T) {
	stream := strings.Join([]string{
		": keep-alive",
		"",
		"id: 7",
		"event: hook.accepted",
		`data: {"event":"push"}`,
		"",
		"id: 8",
		"event: allowlist.refreshed",
		`data: {"blocks":3}`,
		"",
		"id: 9",
		"event: empty",
		"",
	}, "\n")

	ch := make(chan events.Event, 10)
	require.NoError(t, readStream(strings.NewReader(stream), ch))
	close(ch)

	var got []events.Event
	for e := range ch {
		got = append(got, e)
	}
	require.Len(t, got, 2)
	assert.Equal(t, int64(7), got[0].ID)
	assert.Equal(t, events.HookAccepted, got[0].Type)
	assert.JSONEq(t, `{"event":"push"}`, string(got[0].Data))
	assert.Equal(t, int64(8), got[1].ID)
	assert.Equal(t, events.AllowlistRefreshed, got[1].Type)
}

func TestSubscribeSendsTokenAndResumeID(t *testing.T) {
	headers := make(chan http.Header, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/admin/events", r.URL.Path)
		headers <- r.Header.Clone()
		w.Header().Set("Content-Type", "text/event-stream")
		fmt.Fprint(w, "id: 12\nevent: hook.rejected\ndata: {\"status\":403}\n\n")
	}))
	defer srv.Close()

	ch := make(chan events.Event, 1)
	msg := subscribe(srv.URL, "adm", 11, ch)()

	closed, ok := msg.(streamClosedMsg)
	require.True(t, ok, "got %T", msg)
	assert.NoError(t, closed.err)
	h := <-headers
	assert.Equal(t, "Bearer adm", h.Get("Authorization"))
	assert.Equal(t, "11", h.Get("Last-Event-ID"))

	e := <-ch
	assert.Equal(t, int64(12), e.ID)
	assert.Equal(t, events.HookRejected, e.Type)
}

func TestSubscribeUnauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
	}))
	defer srv.Close()

	msg := subscribe(srv.URL, "wrong", 0, make(chan events.Event, 1))()
	closed, ok := msg.(streamClosedMsg)
	require.True(t, ok)
	require.Error(t, closed.err)
	assert.Contains(t, closed.err.Error(), "401")
}

func TestFetchHealth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusServiceUnavailable)
		_ = json.NewEncoder(w).Encode(webhook.HealthResponse{Status: "unavailable", Handlers: 2})
	}))
	defer srv.Close()

	msg := fetchHealth(srv.URL)
	h, ok := msg.(healthMsg)
	require.True(t, ok, "got %T", msg)
	assert.Equal(t, "unavailable", h.Status)
	assert.Equal(t, 2, h.Handlers)
}

func TestUpdateDeliveries(t *testing.T) {
	stats := make(map[string]*EventStats)
	t0 := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

	assert.True(t, updateDeliveries(stats, hookEvent(t, 1, events.HookAccepted,
		map[string]any{"event": "push", "status": 200, "handled": true}), t0))
	assert.True(t, updateDeliveries(stats, hookEvent(t, 2, events.HookAccepted,
		map[string]any{"event": "push", "status": 200, "handled": false}), t0.Add(time.Second)))
	assert.True(t, updateDeliveries(stats, hookEvent(t, 3, events.HookRejected,
		map[string]any{"event": "", "status": 403, "reason": "forbidden_origin"}), t0.Add(2*time.Second)))
	assert.False(t, updateDeliveries(stats, hookEvent(t, 4, events.AllowlistRefreshed,
		map[string]any{"blocks": 3}), t0))

	push := stats["push"]
	require.NotNil(t, push)
	assert.Equal(t, 2, push.Accepted)
	assert.Equal(t, 1, push.Unhandled)
	assert.Equal(t, 200, push.LastStatus)

	none := stats[noEvent]
	require.NotNil(t, none)
	assert.Equal(t, 1, none.Rejected)
	assert.Equal(t, "forbidden_origin", none.LastReason)

	sorted := sortedStats(stats)
	require.Len(t, sorted, 2)
	assert.Equal(t, noEvent, sorted[0].Event, "most recent first")

	rows := deliveryRows(sorted)
	assert.Equal(t, "403", rows[0][4])
}

func TestAllowlistStateApply(t *testing.T) {
	var s AllowlistState
	now := time.Now()
	fetched := now.Add(-time.Minute).UTC()

	assert.True(t, s.apply(hookEvent(t, 1, events.AllowlistRefreshed, map[string]any{
		"blocks": 4, "origin": "upstream", "fetched_at": fetched.Format(time.RFC3339Nano),
	}), now))
	assert.Equal(t, 4, s.Blocks)
	assert.Equal(t, "upstream", s.Origin)
	assert.True(t, s.FetchedAt.Equal(fetched))
	assert.False(t, s.Stale)

	s.apply(hookEvent(t, 2, events.AllowlistRefreshFailed, map[string]any{"error": "boom"}), now)
	assert.True(t, s.Stale)
	assert.Equal(t, 1, s.Failures)
	assert.Equal(t, "boom", s.LastError)
	assert.Equal(t, 4, s.Blocks, "failed refresh keeps the list")

	s.apply(hookEvent(t, 3, events.AllowlistRefreshed, map[string]any{"blocks": 5}), now)
	assert.False(t, s.Stale)
	assert.Empty(t, s.LastError)
	assert.Equal(t, 2, s.Refreshes)

	s.apply(hookEvent(t, 4, events.AllowlistInvalidated, nil), now)
	assert.True(t, s.Stale)

	assert.False(t, s.apply(hookEvent(t, 5, events.HookAccepted, nil), now))
}

func TestModelUpdate(t *testing.T) {
	m := New("http://127.0.0.1:1", "adm")
	fixed := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return fixed }

	next, cmd := m.Update(eventMsg(hookEvent(t, 3, events.HookAccepted, map[string]any{"event": "ping", "status": 200, "handled": true})))
	require.NotNil(t, cmd, "keeps receiving")
	model := next.(Model)
	next, _ = model.Update(eventMsg(hookEvent(t, 4, events.HookRejected, map[string]any{"event": "push", "status": 400, "reason": "wrong_signature"})))
	model = next.(Model)

	assert.Equal(t, Totals{Accepted: 1, Rejected: 1}, model.totals)
	assert.Equal(t, int64(4), model.lastID)
	assert.True(t, model.connected)
	assert.Len(t, model.log, 2)
	assert.Equal(t, int64(4), model.log[0].ID, "newest first")
	assert.Len(t, model.table.Rows(), 2)
	assert.Equal(t, fixed, model.pulse.Last())

	next, _ = model.Update(healthMsg(webhook.HealthResponse{
		Status:    "degraded",
		Handlers:  3,
		Allowlist: webhook.AllowlistInfo{Blocks: 9, Origin: "snapshot", Stale: true},
	}))
	model = next.(Model)
	assert.Equal(t, "degraded", model.status)
	assert.Equal(t, 3, model.handlers)
	assert.Equal(t, 9, model.allowlist.Blocks)

	next, _ = model.Update(streamClosedMsg{})
	model = next.(Model)
	assert.False(t, model.connected)
	assert.Contains(t, model.lastError, "reconnecting")

	next, _ = model.Update(tea.WindowSizeMsg{Width: 120, Height: 40})
	model = next.(Model)
	view := model.View()
	assert.Contains(t, view, "HOOKSERVER WATCH")
	assert.Contains(t, view, "CONNECTING")
	assert.Contains(t, view, "wrong_signature")
}

func TestModelLogIsBounded(t *testing.T) {
	m := *New("http://127.0.0.1:1", "")
	for i := range maxLog + 10 {
		m = m.applyEvent(hookEvent(t, int64(i+1), events.AllowlistInvalidated, nil))
	}
	assert.Len(t, m.log, maxLog)
	assert.Equal(t, int64(maxLog+10), m.log[0].ID)
}

func TestPulseFades(t *testing.T) {
	var p Pulse
	t0 := time.Now()
	p.Hit(t0)
	assert.Equal(t, pulseWidth, p.lit)
	p.Fade(t0.Add(4 * time.Second))
	assert.Equal(t, pulseWidth-2, p.lit)
	p.Fade(t0.Add(time.Minute))
	assert.Equal(t, 0, p.lit)
}

func TestDescribe(t *testing.T) {
	e := hookEvent(t, 1, events.HookRejected, map[string]any{
		"delivery_id": "0123456789abcdef", "event": "push", "status": 400, "reason": "missing_signature",
	})
	assert.Equal(t, "[01234567] push 400 missing_signature", describe(e))
}
