package watch

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/mattjoyce/hookserver/internal/events"
)

const maxLog = 50

// Model is the bubbletea model for `hookserver watch`.
type Model struct {
	baseURL string
	token   string

	width  int
	height int

	status    string
	handlers  int
	connected bool
	allowlist AllowlistState
	stats     map[string]*EventStats
	totals    Totals
	log       []events.Event
	lastID    int64

	pulse Pulse
	table table.Model
	theme Theme

	hubEvents chan events.Event
	lastError string
	now       func() time.Time
}

// New creates a dashboard for the receiver at baseURL. token is the admin
// bearer token; it may be empty when the receiver runs without one.
func New(baseURL, token string) *Model {
	return &Model{
		baseURL:   baseURL,
		token:     token,
		stats:     make(map[string]*EventStats),
		log:       make([]events.Event, 0),
		hubEvents: make(chan events.Event, 100),
		table:     newDeliveryTable(),
		theme:     NewDefaultTheme(),
		now:       time.Now,
	}
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		subscribe(m.baseURL, m.token, 0, m.hubEvents),
		receiveNext(m.hubEvents),
		func() tea.Msg { return fetchHealth(m.baseURL) },
		tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) }),
		tea.EnterAltScreen,
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		return m, cmd

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tickMsg:
		m.pulse.Fade(time.Time(msg))
		return m, tea.Tick(time.Second, func(t time.Time) tea.Msg { return tickMsg(t) })

	case eventMsg:
		m = m.applyEvent(events.Event(msg))
		return m, receiveNext(m.hubEvents)

	case healthMsg:
		m.status = msg.Status
		m.handlers = msg.Handlers
		m.allowlist.applyHealth(msg.Allowlist)
		m.connected = true
		m.lastError = ""
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})

	case streamClosedMsg:
		m.connected = false
		m.lastError = "event stream disconnected, reconnecting..."
		if msg.err != nil {
			m.lastError = fmt.Sprintf("event stream: %v, reconnecting...", msg.err)
		}
		// receiveNext is still parked on the channel and picks up events
		// from the next subscription.
		return m, tea.Tick(3*time.Second, func(time.Time) tea.Msg { return reconnectMsg{} })

	case reconnectMsg:
		return m, subscribe(m.baseURL, m.token, m.lastID, m.hubEvents)

	case errMsg:
		m.lastError = msg.Error()
		return m, tea.Tick(5*time.Second, func(time.Time) tea.Msg {
			return fetchHealth(m.baseURL)
		})
	}

	return m, nil
}

func (m Model) applyEvent(e events.Event) Model {
	now := m.now()
	if e.ID > m.lastID {
		m.lastID = e.ID
	}
	m.connected = true
	m.lastError = ""

	m.log = append([]events.Event{e}, m.log...)
	if len(m.log) > maxLog {
		m.log = m.log[:maxLog]
	}

	if updateDeliveries(m.stats, e, now) {
		m.pulse.Hit(now)
		if e.Type == events.HookRejected {
			m.totals.Rejected++
		} else {
			m.totals.Accepted++
		}
		m.table.SetRows(deliveryRows(sortedStats(m.stats)))
		return m
	}
	m.allowlist.apply(e, now)
	return m
}

func (m Model) View() string {
	if m.width == 0 {
		return "Connecting..."
	}

	parts := []string{
		renderHeader(m.status, m.connected, m.handlers, m.totals, m.pulse, m.theme, m.width, m.now()),
		renderAllowlist(m.allowlist, m.theme, m.width),
		renderDeliveries(m.table, len(m.stats) == 0, m.theme, m.width),
		renderEventStream(m.log, m.theme, m.width),
	}
	if m.lastError != "" {
		parts = append(parts, m.theme.Rejected.Render(" ⚠ "+m.lastError))
	}
	parts = append(parts, m.theme.Dim.Render(" [q] Quit • [↑/↓] Scroll events"))

	return lipgloss.NewStyle().Margin(1, 2).Render(
		lipgloss.JoinVertical(lipgloss.Left, parts...),
	)
}
