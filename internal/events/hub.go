// Package events is the in-process audit feed: accepted and rejected
// deliveries and allowlist lifecycle changes.
package events

import (
	"encoding/json"
	"slices"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Event types published by the receiver.
const (
	HookAccepted           = "hook.accepted"
	HookRejected           = "hook.rejected"
	AllowlistRefreshed     = "allowlist.refreshed"
	AllowlistRefreshFailed = "allowlist.refresh_failed"
	AllowlistInvalidated   = "allowlist.invalidated"
	AllowlistSnapshot      = "allowlist.snapshot_loaded"
)

type Event struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"`
	At   time.Time       `json:"at"`
	Data json.RawMessage `json:"data"`
}

// Hub is an in-memory pub/sub. It keeps the most recent events so a client
// that reconnects with Last-Event-ID can catch up.
type Hub struct {
	mu      sync.Mutex
	lastID  int64
	history []Event // ascending by ID, at most limit entries
	limit   int

	subs      map[int]chan Event
	nextSubID int
	// dropped counts events a slow subscriber missed.
	dropped atomic.Int64
}

// NewHub keeps up to capacity events of history; zero or less means 256.
func NewHub(capacity int) *Hub {
	if capacity <= 0 {
		capacity = 256
	}
	return &Hub{
		history: make([]Event, 0, capacity),
		limit:   capacity,
		subs:    make(map[int]chan Event),
	}
}

// Publish records an event and fans it out. data is marshalled to JSON;
// nil or unmarshallable data is stored as {}. Subscribers that are not
// keeping up miss the event rather than stall the caller.
func (h *Hub) Publish(eventType string, data any) {
	payload := json.RawMessage("{}")
	if data != nil {
		if b, err := json.Marshal(data); err == nil {
			payload = b
		}
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	h.lastID++
	ev := Event{ID: h.lastID, Type: eventType, At: time.Now().UTC(), Data: payload}

	if len(h.history) == h.limit {
		copy(h.history, h.history[1:])
		h.history = h.history[:h.limit-1]
	}
	h.history = append(h.history, ev)

	for _, ch := range h.subs {
		select {
		case ch <- ev:
		default:
			h.dropped.Add(1)
		}
	}
}

// Subscribe returns a channel of new events and a cancel func that closes it.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	h.mu.Lock()
	defer h.mu.Unlock()

	id := h.nextSubID
	h.nextSubID++
	ch := make(chan Event, 64)
	h.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			close(ch)
			h.mu.Unlock()
		})
	}
	return ch, cancel
}

// SnapshotSince returns retained events with ID > lastID, oldest first.
func (h *Hub) SnapshotSince(lastID int64) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()

	i := sort.Search(len(h.history), func(i int) bool { return h.history[i].ID > lastID })
	return slices.Clone(h.history[i:])
}

// Dropped returns how many events subscribers have missed in total.
func (h *Hub) Dropped() int64 {
	return h.dropped.Load()
}
