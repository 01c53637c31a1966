package webhook

import (
	"context"
	"time"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/events"
	"github.com/mattjoyce/hookserver/internal/pipeline"
)

// RequestHandler validates and dispatches one webhook request.
// *pipeline.Pipeline implements it.
type RequestHandler interface {
	Handle(ctx context.Context, req pipeline.Request) pipeline.Verdict
}

// AllowlistStatus reports the allowlist in force. *allowlist.Cache implements it.
type AllowlistStatus interface {
	Current() *allowlist.Allowlist
	Stale() bool
}

// AllowlistRefresher forces a refresh, now or in the background.
// *allowlist.Refresher implements it.
type AllowlistRefresher interface {
	RefreshNow(ctx context.Context) (*allowlist.Allowlist, error)
	Trigger() bool
}

// AllowlistInvalidator marks the allowlist stale. *allowlist.Cache implements it.
type AllowlistInvalidator interface {
	Invalidate()
}

// EventSource is the audit feed. *events.Hub implements it.
type EventSource interface {
	SnapshotSince(lastID int64) []events.Event
	Subscribe() (<-chan events.Event, func())
}

// HandlerCounter reports how many events have a handler. *registry.Registry implements it.
type HandlerCounter interface {
	Len() int
}

// HealthResponse is the JSON body of GET /healthz.
type HealthResponse struct {
	Status    string        `json:"status"`
	Allowlist AllowlistInfo `json:"allowlist"`
	Handlers  int           `json:"handlers"`
}

// AllowlistInfo summarises the allowlist in force.
type AllowlistInfo struct {
	Bypassed  bool       `json:"bypassed,omitempty"`
	Blocks    int        `json:"blocks"`
	Origin    string     `json:"origin,omitempty"`
	FetchedAt *time.Time `json:"fetched_at,omitempty"`
	Stale     bool       `json:"stale"`
}

// RefreshResponse is the JSON body of POST /admin/allowlist/refresh.
type RefreshResponse struct {
	Blocks    int       `json:"blocks"`
	FetchedAt time.Time `json:"fetched_at"`
}

// InvalidateResponse is the JSON body of POST /admin/allowlist/invalidate.
type InvalidateResponse struct {
	Stale            bool `json:"stale"`
	RefreshScheduled bool `json:"refresh_scheduled"`
}

// ErrorResponse is the JSON error body used by the admin routes.
type ErrorResponse struct {
	Error string `json:"error"`
}
