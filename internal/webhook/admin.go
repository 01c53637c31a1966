package webhook

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/events"
)

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if s.deps.Refresher == nil {
		s.respondError(w, http.StatusNotImplemented, "allowlist refresh is not available")
		return
	}

	list, err := s.deps.Refresher.RefreshNow(r.Context())
	switch {
	case errors.Is(err, allowlist.ErrThrottled):
		w.Header().Set("Retry-After", "30")
		s.respondError(w, http.StatusTooManyRequests, "refresh throttled")
		return
	case err != nil:
		s.logger.Warn("admin allowlist refresh failed", "error", err)
		s.respondError(w, http.StatusBadGateway, "allowlist refresh failed")
		return
	}

	s.logger.Info("allowlist refreshed by admin", "blocks", list.Len())
	s.respondJSON(w, http.StatusOK, RefreshResponse{
		Blocks:    list.Len(),
		FetchedAt: list.FetchedAt(),
	})
}

// handleInvalidate marks the allowlist stale and asks the refresher for a
// background refresh. With stale fallback off, origin checks fail until
// that refresh lands.
func (s *Server) handleInvalidate(w http.ResponseWriter, r *http.Request) {
	if s.deps.Invalidator == nil {
		s.respondError(w, http.StatusNotImplemented, "allowlist invalidation is not available")
		return
	}
	s.deps.Invalidator.Invalidate()

	var scheduled bool
	if s.deps.Refresher != nil {
		scheduled = s.deps.Refresher.Trigger()
	}
	s.logger.Info("allowlist invalidated by admin", "refresh_scheduled", scheduled)
	s.respondJSON(w, http.StatusAccepted, InvalidateResponse{Stale: true, RefreshScheduled: scheduled})
}

func (s *Server) handleAllowlist(w http.ResponseWriter, r *http.Request) {
	if s.deps.Allowlist == nil || s.deps.Allowlist.Current() == nil {
		s.respondError(w, http.StatusServiceUnavailable, "allowlist not loaded")
		return
	}
	list := s.deps.Allowlist.Current()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"blocks":     list.Strings(),
		"origin":     list.Origin(),
		"fetched_at": list.FetchedAt(),
		"stale":      s.deps.Allowlist.Stale(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.deps.Events == nil {
		s.respondError(w, http.StatusNotImplemented, "event feed is not available")
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)

	lastID := parseLastEventID(r.Header.Get("Last-Event-ID"))
	// Send buffered events first for late clients.
	for _, ev := range s.deps.Events.SnapshotSince(lastID) {
		if err := writeSSE(w, ev); err != nil {
			return
		}
	}
	flusher.Flush()

	ch, cancel := s.deps.Events.Subscribe()
	defer cancel()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if err := writeSSE(w, ev); err != nil {
				return
			}
			flusher.Flush()
		case <-keepAlive.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func parseLastEventID(v string) int64 {
	if v == "" {
		return 0
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func writeSSE(w http.ResponseWriter, ev events.Event) error {
	if _, err := fmt.Fprintf(w, "id: %d\n", ev.ID); err != nil {
		return err
	}
	if ev.Type != "" {
		if _, err := fmt.Fprintf(w, "event: %s\n", ev.Type); err != nil {
			return err
		}
	}
	// Data is single-line JSON.
	if _, err := fmt.Fprintf(w, "data: %s\n\n", ev.Data); err != nil {
		return err
	}
	return nil
}
