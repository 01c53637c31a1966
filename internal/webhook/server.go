package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mattjoyce/hookserver/internal/auth"
	"github.com/mattjoyce/hookserver/internal/pipeline"
)

// Deps are the collaborators the server routes to. Only Pipeline is required.
type Deps struct {
	Pipeline  RequestHandler
	Allowlist AllowlistStatus
	Refresher AllowlistRefresher
	// Invalidator backs POST /admin/allowlist/invalidate.
	Invalidator AllowlistInvalidator
	Events      EventSource
	Handlers    HandlerCounter
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
	// OriginBypassed is reported by /healthz.
	OriginBypassed bool
}

// Server represents the webhook HTTP server.
type Server struct {
	config Config
	deps   Deps
	logger *slog.Logger
	server *http.Server
	router *chi.Mux
}

// New creates a new webhook server instance.
func New(cfg Config, deps Deps, logger *slog.Logger) (*Server, error) {
	cfg, err := cfg.withDefaults()
	if err != nil {
		return nil, err
	}
	if deps.Pipeline == nil {
		return nil, errors.New("webhook: pipeline is required")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger,
	}
	s.router = s.setupRoutes()
	return s, nil
}

// Handler returns the routed http.Handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Start starts the webhook HTTP server (blocking).
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              s.config.Listen,
		Handler:           s.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.logger.Info("webhook server starting",
		"listen", s.config.Listen,
		"path", s.config.Path,
		"proxy_count", s.config.ProxyCount,
		"admin", s.config.AdminToken != "",
	)

	// Run server in goroutine
	errCh := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	// Wait for context cancellation or server error
	select {
	case <-ctx.Done():
		s.logger.Info("webhook server shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("webhook server shutdown failed: %w", err)
		}
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("webhook server error: %w", err)
	}
}

// setupRoutes configures the HTTP router.
func (s *Server) setupRoutes() *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)

	r.Post(s.config.Path, s.handleHook)
	r.Get("/healthz", s.handleHealth)
	if s.deps.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.deps.Metrics)
	}

	if s.config.AdminToken != "" {
		r.Route("/admin", func(r chi.Router) {
			r.Use(auth.RequireToken(s.config.AdminToken, s.logger))
			r.Post("/allowlist/refresh", s.handleRefresh)
			r.Post("/allowlist/invalidate", s.handleInvalidate)
			r.Get("/allowlist", s.handleAllowlist)
			r.Get("/events", s.handleEvents)
		})
	}

	return r
}

// loggingMiddleware logs HTTP requests (excludes payloads and signatures).
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration_ms", time.Since(start).Milliseconds(),
			"request_id", middleware.GetReqID(r.Context()),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// handleHook reads the body and runs the pipeline.
func (s *Server) handleHook(w http.ResponseWriter, r *http.Request) {
	// Enforce body size limit
	limitedReader := io.LimitReader(r.Body, s.config.MaxBodySize+1)
	body, err := io.ReadAll(limitedReader)
	if err != nil {
		s.logger.Warn("failed to read webhook body", "error", err)
		s.respondText(w, http.StatusBadRequest, "Failed to read request body")
		return
	}
	if int64(len(body)) > s.config.MaxBodySize {
		s.logger.Warn("webhook body too large",
			"remote_addr", r.RemoteAddr,
			"limit", s.config.MaxBodySize,
		)
		s.respondText(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}

	verdict := s.deps.Pipeline.Handle(r.Context(), pipeline.Request{
		ClientAddress: ClientAddress(r, s.config.ProxyCount),
		Header:        r.Header,
		Body:          body,
	})
	s.respondText(w, verdict.Status(), verdict.Body())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := HealthResponse{Status: "ok"}
	if s.deps.Handlers != nil {
		resp.Handlers = s.deps.Handlers.Len()
	}

	status := http.StatusOK
	switch {
	case s.deps.OriginBypassed:
		resp.Allowlist.Bypassed = true
	case s.deps.Allowlist != nil:
		list := s.deps.Allowlist.Current()
		resp.Allowlist.Stale = s.deps.Allowlist.Stale()
		if list == nil {
			resp.Status = "unavailable"
			status = http.StatusServiceUnavailable
			break
		}
		at := list.FetchedAt()
		resp.Allowlist.Blocks = list.Len()
		resp.Allowlist.Origin = list.Origin()
		resp.Allowlist.FetchedAt = &at
		if resp.Allowlist.Stale {
			resp.Status = "degraded"
		}
	}
	s.respondJSON(w, status, resp)
}

// respondText sends a plain-text response.
func (s *Server) respondText(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, message)
}

// respondJSON sends a JSON response.
func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Debug("failed to write response", "error", err)
	}
}

// respondError sends a JSON error response.
func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, ErrorResponse{Error: message})
}
