// Package hookserver embeds the webhook receiver in a Go program.
//
// A Server checks every delivery against the provider's published address
// ranges and the shared signing key before any handler sees it:
//
//	cfg, err := hookserver.LoadConfig("config.yaml")
//	...
//	srv, err := hookserver.New(ctx, cfg)
//	...
//	defer srv.Close()
//	srv.HandleFunc("push", func(ctx context.Context, d hookserver.Delivery) (hookserver.Result, error) {
//		return hookserver.Result{Body: "queued"}, nil
//	})
//	err = srv.Run(ctx)
//
// Each event has at most one exclusive handler, whose Result becomes the HTTP
// response. Any number of observers may Subscribe to an event, or to CatchAll.
package hookserver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/config"
	"github.com/mattjoyce/hookserver/internal/events"
	"github.com/mattjoyce/hookserver/internal/lock"
	"github.com/mattjoyce/hookserver/internal/log"
	"github.com/mattjoyce/hookserver/internal/metrics"
	"github.com/mattjoyce/hookserver/internal/pipeline"
	"github.com/mattjoyce/hookserver/internal/registry"
	"github.com/mattjoyce/hookserver/internal/storage"
	"github.com/mattjoyce/hookserver/internal/webhook"
)

// Version is reported by the CLI and sent as the allowlist fetcher's User-Agent.
const Version = "0.3.0"

// CatchAll subscribes an observer to every event.
const CatchAll = registry.CatchAll

type (
	Config      = config.Config
	Delivery    = registry.Delivery
	Result      = registry.Result
	Handler     = registry.Handler
	HandlerFunc = registry.HandlerFunc
)

// ErrDuplicateHandler is returned when an event already has a handler.
var ErrDuplicateHandler = registry.ErrDuplicateHandler

// LoadConfig reads and validates the config at path, a file or a directory
// holding config.yaml.
func LoadConfig(path string) (*Config, error) {
	return config.Load(path)
}

// Option configures New.
type Option func(*Server)

// WithLogger sets the logger. The default is the process logger from Setup.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// Server is an assembled receiver.
type Server struct {
	logger    *slog.Logger
	server    *webhook.Server
	cache     *allowlist.Cache
	refresher *allowlist.Refresher
	registry  *registry.Registry
	hub       *events.Hub
	metrics   *metrics.Metrics

	db      *sql.DB
	pidLock *lock.PIDLock
}

// New wires every component from cfg. The allowlist is loaded before it
// returns, so the receiver never starts without one. The built-in "ping"
// handler is already bound.
func New(ctx context.Context, cfg *Config, opts ...Option) (_ *Server, err error) {
	if cfg == nil {
		return nil, errors.New("hookserver: config is required")
	}
	s := &Server{
		logger:  log.Get(),
		hub:     events.NewHub(256),
		metrics: metrics.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	defer func() {
		if err != nil {
			_ = s.Close()
		}
	}()
	logger := s.logger

	if path := cfg.Allowlist.SnapshotPath; path != "" {
		s.pidLock, err = lock.Acquire(lock.PathFor(path))
		if err != nil {
			return nil, fmt.Errorf("acquire instance lock: %w", err)
		}
		s.db, err = storage.OpenSQLite(ctx, path)
		if err != nil {
			return nil, fmt.Errorf("open snapshot database: %w", err)
		}
		logger.Info("snapshot database opened", "path", path)
	}

	originCheck, err := s.buildOrigin(ctx, cfg)
	if err != nil {
		return nil, err
	}

	verifier, err := buildVerifier(cfg, logger)
	if err != nil {
		return nil, err
	}

	s.registry = registry.New(logger.With("component", "registry"))
	if err := s.HandleFunc("ping", ping); err != nil {
		return nil, err
	}

	p, err := pipeline.New(originCheck, verifier, s.registry, pipeline.HeaderNames{
		Event:     cfg.Provider.EventHeader,
		Delivery:  cfg.Provider.DeliveryHeader,
		Signature: cfg.Provider.SignatureHeader,
	},
		pipeline.WithLogger(logger.With("component", "pipeline")),
		pipeline.WithPublisher(s.hub),
		pipeline.WithObserver(s.metrics.ObserveVerdict),
	)
	if err != nil {
		return nil, err
	}

	wcfg, err := webhook.FromGlobalConfig(cfg)
	if err != nil {
		return nil, err
	}
	deps := webhook.Deps{
		Pipeline:       p,
		Events:         s.hub,
		Handlers:       s.registry,
		Metrics:        s.metrics.Handler(),
		OriginBypassed: originCheck.Bypassed(),
	}
	if s.cache != nil {
		deps.Allowlist = s.cache
		deps.Refresher = s.refresher
		deps.Invalidator = s.cache
	}
	s.server, err = webhook.New(wcfg, deps, logger.With("component", "webhook"))
	if err != nil {
		return nil, err
	}
	return s, nil
}

// Handle binds the exclusive handler for event. An event can be bound once.
func (s *Server) Handle(event string, h Handler) error {
	if err := s.registry.Register(event, h); err != nil {
		return err
	}
	s.metrics.SetRegisteredHandlers(s.registry.Len())
	return nil
}

// HandleFunc binds fn as the exclusive handler for event.
func (s *Server) HandleFunc(event string, fn func(ctx context.Context, d Delivery) (Result, error)) error {
	return s.Handle(event, HandlerFunc(fn))
}

// Subscribe adds an observer for event, or for every event when event is
// CatchAll. Observers run before the exclusive handler; their results are
// discarded and their failures are logged.
func (s *Server) Subscribe(event string, h Handler) error {
	return s.registry.Subscribe(event, h)
}

// Events lists the events with an exclusive handler, sorted.
func (s *Server) Events() []string {
	return s.registry.Events()
}

// Handler returns the HTTP handler serving the webhook path, health and the
// admin API. Use it to mount the receiver in an existing server instead of Run.
func (s *Server) Handler() http.Handler {
	return s.server.Handler()
}

// Run serves HTTP and refreshes the allowlist until ctx is cancelled or a
// component fails. Cancellation is not an error.
func (s *Server) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, 2)
	go func() {
		if err := s.server.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
			errCh <- fmt.Errorf("webhook: %w", err)
		}
	}()
	if s.refresher != nil {
		go func() {
			if err := s.refresher.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("allowlist refresher: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		return err
	}
}

// Close releases the snapshot database and the instance lock.
func (s *Server) Close() error {
	var errs []error
	if s.db != nil {
		errs = append(errs, s.db.Close())
		s.db = nil
	}
	if s.pidLock != nil {
		errs = append(errs, s.pidLock.Release())
		s.pidLock = nil
	}
	return errors.Join(errs...)
}
