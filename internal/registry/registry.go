// Package registry maps webhook event names to application handlers.
//
// Each event has at most one exclusive handler, bound once with Register.
// Any number of observers may Subscribe to an event, or to CatchAll to see
// every event. Observers run before the exclusive handler and are isolated
// from it and from each other: an observer's error or panic is logged and
// never stops the rest.
package registry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sort"
	"strings"
	"sync"
)

// CatchAll subscribes an observer to every event.
const CatchAll = "*"

var (
	ErrDuplicateHandler = errors.New("registry: handler already registered")
	ErrNotRegistered    = errors.New("registry: no handler registered")
	ErrHandlerFailed    = errors.New("registry: handler failed")
)

// Delivery is one validated webhook request.
type Delivery struct {
	Event      string
	DeliveryID string
	// Payload is the decoded JSON body.
	Payload any
	// Body is the raw body exactly as received.
	Body []byte
}

// Result is what a handler wants written back to the provider.
type Result struct {
	Status int
	Body   string
}

// Handler processes deliveries for an event.
type Handler interface {
	Handle(ctx context.Context, d Delivery) (Result, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, d Delivery) (Result, error)

// Handle calls f(ctx, d).
func (f HandlerFunc) Handle(ctx context.Context, d Delivery) (Result, error) {
	return f(ctx, d)
}

// Outcome describes what Dispatch did.
type Outcome struct {
	// Handled is true when an exclusive handler ran.
	Handled bool
	// Notified counts observers invoked, successful or not.
	Notified int
	// ObserverErrors holds failures from observers; they do not fail Dispatch.
	ObserverErrors []error
	Result         Result
}

// Registry is safe for concurrent Register and Dispatch, though handlers are
// normally bound once during startup.
type Registry struct {
	mu        sync.RWMutex
	handlers  map[string]Handler
	observers map[string][]Handler
	logger    *slog.Logger
}

// New creates an empty registry.
func New(logger *slog.Logger) *Registry {
	if logger == nil {
		logger = slog.Default()
	}
	return &Registry{
		handlers:  make(map[string]Handler),
		observers: make(map[string][]Handler),
		logger:    logger,
	}
}

// Register binds the exclusive handler for event. Binding the same event twice
// returns ErrDuplicateHandler; there is no replace or deregister.
func (r *Registry) Register(event string, h Handler) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("registry: event name is required")
	}
	if event == CatchAll {
		return fmt.Errorf("registry: %q is reserved for Subscribe", CatchAll)
	}
	if h == nil {
		return fmt.Errorf("registry: handler for %q is nil", event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.handlers[event]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicateHandler, event)
	}
	r.handlers[event] = h
	return nil
}

// MustRegister is Register for startup code; it panics on error.
func (r *Registry) MustRegister(event string, h Handler) {
	if err := r.Register(event, h); err != nil {
		panic(err)
	}
}

// HandleFunc registers fn as the exclusive handler for event.
func (r *Registry) HandleFunc(event string, fn func(ctx context.Context, d Delivery) (Result, error)) error {
	return r.Register(event, HandlerFunc(fn))
}

// Subscribe adds an observer for event, or for every event when event is CatchAll.
func (r *Registry) Subscribe(event string, h Handler) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return fmt.Errorf("registry: event name is required")
	}
	if h == nil {
		return fmt.Errorf("registry: observer for %q is nil", event)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[event] = append(r.observers[event], h)
	return nil
}

// Events returns the event names with an exclusive handler, sorted.
func (r *Registry) Events() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.handlers))
	for name := range r.handlers {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of exclusive handlers.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.handlers)
}

// Dispatch runs the observers for d.Event (catch-all first), then the
// exclusive handler. Lookup is an exact string match.
//
// When no exclusive handler exists the returned error is ErrNotRegistered,
// unless at least one observer ran. A failing exclusive handler yields an
// error wrapping ErrHandlerFailed.
func (r *Registry) Dispatch(ctx context.Context, d Delivery) (Outcome, error) {
	r.mu.RLock()
	handler := r.handlers[d.Event]
	observers := make([]Handler, 0, len(r.observers[CatchAll])+len(r.observers[d.Event]))
	observers = append(observers, r.observers[CatchAll]...)
	if d.Event != CatchAll {
		observers = append(observers, r.observers[d.Event]...)
	}
	r.mu.RUnlock()

	var out Outcome
	for _, obs := range observers {
		out.Notified++
		if _, err := safeCall(ctx, obs, d); err != nil {
			r.logger.Warn("webhook observer failed",
				"event", d.Event,
				"delivery_id", d.DeliveryID,
				"error", err,
			)
			out.ObserverErrors = append(out.ObserverErrors, err)
		}
	}

	if handler == nil {
		if out.Notified > 0 {
			out.Result = Result{Status: http.StatusOK, Body: "Hook delivered"}
			return out, nil
		}
		out.Result = Result{Status: http.StatusOK, Body: "Hook not used"}
		return out, ErrNotRegistered
	}

	out.Handled = true
	res, err := safeCall(ctx, handler, d)
	if err != nil {
		return out, fmt.Errorf("%w: %q: %v", ErrHandlerFailed, d.Event, err)
	}
	if res.Status == 0 {
		res.Status = http.StatusOK
	}
	out.Result = res
	return out, nil
}

// safeCall converts a handler panic into an error.
func safeCall(ctx context.Context, h Handler, d Delivery) (res Result, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return h.Handle(ctx, d)
}
