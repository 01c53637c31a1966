package allowlist

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"
)

// ErrNoSnapshot is returned by a SnapshotStore that has nothing stored yet.
var ErrNoSnapshot = errors.New("allowlist: no snapshot stored")

// SnapshotStore persists the last good allowlist so a restart can fall back
// to it while the provider endpoint is down.
type SnapshotStore interface {
	SaveAllowlist(ctx context.Context, list *Allowlist) error
	LoadAllowlist(ctx context.Context) (*Allowlist, error)
}

// Publisher receives lifecycle events (events.Hub satisfies it).
type Publisher interface {
	Publish(eventType string, data any)
}

// Observer is told about every refresh attempt. list is nil when err is not.
type Observer func(list *Allowlist, err error)

// Cache holds the allowlist currently in force. The pointer is swapped
// atomically on refresh; readers never see a partially built set.
type Cache struct {
	fetcher       Fetcher
	store         SnapshotStore
	staleFallback bool
	logger        *slog.Logger
	publisher     Publisher
	observer      Observer

	current atomic.Pointer[Allowlist]
	stale   atomic.Bool
	// refreshMu serializes upstream fetches; readers never take it.
	refreshMu sync.Mutex
}

// Option configures a Cache.
type Option func(*Cache)

// WithStore enables snapshot persistence and startup fallback.
func WithStore(store SnapshotStore) Option {
	return func(c *Cache) { c.store = store }
}

// WithStaleFallback controls whether a stale allowlist keeps being served
// after a failed refresh or invalidation. Defaults to true.
func WithStaleFallback(enabled bool) Option {
	return func(c *Cache) { c.staleFallback = enabled }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(c *Cache) { c.logger = l }
}

// WithPublisher sets the event publisher.
func WithPublisher(p Publisher) Option {
	return func(c *Cache) { c.publisher = p }
}

// WithObserver registers a callback for refresh outcomes.
func WithObserver(o Observer) Option {
	return func(c *Cache) { c.observer = o }
}

// NewCache creates an empty cache. Call Load before serving traffic.
func NewCache(fetcher Fetcher, opts ...Option) *Cache {
	c := &Cache{
		fetcher:       fetcher,
		staleFallback: true,
		logger:        slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Load populates the cache at startup. If the provider cannot be reached and
// stale fallback is enabled, the stored snapshot is used instead.
func (c *Cache) Load(ctx context.Context) error {
	_, err := c.Refresh(ctx)
	if err == nil {
		return nil
	}
	if !c.staleFallback || c.store == nil {
		return err
	}

	snap, serr := c.store.LoadAllowlist(ctx)
	if serr != nil {
		return errors.Join(err, fmt.Errorf("load snapshot: %w", serr))
	}
	c.current.Store(snap)
	c.stale.Store(true)
	c.logger.Warn("using stored allowlist snapshot",
		"blocks", snap.Len(),
		"fetched_at", snap.FetchedAt(),
		"error", err,
	)
	c.publish("allowlist.snapshot_loaded", snap, nil)
	return nil
}

// Refresh fetches a fresh allowlist and swaps it in. On failure the current
// allowlist stays in place but is marked stale. Concurrent callers are
// serialized so the provider sees one request at a time.
func (c *Cache) Refresh(ctx context.Context) (*Allowlist, error) {
	c.refreshMu.Lock()
	defer c.refreshMu.Unlock()

	list, err := c.fetcher.Fetch(ctx)
	if err == nil && list.Len() == 0 {
		err = fmt.Errorf("%w: provider returned no address ranges", ErrUpstreamUnavailable)
	}
	if err != nil {
		if !errors.Is(err, ErrUpstreamUnavailable) {
			err = fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
		}
		c.stale.Store(true)
		c.logger.Warn("allowlist refresh failed", "error", err)
		c.publish("allowlist.refresh_failed", nil, err)
		c.observe(nil, err)
		return nil, err
	}

	c.current.Store(list)
	c.stale.Store(false)
	c.logger.Info("allowlist refreshed", "blocks", list.Len(), "origin", list.Origin())
	c.publish("allowlist.refreshed", list, nil)
	c.observe(list, nil)

	if c.store != nil {
		if err := c.store.SaveAllowlist(ctx, list); err != nil {
			c.logger.Error("failed to persist allowlist snapshot", "error", err)
		}
	}
	return list, nil
}

// Invalidate marks the current allowlist stale. With stale fallback disabled,
// lookups fail until the next successful Refresh.
func (c *Cache) Invalidate() {
	c.stale.Store(true)
	c.publish("allowlist.invalidated", nil, nil)
}

// Snapshot returns the allowlist to validate against. It never performs I/O.
func (c *Cache) Snapshot() (*Allowlist, error) {
	list := c.current.Load()
	if list == nil {
		return nil, fmt.Errorf("%w: allowlist not loaded", ErrUpstreamUnavailable)
	}
	if c.stale.Load() && !c.staleFallback {
		return nil, fmt.Errorf("%w: allowlist is stale", ErrUpstreamUnavailable)
	}
	return list, nil
}

// Current returns whatever allowlist is held, stale or not.
func (c *Cache) Current() *Allowlist {
	return c.current.Load()
}

// Stale reports whether the last refresh failed or the cache was invalidated.
func (c *Cache) Stale() bool {
	return c.stale.Load()
}

func (c *Cache) observe(list *Allowlist, err error) {
	if c.observer != nil {
		c.observer(list, err)
	}
}

func (c *Cache) publish(eventType string, list *Allowlist, err error) {
	if c.publisher == nil {
		return
	}
	data := map[string]any{"at": time.Now().UTC().Format(time.RFC3339Nano)}
	if list != nil {
		data["blocks"] = list.Len()
		data["origin"] = list.Origin()
		data["fetched_at"] = list.FetchedAt().Format(time.RFC3339Nano)
	}
	if err != nil {
		data["error"] = err.Error()
	}
	c.publisher.Publish(eventType, data)
}
