package allowlist

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/time/rate"
)

// ErrThrottled is returned by RefreshNow when the previous explicit refresh
// was too recent.
var ErrThrottled = errors.New("allowlist: refresh throttled")

// Refresher keeps a Cache current: on a fixed interval, and on explicit
// triggers. Scheduled refreshes retry with exponential backoff; explicit ones
// are rate limited so callers cannot hammer the provider.
type Refresher struct {
	cache    *Cache
	interval time.Duration
	limiter  *rate.Limiter
	logger   *slog.Logger
	trigger  chan struct{}

	// newBackOff builds the retry policy for one scheduled refresh.
	newBackOff func() backoff.BackOff
}

// NewRefresher creates a refresher. minGap is the minimum spacing between
// explicit refreshes; zero disables throttling.
func NewRefresher(cache *Cache, interval, minGap time.Duration, logger *slog.Logger) *Refresher {
	limit := rate.Inf
	if minGap > 0 {
		limit = rate.Every(minGap)
	}
	if logger == nil {
		logger = slog.Default()
	}
	r := &Refresher{
		cache:    cache,
		interval: interval,
		limiter:  rate.NewLimiter(limit, 1),
		logger:   logger,
		trigger:  make(chan struct{}, 1),
	}
	r.newBackOff = func() backoff.BackOff {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = time.Second
		b.MaxInterval = time.Minute
		b.MaxElapsedTime = interval / 2
		return b
	}
	return r
}

// Run blocks until ctx is cancelled.
func (r *Refresher) Run(ctx context.Context) error {
	if r.interval <= 0 {
		<-ctx.Done()
		return ctx.Err()
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info("allowlist refresher started", "interval", r.interval.String())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			r.refreshWithRetry(ctx)
		case <-r.trigger:
			if _, err := r.cache.Refresh(ctx); err != nil {
				r.logger.Warn("triggered allowlist refresh failed", "error", err)
			}
		}
	}
}

// Trigger asks Run to refresh soon without waiting for the result. Returns
// false when throttled or when a trigger is already pending.
// A trigger that is not queued gives its token back.
func (r *Refresher) Trigger() bool {
	res := r.limiter.Reserve()
	if !res.OK() || res.Delay() > 0 {
		res.Cancel()
		return false
	}
	select {
	case r.trigger <- struct{}{}:
		return true
	default:
		res.Cancel()
		return false
	}
}

// RefreshNow refreshes synchronously, subject to the same throttle as Trigger.
func (r *Refresher) RefreshNow(ctx context.Context) (*Allowlist, error) {
	if !r.limiter.Allow() {
		return nil, ErrThrottled
	}
	return r.cache.Refresh(ctx)
}

func (r *Refresher) refreshWithRetry(ctx context.Context) {
	op := func() error {
		_, err := r.cache.Refresh(ctx)
		return err
	}
	notify := func(err error, next time.Duration) {
		r.logger.Debug("retrying allowlist refresh", "error", err, "next_in", next.String())
	}
	if err := backoff.RetryNotify(op, backoff.WithContext(r.newBackOff(), ctx), notify); err != nil {
		r.logger.Error("scheduled allowlist refresh gave up", "error", err)
	}
}
