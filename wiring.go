package hookserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/mattjoyce/hookserver/internal/allowlist"
	"github.com/mattjoyce/hookserver/internal/config"
	"github.com/mattjoyce/hookserver/internal/log"
	"github.com/mattjoyce/hookserver/internal/origin"
	"github.com/mattjoyce/hookserver/internal/signature"
	"github.com/mattjoyce/hookserver/internal/storage"
)

func (s *Server) buildOrigin(ctx context.Context, cfg *config.Config) (*origin.Validator, error) {
	if cfg.Security.InsecureSkipOrigin {
		s.logger.Warn("provider address check DISABLED (security.insecure_skip_origin)")
		return origin.NewBypassValidator(), nil
	}

	fetcher := allowlist.NewHTTPFetcher(cfg.Provider.MetaURL, cfg.Provider.MetaKey, cfg.Allowlist.FetchTimeout)
	fetcher.UserAgent = "hookserver/" + Version

	logger := s.logger.With("component", "allowlist")
	opts := []allowlist.Option{
		allowlist.WithLogger(logger),
		allowlist.WithStaleFallback(cfg.Allowlist.UseStaleFallback()),
		allowlist.WithPublisher(s.hub),
		allowlist.WithObserver(s.metrics.ObserveRefresh),
	}
	if s.db != nil {
		opts = append(opts, allowlist.WithStore(storage.NewAllowlistStore(s.db)))
	}
	s.cache = allowlist.NewCache(fetcher, opts...)
	if err := s.cache.Load(ctx); err != nil {
		return nil, fmt.Errorf("load provider allowlist: %w", err)
	}
	s.metrics.SetAllowlist(s.cache.Current())

	s.refresher = allowlist.NewRefresher(s.cache, cfg.Allowlist.RefreshInterval, cfg.Allowlist.MinRefreshGap, logger)
	return origin.NewValidator(s.cache), nil
}

func buildVerifier(cfg *config.Config, logger *slog.Logger) (*signature.Verifier, error) {
	if cfg.Security.AllowUnsigned {
		logger.Warn("signature verification DISABLED (security.allow_unsigned)")
		return signature.NewUnsignedVerifier(), nil
	}
	return signature.NewVerifier([]byte(cfg.Security.SigningKey), cfg.Security.Algorithms)
}

// ping answers the event GitHub sends when a hook is created or edited.
func ping(ctx context.Context, d Delivery) (Result, error) {
	args := []any{}
	if m, ok := d.Payload.(map[string]any); ok {
		if hookID, ok := m["hook_id"]; ok {
			args = append(args, "hook_id", hookID)
		}
	}
	log.WithDelivery(d.Event, d.DeliveryID).Info("ping received", args...)
	return Result{Body: "pong"}, nil
}
