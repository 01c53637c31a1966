// Package origin decides whether a request comes from the webhook provider's
// published network ranges.
package origin

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"

	"github.com/mattjoyce/hookserver/internal/allowlist"
)

var (
	// ErrInvalidOrigin means the client address could not be parsed.
	ErrInvalidOrigin = errors.New("origin: invalid client address")
	// ErrForbiddenOrigin means the address is outside every allowlisted block.
	ErrForbiddenOrigin = errors.New("origin: address not in provider allowlist")
)

// SnapshotSource hands out the allowlist in force. allowlist.Cache implements it.
type SnapshotSource interface {
	Snapshot() (*allowlist.Allowlist, error)
}

// Validator checks client addresses against the provider allowlist.
type Validator struct {
	source SnapshotSource
	bypass bool
}

// NewValidator returns a validator that enforces the allowlist from source.
func NewValidator(source SnapshotSource) *Validator {
	return &Validator{source: source}
}

// NewBypassValidator returns a validator that accepts every address and never
// consults an allowlist. Only for development or fully trusted networks.
func NewBypassValidator() *Validator {
	return &Validator{bypass: true}
}

// Bypassed reports whether the check is disabled.
func (v *Validator) Bypassed() bool {
	return v.bypass
}

// Validate returns nil when clientAddress is inside the allowlist. Errors wrap
// ErrInvalidOrigin, ErrForbiddenOrigin, or allowlist.ErrUpstreamUnavailable
// when no usable allowlist is loaded.
func (v *Validator) Validate(clientAddress string) error {
	if v.bypass {
		return nil
	}

	addr, err := ParseClientAddress(clientAddress)
	if err != nil {
		return err
	}

	list, err := v.source.Snapshot()
	if err != nil {
		return err
	}

	if !Allowed(addr, list) {
		return fmt.Errorf("%w: %s", ErrForbiddenOrigin, addr)
	}
	return nil
}

// Allowed reports whether addr falls within at least one block of list.
func Allowed(addr netip.Addr, list *allowlist.Allowlist) bool {
	return list.Contains(addr)
}

// ParseClientAddress accepts IPv4 and IPv6 literals, optionally with a port
// ("192.0.2.1:443", "[2001:db8::1]:443") or brackets ("[2001:db8::1]").
func ParseClientAddress(s string) (netip.Addr, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return netip.Addr{}, fmt.Errorf("%w: empty", ErrInvalidOrigin)
	}

	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), nil
	}

	host := s
	if strings.HasPrefix(host, "[") && strings.HasSuffix(host, "]") {
		host = host[1 : len(host)-1]
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return netip.Addr{}, fmt.Errorf("%w: %q", ErrInvalidOrigin, s)
	}
	return addr.Unmap(), nil
}
