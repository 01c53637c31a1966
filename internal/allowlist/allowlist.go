package allowlist

import (
	"fmt"
	"net/netip"
	"strings"
	"time"
)

// Allowlist is an immutable, ordered set of network blocks published by the
// webhook provider. A refresh builds a new Allowlist; existing values are
// never modified, so readers may hold one for as long as they like.
type Allowlist struct {
	prefixes  []netip.Prefix
	fetchedAt time.Time
	origin    string
}

// Origins of an Allowlist.
const (
	OriginUpstream = "upstream"
	OriginSnapshot = "snapshot"
)

// New builds an Allowlist from prefixes. Prefixes are masked and duplicates
// dropped; first occurrence order is kept. The input slice is copied.
func New(prefixes []netip.Prefix, fetchedAt time.Time, origin string) *Allowlist {
	seen := make(map[netip.Prefix]struct{}, len(prefixes))
	out := make([]netip.Prefix, 0, len(prefixes))
	for _, p := range prefixes {
		if !p.IsValid() {
			continue
		}
		p = p.Masked()
		if _, dup := seen[p]; dup {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return &Allowlist{prefixes: out, fetchedAt: fetchedAt, origin: origin}
}

// ParseBlocks parses CIDR strings such as "192.30.252.0/22" or "2a0a:a440::/29".
// A bare address is accepted as a single-host block.
func ParseBlocks(blocks []string) ([]netip.Prefix, error) {
	out := make([]netip.Prefix, 0, len(blocks))
	for i, raw := range blocks {
		s := strings.TrimSpace(raw)
		if s == "" {
			return nil, fmt.Errorf("block[%d] is empty", i)
		}
		if !strings.Contains(s, "/") {
			addr, err := netip.ParseAddr(s)
			if err != nil {
				return nil, fmt.Errorf("block[%d] %q: %w", i, raw, err)
			}
			addr = addr.Unmap()
			out = append(out, netip.PrefixFrom(addr, addr.BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(s)
		if err != nil {
			return nil, fmt.Errorf("block[%d] %q: %w", i, raw, err)
		}
		if p.Addr().Is4In6() && p.Bits() >= 96 {
			p = netip.PrefixFrom(p.Addr().Unmap(), p.Bits()-96)
		}
		out = append(out, p)
	}
	return out, nil
}

// Contains reports whether addr falls inside at least one block.
// IPv4-mapped IPv6 addresses are matched as IPv4.
func (a *Allowlist) Contains(addr netip.Addr) bool {
	if a == nil || !addr.IsValid() {
		return false
	}
	addr = addr.Unmap().WithZone("")
	for _, p := range a.prefixes {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// Prefixes returns a copy of the blocks in order.
func (a *Allowlist) Prefixes() []netip.Prefix {
	if a == nil {
		return nil
	}
	out := make([]netip.Prefix, len(a.prefixes))
	copy(out, a.prefixes)
	return out
}

// Strings returns the blocks in CIDR notation.
func (a *Allowlist) Strings() []string {
	if a == nil {
		return nil
	}
	out := make([]string, len(a.prefixes))
	for i, p := range a.prefixes {
		out[i] = p.String()
	}
	return out
}

// Len returns the number of blocks.
func (a *Allowlist) Len() int {
	if a == nil {
		return 0
	}
	return len(a.prefixes)
}

// FetchedAt is when the blocks were retrieved from the provider.
func (a *Allowlist) FetchedAt() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.fetchedAt
}

// Origin reports where this allowlist came from (OriginUpstream or OriginSnapshot).
func (a *Allowlist) Origin() string {
	if a == nil {
		return ""
	}
	return a.origin
}
