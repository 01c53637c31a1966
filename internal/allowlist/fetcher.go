package allowlist

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/netip"
	"time"
)

//go:generate mockgen -destination=mocks/mock_allowlist.go -package=mocks github.com/mattjoyce/hookserver/internal/allowlist Fetcher,SnapshotStore

// ErrUpstreamUnavailable is returned when the provider's address ranges
// cannot be obtained, either because the endpoint failed or because it
// returned something unusable.
var ErrUpstreamUnavailable = errors.New("allowlist: upstream unavailable")

// maxMetaSize caps the metadata document we are willing to read.
const maxMetaSize = 4 << 20

// Fetcher retrieves the provider's current allowlist.
type Fetcher interface {
	Fetch(ctx context.Context) (*Allowlist, error)
}

// HTTPFetcher reads a JSON metadata document (GitHub's /meta layout) and
// takes the list of CIDR strings stored under Key.
type HTTPFetcher struct {
	URL       string
	Key       string
	Client    *http.Client
	UserAgent string
	// Now is used to stamp fetched allowlists; defaults to time.Now.
	Now func() time.Time
}

// NewHTTPFetcher returns a fetcher with a client bounded by timeout.
func NewHTTPFetcher(url, key string, timeout time.Duration) *HTTPFetcher {
	return &HTTPFetcher{
		URL:       url,
		Key:       key,
		Client:    &http.Client{Timeout: timeout},
		UserAgent: "hookserver",
	}
}

// Fetch performs a single GET. It does not retry; retry policy belongs to the caller.
func (f *HTTPFetcher) Fetch(ctx context.Context) (*Allowlist, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %v", ErrUpstreamUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")
	if f.UserAgent != "" {
		req.Header.Set("User-Agent", f.UserAgent)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("%w: GET %s returned status %d", ErrUpstreamUnavailable, f.URL, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxMetaSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUpstreamUnavailable, err)
	}
	if len(body) > maxMetaSize {
		return nil, fmt.Errorf("%w: metadata document too large", ErrUpstreamUnavailable)
	}

	prefixes, err := decodeMeta(body, f.Key)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, err)
	}

	now := time.Now
	if f.Now != nil {
		now = f.Now
	}
	return New(prefixes, now().UTC(), OriginUpstream), nil
}

func decodeMeta(body []byte, key string) ([]netip.Prefix, error) {
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	raw, ok := doc[key]
	if !ok {
		return nil, fmt.Errorf("metadata has no %q key", key)
	}
	var blocks []string
	if err := json.Unmarshal(raw, &blocks); err != nil {
		return nil, fmt.Errorf("metadata %q is not a list of strings: %w", key, err)
	}
	if len(blocks) == 0 {
		return nil, fmt.Errorf("metadata %q is empty", key)
	}
	return ParseBlocks(blocks)
}
