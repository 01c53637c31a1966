package storage

import (
	"context"
	"errors"
	"net/netip"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/hookserver/internal/allowlist"
)

func openTestStore(t *testing.T) *AllowlistStore {
	t.Helper()
	db, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "hooks.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAllowlistStore(db)
}

func TestAllowlistStoreEmpty(t *testing.T) {
	store := openTestStore(t)
	_, err := store.LoadAllowlist(context.Background())
	assert.True(t, errors.Is(err, allowlist.ErrNoSnapshot), "got %v", err)
}

func TestAllowlistStoreRoundTrip(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	fetched := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	first := allowlist.New([]netip.Prefix{
		netip.MustParsePrefix("192.30.252.0/22"),
		netip.MustParsePrefix("2a0a:a440::/29"),
	}, fetched, allowlist.OriginUpstream)
	require.NoError(t, store.SaveAllowlist(ctx, first))

	got, err := store.LoadAllowlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.Strings(), got.Strings())
	assert.True(t, got.FetchedAt().Equal(fetched))
	assert.Equal(t, allowlist.OriginSnapshot, got.Origin())
	assert.True(t, got.Contains(netip.MustParseAddr("192.30.253.1")))

	second := allowlist.New([]netip.Prefix{netip.MustParsePrefix("140.82.112.0/20")}, fetched.Add(time.Hour), allowlist.OriginUpstream)
	require.NoError(t, store.SaveAllowlist(ctx, second))
	got, err = store.LoadAllowlist(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"140.82.112.0/20"}, got.Strings())
}

func TestAllowlistStoreRejectsEmpty(t *testing.T) {
	store := openTestStore(t)
	assert.Error(t, store.SaveAllowlist(context.Background(), allowlist.New(nil, time.Now(), allowlist.OriginUpstream)))
	assert.Error(t, store.SaveAllowlist(context.Background(), nil))
}

func TestAllowlistStoreDetectsTampering(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	list := allowlist.New([]netip.Prefix{netip.MustParsePrefix("192.30.252.0/22")}, time.Now(), allowlist.OriginUpstream)
	require.NoError(t, store.SaveAllowlist(ctx, list))

	_, err := store.db.ExecContext(ctx, `UPDATE allowlist_snapshot SET blocks = '["0.0.0.0/0"]' WHERE id = 1;`)
	require.NoError(t, err)

	_, err = store.LoadAllowlist(ctx)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "checksum mismatch")
}
