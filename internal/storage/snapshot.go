package storage

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zeebo/blake3"

	"github.com/mattjoyce/hookserver/internal/allowlist"
)

// AllowlistStore persists the last good allowlist in SQLite.
// It implements allowlist.SnapshotStore.
type AllowlistStore struct {
	db  *sql.DB
	now func() time.Time
}

func NewAllowlistStore(db *sql.DB) *AllowlistStore {
	return &AllowlistStore{db: db, now: time.Now}
}

// SaveAllowlist replaces the stored snapshot.
func (s *AllowlistStore) SaveAllowlist(ctx context.Context, list *allowlist.Allowlist) error {
	if list == nil || list.Len() == 0 {
		return fmt.Errorf("refusing to store an empty allowlist")
	}
	blocks, err := json.Marshal(list.Strings())
	if err != nil {
		return fmt.Errorf("marshal allowlist: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
INSERT INTO allowlist_snapshot(id, blocks, checksum, fetched_at, saved_at)
VALUES(1, ?, ?, ?, ?)
ON CONFLICT(id) DO UPDATE SET
  blocks = excluded.blocks,
  checksum = excluded.checksum,
  fetched_at = excluded.fetched_at,
  saved_at = excluded.saved_at;
`,
		string(blocks),
		checksum(blocks),
		list.FetchedAt().UTC().Format(time.RFC3339Nano),
		s.now().UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save allowlist snapshot: %w", err)
	}
	return nil
}

// LoadAllowlist returns the stored snapshot, or allowlist.ErrNoSnapshot.
func (s *AllowlistStore) LoadAllowlist(ctx context.Context) (*allowlist.Allowlist, error) {
	var blocks, sum, fetchedAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT blocks, checksum, fetched_at FROM allowlist_snapshot WHERE id = 1;`,
	).Scan(&blocks, &sum, &fetchedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, allowlist.ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("load allowlist snapshot: %w", err)
	}

	if checksum([]byte(blocks)) != sum {
		return nil, fmt.Errorf("allowlist snapshot checksum mismatch")
	}

	var raw []string
	if err := json.Unmarshal([]byte(blocks), &raw); err != nil {
		return nil, fmt.Errorf("decode allowlist snapshot: %w", err)
	}
	prefixes, err := allowlist.ParseBlocks(raw)
	if err != nil {
		return nil, fmt.Errorf("parse allowlist snapshot: %w", err)
	}
	at, err := time.Parse(time.RFC3339Nano, fetchedAt)
	if err != nil {
		return nil, fmt.Errorf("parse fetched_at: %w", err)
	}
	return allowlist.New(prefixes, at, allowlist.OriginSnapshot), nil
}

func checksum(b []byte) string {
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:])
}
