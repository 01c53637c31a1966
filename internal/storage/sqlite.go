// Package storage persists the last good allowlist in SQLite so a restart
// can serve from it while the provider's metadata endpoint is down.
package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

const busyTimeout = 5 * time.Second

const schema = `
CREATE TABLE IF NOT EXISTS allowlist_snapshot (
  id         INTEGER PRIMARY KEY CHECK (id = 1),
  blocks     JSON NOT NULL,
  checksum   TEXT NOT NULL,
  fetched_at TEXT NOT NULL,
  saved_at   TEXT NOT NULL
);`

// OpenSQLite opens the snapshot database at path, creating the file, its
// directory and the schema as needed. The path must be on local disk.
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	if path == "" {
		return nil, errors.New("storage: snapshot path is empty")
	}
	if err := requireLocal(path, statFilesystem); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create snapshot directory: %w", err)
	}

	db, err := sql.Open("sqlite", dsn(path))
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// One writer is all the snapshot ever needs.
	db.SetMaxOpenConns(1)

	pctx, cancel := context.WithTimeout(ctx, busyTimeout)
	defer cancel()
	if err := db.PingContext(pctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("open sqlite %q: %w", path, err)
	}
	if err := BootstrapSQLite(pctx, db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// dsn carries connection pragmas in the URI so every pooled connection gets them.
func dsn(path string) string {
	q := url.Values{}
	q.Add("_pragma", fmt.Sprintf("busy_timeout(%d)", busyTimeout.Milliseconds()))
	q.Add("_pragma", "journal_mode(WAL)")
	return "file:" + path + "?" + q.Encode()
}

// BootstrapSQLite creates the schema if missing. It is idempotent.
func BootstrapSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("bootstrap sqlite: %w", err)
	}
	return nil
}
