package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ErrNetworkFilesystem is returned by OpenSQLite when the snapshot would
// live on a network mount, where SQLite and flock locking are unreliable.
var ErrNetworkFilesystem = errors.New("storage: snapshot path is on a network filesystem")

// remoteFilesystems are the names statFilesystem reports for network mounts.
var remoteFilesystems = []string{"afpfs", "cifs", "nfs", "smb2", "smbfs", "webdav"}

// fsNamer reports the filesystem type holding an existing path.
type fsNamer func(path string) (string, error)

// requireLocal fails when dbPath, or the closest ancestor that exists yet,
// sits on a remote filesystem.
func requireLocal(dbPath string, name fsNamer) error {
	dir, err := existingAncestor(dbPath)
	if err != nil {
		return fmt.Errorf("resolve snapshot path %q: %w", dbPath, err)
	}
	fsType, err := name(dir)
	if err != nil {
		return fmt.Errorf("inspect filesystem of %q: %w", dir, err)
	}
	if isRemote(fsType) {
		return fmt.Errorf("%w: %q is on %s; point allowlist.snapshot_path at local disk", ErrNetworkFilesystem, dbPath, fsType)
	}
	return nil
}

func existingAncestor(path string) (string, error) {
	p, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	for {
		_, err := os.Stat(p)
		switch {
		case err == nil:
			return p, nil
		case !errors.Is(err, fs.ErrNotExist):
			return "", err
		}
		parent := filepath.Dir(p)
		if parent == p {
			return "", fmt.Errorf("no existing ancestor")
		}
		p = parent
	}
}

func isRemote(fsType string) bool {
	return slices.Contains(remoteFilesystems, strings.ToLower(strings.TrimSpace(fsType)))
}
