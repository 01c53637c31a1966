package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFileName is the integrity manifest written next to the config file.
const ChecksumFileName = ".checksums"

const manifestVersion = 1

// ErrTampered means a locked config file no longer matches its manifest.
var ErrTampered = errors.New("config: file does not match its lock")

// Digest is the hex BLAKE3-256 of data, the form stored in the manifest.
func Digest(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Lock pins the config file at configPath (a file or a directory holding
// config.yaml) in the .checksums manifest beside it. Entries for other files
// already in the manifest are kept. Returns the manifest path.
func Lock(configPath string) (string, error) {
	absPath, err := ResolvePath(configPath)
	if err != nil {
		return "", err
	}
	data, err := os.ReadFile(absPath)
	if err != nil {
		return "", fmt.Errorf("read %s: %w", absPath, err)
	}

	dir := filepath.Dir(absPath)
	manifest, err := LoadChecksums(dir)
	if err != nil {
		return "", err
	}
	if manifest == nil {
		manifest = &ChecksumManifest{Version: manifestVersion, Hashes: map[string]string{}}
	}
	manifest.GeneratedAt = time.Now().UTC().Format(time.RFC3339)
	manifest.Hashes[filepath.Base(absPath)] = Digest(data)

	out, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("encode checksums: %w", err)
	}
	path := filepath.Join(dir, ChecksumFileName)
	if err := os.WriteFile(path, out, 0o600); err != nil {
		return "", fmt.Errorf("write checksums: %w", err)
	}
	return path, nil
}

// LoadChecksums reads the manifest in configDir. A missing manifest is
// (nil, nil): the config is simply not locked.
func LoadChecksums(configDir string) (*ChecksumManifest, error) {
	data, err := os.ReadFile(filepath.Join(configDir, ChecksumFileName))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("parse checksums: %w", err)
	}
	if manifest.Version != manifestVersion {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	if manifest.Hashes == nil {
		manifest.Hashes = map[string]string{}
	}
	return &manifest, nil
}

// verifyLocked checks data, the bytes just read from absPath, against the
// manifest next to it. Hashing the same bytes that get parsed means a file
// swapped between check and read cannot slip through.
func verifyLocked(absPath string, data []byte) error {
	manifest, err := LoadChecksums(filepath.Dir(absPath))
	if err != nil || manifest == nil {
		return err
	}

	name := filepath.Base(absPath)
	want, ok := manifest.Hashes[name]
	if !ok {
		return fmt.Errorf("%w: %s has no entry in %s (run 'hookserver config lock')", ErrTampered, name, ChecksumFileName)
	}
	if got := Digest(data); got != want {
		return fmt.Errorf("%w: %s hash mismatch: expected %s, got %s\n"+
			"If you edited this file intentionally, run: hookserver config lock", ErrTampered, name, want, got)
	}
	return nil
}
