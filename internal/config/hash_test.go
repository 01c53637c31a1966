package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const lockedYAML = `
security:
  signing_key: s3cret
`

func TestLockWritesManifest(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(lockedYAML), 0600); err != nil {
		t.Fatal(err)
	}

	checksumPath, err := Lock(tmpDir)
	if err != nil {
		t.Fatalf("Lock() failed: %v", err)
	}
	if checksumPath != filepath.Join(tmpDir, ChecksumFileName) {
		t.Errorf("checksumPath = %q", checksumPath)
	}

	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatalf("LoadChecksums() failed: %v", err)
	}
	if manifest == nil || manifest.Hashes["config.yaml"] == "" {
		t.Fatal("manifest should contain a hash for config.yaml")
	}

	if _, err := Load(cfgPath); err != nil {
		t.Fatalf("Load() of locked, unmodified config failed: %v", err)
	}
}

func TestLoadRejectsTamperedLockedConfig(t *testing.T) {
	tmpDir := t.TempDir()
	cfgPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(cfgPath, []byte(lockedYAML), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(cfgPath); err != nil {
		t.Fatal(err)
	}

	tampered := lockedYAML + "  allow_unsigned: false\n"
	if err := os.WriteFile(cfgPath, []byte(tampered), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := Load(cfgPath)
	if err == nil {
		t.Fatal("expected verification error for modified config")
	}
	if !errors.Is(err, ErrTampered) || !strings.Contains(err.Error(), "hash mismatch") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestLoadChecksumsMissingIsNotAnError(t *testing.T) {
	manifest, err := LoadChecksums(t.TempDir())
	if err != nil {
		t.Fatalf("LoadChecksums() error = %v", err)
	}
	if manifest != nil {
		t.Fatal("expected nil manifest when file is absent")
	}
}

func TestLoadChecksumsRejectsUnknownVersion(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, ChecksumFileName), []byte("version: 2\nhashes: {}\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadChecksums(tmpDir); err == nil {
		t.Fatal("expected error for unsupported version")
	}
}

func TestDigest(t *testing.T) {
	a := Digest([]byte("payload"))
	if a != Digest([]byte("payload")) || len(a) != 64 {
		t.Errorf("digest not deterministic or wrong length: %q", a)
	}
	if a == Digest([]byte("payload2")) {
		t.Error("different input, same digest")
	}
}

func TestLockKeepsOtherEntries(t *testing.T) {
	tmpDir := t.TempDir()
	for _, name := range []string{"config.yaml", "staging.yaml"} {
		if err := os.WriteFile(filepath.Join(tmpDir, name), []byte(lockedYAML), 0600); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := Lock(filepath.Join(tmpDir, "staging.yaml")); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(tmpDir); err != nil {
		t.Fatal(err)
	}

	manifest, err := LoadChecksums(tmpDir)
	if err != nil {
		t.Fatal(err)
	}
	if len(manifest.Hashes) != 2 {
		t.Fatalf("hashes = %v, want both files", manifest.Hashes)
	}
	if _, err := Load(filepath.Join(tmpDir, "staging.yaml")); err != nil {
		t.Fatalf("Load(staging) error = %v", err)
	}
}

func TestLoadRejectsUnlistedFileInLockedDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, "config.yaml"), []byte(lockedYAML), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Lock(tmpDir); err != nil {
		t.Fatal(err)
	}
	other := filepath.Join(tmpDir, "other.yaml")
	if err := os.WriteFile(other, []byte(lockedYAML), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(other); !errors.Is(err, ErrTampered) {
		t.Fatalf("Load(other) error = %v, want ErrTampered", err)
	}
}
