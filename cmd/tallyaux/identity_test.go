package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadOrCreateSecretRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "secret.json")

	created, err := loadOrCreateSecret(path)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("secret file missing: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0o600 {
		t.Fatalf("secret file mode = %o, want 600", perm)
	}

	loaded, err := loadOrCreateSecret(path)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if !bytes.Equal(created, loaded) {
		t.Fatal("reloaded secret differs from the generated one")
	}
}

func TestParseSecretRejectsBadSeed(t *testing.T) {
	if _, err := parseSecret([]byte(`{"seed": "dG9vIHNob3J0"}`)); err == nil {
		t.Fatal("short seed accepted")
	}
	if _, err := parseSecret([]byte(`not json`)); err == nil {
		t.Fatal("malformed file accepted")
	}
}
