package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"tally/config"
)

const secretFileName = "secret.json"

// secretFile is the on-disk format for the console's signing key. Only
// the seed is stored; the full key is rederived on load.
type secretFile struct {
	Seed string `json:"seed"`
	Name string `json:"name,omitempty"`
}

func defaultSecretPath() string {
	return filepath.Join(filepath.Dir(config.Path()), secretFileName)
}

// loadOrCreateSecret reads the signing key at path, generating and
// persisting a new one on first use. An empty path means the default
// location next to the node config.
func loadOrCreateSecret(path string) (ed25519.PrivateKey, error) {
	if path == "" {
		path = defaultSecretPath()
	}

	data, err := os.ReadFile(path)
	if err == nil {
		return parseSecret(data)
	}
	if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("read secret: %w", err)
	}

	key, err := generateSecret()
	if err != nil {
		return nil, err
	}
	if err := saveSecret(path, key); err != nil {
		return nil, err
	}
	return key, nil
}

func parseSecret(data []byte) (ed25519.PrivateKey, error) {
	var f secretFile
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse secret: %w", err)
	}

	seed, err := base64.StdEncoding.DecodeString(f.Seed)
	if err != nil {
		return nil, fmt.Errorf("decode secret seed: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("secret seed is %d bytes, want %d", len(seed), ed25519.SeedSize)
	}
	return ed25519.NewKeyFromSeed(seed), nil
}

func generateSecret() (ed25519.PrivateKey, error) {
	_, key, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate secret: %w", err)
	}
	return key, nil
}

func saveSecret(path string, key ed25519.PrivateKey) error {
	hostname, _ := os.Hostname() // informational only

	f := secretFile{
		Seed: base64.StdEncoding.EncodeToString(key.Seed()),
		Name: hostname,
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal secret: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("create secret dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("write secret: %w", err)
	}
	return nil
}
