// Package config loads and validates the node configuration consumed by
// the auxiliary process.
//
// Two files live here: the node config (identity, protocol parameters,
// genesis) and the network config (peers and delivery policies). Both are
// YAML. Load failures come back as typed errors so callers can decide
// which ones are safe to fall back from and which must stop the process.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"tally"
)

// Duration wraps time.Duration so config files carry human-readable
// values like "20s" instead of raw nanosecond counts.
type Duration time.Duration

func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Std returns the wrapped standard duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ParseError reports a config file that exists but cannot be decoded.
type ParseError struct {
	Path string
	Err  error
}

func (e *ParseError) Error() string { return fmt.Sprintf("parse %s: %v", e.Path, e.Err) }
func (e *ParseError) Unwrap() error { return e.Err }

// ValidationError reports a config file that decodes but carries an
// unusable value.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config: %s: %s", e.Field, e.Reason)
}

// Config is the full node configuration. The auxiliary process runs
// against either a loaded one or the built-in light baseline.
type Config struct {
	// NodeName identifies this node to peers and in logs.
	NodeName string `yaml:"node-name"`

	// GenesisHash anchors the chain this node follows, hex encoded.
	// Required when loaded from disk; the light baseline leaves it zero
	// and skips genesis verification.
	GenesisHash string `yaml:"genesis-hash,omitempty"`

	// SlotDuration is the protocol slot length used to derive the
	// current wall-clock slot.
	SlotDuration Duration `yaml:"slot-duration"`

	// ChainStart is the wall-clock instant of slot zero. Zero means the
	// chain starts when the process does, which is how light runs
	// behave.
	ChainStart time.Time `yaml:"chain-start,omitempty"`

	// ListenPort is the default port for the diffusion endpoint.
	ListenPort uint16 `yaml:"listen-port"`

	// NTPServers are queried to estimate local clock skew.
	NTPServers []string `yaml:"ntp-servers,omitempty"`

	// MinPeerVersion is the lowest protocol version accepted from peers.
	MinPeerVersion uint32 `yaml:"min-peer-version"`

	// LogLevel sets the default log verbosity (debug, info, warn, error).
	LogLevel string `yaml:"log-level,omitempty"`
}

// Genesis returns the parsed genesis hash. Zero hash when unset.
func (c *Config) Genesis() (tally.BlockHash, error) {
	if c.GenesisHash == "" {
		return tally.BlockHash{}, nil
	}
	return tally.ParseBlockHash(c.GenesisHash)
}

// Path returns the default node config location. It respects
// XDG_CONFIG_HOME, falling back to ~/.config/tally/node.yaml.
func Path() string {
	dir := os.Getenv("XDG_CONFIG_HOME")
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return filepath.Join(".config", "tally", "node.yaml")
		}
		dir = filepath.Join(home, ".config")
	}
	return filepath.Join(dir, "tally", "node.yaml")
}

// Light returns the built-in baseline used when no configuration file is
// in play. It carries no genesis anchor, so chain verification against
// genesis is skipped.
func Light() *Config {
	return &Config{
		NodeName:     "aux",
		SlotDuration: Duration(20 * time.Second),
		ListenPort:   tally.DefaultPort,
		NTPServers:   []string{"time.google.com", "pool.ntp.org"},
		LogLevel:     "info",
	}
}

// Load reads and validates the node config at path. An empty path means
// the default location. The error is *ParseError for undecodable files,
// *ValidationError for bad values, and wraps fs.ErrNotExist when the
// file is missing.
func Load(path string) (*Config, error) {
	if path == "" {
		path = Path()
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read node config: %w", err)
	}

	cfg := Light()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, &ParseError{Path: path, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the loaded values. The genesis anchor is optional;
// when present it must be a well-formed hash.
func (c *Config) Validate() error {
	if c.NodeName == "" {
		return &ValidationError{Field: "node-name", Reason: "must not be empty"}
	}
	if c.SlotDuration <= 0 {
		return &ValidationError{Field: "slot-duration", Reason: "must be positive"}
	}
	if c.ListenPort == 0 {
		return &ValidationError{Field: "listen-port", Reason: "must not be zero"}
	}
	if c.GenesisHash != "" {
		if _, err := tally.ParseBlockHash(c.GenesisHash); err != nil {
			return &ValidationError{Field: "genesis-hash", Reason: err.Error()}
		}
	}
	return nil
}

// Save writes the config to path, creating directories as needed.
func (c *Config) Save(path string) error {
	if path == "" {
		path = Path()
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal node config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write node config: %w", err)
	}
	return nil
}
