package config

import (
	"fmt"
	"net/netip"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"tally"
)

// networkFile is the YAML shape of the network config. Peers are
// host:port strings on disk and netip values in memory.
type networkFile struct {
	Self        string   `yaml:"self"`
	DefaultPort uint16   `yaml:"default-port"`
	Listen      string   `yaml:"listen,omitempty"` // loopback or any
	Peers       []string `yaml:"peers"`
	Valency     int      `yaml:"valency"`

	MaxQueued      int      `yaml:"max-queued"`
	MaxInFlight    int      `yaml:"max-in-flight"`
	ReconnectDelay Duration `yaml:"reconnect-delay"`
}

// LoadNetwork reads the network config at path. Errors follow the same
// typing as Load: *ParseError, *ValidationError, or a wrapped
// fs.ErrNotExist.
func LoadNetwork(path string) (tally.NetworkConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return tally.NetworkConfig{}, fmt.Errorf("read network config: %w", err)
	}

	var nf networkFile
	if err := yaml.Unmarshal(data, &nf); err != nil {
		return tally.NetworkConfig{}, &ParseError{Path: path, Err: err}
	}

	nc := tally.NetworkConfig{
		SelfName:    nf.Self,
		DefaultPort: nf.DefaultPort,
		Enqueue:     tally.EnqueuePolicy{MaxQueued: nf.MaxQueued},
		Dequeue:     tally.DequeuePolicy{MaxInFlight: nf.MaxInFlight},
		Failure:     tally.FailurePolicy{ReconnectDelay: nf.ReconnectDelay.Std()},
		Topology:    tally.Topology{Valency: nf.Valency},
	}
	if nc.DefaultPort == 0 {
		nc.DefaultPort = tally.DefaultPort
	}

	switch nf.Listen {
	case "", "loopback":
		nc.AddrMode = tally.AddrLoopback
	case "any":
		nc.AddrMode = tally.AddrAny
	default:
		return tally.NetworkConfig{}, &ValidationError{Field: "listen", Reason: fmt.Sprintf("unknown mode %q", nf.Listen)}
	}

	for _, raw := range nf.Peers {
		addr, err := netip.ParseAddrPort(raw)
		if err != nil {
			return tally.NetworkConfig{}, &ValidationError{Field: "peers", Reason: fmt.Sprintf("bad address %q: %v", raw, err)}
		}
		nc.Topology.Peers = append(nc.Topology.Peers, addr)
	}
	if nc.Topology.Valency <= 0 {
		nc.Topology.Valency = len(nc.Topology.Peers)
	}
	return nc, nil
}

// SaveNetwork writes nc to path, creating directories as needed. Used
// when a fixed topology is forced onto the run and the file must reflect
// what the process will actually do.
func SaveNetwork(path string, nc tally.NetworkConfig) error {
	nf := networkFile{
		Self:           nc.SelfName,
		DefaultPort:    nc.DefaultPort,
		Valency:        nc.Topology.Valency,
		MaxQueued:      nc.Enqueue.MaxQueued,
		MaxInFlight:    nc.Dequeue.MaxInFlight,
		ReconnectDelay: Duration(nc.Failure.ReconnectDelay),
	}
	if nc.AddrMode == tally.AddrAny {
		nf.Listen = "any"
	}
	for _, addr := range nc.Topology.Peers {
		nf.Peers = append(nf.Peers, addr.String())
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create network config dir: %w", err)
	}
	data, err := yaml.Marshal(nf)
	if err != nil {
		return fmt.Errorf("marshal network config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write network config: %w", err)
	}
	return nil
}
