package config

import (
	"errors"
	"io/fs"
	"net/netip"
	"os"
	"path/filepath"
	"testing"
	"time"

	"tally"
)

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestLoadMissingFileIsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if !errors.Is(err, fs.ErrNotExist) {
		t.Fatalf("Load() error = %v, want fs.ErrNotExist in chain", err)
	}
}

func TestLoadBadYAMLIsParseError(t *testing.T) {
	path := writeFile(t, "node.yaml", "node-name: [unclosed")

	_, err := Load(path)
	var perr *ParseError
	if !errors.As(err, &perr) {
		t.Fatalf("Load() error = %T, want *ParseError", err)
	}
	if perr.Path != path {
		t.Fatalf("ParseError.Path = %q, want %q", perr.Path, path)
	}
}

func TestLoadBadGenesisIsValidationError(t *testing.T) {
	path := writeFile(t, "node.yaml", "node-name: alpha\ngenesis-hash: not-hex\n")

	_, err := Load(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("Load() error = %T, want *ValidationError", err)
	}
	if verr.Field != "genesis-hash" {
		t.Fatalf("ValidationError.Field = %q, want genesis-hash", verr.Field)
	}
}

func TestLoadKeepsBaselineForUnsetFields(t *testing.T) {
	path := writeFile(t, "node.yaml", "node-name: alpha\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.NodeName != "alpha" {
		t.Fatalf("NodeName = %q, want alpha", cfg.NodeName)
	}
	if cfg.SlotDuration.Std() != 20*time.Second {
		t.Fatalf("SlotDuration = %v, want baseline 20s", cfg.SlotDuration)
	}
	if cfg.ListenPort != tally.DefaultPort {
		t.Fatalf("ListenPort = %d, want baseline %d", cfg.ListenPort, tally.DefaultPort)
	}
}

func TestLoadParsesHumanDurations(t *testing.T) {
	path := writeFile(t, "node.yaml", "node-name: alpha\nslot-duration: 45s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.SlotDuration.Std() != 45*time.Second {
		t.Fatalf("SlotDuration = %v, want 45s", cfg.SlotDuration)
	}

	bad := writeFile(t, "bad.yaml", "node-name: alpha\nslot-duration: soon\n")
	if _, err := Load(bad); err == nil {
		t.Fatal("Load() accepted an unparseable duration")
	}
}

func TestLightConfigValidates(t *testing.T) {
	if err := Light().Validate(); err != nil {
		t.Fatalf("Light().Validate() = %v, want nil", err)
	}
}

func TestSaveNetworkThenLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "network.yaml")
	peer := netip.MustParseAddrPort("127.0.0.1:3000")
	want := tally.AuxNetworkConfig("aux", []netip.AddrPort{peer})

	if err := SaveNetwork(path, want); err != nil {
		t.Fatalf("SaveNetwork() error = %v", err)
	}
	got, err := LoadNetwork(path)
	if err != nil {
		t.Fatalf("LoadNetwork() error = %v", err)
	}

	if got.SelfName != want.SelfName {
		t.Fatalf("SelfName = %q, want %q", got.SelfName, want.SelfName)
	}
	if len(got.Topology.Peers) != 1 || got.Topology.Peers[0] != peer {
		t.Fatalf("Peers = %v, want [%v]", got.Topology.Peers, peer)
	}
	if got.Enqueue != want.Enqueue || got.Dequeue != want.Dequeue || got.Failure != want.Failure {
		t.Fatalf("policies = %+v/%+v/%+v, want %+v/%+v/%+v",
			got.Enqueue, got.Dequeue, got.Failure, want.Enqueue, want.Dequeue, want.Failure)
	}
}

func TestLoadNetworkRejectsBadPeer(t *testing.T) {
	path := writeFile(t, "network.yaml", "self: aux\npeers:\n  - not-an-addr\n")

	_, err := LoadNetwork(path)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("LoadNetwork() error = %T, want *ValidationError", err)
	}
}
