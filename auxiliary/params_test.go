package aux

import (
	"net/netip"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"tally"
)

func TestCorrectParametersTemporaryDB(t *testing.T) {
	got, tempDB, err := correctParameters(NodeParameters{})
	if err != nil {
		t.Fatalf("correctParameters: %v", err)
	}
	if !tempDB {
		t.Fatal("empty DBPath not flagged as temporary")
	}
	t.Cleanup(func() { os.RemoveAll(filepath.Dir(got.DBPath)) })

	if !got.Rebuild {
		t.Fatal("temporary database did not force a rebuild")
	}
	rel, err := filepath.Rel(os.TempDir(), got.DBPath)
	if err != nil || strings.HasPrefix(rel, "..") {
		t.Fatalf("temporary path %q is outside %q", got.DBPath, os.TempDir())
	}
}

func TestCorrectParametersKeepsSuppliedPath(t *testing.T) {
	in := NodeParameters{DBPath: "/var/lib/tally/chain.db", Rebuild: false}
	got, tempDB, err := correctParameters(in)
	if err != nil {
		t.Fatalf("correctParameters: %v", err)
	}
	if tempDB {
		t.Fatal("supplied path flagged as temporary")
	}
	if got.DBPath != in.DBPath {
		t.Fatalf("DBPath = %q, want %q untouched", got.DBPath, in.DBPath)
	}
	if got.Rebuild {
		t.Fatal("rebuild flipped on for a supplied path")
	}
}

func TestCorrectParametersOverwritesNetwork(t *testing.T) {
	peers := []netip.AddrPort{netip.MustParseAddrPort("10.0.0.7:3000")}
	in := NodeParameters{
		DBPath:   "/var/lib/tally/chain.db",
		SelfName: "relay-1",
		Peers:    peers,
		// Caller-supplied network settings must not survive correction.
		Net: tally.NetworkConfig{DefaultPort: 9999, AddrMode: tally.AddrAny},
	}
	got, _, err := correctParameters(in)
	if err != nil {
		t.Fatalf("correctParameters: %v", err)
	}
	want := tally.AuxNetworkConfig("relay-1", peers)
	if !reflect.DeepEqual(got.Net, want) {
		t.Fatalf("Net = %+v, want derived %+v", got.Net, want)
	}

	// Same inputs, same derivation.
	again, _, err := correctParameters(in)
	if err != nil {
		t.Fatalf("correctParameters: %v", err)
	}
	if !reflect.DeepEqual(got.Net, again.Net) {
		t.Fatal("network derivation is not deterministic")
	}
}
