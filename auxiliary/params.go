package aux

import (
	"crypto/ed25519"
	"log/slog"
	"net/netip"
	"os"
	"path/filepath"

	"tally"
)

// NodeParameters is everything one run needs beyond the loaded
// configuration. Corrected once by the orchestrator, read-only after.
type NodeParameters struct {
	// DBPath locates the chain database file. Empty means "give me a
	// throwaway one".
	DBPath string

	// Rebuild drops existing chain state before the run.
	Rebuild bool

	// SelfName is advertised to peers. Defaults from the loaded config
	// when present.
	SelfName string

	// Peers is the static topology for this run.
	Peers []netip.AddrPort

	// Secret signs whatever the hosted plugin submits.
	Secret ed25519.PrivateKey

	// Net is derived during correction; any caller-supplied value is
	// discarded. The console always runs its own fixed topology.
	Net tally.NetworkConfig
}

// correctParameters pins down the storage location and the network
// config. With no DBPath a fresh OS temp directory is used and a rebuild
// is forced, so stale temp contents can never leak into a run. The
// returned flag records that the database is temporary.
func correctParameters(p NodeParameters) (NodeParameters, bool, error) {
	tempDB := false
	if p.DBPath == "" {
		dir, err := os.MkdirTemp("", "tally-aux-db-")
		if err != nil {
			return NodeParameters{}, false, err
		}
		p.DBPath = filepath.Join(dir, "chain.db")
		p.Rebuild = true
		tempDB = true
		slog.Info("Temporary chain db.", "path", p.DBPath)
	} else {
		slog.Info("Supplied chain db.", "path", p.DBPath)
	}

	if p.SelfName == "" {
		p.SelfName = "aux"
	}
	p.Net = tally.AuxNetworkConfig(p.SelfName, p.Peers)

	return p, tempDB, nil
}
