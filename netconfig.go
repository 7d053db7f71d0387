package tally

import (
	"net/netip"
	"time"
)

// ProtocolVersion is the peer wire protocol generation this build
// speaks. Carried in every envelope; peers below a node's configured
// floor are refused.
const ProtocolVersion uint32 = 1

// AddrMode selects how the transport binds its listener.
type AddrMode uint8

const (
	// AddrLoopback binds 127.0.0.1 with an ephemeral port. The aux console
	// default: reachable for outbound gossip, not advertised.
	AddrLoopback AddrMode = iota + 1
	// AddrAny binds all interfaces on DefaultPort.
	AddrAny
)

func (m AddrMode) String() string {
	switch m {
	case AddrLoopback:
		return "loopback"
	case AddrAny:
		return "any"
	default:
		return "unknown"
	}
}

// EnqueuePolicy bounds the diffusion outbound queue.
type EnqueuePolicy struct {
	// MaxQueued is the queue depth beyond which new items are dropped.
	MaxQueued int
}

// DequeuePolicy paces delivery from the outbound queue.
type DequeuePolicy struct {
	// MaxInFlight caps concurrent sends across all peers.
	MaxInFlight int
}

// FailurePolicy governs peer failure handling.
type FailurePolicy struct {
	// ReconnectDelay is how long a failed peer sits out before redial.
	ReconnectDelay time.Duration
}

// Topology is the static description of how this node addresses peers.
type Topology struct {
	Peers []netip.AddrPort
	// Valency is how many peers each gossip round targets; 0 means all.
	Valency int
}

// NetworkConfig carries everything the transport and diffusion layers need.
// Immutable once constructed.
type NetworkConfig struct {
	DefaultPort uint16
	SelfName    string // optional; advertised in handshakes when set
	Enqueue     EnqueuePolicy
	Dequeue     DequeuePolicy
	Failure     FailurePolicy
	Topology    Topology
	AddrMode    AddrMode
}

// Aux console networking defaults. The console never serves inbound ledger
// traffic on a well-known port, so the fixed topology keeps it on loopback.
const (
	DefaultPort = 3000

	auxMaxQueued      = 128
	auxMaxInFlight    = 64
	auxReconnectDelay = 5 * time.Second
)

// AuxNetworkConfig derives the fixed configuration the auxiliary console
// always runs with: a static peer-list topology and loopback binding.
// The derivation is deterministic in the peer list.
func AuxNetworkConfig(selfName string, peers []netip.AddrPort) NetworkConfig {
	return NetworkConfig{
		DefaultPort: DefaultPort,
		SelfName:    selfName,
		Enqueue:     EnqueuePolicy{MaxQueued: auxMaxQueued},
		Dequeue:     DequeuePolicy{MaxInFlight: auxMaxInFlight},
		Failure:     FailurePolicy{ReconnectDelay: auxReconnectDelay},
		Topology:    Topology{Peers: peers},
		AddrMode:    AddrLoopback,
	}
}
