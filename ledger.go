package tally

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"net/netip"
	"time"
)

// BlockHash identifies a block by the digest of its header fields.
type BlockHash [32]byte

func (h BlockHash) String() string { return hex.EncodeToString(h[:]) }

// IsZero reports whether the hash is the all-zero value, used for the
// genesis parent.
func (h BlockHash) IsZero() bool { return h == BlockHash{} }

// ParseBlockHash decodes a 64-character hex string.
func ParseBlockHash(s string) (BlockHash, error) {
	raw, err := hex.DecodeString(s)
	if err != nil {
		return BlockHash{}, fmt.Errorf("parse block hash: %w", err)
	}
	if len(raw) != 32 {
		return BlockHash{}, fmt.Errorf("parse block hash: %d bytes, want 32", len(raw))
	}
	var h BlockHash
	copy(h[:], raw)
	return h, nil
}

// BlockHeader is the chain-ordering part of a block. Hash is derived, not
// stored on the wire.
type BlockHeader struct {
	Parent BlockHash
	Slot   uint64
	Height uint64
}

// Hash digests the header fields. Payloads are committed separately and are
// not part of chain ordering.
func (h BlockHeader) Hash() BlockHash {
	var buf [32 + 8 + 8]byte
	copy(buf[:32], h.Parent[:])
	binary.BigEndian.PutUint64(buf[32:40], h.Slot)
	binary.BigEndian.PutUint64(buf[40:48], h.Height)
	return sha256.Sum256(buf[:])
}

// Block is a header plus its opaque payload.
type Block struct {
	Header  BlockHeader
	Payload []byte
}

// Tip is the best block a node knows about.
type Tip struct {
	Hash   BlockHash
	Slot   uint64
	Height uint64
}

// Behind reports whether the tip trails other.
func (t Tip) Behind(other Tip) bool {
	return t.Height < other.Height
}

// SyncState is the logic layer's answer to "am I in sync".
type SyncState struct {
	InSync    bool
	TipSlot   uint64
	WallSlot  uint64        // slot implied by the wall clock
	ClockSkew time.Duration // NTP offset, zero when unprobed
	CheckedAt time.Time
}

// PeerStatus is a diffusion-layer view of one configured peer.
type PeerStatus struct {
	Addr     netip.AddrPort
	Version  uint32 // protocol version the peer advertised, 0 before contact
	LastSeen time.Time
}

// Logic is the capability surface protocol logic exposes to the diffusion
// layer and, transitively, to the hosted action. Values are valid only
// inside the logic layer's run scope.
type Logic interface {
	// Tip returns the best known chain tip.
	Tip(ctx context.Context) (Tip, error)

	// SyncState reports whether the node considers itself caught up.
	SyncState(ctx context.Context) SyncState

	// AcceptBlock validates a block received from the network and extends
	// the chain when it improves on the current tip.
	AcceptBlock(ctx context.Context, b Block) error
}

// Diffusion is the capability surface the hosted action uses to talk to
// peers. Values are valid only inside the diffusion layer's run scope.
type Diffusion interface {
	// AnnounceTip offers our tip to every reachable peer.
	AnnounceTip(ctx context.Context, tip Tip) error

	// SubmitBlock hands a block to the network.
	SubmitBlock(ctx context.Context, b Block) error

	// RequestTip asks peers for their best tip; the first answer wins.
	RequestTip(ctx context.Context) (Tip, error)

	// Peers snapshots the peers currently known to the layer.
	Peers() []PeerStatus
}
