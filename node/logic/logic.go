// Package logic implements the node's chain logic: tip tracking, block
// acceptance, and sync judgement against wall-clock slots.
package logic

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"

	"tally"
	"tally/internal/check"
	"tally/internal/telemetry"
)

// ErrNotExtendingTip reports a block whose parent is not the current
// tip. The chain only grows at the tip; forks are rejected here.
var ErrNotExtendingTip = errors.New("logic: block does not extend current tip")

// defaultSyncSlack is how many slots the tip may trail the wall clock
// and still count as in sync.
const defaultSyncSlack = 2

// Params configure the chain logic.
type Params struct {
	Store ChainStore
	Clock Clock

	// SlotDuration is the protocol slot length.
	SlotDuration time.Duration

	// ChainStart anchors slot zero. Zero means "now", which lets light
	// runs without configuration start in sync.
	ChainStart time.Time

	// Genesis is the required parent of the first block. Zero in light
	// runs.
	Genesis tally.BlockHash

	// Skew supplies the latest clock-skew measurement. Nil means trust
	// the local clock.
	Skew func() SkewStatus

	// SyncSlack overrides defaultSyncSlack when positive.
	SyncSlack uint64

	// Tracer is the telemetry sink for block acceptance. Nil disables
	// tracing.
	Tracer trace.Tracer
}

type chainLogic struct {
	store      ChainStore
	clock      Clock
	slotLen    time.Duration
	chainStart time.Time
	genesis    tally.BlockHash
	skew       func() SkewStatus
	syncSlack  uint64
	tracer     trace.Tracer
}

func newChainLogic(p Params) *chainLogic {
	check.Assert(p.Store != nil, "logic: store must not be nil")
	check.Assert(p.SlotDuration > 0, "logic: slot duration must be positive")

	clock := p.Clock
	if clock == nil {
		clock = RealClock{}
	}
	start := p.ChainStart
	if start.IsZero() {
		start = clock.Now()
	}
	slack := p.SyncSlack
	if slack == 0 {
		slack = defaultSyncSlack
	}
	return &chainLogic{
		store:      p.Store,
		clock:      clock,
		slotLen:    p.SlotDuration,
		chainStart: start,
		genesis:    p.Genesis,
		skew:       p.Skew,
		syncSlack:  slack,
		tracer:     p.Tracer,
	}
}

func (l *chainLogic) Tip(ctx context.Context) (tally.Tip, error) {
	return l.store.Tip(ctx)
}

func (l *chainLogic) SyncState(ctx context.Context) tally.SyncState {
	now := l.clock.Now()
	state := tally.SyncState{CheckedAt: now}
	if l.skew != nil {
		state.ClockSkew = l.skew().Offset
	}

	tip, err := l.store.Tip(ctx)
	if err != nil {
		slog.Warn("sync state: tip unavailable", "err", err)
		return state
	}

	state.TipSlot = tip.Slot
	state.WallSlot = l.wallSlot(now.Add(state.ClockSkew))
	state.InSync = state.TipSlot+l.syncSlack >= state.WallSlot
	return state
}

// wallSlot converts corrected wall time into a slot number. Time before
// the chain start is slot zero.
func (l *chainLogic) wallSlot(now time.Time) uint64 {
	elapsed := now.Sub(l.chainStart)
	if elapsed <= 0 {
		return 0
	}
	return uint64(elapsed / l.slotLen)
}

func (l *chainLogic) AcceptBlock(ctx context.Context, b tally.Block) error {
	return telemetry.Step(ctx, l.tracer, "accept block", func(ctx context.Context) error {
		return l.acceptBlock(ctx, b)
	})
}

func (l *chainLogic) acceptBlock(ctx context.Context, b tally.Block) error {
	hash := b.Header.Hash()

	known, err := l.store.HasBlock(ctx, hash)
	if err != nil {
		return fmt.Errorf("accept block %s: %w", hash, err)
	}
	if known {
		return nil
	}

	tip, err := l.store.Tip(ctx)
	if err != nil {
		return fmt.Errorf("accept block %s: %w", hash, err)
	}

	wantParent := tip.Hash
	wantHeight := tip.Height + 1
	if tip.Hash.IsZero() {
		wantParent = l.genesis
		wantHeight = 1
	}
	if b.Header.Parent != wantParent {
		return fmt.Errorf("%w: parent %s, tip %s", ErrNotExtendingTip, b.Header.Parent, wantParent)
	}
	if b.Header.Height != wantHeight {
		return fmt.Errorf("%w: height %d, want %d", ErrNotExtendingTip, b.Header.Height, wantHeight)
	}
	if !tip.Hash.IsZero() && b.Header.Slot <= tip.Slot {
		return fmt.Errorf("%w: slot %d not after tip slot %d", ErrNotExtendingTip, b.Header.Slot, tip.Slot)
	}

	if err := l.store.AppendBlock(ctx, b); err != nil {
		return fmt.Errorf("accept block %s: %w", hash, err)
	}
	slog.Debug("accepted block", "hash", hash, "slot", b.Header.Slot, "height", b.Header.Height)
	return nil
}
