package logic

import (
	"context"
	"time"

	"tally"
)

// Clock abstracts time.Now() for deterministic testing.
type Clock interface {
	Now() time.Time
}

// RealClock implements Clock using the real system clock.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now() }

// ChainStore is what the logic layer needs from block storage.
// Production: infra/chaindb.DB
// Testing: in-memory fake
type ChainStore interface {
	Tip(ctx context.Context) (tally.Tip, error)
	Header(ctx context.Context, hash tally.BlockHash) (tally.BlockHeader, error)
	HasBlock(ctx context.Context, hash tally.BlockHash) (bool, error)
	AppendBlock(ctx context.Context, b tally.Block) error
}
