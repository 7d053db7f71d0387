package aux

import (
	"context"
	"net/netip"

	"tally"
	"tally/node/logic"
)

// Store is the chain database handle the run scope owns.
// Production: infra/chaindb.DB
// Testing: fake recording release order
type Store interface {
	logic.ChainStore
	VerifyGenesis(ctx context.Context, genesis tally.BlockHash) error
	Close() error
}

// Endpoint is the bound peer transport.
// Production: infra/transport.Endpoint
// Testing: fake recording release order
type Endpoint interface {
	Addr() netip.AddrPort
	Close(ctx context.Context) error
}

// LogicRunner hosts an action with a live Logic, tearing the layer down
// when the action returns.
// Production: node/logic.Layer
type LogicRunner interface {
	Run(ctx context.Context, action func(context.Context, tally.Logic) error) error
}

// DiffusionRunner binds a diffusion layer to a live Logic and hosts an
// action with it.
// Production: node/diffusion.Layer
type DiffusionRunner interface {
	Run(ctx context.Context, lg tally.Logic, action func(context.Context, tally.Diffusion) error) error
}
