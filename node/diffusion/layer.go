// Package diffusion moves blocks and tips between this node and its
// peers. The layer cannot exist on its own: it is built against live
// chain logic, which is why construction happens through a Builder
// inside the logic layer's run scope.
package diffusion

import (
	"context"
	"errors"
	"fmt"

	"tally"
	"tally/infra/transport"
	"tally/internal/check"
)

// Builder constructs a diffusion implementation against live chain
// logic.
// Production: GossipBuilder
// Testing: stub returning a canned Diffusion
type Builder interface {
	Bind(ctx context.Context, lg tally.Logic) (tally.Diffusion, error)
}

// GossipBuilder is the production builder: peer service on the shared
// endpoint, static topology workers per the network config.
type GossipBuilder struct {
	Endpoint   *transport.Endpoint
	Net        tally.NetworkConfig
	MinVersion uint32
}

func (b *GossipBuilder) Bind(ctx context.Context, lg tally.Logic) (tally.Diffusion, error) {
	check.Assert(b.Endpoint != nil, "diffusion: builder needs a bound endpoint")
	return newGossip(ctx, lg, b.Endpoint, b.Net, b.MinVersion)
}

// Layer hosts an action with a live tally.Diffusion. The builder is
// invoked exactly once per layer; a second Run violates the layer
// contract.
type Layer struct {
	builder Builder
	bound   bool
}

func NewLayer(b Builder) *Layer {
	check.Assert(b != nil, "diffusion: builder must not be nil")
	return &Layer{builder: b}
}

// Run binds diffusion to lg, hands it to action, and stops it when
// action returns. The action's error stays primary; teardown failures
// join it.
func (l *Layer) Run(ctx context.Context, lg tally.Logic, action func(context.Context, tally.Diffusion) error) error {
	check.Assert(lg != nil, "diffusion: logic must not be nil")
	if l.bound {
		return errors.New("diffusion: layer already bound")
	}
	l.bound = true

	df, err := l.builder.Bind(ctx, lg)
	if err != nil {
		return fmt.Errorf("bind diffusion: %w", err)
	}

	actionErr := action(ctx, df)

	var stopErr error
	if s, ok := df.(interface{ Stop(context.Context) error }); ok {
		stopErr = s.Stop(ctx)
	}
	return errors.Join(actionErr, stopErr)
}
