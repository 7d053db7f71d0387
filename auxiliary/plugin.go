package aux

import (
	"context"
	"crypto/ed25519"

	"golang.org/x/sync/errgroup"

	"tally"
	"tally/config"
	"tally/node"
)

// RunContext is what the hosted plugin learns about the run hosting it.
// Constructed once, read-only afterwards.
type RunContext struct {
	// TempDB records that the chain database lives in a throwaway
	// temporary directory.
	TempDB bool

	// DBPath is the corrected chain database location. Empty in
	// standalone runs.
	DBPath string

	// SelfName identifies this console to peers and in output.
	SelfName string

	// Secret signs submissions made from this console.
	Secret ed25519.PrivateKey

	// Config is the loaded node configuration, nil in standalone runs.
	Config *config.Config
}

// Env is the capability set handed to the hosted action. Logic and
// Diffusion are nil in standalone runs and valid only while the action
// executes.
type Env struct {
	RunContext

	Logic     tally.Logic
	Diffusion tally.Diffusion
}

// Standalone reports whether the run has no node behind it.
func (e Env) Standalone() bool { return e.Diffusion == nil }

// Plugin is the hosted action: an interactive session or a single batch
// command, packaged by the CLI.
type Plugin struct {
	// Name shows up in logs and spans.
	Name string

	// Action does the work. It may fail; the failure propagates through
	// the whole bootstrap unwind untouched.
	Action func(ctx context.Context, env Env) error

	// WithNode additionally runs the node's background workers under
	// the same umbrella as the action. Ignored in standalone runs.
	WithNode bool
}

// runPlugin selects and executes exactly one hosted action. Standalone
// runs get no diffusion; full runs get the diffusion interface; full
// runs with node participation share their scope with the node workers,
// which stop when the action finishes.
func runPlugin(ctx context.Context, p Plugin, env Env) error {
	if env.Standalone() || !p.WithNode {
		return p.Action(ctx, env)
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := node.Workers{Logic: env.Logic, Diffusion: env.Diffusion}
	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error { return workers.Run(gctx) })
	g.Go(func() error {
		defer cancel()
		return p.Action(gctx, env)
	})
	return g.Wait()
}
