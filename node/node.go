// Package node runs the background duties a full node keeps up while
// hosting other work: announcing the local tip to peers and probing
// whether a better tip exists out there.
package node

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"tally"
	"tally/node/diffusion"
)

const (
	defaultAnnounceEvery = 20 * time.Second
	defaultProbeEvery    = 30 * time.Second
)

// Workers are the node's background loops. Zero intervals take the
// defaults.
type Workers struct {
	Logic     tally.Logic
	Diffusion tally.Diffusion

	AnnounceEvery time.Duration
	ProbeEvery    time.Duration
}

// Run drives both loops until ctx is done, then returns nil. A loop
// failing for any reason other than cancellation stops the other one.
func (w Workers) Run(ctx context.Context) error {
	announceEvery := w.AnnounceEvery
	if announceEvery <= 0 {
		announceEvery = defaultAnnounceEvery
	}
	probeEvery := w.ProbeEvery
	if probeEvery <= 0 {
		probeEvery = defaultProbeEvery
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.announceTips(ctx, announceEvery) })
	g.Go(func() error { return w.probeResync(ctx, probeEvery) })
	return g.Wait()
}

// announceTips periodically gossips the local tip. A chain with no
// blocks yet announces nothing.
func (w Workers) announceTips(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			tip, err := w.Logic.Tip(ctx)
			if err != nil {
				slog.Warn("tip announcer: local tip unavailable", "err", err)
				continue
			}
			if tip.Hash.IsZero() {
				continue
			}
			if err := w.Diffusion.AnnounceTip(ctx, tip); err != nil {
				if errors.Is(err, diffusion.ErrNoPeers) {
					slog.Info("tip announcer idle, no peers configured")
					<-ctx.Done()
					return nil
				}
				slog.Warn("tip announcer: gossip failed", "err", err)
			}
		}
	}
}

// probeResync periodically asks peers for their tip and logs how far
// behind the local chain is.
func (w Workers) probeResync(ctx context.Context, every time.Duration) error {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			remote, err := w.Diffusion.RequestTip(ctx)
			if err != nil {
				if errors.Is(err, diffusion.ErrNoPeers) {
					slog.Info("resync prober idle, no peers configured")
					<-ctx.Done()
					return nil
				}
				slog.Warn("resync prober: request tip failed", "err", err)
				continue
			}

			local, err := w.Logic.Tip(ctx)
			if err != nil {
				slog.Warn("resync prober: local tip unavailable", "err", err)
				continue
			}
			if local.Behind(remote) {
				slog.Warn("local chain behind network",
					"behind_blocks", remote.Height-local.Height, "remote_height", remote.Height)
			}
		}
	}
}
