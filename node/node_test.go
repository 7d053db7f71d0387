package node

import (
	"context"
	"testing"
	"time"

	"tally"
)

type fakeLogic struct{ tip tally.Tip }

func (f *fakeLogic) Tip(context.Context) (tally.Tip, error) { return f.tip, nil }

func (f *fakeLogic) SyncState(context.Context) tally.SyncState { return tally.SyncState{} }

func (f *fakeLogic) AcceptBlock(context.Context, tally.Block) error { return nil }

type fakeDiffusion struct {
	remoteTip tally.Tip
	announced chan tally.Tip
	requested chan struct{}
}

func newFakeDiffusion(remote tally.Tip) *fakeDiffusion {
	return &fakeDiffusion{
		remoteTip: remote,
		announced: make(chan tally.Tip, 8),
		requested: make(chan struct{}, 8),
	}
}

func (f *fakeDiffusion) AnnounceTip(_ context.Context, tip tally.Tip) error {
	select {
	case f.announced <- tip:
	default:
	}
	return nil
}

func (f *fakeDiffusion) SubmitBlock(context.Context, tally.Block) error { return nil }

func (f *fakeDiffusion) RequestTip(context.Context) (tally.Tip, error) {
	select {
	case f.requested <- struct{}{}:
	default:
	}
	return f.remoteTip, nil
}

func (f *fakeDiffusion) Peers() []tally.PeerStatus { return nil }

func TestWorkersAnnounceLocalTip(t *testing.T) {
	tip := tally.Tip{Hash: tally.BlockHeader{Slot: 5, Height: 2}.Hash(), Slot: 5, Height: 2}
	df := newFakeDiffusion(tally.Tip{})
	w := Workers{
		Logic:         &fakeLogic{tip: tip},
		Diffusion:     df,
		AnnounceEvery: 5 * time.Millisecond,
		ProbeEvery:    time.Hour,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case got := <-df.announced:
		if got != tip {
			t.Fatalf("announced %+v, want %+v", got, tip)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("tip never announced")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v, want nil on cancel", err)
	}
}

func TestWorkersProbeForRemoteTip(t *testing.T) {
	df := newFakeDiffusion(tally.Tip{Hash: tally.BlockHeader{Slot: 9, Height: 4}.Hash(), Slot: 9, Height: 4})
	w := Workers{
		Logic:         &fakeLogic{},
		Diffusion:     df,
		AnnounceEvery: time.Hour,
		ProbeEvery:    5 * time.Millisecond,
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()

	select {
	case <-df.requested:
	case <-time.After(5 * time.Second):
		t.Fatal("remote tip never requested")
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run() error = %v, want nil on cancel", err)
	}
}
