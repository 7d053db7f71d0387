package diffusion

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"tally"
	"tally/infra/transport"
)

// ErrNoPeers reports a gossip operation with an empty topology.
var ErrNoPeers = errors.New("diffusion: no peers configured")

// gossip implements tally.Diffusion over the static topology: bounded
// per-peer queues, a shared in-flight cap, and best-effort fanout.
type gossip struct {
	selfName string
	failure  tally.FailurePolicy
	valency  int
	slots    chan struct{}
	peers    []*peerConn
	rr       atomic.Uint64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// newGossip registers the peer service on the endpoint, starts serving,
// dials the topology, and starts the delivery workers.
func newGossip(ctx context.Context, lg tally.Logic, ep *transport.Endpoint, nc tally.NetworkConfig, minVersion uint32) (*gossip, error) {
	ep.RegisterService(&peerServiceDesc, &peerServer{
		logic:      lg,
		selfName:   nc.SelfName,
		minVersion: minVersion,
	})
	ep.Start()

	queueCap := nc.Enqueue.MaxQueued
	if queueCap <= 0 {
		queueCap = 1
	}
	inFlight := nc.Dequeue.MaxInFlight
	if inFlight <= 0 {
		inFlight = 1
	}

	g := &gossip{
		selfName: nc.SelfName,
		failure:  nc.Failure,
		valency:  nc.Topology.Valency,
		slots:    make(chan struct{}, inFlight),
	}

	for _, addr := range nc.Topology.Peers {
		p, err := dialPeer(addr, queueCap)
		if err != nil {
			_ = g.closePeers()
			return nil, fmt.Errorf("dial peer %s: %w", addr, err)
		}
		g.peers = append(g.peers, p)
	}

	runCtx, cancel := context.WithCancel(ctx)
	g.cancel = cancel
	for _, p := range g.peers {
		// Greet each peer once so the status listing has a version and
		// last-seen before any chain traffic flows.
		p.enqueue(outbound{method: "/" + peerServiceName + "/" + methodHello})
		p := p
		g.wg.Add(1)
		go func() {
			defer g.wg.Done()
			p.run(runCtx, g)
		}()
	}
	return g, nil
}

func (g *gossip) acquireSlot(ctx context.Context) bool {
	select {
	case g.slots <- struct{}{}:
		return true
	case <-ctx.Done():
		return false
	}
}

func (g *gossip) releaseSlot() { <-g.slots }

// targets returns the peers for one gossip round: all of them, or a
// rotating window of valency peers.
func (g *gossip) targets() []*peerConn {
	if g.valency <= 0 || g.valency >= len(g.peers) {
		return g.peers
	}
	start := int(g.rr.Add(1)-1) % len(g.peers)
	out := make([]*peerConn, 0, g.valency)
	for i := 0; i < g.valency; i++ {
		out = append(out, g.peers[(start+i)%len(g.peers)])
	}
	return out
}

func (g *gossip) fanout(method string, body []byte) error {
	if len(g.peers) == 0 {
		return ErrNoPeers
	}
	for _, p := range g.targets() {
		if !p.enqueue(outbound{method: method, body: body}) {
			slog.Warn("gossip queue full, dropping delivery", "peer", p.addr, "method", method)
		}
	}
	return nil
}

func (g *gossip) AnnounceTip(_ context.Context, tip tally.Tip) error {
	return g.fanout("/"+peerServiceName+"/"+methodAnnounceTip, appendTip(nil, tip))
}

func (g *gossip) SubmitBlock(_ context.Context, b tally.Block) error {
	return g.fanout("/"+peerServiceName+"/"+methodSubmitBlock, appendBlock(nil, b))
}

// RequestTip asks peers directly, first answer wins. Unlike the queued
// paths this is synchronous; the caller's ctx bounds the whole sweep.
func (g *gossip) RequestTip(ctx context.Context) (tally.Tip, error) {
	if len(g.peers) == 0 {
		return tally.Tip{}, ErrNoPeers
	}

	var lastErr error
	for _, p := range g.targets() {
		body, err := p.call(ctx, g.selfName, "/"+peerServiceName+"/"+methodGetTip, nil)
		if err != nil {
			lastErr = err
			continue
		}
		tip, err := parseTip(body)
		if err != nil {
			lastErr = err
			continue
		}
		return tip, nil
	}
	return tally.Tip{}, fmt.Errorf("request tip: %w", lastErr)
}

func (g *gossip) Peers() []tally.PeerStatus {
	out := make([]tally.PeerStatus, 0, len(g.peers))
	for _, p := range g.peers {
		out = append(out, p.snapshot())
	}
	return out
}

// Stop halts the delivery workers and closes peer connections. The
// endpoint itself belongs to the transport scope and stays up until that
// scope unwinds.
func (g *gossip) Stop(context.Context) error {
	if g.cancel != nil {
		g.cancel()
	}
	g.wg.Wait()
	return g.closePeers()
}

func (g *gossip) closePeers() error {
	var errs []error
	for _, p := range g.peers {
		if err := p.close(); err != nil {
			errs = append(errs, fmt.Errorf("close peer %s: %w", p.addr, err))
		}
	}
	return errors.Join(errs...)
}
