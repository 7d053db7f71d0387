package diffusion

import (
	"context"
	"fmt"
	"log/slog"
	"net/netip"
	"sync"
	"time"

	"google.golang.org/grpc"

	"tally"
	"tally/infra/transport"
)

// outbound is one queued delivery to a peer.
type outbound struct {
	method string
	body   []byte
}

// peerConn is one topology peer: a lazy client connection, a bounded
// delivery queue, and the last-seen status gossip reports.
type peerConn struct {
	addr  netip.AddrPort
	conn  *grpc.ClientConn
	queue chan outbound

	mu     sync.Mutex
	status tally.PeerStatus
}

func dialPeer(addr netip.AddrPort, queueCap int) (*peerConn, error) {
	conn, err := transport.Dial(addr)
	if err != nil {
		return nil, err
	}
	return &peerConn{
		addr:   addr,
		conn:   conn,
		queue:  make(chan outbound, queueCap),
		status: tally.PeerStatus{Addr: addr},
	}, nil
}

// enqueue offers one delivery. A full queue drops the item; gossip is
// best effort and a slow peer must not stall the rest.
func (p *peerConn) enqueue(out outbound) bool {
	select {
	case p.queue <- out:
		return true
	default:
		return false
	}
}

// run drains the queue until ctx is done. Each delivery takes a shared
// in-flight slot; a failed delivery benches the peer for the reconnect
// delay before the queue moves again.
func (p *peerConn) run(ctx context.Context, g *gossip) {
	for {
		select {
		case <-ctx.Done():
			return
		case out := <-p.queue:
			if !g.acquireSlot(ctx) {
				return
			}
			_, err := p.call(ctx, g.selfName, out.method, out.body)
			g.releaseSlot()
			if err != nil {
				slog.Warn("peer delivery failed", "peer", p.addr, "method", out.method, "err", err)
				select {
				case <-ctx.Done():
					return
				case <-time.After(g.failure.ReconnectDelay):
				}
			}
		}
	}
}

// call sends one envelope, records the peer's advertised version, and
// returns the response body.
func (p *peerConn) call(ctx context.Context, selfName, method string, body []byte) ([]byte, error) {
	req := appendEnvelope(nil, envelope{
		Version: tally.ProtocolVersion,
		From:    selfName,
		Body:    body,
	})
	resp, err := transport.Call(ctx, p.conn, method, req)
	if err != nil {
		return nil, err
	}
	env, err := parseEnvelope(resp)
	if err != nil {
		return nil, fmt.Errorf("peer %s response: %w", p.addr, err)
	}
	p.markSeen(env.Version)
	return env.Body, nil
}

func (p *peerConn) markSeen(version uint32) {
	p.mu.Lock()
	p.status.Version = version
	p.status.LastSeen = time.Now()
	p.mu.Unlock()
}

func (p *peerConn) snapshot() tally.PeerStatus {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.status
}

func (p *peerConn) close() error {
	return p.conn.Close()
}
