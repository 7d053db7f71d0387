// Package transport owns the TCP endpoint peers talk to and the dialer
// used to reach them. It is a thin layer over gRPC with a raw byte
// codec; the peer protocol itself lives with the diffusion layer.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"tally"
)

// connectTimeout bounds a single outbound connection attempt.
const connectTimeout = 5 * time.Second

// Endpoint is a bound peer-facing listener plus its gRPC server.
// Listen binds, RegisterService attaches the peer protocol, Start begins
// serving, Close tears the whole thing down. Binding is separate from
// serving so the port is proven before later bootstrap stages run.
type Endpoint struct {
	lis      net.Listener
	srv      *grpc.Server
	addr     netip.AddrPort
	serveErr chan error
	started  bool
}

// Listen binds the endpoint per the network config. AddrLoopback binds
// an ephemeral loopback port, so a console never collides with the node
// it sits next to; AddrAny exposes DefaultPort on all interfaces.
func Listen(nc tally.NetworkConfig) (*Endpoint, error) {
	host, port := "127.0.0.1", uint16(0)
	if nc.AddrMode == tally.AddrAny {
		host, port = "0.0.0.0", nc.DefaultPort
	}

	lis, err := net.Listen("tcp", net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, fmt.Errorf("listen peer endpoint: %w", err)
	}

	tcpAddr, ok := lis.Addr().(*net.TCPAddr)
	if !ok {
		_ = lis.Close()
		return nil, fmt.Errorf("listen peer endpoint: unexpected address type %T", lis.Addr())
	}

	srv := grpc.NewServer(
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.ForceServerCodec(rawCodec{}),
	)

	return &Endpoint{
		lis:      lis,
		srv:      srv,
		addr:     tcpAddr.AddrPort(),
		serveErr: make(chan error, 1),
	}, nil
}

// Addr returns the bound address, with the real port when an ephemeral
// one was requested.
func (e *Endpoint) Addr() netip.AddrPort { return e.addr }

// RegisterService attaches a service to the endpoint. Must happen before
// Start.
func (e *Endpoint) RegisterService(desc *grpc.ServiceDesc, impl any) {
	e.srv.RegisterService(desc, impl)
}

// Start begins serving in the background. Serve failures surface on
// Close.
func (e *Endpoint) Start() {
	if e.started {
		return
	}
	e.started = true
	go func() { e.serveErr <- e.srv.Serve(e.lis) }()
}

// Close drains in-flight RPCs and releases the listener. When ctx
// expires first the server is stopped hard. Returns the serve error if
// the server had already failed.
func (e *Endpoint) Close(ctx context.Context) error {
	if e == nil {
		return nil
	}
	if !e.started {
		e.srv.Stop()
		return e.lis.Close()
	}

	stopped := make(chan struct{})
	go func() {
		e.srv.GracefulStop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-ctx.Done():
		e.srv.Stop()
		<-stopped
	}

	if err := <-e.serveErr; err != nil {
		return fmt.Errorf("peer endpoint serve: %w", err)
	}
	return nil
}

// Dial opens a lazy client connection to a peer. Connection attempts are
// bounded by connectTimeout; RPC deadlines stay with the caller's ctx.
func Dial(addr netip.AddrPort) (*grpc.ClientConn, error) {
	dialer := &net.Dialer{Timeout: connectTimeout}
	conn, err := grpc.NewClient(
		"passthrough:///"+addr.String(),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithStatsHandler(otelgrpc.NewClientHandler()),
		grpc.WithContextDialer(func(ctx context.Context, target string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", target)
		}),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(rawCodec{})),
	)
	if err != nil {
		return nil, fmt.Errorf("grpc dial peer %s: %w", addr, err)
	}
	return conn, nil
}

// Call invokes a unary method over conn with a raw request payload.
func Call(ctx context.Context, conn *grpc.ClientConn, method string, req []byte) ([]byte, error) {
	in := Message(req)
	var out Message
	if err := conn.Invoke(ctx, method, &in, &out); err != nil {
		return nil, err
	}
	return out, nil
}
