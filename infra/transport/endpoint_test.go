package transport

import (
	"bytes"
	"context"
	"testing"
	"time"

	"google.golang.org/grpc"

	"tally"
)

type echoService struct{}

func echoHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	var req Message
	if err := dec(&req); err != nil {
		return nil, err
	}
	handler := func(ctx context.Context, req any) (any, error) {
		in := req.(*Message)
		out := Message(append([]byte("echo:"), *in...))
		return &out, nil
	}
	if interceptor == nil {
		return handler(ctx, &req)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/test.Echo/Echo"}
	return interceptor(ctx, &req, info, handler)
}

var echoDesc = grpc.ServiceDesc{
	ServiceName: "test.Echo",
	HandlerType: (*any)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Echo", Handler: echoHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "test",
}

func TestEndpointRoundTrip(t *testing.T) {
	ep, err := Listen(tally.NetworkConfig{AddrMode: tally.AddrLoopback})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}
	ep.RegisterService(&echoDesc, echoService{})
	ep.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := ep.Close(ctx); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	}()

	if !ep.Addr().Addr().IsLoopback() {
		t.Fatalf("Addr() = %v, want loopback", ep.Addr())
	}

	conn, err := Dial(ep.Addr())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	resp, err := Call(ctx, conn, "/test.Echo/Echo", []byte("ping"))
	if err != nil {
		t.Fatalf("Call() error = %v", err)
	}
	if !bytes.Equal(resp, []byte("echo:ping")) {
		t.Fatalf("Call() = %q, want %q", resp, "echo:ping")
	}
}

func TestEndpointCloseBeforeStart(t *testing.T) {
	ep, err := Listen(tally.NetworkConfig{AddrMode: tally.AddrLoopback})
	if err != nil {
		t.Fatalf("Listen() error = %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := ep.Close(ctx); err != nil {
		t.Fatalf("Close() before Start error = %v", err)
	}
}
