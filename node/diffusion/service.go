package diffusion

import (
	"context"
	"errors"
	"log/slog"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"tally"
	"tally/infra/transport"
	"tally/node/logic"
)

const peerServiceName = "tally.Peer"

const (
	methodHello       = "Hello"
	methodAnnounceTip = "AnnounceTip"
	methodSubmitBlock = "SubmitBlock"
	methodGetTip      = "GetTip"
)

// peerAPI is what the hand-written service descriptor dispatches to.
type peerAPI interface {
	hello(ctx context.Context, env envelope) ([]byte, error)
	announceTip(ctx context.Context, env envelope) ([]byte, error)
	submitBlock(ctx context.Context, env envelope) ([]byte, error)
	getTip(ctx context.Context, env envelope) ([]byte, error)
}

// peerServer answers the peer protocol against the live chain logic.
type peerServer struct {
	logic      tally.Logic
	selfName   string
	minVersion uint32
}

func (s *peerServer) seal(body []byte) []byte {
	return appendEnvelope(nil, envelope{
		Version: tally.ProtocolVersion,
		From:    s.selfName,
		Body:    body,
	})
}

// admit enforces the version floor on every inbound envelope.
func (s *peerServer) admit(env envelope) error {
	if env.Version < s.minVersion {
		return status.Errorf(codes.FailedPrecondition,
			"peer %s version %d below minimum %d", env.From, env.Version, s.minVersion)
	}
	return nil
}

func (s *peerServer) hello(_ context.Context, env envelope) ([]byte, error) {
	if err := s.admit(env); err != nil {
		return nil, err
	}
	slog.Debug("peer hello", "from", env.From, "version", env.Version)
	return s.seal(nil), nil
}

func (s *peerServer) announceTip(_ context.Context, env envelope) ([]byte, error) {
	if err := s.admit(env); err != nil {
		return nil, err
	}
	tip, err := parseTip(env.Body)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "announce tip: %v", err)
	}
	slog.Debug("peer announced tip", "from", env.From, "slot", tip.Slot, "height", tip.Height)
	return s.seal(nil), nil
}

func (s *peerServer) submitBlock(ctx context.Context, env envelope) ([]byte, error) {
	if err := s.admit(env); err != nil {
		return nil, err
	}
	blk, err := parseBlock(env.Body)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "submit block: %v", err)
	}
	if err := s.logic.AcceptBlock(ctx, blk); err != nil {
		if errors.Is(err, logic.ErrNotExtendingTip) {
			return nil, status.Errorf(codes.FailedPrecondition, "%v", err)
		}
		return nil, status.Errorf(codes.Internal, "%v", err)
	}
	return s.seal(nil), nil
}

func (s *peerServer) getTip(ctx context.Context, env envelope) ([]byte, error) {
	if err := s.admit(env); err != nil {
		return nil, err
	}
	tip, err := s.logic.Tip(ctx)
	if err != nil {
		return nil, status.Errorf(codes.Internal, "tip: %v", err)
	}
	return s.seal(appendTip(nil, tip)), nil
}

// peerMethod adapts one peerAPI method into the grpc.MethodDesc handler
// shape, decoding the raw payload into an envelope first.
func peerMethod(name string, invoke func(context.Context, peerAPI, envelope) ([]byte, error)) grpc.MethodDesc {
	return grpc.MethodDesc{
		MethodName: name,
		Handler: func(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
			var req transport.Message
			if err := dec(&req); err != nil {
				return nil, err
			}
			handler := func(ctx context.Context, in any) (any, error) {
				raw := in.(*transport.Message)
				env, err := parseEnvelope(*raw)
				if err != nil {
					return nil, status.Errorf(codes.InvalidArgument, "bad envelope: %v", err)
				}
				out, err := invoke(ctx, srv.(peerAPI), env)
				if err != nil {
					return nil, err
				}
				msg := transport.Message(out)
				return &msg, nil
			}
			if interceptor == nil {
				return handler(ctx, &req)
			}
			info := &grpc.UnaryServerInfo{Server: srv, FullMethod: "/" + peerServiceName + "/" + name}
			return interceptor(ctx, &req, info, handler)
		},
	}
}

// peerServiceDesc is the hand-written descriptor for the peer service.
// No generated stubs exist; payloads are protowire envelopes over the
// transport's raw codec.
var peerServiceDesc = grpc.ServiceDesc{
	ServiceName: peerServiceName,
	HandlerType: (*peerAPI)(nil),
	Methods: []grpc.MethodDesc{
		peerMethod(methodHello, func(ctx context.Context, api peerAPI, env envelope) ([]byte, error) {
			return api.hello(ctx, env)
		}),
		peerMethod(methodAnnounceTip, func(ctx context.Context, api peerAPI, env envelope) ([]byte, error) {
			return api.announceTip(ctx, env)
		}),
		peerMethod(methodSubmitBlock, func(ctx context.Context, api peerAPI, env envelope) ([]byte, error) {
			return api.submitBlock(ctx, env)
		}),
		peerMethod(methodGetTip, func(ctx context.Context, api peerAPI, env envelope) ([]byte, error) {
			return api.getTip(ctx, env)
		}),
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tally/peer",
}
