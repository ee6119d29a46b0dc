package grpc

import (
	"context"

	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully-qualified ledger service name.
const ServiceName = "arena.ledger.v1.Ledger"

const (
	methodWriteCheckpoint  = "WriteCheckpoint"
	methodSettleGame       = "SettleGame"
	methodGetGame          = "GetGame"
	methodGetCheckpoint    = "GetCheckpoint"
	methodGetOpenGameIDs   = "GetOpenGameIDs"
	methodCreateOpenGame   = "CreateOpenGame"
	methodJoinGame         = "JoinGame"
	streamWatchGameStarted = "WatchGameStarted"
)

func fullMethod(name string) string {
	return "/" + ServiceName + "/" + name
}

// LedgerServer is the handler set behind the service descriptor.
type LedgerServer interface {
	WriteCheckpoint(context.Context, *WriteCheckpointRequest) (*wrapperspb.StringValue, error)
	SettleGame(context.Context, *SettleGameRequest) (*wrapperspb.StringValue, error)
	GetGame(context.Context, *wrapperspb.UInt64Value) (*GameResponse, error)
	GetCheckpoint(context.Context, *wrapperspb.UInt64Value) (*CheckpointResponse, error)
	GetOpenGameIDs(context.Context, *emptypb.Empty) (*OpenGamesResponse, error)
	CreateOpenGame(context.Context, *emptypb.Empty) (*wrapperspb.UInt64Value, error)
	JoinGame(context.Context, *JoinGameRequest) (*GameResponse, error)
	WatchGameStarted(*emptypb.Empty, gogrpc.ServerStream) error
}

// unaryHandler adapts a typed method to the descriptor handler signature.
func unaryHandler[Req any, Resp any](name string, call func(LedgerServer, context.Context, *Req) (*Resp, error)) func(any, context.Context, func(any) error, gogrpc.UnaryServerInterceptor) (any, error) {
	return func(srv any, ctx context.Context, dec func(any) error, interceptor gogrpc.UnaryServerInterceptor) (any, error) {
		req := new(Req)
		if err := dec(req); err != nil {
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(LedgerServer), ctx, req)
		}
		info := &gogrpc.UnaryServerInfo{Server: srv, FullMethod: fullMethod(name)}
		handler := func(ctx context.Context, req any) (any, error) {
			return call(srv.(LedgerServer), ctx, req.(*Req))
		}
		return interceptor(ctx, req, info, handler)
	}
}

func watchGameStartedHandler(srv any, stream gogrpc.ServerStream) error {
	req := new(emptypb.Empty)
	if err := stream.RecvMsg(req); err != nil {
		return err
	}
	return srv.(LedgerServer).WatchGameStarted(req, stream)
}

var serviceDesc = gogrpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*LedgerServer)(nil),
	Methods: []gogrpc.MethodDesc{
		{MethodName: methodWriteCheckpoint, Handler: unaryHandler(methodWriteCheckpoint, LedgerServer.WriteCheckpoint)},
		{MethodName: methodSettleGame, Handler: unaryHandler(methodSettleGame, LedgerServer.SettleGame)},
		{MethodName: methodGetGame, Handler: unaryHandler(methodGetGame, LedgerServer.GetGame)},
		{MethodName: methodGetCheckpoint, Handler: unaryHandler(methodGetCheckpoint, LedgerServer.GetCheckpoint)},
		{MethodName: methodGetOpenGameIDs, Handler: unaryHandler(methodGetOpenGameIDs, LedgerServer.GetOpenGameIDs)},
		{MethodName: methodCreateOpenGame, Handler: unaryHandler(methodCreateOpenGame, LedgerServer.CreateOpenGame)},
		{MethodName: methodJoinGame, Handler: unaryHandler(methodJoinGame, LedgerServer.JoinGame)},
	},
	Streams: []gogrpc.StreamDesc{
		{StreamName: streamWatchGameStarted, Handler: watchGameStartedHandler, ServerStreams: true},
	},
	Metadata: "arena/ledger/v1/ledger.json",
}

// RegisterLedgerServer registers srv on a gRPC server.
func RegisterLedgerServer(reg gogrpc.ServiceRegistrar, srv LedgerServer) {
	reg.RegisterService(&serviceDesc, srv)
}
