package grpc

import (
	"context"
	"errors"
	"log"

	"github.com/holiman/uint256"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// watchBuffer bounds started-game notifications queued per watcher.
const watchBuffer = 16

// Server exposes a ledger.Gateway over gRPC.
type Server struct {
	gateway ledger.Gateway
}

var _ LedgerServer = (*Server)(nil)

// NewServer wraps gateway.
func NewServer(gateway ledger.Gateway) *Server {
	return &Server{gateway: gateway}
}

// Register attaches the service to a gRPC server.
func (s *Server) Register(reg gogrpc.ServiceRegistrar) {
	RegisterLedgerServer(reg, s)
}

// toStatus maps gateway errors onto gRPC statuses carrying domain detail.
func toStatus(err error) error {
	if err == nil {
		return nil
	}
	var domainErr *apperrors.Error
	if errors.As(err, &domainErr) {
		return domainErr.ToGRPCStatus()
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return status.FromContextError(err).Err()
	}
	return status.Error(codes.Internal, err.Error())
}

// WriteCheckpoint implements LedgerServer.
func (s *Server) WriteCheckpoint(ctx context.Context, req *WriteCheckpointRequest) (*wrapperspb.StringValue, error) {
	players, err := uint256.FromHex(req.Players)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "players word: %v", err)
	}
	properties, err := uint256.FromHex(req.Properties)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "properties word: %v", err)
	}
	ref, err := s.gateway.WriteCheckpoint(ctx, req.GameID, req.Round, *players, *properties, req.Meta)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(string(ref)), nil
}

// SettleGame implements LedgerServer.
func (s *Server) SettleGame(ctx context.Context, req *SettleGameRequest) (*wrapperspb.StringValue, error) {
	logHash, err := decodeHash(req.LogHash)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "log hash: %v", err)
	}
	ref, err := s.gateway.SettleGame(ctx, req.GameID, req.WinnerAddress, logHash)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.String(string(ref)), nil
}

// GetGame implements LedgerServer.
func (s *Server) GetGame(ctx context.Context, req *wrapperspb.UInt64Value) (*GameResponse, error) {
	game, err := s.gateway.GetGame(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return gameToResponse(game), nil
}

// GetCheckpoint implements LedgerServer.
func (s *Server) GetCheckpoint(ctx context.Context, req *wrapperspb.UInt64Value) (*CheckpointResponse, error) {
	cp, err := s.gateway.GetCheckpoint(ctx, req.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	return &CheckpointResponse{
		GameID:     cp.GameID,
		Round:      cp.Round,
		Players:    cp.Players.Hex(),
		Properties: cp.Properties.Hex(),
		Meta:       cp.Meta,
		TxRef:      string(cp.TxRef),
		WrittenAt:  timestampOrNil(cp.WrittenAt),
	}, nil
}

// GetOpenGameIDs implements LedgerServer.
func (s *Server) GetOpenGameIDs(ctx context.Context, _ *emptypb.Empty) (*OpenGamesResponse, error) {
	ids, err := s.gateway.GetOpenGameIDs(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return &OpenGamesResponse{GameIDs: ids}, nil
}

// CreateOpenGame implements LedgerServer.
func (s *Server) CreateOpenGame(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.UInt64Value, error) {
	id, err := s.gateway.CreateOpenGame(ctx)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.UInt64(id), nil
}

// JoinGame implements LedgerServer when the gateway can seat players.
func (s *Server) JoinGame(ctx context.Context, req *JoinGameRequest) (*GameResponse, error) {
	joiner, ok := s.gateway.(ledger.Joiner)
	if !ok {
		return nil, status.Error(codes.Unimplemented, "ledger does not accept joins")
	}
	game, err := joiner.JoinGame(ctx, req.GameID, req.Address)
	if err != nil {
		return nil, toStatus(err)
	}
	return gameToResponse(game), nil
}

// WatchGameStarted streams game-start notifications. Response headers are
// sent once the subscription is live.
func (s *Server) WatchGameStarted(_ *emptypb.Empty, stream gogrpc.ServerStream) error {
	events := make(chan GameStartedEvent, watchBuffer)
	unsubscribe := s.gateway.OnGameStarted(func(gameID uint64, seed [32]byte) {
		select {
		case events <- GameStartedEvent{GameID: gameID, Seed: encodeHash(seed)}:
		default:
			log.Printf("ledger watch: dropped start of game %d", gameID)
		}
	})
	defer unsubscribe()

	if err := stream.SendHeader(metadata.Pairs("subscribed", "true")); err != nil {
		return err
	}
	for {
		select {
		case <-stream.Context().Done():
			return nil
		case ev := <-events:
			if err := stream.SendMsg(&ev); err != nil {
				return err
			}
		}
	}
}
