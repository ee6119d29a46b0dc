package grpc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/holiman/uint256"
	gogrpc "google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	platformgrpc "github.com/louisbranch/agentopoly/internal/platform/grpc"
	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// Client is a ledger.Gateway backed by a remote ledger service.
type Client struct {
	conn   gogrpc.ClientConnInterface
	closer io.Closer
	feed   ledger.StartedFeed

	mu       sync.Mutex
	watching bool
	ready    chan struct{}
	ctx      context.Context
	cancel   context.CancelFunc
}

var (
	_ ledger.Gateway = (*Client)(nil)
	_ ledger.Joiner  = (*Client)(nil)
)

// Dial connects to a ledger server and waits for it to report healthy.
func Dial(ctx context.Context, addr string, opts ...gogrpc.DialOption) (*Client, error) {
	conn, err := platformgrpc.DialWithHealth(ctx, addr, timeouts.GRPCDial, log.Printf, opts...)
	if err != nil {
		return nil, fmt.Errorf("dial ledger %s: %w", addr, err)
	}
	c := NewClient(conn)
	c.closer = conn
	return c, nil
}

// NewClient wraps an existing connection.
func NewClient(conn gogrpc.ClientConnInterface) *Client {
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{conn: conn, ctx: ctx, cancel: cancel, ready: make(chan struct{})}
}

// Close stops the watch stream and closes a dialed connection.
func (c *Client) Close() error {
	c.cancel()
	if c.closer != nil {
		return c.closer.Close()
	}
	return nil
}

func (c *Client) invoke(ctx context.Context, method string, req, resp any) error {
	err := c.conn.Invoke(ctx, fullMethod(method), req, resp, gogrpc.CallContentSubtype(codecName))
	if err != nil {
		return apperrors.FromGRPCStatus(err)
	}
	return nil
}

// WriteCheckpoint implements ledger.Gateway.
func (c *Client) WriteCheckpoint(ctx context.Context, gameID uint64, round int, players, properties uint256.Int, meta uint64) (ledger.TxRef, error) {
	req := &WriteCheckpointRequest{
		GameID:     gameID,
		Round:      round,
		Players:    players.Hex(),
		Properties: properties.Hex(),
		Meta:       meta,
	}
	var resp wrapperspb.StringValue
	if err := c.invoke(ctx, methodWriteCheckpoint, req, &resp); err != nil {
		return "", err
	}
	return ledger.TxRef(resp.GetValue()), nil
}

// SettleGame implements ledger.Gateway.
func (c *Client) SettleGame(ctx context.Context, gameID uint64, winnerAddress string, logHash [32]byte) (ledger.TxRef, error) {
	req := &SettleGameRequest{GameID: gameID, WinnerAddress: winnerAddress, LogHash: encodeHash(logHash)}
	var resp wrapperspb.StringValue
	if err := c.invoke(ctx, methodSettleGame, req, &resp); err != nil {
		return "", err
	}
	return ledger.TxRef(resp.GetValue()), nil
}

// GetGame implements ledger.Gateway.
func (c *Client) GetGame(ctx context.Context, gameID uint64) (ledger.Game, error) {
	var resp GameResponse
	if err := c.invoke(ctx, methodGetGame, wrapperspb.UInt64(gameID), &resp); err != nil {
		return ledger.Game{}, err
	}
	return gameFromResponse(&resp)
}

// JoinGame seats address through the remote ledger.
func (c *Client) JoinGame(ctx context.Context, gameID uint64, address string) (ledger.Game, error) {
	var resp GameResponse
	if err := c.invoke(ctx, methodJoinGame, &JoinGameRequest{GameID: gameID, Address: address}, &resp); err != nil {
		return ledger.Game{}, err
	}
	return gameFromResponse(&resp)
}

// GetCheckpoint implements ledger.Gateway.
func (c *Client) GetCheckpoint(ctx context.Context, gameID uint64) (ledger.Checkpoint, error) {
	var resp CheckpointResponse
	if err := c.invoke(ctx, methodGetCheckpoint, wrapperspb.UInt64(gameID), &resp); err != nil {
		return ledger.Checkpoint{}, err
	}
	players, err := uint256.FromHex(resp.Players)
	if err != nil {
		return ledger.Checkpoint{}, fmt.Errorf("players word: %w", err)
	}
	properties, err := uint256.FromHex(resp.Properties)
	if err != nil {
		return ledger.Checkpoint{}, fmt.Errorf("properties word: %w", err)
	}
	return ledger.Checkpoint{
		GameID:     resp.GameID,
		Round:      resp.Round,
		Players:    *players,
		Properties: *properties,
		Meta:       resp.Meta,
		TxRef:      ledger.TxRef(resp.TxRef),
		WrittenAt:  timeOrZero(resp.WrittenAt),
	}, nil
}

// GetOpenGameIDs implements ledger.Gateway.
func (c *Client) GetOpenGameIDs(ctx context.Context) ([]uint64, error) {
	var resp OpenGamesResponse
	if err := c.invoke(ctx, methodGetOpenGameIDs, &emptypb.Empty{}, &resp); err != nil {
		return nil, err
	}
	return resp.GameIDs, nil
}

// CreateOpenGame implements ledger.Gateway.
func (c *Client) CreateOpenGame(ctx context.Context) (uint64, error) {
	var resp wrapperspb.UInt64Value
	if err := c.invoke(ctx, methodCreateOpenGame, &emptypb.Empty{}, &resp); err != nil {
		return 0, err
	}
	return resp.GetValue(), nil
}

// OnGameStarted subscribes to the remote start stream. The first
// subscription opens the stream and waits briefly for it to be live.
func (c *Client) OnGameStarted(fn ledger.StartedFunc) func() {
	unsubscribe := c.feed.Subscribe(fn)

	c.mu.Lock()
	start := !c.watching
	c.watching = true
	c.mu.Unlock()
	if start {
		go c.watchLoop()
	}

	timer := time.NewTimer(timeouts.GRPCDial)
	defer timer.Stop()
	select {
	case <-c.ready:
	case <-timer.C:
		log.Printf("ledger watch: stream not ready after %s", timeouts.GRPCDial)
	case <-c.ctx.Done():
	}
	return unsubscribe
}

// watchLoop keeps the start stream open, reconnecting with backoff.
func (c *Client) watchLoop() {
	b := &backoff.ExponentialBackOff{
		InitialInterval:     100 * time.Millisecond,
		RandomizationFactor: 0.2,
		Multiplier:          2,
		MaxInterval:         5 * time.Second,
	}
	b.Reset()
	var once sync.Once
	markReady := func() { once.Do(func() { close(c.ready) }) }

	for c.ctx.Err() == nil {
		err := c.watch(markReady)
		if c.ctx.Err() != nil {
			return
		}
		wait := b.NextBackOff()
		log.Printf("ledger watch: stream ended: %v; retrying in %s", err, wait)
		select {
		case <-time.After(wait):
		case <-c.ctx.Done():
			return
		}
	}
}

func (c *Client) watch(markReady func()) error {
	desc := &serviceDesc.Streams[0]
	stream, err := c.conn.NewStream(c.ctx, desc, fullMethod(streamWatchGameStarted), gogrpc.CallContentSubtype(codecName))
	if err != nil {
		return err
	}
	if err := stream.SendMsg(&emptypb.Empty{}); err != nil {
		return err
	}
	if err := stream.CloseSend(); err != nil {
		return err
	}
	if _, err := stream.Header(); err != nil {
		return err
	}
	markReady()

	for {
		var ev GameStartedEvent
		if err := stream.RecvMsg(&ev); err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("server closed stream")
			}
			return err
		}
		seed, err := decodeHash(ev.Seed)
		if err != nil {
			log.Printf("ledger watch: game %d: %v", ev.GameID, err)
			continue
		}
		c.feed.Publish(ev.GameID, seed)
	}
}
