package grpc

import (
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"google.golang.org/protobuf/types/known/timestamppb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// WriteCheckpointRequest carries packed words as 0x-prefixed hex.
type WriteCheckpointRequest struct {
	GameID     uint64 `json:"gameId"`
	Round      int    `json:"round"`
	Players    string `json:"players"`
	Properties string `json:"properties"`
	Meta       uint64 `json:"meta"`
}

// SettleGameRequest reports the winner's address and event-log hash.
type SettleGameRequest struct {
	GameID        uint64 `json:"gameId"`
	WinnerAddress string `json:"winnerAddress"`
	LogHash       string `json:"logHash"`
}

// JoinGameRequest seats an address in an open game.
type JoinGameRequest struct {
	GameID  uint64 `json:"gameId"`
	Address string `json:"address"`
}

// GameResponse is the wire form of ledger.Game. Winner is absent until the
// game settles and StartedAt until it fills.
type GameResponse struct {
	ID        uint64                 `json:"id"`
	Status    string                 `json:"status"`
	Players   []string               `json:"players"`
	Seed      string                 `json:"seed"`
	Winner    *wrapperspb.Int32Value `json:"winner,omitempty"`
	LogHash   string                 `json:"logHash"`
	SettleTx  string                 `json:"settleTx,omitempty"`
	CreatedAt *timestamppb.Timestamp `json:"createdAt,omitempty"`
	StartedAt *timestamppb.Timestamp `json:"startedAt,omitempty"`
}

// CheckpointResponse is the wire form of ledger.Checkpoint.
type CheckpointResponse struct {
	GameID     uint64                 `json:"gameId"`
	Round      int                    `json:"round"`
	Players    string                 `json:"players"`
	Properties string                 `json:"properties"`
	Meta       uint64                 `json:"meta"`
	TxRef      string                 `json:"txRef"`
	WrittenAt  *timestamppb.Timestamp `json:"writtenAt,omitempty"`
}

// OpenGamesResponse lists open games.
type OpenGamesResponse struct {
	GameIDs []uint64 `json:"gameIds"`
}

// GameStartedEvent is streamed when a game fills.
type GameStartedEvent struct {
	GameID uint64 `json:"gameId"`
	Seed   string `json:"seed"`
}

func encodeHash(b [32]byte) string {
	return "0x" + hex.EncodeToString(b[:])
}

func decodeHash(value string) ([32]byte, error) {
	var out [32]byte
	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return out, fmt.Errorf("decode hash: %w", err)
	}
	if len(raw) != len(out) {
		return out, fmt.Errorf("hash must be 32 bytes, got %d", len(raw))
	}
	copy(out[:], raw)
	return out, nil
}

// timestampOrNil maps the zero time to an absent timestamp.
func timestampOrNil(t time.Time) *timestamppb.Timestamp {
	if t.IsZero() {
		return nil
	}
	return timestamppb.New(t)
}

func timeOrZero(ts *timestamppb.Timestamp) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return ts.AsTime()
}

func gameToResponse(g ledger.Game) *GameResponse {
	resp := &GameResponse{
		ID:        g.ID,
		Status:    string(g.Status),
		Players:   g.Players,
		Seed:      encodeHash(g.Seed),
		LogHash:   encodeHash(g.LogHash),
		SettleTx:  string(g.SettleTx),
		CreatedAt: timestampOrNil(g.CreatedAt),
		StartedAt: timestampOrNil(g.StartedAt),
	}
	if g.Winner >= 0 {
		resp.Winner = wrapperspb.Int32(int32(g.Winner))
	}
	return resp
}

func gameFromResponse(r *GameResponse) (ledger.Game, error) {
	seed, err := decodeHash(r.Seed)
	if err != nil {
		return ledger.Game{}, fmt.Errorf("seed: %w", err)
	}
	logHash, err := decodeHash(r.LogHash)
	if err != nil {
		return ledger.Game{}, fmt.Errorf("log hash: %w", err)
	}
	winner := -1
	if r.Winner != nil {
		winner = int(r.Winner.GetValue())
	}
	return ledger.Game{
		ID:        r.ID,
		Status:    ledger.GameStatus(r.Status),
		Players:   r.Players,
		Seed:      seed,
		Winner:    winner,
		LogHash:   logHash,
		SettleTx:  ledger.TxRef(r.SettleTx),
		CreatedAt: timeOrZero(r.CreatedAt),
		StartedAt: timeOrZero(r.StartedAt),
	}, nil
}
