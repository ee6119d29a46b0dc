// Package ledger defines the settlement gateway contract between game
// sessions and the ledger that anchors checkpoints and outcomes.
package ledger

import (
	"context"
	"time"

	"github.com/holiman/uint256"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/services/arena/checkpoint"
)

var (
	// ErrNotFound indicates an unknown game or a game without checkpoints.
	ErrNotFound = apperrors.New(apperrors.CodeNotFound, "game not found")
	// ErrGameNotOpen indicates a join against a game that is no longer open.
	ErrGameNotOpen = apperrors.New(apperrors.CodeGameNotOpen, "game is not open")
	// ErrGameNotStarted indicates a write against a game still in its lobby.
	ErrGameNotStarted = apperrors.New(apperrors.CodeGameNotStarted, "game not started")
	// ErrAlreadySettled indicates a second settlement or a write after one.
	ErrAlreadySettled = apperrors.New(apperrors.CodeAlreadySettled, "game already settled")
	// ErrStaleRound indicates a checkpoint not newer than the stored one.
	ErrStaleRound = apperrors.New(apperrors.CodeStaleRound, "checkpoint round is not newer than the stored one")
	// ErrAlreadyJoined indicates an address joining the same game twice.
	ErrAlreadyJoined = apperrors.New(apperrors.CodeAlreadyExists, "address already joined this game")
	// ErrJoinUnsupported indicates a gateway that does not seat players.
	ErrJoinUnsupported = apperrors.New(apperrors.CodeUnsupported, "ledger does not accept joins")
	// ErrUnknownWinner indicates a settlement naming an address with no seat.
	ErrUnknownWinner = apperrors.New(apperrors.CodeUnknownPlayer, "winner is not seated in this game")
	// ErrClosed indicates the gateway has been shut down.
	ErrClosed = apperrors.New(apperrors.CodeUnknown, "ledger gateway closed")
)

// Seats is the number of players in a ledger game.
const Seats = 4

// TxRef identifies a ledger write.
type TxRef string

// GameStatus is the ledger-side lifecycle of a game.
type GameStatus string

const (
	GameOpen    GameStatus = "OPEN"
	GameStarted GameStatus = "STARTED"
	GameSettled GameStatus = "SETTLED"
)

// Game is the ledger record of one game.
type Game struct {
	ID        uint64
	Status    GameStatus
	Players   []string
	Seed      [32]byte
	Winner    int
	LogHash   [32]byte
	SettleTx  TxRef
	CreatedAt time.Time
	StartedAt time.Time
}

// Seats returns the four canonical addresses once the game is full.
func (g Game) Seats() ([Seats]string, bool) {
	var seats [Seats]string
	if len(g.Players) != Seats {
		return seats, false
	}
	copy(seats[:], g.Players)
	return seats, true
}

// SeatOf returns the seat held by address, or -1.
func (g Game) SeatOf(address string) int {
	for i, player := range g.Players {
		if player == address {
			return i
		}
	}
	return -1
}

// Checkpoint is the latest persisted game state.
type Checkpoint struct {
	GameID     uint64
	Round      int
	Players    uint256.Int
	Properties uint256.Int
	Meta       uint64
	TxRef      TxRef
	WrittenAt  time.Time
}

// Words returns the packed words for checkpoint decoding.
func (c Checkpoint) Words() checkpoint.Words {
	return checkpoint.Words{Players: c.Players, Properties: c.Properties, Meta: c.Meta}
}

// StartedFunc is notified when a ledger game fills and starts.
type StartedFunc func(gameID uint64, seed [32]byte)

// Gateway is the session-facing view of the ledger.
type Gateway interface {
	WriteCheckpoint(ctx context.Context, gameID uint64, round int, players, properties uint256.Int, meta uint64) (TxRef, error)
	SettleGame(ctx context.Context, gameID uint64, winnerAddress string, logHash [32]byte) (TxRef, error)
	GetGame(ctx context.Context, gameID uint64) (Game, error)
	GetCheckpoint(ctx context.Context, gameID uint64) (Checkpoint, error)
	GetOpenGameIDs(ctx context.Context) ([]uint64, error)
	CreateOpenGame(ctx context.Context) (uint64, error)
	OnGameStarted(fn StartedFunc) (unsubscribe func())
}

// Joiner is implemented by gateways that seat players themselves, such as
// the SQLite ledger.
type Joiner interface {
	JoinGame(ctx context.Context, gameID uint64, address string) (Game, error)
}
