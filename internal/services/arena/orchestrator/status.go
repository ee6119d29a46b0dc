package orchestrator

import (
	"context"
	"encoding/hex"
	"fmt"

	"github.com/louisbranch/agentopoly/internal/services/arena/engine"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
)

// Game statuses reported by GameStatus. Ledger modes report the ledger's own
// OPEN, STARTED and SETTLED values.
const (
	StatusOpen    = string(ledger.GameOpen)
	StatusStarted = string(ledger.GameStarted)
	StatusEnded   = "ENDED"
)

// GameInfo is the lobby or settlement view of one game.
type GameInfo struct {
	ID      uint64   `json:"id"`
	Status  string   `json:"status"`
	Players []string `json:"players"`
	Winner  int      `json:"winner"`
	LogHash string   `json:"logHash,omitempty"`
	Live    bool     `json:"live"`
}

// OpenGameIDs lists games accepting players: slots holding a lobby in local
// mode, open ledger games otherwise.
func (o *Orchestrator) OpenGameIDs(ctx context.Context) ([]uint64, error) {
	if o.cfg.Mode == ModeLedger {
		ids, err := o.cfg.Gateway.GetOpenGameIDs(ctx)
		if err != nil {
			return nil, fmt.Errorf("open games: %w", err)
		}
		return ids, nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	ids := make([]uint64, 0, len(o.slots))
	for _, sl := range o.slots {
		if sl.lobby != nil {
			ids = append(ids, sl.id)
		}
	}
	return ids, nil
}

// GameStatus describes a slot or ledger game.
func (o *Orchestrator) GameStatus(ctx context.Context, gameID uint64) (GameInfo, error) {
	if o.cfg.Mode == ModeLedger {
		game, err := o.cfg.Gateway.GetGame(ctx, gameID)
		if err != nil {
			return GameInfo{}, err
		}
		o.mu.Lock()
		_, live := o.games[gameID]
		o.mu.Unlock()
		return ledgerInfo(game, live), nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if gameID >= uint64(len(o.slots)) {
		return GameInfo{}, ErrGameNotFound
	}
	sl := o.slots[gameID]
	if sl.lobby != nil {
		return GameInfo{ID: gameID, Status: StatusOpen, Players: sl.lobby.addresses(), Winner: -1}, nil
	}
	addresses := sl.session.Addresses()
	state := sl.session.State()
	info := GameInfo{ID: gameID, Status: StatusStarted, Players: addresses[:], Winner: state.Winner, Live: true}
	if state.Status == engine.StatusEnded {
		info.Status = StatusEnded
	}
	return info, nil
}

func ledgerInfo(game ledger.Game, live bool) GameInfo {
	info := GameInfo{
		ID:      game.ID,
		Status:  string(game.Status),
		Players: game.Players,
		Winner:  game.Winner,
		Live:    live,
	}
	if info.Players == nil {
		info.Players = []string{}
	}
	if game.Status == ledger.GameSettled {
		info.LogHash = "0x" + hex.EncodeToString(game.LogHash[:])
	}
	return info
}

// LiveState returns the snapshot of the running session for gameID.
func (o *Orchestrator) LiveState(gameID uint64) (engine.Snapshot, bool) {
	o.mu.Lock()
	sess, ok := o.games[gameID]
	if o.cfg.Mode == ModeLocal {
		ok = gameID < uint64(len(o.slots)) && o.slots[gameID].session != nil
		if ok {
			sess = o.slots[gameID].session
		}
	}
	o.mu.Unlock()
	if !ok {
		return engine.Snapshot{}, false
	}
	return sess.State(), true
}

// CreateGame opens a new ledger game.
func (o *Orchestrator) CreateGame(ctx context.Context) (uint64, error) {
	if o.cfg.Mode != ModeLedger {
		return 0, ErrLedgerOnly
	}
	return o.cfg.Gateway.CreateOpenGame(ctx)
}

// JoinGame seats address in an open ledger game. The fourth join starts the
// game and the session spawns from the start notification.
func (o *Orchestrator) JoinGame(ctx context.Context, gameID uint64, address string) (GameInfo, error) {
	if o.cfg.Mode != ModeLedger {
		return GameInfo{}, ErrLedgerOnly
	}
	joiner, ok := o.cfg.Gateway.(ledger.Joiner)
	if !ok {
		return GameInfo{}, ledger.ErrJoinUnsupported
	}
	game, err := joiner.JoinGame(ctx, gameID, address)
	if err != nil {
		return GameInfo{}, err
	}
	return ledgerInfo(game, false), nil
}
