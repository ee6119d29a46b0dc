package orchestrator

import (
	"context"
	"errors"
	"fmt"

	"github.com/louisbranch/agentopoly/internal/platform/timeouts"
	"github.com/louisbranch/agentopoly/internal/services/arena/ledger"
	"github.com/louisbranch/agentopoly/internal/services/arena/session"
)

// ledgerSession returns the live session for gameID, spawning it from the
// ledger record when the game has started.
func (o *Orchestrator) ledgerSession(ctx context.Context, gameID uint64) (*session.Session, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrClosed
	}
	if sess, ok := o.games[gameID]; ok {
		o.mu.Unlock()
		return sess, nil
	}
	o.mu.Unlock()

	game, err := o.cfg.Gateway.GetGame(ctx, gameID)
	if errors.Is(err, ledger.ErrNotFound) {
		return nil, ErrGameNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get game %d: %w", gameID, err)
	}
	switch game.Status {
	case ledger.GameOpen:
		return nil, ledger.ErrGameNotStarted
	case ledger.GameSettled:
		return nil, ledger.ErrAlreadySettled
	}
	return o.spawn(ctx, game)
}

// spawn builds a session for a started ledger game, recovering from the
// latest checkpoint when one exists.
func (o *Orchestrator) spawn(ctx context.Context, game ledger.Game) (*session.Session, error) {
	seats, ok := game.Seats()
	if !ok {
		return nil, fmt.Errorf("game %d: ledger lists %d players", game.ID, len(game.Players))
	}
	cfg := o.sessionConfig(game.ID, seats, game.Seed)

	cp, err := o.cfg.Gateway.GetCheckpoint(ctx, game.ID)
	switch {
	case err == nil && cp.Round > 0:
		words := cp.Words()
		cfg.Checkpoint = &words
	case err != nil && !errors.Is(err, ledger.ErrNotFound):
		return nil, fmt.Errorf("get checkpoint %d: %w", game.ID, err)
	}

	sess, err := session.New(cfg)
	if err != nil {
		return nil, err
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		sess.Close()
		return nil, ErrClosed
	}
	if existing, ok := o.games[game.ID]; ok {
		sess.Close()
		return existing, nil
	}
	o.games[game.ID] = sess
	if cfg.Checkpoint != nil {
		o.logf("game %d: session recovered at round %d", game.ID, cp.Round)
	} else {
		o.logf("game %d: session spawned", game.ID)
	}
	o.watch(sess, func() {
		if o.games[game.ID] == sess {
			delete(o.games, game.ID)
		}
	})
	return sess, nil
}

// onGameStarted spawns the session for a game the ledger just started.
func (o *Orchestrator) onGameStarted(gameID uint64, _ [32]byte) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ctx, cancel := context.WithTimeout(o.ctx, timeouts.LedgerCall)
		defer cancel()
		if _, err := o.ledgerSession(ctx, gameID); err != nil {
			o.logf("game %d: spawn on start: %v", gameID, err)
		}
	}()
}
