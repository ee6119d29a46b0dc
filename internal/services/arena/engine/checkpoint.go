package engine

import (
	"fmt"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
	"github.com/louisbranch/agentopoly/internal/services/arena/checkpoint"
)

// Checkpoint packs the persistent subset of the state. It refuses while an
// auction is open because auctions are not representable in the words.
func (e *Engine) Checkpoint() (checkpoint.Words, error) {
	if e.auction.Active {
		return checkpoint.Words{}, ErrAuctionActive
	}
	var state checkpoint.State
	for i, p := range e.players {
		state.Players[i] = checkpoint.Player{
			Position:  p.Position,
			Cash:      p.Cash,
			Alive:     p.Alive,
			InJail:    p.InJail,
			JailTurns: p.JailTurns,
		}
	}
	for i, prop := range e.props {
		state.Properties[i] = checkpoint.Property{Owner: prop.Owner, Mortgaged: prop.Mortgaged}
	}
	state.Meta = checkpoint.Meta{
		CurrentPlayer: e.current,
		Turn:          e.turn,
		Round:         e.round,
		AliveCount:    e.alive,
	}
	return checkpoint.Encode(state)
}

// Restore rebuilds an engine from checkpoint words.
//
// Restoration is lossy: houses are zero, no auction is open, both decks are
// freshly shuffled with the cursor at the top, doubles counters and the last
// roll are zero, the freed flag is clear and the phase is TURN_START.
func Restore(addresses [PlayerCount]string, seed []byte, words checkpoint.Words) (*Engine, error) {
	state, err := checkpoint.Decode(words)
	if err != nil {
		return nil, err
	}
	e, err := newEngine(addresses, seed)
	if err != nil {
		return nil, err
	}

	alive := 0
	for i, p := range state.Players {
		e.players[i].Position = p.Position
		e.players[i].Cash = p.Cash
		e.players[i].Alive = p.Alive
		e.players[i].InJail = p.InJail
		e.players[i].JailTurns = p.JailTurns
		if p.Alive {
			alive++
		}
	}
	for i, prop := range state.Properties {
		e.props[i].Owner = prop.Owner
		e.props[i].Mortgaged = prop.Mortgaged
	}
	if alive != state.Meta.AliveCount {
		return nil, apperrors.Wrap(apperrors.CodeCorruptSnapshot,
			fmt.Sprintf("checkpoint alive count %d does not match %d living players", state.Meta.AliveCount, alive),
			checkpoint.ErrCorrupt)
	}

	e.current = state.Meta.CurrentPlayer
	e.turn = state.Meta.Turn
	e.round = state.Meta.Round
	e.alive = alive

	var sink eventSink
	switch {
	case alive <= 1:
		winner := -1
		for i, p := range e.players {
			if p.Alive {
				winner = i
			}
		}
		e.status = StatusEnded
		e.winner = winner
	case e.round >= MaxRounds:
		e.endByNetWorth(&sink)
	case !e.players[e.current].Alive:
		e.current = e.nextAlive(e.current)
	}
	return e, nil
}
