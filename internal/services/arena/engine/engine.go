// Package engine implements the deterministic property-trading game rules.
//
// An Engine is a pure state machine: given the same seed and the same action
// sequence it produces the same states and events. It performs no I/O and is
// not safe for concurrent use; callers serialize access.
package engine

import (
	"fmt"
	"strings"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
)

var (
	ErrGameEnded       = apperrors.New(apperrors.CodeGameEnded, "game has ended")
	ErrNotYourTurn     = apperrors.New(apperrors.CodeNotYourTurn, "not your turn")
	ErrInvalidAddress  = apperrors.New(apperrors.CodeInvalidAddress, "player addresses must be non-empty and distinct")
	ErrAuctionActive   = apperrors.New(apperrors.CodeAuctionActive, "an auction is in progress")
	ErrInvalidProperty = apperrors.New(apperrors.CodeInvalidProperty, "invalid property index")
)

// PlayerState is one seat's state.
type PlayerState struct {
	Index     int    `json:"index"`
	Address   string `json:"address"`
	Cash      int    `json:"cash"`
	Position  int    `json:"position"`
	Alive     bool   `json:"alive"`
	InJail    bool   `json:"inJail"`
	JailTurns int    `json:"jailTurns"`
	Doubles   int    `json:"consecutiveDoubles"`
}

// PropertyState is one ownable's state. Owner is Bank when unowned; four
// houses denote a hotel.
type PropertyState struct {
	Index     int  `json:"index"`
	Owner     int  `json:"owner"`
	Mortgaged bool `json:"mortgaged"`
	Houses    int  `json:"houses"`
}

// AuctionState tracks an open auction. It is never checkpointed.
type AuctionState struct {
	Active     bool
	Property   int
	HighBidder int
	HighBid    int
	Bidder     int
	Acted      [PlayerCount]bool
}

func idleAuction() AuctionState {
	return AuctionState{Property: -1, HighBidder: -1, Bidder: -1}
}

// Engine holds one game's full state.
type Engine struct {
	seed     [SeedSize]byte
	dice     *DiceDeriver
	status   Status
	phase    Phase
	players  [PlayerCount]PlayerState
	props    [PropertyCount]PropertyState
	auction  AuctionState
	current  int
	turn     int
	round    int
	alive    int
	lastDice Dice
	winner   int
	// freed is set when the current player left jail by rolling this turn;
	// it suppresses the doubles extra turn.
	freed bool
	decks [2]deckState
}

// New starts a fresh game for four players.
func New(addresses [PlayerCount]string, seed []byte) (*Engine, error) {
	e, err := newEngine(addresses, seed)
	if err != nil {
		return nil, err
	}
	for i := range e.players {
		e.players[i].Cash = StartingCash
		e.players[i].Alive = true
	}
	e.alive = PlayerCount
	return e, nil
}

func newEngine(addresses [PlayerCount]string, seed []byte) (*Engine, error) {
	dice, err := NewDiceDeriver(seed)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool, PlayerCount)
	for _, addr := range addresses {
		addr = strings.TrimSpace(addr)
		if addr == "" || seen[addr] {
			return nil, ErrInvalidAddress
		}
		seen[addr] = true
	}

	e := &Engine{
		dice:    dice,
		status:  StatusStarted,
		phase:   PhaseTurnStart,
		auction: idleAuction(),
		winner:  -1,
	}
	copy(e.seed[:], seed)
	for i, addr := range addresses {
		e.players[i] = PlayerState{Index: i, Address: strings.TrimSpace(addr)}
	}
	for i := range e.props {
		e.props[i] = PropertyState{Index: i, Owner: Bank}
	}
	e.decks[0] = newDeckState(seed, DeckChance)
	e.decks[1] = newDeckState(seed, DeckCommunity)
	return e, nil
}

// Round returns the round counter.
func (e *Engine) Round() int { return e.round }

// Turn returns the monotonically increasing turn counter.
func (e *Engine) Turn() int { return e.turn }

// Status returns the lifecycle status.
func (e *Engine) Status() Status { return e.status }

// Winner returns the winning player index, or -1 while the game runs.
func (e *Engine) Winner() int { return e.winner }

// Phase returns the current turn phase.
func (e *Engine) Phase() Phase { return e.phase }

// CurrentPlayer returns the index of the player whose turn it is.
func (e *Engine) CurrentPlayer() int { return e.current }

// Player returns a copy of a player's state.
func (e *Engine) Player(index int) PlayerState { return e.players[index] }

// Property returns a copy of a property's state.
func (e *Engine) Property(index int) PropertyState { return e.props[index] }

// Addresses returns the canonical seat addresses.
func (e *Engine) Addresses() [PlayerCount]string {
	var out [PlayerCount]string
	for i, p := range e.players {
		out[i] = p.Address
	}
	return out
}

// PlayerIndex returns the seat of address, or -1.
func (e *Engine) PlayerIndex(address string) int {
	address = strings.TrimSpace(address)
	for i, p := range e.players {
		if p.Address == address {
			return i
		}
	}
	return -1
}

// ActingPlayer is who must act next: the current bidder during an auction,
// otherwise the current player.
func (e *Engine) ActingPlayer() int {
	if e.auction.Active {
		return e.auction.Bidder
	}
	return e.current
}

// ExecuteAction applies action on behalf of player and returns the events it
// produced. A returned error means nothing changed.
func (e *Engine) ExecuteAction(player int, action Action) ([]Event, error) {
	if e.status == StatusEnded {
		return nil, ErrGameEnded
	}
	if player != e.ActingPlayer() {
		return nil, ErrNotYourTurn
	}

	var sink eventSink
	var err error
	switch action.Type {
	case ActionRollDice:
		err = e.rollDice(&sink)
	case ActionPayJailFee:
		err = e.payJailFee(&sink)
	case ActionBuyProperty:
		err = e.buyProperty(&sink)
	case ActionDeclineBuy:
		err = e.declineBuy(&sink)
	case ActionBid:
		err = e.bid(action.Amount, &sink)
	case ActionPassBid:
		err = e.passBid(&sink)
	case ActionMortgage:
		err = e.mortgage(action.Property, &sink)
	case ActionUnmortgage:
		err = e.unmortgage(action.Property, &sink)
	case ActionBuildHouse:
		err = e.buildHouse(action.Property, &sink)
	case ActionSellHouse:
		err = e.sellHouse(action.Property, &sink)
	case ActionEndTurn:
		err = e.endTurn(&sink)
	default:
		err = apperrors.WithMetadata(apperrors.CodeUnknownAction,
			fmt.Sprintf("unknown action %q", action.Type),
			map[string]string{"action": string(action.Type)})
	}
	if err != nil {
		return nil, err
	}
	return sink.events, nil
}

// LegalActions lists the action types the acting party may submit now.
func (e *Engine) LegalActions() []ActionType {
	if e.status == StatusEnded {
		return nil
	}
	if e.auction.Active {
		var actions []ActionType
		if e.players[e.auction.Bidder].Cash >= e.auction.HighBid+1 {
			actions = append(actions, ActionBid)
		}
		return append(actions, ActionPassBid)
	}

	p := e.players[e.current]
	switch e.phase {
	case PhaseTurnStart:
		actions := []ActionType{ActionRollDice}
		if p.InJail && p.Cash >= JailFee {
			actions = append(actions, ActionPayJailFee)
		}
		return actions
	case PhaseBuyDecision:
		var actions []ActionType
		if e.validateBuy() == nil {
			actions = append(actions, ActionBuyProperty)
		}
		return append(actions, ActionDeclineBuy)
	case PhasePostTurn:
		actions := []ActionType{ActionEndTurn}
		checks := []struct {
			action   ActionType
			validate func(int) error
		}{
			{ActionMortgage, e.validateMortgage},
			{ActionUnmortgage, e.validateUnmortgage},
			{ActionBuildHouse, e.validateBuild},
			{ActionSellHouse, e.validateSell},
		}
		for _, check := range checks {
			for i := range e.props {
				if check.validate(i) == nil {
					actions = append(actions, check.action)
					break
				}
			}
		}
		return actions
	}
	return nil
}

func wrongPhase(action ActionType, phase Phase) error {
	return apperrors.WithMetadata(apperrors.CodeWrongPhase,
		fmt.Sprintf("%s is not allowed during %s", action, phase),
		map[string]string{"action": string(action), "phase": string(phase)})
}

func playerName(index int) string {
	return fmt.Sprintf("Player %d", index)
}

func validProperty(index int) error {
	if index < 0 || index >= PropertyCount {
		return propertyError(apperrors.CodeInvalidProperty, index, "invalid property index %d", index)
	}
	return nil
}

func propertyError(code apperrors.Code, property int, format string, args ...any) error {
	return apperrors.WithMetadata(code, fmt.Sprintf(format, args...),
		map[string]string{"property": fmt.Sprint(property)})
}
