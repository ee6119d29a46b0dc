package engine

import "slices"

// autoFallback is the priority order when no buy or bid applies.
var autoFallback = []ActionType{ActionEndTurn, ActionRollDice, ActionDeclineBuy, ActionPayJailFee}

// AutoPlay makes one conservative move for the acting party. It is what a
// session runs when an agent lets its turn timer expire.
func (e *Engine) AutoPlay() ([]Event, error) {
	if e.status == StatusEnded {
		return nil, ErrGameEnded
	}
	return e.ExecuteAction(e.ActingPlayer(), e.AutoAction())
}

// AutoAction returns the move AutoPlay would make.
func (e *Engine) AutoAction() Action {
	if e.auction.Active {
		a := e.auction
		next := a.HighBid + 1
		price := Properties[a.Property].Price
		if next <= price && price*2 < e.players[a.Bidder].Cash {
			return Action{Type: ActionBid, Amount: next}
		}
		return Action{Type: ActionPassBid}
	}

	legal := e.LegalActions()
	if slices.Contains(legal, ActionBuyProperty) {
		if Properties[e.standingProperty()].Price*2 <= e.players[e.current].Cash {
			return Action{Type: ActionBuyProperty}
		}
	}
	for _, t := range autoFallback {
		if slices.Contains(legal, t) {
			return Action{Type: t}
		}
	}
	return Action{Type: ActionEndTurn}
}
