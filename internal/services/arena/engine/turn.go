package engine

import apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"

func (e *Engine) rollDice(sink *eventSink) error {
	if e.auction.Active || e.phase != PhaseTurnStart {
		return wrongPhase(ActionRollDice, e.phase)
	}

	p := &e.players[e.current]
	d := e.dice.Roll(uint64(e.turn))
	e.lastDice = d
	rolled := d
	sink.emit(Event{
		Kind:     EventDiceRolled,
		Player:   p.Index,
		Target:   -1,
		Property: -1,
		Amount:   d.Sum,
		Dice:     &rolled,
		Message:  printer.Sprintf("%s rolled %d and %d", playerName(p.Index), d.D1, d.D2),
	})

	if p.InJail {
		e.rollInJail(p, d, sink)
		return nil
	}

	if d.Doubles {
		p.Doubles++
		if p.Doubles >= MaxDoubles {
			e.sendToJail(p, "rolled doubles three times", sink)
			e.advanceTurn(sink)
			return nil
		}
	} else {
		p.Doubles = 0
	}
	e.moveBy(p, d.Sum, sink)
	return nil
}

func (e *Engine) rollInJail(p *PlayerState, d Dice, sink *eventSink) {
	if d.Doubles {
		e.release(p, "rolled doubles", sink)
		e.freed = true
		e.moveBy(p, d.Sum, sink)
		return
	}

	p.JailTurns++
	if p.JailTurns < MaxJailTurns {
		sink.add(EventStayedInJail, p.Index, -1, -1, 0, "%s stays in jail", playerName(p.Index))
		e.advanceTurn(sink)
		return
	}

	paid, solvent := e.collect(p.Index, Bank, JailFee, sink)
	sink.add(EventJailFeePaid, p.Index, Bank, -1, paid, "%s paid the %s jail fee", playerName(p.Index), FormatMoney(JailFee))
	if !solvent {
		e.bankrupt(p.Index, Bank, sink)
		e.endBankruptTurn(sink)
		return
	}
	e.release(p, "served the maximum sentence", sink)
	e.freed = true
	e.moveBy(p, d.Sum, sink)
}

func (e *Engine) payJailFee(sink *eventSink) error {
	if e.auction.Active || e.phase != PhaseTurnStart {
		return wrongPhase(ActionPayJailFee, e.phase)
	}
	p := &e.players[e.current]
	if !p.InJail {
		return apperrors.New(apperrors.CodeNotJailed, "you are not in jail")
	}
	if p.Cash < JailFee {
		return apperrors.New(apperrors.CodeInsufficientCash, printer.Sprintf("jail fee is %s, you have %s", FormatMoney(JailFee), FormatMoney(p.Cash)))
	}

	p.Cash -= JailFee
	sink.add(EventJailFeePaid, p.Index, Bank, -1, JailFee, "%s paid the %s jail fee", playerName(p.Index), FormatMoney(JailFee))
	e.release(p, "paid the fee", sink)
	return nil
}

func (e *Engine) endTurn(sink *eventSink) error {
	if e.auction.Active || e.phase != PhasePostTurn {
		return wrongPhase(ActionEndTurn, e.phase)
	}
	p := &e.players[e.current]
	if e.lastDice.Doubles && !e.freed && !p.InJail {
		e.turn++
		e.phase = PhaseTurnStart
		sink.add(EventExtraTurn, p.Index, -1, -1, 0, "%s rolled doubles and goes again", playerName(p.Index))
		return nil
	}
	e.advanceTurn(sink)
	return nil
}

// advanceTurn hands play to the next living player, counting a round each
// time play wraps past the highest living seat.
func (e *Engine) advanceTurn(sink *eventSink) {
	cur := &e.players[e.current]
	cur.Doubles = 0
	e.freed = false
	e.turn++
	sink.add(EventTurnEnded, cur.Index, -1, -1, 0, "%s ended their turn", playerName(cur.Index))

	next := e.nextAlive(e.current)
	if next <= e.current {
		e.round++
		sink.add(EventRoundStarted, next, -1, -1, e.round, "round %d begins", e.round)
	}
	e.current = next
	e.phase = PhaseTurnStart

	if e.round >= MaxRounds {
		e.endByNetWorth(sink)
	}
}

// endBankruptTurn passes play on after the current player went bankrupt.
func (e *Engine) endBankruptTurn(sink *eventSink) {
	if e.status == StatusEnded {
		return
	}
	e.advanceTurn(sink)
}

func (e *Engine) nextAlive(from int) int {
	for k := 1; k <= PlayerCount; k++ {
		i := (from + k) % PlayerCount
		if e.players[i].Alive {
			return i
		}
	}
	return from
}

func (e *Engine) moveBy(p *PlayerState, steps int, sink *eventSink) {
	from := p.Position
	to := (from + steps) % BoardSize
	p.Position = to
	sink.add(EventMoved, p.Index, -1, Board[to].Property, to, "%s moved to %s", playerName(p.Index), Board[to].Name)
	if to < from {
		e.paySalary(p, sink)
	}
	e.land(p, sink)
}

// moveTo teleports p forward to tile, paying salary when passing or landing
// on start.
func (e *Engine) moveTo(p *PlayerState, tile int, sink *eventSink) {
	from := p.Position
	p.Position = tile
	sink.add(EventMoved, p.Index, -1, Board[tile].Property, tile, "%s advanced to %s", playerName(p.Index), Board[tile].Name)
	if tile < from || tile == 0 {
		e.paySalary(p, sink)
	}
	e.land(p, sink)
}

func (e *Engine) paySalary(p *PlayerState, sink *eventSink) {
	p.Cash += Salary
	sink.add(EventSalary, p.Index, Bank, -1, Salary, "%s collected %s salary", playerName(p.Index), FormatMoney(Salary))
}

func (e *Engine) land(p *PlayerState, sink *eventSink) {
	tile := Board[p.Position]
	switch tile.Kind {
	case TileOwnable:
		e.landOnProperty(p, tile.Property, sink)
	case TileTax:
		paid, solvent := e.collect(p.Index, Bank, tile.Tax, sink)
		sink.add(EventTaxPaid, p.Index, Bank, -1, paid, "%s paid %s %s", playerName(p.Index), FormatMoney(paid), tile.Name)
		if !solvent {
			e.bankrupt(p.Index, Bank, sink)
			e.endBankruptTurn(sink)
			return
		}
		e.phase = PhasePostTurn
	case TileChance:
		e.drawCard(p, DeckChance, sink)
	case TileCommunity:
		e.drawCard(p, DeckCommunity, sink)
	case TileGoToJail:
		e.sendToJail(p, "landed on Go To Jail", sink)
		e.phase = PhasePostTurn
	default:
		e.phase = PhasePostTurn
	}
}

func (e *Engine) landOnProperty(p *PlayerState, index int, sink *eventSink) {
	prop := &e.props[index]
	switch {
	case prop.Owner == Bank:
		e.phase = PhaseBuyDecision
	case prop.Owner == p.Index || prop.Mortgaged:
		e.phase = PhasePostTurn
	default:
		owner := prop.Owner
		rent := e.Rent(index)
		paid, solvent := e.collect(p.Index, owner, rent, sink)
		sink.add(EventRentPaid, p.Index, owner, index, paid, "%s paid %s rent to %s for %s",
			playerName(p.Index), FormatMoney(paid), playerName(owner), Properties[index].Name)
		if !solvent {
			e.bankrupt(p.Index, owner, sink)
			e.endBankruptTurn(sink)
			return
		}
		e.phase = PhasePostTurn
	}
}

func (e *Engine) sendToJail(p *PlayerState, reason string, sink *eventSink) {
	p.Position = JailTile
	p.InJail = true
	p.JailTurns = 0
	p.Doubles = 0
	sink.add(EventSentToJail, p.Index, -1, -1, 0, "%s %s and went to jail", playerName(p.Index), reason)
}

func (e *Engine) release(p *PlayerState, reason string, sink *eventSink) {
	p.InJail = false
	p.JailTurns = 0
	sink.add(EventFreedFromJail, p.Index, -1, -1, 0, "%s %s and left jail", playerName(p.Index), reason)
}

func (e *Engine) drawCard(p *PlayerState, deck Deck, sink *eventSink) {
	card := Cards(deck)[e.decks[deck-1].draw()]
	sink.add(EventCardDrawn, p.Index, -1, -1, card.Amount, "%s drew %s: %s", playerName(p.Index), deck, card.Text)

	switch card.Effect {
	case CardGain:
		p.Cash += card.Amount
		sink.add(EventCashGained, p.Index, Bank, -1, card.Amount, "%s received %s", playerName(p.Index), FormatMoney(card.Amount))
	case CardLose:
		paid, solvent := e.collect(p.Index, Bank, card.Amount, sink)
		sink.add(EventCashPaid, p.Index, Bank, -1, paid, "%s paid %s", playerName(p.Index), FormatMoney(paid))
		if !solvent {
			e.bankrupt(p.Index, Bank, sink)
			e.endBankruptTurn(sink)
			return
		}
	case CardTeleport:
		e.moveTo(p, card.Tile, sink)
		return
	case CardGoToJail:
		e.sendToJail(p, "drew Go to Jail", sink)
	case CardPayEach:
		for i := range e.players {
			q := &e.players[i]
			if q.Index == p.Index || !q.Alive {
				continue
			}
			paid, solvent := e.collect(p.Index, q.Index, card.Amount, sink)
			sink.add(EventCashPaid, p.Index, q.Index, -1, paid, "%s paid %s to %s", playerName(p.Index), FormatMoney(paid), playerName(q.Index))
			if !solvent {
				e.bankrupt(p.Index, q.Index, sink)
				e.endBankruptTurn(sink)
				return
			}
		}
	case CardCollectEach:
		for i := range e.players {
			q := &e.players[i]
			if q.Index == p.Index || !q.Alive {
				continue
			}
			paid, solvent := e.collect(q.Index, p.Index, card.Amount, sink)
			sink.add(EventCashPaid, q.Index, p.Index, -1, paid, "%s paid %s to %s", playerName(q.Index), FormatMoney(paid), playerName(p.Index))
			if !solvent {
				e.bankrupt(q.Index, p.Index, sink)
				if e.status == StatusEnded {
					return
				}
			}
		}
	}
	e.phase = PhasePostTurn
}
