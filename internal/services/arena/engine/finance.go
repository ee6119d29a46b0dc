package engine

import (
	"cmp"
	"slices"
)

// collect moves up to amount from debtor to creditor, auto-mortgaging the
// debtor's holdings on a shortfall. It reports the amount paid and whether
// the debt was covered in full; an uncovered debt leaves the debtor at zero
// and the caller must bankrupt them.
func (e *Engine) collect(debtor, creditor, amount int, sink *eventSink) (int, bool) {
	d := &e.players[debtor]
	if d.Cash < amount {
		e.autoMortgage(d, amount, sink)
	}
	paid := min(amount, d.Cash)
	d.Cash -= paid
	if creditor != Bank {
		e.players[creditor].Cash += paid
	}
	return paid, paid == amount
}

// autoMortgage mortgages the debtor's house-free properties, cheapest
// mortgage value first, until cash covers target or nothing is left.
func (e *Engine) autoMortgage(d *PlayerState, target int, sink *eventSink) {
	var candidates []int
	for i, prop := range e.props {
		if prop.Owner == d.Index && !prop.Mortgaged && prop.Houses == 0 {
			candidates = append(candidates, i)
		}
	}
	slices.SortStableFunc(candidates, func(a, b int) int {
		return cmp.Compare(Properties[a].MortgageValue(), Properties[b].MortgageValue())
	})

	for _, i := range candidates {
		if d.Cash >= target {
			return
		}
		value := Properties[i].MortgageValue()
		e.props[i].Mortgaged = true
		d.Cash += value
		sink.add(EventAutoMortgaged, d.Index, Bank, i, value, "%s auto-mortgaged %s for %s",
			playerName(d.Index), Properties[i].Name, FormatMoney(value))
	}
}

// bankrupt eliminates debtor and hands every holding to creditor (or the
// bank) unmortgaged and without houses.
func (e *Engine) bankrupt(debtor, creditor int, sink *eventSink) {
	d := &e.players[debtor]
	d.Cash = 0
	d.Alive = false
	d.InJail = false
	d.JailTurns = 0
	d.Doubles = 0
	e.alive--

	to := "the bank"
	if creditor != Bank {
		to = playerName(creditor)
	}
	sink.add(EventBankrupt, debtor, creditor, -1, 0, "%s is bankrupt to %s", playerName(debtor), to)

	for i := range e.props {
		prop := &e.props[i]
		if prop.Owner != debtor {
			continue
		}
		prop.Owner = creditor
		prop.Mortgaged = false
		prop.Houses = 0
		sink.add(EventPropertyTransferred, debtor, creditor, i, 0, "%s passed to %s", Properties[i].Name, to)
	}

	if e.alive == 1 {
		e.endGame(e.nextAlive(debtor), "last player standing", sink)
	}
}

func (e *Engine) endGame(winner int, reason string, sink *eventSink) {
	e.status = StatusEnded
	e.winner = winner
	e.auction = idleAuction()
	sink.add(EventGameEnded, winner, -1, -1, 0, "%s wins (%s)", playerName(winner), reason)
}

// endByNetWorth ends the game at the round cap; ties go to the lowest seat.
func (e *Engine) endByNetWorth(sink *eventSink) {
	best, bestWorth := -1, 0
	for i, p := range e.players {
		if !p.Alive {
			continue
		}
		if worth := e.NetWorth(i); best == -1 || worth > bestWorth {
			best, bestWorth = i, worth
		}
	}
	e.endGame(best, "round limit reached", sink)
}

// NetWorth is cash plus the price of unmortgaged holdings plus half the
// mortgage value of mortgaged ones.
func (e *Engine) NetWorth(player int) int {
	worth := e.players[player].Cash
	for i, prop := range e.props {
		if prop.Owner != player {
			continue
		}
		if prop.Mortgaged {
			worth += Properties[i].MortgageValue() / 2
		} else {
			worth += Properties[i].Price
		}
	}
	return worth
}

// Rent is what landing on property costs right now. Utility rent uses the
// last dice roll.
func (e *Engine) Rent(property int) int {
	prop := e.props[property]
	if prop.Owner == Bank || prop.Mortgaged {
		return 0
	}
	def := Properties[property]
	switch def.Kind {
	case KindRailroad:
		return railroadRent[e.countHeld(prop.Owner, KindRailroad)-1]
	case KindUtility:
		return utilityMultiplier[e.countHeld(prop.Owner, KindUtility)-1] * e.lastDice.Sum
	}
	if prop.Houses > 0 {
		return def.HouseRent[prop.Houses-1]
	}
	if e.ownsGroup(prop.Owner, def.Group) {
		return def.Rent * 2
	}
	return def.Rent
}

// countHeld counts owner's unmortgaged properties of a kind.
func (e *Engine) countHeld(owner int, kind PropertyKind) int {
	n := 0
	for i, prop := range e.props {
		if prop.Owner == owner && !prop.Mortgaged && Properties[i].Kind == kind {
			n++
		}
	}
	return n
}

func (e *Engine) ownsGroup(owner, group int) bool {
	for _, i := range groupMembers(group) {
		if e.props[i].Owner != owner {
			return false
		}
	}
	return true
}
