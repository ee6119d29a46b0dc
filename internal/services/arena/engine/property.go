package engine

import apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"

// standingProperty is the ownable under the current player, or -1.
func (e *Engine) standingProperty() int {
	return Board[e.players[e.current].Position].Property
}

func (e *Engine) validateBuy() error {
	index := e.standingProperty()
	if index < 0 {
		return apperrors.New(apperrors.CodeInvalidProperty, "nothing to buy here")
	}
	if e.props[index].Owner != Bank {
		return propertyError(apperrors.CodePropertyOwned, index, "%s is already owned", Properties[index].Name)
	}
	if price, cash := Properties[index].Price, e.players[e.current].Cash; cash < price {
		return propertyError(apperrors.CodeInsufficientCash, index, "%s costs %s, you have %s",
			Properties[index].Name, FormatMoney(price), FormatMoney(cash))
	}
	return nil
}

func (e *Engine) buyProperty(sink *eventSink) error {
	if e.auction.Active || e.phase != PhaseBuyDecision {
		return wrongPhase(ActionBuyProperty, e.phase)
	}
	if err := e.validateBuy(); err != nil {
		return err
	}
	index := e.standingProperty()
	p := &e.players[e.current]
	price := Properties[index].Price
	p.Cash -= price
	e.props[index].Owner = p.Index
	e.phase = PhasePostTurn
	sink.add(EventPropertyBought, p.Index, Bank, index, price, "%s bought %s for %s",
		playerName(p.Index), Properties[index].Name, FormatMoney(price))
	return nil
}

func (e *Engine) declineBuy(sink *eventSink) error {
	if e.auction.Active || e.phase != PhaseBuyDecision {
		return wrongPhase(ActionDeclineBuy, e.phase)
	}
	e.startAuction(e.standingProperty(), sink)
	return nil
}

func (e *Engine) ownedBy(index int) error {
	if err := validProperty(index); err != nil {
		return err
	}
	if e.props[index].Owner != e.current {
		return propertyError(apperrors.CodeNotOwner, index, "you do not own %s", Properties[index].Name)
	}
	return nil
}

func (e *Engine) validateMortgage(index int) error {
	if err := e.ownedBy(index); err != nil {
		return err
	}
	prop := e.props[index]
	if prop.Mortgaged {
		return propertyError(apperrors.CodeMortgaged, index, "%s is already mortgaged", Properties[index].Name)
	}
	if prop.Houses > 0 {
		return propertyError(apperrors.CodeHasHouses, index, "sell the houses on %s first", Properties[index].Name)
	}
	return nil
}

func (e *Engine) mortgage(index int, sink *eventSink) error {
	if e.auction.Active || e.phase != PhasePostTurn {
		return wrongPhase(ActionMortgage, e.phase)
	}
	if err := e.validateMortgage(index); err != nil {
		return err
	}
	value := Properties[index].MortgageValue()
	e.props[index].Mortgaged = true
	e.players[e.current].Cash += value
	sink.add(EventMortgaged, e.current, Bank, index, value, "%s mortgaged %s for %s",
		playerName(e.current), Properties[index].Name, FormatMoney(value))
	return nil
}

func (e *Engine) validateUnmortgage(index int) error {
	if err := e.ownedBy(index); err != nil {
		return err
	}
	if !e.props[index].Mortgaged {
		return propertyError(apperrors.CodeNotMortgaged, index, "%s is not mortgaged", Properties[index].Name)
	}
	if cost, cash := Properties[index].UnmortgageCost(), e.players[e.current].Cash; cash < cost {
		return propertyError(apperrors.CodeInsufficientCash, index, "unmortgaging %s costs %s, you have %s",
			Properties[index].Name, FormatMoney(cost), FormatMoney(cash))
	}
	return nil
}

func (e *Engine) unmortgage(index int, sink *eventSink) error {
	if e.auction.Active || e.phase != PhasePostTurn {
		return wrongPhase(ActionUnmortgage, e.phase)
	}
	if err := e.validateUnmortgage(index); err != nil {
		return err
	}
	cost := Properties[index].UnmortgageCost()
	e.props[index].Mortgaged = false
	e.players[e.current].Cash -= cost
	sink.add(EventUnmortgaged, e.current, Bank, index, cost, "%s unmortgaged %s for %s",
		playerName(e.current), Properties[index].Name, FormatMoney(cost))
	return nil
}

// groupHouses returns the min and max house counts across a color group.
func (e *Engine) groupHouses(group int) (lo, hi int) {
	lo = MaxHouses
	for _, i := range groupMembers(group) {
		lo = min(lo, e.props[i].Houses)
		hi = max(hi, e.props[i].Houses)
	}
	return lo, hi
}

func (e *Engine) validateBuild(index int) error {
	if err := e.ownedBy(index); err != nil {
		return err
	}
	def := Properties[index]
	if def.Kind != KindColor {
		return propertyError(apperrors.CodeBuildRule, index, "%s cannot hold houses", def.Name)
	}
	if !e.ownsGroup(e.current, def.Group) {
		return propertyError(apperrors.CodeBuildRule, index, "you need the whole color group to build on %s", def.Name)
	}
	for _, i := range groupMembers(def.Group) {
		if e.props[i].Mortgaged {
			return propertyError(apperrors.CodeMortgaged, index, "%s is mortgaged", Properties[i].Name)
		}
	}
	houses := e.props[index].Houses
	if houses >= MaxHouses {
		return propertyError(apperrors.CodeBuildRule, index, "%s already has a hotel", def.Name)
	}
	if lo, _ := e.groupHouses(def.Group); houses > lo {
		return propertyError(apperrors.CodeBuildRule, index, "build evenly: other properties in the group need houses first")
	}
	if cash := e.players[e.current].Cash; cash < def.HouseCost {
		return propertyError(apperrors.CodeInsufficientCash, index, "a house on %s costs %s, you have %s",
			def.Name, FormatMoney(def.HouseCost), FormatMoney(cash))
	}
	return nil
}

func (e *Engine) buildHouse(index int, sink *eventSink) error {
	if e.auction.Active || e.phase != PhasePostTurn {
		return wrongPhase(ActionBuildHouse, e.phase)
	}
	if err := e.validateBuild(index); err != nil {
		return err
	}
	cost := Properties[index].HouseCost
	e.props[index].Houses++
	e.players[e.current].Cash -= cost
	sink.add(EventHouseBuilt, e.current, Bank, index, cost, "%s built on %s (%d)",
		playerName(e.current), Properties[index].Name, e.props[index].Houses)
	return nil
}

func (e *Engine) validateSell(index int) error {
	if err := e.ownedBy(index); err != nil {
		return err
	}
	def := Properties[index]
	houses := e.props[index].Houses
	if houses == 0 {
		return propertyError(apperrors.CodeBuildRule, index, "%s has no houses", def.Name)
	}
	if _, hi := e.groupHouses(def.Group); houses < hi {
		return propertyError(apperrors.CodeBuildRule, index, "sell evenly: other properties in the group have more houses")
	}
	return nil
}

func (e *Engine) sellHouse(index int, sink *eventSink) error {
	if e.auction.Active || e.phase != PhasePostTurn {
		return wrongPhase(ActionSellHouse, e.phase)
	}
	if err := e.validateSell(index); err != nil {
		return err
	}
	refund := Properties[index].HouseCost / 2
	e.props[index].Houses--
	e.players[e.current].Cash += refund
	sink.add(EventHouseSold, e.current, Bank, index, refund, "%s sold a house on %s for %s",
		playerName(e.current), Properties[index].Name, FormatMoney(refund))
	return nil
}
