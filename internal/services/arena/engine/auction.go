package engine

import (
	"strconv"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
)

// Auction returns a copy of the auction state.
func (e *Engine) Auction() AuctionState { return e.auction }

// startAuction opens bidding on index, beginning with the next living player
// after the one who declined. Every living player acts exactly once.
func (e *Engine) startAuction(index int, sink *eventSink) {
	e.auction = AuctionState{
		Active:     true,
		Property:   index,
		HighBidder: -1,
		Bidder:     e.nextAlive(e.current),
	}
	sink.add(EventAuctionStarted, e.current, -1, index, 0, "%s declined %s; auction opens",
		playerName(e.current), Properties[index].Name)
}

func (e *Engine) bid(amount int, sink *eventSink) error {
	if !e.auction.Active {
		return wrongPhase(ActionBid, e.phase)
	}
	a := &e.auction
	if amount < a.HighBid+1 {
		return apperrors.WithMetadata(apperrors.CodeBidTooLow,
			printer.Sprintf("bid must be at least %s", FormatMoney(a.HighBid+1)),
			map[string]string{"minimum": strconv.Itoa(a.HighBid + 1)})
	}
	if cash := e.players[a.Bidder].Cash; amount > cash {
		return apperrors.New(apperrors.CodeBidUnaffordable,
			printer.Sprintf("bid of %s exceeds your cash of %s", FormatMoney(amount), FormatMoney(cash)))
	}

	a.HighBid = amount
	a.HighBidder = a.Bidder
	a.Acted[a.Bidder] = true
	sink.add(EventBidPlaced, a.Bidder, -1, a.Property, amount, "%s bid %s on %s",
		playerName(a.Bidder), FormatMoney(amount), Properties[a.Property].Name)
	e.nextBidder(sink)
	return nil
}

func (e *Engine) passBid(sink *eventSink) error {
	if !e.auction.Active {
		return wrongPhase(ActionPassBid, e.phase)
	}
	a := &e.auction
	a.Acted[a.Bidder] = true
	sink.add(EventBidPassed, a.Bidder, -1, a.Property, 0, "%s passed on %s",
		playerName(a.Bidder), Properties[a.Property].Name)
	e.nextBidder(sink)
	return nil
}

func (e *Engine) nextBidder(sink *eventSink) {
	a := &e.auction
	for k := 1; k <= PlayerCount; k++ {
		i := (a.Bidder + k) % PlayerCount
		if e.players[i].Alive && !a.Acted[i] {
			a.Bidder = i
			return
		}
	}
	e.closeAuction(sink)
}

func (e *Engine) closeAuction(sink *eventSink) {
	a := e.auction
	if a.HighBidder >= 0 {
		e.players[a.HighBidder].Cash -= a.HighBid
		e.props[a.Property].Owner = a.HighBidder
		sink.add(EventAuctionWon, a.HighBidder, Bank, a.Property, a.HighBid, "%s won %s for %s",
			playerName(a.HighBidder), Properties[a.Property].Name, FormatMoney(a.HighBid))
	} else {
		sink.add(EventAuctionUnsold, e.current, -1, a.Property, 0, "%s went unsold", Properties[a.Property].Name)
	}
	e.auction = idleAuction()
	e.phase = PhasePostTurn
}
