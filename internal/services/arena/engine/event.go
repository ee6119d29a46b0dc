package engine

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// EventKind names an observable engine transition.
type EventKind string

const (
	EventDiceRolled          EventKind = "diceRolled"
	EventMoved               EventKind = "moved"
	EventSalary              EventKind = "salaryCollected"
	EventPropertyBought      EventKind = "propertyBought"
	EventAuctionStarted      EventKind = "auctionStarted"
	EventBidPlaced           EventKind = "bidPlaced"
	EventBidPassed           EventKind = "bidPassed"
	EventAuctionWon          EventKind = "auctionWon"
	EventAuctionUnsold       EventKind = "auctionUnsold"
	EventRentPaid            EventKind = "rentPaid"
	EventTaxPaid             EventKind = "taxPaid"
	EventCardDrawn           EventKind = "cardDrawn"
	EventCashGained          EventKind = "cashGained"
	EventCashPaid            EventKind = "cashPaid"
	EventSentToJail          EventKind = "sentToJail"
	EventJailFeePaid         EventKind = "jailFeePaid"
	EventFreedFromJail       EventKind = "freedFromJail"
	EventStayedInJail        EventKind = "stayedInJail"
	EventMortgaged           EventKind = "mortgaged"
	EventUnmortgaged         EventKind = "unmortgaged"
	EventAutoMortgaged       EventKind = "autoMortgaged"
	EventHouseBuilt          EventKind = "houseBuilt"
	EventHouseSold           EventKind = "houseSold"
	EventBankrupt            EventKind = "bankrupt"
	EventPropertyTransferred EventKind = "propertyTransferred"
	EventTurnEnded           EventKind = "turnEnded"
	EventExtraTurn           EventKind = "extraTurn"
	EventRoundStarted        EventKind = "roundStarted"
	EventGameEnded           EventKind = "gameEnded"
)

// Event is one transition. Player, Target and Property are -1 when not
// applicable; Target is the counterparty player or Bank.
type Event struct {
	Seq      int       `json:"seq"`
	Kind     EventKind `json:"kind"`
	Player   int       `json:"player"`
	Target   int       `json:"target"`
	Property int       `json:"property"`
	Amount   int       `json:"amount,omitempty"`
	Dice     *Dice     `json:"dice,omitempty"`
	Message  string    `json:"message"`
}

// maxEventsPerCall bounds a single call's output.
const maxEventsPerCall = 256

var printer = message.NewPrinter(language.English)

// eventSink collects the events of one engine call.
type eventSink struct {
	events []Event
}

func (s *eventSink) emit(e Event) {
	if len(s.events) >= maxEventsPerCall {
		return
	}
	e.Seq = len(s.events)
	s.events = append(s.events, e)
}

func (s *eventSink) add(kind EventKind, player, target, property, amount int, format string, args ...any) {
	s.emit(Event{
		Kind:     kind,
		Player:   player,
		Target:   target,
		Property: property,
		Amount:   amount,
		Message:  printer.Sprintf(format, args...),
	})
}

// FormatMoney renders an amount the way event messages do.
func FormatMoney(amount int) string {
	return printer.Sprintf("$%d", amount)
}
