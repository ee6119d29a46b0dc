package engine

import (
	"encoding/binary"
	"fmt"
)

// DeckSize is the number of cards in each deck.
const DeckSize = 16

// Deck selects one of the two card decks.
type Deck uint8

const (
	DeckChance    Deck = 1
	DeckCommunity Deck = 2
)

// String returns the deck's display name.
func (d Deck) String() string {
	switch d {
	case DeckChance:
		return "Chance"
	case DeckCommunity:
		return "Community Chest"
	default:
		return fmt.Sprintf("Deck(%d)", uint8(d))
	}
}

// CardEffect is what drawing a card does.
type CardEffect int

const (
	CardGain CardEffect = iota
	CardLose
	CardTeleport
	CardGoToJail
	CardPayEach
	CardCollectEach
)

// Card is one fixed deck entry. Amount applies to cash effects, Tile to
// teleports.
type Card struct {
	Text   string
	Effect CardEffect
	Amount int
	Tile   int
}

var chanceCards = [DeckSize]Card{
	{Text: "Advance to Go", Effect: CardTeleport, Tile: 0},
	{Text: "Advance to Illinois Avenue", Effect: CardTeleport, Tile: 24},
	{Text: "Advance to St. Charles Place", Effect: CardTeleport, Tile: 11},
	{Text: "Take a trip to Reading Railroad", Effect: CardTeleport, Tile: 5},
	{Text: "Advance to Boardwalk", Effect: CardTeleport, Tile: 39},
	{Text: "Advance to Pennsylvania Railroad", Effect: CardTeleport, Tile: 15},
	{Text: "Advance to Marvin Gardens", Effect: CardTeleport, Tile: 29},
	{Text: "Go to Jail", Effect: CardGoToJail},
	{Text: "Bank pays you a dividend", Effect: CardGain, Amount: 50},
	{Text: "Your building loan matures", Effect: CardGain, Amount: 150},
	{Text: "You won a crossword competition", Effect: CardGain, Amount: 100},
	{Text: "Speeding fine", Effect: CardLose, Amount: 15},
	{Text: "Pay school fees", Effect: CardLose, Amount: 150},
	{Text: "Make general repairs on all your property", Effect: CardLose, Amount: 100},
	{Text: "You have been elected chairman of the board, pay each player", Effect: CardPayEach, Amount: 50},
	{Text: "Holiday bonus, collect from every player", Effect: CardCollectEach, Amount: 25},
}

var communityCards = [DeckSize]Card{
	{Text: "Advance to Go", Effect: CardTeleport, Tile: 0},
	{Text: "Go to Jail", Effect: CardGoToJail},
	{Text: "Bank error in your favor", Effect: CardGain, Amount: 200},
	{Text: "From sale of stock you get", Effect: CardGain, Amount: 50},
	{Text: "Holiday fund matures", Effect: CardGain, Amount: 100},
	{Text: "Income tax refund", Effect: CardGain, Amount: 20},
	{Text: "Life insurance matures", Effect: CardGain, Amount: 100},
	{Text: "Receive consultancy fee", Effect: CardGain, Amount: 25},
	{Text: "You have won second prize in a beauty contest", Effect: CardGain, Amount: 10},
	{Text: "You inherit", Effect: CardGain, Amount: 100},
	{Text: "Doctor's fee", Effect: CardLose, Amount: 50},
	{Text: "Pay hospital fees", Effect: CardLose, Amount: 100},
	{Text: "Pay school fees", Effect: CardLose, Amount: 50},
	{Text: "You are assessed for street repair", Effect: CardLose, Amount: 40},
	{Text: "It is your birthday, collect from every player", Effect: CardCollectEach, Amount: 10},
	{Text: "Grand opera night, collect from every player", Effect: CardCollectEach, Amount: 50},
}

// Cards returns the fixed card list for a deck.
func Cards(deck Deck) [DeckSize]Card {
	if deck == DeckChance {
		return chanceCards
	}
	return communityCards
}

// ShuffleDeck returns the seeded permutation of card indices for a deck.
// Step i, from DeckSize-1 down to 1, swaps i with
// j = uint64_be(h[24:32]) mod (i+1) where h = Keccak-256(seed ‖ tag ‖ uint256_be(i)).
func ShuffleDeck(seed []byte, deck Deck) [DeckSize]int {
	var order [DeckSize]int
	for i := range order {
		order[i] = i
	}
	tag := []byte{byte(deck)}
	for i := DeckSize - 1; i > 0; i-- {
		h := keccak(seed, tag, uint256BE(uint64(i)))
		j := int(binary.BigEndian.Uint64(h[24:32]) % uint64(i+1))
		order[i], order[j] = order[j], order[i]
	}
	return order
}

// deckState is a shuffled order plus the next-draw cursor.
type deckState struct {
	order  [DeckSize]int
	cursor int
}

func newDeckState(seed []byte, deck Deck) deckState {
	return deckState{order: ShuffleDeck(seed, deck)}
}

// draw returns the next card index, wrapping to the top after the last card.
func (d *deckState) draw() int {
	card := d.order[d.cursor]
	d.cursor = (d.cursor + 1) % DeckSize
	return card
}
