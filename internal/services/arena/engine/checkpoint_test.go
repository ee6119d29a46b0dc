package engine

import (
	"errors"
	"testing"

	"github.com/louisbranch/agentopoly/internal/services/arena/checkpoint"
)

// playUntilRound auto-plays until the round counter reaches round with no
// auction open.
func playUntilRound(t *testing.T, e *Engine, round int) {
	t.Helper()
	for i := 0; e.Round() < round || e.Auction().Active; i++ {
		if e.Status() == StatusEnded {
			t.Fatalf("game ended before round %d", round)
		}
		if _, err := e.AutoPlay(); err != nil {
			t.Fatalf("autoplay: %v", err)
		}
		if i > 100000 {
			t.Fatal("round never reached")
		}
	}
}

func TestCheckpointRestoreRoundTrip(t *testing.T) {
	seed := testSeed(31)
	e := newTestEngine(t, seed)
	playUntilRound(t, e, 3)

	words, err := e.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	if words.Round() != e.Round() {
		t.Fatalf("words round = %d, want %d", words.Round(), e.Round())
	}

	r, err := Restore(testAddresses, seed, words)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.Round() != e.Round() || r.Turn() != e.Turn() || r.CurrentPlayer() != e.CurrentPlayer() {
		t.Fatalf("meta = %d/%d/%d, want %d/%d/%d", r.Round(), r.Turn(), r.CurrentPlayer(), e.Round(), e.Turn(), e.CurrentPlayer())
	}
	for i := range e.players {
		got, want := r.Player(i), e.Player(i)
		want.Doubles = 0
		if got != want {
			t.Fatalf("player %d = %+v, want %+v", i, got, want)
		}
	}
	for i := range e.props {
		got, want := r.Property(i), e.Property(i)
		if got.Owner != want.Owner || got.Mortgaged != want.Mortgaged {
			t.Fatalf("property %d = %+v, want %+v", i, got, want)
		}
	}

	again, err := r.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint restored: %v", err)
	}
	if again != words {
		t.Fatal("restored engine re-encodes differently")
	}
}

func TestRestoreIsLossy(t *testing.T) {
	seed := testSeed(32)
	e := newTestEngine(t, seed)
	e.props[0].Owner = 1
	e.props[1].Owner = 1
	e.props[0].Houses = 2
	e.props[1].Houses = 2
	e.players[0].Doubles = 1
	e.lastDice = Dice{D1: 2, D2: 2, Sum: 4, Doubles: true}
	e.phase = PhasePostTurn
	e.freed = true
	e.decks[0].draw()
	e.decks[1].draw()

	words, err := e.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	r, err := Restore(testAddresses, seed, words)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}

	if r.Property(0).Houses != 0 || r.Property(1).Houses != 0 {
		t.Fatal("houses survived restore")
	}
	if r.Player(0).Doubles != 0 || r.lastDice != (Dice{}) || r.freed {
		t.Fatal("turn-local state survived restore")
	}
	if r.Phase() != PhaseTurnStart || r.Auction().Active {
		t.Fatalf("phase = %s auction = %v", r.Phase(), r.Auction().Active)
	}
	for _, deck := range []Deck{DeckChance, DeckCommunity} {
		d := r.decks[deck-1]
		if d.cursor != 0 || d.order != ShuffleDeck(seed, deck) {
			t.Fatalf("%s deck = %+v, want fresh shuffle", deck, d)
		}
	}
}

func TestRestoreRejectsInconsistentAliveCount(t *testing.T) {
	e := newTestEngine(t, testSeed(1))
	words, err := e.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	state, err := checkpoint.Decode(words)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	state.Meta.AliveCount = 2
	bad, err := checkpoint.Encode(state)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if _, err := Restore(testAddresses, testSeed(1), bad); !errors.Is(err, checkpoint.ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
}

func TestRestoreEndedGame(t *testing.T) {
	e := newTestEngine(t, testSeed(1))
	for i := 1; i < PlayerCount; i++ {
		e.players[i].Alive = false
		e.players[i].Cash = 0
	}
	e.alive = 1
	words, err := e.Checkpoint()
	if err != nil {
		t.Fatalf("checkpoint: %v", err)
	}
	r, err := Restore(testAddresses, testSeed(1), words)
	if err != nil {
		t.Fatalf("restore: %v", err)
	}
	if r.Status() != StatusEnded || r.Winner() != 0 {
		t.Fatalf("status = %s winner = %d", r.Status(), r.Winner())
	}
}

func TestRestoreRejectsBadSeed(t *testing.T) {
	if _, err := Restore(testAddresses, []byte{1}, checkpoint.Words{}); !errors.Is(err, ErrInvalidSeed) {
		t.Fatalf("err = %v", err)
	}
}
