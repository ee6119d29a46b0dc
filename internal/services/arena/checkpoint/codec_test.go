package checkpoint

import (
	"errors"
	"testing"
)

func sampleState() State {
	var s State
	s.Players = [PlayerSlots]Player{
		{Position: 39, Cash: 1500, Alive: true},
		{Position: 10, Cash: 0, Alive: true, InJail: true, JailTurns: 2},
		{Position: 0, Cash: MaxCash, Alive: true},
		{Position: 24, Cash: 0, Alive: false},
	}
	for i := range s.Properties {
		s.Properties[i] = Property{Owner: -1}
	}
	s.Properties[0] = Property{Owner: 0}
	s.Properties[1] = Property{Owner: 0, Mortgaged: true}
	s.Properties[13] = Property{Owner: 2}
	s.Properties[27] = Property{Owner: 1, Mortgaged: true}
	s.Meta = Meta{CurrentPlayer: 2, Turn: 65535, Round: 100, AliveCount: 3}
	return s
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	want := sampleState()
	words, err := Encode(want)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := Decode(words)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != want {
		t.Fatalf("round trip mismatch:\n got %+v\nwant %+v", got, want)
	}
	if words.Round() != 100 {
		t.Fatalf("Round() = %d, want 100", words.Round())
	}
}

func TestPlayerSlotLayout(t *testing.T) {
	var s State
	for i := range s.Properties {
		s.Properties[i] = Property{Owner: -1}
	}
	s.Players[1] = Player{Position: 5, Cash: 3, Alive: true, InJail: true, JailTurns: 3}
	words, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	want := uint64(5) | uint64(3)<<6 | 1<<26 | 1<<27 | uint64(3)<<28
	if words.Players[1] != want {
		t.Fatalf("player slot = %#x, want %#x", words.Players[1], want)
	}
	if words.Players[0] != 0 || words.Players[2] != 0 || words.Players[3] != 0 {
		t.Fatalf("expected untouched slots to stay zero: %v", words.Players)
	}
}

func TestPropertyNibbleLayout(t *testing.T) {
	var s State
	for i := range s.Properties {
		s.Properties[i] = Property{Owner: -1}
	}
	s.Properties[16] = Property{Owner: 3, Mortgaged: true}
	words, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	// Property 16 starts at bit 64, the first bit of limb 1.
	if got := words.Properties[1] & 0xF; got != 0xB {
		t.Fatalf("property 16 nibble = %#x, want 0xb", got)
	}
	// Every other property reads as bank-owned (7).
	if got := words.Properties[0] & 0xF; got != OwnerBank {
		t.Fatalf("property 0 nibble = %#x, want %#x", got, OwnerBank)
	}
	if words.Properties[2] != 0 || words.Properties[3] != 0 {
		t.Fatalf("expected bits above 112 to be zero: %v", words.Properties)
	}
}

func TestMetaLayout(t *testing.T) {
	var s State
	for i := range s.Properties {
		s.Properties[i] = Property{Owner: -1}
	}
	s.Meta = Meta{CurrentPlayer: 3, Turn: 7, Round: 2, AliveCount: 4}
	words, err := Encode(s)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	want := uint64(3) | uint64(7)<<2 | uint64(2)<<18 | uint64(4)<<34
	if words.Meta != want {
		t.Fatalf("meta = %#x, want %#x", words.Meta, want)
	}
}

func TestEncodeRejectsOverflow(t *testing.T) {
	tcs := map[string]func(*State){
		"cash":       func(s *State) { s.Players[0].Cash = MaxCash + 1 },
		"negative":   func(s *State) { s.Players[0].Cash = -1 },
		"position":   func(s *State) { s.Players[2].Position = 40 },
		"jail turns": func(s *State) { s.Players[1].JailTurns = 4 },
		"owner":      func(s *State) { s.Properties[3].Owner = 4 },
		"turn":       func(s *State) { s.Meta.Turn = 1 << 16 },
		"round":      func(s *State) { s.Meta.Round = 1 << 16 },
		"alive":      func(s *State) { s.Meta.AliveCount = 5 },
	}
	for name, mutate := range tcs {
		t.Run(name, func(t *testing.T) {
			s := sampleState()
			mutate(&s)
			if _, err := Encode(s); !errors.Is(err, ErrFieldOverflow) {
				t.Fatalf("Encode error = %v, want %v", err, ErrFieldOverflow)
			}
		})
	}
}

func TestDecodeRejectsCorruptWords(t *testing.T) {
	words, err := Encode(sampleState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	bad := words
	bad.Players[0] = put(0, 45, PlayerPositionShift, PlayerPositionBits)
	if _, err := Decode(bad); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode position error = %v, want %v", err, ErrCorrupt)
	}

	bad = words
	bad.Properties[0] = (bad.Properties[0] &^ 0xF) | 0x5
	if _, err := Decode(bad); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("Decode owner error = %v, want %v", err, ErrCorrupt)
	}
}

func TestParseWordsRoundTrip(t *testing.T) {
	words, err := Encode(sampleState())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	parsed, err := ParseWords(words.PlayersHex(), words.PropertiesHex(), words.Meta)
	if err != nil {
		t.Fatalf("parse words: %v", err)
	}
	if parsed != words {
		t.Fatalf("parsed words = %+v, want %+v", parsed, words)
	}
	if _, err := ParseWords("nothex", words.PropertiesHex(), 0); err == nil {
		t.Fatal("expected invalid hex to fail")
	}
}
