package engine

import (
	"encoding/binary"

	"golang.org/x/crypto/sha3"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
)

// SeedSize is the required dice seed length.
const SeedSize = 32

// ErrInvalidSeed indicates a seed that is not exactly 32 bytes.
var ErrInvalidSeed = apperrors.New(apperrors.CodeInvalidSeed, "dice seed must be exactly 32 bytes")

// Dice is one roll of two six-sided dice.
type Dice struct {
	D1      int  `json:"d1"`
	D2      int  `json:"d2"`
	Sum     int  `json:"sum"`
	Doubles bool `json:"isDoubles"`
}

// DiceDeriver derives rolls from a fixed seed and the turn counter.
//
// # Determinism
//
// Roll is a pure function of (seed, turn): the Keccak-256 hash of the seed
// followed by the 32-byte big-endian turn number is reduced to its low 16
// bits n, and d1 = n%6+1, d2 = (n/6)%6+1. Any process holding the same seed
// reproduces the same dice, which is what lets a ledger verify a game.
type DiceDeriver struct {
	seed [SeedSize]byte
}

// NewDiceDeriver validates and captures the seed.
func NewDiceDeriver(seed []byte) (*DiceDeriver, error) {
	if len(seed) != SeedSize {
		return nil, ErrInvalidSeed
	}
	d := &DiceDeriver{}
	copy(d.seed[:], seed)
	return d, nil
}

// Roll returns the dice for a turn.
func (d *DiceDeriver) Roll(turn uint64) Dice {
	h := keccak(d.seed[:], uint256BE(turn))
	n := int(binary.BigEndian.Uint16(h[30:32]))
	d1 := n%6 + 1
	d2 := (n/6)%6 + 1
	return Dice{D1: d1, D2: d2, Sum: d1 + d2, Doubles: d1 == d2}
}

func keccak(parts ...[]byte) [32]byte {
	hasher := sha3.NewLegacyKeccak256()
	for _, part := range parts {
		_, _ = hasher.Write(part)
	}
	var out [32]byte
	hasher.Sum(out[:0])
	return out
}

func uint256BE(v uint64) []byte {
	b := make([]byte, 32)
	binary.BigEndian.PutUint64(b[24:], v)
	return b
}
