// Package random provides cryptographic seed generation helpers.
//
// Seeds produced here feed the deterministic dice and deck derivations, so
// they must come from crypto/rand.
package random

import (
	crand "crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
)

// SeedSize is the length in bytes of a game dice seed.
const SeedSize = 32

// NewSeed generates a random 32-byte game seed using crypto/rand.
func NewSeed() ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	if _, err := crand.Read(seed[:]); err != nil {
		return seed, fmt.Errorf("read random seed: %w", err)
	}
	return seed, nil
}

// ParseSeed decodes a hex seed, with or without a 0x prefix.
func ParseSeed(value string) ([SeedSize]byte, error) {
	var seed [SeedSize]byte
	value = strings.TrimPrefix(strings.TrimSpace(value), "0x")
	raw, err := hex.DecodeString(value)
	if err != nil {
		return seed, fmt.Errorf("decode seed: %w", err)
	}
	if len(raw) != SeedSize {
		return seed, fmt.Errorf("seed must be %d bytes, got %d", SeedSize, len(raw))
	}
	copy(seed[:], raw)
	return seed, nil
}
