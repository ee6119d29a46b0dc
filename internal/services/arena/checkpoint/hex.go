package checkpoint

import (
	"fmt"

	"github.com/holiman/uint256"
)

// PlayersHex returns the players word as 0x-prefixed minimal hex.
func (w Words) PlayersHex() string {
	return w.Players.Hex()
}

// PropertiesHex returns the properties word as 0x-prefixed minimal hex.
func (w Words) PropertiesHex() string {
	return w.Properties.Hex()
}

// ParseWords rebuilds Words from the hex forms produced by PlayersHex and
// PropertiesHex.
func ParseWords(playersHex, propertiesHex string, meta uint64) (Words, error) {
	players, err := uint256.FromHex(playersHex)
	if err != nil {
		return Words{}, fmt.Errorf("parse players word: %w", err)
	}
	properties, err := uint256.FromHex(propertiesHex)
	if err != nil {
		return Words{}, fmt.Errorf("parse properties word: %w", err)
	}
	return Words{Players: *players, Properties: *properties, Meta: meta}, nil
}
