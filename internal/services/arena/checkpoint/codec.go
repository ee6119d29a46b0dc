package checkpoint

import (
	"fmt"

	"github.com/holiman/uint256"

	apperrors "github.com/louisbranch/agentopoly/internal/platform/errors"
)

// BoardSize bounds decoded positions.
const BoardSize = 40

var (
	// ErrFieldOverflow indicates a state value does not fit its bit range.
	ErrFieldOverflow = apperrors.New(apperrors.CodeFieldOverflow, "checkpoint field overflow")
	// ErrCorrupt indicates decoded words hold values no game can reach.
	ErrCorrupt = apperrors.New(apperrors.CodeCorruptSnapshot, "corrupt checkpoint")
)

// Player is the persisted subset of a player's state.
type Player struct {
	Position  int
	Cash      int
	Alive     bool
	InJail    bool
	JailTurns int
}

// Property is the persisted subset of a property's state. Owner -1 means bank.
type Property struct {
	Owner     int
	Mortgaged bool
}

// Meta is the persisted turn bookkeeping.
type Meta struct {
	CurrentPlayer int
	Turn          int
	Round         int
	AliveCount    int
}

// State is everything a checkpoint can carry.
type State struct {
	Players    [PlayerSlots]Player
	Properties [PropertySlots]Property
	Meta       Meta
}

// Words is the packed on-ledger form.
type Words struct {
	Players    uint256.Int
	Properties uint256.Int
	Meta       uint64
}

// Round returns the round counter stored in the meta word.
func (w Words) Round() int {
	return int(get(w.Meta, MetaRoundShift, MetaRoundBits))
}

// Encode packs state, failing with ErrFieldOverflow when a value does not fit.
func Encode(state State) (Words, error) {
	var words Words
	for i, p := range state.Players {
		slot, err := encodePlayer(p)
		if err != nil {
			return Words{}, fmt.Errorf("player %d: %w", i, err)
		}
		words.Players[i] = slot
	}

	for i, prop := range state.Properties {
		nibble, err := encodeProperty(prop)
		if err != nil {
			return Words{}, fmt.Errorf("property %d: %w", i, err)
		}
		shifted := new(uint256.Int).Lsh(uint256.NewInt(nibble), uint(i*PropertyStride))
		words.Properties.Or(&words.Properties, shifted)
	}

	meta, err := encodeMeta(state.Meta)
	if err != nil {
		return Words{}, fmt.Errorf("meta: %w", err)
	}
	words.Meta = meta
	return words, nil
}

// Decode unpacks words, failing with ErrCorrupt on unreachable values.
func Decode(words Words) (State, error) {
	var state State
	for i := range state.Players {
		p := decodePlayer(words.Players[i])
		if p.Position >= BoardSize {
			return State{}, fmt.Errorf("player %d position %d: %w", i, p.Position, ErrCorrupt)
		}
		state.Players[i] = p
	}

	for i := range state.Properties {
		nibble := new(uint256.Int).Rsh(&words.Properties, uint(i*PropertyStride)).Uint64()
		prop := decodeProperty(nibble)
		if prop.Owner >= PlayerSlots {
			return State{}, fmt.Errorf("property %d owner %d: %w", i, prop.Owner, ErrCorrupt)
		}
		state.Properties[i] = prop
	}

	state.Meta = decodeMeta(words.Meta)
	if state.Meta.AliveCount > PlayerSlots {
		return State{}, fmt.Errorf("alive count %d: %w", state.Meta.AliveCount, ErrCorrupt)
	}
	return state, nil
}

func encodePlayer(p Player) (uint64, error) {
	switch {
	case !fits(p.Position, PlayerPositionBits) || p.Position >= BoardSize:
		return 0, fmt.Errorf("position %d: %w", p.Position, ErrFieldOverflow)
	case !fits(p.Cash, PlayerCashBits):
		return 0, fmt.Errorf("cash %d: %w", p.Cash, ErrFieldOverflow)
	case !fits(p.JailTurns, PlayerJailTurnsBits):
		return 0, fmt.Errorf("jail turns %d: %w", p.JailTurns, ErrFieldOverflow)
	}
	var slot uint64
	slot = put(slot, uint64(p.Position), PlayerPositionShift, PlayerPositionBits)
	slot = put(slot, uint64(p.Cash), PlayerCashShift, PlayerCashBits)
	slot = put(slot, boolBit(p.Alive), PlayerAliveShift, 1)
	slot = put(slot, boolBit(p.InJail), PlayerJailedShift, 1)
	slot = put(slot, uint64(p.JailTurns), PlayerJailTurnsShift, PlayerJailTurnsBits)
	return slot, nil
}

func decodePlayer(slot uint64) Player {
	return Player{
		Position:  int(get(slot, PlayerPositionShift, PlayerPositionBits)),
		Cash:      int(get(slot, PlayerCashShift, PlayerCashBits)),
		Alive:     get(slot, PlayerAliveShift, 1) == 1,
		InJail:    get(slot, PlayerJailedShift, 1) == 1,
		JailTurns: int(get(slot, PlayerJailTurnsShift, PlayerJailTurnsBits)),
	}
}

func encodeProperty(prop Property) (uint64, error) {
	owner := uint64(OwnerBank)
	if prop.Owner >= 0 {
		if prop.Owner >= PlayerSlots {
			return 0, fmt.Errorf("owner %d: %w", prop.Owner, ErrFieldOverflow)
		}
		owner = uint64(prop.Owner)
	}
	var nibble uint64
	nibble = put(nibble, owner, PropertyOwnerShift, PropertyOwnerBits)
	nibble = put(nibble, boolBit(prop.Mortgaged), PropertyMortgagedShift, 1)
	return nibble, nil
}

func decodeProperty(nibble uint64) Property {
	owner := int(get(nibble, PropertyOwnerShift, PropertyOwnerBits))
	if owner == OwnerBank {
		owner = -1
	}
	return Property{
		Owner:     owner,
		Mortgaged: get(nibble, PropertyMortgagedShift, 1) == 1,
	}
}

func encodeMeta(m Meta) (uint64, error) {
	switch {
	case !fits(m.CurrentPlayer, MetaCurrentBits):
		return 0, fmt.Errorf("current player %d: %w", m.CurrentPlayer, ErrFieldOverflow)
	case !fits(m.Turn, MetaTurnBits):
		return 0, fmt.Errorf("turn %d: %w", m.Turn, ErrFieldOverflow)
	case !fits(m.Round, MetaRoundBits):
		return 0, fmt.Errorf("round %d: %w", m.Round, ErrFieldOverflow)
	case !fits(m.AliveCount, MetaAliveBits) || m.AliveCount > PlayerSlots:
		return 0, fmt.Errorf("alive count %d: %w", m.AliveCount, ErrFieldOverflow)
	}
	var word uint64
	word = put(word, uint64(m.CurrentPlayer), MetaCurrentShift, MetaCurrentBits)
	word = put(word, uint64(m.Turn), MetaTurnShift, MetaTurnBits)
	word = put(word, uint64(m.Round), MetaRoundShift, MetaRoundBits)
	word = put(word, uint64(m.AliveCount), MetaAliveShift, MetaAliveBits)
	return word, nil
}

func decodeMeta(word uint64) Meta {
	return Meta{
		CurrentPlayer: int(get(word, MetaCurrentShift, MetaCurrentBits)),
		Turn:          int(get(word, MetaTurnShift, MetaTurnBits)),
		Round:         int(get(word, MetaRoundShift, MetaRoundBits)),
		AliveCount:    int(get(word, MetaAliveShift, MetaAliveBits)),
	}
}
