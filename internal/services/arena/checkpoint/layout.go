// Package checkpoint is the single source of truth for the on-ledger
// checkpoint layout: three fixed-width words holding a lossy encoding of the
// game state.
//
// Players word (256 bits): player i owns limb i (bits 64i..64i+63).
//
//	bits 0-5   position (0-39)
//	bits 6-25  cash (0-1048575)
//	bit  26    alive
//	bit  27    in jail
//	bits 28-29 jail turns (0-3)
//
// Properties word (256 bits, 112 used): property i owns bits 4i..4i+3.
//
//	bits 0-2   owner (0-3 player index, 7 bank)
//	bit  3     mortgaged
//
// Meta word (64 bits):
//
//	bits 0-1   current player
//	bits 2-17  turn counter
//	bits 18-33 round counter
//	bits 34-36 alive count
//
// The layout deliberately omits house counts, any open auction, deck draw
// positions, the consecutive-doubles counter, the last roll, the turn phase and
// the freed-from-jail flag.
package checkpoint

// Slot counts.
const (
	PlayerSlots   = 4
	PropertySlots = 28
)

// Player slot fields.
const (
	PlayerPositionShift  = 0
	PlayerPositionBits   = 6
	PlayerCashShift      = 6
	PlayerCashBits       = 20
	PlayerAliveShift     = 26
	PlayerJailedShift    = 27
	PlayerJailTurnsShift = 28
	PlayerJailTurnsBits  = 2
	PlayerSlotBits       = 64
)

// Property slot fields.
const (
	PropertyStride         = 4
	PropertyOwnerShift     = 0
	PropertyOwnerBits      = 3
	PropertyMortgagedShift = 3
	OwnerBank              = 7
)

// Meta fields.
const (
	MetaCurrentShift = 0
	MetaCurrentBits  = 2
	MetaTurnShift    = 2
	MetaTurnBits     = 16
	MetaRoundShift   = 18
	MetaRoundBits    = 16
	MetaAliveShift   = 34
	MetaAliveBits    = 3
)

// MaxCash is the largest cash balance a player slot can hold.
const MaxCash = 1<<PlayerCashBits - 1

func mask(bits uint) uint64 {
	return 1<<bits - 1
}

func put(word uint64, value uint64, shift, bits uint) uint64 {
	return word | (value&mask(bits))<<shift
}

func get(word uint64, shift, bits uint) uint64 {
	return (word >> shift) & mask(bits)
}

func fits(value int, bits uint) bool {
	return value >= 0 && uint64(value) <= mask(bits)
}

func boolBit(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
