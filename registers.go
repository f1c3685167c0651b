// registers.go - named constants for the register address space
//
// Addresses below 0x100 are bank 0; WriteAddress ORs in 0x100 for
// bank 1 addresses once OPL3 mode is active (see Chip.WriteAddress).
// Naming hardware registers as package constants mirrors the way the
// teacher names its own chip's register block.

package opl

const (
	regWaveformSelect = 0x01 // bit 5: enable waveform select (OPL2)
	reg08             = 0x08 // bit 6: CSW/NOTE-SEL
	regRhythm         = 0xbd // AM depth, vibrato depth, rhythm enable + keys
	regConnectionSel  = 0x104
	regNewMode        = 0x105 // OPL3 enable
)

// Timer registers (0x02-0x04) exist in the real address space but this
// module has no IRQ/timer subsystem to drive; WriteRegister silently
// ignores writes there along with every other unmapped address.

// Per-operator register bases; the concrete address is base + slot,
// where slot is produced by the operator address-decode table.
const (
	regOpAttackDecayVibrato = 0x20
	regOpLevel              = 0x40
	regOpAttackDecay        = 0x60
	regOpSustainRelease     = 0x80
	regOpWaveSelect         = 0xe0
)

// Per-channel register bases.
const (
	regChanFreqLo  = 0xa0
	regChanFreqHi  = 0xb0
	regChanFeedback = 0xc0
)

// Operator register 0x20 bit masks. Bit 0x80 (tremolo enable) is read
// directly as a sign bit in Operator.write20 rather than through a
// named mask.
const (
	maskKSR     = 0x10
	maskSustain = 0x20
	maskVibrato = 0x40
)

// Bit offsets packed into Channel.chanData alongside the low 16-bit
// frequency/block payload; keyCode and the KSL base are
// derived once per frequency write and cached here so operators don't
// recompute them every sample.
const (
	shiftKSLBase  = 16
	shiftKeyCode  = 24
)
