// tables.go - precomputed lookups for the FM synthesis core
//
// Everything here is built once, from floating point formulas, the
// first time a Chip is constructed. All synthesis math downstream of
// these tables is integer-only.

package opl

import (
	"math"
	"sync"
)

const (
	// waveBits is the number of top bits of the 32-bit phase
	// accumulator used as a waveform table index.
	waveBits = 10
	waveSh   = 32 - waveBits
	waveMask = (1 << waveSh) - 1

	lfoSh  = waveSh - 10
	lfoMax = 256 << lfoSh

	// envBits/envExtra describe the envelope's fixed-point range.
	// envExtra is 0 for this implementation (the plain 9-bit range,
	// matching the table-driven "log" generator dbopl.c defaults to).
	envBits  = 9
	envExtra = envBits - 9
	envMin   = 0
	envMax   = 511 << envExtra
	envLimit = (12 * 256) >> (3 - envExtra)

	rateSh   = 24
	rateMask = (1 << rateSh) - 1

	tremoloTableLen = 52
)

func envSilent(x int32) bool { return x >= envLimit }

// waveformDescriptor is one of the eight selectable operator
// waveforms: an offset and mask into the shared waveTable, plus the
// phase the accumulator resets to on key-on.
type waveformDescriptor struct {
	base  int
	mask  uint32
	start uint32
}

var (
	expTable  [256]int32
	waveTable [8 * 512]int16
	kslTable  [8 * 16]uint8
	tremoloTable [tremoloTableLen]int32
	waveforms [8]waveformDescriptor

	// channelMap[i] gives the logical channel index addressed by
	// register sub-index i (5 bits: bank bit folded into bit 4, plus
	// the register's low 4 bits), or -1 if unmapped. channelMap
	// mirrors ChanOffsetTable from the original chip; operatorMap is
	// the equivalent for operator registers.
	channelMap [32]int
	operatorMap [64]operatorRef

	tablesOnce sync.Once
)

type operatorRef struct {
	channel int // -1 if unmapped
	op      int
}

// vibratoTable entries pack a sign bit (bit 7) and a shift amount
// (low 3 bits); VibratoTable[idx>>2] reproduces the classic
// -7,-3,0,+1,+3,+7,+1,0 sequence via sign-extend-and-shift.
var vibratoTable = [8]int8{
	1 - 0x00, 0 - 0x00, 1 - 0x00, 30 - 0x00,
	1 - 0x80, 0 - 0x80, 1 - 0x80, 30 - 0x80,
}

var kslShiftTable = [4]uint8{31, 1, 2, 0}

// freqCreateTable is the canonical per-multiplier scale, doubled and
// integerized: 0.5, 1, 2 .. 10, 10, 12, 12, 15, 15.
var freqCreateTable = [16]uint8{
	1, 2, 4, 6, 8, 10, 12, 14,
	16, 18, 20, 20, 24, 24, 30, 30,
}

// attackSamplesTable holds the reference chip's "samples to reach max
// attenuation" target for each of the 13 rate shapes envelopeSelect
// returns an index for (rate inputs 62..75 instead get an instant-max
// special value, set separately in Chip.Setup).
var attackSamplesTable = [13]uint8{
	69, 55, 46, 40,
	35, 29, 23, 20,
	19, 15, 11, 10,
	9,
}

// envelopeIncreaseTable holds the linear decay/release per-step
// increase for each of the 13 distinct envelope rate shapes.
var envelopeIncreaseTable = [13]uint8{
	4, 5, 6, 7,
	8, 10, 12, 14,
	16, 20, 24, 28,
	32,
}

func initTables() {
	tablesOnce.Do(buildTables)
}

func buildTables() {
	buildExpTable()
	buildWaveTable()
	buildWaveforms()
	buildKslTable()
	buildTremoloTable()
	buildOffsetTables()
}

// buildExpTable builds the 256-entry exponential magnitude table used
// to turn a log-domain (waveform, attenuation) pair back into a
// linear sample. Pre-shifted left by one so GetWave's final
// arithmetic shift has a spare bit of precision.
func buildExpTable() {
	for i := 0; i < 256; i++ {
		v := lround(0.5 + (math.Pow(2, float64(255-i)/256.0)-1)*1024)
		v += 1024
		v *= 2
		expTable[i] = v
	}
}

// buildWaveTable assembles the shared 8*512 log-domain waveform
// table: a half-period sine with a sign-flagged copy for the negative
// half, a logarithmic sawtooth, and silent/duplicated regions for the
// derived waveforms. Silent regions hold the largest positive log
// attenuation, which getWave shifts down to exactly zero at any volume.
func buildWaveTable() {
	for i := 0; i < 512; i++ {
		raw := 0.5 - math.Log10(math.Sin((float64(i)+0.5)*(math.Pi/512.0)))/math.Log10(2)*256
		mag := int16(raw)
		waveTable[0x200+i] = mag
		waveTable[0x000+i] = int16(uint16(0x8000) | uint16(mag))
	}
	for i := 0; i < 256; i++ {
		waveTable[0x700+i] = int16(i * 8)
		waveTable[0x6ff-i] = int16(uint16(0x8000) | uint16(i*8))
	}
	const silence = int16(0x7fff)
	for i := 0; i < 256; i++ {
		waveTable[0x400+i] = silence
		waveTable[0x500+i] = silence
		waveTable[0x900+i] = silence
		waveTable[0xc00+i] = silence
		waveTable[0xd00+i] = silence

		waveTable[0x800+i] = waveTable[0x200+i]
		waveTable[0xa00+i] = waveTable[0x200+i*2]
		waveTable[0xb00+i] = waveTable[0x000+i*2]
		waveTable[0xe00+i] = waveTable[0x200+i*2]
		waveTable[0xf00+i] = waveTable[0x200+i*2]
	}
}

// buildWaveforms fills the eight waveform descriptors: sine,
// half-sine, absolute sine, quarter-pulse sine, alternating sine,
// absolute alternating sine, square, and logarithmic sawtooth.
func buildWaveforms() {
	bases := [8]int{0x000, 0x200, 0x200, 0x800, 0xa00, 0xc00, 0x100, 0x400}
	masks := [8]uint32{1023, 1023, 511, 511, 1023, 1023, 512, 1023}
	starts := [8]uint32{512, 0, 0, 0, 0, 512, 512, 256}
	for i := 0; i < 8; i++ {
		waveforms[i] = waveformDescriptor{base: bases[i], mask: masks[i], start: starts[i]}
	}
}

// buildKslTable builds the 128-entry (8 blocks x 16 F-number high
// nibbles) key-scale-level base attenuation table.
func buildKslTable() {
	create := [16]uint8{
		64, 32, 24, 19,
		16, 12, 11, 10,
		8, 6, 5, 4,
		3, 2, 1, 0,
	}
	for oct := 0; oct < 8; oct++ {
		base := oct * 8
		for i := 0; i < 16; i++ {
			v := base - int(create[i])
			if v < 0 {
				v = 0
			}
			kslTable[oct*16+i] = uint8(v * 4)
		}
	}
}

// buildTremoloTable builds the 52-entry tremolo triangle, ramping
// 0->25 and back, pre-shifted into envelope units.
func buildTremoloTable() {
	for i := 0; i < tremoloTableLen/2; i++ {
		v := int32(i) << envExtra
		tremoloTable[i] = v
		tremoloTable[tremoloTableLen-1-i] = v
	}
}

// buildOffsetTables computes the register-address-to-channel and
// register-address-to-operator maps. These reproduce the reference
// chip's pointer-offset arithmetic (see spec.md §9 "Address-decode
// maps as byte offsets") as plain index lookups instead.
func buildOffsetTables() {
	for i := range channelMap {
		channelMap[i] = -1
	}
	for i := range operatorMap {
		operatorMap[i] = operatorRef{channel: -1}
	}

	for i := 0; i < 32; i++ {
		index := i & 0xf
		if index >= 9 {
			continue
		}
		if index < 6 {
			index = (index%3)*2 + index/3
		}
		if i >= 16 {
			index += 9
		}
		channelMap[i] = index
	}

	for i := 0; i < 64; i++ {
		if i%8 >= 6 || (i/8)%4 == 3 {
			continue
		}
		chNum := (i/8)*3 + (i % 8 % 3)
		if chNum >= 12 {
			chNum += 16 - 12
		}
		opNum := (i % 8) / 3
		if chNum >= len(channelMap) {
			continue
		}
		ch := channelMap[chNum]
		if ch < 0 {
			continue
		}
		operatorMap[i] = operatorRef{channel: ch, op: opNum}
	}
}

// envelopeSelect maps a 6-bit rate input (rate*4 + key-scale-rate)
// to a (table index, pre-shift) pair.
func envelopeSelect(val uint8) (index, shift uint8) {
	switch {
	case val < 13*4:
		shift = 12 - val/4
		index = val & 3
	case val < 15*4:
		shift = 0
		index = val - 12*4
	default:
		shift = 0
		index = 12
	}
	return
}

// lround mimics the C idiom of truncating a deliberately-biased
// positive float (the reference tables are built with "+0.5" baked
// into each formula).
func lround(x float64) int32 {
	return int32(x)
}
