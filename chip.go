// chip.go - the top-level emulated device: register decode, the LFO
// and noise generators shared by every channel, and block rendering.

package opl

// oplRate is the chip's native sample rate in Hz (14.31818 MHz / 288),
// against which every host sample rate is scaled.
const oplRate = 14318180.0 / 288.0

// Chip is one emulated 2-operator (OPL2) or 4-operator stereo (OPL3
// superset) FM synthesizer. The zero value is not ready to use; call
// NewChip followed by Setup.
type Chip struct {
	channels [18]Channel

	reg08      uint8
	regBD      uint8
	reg104     uint8
	opl3Active uint8 // 0x00 or 0xff, used as an AND mask against fourMask/reg104
	waveFormMask uint8

	noiseAdd     uint32
	noiseCounter uint32
	noiseValue   uint32

	lfoAdd     uint32
	lfoCounter uint32

	vibratoIndex    uint8
	vibratoSign     int32
	vibratoShift    uint8
	vibratoStrength uint8

	tremoloIndex    uint8
	tremoloValue    int32
	tremoloStrength uint8

	freqMul     [16]uint32
	linearRates [76]uint32
	attackRates [76]uint32

	sampleRate uint32
}

// NewChip builds an unconfigured chip. Call Setup before writing
// registers or generating samples.
func NewChip() *Chip {
	initTables()
	c := &Chip{}
	for i := range c.channels {
		c.channels[i].reset()
	}
	return c
}

// Setup rebuilds every sample-rate-dependent table for the given
// output rate and resets all registers, leaving the chip silent and
// ready to be programmed. It is safe to call again to change rate.
func (c *Chip) Setup(sampleRate uint32) error {
	if sampleRate == 0 || float64(sampleRate) > oplRate*4 {
		return ErrInvalidSampleRate
	}
	c.sampleRate = sampleRate
	scale := oplRate / float64(sampleRate)

	c.noiseAdd = uint32(0.5 + scale*(1<<lfoSh))
	c.noiseCounter = 0
	c.noiseValue = 1

	c.lfoAdd = uint32(0.5 + scale*(1<<lfoSh))
	c.lfoCounter = 0
	c.vibratoIndex = 0
	c.tremoloIndex = 0

	freqScale := uint32(0.5 + scale*(1<<(waveSh-1-10)))
	for i := 0; i < 16; i++ {
		c.freqMul[i] = freqScale * uint32(freqCreateTable[i])
	}

	for i := 0; i < 76; i++ {
		index, shift := envelopeSelect(uint8(i))
		c.linearRates[i] = uint32(scale * float64(uint32(envelopeIncreaseTable[index])<<(rateSh+envExtra-uint32(shift)-3)))
	}

	for i := 0; i < 62; i++ {
		index, shift := envelopeSelect(uint8(i))
		c.attackRates[i] = fitAttackRate(index, shift, scale)
	}
	for i := 62; i < 76; i++ {
		c.attackRates[i] = 8 << rateSh
	}

	c.channels[0].fourMask = 0x00 | (1 << 0)
	c.channels[1].fourMask = 0x80 | (1 << 0)
	c.channels[2].fourMask = 0x00 | (1 << 1)
	c.channels[3].fourMask = 0x80 | (1 << 1)
	c.channels[4].fourMask = 0x00 | (1 << 2)
	c.channels[5].fourMask = 0x80 | (1 << 2)

	c.channels[9].fourMask = 0x00 | (1 << 3)
	c.channels[10].fourMask = 0x80 | (1 << 3)
	c.channels[11].fourMask = 0x00 | (1 << 4)
	c.channels[12].fourMask = 0x80 | (1 << 4)
	c.channels[13].fourMask = 0x00 | (1 << 5)
	c.channels[14].fourMask = 0x80 | (1 << 5)

	c.channels[6].fourMask = 0x40
	c.channels[7].fourMask = 0x40
	c.channels[8].fourMask = 0x40

	c.WriteRegister(regNewMode, 0x1)
	for i := 0; i < 512; i++ {
		if i == regNewMode {
			continue
		}
		c.WriteRegister(uint32(i), 0xff)
		c.WriteRegister(uint32(i), 0x0)
	}
	c.WriteRegister(regNewMode, 0x0)
	for i := 0; i < 255; i++ {
		c.WriteRegister(uint32(i), 0xff)
		c.WriteRegister(uint32(i), 0x0)
	}
	return nil
}

// fitAttackRate iteratively refines an integer attack-rate increment
// so that running it through the same rate-accumulator arithmetic the
// envelope itself uses reproduces the reference chip's documented
// "samples to reach max attenuation" count as closely as possible.
func fitAttackRate(index, shift uint8, scale float64) uint32 {
	original := int32(float64(uint32(attackSamplesTable[index])<<shift) / scale)
	if original == 0 {
		original = 1
	}
	guessAdd := int32(scale * float64(uint32(envelopeIncreaseTable[index])<<(rateSh-uint32(shift)-3)))
	bestAdd := guessAdd
	bestDiff := int64(1 << 30)

	for pass := 0; pass < 16; pass++ {
		volume := int32(envMax)
		samples := int32(0)
		count := uint32(0)
		for volume > 0 && samples < original*2 {
			count += uint32(guessAdd)
			change := int32(count >> rateSh)
			count &= rateMask
			if change != 0 {
				volume += (^volume * change) >> 3
			}
			samples++
		}
		diff := original - samples
		lDiff := int64(diff)
		if lDiff < 0 {
			lDiff = -lDiff
		}
		if lDiff < bestDiff {
			bestDiff = lDiff
			bestAdd = guessAdd
			if bestDiff == 0 {
				break
			}
		}
		mul := ((original - diff) << 12) / original
		if diff < 0 {
			guessAdd = int32((int64(guessAdd) * int64(mul)) >> 12)
			guessAdd++
		} else if diff > 0 {
			guessAdd = int32((int64(guessAdd) * int64(mul)) >> 12)
			guessAdd--
		}
	}
	return uint32(bestAdd)
}

func (c *Chip) forwardNoise() uint32 {
	c.noiseCounter += c.noiseAdd
	count := c.noiseCounter >> lfoSh
	c.noiseCounter &= waveMask
	for ; count > 0; count-- {
		c.noiseValue ^= 0x800302 & (0 - (c.noiseValue & 1))
		c.noiseValue >>= 1
	}
	return c.noiseValue
}

func (c *Chip) forwardLFO(samples uint32) uint32 {
	c.vibratoSign = int32(vibratoTable[c.vibratoIndex>>2]) >> 7
	c.vibratoShift = uint8(vibratoTable[c.vibratoIndex>>2]&7) + c.vibratoStrength
	c.tremoloValue = tremoloTable[c.tremoloIndex] >> c.tremoloStrength

	todo := uint32(lfoMax) - c.lfoCounter
	count := (todo + c.lfoAdd - 1) / c.lfoAdd
	if count > samples {
		count = samples
		c.lfoCounter += count * c.lfoAdd
	} else {
		c.lfoCounter += count * c.lfoAdd
		c.lfoCounter &= lfoMax - 1
		c.vibratoIndex = (c.vibratoIndex + 1) & 31
		if int(c.tremoloIndex)+1 < tremoloTableLen {
			c.tremoloIndex++
		} else {
			c.tremoloIndex = 0
		}
	}
	return count
}

func (c *Chip) writeBD(val uint8) {
	change := c.regBD ^ val
	if change == 0 {
		return
	}
	c.regBD = val
	if val&0x40 != 0 {
		c.vibratoStrength = 0x00
	} else {
		c.vibratoStrength = 0x01
	}
	if val&0x80 != 0 {
		c.tremoloStrength = 0x00
	} else {
		c.tremoloStrength = 0x02
	}
	if val&0x20 != 0 {
		if change&0x20 != 0 {
			c.channels[6].synth = synthPercussion
		}
		if val&0x10 != 0 {
			c.channels[6].op[0].keyOn(0x2)
			c.channels[6].op[1].keyOn(0x2)
		} else {
			c.channels[6].op[0].keyOff(0x2)
			c.channels[6].op[1].keyOff(0x2)
		}
		if val&0x1 != 0 {
			c.channels[7].op[0].keyOn(0x2)
		} else {
			c.channels[7].op[0].keyOff(0x2)
		}
		if val&0x8 != 0 {
			c.channels[7].op[1].keyOn(0x2)
		} else {
			c.channels[7].op[1].keyOff(0x2)
		}
		if val&0x4 != 0 {
			c.channels[8].op[0].keyOn(0x2)
		} else {
			c.channels[8].op[0].keyOff(0x2)
		}
		if val&0x2 != 0 {
			c.channels[8].op[1].keyOn(0x2)
		} else {
			c.channels[8].op[1].keyOff(0x2)
		}
	} else if change&0x20 != 0 {
		c.resetC0(6)
		c.channels[6].op[0].keyOff(0x2)
		c.channels[6].op[1].keyOff(0x2)
		c.channels[7].op[0].keyOff(0x2)
		c.channels[7].op[1].keyOff(0x2)
		c.channels[8].op[0].keyOff(0x2)
		c.channels[8].op[1].keyOff(0x2)
	}
}

// WriteRegister programs one register in the chip's 9-bit address
// space (0x000-0x1ff, the high bit set by WriteAddress for bank-1
// addresses once OPL3 mode is active). Addresses with no mapped
// operator or channel are silently ignored.
func (c *Chip) WriteRegister(reg uint32, val uint8) {
	switch (reg & 0xf0) >> 4 {
	case 0x00 >> 4:
		switch reg {
		case regWaveformSelect:
			if val&0x20 != 0 {
				c.waveFormMask = 0x7
			} else {
				c.waveFormMask = 0x0
			}
		case regConnectionSel:
			if (c.reg104^val)&0x3f == 0 {
				return
			}
			c.reg104 = 0x80 | (val & 0x3f)
		case regNewMode:
			if (c.opl3Active^val)&1 == 0 {
				return
			}
			if val&1 != 0 {
				c.opl3Active = 0xff
			} else {
				c.opl3Active = 0
			}
			for i := range c.channels {
				c.resetC0(i)
			}
		case reg08:
			c.reg08 = val
		}
	case 0x20 >> 4, 0x30 >> 4:
		c.regOp(reg, func(op *Operator) { op.write20(c, val) })
	case 0x40 >> 4, 0x50 >> 4:
		c.regOp(reg, func(op *Operator) { op.write40(val) })
	case 0x60 >> 4, 0x70 >> 4:
		c.regOp(reg, func(op *Operator) { op.write60(c, val) })
	case 0x80 >> 4, 0x90 >> 4:
		c.regOp(reg, func(op *Operator) { op.write80(c, val) })
	case 0xa0 >> 4:
		c.regChan(reg, func(idx int) { c.writeA0(idx, val) })
	case 0xb0 >> 4:
		if reg == regRhythm {
			c.writeBD(val)
		} else {
			c.regChan(reg, func(idx int) { c.writeB0(idx, val) })
		}
	case 0xc0 >> 4:
		c.regChan(reg, func(idx int) { c.writeC0(idx, val) })
	case 0xe0 >> 4, 0xf0 >> 4:
		c.regOp(reg, func(op *Operator) { op.writeE0(c, val) })
	}
}

func (c *Chip) regOp(reg uint32, fn func(*Operator)) {
	index := ((reg >> 3) & 0x20) | (reg & 0x1f)
	ref := operatorMap[index]
	if ref.channel < 0 {
		return
	}
	fn(&c.channels[ref.channel].op[ref.op])
}

func (c *Chip) regChan(reg uint32, fn func(int)) {
	index := ((reg >> 4) & 0x10) | (reg & 0xf)
	ch := channelMap[index]
	if ch < 0 {
		return
	}
	fn(ch)
}

// WriteAddress implements the two-port address-latch protocol real
// hardware and DOS drivers use: port&3==0 latches a bank-0 register
// number verbatim, port&3==2 latches a bank-1 number (only honored
// once OPL3 mode is active, except for the 0x05 OPL3-detection probe
// every compatible driver issues before enabling OPL3 mode).
func (c *Chip) WriteAddress(port uint32, val uint8) uint32 {
	switch port & 3 {
	case 0:
		return uint32(val)
	case 2:
		if c.opl3Active != 0 || val == 0x05 {
			return 0x100 | uint32(val)
		}
		return uint32(val)
	}
	return 0
}

// GenerateBlockMono renders samples frames of 2-operator (OPL2, 9
// channel) output, additively accumulating into output (which must
// have at least samples elements already containing whatever the
// caller wants mixed in, typically zero).
func (c *Chip) GenerateBlockMono(samples int, output []int32) {
	total := samples
	pos := 0
	for total > 0 {
		n := int(c.forwardLFO(uint32(total)))
		for ch := 0; ch < 9; {
			ch = c.renderChannel(ch, n, output[pos:pos+n], false)
		}
		total -= n
		pos += n
	}
}

// GenerateBlockStereo renders samples frames of interleaved
// left/right 4-operator (OPL3 superset, 18 channel) output.
func (c *Chip) GenerateBlockStereo(samples int, output []int32) {
	total := samples
	pos := 0
	for total > 0 {
		n := int(c.forwardLFO(uint32(total)))
		for ch := 0; ch < 18; {
			ch = c.renderChannel(ch, n, output[pos*2:(pos+n)*2], true)
		}
		total -= n
		pos += n
	}
}
