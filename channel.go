// channel.go - a 2-operator voice, optionally paired into a 4-operator
// voice, plus the shared percussion render path.

package opl

// synthMode tags the FM/AM routing graph a channel renders with. The
// reference design picks a handler via a function pointer per
// channel; here a channel just carries this tag and Chip.renderChannel
// switches on it, per the tagged-enum/switch replacement.
type synthMode uint8

const (
	synthAM synthMode = iota
	synthFM
	synthFMFM
	synthAMFM
	synthFMAM
	synthAMAM
	synthPercussion
)

// Channel is a 2-operator voice. Two adjacent Channels combine into a
// 4-operator voice (fourMask marks which half of the pair a channel
// is); three adjacent Channels (indices 6-8) double as the five
// percussion voices when rhythm mode is enabled.
type Channel struct {
	op [2]Operator

	chanData uint32
	old      [2]int32

	regB0 uint8
	regC0 uint8

	maskLeft  int32
	maskRight int32
	feedback  uint8

	// fourMask encodes this channel's role in 4-op/percussion pairing:
	// bit 7 set => second half of a 4-op pair, 0x40 => percussion
	// voice, low 6 bits => one bit for each of the six 4-op pair slots,
	// with only the bit of this channel's slot set.
	fourMask uint8

	synth synthMode
}

func (ch *Channel) reset() {
	ch.op[0].reset()
	ch.op[1].reset()
	ch.old[0], ch.old[1] = 0, 0
	ch.chanData = 0
	ch.regB0 = 0
	ch.regC0 = 0
	ch.maskLeft = -1
	ch.maskRight = -1
	ch.feedback = 31
	ch.fourMask = 0
	ch.synth = synthFM
}

// op4 resolves one of a 4-operator (or percussion) voice's operators,
// where index may run 0-5 and overflow past this channel's own two
// operators into the next channel(s) in chip.channels. It reproduces
// the reference design's pointer-offset Channel__Op without using
// unsafe pointer arithmetic.
func (c *Chip) op4(base int, index int) *Operator {
	return &c.channels[base+index/2].op[index%2]
}

func (c *Chip) setChanData(idx int, data uint32) {
	ch := &c.channels[idx]
	change := ch.chanData ^ data
	ch.chanData = data
	op0, op1 := &ch.op[0], &ch.op[1]
	op0.chanData = data
	op1.chanData = data
	op0.updateFrequency()
	op1.updateFrequency()
	if change&(0xff<<shiftKSLBase) != 0 {
		op0.updateAttenuation()
		op1.updateAttenuation()
	}
	if change&(0xff<<shiftKeyCode) != 0 {
		op0.updateRates(c)
		op1.updateRates(c)
	}
}

// fourOpFlags reports this channel's effective four-op flags. The low
// six bits are nonzero only when OPL3 mode is on and the global
// connection-select register enables this channel's pair. Bit 7 is set
// for the second channel of any pair while OPL3 mode is on, so a value
// above 0x80 marks the follower of an active 4-op voice.
func (c *Chip) fourOpFlags(ch *Channel) uint8 {
	return c.reg104 & c.opl3Active & ch.fourMask
}

func (c *Chip) updateFrequency(idx int, fourOp uint8) {
	ch := &c.channels[idx]
	data := ch.chanData & 0xffff
	kslBase := uint32(kslTable[data>>6])
	keyCode := (data & 0x1c00) >> 9
	if c.reg08&0x40 != 0 {
		keyCode |= (data & 0x100) >> 8
	} else {
		keyCode |= (data & 0x200) >> 9
	}
	data |= (keyCode << shiftKeyCode) | (kslBase << shiftKSLBase)
	c.setChanData(idx, data)
	if fourOp&0x3f != 0 {
		c.setChanData(idx+1, data)
	}
}

func (c *Chip) writeA0(idx int, val uint8) {
	ch := &c.channels[idx]
	fourOp := c.fourOpFlags(ch)
	if fourOp > 0x80 {
		return
	}
	change := (ch.chanData ^ uint32(val)) & 0xff
	if change != 0 {
		ch.chanData ^= change
		c.updateFrequency(idx, fourOp)
	}
}

func (c *Chip) writeB0(idx int, val uint8) {
	ch := &c.channels[idx]
	fourOp := c.fourOpFlags(ch)
	if fourOp > 0x80 {
		return
	}
	change := (ch.chanData ^ (uint32(val) << 8)) & 0x1f00
	if change != 0 {
		ch.chanData ^= change
		c.updateFrequency(idx, fourOp)
	}
	if (val^ch.regB0)&0x20 == 0 {
		return
	}
	ch.regB0 = val
	if val&0x20 != 0 {
		c.op4(idx, 0).keyOn(0x1)
		c.op4(idx, 1).keyOn(0x1)
		if fourOp&0x3f != 0 {
			c.op4(idx+1, 0).keyOn(0x1)
			c.op4(idx+1, 1).keyOn(0x1)
		}
	} else {
		c.op4(idx, 0).keyOff(0x1)
		c.op4(idx, 1).keyOff(0x1)
		if fourOp&0x3f != 0 {
			c.op4(idx+1, 0).keyOff(0x1)
			c.op4(idx+1, 1).keyOff(0x1)
		}
	}
}

func (c *Chip) writeC0(idx int, val uint8) {
	ch := &c.channels[idx]
	change := val ^ ch.regC0
	if change == 0 {
		return
	}
	ch.regC0 = val
	fb := (val >> 1) & 7
	if fb != 0 {
		ch.feedback = 9 - fb
	} else {
		ch.feedback = 31
	}

	if c.opl3Active != 0 {
		if c.reg104&ch.fourMask&0x3f != 0 {
			var chan0, chan1 int
			if ch.fourMask&0x80 == 0 {
				chan0, chan1 = idx, idx+1
			} else {
				chan0, chan1 = idx-1, idx
			}
			synth := (c.channels[chan0].regC0 & 1) | ((c.channels[chan1].regC0 & 1) << 1)
			switch synth {
			case 0:
				c.channels[chan0].synth = synthFMFM
			case 1:
				c.channels[chan0].synth = synthAMFM
			case 2:
				c.channels[chan0].synth = synthFMAM
			case 3:
				c.channels[chan0].synth = synthAMAM
			}
		} else if ch.fourMask&0x40 != 0 && c.regBD&0x20 != 0 {
			// percussion voices keep their own handler while rhythm mode is on
		} else if val&1 != 0 {
			ch.synth = synthAM
		} else {
			ch.synth = synthFM
		}
		ch.maskLeft = boolMask(val&0x10 != 0)
		ch.maskRight = boolMask(val&0x20 != 0)
	} else {
		if ch.fourMask&0x40 != 0 && c.regBD&0x20 != 0 {
			// percussion voices keep their own handler
		} else if val&1 != 0 {
			ch.synth = synthAM
		} else {
			ch.synth = synthFM
		}
	}
}

func boolMask(b bool) int32 {
	if b {
		return -1
	}
	return 0
}

func (c *Chip) resetC0(idx int) {
	val := c.channels[idx].regC0
	c.channels[idx].regC0 ^= 0xff
	c.writeC0(idx, val)
}

// generatePercussion renders the five fixed-role rhythm voices that
// share channels 6-8 while rhythm mode is enabled: bass drum (the
// ordinary 2-op feedback pair), then hi-hat, snare and top cymbal
// driven off a shared noise/phase source, and tom-tom as a plain
// operator with no modulation.
func (c *Chip) generatePercussion(base int, output []int32, stereo bool) {
	ch := &c.channels[base]

	mod := int32(uint32(ch.old[0]+ch.old[1]) >> ch.feedback)
	ch.old[0] = ch.old[1]
	ch.old[1] = c.op4(base, 0).getSample(mod)

	if ch.regC0&1 != 0 {
		mod = 0
	} else {
		mod = ch.old[0]
	}
	sample := c.op4(base, 1).getSample(mod)

	noiseBit := c.forwardNoise() & 0x1
	c2 := c.op4(base, 2).forwardWave()
	c5 := c.op4(base, 5).forwardWave()
	phaseBit := uint32(0)
	if (((c2&0x88)^((c2<<5)&0x80))|((c5^(c5<<2))&0x20)) != 0 {
		phaseBit = 0x02
	}

	hhVol := c.op4(base, 2).forwardVolume()
	if !envSilent(hhVol) {
		hhIndex := (phaseBit << 8) | (0x34 << (phaseBit ^ (noiseBit << 1)))
		sample += c.op4(base, 2).getWave(hhIndex, uint32(hhVol))
	}
	sdVol := c.op4(base, 3).forwardVolume()
	if !envSilent(sdVol) {
		sdIndex := (0x100 + (c2 & 0x100)) ^ (noiseBit << 8)
		sample += c.op4(base, 3).getWave(sdIndex, uint32(sdVol))
	}
	sample += c.op4(base, 4).getSample(0)

	tcVol := c.op4(base, 5).forwardVolume()
	if !envSilent(tcVol) {
		tcIndex := (1 + phaseBit) << 8
		sample += c.op4(base, 5).getWave(tcIndex, uint32(tcVol))
	}
	sample <<= 1
	output[0] += sample
	if stereo {
		output[1] += sample
	}
}

// renderChannel advances the channel(s) starting at idx by samples
// frames, accumulating into output, and returns the index of the next
// channel to render (idx+1 for a 2-op voice, idx+2 for a 4-op voice,
// idx+3 for the three percussion channels consumed as one unit).
func (c *Chip) renderChannel(idx int, samples int, output []int32, stereo bool) int {
	ch := &c.channels[idx]

	if ch.synth == synthPercussion {
		c.op4(idx, 0).prepare(c)
		c.op4(idx, 1).prepare(c)
		c.op4(idx, 2).prepare(c)
		c.op4(idx, 3).prepare(c)
		c.op4(idx, 4).prepare(c)
		c.op4(idx, 5).prepare(c)
		stride := 1
		if stereo {
			stride = 2
		}
		for i := 0; i < samples; i++ {
			c.generatePercussion(idx, output[i*stride:], stereo)
		}
		return idx + 3
	}

	fourOp := ch.synth >= synthFMFM
	switch ch.synth {
	case synthAM, synthAMFM, synthAMAM:
		if c.op4(idx, 0).silent() && sustainSilentFor(ch, c, idx, fourOp) {
			ch.old[0], ch.old[1] = 0, 0
			return idx + stepFor(fourOp)
		}
	case synthFM, synthFMFM, synthFMAM:
		if silentTerminal(c, idx, ch.synth) {
			ch.old[0], ch.old[1] = 0, 0
			return idx + stepFor(fourOp)
		}
	}

	c.op4(idx, 0).prepare(c)
	c.op4(idx, 1).prepare(c)
	if fourOp {
		c.op4(idx, 2).prepare(c)
		c.op4(idx, 3).prepare(c)
	}

	for i := 0; i < samples; i++ {
		mod := int32(uint32(ch.old[0]+ch.old[1]) >> ch.feedback)
		ch.old[0] = ch.old[1]
		ch.old[1] = c.op4(idx, 0).getSample(mod)
		out0 := ch.old[0]

		var sample int32
		switch ch.synth {
		case synthAM:
			sample = out0 + c.op4(idx, 1).getSample(0)
		case synthFM:
			sample = c.op4(idx, 1).getSample(out0)
		case synthFMFM:
			next := c.op4(idx, 1).getSample(out0)
			next = c.op4(idx, 2).getSample(next)
			sample = c.op4(idx, 3).getSample(next)
		case synthAMFM:
			sample = out0
			next := c.op4(idx, 1).getSample(0)
			next = c.op4(idx, 2).getSample(next)
			sample += c.op4(idx, 3).getSample(next)
		case synthFMAM:
			sample = c.op4(idx, 1).getSample(out0)
			next := c.op4(idx, 2).getSample(0)
			sample += c.op4(idx, 3).getSample(next)
		case synthAMAM:
			sample = out0
			next := c.op4(idx, 1).getSample(0)
			sample += c.op4(idx, 2).getSample(next)
			sample += c.op4(idx, 3).getSample(0)
		}

		if stereo {
			output[i*2+0] += sample & ch.maskLeft
			output[i*2+1] += sample & ch.maskRight
		} else {
			output[i] += sample
		}
	}
	return idx + stepFor(fourOp)
}

func stepFor(fourOp bool) int {
	if fourOp {
		return 2
	}
	return 1
}

// silentTerminal implements the FM-family pre-render silence check:
// a voice is inaudible this block if the final operator of each of its
// chains is silent (2-op FM: operator 1; 4-op FMFM: operator 3; 4-op
// FMAM: operators 1 and 3).
func silentTerminal(c *Chip, idx int, mode synthMode) bool {
	switch mode {
	case synthFM:
		return c.op4(idx, 1).silent()
	case synthFMFM:
		return c.op4(idx, 3).silent()
	case synthFMAM:
		return c.op4(idx, 1).silent() && c.op4(idx, 3).silent()
	}
	return false
}

// sustainSilentFor implements the AM-family pre-render silence check,
// which additionally requires every independently-sounding operator
// in the graph to be silent, not just the last one in a chain.
func sustainSilentFor(ch *Channel, c *Chip, idx int, fourOp bool) bool {
	if !fourOp {
		return c.op4(idx, 1).silent()
	}
	if ch.synth == synthAMFM {
		return c.op4(idx, 3).silent()
	}
	// synthAMAM: operators 0, 2 and 3 all sound independently
	return c.op4(idx, 2).silent() && c.op4(idx, 3).silent()
}
