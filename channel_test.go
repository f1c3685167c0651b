package opl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// programSine sets channel idx's first operator up as a simple,
// always-on sine at maximum sustain so render loops have something
// audible to check against.
func programSine(c *Chip, idx int, freqHi, freqLo uint8) {
	c.WriteRegister(uint32(regOpAttackDecayVibrato+operatorSlot(idx, 0)), 0x01)
	c.WriteRegister(uint32(regOpLevel+operatorSlot(idx, 0)), 0x00)
	c.WriteRegister(uint32(regOpAttackDecay+operatorSlot(idx, 0)), 0xf0)
	c.WriteRegister(uint32(regOpSustainRelease+operatorSlot(idx, 0)), 0x00)
	c.WriteRegister(uint32(regOpWaveSelect+operatorSlot(idx, 0)), 0x00)
	c.WriteRegister(uint32(regChanFeedback+idx), 0x01)
	c.WriteRegister(uint32(regChanFreqLo+idx), freqLo)
	c.WriteRegister(uint32(regChanFreqHi+idx), freqHi)
}

// operatorSlot finds a register sub-address (0-0x1f range relative to
// an operator register base) that the address-decode tables route to
// channel idx's given operator, by brute-force search over the
// documented slot layout. Test-only; production code never needs to
// invert the map.
func operatorSlot(idx, op int) uint32 {
	for i := 0; i < 32; i++ {
		ref := operatorMap[i]
		if ref.channel == idx && ref.op == op {
			return uint32(i)
		}
	}
	panic("no register slot maps to the requested channel/operator")
}

func TestSilenceAfterReset(t *testing.T) {
	c := NewChip()
	require.NoError(t, c.Setup(49716))

	out := make([]int32, 512)
	c.GenerateBlockMono(512, out)
	for i, v := range out {
		assert.Zero(t, v, "sample %d must stay zero with no registers programmed", i)
	}
}

// TestFourOpLeaderOnlyRendering covers property 7: once 4-op mode is
// enabled for a pair, writes addressed to the follower channel's A0/B0
// registers are ignored, and iterating channels skips the follower.
func TestFourOpLeaderOnlyRendering(t *testing.T) {
	c := NewChip()
	require.NoError(t, c.Setup(49716))

	c.WriteRegister(regNewMode, 0x01)       // OPL3 on
	c.WriteRegister(regConnectionSel, 0x01) // 4-op pair 0 (register channels 0 and 3) enabled

	programSine(c, 0, 0x31, 0x98)

	// Register channel 3 is the follower half of pair 0, but the
	// address-decode permutation routes it to physical channels[1]
	// (adjacent to the leader at channels[0], which is what lets
	// renderChannel treat them as one 4-op voice). Writes addressed to
	// it must be ignored entirely while the pair is active.
	before := c.channels[1].chanData
	c.WriteRegister(regChanFreqLo+3, 0x55)
	c.WriteRegister(regChanFreqHi+3, 0x3f)
	assert.Equal(t, before, c.channels[1].chanData, "follower A0/B0 writes must be ignored while paired")

	out := make([]int32, 256)
	next := c.renderChannel(0, len(out), out, false)
	assert.Equal(t, 2, next, "a 4-op pair must advance the render loop by 2")
}

// TestStereoMaskSemantics covers property 8: a channel panned left
// only reproduces the mono signal in the left slot and is silent in
// the right slot.
func TestStereoMaskSemantics(t *testing.T) {
	c := NewChip()
	require.NoError(t, c.Setup(49716))

	c.WriteRegister(regNewMode, 0x01) // OPL3 on for stereo mask bits to take effect
	programSine(c, 0, 0x31, 0x98)
	c.WriteRegister(regChanFeedback+0, 0x11) // AM, left channel only
	c.WriteRegister(regChanFreqHi+0, 0x31)   // key on (re-assert after C0 write order)

	out := make([]int32, 1024)
	c.GenerateBlockStereo(512, out)

	sawNonzeroLeft := false
	for i := 0; i < 512; i++ {
		left, right := out[i*2], out[i*2+1]
		assert.Zero(t, right, "right slot must stay silent when only the left pan bit is set")
		if left != 0 {
			sawNonzeroLeft = true
		}
	}
	assert.True(t, sawNonzeroLeft, "left slot should carry the rendered signal")
}

// TestPercussionSkipLength covers property 9: percussion rendering
// always advances the channel loop by exactly 3, regardless of which
// triggers are active.
func TestPercussionSkipLength(t *testing.T) {
	c := NewChip()
	require.NoError(t, c.Setup(49716))

	c.writeBD(0x20) // rhythm on, no triggers
	require.Equal(t, synthPercussion, c.channels[6].synth)

	out := make([]int32, 64)
	next := c.renderChannel(6, len(out), out, false)
	assert.Equal(t, 9, next)

	c.writeBD(0x3f) // every trigger firing
	next = c.renderChannel(6, len(out), out, false)
	assert.Equal(t, 9, next)
}

// TestPercussionProducesOutput is an end-to-end version of S4: once the
// bass drum's operators have a nonzero attack rate (after Setup every
// attack rate is 0, which never leaves maximum attenuation), firing the
// bass drum trigger must produce nonzero samples.
func TestPercussionProducesOutput(t *testing.T) {
	c := NewChip()
	require.NoError(t, c.Setup(49716))

	for _, op := range []int{0, 1} {
		slot := operatorSlot(6, op)
		c.WriteRegister(uint32(regOpAttackDecayVibrato+slot), 0x01)
		c.WriteRegister(uint32(regOpAttackDecay+slot), 0xf0)
	}
	c.WriteRegister(regChanFreqLo+6, 0x98)
	c.WriteRegister(regChanFreqHi+6, 0x11) // block 4, no key-on: the rhythm register keys it

	c.writeBD(0x20)
	c.writeBD(0x30) // trigger bass drum

	out := make([]int32, 2048)
	c.GenerateBlockMono(2048, out)

	sawNonzero := false
	for _, v := range out {
		if v != 0 {
			sawNonzero = true
			break
		}
	}
	assert.True(t, sawNonzero, "triggering the bass drum must produce audible output")
}

// TestKeyOffDecays is S2: releasing a key must move the envelope
// toward silence, never away from it.
func TestKeyOffDecays(t *testing.T) {
	c := NewChip()
	require.NoError(t, c.Setup(49716))
	programSine(c, 0, 0x31, 0x98)

	warm := make([]int32, 4096)
	c.GenerateBlockMono(4096, warm)

	// programSine leaves the release rate at 0, which freezes the
	// envelope; give it a fast release so key-off can decay.
	c.WriteRegister(uint32(regOpSustainRelease+operatorSlot(0, 0)), 0x0c)
	c.WriteRegister(regChanFreqHi+0, 0x11) // key-off, same block/freq bits

	out := make([]int32, 4096)
	c.GenerateBlockMono(4096, out)

	firstAbs, lastAbs := absI32(out[0]), absI32(out[len(out)-1])
	assert.LessOrEqual(t, lastAbs, firstAbs+1, "envelope should have decayed toward silence by the end of the block")
}

func absI32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}
