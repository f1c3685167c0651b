// Command oplplay is a small demo host for the opl package: it programs
// a handful of registers, renders blocks through the public Chip API,
// and streams them to the default audio device via oto.
package main

import (
	"log"
	"math"
	"time"

	"github.com/ebitengine/oto/v3"
	"github.com/spf13/pflag"

	opl "github.com/retrofm/opl3"
)

func main() {
	sampleRate := pflag.IntP("sample-rate", "r", 49716, "Output sample rate in Hz.")
	fnum := pflag.IntP("fnum", "f", 0x198, "Raw 10-bit F-number (fine frequency) register value.")
	block := pflag.IntP("block", "b", 4, "Octave block, 0-7.")
	duration := pflag.Float64P("duration", "d", 3.0, "Seconds to play.")
	useOPL3 := pflag.BoolP("opl3", "3", false, "Play a 4-operator stereo patch instead of the 2-operator mono default.")
	percussion := pflag.BoolP("percussion", "p", false, "Play the percussion bass-drum voice instead of a tone.")
	pflag.Parse()

	chip := opl.NewChip()
	if err := chip.Setup(uint32(*sampleRate)); err != nil {
		log.Fatalf("oplplay: %v", err)
	}

	switch {
	case *percussion:
		programPercussion(chip)
	case *useOPL3:
		programFourOpStereo(chip, uint8(*fnum), uint8(*fnum>>8), uint8(*block))
	default:
		programSimpleTone(chip, uint8(*fnum), uint8(*fnum>>8), uint8(*block))
	}

	channels := 1
	if *useOPL3 {
		channels = 2
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   *sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatFloat32LE,
		BufferSize:   4,
	})
	if err != nil {
		log.Fatalf("oplplay: opening audio device: %v", err)
	}
	<-ready

	reader := &chipReader{chip: chip, stereo: *useOPL3}
	player := ctx.NewPlayer(reader)
	player.Play()
	defer player.Close()

	time.Sleep(time.Duration(*duration * float64(time.Second)))
}

// programSimpleTone is S1 from the register-level playbook: a single
// sine carrier at full sustain, no modulator.
func programSimpleTone(c *opl.Chip, fnumLo, fnumHi, block uint8) {
	c.WriteRegister(0x20, 0x01) // op0 multiplier 1
	c.WriteRegister(0x40, 0x00) // op0 no attenuation
	c.WriteRegister(0x60, 0xf0) // op0 fastest attack, slowest decay
	c.WriteRegister(0x80, 0x00) // op0 max sustain, slowest release
	c.WriteRegister(0xe0, 0x00) // op0 sine
	c.WriteRegister(0xc0, 0x01) // ch0 AM, no feedback
	c.WriteRegister(0xa0, fnumLo)
	c.WriteRegister(0xb0, 0x20|(block<<2)|fnumHi) // key-on
}

// programFourOpStereo enables OPL3 mode and wires register channels 0
// and 3 (the first canonical 4-op pair) into an FM-FM-FM chain panned
// to both output slots.
func programFourOpStereo(c *opl.Chip, fnumLo, fnumHi, block uint8) {
	c.WriteRegister(0x105, 0x01) // OPL3 enable
	c.WriteRegister(0x104, 0x01) // pair 0 active

	for _, base := range []uint32{0x00, 0x08} { // operators of ch0 and ch3 pack 8 apart in the 0x20/0x40/... ranges
		c.WriteRegister(0x20+base, 0x01)
		c.WriteRegister(0x40+base, 0x08)
		c.WriteRegister(0x60+base, 0xf0)
		c.WriteRegister(0x80+base, 0x00)
		c.WriteRegister(0xe0+base, 0x00)
		c.WriteRegister(0x23+base, 0x01)
		c.WriteRegister(0x43+base, 0x00)
		c.WriteRegister(0x63+base, 0xf0)
		c.WriteRegister(0x83+base, 0x00)
		c.WriteRegister(0xe3+base, 0x00)
	}

	c.WriteRegister(0xa0, fnumLo)
	c.WriteRegister(0xb0, 0x20|(block<<2)|fnumHi)
	c.WriteRegister(0xa3, fnumLo)
	c.WriteRegister(0xb3, 0x20|(block<<2)|fnumHi)
	c.WriteRegister(0xc0, 0x30) // FM chain, panned to both sides
	c.WriteRegister(0xc3, 0x30)
}

// programPercussion is S4: give the bass drum's two operators (channel
// 6) a short patch and a low pitch, enable rhythm mode, then trigger
// the bass drum.
func programPercussion(c *opl.Chip) {
	for _, slot := range []uint32{0x10, 0x13} { // channel 6 operators 0 and 1
		c.WriteRegister(0x20+slot, 0x01) // multiplier 1
		c.WriteRegister(0x40+slot, 0x00) // no attenuation
		c.WriteRegister(0x60+slot, 0xf4) // fastest attack, moderate decay
		c.WriteRegister(0x80+slot, 0x04) // max sustain, moderate release
	}
	c.WriteRegister(0xa6, 0x98)
	c.WriteRegister(0xb6, 0x09) // block 2, no key-on (the rhythm register keys it)
	c.WriteRegister(0xbd, 0x20)
	c.WriteRegister(0xbd, 0x30)
}

// chipReader adapts Chip's block-rendering API to the io.Reader shape
// oto's player expects: interleaved, little-endian float32 samples.
type chipReader struct {
	chip    *opl.Chip
	stereo  bool
	scratch []int32
}

func (r *chipReader) Read(p []byte) (int, error) {
	frames := len(p) / 4
	if r.stereo {
		frames /= 2
	}
	if frames == 0 {
		return 0, nil
	}

	need := frames
	if r.stereo {
		need *= 2
	}
	if cap(r.scratch) < need {
		r.scratch = make([]int32, need)
	}
	buf := r.scratch[:need]
	for i := range buf {
		buf[i] = 0
	}

	if r.stereo {
		r.chip.GenerateBlockStereo(frames, buf)
	} else {
		r.chip.GenerateBlockMono(frames, buf)
	}

	const scale = 1.0 / 8192.0
	for i, v := range buf {
		f := float32(v) * scale
		if f > 1 {
			f = 1
		} else if f < -1 {
			f = -1
		}
		bits := math.Float32bits(f)
		off := i * 4
		p[off+0] = byte(bits)
		p[off+1] = byte(bits >> 8)
		p[off+2] = byte(bits >> 16)
		p[off+3] = byte(bits >> 24)
	}
	return need * 4, nil
}
