package effects

import "math"

// Reverb is a stereo Schroeder reverb used as the send bus: four damped comb
// filters and two allpass stages per channel, with the right channel's delay
// lines offset for width.
type Reverb struct {
	left, right reverbChannel
	wet         float32
	feedback    float32
	sampleRate  int
	longest     int
}

type reverbChannel struct {
	combs   [4]combFilter
	allpass [2]allpassFilter
}

type combFilter struct {
	buf    []float32
	pos    int
	fb     float32
	damp   float32
	stored float32
}

type allpassFilter struct {
	buf []float32
	pos int
	fb  float32
}

// stereoSpread is the extra delay of the right channel, in samples at 44.1 kHz.
const stereoSpread = 23

var (
	combRatios    = [4]int{1000, 1117, 1271, 1437}
	allpassRatios = [2]int{347, 213}
)

// NewReverb creates a reverb.
// roomSize: 0..1 controls delay lengths
// feedback: 0..1 controls decay time
// wet: wet/dry mix 0..1 (1 for a pure send return)
func NewReverb(sampleRate int, roomSize, feedback, wet float32) *Reverb {
	base := int(float32(sampleRate) * clamp(roomSize, 0.05, 1) * 0.05)
	if base < 10 {
		base = 10
	}
	spread := stereoSpread * sampleRate / 44100
	r := &Reverb{
		wet:        clamp(wet, 0, 1),
		feedback:   clamp(feedback, 0, 0.95),
		sampleRate: sampleRate,
	}
	r.left = newReverbChannel(base, 0, r.feedback)
	r.right = newReverbChannel(base, spread, r.feedback)
	r.longest = base*combRatios[3]/1000 + spread
	return r
}

func newReverbChannel(base, offset int, fb float32) reverbChannel {
	var ch reverbChannel
	for i := range ch.combs {
		ch.combs[i] = combFilter{
			buf:  make([]float32, base*combRatios[i]/1000+offset),
			fb:   fb,
			damp: 0.25,
		}
	}
	for i := range ch.allpass {
		ch.allpass[i] = allpassFilter{
			buf: make([]float32, maxInt(base*allpassRatios[i]/1000+offset, 1)),
			fb:  0.5,
		}
	}
	return ch
}

func (r *Reverb) Process(l, r2 float32) (float32, float32) {
	in := (l + r2) * 0.5
	outL := r.left.process(in)
	outR := r.right.process(in)
	return l*(1-r.wet) + outL*r.wet, r2*(1-r.wet) + outR*r.wet
}

// TailSeconds estimates how long an impulse stays above -60 dB.
func (r *Reverb) TailSeconds() float64 {
	if r.feedback <= 0 {
		return float64(r.longest) / float64(r.sampleRate)
	}
	loops := math.Log(0.001) / math.Log(float64(r.feedback))
	return loops * float64(r.longest) / float64(r.sampleRate)
}

func (r *Reverb) Reset() {
	r.left.reset()
	r.right.reset()
}

func (ch *reverbChannel) process(in float32) float32 {
	var out float32
	for i := range ch.combs {
		out += ch.combs[i].process(in)
	}
	out *= 0.25
	for i := range ch.allpass {
		out = ch.allpass[i].process(out)
	}
	return out
}

func (ch *reverbChannel) reset() {
	for i := range ch.combs {
		clear(ch.combs[i].buf)
		ch.combs[i].pos = 0
		ch.combs[i].stored = 0
	}
	for i := range ch.allpass {
		clear(ch.allpass[i].buf)
		ch.allpass[i].pos = 0
	}
}

// process feeds back a one-pole lowpassed copy of the output so high
// frequencies decay faster than lows.
func (c *combFilter) process(in float32) float32 {
	out := c.buf[c.pos]
	c.stored = out*(1-c.damp) + c.stored*c.damp
	c.buf[c.pos] = in + c.stored*c.fb
	c.pos++
	if c.pos >= len(c.buf) {
		c.pos = 0
	}
	return out
}

func (a *allpassFilter) process(in float32) float32 {
	bufOut := a.buf[a.pos]
	out := -in + bufOut
	a.buf[a.pos] = in + bufOut*a.fb
	a.pos++
	if a.pos >= len(a.buf) {
		a.pos = 0
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
