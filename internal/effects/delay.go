package effects

// Delay is a stereo feedback delay with cross-channel (ping-pong) feedback.
type Delay struct {
	bufL, bufR []float32
	pos        int
	feedback   float32
	cross      float32
	wet        float32
}

// NewDelay creates a delay effect.
// delayMs: delay time in milliseconds
// feedback: feedback amount 0..1
// cross: cross-channel feedback 0..1
// wet: wet/dry mix 0..1
func NewDelay(sampleRate int, delayMs float64, feedback, cross, wet float32) *Delay {
	samples := int(delayMs * float64(sampleRate) / 1000.0)
	if samples < 1 {
		samples = 1
	}
	return &Delay{
		bufL:     make([]float32, samples),
		bufR:     make([]float32, samples),
		feedback: clamp(feedback, 0, 0.95),
		cross:    clamp(cross, 0, 1),
		wet:      clamp(wet, 0, 1),
	}
}

// NewTempoDelay sets the delay time to a number of beats at tempo, so echoes
// land on the pattern grid (0.75 = dotted eighth).
func NewTempoDelay(sampleRate int, tempo, beats float64, feedback, cross, wet float32) *Delay {
	if tempo <= 0 {
		tempo = 120
	}
	if beats <= 0 {
		beats = 0.5
	}
	return NewDelay(sampleRate, beats*60000/tempo, feedback, cross, wet)
}

func (d *Delay) Process(l, r float32) (float32, float32) {
	delL := d.bufL[d.pos]
	delR := d.bufR[d.pos]
	straight := d.feedback * (1 - d.cross)
	crossed := d.feedback * d.cross
	d.bufL[d.pos] = l + delL*straight + delR*crossed
	d.bufR[d.pos] = r + delR*straight + delL*crossed
	d.pos++
	if d.pos >= len(d.bufL) {
		d.pos = 0
	}
	return l*(1-d.wet) + delL*d.wet, r*(1-d.wet) + delR*d.wet
}

// Length returns the delay time in samples.
func (d *Delay) Length() int { return len(d.bufL) }

func (d *Delay) Reset() {
	clear(d.bufL)
	clear(d.bufR)
	d.pos = 0
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
