package effects

import (
	"math"
	"sync/atomic"
)

// Bands is the number of master EQ bands.
const Bands = 5

// DefaultCrossovers split the kit into kick, low toms/snare body, snare
// crack, hats and air.
var DefaultCrossovers = [Bands - 1]float64{120, 600, 3000, 9000}

// EQ5Band is the master equalizer. Gains are set from the control goroutine
// while the audio goroutine reads them, so they are stored as float32 bits.
type EQ5Band struct {
	gains  [Bands]atomic.Uint32
	alphas [Bands - 1]float32
	lpL    [Bands - 1]float32
	lpR    [Bands - 1]float32
}

// NewEQ5Band creates a master EQ at unity using DefaultCrossovers.
func NewEQ5Band(sampleRate int) *EQ5Band {
	return NewEQ5BandAt(sampleRate, DefaultCrossovers)
}

// NewEQ5BandAt creates a master EQ with the given ascending crossover
// frequencies in Hz.
func NewEQ5BandAt(sampleRate int, crossovers [Bands - 1]float64) *EQ5Band {
	eq := &EQ5Band{}
	dt := 1 / float64(sampleRate)
	for i, freq := range crossovers {
		rc := 1 / (2 * math.Pi * freq)
		eq.alphas[i] = float32(dt / (rc + dt))
	}
	for i := range eq.gains {
		eq.gains[i].Store(math.Float32bits(1))
	}
	return eq
}

// SetGain sets the linear gain of band (0 lowest). Out-of-range bands are
// ignored.
func (eq *EQ5Band) SetGain(band int, gain float32) {
	if band < 0 || band >= Bands {
		return
	}
	if gain < 0 {
		gain = 0
	}
	eq.gains[band].Store(math.Float32bits(gain))
}

// SetGainDB sets band gain in decibels.
func (eq *EQ5Band) SetGainDB(band int, db float32) {
	eq.SetGain(band, dbToLinear(db))
}

func (eq *EQ5Band) Gain(band int) float32 {
	if band < 0 || band >= Bands {
		return 1
	}
	return math.Float32frombits(eq.gains[band].Load())
}

// Process splits the signal with cascaded one-pole lowpasses; each band is
// what one stage removes from the remainder, so unity gains sum back to the
// input exactly.
func (eq *EQ5Band) Process(l, r float32) (float32, float32) {
	remL, remR := l, r
	var outL, outR float32
	for i := range eq.alphas {
		eq.lpL[i] += eq.alphas[i] * (remL - eq.lpL[i])
		eq.lpR[i] += eq.alphas[i] * (remR - eq.lpR[i])
		g := eq.Gain(i)
		outL += eq.lpL[i] * g
		outR += eq.lpR[i] * g
		remL -= eq.lpL[i]
		remR -= eq.lpR[i]
	}
	g := eq.Gain(Bands - 1)
	return outL + remL*g, outR + remR*g
}

func (eq *EQ5Band) Reset() {
	clear(eq.lpL[:])
	clear(eq.lpR[:])
}
