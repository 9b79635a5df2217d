package voice

import (
	"math"

	"github.com/cbegin/padseq-go/internal/model"
)

// biquad is an RBJ cookbook filter in transposed direct form II with one
// state pair per channel.
type biquad struct {
	kind               model.FilterType
	b0, b1, b2, a1, a2 float64
	z1, z2             [2]float64
	cutoff             float64
}

func (f *biquad) set(kind model.FilterType, cutoff, q float64, sampleRate int) {
	nyq := float64(sampleRate) / 2
	if cutoff > nyq*0.99 {
		cutoff = nyq * 0.99
	}
	if cutoff < 10 {
		cutoff = 10
	}
	if q <= 0 {
		q = math.Sqrt2 / 2
	}
	f.kind = kind
	f.cutoff = cutoff
	w0 := 2 * math.Pi * cutoff / float64(sampleRate)
	cosw, sinw := math.Cos(w0), math.Sin(w0)
	alpha := sinw / (2 * q)
	var b0, b1, b2 float64
	switch kind {
	case model.FilterHighpass:
		b0 = (1 + cosw) / 2
		b1 = -(1 + cosw)
		b2 = (1 + cosw) / 2
	case model.FilterBandpass:
		b0 = alpha
		b1 = 0
		b2 = -alpha
	default:
		b0 = (1 - cosw) / 2
		b1 = 1 - cosw
		b2 = (1 - cosw) / 2
	}
	a0 := 1 + alpha
	f.b0, f.b1, f.b2 = b0/a0, b1/a0, b2/a0
	f.a1 = -2 * cosw / a0
	f.a2 = (1 - alpha) / a0
}

func (f *biquad) process(ch int, x float64) float64 {
	y := f.b0*x + f.z1[ch]
	f.z1[ch] = f.b1*x - f.a1*y + f.z2[ch]
	f.z2[ch] = f.b2*x - f.a2*y
	return y
}
