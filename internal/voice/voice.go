// Package voice renders scheduled signal chains and tracks the voices in
// flight, including choke-group exclusivity.
package voice

import (
	"errors"
	"math"
	"sync"

	"github.com/cbegin/padseq-go/internal/chain"
	"github.com/cbegin/padseq-go/internal/curve"
)

// ErrStopped is returned when stopping a voice that already ended.
var ErrStopped = errors.New("voice already stopped")

const (
	// FadeTime is the choke fade length; the source stops after StopDelay.
	FadeTime  = 0.005
	StopDelay = 0.010

	// filter coefficients are refreshed every controlFrames frames
	controlFrames = 32
)

// Voice is one playing instance of a chain. Render is called from the audio
// goroutine; the control methods may be called from any goroutine.
type Voice struct {
	mu       sync.Mutex
	id       uint64
	chain    *chain.Chain
	gain     *curve.Curve
	stop     float64
	started  bool
	pos      float64 // source frames advanced since the region start
	filter   biquad
	ctrl     int
	done     chan struct{}
	finished bool
}

// New wraps c as a voice. The chain's gain curve is copied so fades never
// mutate the builder's output.
func New(id uint64, c *chain.Chain) *Voice {
	return &Voice{
		id:    id,
		chain: c,
		gain:  c.Gain.Clone(),
		stop:  c.Stop,
		done:  make(chan struct{}),
	}
}

func (v *Voice) ID() uint64     { return v.id }
func (v *Voice) PadID() string  { return v.chain.PadID }
func (v *Voice) Start() float64 { return v.chain.Start }

// Done is closed when the voice ends naturally or is stopped.
func (v *Voice) Done() <-chan struct{} { return v.done }

// StopTime is the scheduled end of the voice (+Inf while looping).
func (v *Voice) StopTime() float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.stop
}

// GainAt evaluates the (possibly faded) amplitude curve.
func (v *Voice) GainAt(t float64) float64 {
	v.mu.Lock()
	defer v.mu.Unlock()
	if t >= v.stop {
		return 0
	}
	return v.gain.ValueAt(t)
}

// FadeOut ramps the gain to 0 over FadeTime from at and stops the source at
// at+StopDelay.
func (v *Voice) FadeOut(at float64) {
	v.fade(at, FadeTime, StopDelay)
}

// Release fades the voice out over d seconds starting at at.
func (v *Voice) Release(at, d float64) {
	if d < FadeTime {
		d = FadeTime
	}
	v.fade(at, d, d)
}

func (v *Voice) fade(at, fade, stop float64) {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.finished {
		return
	}
	if at < v.chain.Start {
		at = v.chain.Start
	}
	v.gain.CancelAndHold(at)
	v.gain.LinearRampTo(0, at+fade)
	if s := at + stop; s < v.stop {
		v.stop = s
	}
}

// Stop ends the voice immediately.
func (v *Voice) Stop() error {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.finished {
		return ErrStopped
	}
	v.finishLocked()
	return nil
}

func (v *Voice) finishLocked() {
	v.finished = true
	close(v.done)
}

// Render mixes the voice into dst and its reverb send into send. Both are
// interleaved stereo; t0 is the time of the first frame. It returns false
// once the voice has finished.
func (v *Voice) Render(dst, send []float32, t0 float64, sampleRate int) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	if v.finished {
		return false
	}
	c := v.chain
	sr := float64(sampleRate)
	frames := len(dst) / 2
	if t0+float64(frames)/sr <= c.Start {
		return true
	}
	srcRate := float64(c.SourceRate)
	step := c.Rate * srcRate / sr
	first := c.Offset * srcRate
	length := c.Length * srcRate
	stereo := len(c.Source) > 1

	for f := 0; f < frames; f++ {
		t := t0 + float64(f)/sr
		if t < c.Start {
			continue
		}
		if t >= v.stop {
			v.finishLocked()
			return false
		}
		if !v.started {
			v.started = true
			// sub-frame start: begin at the phase the source would have at t
			v.pos = (t - c.Start) * c.Rate * srcRate
			v.ctrl = 0
		}
		if v.pos >= length {
			if !c.Loop || length <= 0 {
				v.finishLocked()
				return false
			}
			v.pos = math.Mod(v.pos, length)
		}
		if v.ctrl == 0 {
			v.filter.set(c.Filter.Type, c.Filter.Cutoff.ValueAt(t), c.Filter.Q, sampleRate)
			v.ctrl = controlFrames
		}
		v.ctrl--

		l := v.read(0, first, length)
		r := l
		if stereo {
			r = v.read(1, first, length)
		}
		l = v.filter.process(0, l)
		r = v.filter.process(1, r)
		l, r = pan(l, r, c.Pan, stereo)
		g := v.gain.ValueAt(t)
		l *= g
		r *= g
		dst[f*2] += float32(l)
		dst[f*2+1] += float32(r)
		if c.ReverbSend > 0 && send != nil {
			send[f*2] += float32(l * c.ReverbSend)
			send[f*2+1] += float32(r * c.ReverbSend)
		}
		v.pos += step
	}
	return true
}

// read interpolates channel ch at the current position. Looping voices wrap
// the interpolation partner back to the region start.
func (v *Voice) read(ch int, first, length float64) float64 {
	src := v.chain.Source[ch]
	p := first + v.pos
	i := int(p)
	if i >= len(src) {
		return 0
	}
	frac := p - float64(i)
	a := float64(src[i])
	j := i + 1
	end := int(first + length)
	if j >= end || j >= len(src) {
		if v.chain.Loop {
			j = int(first)
		} else {
			return a
		}
	}
	return a + (float64(src[j])-a)*frac
}

// pan applies an equal-power stereo panner. Mono input is spread across
// both sides; stereo input keeps its image and folds the far side in.
func pan(l, r, p float64, stereo bool) (float64, float64) {
	if p == 0 && stereo {
		return l, r
	}
	if !stereo {
		x := (p + 1) / 2 * math.Pi / 2
		return l * math.Cos(x), l * math.Sin(x)
	}
	if p <= 0 {
		x := (p + 1) * math.Pi / 2
		return l + r*math.Cos(x), r * math.Sin(x)
	}
	x := p * math.Pi / 2
	return l * math.Cos(x), r + l*math.Sin(x)
}
