// Package chain builds the per-trigger signal chain of a pad voice: source
// region, filter, stereo pan, amplitude envelope and reverb send, with every
// time-varying parameter scheduled up front.
package chain

import (
	"errors"
	"math"

	"github.com/cbegin/padseq-go/internal/curve"
	"github.com/cbegin/padseq-go/internal/model"
)

var (
	ErrNoSample    = errors.New("pad has no sample")
	ErrEmptyRegion = errors.New("pad region is shorter than 1ms")
	ErrBadRate     = errors.New("pad playback rate must be positive")
)

const (
	minCutoff = 20.0
	maxCutoff = 20000.0
	// modulation never covers more than this share of the distance to the
	// audible limits
	maxModShare = 0.8
)

type TargetKind int

const (
	TargetLive TargetKind = iota
	TargetOffline
)

// RenderTarget describes where a chain will play. Live targets cannot start
// a voice before Now; offline targets accept any time.
type RenderTarget struct {
	Kind       TargetKind
	SampleRate int
	Now        float64
}

func Live(sampleRate int, now float64) RenderTarget {
	return RenderTarget{Kind: TargetLive, SampleRate: sampleRate, Now: now}
}

func Offline(sampleRate int) RenderTarget {
	return RenderTarget{Kind: TargetOffline, SampleRate: sampleRate}
}

func (t RenderTarget) earliest(when float64) float64 {
	if t.Kind == TargetLive && when < t.Now {
		return t.Now
	}
	return when
}

// Reverser supplies reversed sample regions.
type Reverser interface {
	Reverse(s *model.Sample, start, end float64) [][]float32
}

// Request is the input of Build. Duration <= 0 means the natural playback
// duration of the pad region.
type Request struct {
	Pad      model.Pad
	Sample   *model.Sample
	When     float64
	Duration float64
	Looping  bool
}

// Filter is the filter stage; Cutoff is scheduled in Hz.
type Filter struct {
	Type   model.FilterType
	Cutoff *curve.Curve
	Q      float64
}

// Chain is a fully scheduled voice. Source offsets are in seconds of the
// source buffer; Start/Stop are absolute target times.
type Chain struct {
	PadID string

	Source     [][]float32
	SourceRate int
	Offset     float64
	Length     float64
	Rate       float64
	Loop       bool
	Reversed   bool

	Start float64
	Stop  float64 // +Inf while looping

	Filter     Filter
	Pan        float64
	Gain       *curve.Curve
	ReverbSend float64
}

// Validate checks the pad against its sample.
func Validate(pad model.Pad, s *model.Sample) error {
	if pad.SampleID == "" || s == nil || s.Frames() == 0 {
		return ErrNoSample
	}
	start, end := pad.Region(s)
	if end-start < model.MinRegion.Seconds() {
		return ErrEmptyRegion
	}
	if r := pad.Rate(); !(r > 0) || math.IsInf(r, 0) {
		return ErrBadRate
	}
	return nil
}

// PlaybackDuration is the time the pad region takes to play once.
func PlaybackDuration(pad model.Pad, s *model.Sample) float64 {
	start, end := pad.Region(s)
	r := pad.Rate()
	if r <= 0 {
		return 0
	}
	return (end - start) / r
}

// Build constructs the chain for one trigger.
func Build(target RenderTarget, rev Reverser, req Request) (*Chain, error) {
	pad, smp := req.Pad, req.Sample
	if err := Validate(pad, smp); err != nil {
		return nil, err
	}
	start, end := pad.Region(smp)
	when := target.earliest(req.When)
	dur := req.Duration
	if dur <= 0 {
		dur = PlaybackDuration(pad, smp)
	}

	c := &Chain{
		PadID:      pad.ID,
		Source:     smp.Data,
		SourceRate: smp.SampleRate,
		Offset:     start,
		Length:     end - start,
		Rate:       pad.Rate(),
		Loop:       req.Looping,
		Reversed:   pad.Reversed,
		Start:      when,
		Stop:       when + dur,
		Pan:        clamp(pad.Pan, -1, 1),
		ReverbSend: clamp(pad.ReverbSend, 0, 1),
	}
	if pad.Reversed && rev != nil {
		c.Source = rev.Reverse(smp, start, end)
		c.Offset = 0
	}
	if req.Looping {
		c.Stop = math.Inf(1)
	}

	env := envelopeTimes(pad, when, dur, req.Looping)
	c.Gain = amplitudeCurve(pad, env)
	c.Filter = Filter{
		Type:   filterType(pad.Filter),
		Cutoff: cutoffCurve(pad, env),
		Q:      resonanceQ(pad.Resonance),
	}
	return c, nil
}

// envTimes are the absolute time points shared by the amplitude and filter
// envelopes.
type envTimes struct {
	start        float64
	attackEnd    float64
	decayEnd     float64
	decays       bool
	releaseStart float64
	end          float64
	looping      bool
}

func envelopeTimes(pad model.Pad, when, dur float64, looping bool) envTimes {
	attack := math.Max(pad.Attack, 0)
	decay := math.Max(pad.Decay, 0)
	release := math.Max(pad.Release, 0)
	if pad.Sustain >= 1 {
		decay = 0
	}
	if !looping && attack+decay > dur {
		// attack and decay alone overrun the region: scale all three
		// segments so the release still reaches zero at the end
		k := dur / (attack + decay + release)
		attack, decay, release = attack*k, decay*k, release*k
	}
	e := envTimes{start: when, attackEnd: when + attack, looping: looping}
	e.decays = decay > 0
	e.decayEnd = e.attackEnd + decay
	if looping {
		return e
	}
	e.end = when + dur
	// release never starts before the decay segment is over
	e.releaseStart = math.Min(math.Max(e.end-release, e.decayEnd), e.end)
	return e
}

// EnvelopeTimes exposes the envelope break points of a chain request for
// callers that visualise or test envelopes: attack end, decay end, release
// start and end.
func EnvelopeTimes(pad model.Pad, when, dur float64) (attackEnd, decayEnd, releaseStart, end float64) {
	e := envelopeTimes(pad, when, dur, false)
	return e.attackEnd, e.decayEnd, e.releaseStart, e.end
}

func amplitudeCurve(pad model.Pad, e envTimes) *curve.Curve {
	vol := math.Max(pad.Volume, 0)
	sustain := clamp(pad.Sustain, 0, 1)
	level := vol
	g := curve.New(0)
	g.SetValueAt(0, e.start)
	g.LinearRampTo(vol, e.attackEnd)
	if e.decays {
		level = vol * sustain
		g.LinearRampTo(level, e.decayEnd)
	}
	if e.looping {
		return g
	}
	g.SetValueAt(level, e.releaseStart)
	g.LinearRampTo(0, e.end)
	return g
}

func cutoffCurve(pad model.Pad, e envTimes) *curve.Curve {
	base := clamp(pad.Cutoff, minCutoff, maxCutoff)
	depth := clamp(pad.FilterEnv, -1, 1)
	c := curve.New(base)
	if depth == 0 {
		return c
	}
	mod := MaxModHz(base, depth) * math.Abs(depth)
	if depth < 0 {
		mod = -mod
	}
	sustain := clamp(pad.Sustain, 0, 1)
	held := base + mod
	c.SetValueAt(base, e.start)
	c.LinearRampTo(base+mod, e.attackEnd)
	if e.decays {
		held = base + mod*sustain
		c.LinearRampTo(held, e.decayEnd)
	}
	if e.looping {
		return c
	}
	c.SetValueAt(held, e.releaseStart)
	c.LinearRampTo(base, e.end)
	return c
}

// MaxModHz bounds filter modulation to 80% of the distance from base to the
// limit in the direction of depth.
func MaxModHz(base, depth float64) float64 {
	base = clamp(base, minCutoff, maxCutoff)
	if depth >= 0 {
		return maxModShare * (maxCutoff - base)
	}
	return maxModShare * (base - minCutoff)
}

// resonanceQ maps the 0..15 resonance control to a biquad Q, starting at a
// Butterworth response.
func resonanceQ(res float64) float64 {
	return math.Sqrt2/2 + clamp(res, 0, 15)
}

func filterType(t model.FilterType) model.FilterType {
	switch t {
	case model.FilterHighpass, model.FilterBandpass:
		return t
	default:
		return model.FilterLowpass
	}
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
