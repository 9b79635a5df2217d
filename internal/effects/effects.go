// Package effects holds the stereo processors used on the reverb send and
// the master bus.
package effects

import (
	"errors"
	"fmt"
	"strings"
)

// Effector processes one stereo frame.
type Effector interface {
	Process(l, r float32) (float32, float32)
	Reset()
}

// Chain applies a sequence of effects in order.
type Chain struct {
	effects []Effector
}

func NewChain(effects ...Effector) *Chain {
	return &Chain{effects: effects}
}

func (c *Chain) Process(l, r float32) (float32, float32) {
	for _, e := range c.effects {
		l, r = e.Process(l, r)
	}
	return l, r
}

func (c *Chain) Reset() {
	for _, e := range c.effects {
		e.Reset()
	}
}

func (c *Chain) Add(e Effector) {
	c.effects = append(c.effects, e)
}

func (c *Chain) Len() int { return len(c.effects) }

// ErrUnknownEffect is returned by FromSpec for an unrecognised type.
var ErrUnknownEffect = errors.New("effects: unknown effect type")

// Spec describes one master-bus effect as written in a project file.
// Params are positional; missing ones take defaults.
type Spec struct {
	Type   string    `yaml:"type" json:"type"`
	Params []float64 `yaml:"params,omitempty" json:"params,omitempty"`
}

// FromSpec builds the effect spec describes. tempo is used by beat-synced
// effects.
//
//	delay      beats, feedback, cross, wet
//	reverb     room size, feedback, wet
//	eq         five band gains in dB
//	comp       threshold dB, ratio, attack ms, release ms, makeup dB
//	limit      ceiling dB
func FromSpec(spec Spec, sampleRate int, tempo float64) (Effector, error) {
	param := func(i int, def float64) float64 {
		if i < len(spec.Params) {
			return spec.Params[i]
		}
		return def
	}
	switch strings.ToLower(strings.TrimSpace(spec.Type)) {
	case "delay":
		return NewTempoDelay(sampleRate, tempo,
			param(0, 0.75),
			float32(param(1, 0.35)),
			float32(param(2, 0.3)),
			float32(param(3, 0.25)),
		), nil
	case "reverb":
		return NewReverb(sampleRate,
			float32(param(0, 0.5)),
			float32(param(1, 0.7)),
			float32(param(2, 0.2)),
		), nil
	case "eq":
		eq := NewEQ5Band(sampleRate)
		for band := 0; band < Bands; band++ {
			eq.SetGainDB(band, float32(param(band, 0)))
		}
		return eq, nil
	case "comp", "compressor":
		return NewCompressor(sampleRate,
			float32(param(0, -18)),
			float32(param(1, 3)),
			float32(param(2, 10)),
			float32(param(3, 120)),
			float32(param(4, 3)),
		), nil
	case "limit", "limiter":
		return NewLimiter(sampleRate, float32(param(0, -0.3))), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownEffect, spec.Type)
}

// BuildChain builds a chain from specs, failing on the first bad entry.
func BuildChain(specs []Spec, sampleRate int, tempo float64) (*Chain, error) {
	c := NewChain()
	for i, s := range specs {
		e, err := FromSpec(s, sampleRate, tempo)
		if err != nil {
			return nil, fmt.Errorf("effect %d: %w", i, err)
		}
		c.Add(e)
	}
	return c, nil
}
