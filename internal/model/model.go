package model

import (
	"math"
	"time"
)

// BeatsPerBar is fixed; patterns are measured in 4/4 bars.
const BeatsPerBar = 4

// MinRegion is the shortest pad region that can produce a voice.
const MinRegion = time.Millisecond

type PlayMode string

const (
	PlayPoly PlayMode = "poly"
	PlayMono PlayMode = "mono"
)

type FilterType string

const (
	FilterLowpass  FilterType = "lowpass"
	FilterHighpass FilterType = "highpass"
	FilterBandpass FilterType = "bandpass"
)

// Sample is an immutable decoded audio buffer. Data holds one slice per
// channel, all of equal length.
type Sample struct {
	ID         string
	Name       string
	SampleRate int
	Data       [][]float32
}

func (s *Sample) Channels() int { return len(s.Data) }

func (s *Sample) Frames() int {
	if len(s.Data) == 0 {
		return 0
	}
	return len(s.Data[0])
}

// Duration returns the buffer length in seconds.
func (s *Sample) Duration() float64 {
	if s.SampleRate <= 0 {
		return 0
	}
	return float64(s.Frames()) / float64(s.SampleRate)
}

// Pad is the configuration of one playable slot. Times are in seconds.
type Pad struct {
	ID       string
	Name     string
	SampleID string // empty means no sample assigned
	Start    float64
	End      float64
	PlayMode PlayMode
	Loop     bool // manual triggers hold the region looping until released

	Tune     int     // semitones
	FineTune float64 // cents
	Reversed bool

	Attack  float64
	Decay   float64
	Sustain float64 // 0..1
	Release float64

	Filter    FilterType
	Cutoff    float64 // 20..20000 Hz
	Resonance float64 // 0..15
	FilterEnv float64 // -1..1

	Pan        float64 // -1..1
	ReverbSend float64 // 0..1
	Volume     float64
}

// DefaultPad returns a pad with neutral synthesis parameters.
func DefaultPad(id string) Pad {
	return Pad{
		ID:       id,
		PlayMode: PlayPoly,
		Attack:   0.001,
		Sustain:  1,
		Release:  0.01,
		Filter:   FilterLowpass,
		Cutoff:   20000,
		Volume:   1,
	}
}

// Rate is the playback rate implied by Tune and FineTune.
func (p Pad) Rate() float64 {
	return math.Pow(2, (float64(p.Tune)+p.FineTune/100)/12)
}

// Region returns the pad region clamped to the sample bounds.
func (p Pad) Region(s *Sample) (start, end float64) {
	start, end = p.Start, p.End
	if s != nil {
		d := s.Duration()
		start = clamp(start, 0, d)
		end = clamp(end, 0, d)
	}
	return start, end
}

// Playable reports whether the pad can produce a voice from s.
func (p Pad) Playable(s *Sample) bool {
	if p.SampleID == "" || s == nil || s.Frames() == 0 {
		return false
	}
	start, end := p.Region(s)
	if end-start < MinRegion.Seconds() {
		return false
	}
	r := p.Rate()
	return r > 0 && !math.IsInf(r, 0) && !math.IsNaN(r)
}

// Hit is one pad trigger inside a pattern, positioned in beats.
type Hit struct {
	ID                 string
	PadID              string
	BeatOffset         float64
	OriginalBeatOffset float64
	Pass               int
}

type Pattern struct {
	ID   string
	Name string
	Bars int
	Hits []Hit
}

// Beats is the pattern length in beats.
func (p *Pattern) Beats() float64 {
	return float64(p.Bars * BeatsPerBar)
}

// Duration is the pattern length in seconds at tempo.
func (p *Pattern) Duration(tempo float64) float64 {
	return p.Beats() * BeatDuration(tempo)
}

// SongStep is one arrangement slot.
type SongStep struct {
	ActivePatternIDs []string
	ArmedPatternID   string
	Repeats          int
}

// BeatDuration returns seconds per beat, or 0 for a non-positive tempo.
func BeatDuration(tempo float64) float64 {
	if tempo <= 0 || math.IsNaN(tempo) || math.IsInf(tempo, 0) {
		return 0
	}
	return 60 / tempo
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
