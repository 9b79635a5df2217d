// Package click renders the metronome cue. Clicks are ordinary samples
// played through a fixed pad so they share the voice path with pads.
package click

import (
	"math"

	"github.com/cbegin/padseq-go/internal/model"
)

const (
	DownbeatHz = 1500.0
	BeatHz     = 1000.0

	// Length of the rendered buffer and the exponential decay constant.
	Length = 0.05
	decay  = 0.03 / 6.9 // -60 dB after 30 ms

	// Level is the click peak amplitude.
	Level = 0.6

	DownbeatID = "click-downbeat"
	BeatID     = "click-beat"
)

// Tone renders a decaying sine at freq.
func Tone(id string, freq float64, sampleRate int) *model.Sample {
	n := int(Length * float64(sampleRate))
	data := make([]float32, n)
	for i := range data {
		t := float64(i) / float64(sampleRate)
		data[i] = float32(Level * math.Sin(2*math.Pi*freq*t) * math.Exp(-t/decay))
	}
	return &model.Sample{ID: id, Name: id, SampleRate: sampleRate, Data: [][]float32{data}}
}

// Samples are the two metronome buffers for one output rate.
type Samples struct {
	Downbeat *model.Sample
	Beat     *model.Sample
}

func New(sampleRate int) Samples {
	return Samples{
		Downbeat: Tone(DownbeatID, DownbeatHz, sampleRate),
		Beat:     Tone(BeatID, BeatHz, sampleRate),
	}
}

// For returns the buffer for beat index beat (0 is the first beat of a bar).
func (s Samples) For(beat int) *model.Sample {
	if beat%model.BeatsPerBar == 0 {
		return s.Downbeat
	}
	return s.Beat
}

// Pad is the voice setting clicks are played with: the whole buffer, no
// envelope shaping, no filtering, centred and dry.
func Pad(sample *model.Sample) model.Pad {
	return model.Pad{
		ID:       "click",
		Name:     "Metronome",
		SampleID: sample.ID,
		Start:    0,
		End:      sample.Duration(),
		PlayMode: model.PlayPoly,
		Sustain:  1,
		Filter:   model.FilterLowpass,
		Cutoff:   20000,
		Volume:   1,
	}
}
