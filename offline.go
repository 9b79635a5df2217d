package padseq

import (
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/cbegin/padseq-go/internal/chain"
	intfx "github.com/cbegin/padseq-go/internal/effects"
	"github.com/cbegin/padseq-go/internal/export"
	"github.com/cbegin/padseq-go/internal/mixer"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/reverse"
	"github.com/cbegin/padseq-go/internal/scheduler"
	"github.com/cbegin/padseq-go/internal/voice"
	"github.com/cbegin/padseq-go/internal/wavfile"
)

// ErrBadTempo is returned when rendering a snapshot with a non-positive tempo.
var ErrBadTempo = errors.New("tempo must be positive")

// renderPad is extra time rendered after the reverb tail.
const renderPad = 1.0

type RenderOption func(*renderConfig)

type renderConfig struct {
	sampleRate int
	reverb     mixer.ReverbParams
	effects    []intfx.Spec
	volume     float64
	title      string
}

func defaultRenderConfig() renderConfig {
	return renderConfig{sampleRate: DefaultSampleRate, reverb: mixer.DefaultReverb(), volume: 1}
}

func WithRenderSampleRate(sampleRate int) RenderOption {
	return func(cfg *renderConfig) {
		cfg.sampleRate = sampleRate
	}
}

func WithRenderReverb(roomSize, feedback float32) RenderOption {
	return func(cfg *renderConfig) {
		cfg.reverb = mixer.ReverbParams{RoomSize: roomSize, Feedback: feedback}
	}
}

// WithRenderEffects puts a master chain on the render, timed to the
// snapshot's tempo.
func WithRenderEffects(specs ...intfx.Spec) RenderOption {
	return func(cfg *renderConfig) {
		cfg.effects = specs
	}
}

func WithRenderVolume(volume float64) RenderOption {
	return func(cfg *renderConfig) {
		cfg.volume = volume
	}
}

// WithTitle names the stems bundle.
func WithTitle(title string) RenderOption {
	return func(cfg *renderConfig) {
		cfg.title = title
	}
}

// Render is an offline rendering: interleaved stereo float32 from time 0.
type Render struct {
	SampleRate int
	Samples    []float32
	// Duration is the arrangement length; Samples run on past it for the
	// reverb tail.
	Duration float64
	Voices   int
	Skipped  int
}

func (r *Render) Frames() int { return len(r.Samples) / 2 }

// WAV encodes the render as a 32-bit float stereo WAV file.
func (r *Render) WAV() []byte {
	return EncodeWAVFloat32LE(r.Samples, r.SampleRate, 2)
}

// RenderMix renders the whole arrangement once through, every pattern.
func RenderMix(snap *model.Snapshot, opts ...RenderOption) (*Render, error) {
	return render(snap, "", opts)
}

// RenderStem renders only patternID's occurrences on the full arrangement
// timeline, so stems line up with the mix and with each other.
func RenderStem(snap *model.Snapshot, patternID string, opts ...RenderOption) (*Render, error) {
	if snap == nil {
		return nil, errors.New("no snapshot")
	}
	if _, ok := snap.Pattern(patternID); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPattern, patternID)
	}
	return render(snap, patternID, opts)
}

func render(snap *model.Snapshot, only string, opts []RenderOption) (*Render, error) {
	cfg := defaultRenderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if snap == nil {
		return nil, errors.New("no snapshot")
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	if model.BeatDuration(snap.Tempo) <= 0 {
		return nil, ErrBadTempo
	}
	var master *intfx.Chain
	if len(cfg.effects) > 0 {
		c, err := intfx.BuildChain(cfg.effects, cfg.sampleRate, snap.Tempo)
		if err != nil {
			return nil, err
		}
		master = c
	}
	graph := mixer.New(cfg.sampleRate, mixer.Options{Reverb: cfg.reverb, Master: master})
	graph.SetGain(cfg.volume)

	tail := intfx.NewReverb(cfg.sampleRate, cfg.reverb.RoomSize, cfg.reverb.Feedback, 1).TailSeconds()
	total := snap.TotalDuration()
	frames := int(math.Ceil((total + tail + renderPad) * float64(cfg.sampleRate)))
	out := &Render{
		SampleRate: cfg.sampleRate,
		Samples:    make([]float32, frames*2),
		Duration:   total,
	}

	target := chain.Offline(cfg.sampleRate)
	rev := reverse.New(reverse.DefaultSize)
	hits := scheduler.Walk(snap, only)
	tracker := voice.NewTracker()
	var id uint64
	next := 0
	for off := 0; off < frames; off += blockFrames {
		end := off + blockFrames
		if end > frames {
			end = frames
		}
		// voices join the graph just before their block
		until := float64(end) / float64(cfg.sampleRate)
		for ; next < len(hits) && hits[next].Time < until; next++ {
			h := hits[next]
			pad, ok := snap.Pad(h.PadID)
			if !ok {
				out.Skipped++
				continue
			}
			smp, _ := snap.Sample(pad.SampleID)
			c, err := chain.Build(target, rev, chain.Request{Pad: pad, Sample: smp, When: h.Time})
			if err != nil {
				out.Skipped++
				continue
			}
			// choke per pattern, as live playback does
			key := voice.ChokeKey(pad, h.PatternID)
			tracker.StopExclusive(key, c.Start)
			id++
			v := voice.New(id, c)
			graph.Add(v)
			tracker.Track(v, key)
			out.Voices++
		}
		graph.Process(out.Samples[off*2 : end*2])
		tracker.Reap()
	}
	return out, nil
}

const blockFrames = 1024

// StemPatternIDs lists the patterns that play somewhere in the song, in
// pattern order.
func StemPatternIDs(snap *model.Snapshot) []string {
	used := make(map[string]bool)
	for _, span := range scheduler.Timeline(snap) {
		for _, id := range span.PatternIDs {
			used[id] = true
		}
	}
	var ids []string
	for _, p := range snap.Patterns {
		if used[p.ID] {
			ids = append(ids, p.ID)
		}
	}
	return ids
}

// EncodeWAVFloat32LE writes interleaved samples as an IEEE float WAV file,
// clamping to [-1, 1].
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	return wavfile.Encode(samples, sampleRate, channels)
}

// ExportMixWAV renders the mixdown and writes it to w as a WAV file.
func ExportMixWAV(w io.Writer, snap *model.Snapshot, opts ...RenderOption) error {
	r, err := RenderMix(snap, opts...)
	if err != nil {
		return err
	}
	_, err = w.Write(r.WAV())
	return err
}

// ExportStems writes the stems bundle to w: one WAV per pattern that plays,
// metadata, a MIDI file and a usage note. Stems render one at a time.
func ExportStems(w io.Writer, snap *model.Snapshot, opts ...RenderOption) error {
	if snap == nil {
		return errors.New("no snapshot")
	}
	cfg := defaultRenderConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return export.Write(w, export.Bundle{
		Title:      cfg.title,
		SampleRate: cfg.sampleRate,
		Snapshot:   snap,
		Stems:      StemPatternIDs(snap),
		Render: func(patternID string) ([]byte, error) {
			r, err := RenderStem(snap, patternID, opts...)
			if err != nil {
				return nil, err
			}
			return r.WAV(), nil
		},
	})
}
