// Package mixer is the output graph shared by live playback and offline
// rendering: voices, a reverb send bus, the master chain and the sample clock.
package mixer

import (
	"math"
	"sync"
	"sync/atomic"

	"github.com/viterin/vek/vek32"

	intfx "github.com/cbegin/padseq-go/internal/effects"
	"github.com/cbegin/padseq-go/internal/voice"
)

// ReverbParams configures the send bus reverb.
type ReverbParams struct {
	RoomSize float32
	Feedback float32
}

func DefaultReverb() ReverbParams {
	return ReverbParams{RoomSize: 0.6, Feedback: 0.78}
}

type Options struct {
	Reverb ReverbParams
	Master *intfx.Chain
	EQ     *intfx.EQ5Band
	Gain   float64
	// Tap receives every rendered stereo block. It runs on the rendering
	// goroutine; keep it brief.
	Tap func([]float32)
}

// Graph mixes voices into interleaved stereo. Its clock advances only as
// frames are rendered, so Now is the time of the next frame to be produced.
type Graph struct {
	mu         sync.Mutex
	sampleRate int
	frames     atomic.Int64
	gain       atomic.Uint64
	voices     []*voice.Voice
	reverb     *intfx.Reverb
	master     *intfx.Chain
	eq         *intfx.EQ5Band
	tap        func([]float32)
	send       []float32
	wet        []float32
}

func New(sampleRate int, opts Options) *Graph {
	rp := opts.Reverb
	if rp.RoomSize <= 0 {
		rp = DefaultReverb()
	}
	gain := opts.Gain
	if gain <= 0 {
		gain = 1
	}
	g := &Graph{
		sampleRate: sampleRate,
		reverb:     intfx.NewReverb(sampleRate, rp.RoomSize, rp.Feedback, 1),
		master:     opts.Master,
		eq:         opts.EQ,
		tap:        opts.Tap,
	}
	g.gain.Store(math.Float64bits(gain))
	return g
}

func (g *Graph) SampleRate() int { return g.sampleRate }

// Now returns the graph clock in seconds.
func (g *Graph) Now() float64 {
	return float64(g.frames.Load()) / float64(g.sampleRate)
}

// SetGain sets the master gain; it takes effect on the next block.
func (g *Graph) SetGain(gain float64) {
	if gain < 0 {
		gain = 0
	}
	g.gain.Store(math.Float64bits(gain))
}

func (g *Graph) Gain() float64 {
	return math.Float64frombits(g.gain.Load())
}

// Add schedules v. It starts sounding at its own start time.
func (g *Graph) Add(v *voice.Voice) {
	g.mu.Lock()
	g.voices = append(g.voices, v)
	g.mu.Unlock()
}

// Active reports voices that have not finished yet.
func (g *Graph) Active() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.voices)
}

// Clear drops every voice without stopping it; callers stop voices through
// their tracker.
func (g *Graph) Clear() {
	g.mu.Lock()
	g.voices = g.voices[:0]
	g.mu.Unlock()
}

// Process renders len(dst)/2 stereo frames and advances the clock.
func (g *Graph) Process(dst []float32) {
	g.mu.Lock()
	defer g.mu.Unlock()
	clear(dst)
	frames := len(dst) / 2
	if frames == 0 {
		return
	}
	if cap(g.send) < len(dst) {
		g.send = make([]float32, len(dst))
		g.wet = make([]float32, len(dst))
	}
	send := g.send[:len(dst)]
	wet := g.wet[:len(dst)]
	clear(send)

	t0 := g.Now()
	live := g.voices[:0]
	for _, v := range g.voices {
		if v.Render(dst, send, t0, g.sampleRate) {
			live = append(live, v)
		}
	}
	for i := len(live); i < len(g.voices); i++ {
		g.voices[i] = nil
	}
	g.voices = live

	for i := 0; i+1 < len(send); i += 2 {
		wet[i], wet[i+1] = g.reverb.Process(send[i], send[i+1])
	}
	vek32.Add_Inplace(dst, wet)

	if g.master != nil {
		for i := 0; i+1 < len(dst); i += 2 {
			dst[i], dst[i+1] = g.master.Process(dst[i], dst[i+1])
		}
	}
	if g.eq != nil {
		for i := 0; i+1 < len(dst); i += 2 {
			dst[i], dst[i+1] = g.eq.Process(dst[i], dst[i+1])
		}
	}
	if gain := g.Gain(); gain != 1 {
		vek32.MulNumber_Inplace(dst, float32(gain))
	}
	if g.tap != nil {
		g.tap(dst)
	}
	g.frames.Add(int64(frames))
}

// blockFrames is the offline rendering block size.
const blockFrames = 1024

// Render produces seconds of audio from the current clock position.
func (g *Graph) Render(seconds float64) []float32 {
	frames := int(math.Ceil(seconds * float64(g.sampleRate)))
	if frames < 0 {
		frames = 0
	}
	out := make([]float32, frames*2)
	for off := 0; off < frames; off += blockFrames {
		end := off + blockFrames
		if end > frames {
			end = frames
		}
		g.Process(out[off*2 : end*2])
	}
	return out
}
