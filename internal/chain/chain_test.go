package chain

import (
	"errors"
	"math"
	"testing"

	"github.com/cbegin/padseq-go/internal/model"
)

func near(a, b float64) bool { return math.Abs(a-b) < 1e-9 }

func oneSecond() *model.Sample {
	return &model.Sample{ID: "s", SampleRate: 1000, Data: [][]float32{make([]float32, 1000)}}
}

type countingReverser struct {
	calls int
}

func (r *countingReverser) Reverse(s *model.Sample, start, end float64) [][]float32 {
	r.calls++
	n := int(math.Round((end - start) * float64(s.SampleRate)))
	return [][]float32{make([]float32, n)}
}

func TestBuildSinglePercussiveHit(t *testing.T) {
	pad := model.Pad{
		ID: "kick", SampleID: "s", Start: 0, End: 0.5,
		Attack: 0.001, Decay: 0, Sustain: 1, Release: 0.01,
		Filter: model.FilterLowpass, Cutoff: 8000, Volume: 0.8,
	}
	c, err := Build(Offline(44100), nil, Request{Pad: pad, Sample: oneSecond(), When: 2})
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if c.Start != 2 || !near(c.Stop, 2.5) {
		t.Fatalf("voice spans [%v, %v], want [2, 2.5]", c.Start, c.Stop)
	}
	if c.Filter.Cutoff.Len() != 0 || c.Filter.Cutoff.ValueAt(2.2) != 8000 {
		t.Fatalf("expected static cutoff, got %d events", c.Filter.Cutoff.Len())
	}
	if g := c.Gain.ValueAt(2); g != 0 {
		t.Fatalf("gain at start = %v, want 0", g)
	}
	if g := c.Gain.ValueAt(2.001); !near(g, 0.8) {
		t.Fatalf("gain after attack = %v, want 0.8", g)
	}
	if g := c.Gain.ValueAt(2.49); !near(g, 0.8) {
		t.Fatalf("gain at release start = %v, want 0.8", g)
	}
	if g := c.Gain.ValueAt(2.495); !near(g, 0.4) {
		t.Fatalf("gain mid release = %v, want 0.4", g)
	}
	if g := c.Gain.ValueAt(2.5); g != 0 {
		t.Fatalf("gain at end = %v, want 0", g)
	}
}

func TestEnvelopeReleaseNeverPrecedesDecayEnd(t *testing.T) {
	cases := []struct {
		attack, decay, release, dur float64
	}{
		{0.1, 0.1, 0.1, 0.3},
		{0.2, 0.2, 0.2, 0.3},
		{0.5, 0.5, 0.5, 0.1},
		{0, 0.3, 1, 0.2},
		{0.01, 0.01, 5, 0.05},
	}
	for _, tc := range cases {
		pad := model.Pad{
			SampleID: "s", End: tc.dur, Volume: 1,
			Attack: tc.attack, Decay: tc.decay, Sustain: 0.5, Release: tc.release,
		}
		_, decayEnd, releaseStart, end := EnvelopeTimes(pad, 1, tc.dur)
		if releaseStart < decayEnd {
			t.Errorf("%+v: release start %v precedes decay end %v", tc, releaseStart, decayEnd)
		}
		if end < releaseStart {
			t.Errorf("%+v: end %v precedes release start %v", tc, end, releaseStart)
		}
		if !near(end, 1+tc.dur) {
			t.Errorf("%+v: envelope ends at %v, want %v", tc, end, 1+tc.dur)
		}

		c, err := Build(Offline(48000), nil, Request{Pad: pad, Sample: oneSecond(), When: 1})
		if err != nil {
			t.Fatalf("%+v: %v", tc, err)
		}
		if !near(c.Stop, 1+tc.dur) {
			t.Errorf("%+v: stop = %v, want %v", tc, c.Stop, 1+tc.dur)
		}
		if g := c.Gain.ValueAt(c.Stop - 1e-6); g > 1e-3 {
			t.Errorf("%+v: gain just before stop = %v, want about 0", tc, g)
		}
	}
}

func TestDecayToSustainLevel(t *testing.T) {
	pad := model.Pad{SampleID: "s", End: 1, Attack: 0.1, Decay: 0.2, Sustain: 0.5, Release: 0.1, Volume: 1, Cutoff: 1000}
	c, err := Build(Offline(48000), nil, Request{Pad: pad, Sample: oneSecond()})
	if err != nil {
		t.Fatal(err)
	}
	if g := c.Gain.ValueAt(0.2); !near(g, 0.75) {
		t.Fatalf("mid decay gain = %v, want 0.75", g)
	}
	if g := c.Gain.ValueAt(0.5); !near(g, 0.5) {
		t.Fatalf("sustain gain = %v, want 0.5", g)
	}
	if g := c.Gain.ValueAt(0.95); !near(g, 0.25) {
		t.Fatalf("mid release gain = %v, want 0.25", g)
	}
}

func TestLoopingEnvelopeHasNoRelease(t *testing.T) {
	pad := model.Pad{SampleID: "s", End: 0.25, Attack: 0.01, Decay: 0.1, Sustain: 0.6, Release: 0.2, Volume: 1, Cutoff: 500, FilterEnv: 1}
	c, err := Build(Offline(48000), nil, Request{Pad: pad, Sample: oneSecond(), Looping: true})
	if err != nil {
		t.Fatal(err)
	}
	if !math.IsInf(c.Stop, 1) || !c.Loop {
		t.Fatalf("looping chain should not stop, got %v", c.Stop)
	}
	if g := c.Gain.ValueAt(100); !near(g, 0.6) {
		t.Fatalf("held gain = %v, want 0.6", g)
	}
	if f := c.Filter.Cutoff.ValueAt(100); f <= 500 {
		t.Fatalf("looping filter should hold the sustain cutoff above base, got %v", f)
	}
}

func TestFilterEnvelopeBounds(t *testing.T) {
	cases := []struct {
		name      string
		cutoff    float64
		env       float64
		wantPeak  float64
		direction float64
	}{
		{"opening", 1000, 1, 1000 + 0.8*(20000-1000), 1},
		{"half opening", 1000, 0.5, 1000 + 0.5*0.8*(20000-1000), 1},
		{"closing", 5000, -1, 5000 - 0.8*(5000-20), -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			pad := model.Pad{SampleID: "s", End: 1, Attack: 0.1, Sustain: 1, Release: 0.1, Volume: 1, Cutoff: tc.cutoff, FilterEnv: tc.env}
			c, err := Build(Offline(48000), nil, Request{Pad: pad, Sample: oneSecond()})
			if err != nil {
				t.Fatal(err)
			}
			peak := c.Filter.Cutoff.ValueAt(0.1)
			if !near(peak, tc.wantPeak) {
				t.Fatalf("peak cutoff = %v, want %v", peak, tc.wantPeak)
			}
			if peak > 20000 || peak < 20 {
				t.Fatalf("peak %v outside audible range", peak)
			}
			if end := c.Filter.Cutoff.ValueAt(1); !near(end, tc.cutoff) {
				t.Fatalf("cutoff at end = %v, want base %v", end, tc.cutoff)
			}
		})
	}
}

func TestReversedUsesReverser(t *testing.T) {
	rev := &countingReverser{}
	pad := model.Pad{SampleID: "s", Start: 0.2, End: 0.6, Reversed: true, Sustain: 1, Volume: 1, Cutoff: 20000}
	c, err := Build(Offline(48000), rev, Request{Pad: pad, Sample: oneSecond()})
	if err != nil {
		t.Fatal(err)
	}
	if rev.calls != 1 {
		t.Fatalf("reverser calls = %d, want 1", rev.calls)
	}
	if c.Offset != 0 || !near(c.Length, 0.4) || len(c.Source[0]) != 400 {
		t.Fatalf("reversed chain should read a standalone region from 0: offset=%v length=%v", c.Offset, c.Length)
	}
}

func TestBuildRejectsInvalidPads(t *testing.T) {
	smp := oneSecond()
	cases := []struct {
		name string
		pad  model.Pad
		smp  *model.Sample
		want error
	}{
		{"no sample", model.Pad{End: 0.5}, smp, ErrNoSample},
		{"missing buffer", model.Pad{SampleID: "s", End: 0.5}, nil, ErrNoSample},
		{"empty region", model.Pad{SampleID: "s", Start: 0.3, End: 0.3}, smp, ErrEmptyRegion},
		{"inverted region", model.Pad{SampleID: "s", Start: 0.5, End: 0.1}, smp, ErrEmptyRegion},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Build(Offline(48000), nil, Request{Pad: tc.pad, Sample: tc.smp})
			if !errors.Is(err, tc.want) {
				t.Fatalf("err = %v, want %v", err, tc.want)
			}
		})
	}
}

func TestLiveTargetNeverStartsInThePast(t *testing.T) {
	pad := model.Pad{SampleID: "s", End: 0.5, Sustain: 1, Volume: 1, Cutoff: 20000}
	c, err := Build(Live(44100, 10), nil, Request{Pad: pad, Sample: oneSecond(), When: 9.9})
	if err != nil {
		t.Fatal(err)
	}
	if c.Start != 10 {
		t.Fatalf("start = %v, want 10", c.Start)
	}
	c, err = Build(Offline(44100), nil, Request{Pad: pad, Sample: oneSecond(), When: 9.9})
	if err != nil {
		t.Fatal(err)
	}
	if c.Start != 9.9 {
		t.Fatalf("offline start = %v, want 9.9", c.Start)
	}
}

func TestTuneScalesDuration(t *testing.T) {
	pad := model.Pad{SampleID: "s", End: 1, Tune: 12}
	if d := PlaybackDuration(pad, oneSecond()); !near(d, 0.5) {
		t.Fatalf("duration = %v, want 0.5", d)
	}
}
