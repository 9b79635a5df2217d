package model

import (
	"math"
	"testing"
)

func testSample(seconds float64) *Sample {
	frames := int(seconds * 1000)
	return &Sample{ID: "s", SampleRate: 1000, Data: [][]float32{make([]float32, frames)}}
}

func TestSongStepDurationUsesLongestPatternTimesRepeats(t *testing.T) {
	snap := &Snapshot{
		Tempo: 100,
		Patterns: []Pattern{
			{ID: "a", Bars: 2},
			{ID: "b", Bars: 1},
		},
		Song: []SongStep{
			{ActivePatternIDs: []string{"a", "b"}, Repeats: 2},
			{ActivePatternIDs: []string{"b", "missing"}, Repeats: 1},
		},
	}
	// 2 bars at 100 BPM = 8 beats * 0.6s.
	if got := snap.StepDuration(snap.Song[0]); math.Abs(got-2*4.8) > 1e-9 {
		t.Fatalf("step 0 duration = %v, want %v", got, 9.6)
	}
	if got := snap.StepDuration(snap.Song[1]); math.Abs(got-2.4) > 1e-9 {
		t.Fatalf("step 1 duration = %v, want 2.4", got)
	}
	if got := snap.TotalDuration(); math.Abs(got-12) > 1e-9 {
		t.Fatalf("total = %v, want 12", got)
	}
}

func TestStepDurationZeroWhenNothingResolves(t *testing.T) {
	snap := &Snapshot{Tempo: 120, Patterns: []Pattern{{ID: "a", Bars: 1}}}
	if got := snap.StepDuration(SongStep{ActivePatternIDs: []string{"gone"}, Repeats: 3}); got != 0 {
		t.Fatalf("duration = %v, want 0", got)
	}
}

func TestPadPlayable(t *testing.T) {
	smp := testSample(1)
	cases := []struct {
		name string
		pad  Pad
		smp  *Sample
		want bool
	}{
		{"ok", Pad{SampleID: "s", Start: 0, End: 0.5}, smp, true},
		{"no sample id", Pad{Start: 0, End: 0.5}, smp, false},
		{"nil sample", Pad{SampleID: "s", End: 0.5}, nil, false},
		{"reversed bounds", Pad{SampleID: "s", Start: 0.5, End: 0.2}, smp, false},
		{"sub millisecond", Pad{SampleID: "s", Start: 0.1, End: 0.1005}, smp, false},
		{"clamped past end", Pad{SampleID: "s", Start: 0.9995, End: 3}, smp, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.pad.Playable(tc.smp); got != tc.want {
				t.Fatalf("Playable = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestPadRate(t *testing.T) {
	p := Pad{Tune: 12}
	if got := p.Rate(); math.Abs(got-2) > 1e-12 {
		t.Fatalf("rate = %v, want 2", got)
	}
	p = Pad{Tune: -1, FineTune: 100}
	if got := p.Rate(); math.Abs(got-1) > 1e-12 {
		t.Fatalf("rate = %v, want 1", got)
	}
}

func TestNormalizeGuaranteesPatternAndStep(t *testing.T) {
	snap := &Snapshot{Tempo: 120}
	snap.Normalize()
	if len(snap.Patterns) != 1 || len(snap.Song) != 1 {
		t.Fatalf("expected one pattern and one step, got %d/%d", len(snap.Patterns), len(snap.Song))
	}
	if snap.Song[0].ActivePatternIDs[0] != snap.Patterns[0].ID {
		t.Fatalf("step should reference the default pattern")
	}
}

func TestNormalizeDropsOutOfRangeHits(t *testing.T) {
	snap := &Snapshot{
		Tempo: 120,
		Patterns: []Pattern{{ID: "a", Bars: 1, Hits: []Hit{
			{ID: "1", BeatOffset: 0},
			{ID: "2", BeatOffset: 3.99},
			{ID: "3", BeatOffset: 4},
			{ID: "4", BeatOffset: -0.1},
		}}},
	}
	snap.Normalize()
	if n := len(snap.Patterns[0].Hits); n != 2 {
		t.Fatalf("kept %d hits, want 2", n)
	}
}

func TestMemoryStoreAppendEvictsOldest(t *testing.T) {
	store := NewMemoryStore(&Snapshot{Tempo: 120, Patterns: []Pattern{{ID: "a", Bars: 1}}})
	before := store.Snapshot()
	for i := 0; i < 5; i++ {
		if !store.AppendHit("a", Hit{ID: string(rune('a' + i))}, 3) {
			t.Fatalf("append %d rejected", i)
		}
	}
	p, _ := store.Snapshot().Pattern("a")
	if len(p.Hits) != 3 || p.Hits[0].ID != "c" || p.Hits[2].ID != "e" {
		t.Fatalf("unexpected hits after eviction: %#v", p.Hits)
	}
	old, _ := before.Pattern("a")
	if len(old.Hits) != 0 {
		t.Fatalf("earlier snapshot must not change")
	}
	if store.AppendHit("missing", Hit{}, 3) {
		t.Fatalf("append to unknown pattern should fail")
	}
}
