package scheduler

import (
	"sort"

	"github.com/cbegin/padseq-go/internal/model"
)

// Span is one arrangement step laid out on the timeline.
type Span struct {
	Step       int
	Start      float64
	Duration   float64
	Repeats    int
	PatternIDs []string
}

// Timeline lays out the song steps back to back from 0. Steps with no
// resolvable pattern take no time.
func Timeline(snap *model.Snapshot) []Span {
	var out []Span
	t := 0.0
	for i, st := range snap.Song {
		d := snap.StepDuration(st)
		if d <= 0 {
			continue
		}
		span := Span{Step: i, Start: t, Duration: d, Repeats: st.Repeats}
		for _, p := range snap.StepPatterns(st) {
			span.PatternIDs = append(span.PatternIDs, p.ID)
		}
		out = append(out, span)
		t += d
	}
	return out
}

// Walk returns every hit of the arrangement in time order, starting at 0.
// With onlyPattern set, only that pattern's occurrences are returned; the
// timeline itself is unchanged, so stems line up with the mix.
func Walk(snap *model.Snapshot, onlyPattern string) []HitEvent {
	bd := model.BeatDuration(snap.Tempo)
	if bd <= 0 {
		return nil
	}
	var out []HitEvent
	for pass, span := range Timeline(snap) {
		st := snap.Song[span.Step]
		end := span.Start + span.Duration
		for _, p := range snap.StepPatterns(st) {
			if onlyPattern != "" && p.ID != onlyPattern {
				continue
			}
			pd := p.Duration(snap.Tempo)
			if pd <= 0 {
				continue
			}
			for i := 0; span.Start+float64(i)*pd < end; i++ {
				for j, h := range p.Hits {
					t := span.Start + float64(i)*pd + h.BeatOffset*bd
					if t >= end {
						continue
					}
					out = append(out, HitEvent{
						PatternID: p.ID,
						HitID:     hitID(h, j),
						PadID:     h.PadID,
						Time:      t,
						Pass:      pass,
						Iteration: i,
					})
				}
			}
		}
	}
	sort.SliceStable(out, func(a, b int) bool { return out[a].Time < out[b].Time })
	return out
}
