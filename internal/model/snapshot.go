package model

import "strconv"

// Snapshot is a read-only view of project content as seen by the scheduler
// and the offline renderer. Lookups tolerate missing ids.
type Snapshot struct {
	Tempo    float64
	Pads     []Pad
	Patterns []Pattern
	Song     []SongStep
	Samples  map[string]*Sample
}

func (s *Snapshot) Pad(id string) (Pad, bool) {
	for i := range s.Pads {
		if s.Pads[i].ID == id {
			return s.Pads[i], true
		}
	}
	return Pad{}, false
}

func (s *Snapshot) Pattern(id string) (*Pattern, bool) {
	for i := range s.Patterns {
		if s.Patterns[i].ID == id {
			return &s.Patterns[i], true
		}
	}
	return nil, false
}

func (s *Snapshot) Sample(id string) (*Sample, bool) {
	if id == "" || s.Samples == nil {
		return nil, false
	}
	smp, ok := s.Samples[id]
	return smp, ok && smp != nil
}

// StepPatterns resolves the active patterns of a step, skipping unknown ids
// and duplicates.
func (s *Snapshot) StepPatterns(step SongStep) []*Pattern {
	out := make([]*Pattern, 0, len(step.ActivePatternIDs))
	seen := make(map[string]bool, len(step.ActivePatternIDs))
	for _, id := range step.ActivePatternIDs {
		if seen[id] {
			continue
		}
		seen[id] = true
		if p, ok := s.Pattern(id); ok {
			out = append(out, p)
		}
	}
	return out
}

// StepDuration is repeats × the longest active pattern. It returns 0 when no
// active pattern resolves.
func (s *Snapshot) StepDuration(step SongStep) float64 {
	var longest float64
	for _, p := range s.StepPatterns(step) {
		if d := p.Duration(s.Tempo); d > longest {
			longest = d
		}
	}
	repeats := step.Repeats
	if repeats < 1 {
		repeats = 1
	}
	return float64(repeats) * longest
}

// TotalDuration sums every step of the arrangement.
func (s *Snapshot) TotalDuration() float64 {
	var total float64
	for _, st := range s.Song {
		total += s.StepDuration(st)
	}
	return total
}

// Clone returns a copy whose slices can be mutated without affecting s.
// Samples are shared; they are immutable.
func (s *Snapshot) Clone() *Snapshot {
	out := &Snapshot{
		Tempo:    s.Tempo,
		Pads:     append([]Pad(nil), s.Pads...),
		Patterns: make([]Pattern, len(s.Patterns)),
		Song:     make([]SongStep, len(s.Song)),
		Samples:  s.Samples,
	}
	for i, p := range s.Patterns {
		p.Hits = append([]Hit(nil), p.Hits...)
		out.Patterns[i] = p
	}
	for i, st := range s.Song {
		st.ActivePatternIDs = append([]string(nil), st.ActivePatternIDs...)
		out.Song[i] = st
	}
	return out
}

// Normalize enforces the structural invariants the scheduler assumes: at
// least one pattern and one step, positive bars and repeats, and hits inside
// their pattern.
func (s *Snapshot) Normalize() {
	if len(s.Patterns) == 0 {
		s.Patterns = []Pattern{{ID: "pattern-1", Name: "Pattern 1", Bars: 1}}
	}
	for i := range s.Patterns {
		p := &s.Patterns[i]
		if p.ID == "" {
			p.ID = "pattern-" + strconv.Itoa(i+1)
		}
		if p.Bars < 1 {
			p.Bars = 1
		}
		beats := p.Beats()
		kept := p.Hits[:0]
		for _, h := range p.Hits {
			if h.BeatOffset >= 0 && h.BeatOffset < beats {
				kept = append(kept, h)
			}
		}
		p.Hits = kept
	}
	if len(s.Song) == 0 {
		s.Song = []SongStep{{ActivePatternIDs: []string{s.Patterns[0].ID}, Repeats: 1}}
	}
	for i := range s.Song {
		st := &s.Song[i]
		if st.Repeats < 1 {
			st.Repeats = 1
		}
		if len(st.ActivePatternIDs) == 0 {
			st.ActivePatternIDs = []string{s.Patterns[0].ID}
		}
		if st.ArmedPatternID == "" {
			st.ArmedPatternID = st.ActivePatternIDs[0]
		}
	}
}
