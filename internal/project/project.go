// Package project loads a YAML project file into a model snapshot: tempo,
// samples, pads, patterns, the song and master effects.
package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	intfx "github.com/cbegin/padseq-go/internal/effects"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/sampleio"
)

// Document is the on-disk layout.
type Document struct {
	Tempo    float64      `yaml:"tempo"`
	Samples  []SampleRef  `yaml:"samples"`
	Pads     []PadDoc     `yaml:"pads"`
	Patterns []PatternDoc `yaml:"patterns"`
	Song     []StepDoc    `yaml:"song"`
	Effects  []intfx.Spec `yaml:"effects,omitempty"`
}

type SampleRef struct {
	ID   string `yaml:"id"`
	Path string `yaml:"path"`
}

// PadDoc mirrors model.Pad. Fields left out of the file keep the values of
// model.DefaultPad; an end of 0 means the end of the sample.
type PadDoc struct {
	ID         string  `yaml:"id"`
	Name       string  `yaml:"name,omitempty"`
	Sample     string  `yaml:"sample,omitempty"`
	Start      float64 `yaml:"start,omitempty"`
	End        float64 `yaml:"end,omitempty"`
	Mode       string  `yaml:"mode,omitempty"`
	Loop       bool    `yaml:"loop,omitempty"`
	Tune       int     `yaml:"tune,omitempty"`
	FineTune   float64 `yaml:"fine_tune,omitempty"`
	Reversed   bool    `yaml:"reversed,omitempty"`
	Attack     float64 `yaml:"attack"`
	Decay      float64 `yaml:"decay"`
	Sustain    float64 `yaml:"sustain"`
	Release    float64 `yaml:"release"`
	Filter     string  `yaml:"filter,omitempty"`
	Cutoff     float64 `yaml:"cutoff"`
	Resonance  float64 `yaml:"resonance,omitempty"`
	FilterEnv  float64 `yaml:"filter_env,omitempty"`
	Pan        float64 `yaml:"pan,omitempty"`
	ReverbSend float64 `yaml:"reverb,omitempty"`
	Volume     float64 `yaml:"volume"`
}

func (p *PadDoc) UnmarshalYAML(n *yaml.Node) error {
	def := model.DefaultPad("")
	*p = PadDoc{
		Attack:  def.Attack,
		Decay:   def.Decay,
		Sustain: def.Sustain,
		Release: def.Release,
		Cutoff:  def.Cutoff,
		Volume:  def.Volume,
	}
	type plain PadDoc
	return n.Decode((*plain)(p))
}

type PatternDoc struct {
	ID   string   `yaml:"id"`
	Name string   `yaml:"name,omitempty"`
	Bars int      `yaml:"bars"`
	Hits []HitDoc `yaml:"hits,flow"`
}

type HitDoc struct {
	ID   string  `yaml:"id,omitempty"`
	Pad  string  `yaml:"pad"`
	Beat float64 `yaml:"beat"`
}

type StepDoc struct {
	Patterns []string `yaml:"patterns,flow"`
	Armed    string   `yaml:"armed,omitempty"`
	Repeats  int      `yaml:"repeats"`
}

// Project is a loaded project.
type Project struct {
	Path     string
	Snapshot *model.Snapshot
	Effects  []intfx.Spec
	// Problems lists samples that could not be loaded. Their pads stay
	// unplayable; the rest of the project works.
	Problems []error
}

var ErrInvalid = errors.New("project: invalid document")

// Parse decodes a YAML document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	if doc.Tempo <= 0 {
		return nil, fmt.Errorf("%w: tempo must be positive, got %v", ErrInvalid, doc.Tempo)
	}
	seen := make(map[string]bool)
	for i, p := range doc.Pads {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: pad %d has no id", ErrInvalid, i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("%w: duplicate pad id %q", ErrInvalid, p.ID)
		}
		seen[p.ID] = true
	}
	return &doc, nil
}

// Load reads path, decodes the referenced samples relative to the file and
// returns a normalized snapshot.
func Load(path string) (*Project, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	dir := filepath.Dir(path)
	samples := make(map[string]*model.Sample, len(doc.Samples))
	var problems []error
	for _, ref := range doc.Samples {
		p := ref.Path
		if !filepath.IsAbs(p) {
			p = filepath.Join(dir, p)
		}
		s, err := sampleio.Load(ref.ID, p)
		if err != nil {
			problems = append(problems, fmt.Errorf("sample %q: %w", ref.ID, err))
			continue
		}
		samples[ref.ID] = s
	}
	return &Project{
		Path:     path,
		Snapshot: doc.Snapshot(samples),
		Effects:  doc.Effects,
		Problems: problems,
	}, nil
}

// Snapshot converts the document into a normalized model snapshot over the
// given decoded samples. Hits without an id get a fresh one.
func (d *Document) Snapshot(samples map[string]*model.Sample) *model.Snapshot {
	snap := &model.Snapshot{Tempo: d.Tempo, Samples: samples}
	for _, pd := range d.Pads {
		snap.Pads = append(snap.Pads, pd.pad(samples[pd.Sample]))
	}
	for _, p := range d.Patterns {
		pat := model.Pattern{ID: p.ID, Name: p.Name, Bars: p.Bars}
		if pat.Name == "" {
			pat.Name = p.ID
		}
		for _, h := range p.Hits {
			id := h.ID
			if id == "" {
				id = uuid.New().String()
			}
			pat.Hits = append(pat.Hits, model.Hit{ID: id, PadID: h.Pad, BeatOffset: h.Beat, OriginalBeatOffset: h.Beat})
		}
		snap.Patterns = append(snap.Patterns, pat)
	}
	for _, st := range d.Song {
		snap.Song = append(snap.Song, model.SongStep{
			ActivePatternIDs: append([]string(nil), st.Patterns...),
			ArmedPatternID:   st.Armed,
			Repeats:          st.Repeats,
		})
	}
	snap.Normalize()
	return snap
}

func (p PadDoc) pad(s *model.Sample) model.Pad {
	pad := model.Pad{
		ID:         p.ID,
		Name:       p.Name,
		SampleID:   p.Sample,
		Start:      p.Start,
		End:        p.End,
		PlayMode:   model.PlayPoly,
		Loop:       p.Loop,
		Tune:       p.Tune,
		FineTune:   p.FineTune,
		Reversed:   p.Reversed,
		Attack:     p.Attack,
		Decay:      p.Decay,
		Sustain:    p.Sustain,
		Release:    p.Release,
		Filter:     model.FilterLowpass,
		Cutoff:     p.Cutoff,
		Resonance:  p.Resonance,
		FilterEnv:  p.FilterEnv,
		Pan:        p.Pan,
		ReverbSend: p.ReverbSend,
		Volume:     p.Volume,
	}
	if pad.Name == "" {
		pad.Name = p.ID
	}
	if model.PlayMode(p.Mode) == model.PlayMono {
		pad.PlayMode = model.PlayMono
	}
	switch ft := model.FilterType(p.Filter); ft {
	case model.FilterHighpass, model.FilterBandpass:
		pad.Filter = ft
	}
	if pad.End <= 0 && s != nil {
		pad.End = s.Duration()
	}
	return pad
}
