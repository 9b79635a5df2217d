// Package export writes the stems bundle: one WAV per pattern, arrangement
// metadata, a MIDI rendition of the hits and a usage note, zipped together.
package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/template"
	"unicode"

	"github.com/Masterminds/sprig"

	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/scheduler"
)

// Bundle is everything that goes into the archive. Stems are rendered one
// at a time while the archive is written, so only one is held in memory.
type Bundle struct {
	Title      string
	SampleRate int
	Snapshot   *model.Snapshot
	// Stems lists the patterns to render, in archive order.
	Stems []string
	// Render returns the encoded WAV of one pattern.
	Render func(patternID string) ([]byte, error)
}

// Metadata is the metadata.json document.
type Metadata struct {
	Title         string            `json:"title"`
	Tempo         float64           `json:"tempo"`
	TotalDuration float64           `json:"totalDuration"`
	SampleRate    int               `json:"sampleRate"`
	Steps         []StepMeta        `json:"steps"`
	Patterns      []PatternMeta     `json:"patterns"`
	Pads          []PadMeta         `json:"pads"`
	Files         map[string]string `json:"files"`
}

type StepMeta struct {
	Index    int      `json:"index"`
	Start    float64  `json:"start"`
	Duration float64  `json:"duration"`
	Repeats  int      `json:"repeats"`
	Patterns []string `json:"patterns"`
}

type PatternMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Bars int    `json:"bars"`
	Hits int    `json:"hits"`
	Stem string `json:"stem,omitempty"`
}

type PadMeta struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Note uint8  `json:"midiNote"`
}

// StemFileName strips everything but letters and digits from name and
// appends _Stem.wav. used tracks names already taken; repeats get a
// numeric suffix.
func StemFileName(name, fallback string, used map[string]int) string {
	base := strip(name)
	if base == "" {
		base = strip(fallback)
	}
	if base == "" {
		base = "Pattern"
	}
	used[base]++
	if n := used[base]; n > 1 {
		base += strconv.Itoa(n)
	}
	return base + "_Stem.wav"
}

func strip(s string) string {
	return strings.Map(func(r rune) rune {
		if r < unicode.MaxASCII && (unicode.IsLetter(r) || unicode.IsDigit(r)) {
			return r
		}
		return -1
	}, s)
}

// NewMetadata describes the arrangement of snap. stems maps pattern ids to
// their file names in the bundle.
func NewMetadata(title string, snap *model.Snapshot, sampleRate int, stems map[string]string) Metadata {
	m := Metadata{
		Title:         title,
		Tempo:         snap.Tempo,
		TotalDuration: snap.TotalDuration(),
		SampleRate:    sampleRate,
		Files:         map[string]string{"midi": midiFile, "readme": readmeFile},
	}
	for _, span := range scheduler.Timeline(snap) {
		m.Steps = append(m.Steps, StepMeta{
			Index:    span.Step,
			Start:    span.Start,
			Duration: span.Duration,
			Repeats:  span.Repeats,
			Patterns: span.PatternIDs,
		})
	}
	for _, p := range snap.Patterns {
		m.Patterns = append(m.Patterns, PatternMeta{ID: p.ID, Name: p.Name, Bars: p.Bars, Hits: len(p.Hits), Stem: stems[p.ID]})
	}
	for i, p := range snap.Pads {
		m.Pads = append(m.Pads, PadMeta{ID: p.ID, Name: p.Name, Note: padNote(i)})
	}
	return m
}

const (
	metadataFile = "metadata.json"
	midiFile     = "arrangement.mid"
	readmeFile   = "README.txt"
)

// Write streams the bundle to w. Stem failures abort the archive before
// its directory is written, so a partial file never opens as a complete
// bundle.
func Write(w io.Writer, b Bundle) error {
	if b.Snapshot == nil {
		return fmt.Errorf("export: no snapshot")
	}
	if len(b.Stems) > 0 && b.Render == nil {
		return fmt.Errorf("export: no stem renderer")
	}
	title := b.Title
	if title == "" {
		title = "padseq export"
	}
	used := make(map[string]int)
	names := make(map[string]string, len(b.Stems))
	for _, id := range b.Stems {
		name := id
		if p, ok := b.Snapshot.Pattern(id); ok {
			name = p.Name
		}
		names[id] = StemFileName(name, id, used)
	}

	meta := NewMetadata(title, b.Snapshot, b.SampleRate, names)
	metaJSON, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("export: metadata: %w", err)
	}
	mid, err := MIDI(b.Snapshot)
	if err != nil {
		return fmt.Errorf("export: midi: %w", err)
	}
	readme, err := Readme(meta)
	if err != nil {
		return fmt.Errorf("export: readme: %w", err)
	}

	zw := zip.NewWriter(w)
	for _, id := range b.Stems {
		data, err := b.Render(id)
		if err != nil {
			return fmt.Errorf("export: stem %q: %w", id, err)
		}
		if err := add(zw, names[id], data); err != nil {
			return err
		}
	}
	if err := add(zw, metadataFile, metaJSON); err != nil {
		return err
	}
	if err := add(zw, midiFile, mid); err != nil {
		return err
	}
	if err := add(zw, readmeFile, []byte(readme)); err != nil {
		return err
	}
	return zw.Close()
}

func add(zw *zip.Writer, name string, data []byte) error {
	f, err := zw.Create(name)
	if err != nil {
		return fmt.Errorf("export: %s: %w", name, err)
	}
	if _, err := io.Copy(f, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("export: %s: %w", name, err)
	}
	return nil
}

var readmeTemplate = template.Must(template.New("readme").Funcs(sprig.TxtFuncMap()).Parse(`{{ .Title | upper }}
{{ repeat (len .Title) "=" }}

Tempo {{ .Tempo }} BPM, {{ printf "%.2f" .TotalDuration }} s, {{ .SampleRate }} Hz, 32-bit float stereo.

Stems
-----
Every stem starts at 0:00 and runs the full length of the song, so drop
them all at the start of a project and they line up. Parts of the song
where a pattern does not play are silent in its stem.
{{ range .Patterns }}{{ if .Stem }}
  {{ .Stem }}  {{ .Name }} ({{ .Bars }} bar{{ if ne .Bars 1 }}s{{ end }}, {{ .Hits }} hit{{ if ne .Hits 1 }}s{{ end }}){{ end }}{{ end }}

Arrangement
-----------
{{ range .Steps }}  {{ add .Index 1 }}. {{ printf "%7.2f" .Start }} s  x{{ .Repeats }}  {{ join ", " .Patterns }}
{{ end }}
{{ .Files.midi }} has one track per pattern on the drum channel:
{{ range .Pads }}  {{ .Note }}  {{ .Name | default .ID }}
{{ end }}`))

// Readme renders the usage note.
func Readme(m Metadata) (string, error) {
	var b strings.Builder
	if err := readmeTemplate.Execute(&b, m); err != nil {
		return "", err
	}
	return b.String(), nil
}
