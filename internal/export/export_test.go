package export

import (
	"archive/zip"
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"math/rand"
	"strings"
	"testing"

	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/padseq-go/internal/model"
)

func testSong() *model.Snapshot {
	snap := &model.Snapshot{
		Tempo: 120,
		Pads:  []model.Pad{model.DefaultPad("kick"), model.DefaultPad("snare")},
		Patterns: []model.Pattern{
			{ID: "a", Name: "Main Beat!", Bars: 1, Hits: []model.Hit{{ID: "k", PadID: "kick", BeatOffset: 0}, {ID: "s", PadID: "snare", BeatOffset: 1}}},
			{ID: "b", Name: "Main Beat", Bars: 1, Hits: []model.Hit{{ID: "k2", PadID: "kick", BeatOffset: 2}}},
			{ID: "c", Name: "", Bars: 1},
		},
		Song: []model.SongStep{
			{ActivePatternIDs: []string{"a"}, Repeats: 2},
			{ActivePatternIDs: []string{"a", "b"}, Repeats: 1},
		},
	}
	snap.Normalize()
	return snap
}

func TestStemFileName(t *testing.T) {
	used := make(map[string]int)
	tests := []struct {
		name, fallback, want string
	}{
		{"Main Beat!", "a", "MainBeat_Stem.wav"},
		{"Main-Beat", "b", "MainBeat2_Stem.wav"},
		{"", "pattern 3", "pattern3_Stem.wav"},
		{"***", "", "Pattern_Stem.wav"},
		{"Fill ü", "x", "Fill_Stem.wav"},
	}
	for _, tt := range tests {
		if got := StemFileName(tt.name, tt.fallback, used); got != tt.want {
			t.Errorf("StemFileName(%q, %q) = %q, want %q", tt.name, tt.fallback, got, tt.want)
		}
	}
}

func TestMetadataTimeline(t *testing.T) {
	m := NewMetadata("demo", testSong(), 44100, map[string]string{"a": "MainBeat_Stem.wav"})
	if m.TotalDuration != 6 {
		t.Fatalf("total = %v, want 6", m.TotalDuration)
	}
	if len(m.Steps) != 2 || m.Steps[0].Start != 0 || m.Steps[1].Start != 4 || m.Steps[1].Duration != 2 {
		t.Fatalf("steps = %+v", m.Steps)
	}
	if len(m.Patterns) != 3 || m.Patterns[0].Stem != "MainBeat_Stem.wav" || m.Patterns[1].Stem != "" {
		t.Fatalf("patterns = %+v", m.Patterns)
	}
	if m.Pads[0].Note != 36 || m.Pads[1].Note != 37 {
		t.Fatalf("pads = %+v", m.Pads)
	}
}

func TestMIDIHasOneTrackPerPlayingPattern(t *testing.T) {
	data, err := MIDI(testSong())
	if err != nil {
		t.Fatal(err)
	}
	sm, err := smf.ReadFrom(bytes.NewReader(data))
	if err != nil {
		t.Fatal(err)
	}
	// tempo track + a + b; c never plays
	if len(sm.Tracks) != 3 {
		t.Fatalf("tracks = %d, want 3", len(sm.Tracks))
	}
	var ch, key, vel uint8
	var ticks []uint32
	var abs uint32
	for _, ev := range sm.Tracks[1] {
		abs += ev.Delta
		if ev.Message.GetNoteOn(&ch, &key, &vel) && vel > 0 {
			if ch != DrumChannel {
				t.Fatalf("channel = %d", ch)
			}
			ticks = append(ticks, abs)
		}
	}
	// a plays three times: beats 0,1 / 4,5 / 8,9
	want := []uint32{0, 960, 3840, 4800, 7680, 8640}
	if len(ticks) != len(want) {
		t.Fatalf("note-ons at %v, want %v", ticks, want)
	}
	for i := range want {
		if ticks[i] != want[i] {
			t.Fatalf("note-ons at %v, want %v", ticks, want)
		}
	}
}

func TestWriteBundle(t *testing.T) {
	snap := testSong()
	var buf bytes.Buffer
	err := Write(&buf, Bundle{
		SampleRate: 44100,
		Snapshot:   snap,
		Stems:      []string{"a", "b"},
		Render: func(id string) ([]byte, error) {
			return []byte("wav-" + id), nil
		},
	})
	if err != nil {
		t.Fatal(err)
	}
	zr, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len()))
	if err != nil {
		t.Fatal(err)
	}
	files := make(map[string][]byte)
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatal(err)
		}
		b, _ := io.ReadAll(rc)
		rc.Close()
		files[f.Name] = b
	}
	for _, name := range []string{"MainBeat_Stem.wav", "MainBeat2_Stem.wav", "metadata.json", "arrangement.mid", "README.txt"} {
		if _, ok := files[name]; !ok {
			t.Errorf("missing %s in %v", name, zr.File)
		}
	}
	if string(files["MainBeat2_Stem.wav"]) != "wav-b" {
		t.Errorf("stem b = %q", files["MainBeat2_Stem.wav"])
	}

	var meta Metadata
	if err := json.Unmarshal(files["metadata.json"], &meta); err != nil {
		t.Fatal(err)
	}
	if meta.Title != "padseq export" || meta.Tempo != 120 || meta.Patterns[1].Stem != "MainBeat2_Stem.wav" {
		t.Errorf("metadata = %+v", meta)
	}

	readme := string(files["README.txt"])
	for _, want := range []string{"PADSEQ EXPORT", "MainBeat_Stem.wav", "a, b", "36  kick"} {
		if !strings.Contains(readme, want) {
			t.Errorf("README missing %q:\n%s", want, readme)
		}
	}
}

type failingWriter struct{ after int }

func (w *failingWriter) Write(p []byte) (int, error) {
	if w.after <= 0 {
		return 0, errWrite
	}
	w.after -= len(p)
	return len(p), nil
}

var errWrite = errors.New("disk full")

func TestWriteFailureAborts(t *testing.T) {
	big := make([]byte, 1<<16)
	rand.New(rand.NewSource(1)).Read(big)
	render := func(string) ([]byte, error) { return big, nil }
	err := Write(&failingWriter{after: 100}, Bundle{Snapshot: testSong(), Stems: []string{"a"}, Render: render})
	if !errors.Is(err, errWrite) {
		t.Fatalf("err = %v, want disk full", err)
	}

	errRender := errors.New("render failed")
	var buf bytes.Buffer
	err = Write(&buf, Bundle{Snapshot: testSong(), Stems: []string{"a", "b"}, Render: func(id string) ([]byte, error) {
		if id == "b" {
			return nil, errRender
		}
		return []byte("ok"), nil
	}})
	if !errors.Is(err, errRender) {
		t.Fatalf("err = %v, want render failure", err)
	}
	if _, err := zip.NewReader(bytes.NewReader(buf.Bytes()), int64(buf.Len())); err == nil {
		t.Fatal("aborted archive should not open")
	}
	if err := Write(io.Discard, Bundle{}); err == nil {
		t.Fatal("missing snapshot should fail")
	}
}
