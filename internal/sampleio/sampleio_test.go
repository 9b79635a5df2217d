package sampleio

import (
	"bytes"
	"encoding/binary"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// pcm16 builds a canonical 16-bit PCM WAV file.
func pcm16(rate, channels int, samples []int16) []byte {
	var b bytes.Buffer
	dataSize := len(samples) * 2
	b.WriteString("RIFF")
	binary.Write(&b, binary.LittleEndian, uint32(36+dataSize))
	b.WriteString("WAVEfmt ")
	binary.Write(&b, binary.LittleEndian, uint32(16))
	binary.Write(&b, binary.LittleEndian, uint16(1))
	binary.Write(&b, binary.LittleEndian, uint16(channels))
	binary.Write(&b, binary.LittleEndian, uint32(rate))
	binary.Write(&b, binary.LittleEndian, uint32(rate*channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(channels*2))
	binary.Write(&b, binary.LittleEndian, uint16(16))
	b.WriteString("data")
	binary.Write(&b, binary.LittleEndian, uint32(dataSize))
	binary.Write(&b, binary.LittleEndian, samples)
	return b.Bytes()
}

func TestDecodeMonoWAV(t *testing.T) {
	s, err := Decode("kick", "kit/Kick 01.wav", bytes.NewReader(pcm16(22050, 1, []int16{0, 16384, -16384, 0})))
	if err != nil {
		t.Fatal(err)
	}
	if s.ID != "kick" || s.Name != "Kick 01" || s.SampleRate != 22050 {
		t.Fatalf("sample = %+v", s)
	}
	if s.Channels() != 1 || s.Frames() != 4 {
		t.Fatalf("channels/frames = %d/%d", s.Channels(), s.Frames())
	}
	// about half of full scale
	d := s.Data[0]
	if d[0] != 0 || d[1] < 0.45 || d[1] > 0.55 || d[2] != -d[1] || d[3] != 0 {
		t.Errorf("frames = %v", d)
	}
}

func TestDecodeStereoWAVBySniffing(t *testing.T) {
	s, err := Decode("hat", "upload", bytes.NewReader(pcm16(44100, 2, []int16{16384, -16384, 0, 8192})))
	if err != nil {
		t.Fatal(err)
	}
	if s.Channels() != 2 || s.Frames() != 2 {
		t.Fatalf("channels/frames = %d/%d", s.Channels(), s.Frames())
	}
	l, r := s.Data[0], s.Data[1]
	if l[0] <= 0 || r[0] != -l[0] || l[1] != 0 || r[1] != l[0]/2 {
		t.Fatalf("data = %v", s.Data)
	}
}

func TestDecodeFailuresWrapErrDecode(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"corrupt.wav", []byte("RIFF....WAVEjunk")},
		{"notes.txt", []byte("hello")},
		{"empty.wav", pcm16(44100, 1, nil)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Decode("x", tt.name, bytes.NewReader(tt.data)); !errors.Is(err, ErrDecode) {
				t.Fatalf("err = %v, want ErrDecode", err)
			}
		})
	}
}

func TestLoadFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "snare.wav")
	if err := os.WriteFile(path, pcm16(8000, 1, []int16{100, 200, 300}), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load("snare", path)
	if err != nil {
		t.Fatal(err)
	}
	if s.Frames() != 3 || s.Name != "snare" {
		t.Fatalf("loaded %+v", s)
	}
	if _, err := Load("x", filepath.Join(t.TempDir(), "missing.wav")); err == nil {
		t.Fatal("missing file should fail")
	}
}
