// Package sampleio decodes audio files into immutable model samples.
package sampleio

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep"
	"github.com/gopxl/beep/mp3"
	"github.com/gopxl/beep/wav"

	"github.com/cbegin/padseq-go/internal/model"
)

// ErrDecode wraps every decoding failure. The pad using the sample stays
// unplayable; nothing else is affected.
var ErrDecode = errors.New("sampleio: decode failed")

const streamChunk = 1024

// Decode reads a WAV or MP3 stream. The format is taken from name's
// extension, falling back to sniffing the first bytes.
func Decode(id, name string, r io.Reader) (*model.Sample, error) {
	br := bufio.NewReader(r)
	var (
		s      beep.StreamSeekCloser
		format beep.Format
		err    error
	)
	switch kind(name, br) {
	case "wav":
		s, format, err = wav.Decode(br)
	case "mp3":
		s, format, err = mp3.Decode(io.NopCloser(br))
	default:
		return nil, fmt.Errorf("%w: %s: unsupported format", ErrDecode, name)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	defer s.Close()

	channels := format.NumChannels
	if channels < 1 || channels > 2 {
		channels = 2
	}
	data := make([][]float32, channels)
	if n := s.Len(); n > 0 {
		for c := range data {
			data[c] = make([]float32, 0, n)
		}
	}
	buf := make([][2]float64, streamChunk)
	for {
		n, ok := s.Stream(buf)
		for _, fr := range buf[:n] {
			for c := range data {
				data[c] = append(data[c], float32(fr[c]))
			}
		}
		if !ok {
			break
		}
	}
	if err := s.Err(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, name, err)
	}
	if len(data[0]) == 0 {
		return nil, fmt.Errorf("%w: %s: no audio frames", ErrDecode, name)
	}
	return &model.Sample{
		ID:         id,
		Name:       strings.TrimSuffix(filepath.Base(name), filepath.Ext(name)),
		SampleRate: int(format.SampleRate),
		Data:       data,
	}, nil
}

// Load decodes the file at path.
func Load(id, path string) (*model.Sample, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return Decode(id, path, f)
}

func kind(name string, br *bufio.Reader) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".wav", ".wave":
		return "wav"
	case ".mp3":
		return "mp3"
	}
	head, _ := br.Peek(12)
	switch {
	case len(head) >= 12 && bytes.Equal(head[0:4], []byte("RIFF")) && bytes.Equal(head[8:12], []byte("WAVE")):
		return "wav"
	case len(head) >= 3 && bytes.Equal(head[0:3], []byte("ID3")):
		return "mp3"
	case len(head) >= 2 && head[0] == 0xFF && head[1]&0xE0 == 0xE0:
		return "mp3"
	}
	return ""
}
