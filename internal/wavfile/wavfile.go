// Package wavfile reads and writes the 32-bit IEEE float WAV layout used for
// mixdowns and stems: RIFF, an 18-byte fmt chunk, then data, for a 46-byte
// header.
package wavfile

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
)

const (
	HeaderSize    = 46
	FormatFloat   = 3
	BitsPerSample = 32
	fmtChunkSize  = 18
)

var ErrFormat = errors.New("wavfile: not a float32 WAV")

// Header holds the fields of a float WAV header.
type Header struct {
	Channels   int
	SampleRate int
	Bits       int
	Format     int
	// DataSize is the byte length of the data chunk.
	DataSize int
}

// Frames is the number of sample frames in the data chunk.
func (h Header) Frames() int {
	if h.Channels <= 0 {
		return 0
	}
	return h.DataSize / (h.Channels * h.Bits / 8)
}

// Encode writes interleaved samples as a complete WAV file. Samples are
// clamped to [-1, 1].
func Encode(samples []float32, sampleRate, channels int) []byte {
	out := make([]byte, HeaderSize+len(samples)*4)
	putHeader(out, sampleRate, channels, len(samples)*4)
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[HeaderSize+i*4:], math.Float32bits(clamp(s)))
	}
	return out
}

// WriteHeader writes a header for dataSize bytes of samples.
func WriteHeader(w io.Writer, sampleRate, channels, dataSize int) error {
	var hdr [HeaderSize]byte
	putHeader(hdr[:], sampleRate, channels, dataSize)
	_, err := w.Write(hdr[:])
	return err
}

func putHeader(out []byte, sampleRate, channels, dataSize int) {
	blockAlign := channels * BitsPerSample / 8
	copy(out[0:], "RIFF")
	binary.LittleEndian.PutUint32(out[4:], uint32(HeaderSize-8+dataSize))
	copy(out[8:], "WAVE")
	copy(out[12:], "fmt ")
	binary.LittleEndian.PutUint32(out[16:], fmtChunkSize)
	binary.LittleEndian.PutUint16(out[20:], FormatFloat)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(sampleRate*blockAlign))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], BitsPerSample)
	binary.LittleEndian.PutUint16(out[36:], 0) // cbSize
	copy(out[38:], "data")
	binary.LittleEndian.PutUint32(out[42:], uint32(dataSize))
}

// ReadHeader parses the 46-byte header at the start of r.
func ReadHeader(r io.Reader) (Header, error) {
	var hdr [HeaderSize]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return Header{}, fmt.Errorf("wavfile: read header: %w", err)
	}
	if !bytes.Equal(hdr[0:4], []byte("RIFF")) || !bytes.Equal(hdr[8:12], []byte("WAVE")) ||
		!bytes.Equal(hdr[12:16], []byte("fmt ")) || !bytes.Equal(hdr[38:42], []byte("data")) {
		return Header{}, ErrFormat
	}
	if binary.LittleEndian.Uint32(hdr[16:]) != fmtChunkSize {
		return Header{}, ErrFormat
	}
	h := Header{
		Format:     int(binary.LittleEndian.Uint16(hdr[20:])),
		Channels:   int(binary.LittleEndian.Uint16(hdr[22:])),
		SampleRate: int(binary.LittleEndian.Uint32(hdr[24:])),
		Bits:       int(binary.LittleEndian.Uint16(hdr[34:])),
		DataSize:   int(binary.LittleEndian.Uint32(hdr[42:])),
	}
	if h.Format != FormatFloat || h.Bits != BitsPerSample {
		return h, ErrFormat
	}
	return h, nil
}

// Decode returns the header and samples of a file produced by Encode.
func Decode(data []byte) (Header, []float32, error) {
	h, err := ReadHeader(bytes.NewReader(data))
	if err != nil {
		return h, nil, err
	}
	body := data[HeaderSize:]
	if len(body) < h.DataSize {
		return h, nil, fmt.Errorf("wavfile: data chunk truncated: %d of %d bytes", len(body), h.DataSize)
	}
	out := make([]float32, h.DataSize/4)
	for i := range out {
		out[i] = math.Float32frombits(binary.LittleEndian.Uint32(body[i*4:]))
	}
	return h, out, nil
}

func clamp(s float32) float32 {
	if s > 1 {
		return 1
	}
	if s < -1 {
		return -1
	}
	return s
}
