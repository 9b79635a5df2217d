package audio

import (
	"encoding/binary"
	"errors"
	"math"
	"testing"
)

type rampSource struct{ next float32 }

func (r *rampSource) Process(dst []float32) {
	for i := range dst {
		dst[i] = r.next
		r.next += 0.25
	}
}

func TestStreamReaderWritesFloat32LE(t *testing.T) {
	r := NewStreamReader(&rampSource{})
	p := make([]byte, 8*2+3)
	n, err := r.Read(p)
	if err != nil || n != 16 {
		t.Fatalf("Read = %d, %v", n, err)
	}
	for i, want := range []float32{0, 0.25, 0.5, 0.75} {
		got := math.Float32frombits(binary.LittleEndian.Uint32(p[i*4:]))
		if got != want {
			t.Errorf("sample %d = %v, want %v", i, got, want)
		}
	}
	if r.Frames() != 2 {
		t.Errorf("frames = %d", r.Frames())
	}
	if n, _ := r.Read(make([]byte, 7)); n != 0 {
		t.Errorf("short read returned %d bytes", n)
	}
}

func TestStreamReaderWithoutSourceIsSilent(t *testing.T) {
	p := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	if _, err := NewStreamReader(nil).Read(p); err != nil {
		t.Fatal(err)
	}
	for i, b := range p {
		if b != 0 {
			t.Fatalf("byte %d = %d", i, b)
		}
	}
}

func TestHeadlessLifecycle(t *testing.T) {
	src := &rampSource{}
	h := NewHeadless(48000, src)
	if h.State() != Suspended {
		t.Fatalf("new device state = %v", h.State())
	}
	if out := h.Pull(4); out != nil {
		t.Fatalf("suspended device produced audio")
	}
	h.Play()
	if out := h.Pull(4); len(out) != 8 || out[7] != 1.75 {
		t.Fatalf("running device pull = %v", out)
	}

	h.Interrupt()
	if h.State() != Interrupted {
		t.Fatalf("state = %v, want interrupted", h.State())
	}
	h.FailResumes(1)
	if err := h.Resume(); !errors.Is(err, ErrResumeFailed) {
		t.Fatalf("first resume err = %v", err)
	}
	if err := h.Resume(); err != nil || h.State() != Running {
		t.Fatalf("second resume: %v, state %v", err, h.State())
	}

	if err := h.Close(); err != nil {
		t.Fatal(err)
	}
	h.Play()
	if h.State() != Closed {
		t.Fatalf("closed is terminal, got %v", h.State())
	}
	if err := h.Resume(); !errors.Is(err, ErrDeviceClosed) {
		t.Fatalf("resume after close err = %v", err)
	}
}

func TestOpenRejectsUnknownBackend(t *testing.T) {
	if _, err := Open("alsa-direct", 44100, nil); !errors.Is(err, ErrUnknownBackend) {
		t.Fatalf("err = %v", err)
	}
	d, err := Open(BackendHeadless, 44100, nil)
	if err != nil {
		t.Fatal(err)
	}
	if _, ok := d.(*Headless); !ok {
		t.Fatalf("headless backend returned %T", d)
	}
}

func TestStateStrings(t *testing.T) {
	for s, want := range map[State]string{Running: "running", Suspended: "suspended", Interrupted: "interrupted", Closed: "closed", State(9): "State(9)"} {
		if s.String() != want {
			t.Errorf("%d.String() = %q", int(s), s.String())
		}
	}
}
