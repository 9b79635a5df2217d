package audio

import (
	"errors"
	"sync"
)

// ErrResumeFailed is returned by a headless device told to refuse resumes.
var ErrResumeFailed = errors.New("audio: resume refused")

// Headless is a device with no output. Time only moves when the owner calls
// Pull, which makes it the backend for tests and offline use.
type Headless struct {
	mu         sync.Mutex
	sampleRate int
	src        SampleSource
	state      State
	failResume int
	buf        []float32
}

func NewHeadless(sampleRate int, src SampleSource) *Headless {
	return &Headless{sampleRate: sampleRate, src: src, state: Suspended}
}

// Pull renders frames from the source while running and returns them. A
// device that is not running produces nothing, like a suspended context.
func (h *Headless) Pull(frames int) []float32 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Running || frames <= 0 {
		return nil
	}
	if cap(h.buf) < frames*2 {
		h.buf = make([]float32, frames*2)
	}
	out := h.buf[:frames*2]
	if h.src != nil {
		h.src.Process(out)
	} else {
		clear(out)
	}
	return out
}

func (h *Headless) SampleRate() int { return h.sampleRate }

// Interrupt simulates the platform taking the device away.
func (h *Headless) Interrupt() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Closed {
		h.state = Interrupted
	}
}

// FailResumes makes the next n Resume calls fail.
func (h *Headless) FailResumes(n int) {
	h.mu.Lock()
	h.failResume = n
	h.mu.Unlock()
}

func (h *Headless) Play() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Closed {
		h.state = Running
	}
}

func (h *Headless) Pause() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state != Closed {
		h.state = Suspended
	}
}

func (h *Headless) Resume() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.state == Closed {
		return ErrDeviceClosed
	}
	if h.failResume > 0 {
		h.failResume--
		return ErrResumeFailed
	}
	h.state = Running
	return nil
}

func (h *Headless) State() State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.state
}

func (h *Headless) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.state = Closed
	return nil
}
