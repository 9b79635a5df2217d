// Package audio connects the mixer to an output device. Devices pull
// interleaved stereo float32 frames from a SampleSource.
package audio

import (
	"errors"
	"fmt"
)

// State is the lifecycle state of an output device.
type State int

const (
	Running State = iota
	Suspended
	// Interrupted means the platform took the device away (another app,
	// a route change, a stalled player). Resume may bring it back.
	Interrupted
	Closed
)

func (s State) String() string {
	switch s {
	case Running:
		return "running"
	case Suspended:
		return "suspended"
	case Interrupted:
		return "interrupted"
	case Closed:
		return "closed"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

var (
	// ErrDeviceClosed is returned by every operation on a closed device.
	ErrDeviceClosed   = errors.New("audio: device closed")
	ErrUnknownBackend = errors.New("audio: unknown backend")
)

// Device is an output the engine renders into.
type Device interface {
	Play()
	Pause()
	Resume() error
	State() State
	Close() error
}

// Backend names an output implementation.
type Backend string

const (
	BackendEbiten   Backend = "ebiten"
	BackendOto      Backend = "oto"
	BackendHeadless Backend = "headless"
)

// Open creates a device of the given backend pulling from src. The device
// starts paused; call Play.
func Open(backend Backend, sampleRate int, src SampleSource) (Device, error) {
	switch backend {
	case BackendEbiten, "":
		return NewEbitenDevice(sampleRate, src)
	case BackendOto:
		return NewOtoDevice(sampleRate, src)
	case BackendHeadless:
		return NewHeadless(sampleRate, src), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, backend)
}
