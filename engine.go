// Package padseq is a pad sequencer and sample-playback engine. An Engine
// owns the output device, the mixer graph and every voice in flight; a
// Transport drives it from patterns and the song arrangement; RenderMix and
// RenderStem produce the same arrangement offline.
package padseq

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	intaudio "github.com/cbegin/padseq-go/internal/audio"
	"github.com/cbegin/padseq-go/internal/chain"
	"github.com/cbegin/padseq-go/internal/click"
	intfx "github.com/cbegin/padseq-go/internal/effects"
	"github.com/cbegin/padseq-go/internal/mixer"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/reverse"
	"github.com/cbegin/padseq-go/internal/voice"
)

const DefaultSampleRate = 44100

// Device recovery backs off from RecoverMinBackoff, doubling per failed
// attempt up to RecoverMaxBackoff.
const (
	RecoverMinBackoff = 250 * time.Millisecond
	RecoverMaxBackoff = 2 * time.Second
)

var ErrDeviceClosed = intaudio.ErrDeviceClosed

type Backend = intaudio.Backend

const (
	BackendEbiten   = intaudio.BackendEbiten
	BackendOto      = intaudio.BackendOto
	BackendHeadless = intaudio.BackendHeadless
)

type EngineOption func(*engineConfig)

type engineConfig struct {
	sampleRate int
	backend    Backend
	reverb     mixer.ReverbParams
	volume     float64
	effects    []intfx.Spec
	tempo      float64
	sampleTap  func([]float32)
	logger     *slog.Logger
}

func defaultEngineConfig() engineConfig {
	return engineConfig{
		sampleRate: DefaultSampleRate,
		backend:    BackendEbiten,
		reverb:     mixer.DefaultReverb(),
		volume:     1,
		tempo:      120,
		logger:     slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func WithSampleRate(sampleRate int) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleRate = sampleRate
	}
}

func WithBackend(backend Backend) EngineOption {
	return func(cfg *engineConfig) {
		cfg.backend = backend
	}
}

// WithReverb sets the room of the shared reverb send bus.
func WithReverb(roomSize, feedback float32) EngineOption {
	return func(cfg *engineConfig) {
		cfg.reverb = mixer.ReverbParams{RoomSize: roomSize, Feedback: feedback}
	}
}

func WithMasterVolume(volume float64) EngineOption {
	return func(cfg *engineConfig) {
		cfg.volume = volume
	}
}

// WithMasterEffects installs a master-bus chain. tempo sets the time base
// of beat-synced effects.
func WithMasterEffects(tempo float64, specs ...intfx.Spec) EngineOption {
	return func(cfg *engineConfig) {
		cfg.tempo = tempo
		cfg.effects = specs
	}
}

// WithSampleTap installs a callback invoked with each generated stereo buffer.
// The callback runs on the audio thread; keep work brief and non-blocking.
func WithSampleTap(tap func([]float32)) EngineOption {
	return func(cfg *engineConfig) {
		cfg.sampleTap = tap
	}
}

// WithLogger routes device diagnostics to logger.
func WithLogger(logger *slog.Logger) EngineOption {
	return func(cfg *engineConfig) {
		if logger != nil {
			cfg.logger = logger
		}
	}
}

// PlayRequest asks the engine for one voice. Context scopes the choke group
// of mono pads; Duration <= 0 plays the region once.
type PlayRequest struct {
	Pad      model.Pad
	Sample   *model.Sample
	When     float64
	Duration float64
	Looping  bool
	Context  string
}

// Engine is the live audio context: device, mixer graph, voice tracker and
// the reversal cache. Control methods are safe for concurrent use.
type Engine struct {
	mu         sync.Mutex
	sampleRate int
	graph      *mixer.Graph
	eq         *intfx.EQ5Band
	device     intaudio.Device
	headless   *intaudio.Headless
	reverse    *reverse.Cache
	tracker    *voice.Tracker
	clicks     click.Samples
	nextID     uint64
	logger     *slog.Logger
	closed     bool

	clock       func() time.Time
	failures    int
	nextAttempt time.Time
}

func NewEngine(opts ...EngineOption) (*Engine, error) {
	cfg := defaultEngineConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, errors.New("sampleRate must be positive")
	}
	var master *intfx.Chain
	if len(cfg.effects) > 0 {
		c, err := intfx.BuildChain(cfg.effects, cfg.sampleRate, cfg.tempo)
		if err != nil {
			return nil, err
		}
		master = c
	}
	eq := intfx.NewEQ5Band(cfg.sampleRate)
	graph := mixer.New(cfg.sampleRate, mixer.Options{
		Reverb: cfg.reverb,
		Master: master,
		EQ:     eq,
		Tap:    cfg.sampleTap,
	})
	graph.SetGain(cfg.volume)
	dev, err := intaudio.Open(cfg.backend, cfg.sampleRate, graph)
	if err != nil {
		return nil, err
	}
	e := &Engine{
		sampleRate: cfg.sampleRate,
		graph:      graph,
		eq:         eq,
		device:     dev,
		reverse:    reverse.New(reverse.DefaultSize),
		tracker:    voice.NewTracker(),
		clicks:     click.New(cfg.sampleRate),
		logger:     cfg.logger,
		clock:      time.Now,
	}
	if h, ok := dev.(*intaudio.Headless); ok {
		e.headless = h
	}
	dev.Play()
	return e, nil
}

func (e *Engine) SampleRate() int { return e.sampleRate }

// Now is the audio clock: the time of the next frame the device will pull.
func (e *Engine) Now() float64 { return e.graph.Now() }

// Play builds the chain for req, chokes the previous occupant of the pad's
// group and starts the voice. It returns the voice id.
func (e *Engine) Play(req PlayRequest) (uint64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return 0, ErrDeviceClosed
	}
	c, err := chain.Build(chain.Live(e.sampleRate, e.graph.Now()), e.reverse, chain.Request{
		Pad:      req.Pad,
		Sample:   req.Sample,
		When:     req.When,
		Duration: req.Duration,
		Looping:  req.Looping,
	})
	if err != nil {
		return 0, fmt.Errorf("pad %q: %w", req.Pad.ID, err)
	}
	key := voice.ChokeKey(req.Pad, req.Context)
	e.tracker.StopExclusive(key, c.Start)
	e.nextID++
	v := voice.New(e.nextID, c)
	e.graph.Add(v)
	e.tracker.Track(v, key)
	return v.ID(), nil
}

// Click schedules a metronome click at when. beat 0 of each bar gets the
// downbeat tone.
func (e *Engine) Click(when float64, beat int) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDeviceClosed
	}
	s := e.clicks.For(beat)
	c, err := chain.Build(chain.Live(e.sampleRate, e.graph.Now()), nil, chain.Request{
		Pad:    click.Pad(s),
		Sample: s,
		When:   when,
	})
	if err != nil {
		return err
	}
	e.nextID++
	v := voice.New(e.nextID, c)
	e.graph.Add(v)
	e.tracker.TrackClick(v)
	return nil
}

// ReleasePad fades the held (looping) voices of pad over its release time.
// One-shot voices play out.
func (e *Engine) ReleasePad(pad model.Pad) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.graph.Now()
	n := 0
	for _, h := range e.tracker.Voices(pad.ID) {
		v, ok := h.(*voice.Voice)
		if !ok || !math.IsInf(v.StopTime(), 1) {
			continue
		}
		v.Release(now, pad.Release)
		n++
	}
	return n
}

// StopAll silences every voice and click immediately.
func (e *Engine) StopAll() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.tracker.StopAll()
	e.graph.Clear()
}

// ForgetSample drops the cached reversed regions of s. Call it once s has
// been replaced or removed from the project.
func (e *Engine) ForgetSample(s *model.Sample) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.reverse.Forget(s)
}

// Reap forgets voices that finished playing.
func (e *Engine) Reap() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Reap()
}

// Voices reports tracked pad voices and clicks.
func (e *Engine) Voices() (voices, clicks int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.tracker.Len()
}

func (e *Engine) DeviceState() intaudio.State {
	return e.device.State()
}

// CheckDevice brings a suspended or interrupted device back. Failed
// attempts back off from 250 ms up to 2 s; calls inside the backoff window
// return nil without trying. A closed device returns ErrDeviceClosed.
func (e *Engine) CheckDevice() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDeviceClosed
	}
	state := e.device.State()
	switch state {
	case intaudio.Running:
		e.failures = 0
		return nil
	case intaudio.Closed:
		return ErrDeviceClosed
	}
	now := e.clock()
	if now.Before(e.nextAttempt) {
		return nil
	}
	if err := e.device.Resume(); err != nil {
		if errors.Is(err, ErrDeviceClosed) {
			return err
		}
		e.failures++
		backoff := RecoverMinBackoff << (e.failures - 1)
		if backoff > RecoverMaxBackoff || backoff <= 0 {
			backoff = RecoverMaxBackoff
		}
		e.nextAttempt = now.Add(backoff)
		e.logger.Warn("audio device resume failed", "state", state.String(), "attempt", e.failures, "retry_in", backoff, "err", err)
		return fmt.Errorf("resume %s device: %w", state, err)
	}
	if e.failures > 0 {
		e.logger.Info("audio device recovered", "attempts", e.failures+1)
	}
	e.failures = 0
	e.nextAttempt = time.Time{}
	return nil
}

// Advance renders d seconds on the headless backend and returns the frames.
// Other backends advance on their own and return nil.
func (e *Engine) Advance(d float64) []float32 {
	if e.headless == nil || d <= 0 {
		return nil
	}
	return e.headless.Pull(int(math.Round(d * float64(e.sampleRate))))
}

// SetEQBand sets the gain for a master EQ band (0-4). 1.0 = unity.
// Band edges: 120 Hz, 600 Hz, 3 kHz, 9 kHz.
func (e *Engine) SetEQBand(band int, gain float32) {
	e.eq.SetGain(band, gain)
}

func (e *Engine) EQBand(band int) float32 {
	return e.eq.Gain(band)
}

// SetMasterVolume sets runtime volume scalar. 1.0 is default.
func (e *Engine) SetMasterVolume(volume float64) {
	e.graph.SetGain(volume)
}

func (e *Engine) MasterVolume() float64 {
	return e.graph.Gain()
}

// Close stops every voice and releases the device. Further calls return
// ErrDeviceClosed.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return ErrDeviceClosed
	}
	e.closed = true
	e.tracker.StopAll()
	e.graph.Clear()
	return e.device.Close()
}
