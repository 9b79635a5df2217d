package padseq

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/cbegin/padseq-go/internal/chain"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/scheduler"
)

var (
	ErrUnknownPad     = errors.New("unknown pad")
	ErrUnknownPattern = errors.New("unknown pattern")
	ErrNotPlaying     = errors.New("transport is not playing")
)

const (
	// DefaultTickInterval approximates a display refresh.
	DefaultTickInterval = time.Second / 60
	// FlashHold is how long a pad stays lit after a trigger.
	FlashHold = 0.08
	// ManualOffset is the scheduling delay of a pad triggered by hand.
	ManualOffset = 0.01

	manualContext = "manual"
)

type Grid = scheduler.Grid

const (
	GridOff       = scheduler.GridOff
	GridEighth    = scheduler.GridEighth
	GridSixteenth = scheduler.GridSixteenth
)

// EventKind tells what an Event reports.
type EventKind int

const (
	EventPadOn EventKind = iota
	EventPadOff
	EventPlayhead
	EventBeat
	EventRecorded
	EventDeviceError
	EventStopped
)

func (k EventKind) String() string {
	switch k {
	case EventPadOn:
		return "pad-on"
	case EventPadOff:
		return "pad-off"
	case EventPlayhead:
		return "playhead"
	case EventBeat:
		return "beat"
	case EventRecorded:
		return "recorded"
	case EventDeviceError:
		return "device-error"
	case EventStopped:
		return "stopped"
	}
	return fmt.Sprintf("EventKind(%d)", int(k))
}

// Event carries UI feedback from Watch(). Only the fields of its Kind are
// set. None of it affects what is heard.
type Event struct {
	Kind      EventKind
	PadID     string
	Step      int
	Pass      int
	Elapsed   float64
	Progress  float64
	Beat      int
	Bar       int
	PatternID string
	Hit       model.Hit
	Err       error
}

// TransportState is a snapshot of the transport controls.
type TransportState struct {
	Playing     bool
	Recording   bool
	SongMode    bool
	Pattern     string
	SectionLoop bool
	Metronome   bool
	Quantize    Grid
	Step        int
	Pass        int
	ActivePads  []string
}

type TransportOption func(*transportConfig)

type transportConfig struct {
	sched     scheduler.Config
	flashHold float64
	eventCap  int
}

func defaultTransportConfig() transportConfig {
	return transportConfig{sched: scheduler.DefaultConfig(), flashHold: FlashHold, eventCap: 64}
}

// WithSchedulerConfig overrides the look-ahead timing.
func WithSchedulerConfig(cfg scheduler.Config) TransportOption {
	return func(tc *transportConfig) {
		tc.sched = cfg
	}
}

func WithFlashHold(seconds float64) TransportOption {
	return func(tc *transportConfig) {
		tc.flashHold = seconds
	}
}

// pendingFlash lights a pad when the clock reaches at.
type pendingFlash struct {
	padID string
	at    float64
}

// Transport plays patterns and the song through an Engine. All methods are
// safe for concurrent use; scheduling happens on whichever goroutine calls
// Tick, usually Run.
type Transport struct {
	mu     sync.Mutex
	engine *Engine
	store  model.Store
	sched  *scheduler.Scheduler
	cfg    transportConfig

	snap    *model.Snapshot // last snapshot seen by Tick
	pending []pendingFlash
	lit     map[string]float64 // pad -> time the flash ends
	beat    int
	step    int
	pass    int

	cancelRun context.CancelFunc

	eventCh   chan Event
	eventChMu sync.Mutex
}

func NewTransport(engine *Engine, store model.Store, opts ...TransportOption) *Transport {
	cfg := defaultTransportConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	t := &Transport{
		engine: engine,
		store:  store,
		cfg:    cfg,
		lit:    make(map[string]float64),
		beat:   -1,
	}
	t.sched = scheduler.New(store, dispatcher{t}, cfg.sched)
	return t
}

// dispatcher hands scheduled work to the engine. It runs inside Tick with
// the transport lock held.
type dispatcher struct{ t *Transport }

func (d dispatcher) ScheduleHit(ev scheduler.HitEvent) {
	t := d.t
	snap := t.store.Snapshot()
	pad, ok := snap.Pad(ev.PadID)
	if !ok {
		return
	}
	smp, _ := snap.Sample(pad.SampleID)
	if _, err := t.engine.Play(PlayRequest{Pad: pad, Sample: smp, When: ev.Time, Context: ev.PatternID}); err != nil {
		// unplayable pads are skipped; the rest of the pattern plays
		return
	}
	t.pending = append(t.pending, pendingFlash{padID: pad.ID, at: ev.Time})
}

func (d dispatcher) ScheduleClick(when float64, beat int) {
	_ = d.t.engine.Click(when, beat)
}

// Start begins playback from the top: the first song step in song mode,
// the selected pattern otherwise.
func (t *Transport) Start() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sched.Start(t.engine.Now())
	t.beat = -1
	t.step, t.pass = 0, 0
}

// Stop halts scheduling, silences every voice and click, and ends Run.
func (t *Transport) Stop() {
	t.mu.Lock()
	t.sched.Stop()
	t.engine.StopAll()
	t.pending = t.pending[:0]
	var off []string
	for id := range t.lit {
		off = append(off, id)
		delete(t.lit, id)
	}
	cancel := t.cancelRun
	t.cancelRun = nil
	t.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	sort.Strings(off)
	for _, id := range off {
		t.sendEvent(Event{Kind: EventPadOff, PadID: id})
	}
	t.sendEvent(Event{Kind: EventStopped})
}

// Tick runs one scheduler pass against the engine clock, checks the device
// and updates pad flashes.
func (t *Transport) Tick() scheduler.Report {
	if err := t.engine.CheckDevice(); err != nil {
		t.sendEvent(Event{Kind: EventDeviceError, Err: err})
	}
	t.engine.Reap()

	t.mu.Lock()
	if snap := t.store.Snapshot(); snap != t.snap {
		t.forgetReplacedSamples(snap)
		t.snap = snap
	}
	now := t.engine.Now()
	rep := t.sched.Tick(now)
	events := t.flashes(now)
	if rep.Playing && !rep.Skipped {
		events = append(events, Event{
			Kind:     EventPlayhead,
			Step:     rep.Step,
			Pass:     rep.Pass,
			Elapsed:  rep.Elapsed,
			Progress: rep.Progress,
		})
		if rep.Beat != t.beat || rep.Step != t.step || rep.Pass != t.pass {
			t.beat, t.step, t.pass = rep.Beat, rep.Step, rep.Pass
			events = append(events, Event{Kind: EventBeat, Step: rep.Step, Pass: rep.Pass, Beat: rep.Beat, Bar: rep.Bar})
		}
	}
	t.mu.Unlock()

	for _, ev := range events {
		t.sendEvent(ev)
	}
	return rep
}

// flashes lights pads whose hits have started and darkens expired ones. A
// retrigger while lit extends the hold instead of stacking.
func (t *Transport) flashes(now float64) []Event {
	var events []Event
	kept := t.pending[:0]
	for _, f := range t.pending {
		if f.at > now {
			kept = append(kept, f)
			continue
		}
		if _, on := t.lit[f.padID]; !on {
			events = append(events, Event{Kind: EventPadOn, PadID: f.padID})
		}
		if end := f.at + t.cfg.flashHold; end > t.lit[f.padID] {
			t.lit[f.padID] = end
		}
	}
	t.pending = kept

	var off []string
	for id, end := range t.lit {
		if end <= now {
			off = append(off, id)
		}
	}
	sort.Strings(off)
	for _, id := range off {
		delete(t.lit, id)
		events = append(events, Event{Kind: EventPadOff, PadID: id})
	}
	return events
}

// Run ticks every interval until ctx is done or Stop is called. It returns
// ctx's error, or nil after Stop.
func (t *Transport) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = DefaultTickInterval
	}
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	t.mu.Lock()
	t.cancelRun = cancel
	t.mu.Unlock()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-runCtx.Done():
			return ctx.Err()
		case <-ticker.C:
			t.Tick()
		}
	}
}

// forgetReplacedSamples releases engine caches held for samples the new
// snapshot no longer references.
func (t *Transport) forgetReplacedSamples(snap *model.Snapshot) {
	if t.snap == nil {
		return
	}
	for id, old := range t.snap.Samples {
		if snap == nil || snap.Samples[id] != old {
			t.engine.ForgetSample(old)
		}
	}
}

// TriggerPad plays a pad now (plus ManualOffset) and lights it. While
// recording, the trigger is also written to the armed pattern.
func (t *Transport) TriggerPad(padID string) error {
	snap := t.store.Snapshot()
	pad, ok := snap.Pad(padID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPad, padID)
	}
	smp, _ := snap.Sample(pad.SampleID)
	if err := chain.Validate(pad, smp); err != nil {
		return fmt.Errorf("pad %q: %w", padID, err)
	}

	t.mu.Lock()
	now := t.engine.Now()
	if _, err := t.engine.Play(PlayRequest{
		Pad:     pad,
		Sample:  smp,
		When:    now + ManualOffset,
		Looping: pad.Loop,
		Context: manualContext,
	}); err != nil {
		t.mu.Unlock()
		return err
	}
	var events []Event
	if _, on := t.lit[padID]; !on {
		events = append(events, Event{Kind: EventPadOn, PadID: padID})
	}
	if end := now + t.cfg.flashHold; end > t.lit[padID] {
		t.lit[padID] = end
	}
	if hit, ok := t.sched.Record(padID, now); ok {
		ev := Event{Kind: EventRecorded, PadID: padID, Hit: hit}
		if p, ok := t.sched.ArmedPattern(); ok {
			ev.PatternID = p
		}
		events = append(events, ev)
	}
	t.mu.Unlock()

	for _, ev := range events {
		t.sendEvent(ev)
	}
	return nil
}

// ReleasePad ends the held loop voices of a pad.
func (t *Transport) ReleasePad(padID string) error {
	pad, ok := t.store.Snapshot().Pad(padID)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPad, padID)
	}
	t.engine.ReleasePad(pad)
	return nil
}

// SetRecording arms or disarms recording. Arming needs a playing transport.
func (t *Transport) SetRecording(on bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on && !t.sched.Playing() {
		return ErrNotPlaying
	}
	t.sched.SetRecording(on)
	return nil
}

func (t *Transport) SetSongMode(on bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if on {
		t.sched.SetMode(scheduler.SongMode)
	} else {
		t.sched.SetMode(scheduler.PatternMode)
	}
}

// SelectPattern chooses the pattern played in pattern mode.
func (t *Transport) SelectPattern(id string) error {
	if _, ok := t.store.Snapshot().Pattern(id); !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPattern, id)
	}
	t.mu.Lock()
	t.sched.SelectPattern(id)
	t.mu.Unlock()
	return nil
}

// SetSectionLoop keeps song mode on the current step.
func (t *Transport) SetSectionLoop(on bool) {
	t.mu.Lock()
	t.sched.SetSectionLoop(on)
	t.mu.Unlock()
}

func (t *Transport) SetMetronome(on bool) {
	t.mu.Lock()
	t.sched.SetMetronome(on)
	t.mu.Unlock()
}

func (t *Transport) SetQuantize(g Grid) {
	t.mu.Lock()
	t.sched.SetQuantize(g)
	t.mu.Unlock()
}

func (t *Transport) State() TransportState {
	t.mu.Lock()
	defer t.mu.Unlock()
	st := TransportState{
		Playing:   t.sched.Playing(),
		Recording: t.sched.Recording(),
		SongMode:  t.sched.Mode() == scheduler.SongMode,
		Pattern:   t.sched.SelectedPattern(),
		Quantize:  t.sched.QuantizeGrid(),
		Step:      t.sched.Step(),
		Pass:      t.sched.Pass(),
	}
	st.SectionLoop, st.Metronome = t.sched.SectionLoop(), t.sched.Metronome()
	for id := range t.lit {
		st.ActivePads = append(st.ActivePads, id)
	}
	sort.Strings(st.ActivePads)
	return st
}

func (t *Transport) sendEvent(ev Event) {
	t.eventChMu.Lock()
	ch := t.eventCh
	t.eventChMu.Unlock()
	if ch != nil {
		select {
		case ch <- ev:
		default:
			// Channel full; drop event
		}
	}
}

// Watch returns a channel that receives transport events: pad flashes,
// the playhead on every playing tick, beat changes, recorded hits and
// device errors.
//
// The channel is buffered (cap 64); receive in a goroutine to avoid losing
// events. Only the most recent Watch() channel receives events.
func (t *Transport) Watch() <-chan Event {
	ch := make(chan Event, t.cfg.eventCap)
	t.eventChMu.Lock()
	t.eventCh = ch
	t.eventChMu.Unlock()
	return ch
}
