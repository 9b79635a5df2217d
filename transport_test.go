package padseq

import (
	"context"
	"errors"
	"testing"
	"time"

	intaudio "github.com/cbegin/padseq-go/internal/audio"
	"github.com/cbegin/padseq-go/internal/chain"
	"github.com/cbegin/padseq-go/internal/model"
)

const tickStep = 1.0 / 60

func newTestTransport(t *testing.T, opts ...TransportOption) (*Transport, *Engine, *model.MemoryStore) {
	t.Helper()
	e := newTestEngine(t)
	store := model.NewMemoryStore(testSnapshot())
	return NewTransport(e, store, opts...), e, store
}

// drain collects what is buffered on ch without blocking.
func drain(ch <-chan Event) []Event {
	var out []Event
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

// play advances the headless clock by seconds in display-rate steps,
// ticking after each and collecting events.
func play(tr *Transport, e *Engine, ch <-chan Event, seconds float64) []Event {
	var events []Event
	for elapsed := 0.0; elapsed < seconds-1e-9; elapsed += tickStep {
		e.Advance(tickStep)
		tr.Tick()
		events = append(events, drain(ch)...)
	}
	return events
}

func count(events []Event, kind EventKind, padID string) int {
	n := 0
	for _, ev := range events {
		if ev.Kind == kind && (padID == "" || ev.PadID == padID) {
			n++
		}
	}
	return n
}

func TestTransportPlaysSelectedPattern(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	tr.Start()
	events := play(tr, e, ch, 2.5)

	// main loops every 2 s from 0.05: kick at 0.05 and 2.05, hats at 0.55
	// and 1.05
	if got := count(events, EventPadOn, "kick"); got != 2 {
		t.Errorf("kick flashes = %d, want 2", got)
	}
	if got := count(events, EventPadOn, "hat"); got != 2 {
		t.Errorf("hat flashes = %d, want 2", got)
	}
	if count(events, EventPadOff, "kick") != count(events, EventPadOn, "kick") {
		t.Errorf("kick flashes did not all end: %+v", events)
	}
	if count(events, EventPlayhead, "") == 0 || count(events, EventBeat, "") < 4 {
		t.Errorf("missing playhead or beat events")
	}
	st := tr.State()
	if !st.Playing || st.SongMode || st.Step != 0 || st.Pass != 1 {
		t.Errorf("state = %+v", st)
	}
}

func TestTransportSongModeAdvancesSteps(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	tr.SetSongMode(true)
	tr.Start()
	events := play(tr, e, ch, 2.2)

	if st := tr.State(); st.Step != 1 || st.Pass != 1 || !st.SongMode {
		t.Fatalf("state = %+v, want step 1 pass 1", tr.State())
	}
	sawStep := false
	for _, ev := range events {
		if ev.Kind == EventBeat && ev.Step == 1 && ev.Beat == 0 {
			sawStep = true
		}
	}
	if !sawStep {
		t.Error("no beat event for the second step")
	}
}

func TestTransportSectionLoopHoldsStep(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	tr.SetSongMode(true)
	tr.SetSectionLoop(true)
	tr.Start()
	play(tr, e, ch, 4.2)
	if st := tr.State(); st.Step != 0 || st.Pass != 2 || !st.SectionLoop {
		t.Fatalf("state = %+v, want step 0 pass 2", st)
	}
}

func TestTransportMetronome(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	tr.SetMetronome(true)
	tr.Start()
	tr.Tick()
	if _, clicks := e.Voices(); clicks == 0 {
		t.Fatal("no click scheduled in the first look-ahead window")
	}
	play(tr, e, ch, 1)
	tr.SetMetronome(false)
	play(tr, e, ch, 1)
	if _, clicks := e.Voices(); clicks != 0 {
		t.Fatalf("%d clicks still tracked with the metronome off", clicks)
	}
}

func TestTransportStopSilencesAndCancelsRun(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	tr.Start()
	play(tr, e, ch, 0.3)

	done := make(chan error, 1)
	go func() { done <- tr.Run(context.Background(), 5*time.Millisecond) }()
	time.Sleep(12 * time.Millisecond)
	tr.Stop()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run returned %v after Stop", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after Stop")
	}

	if v, c := e.Voices(); v != 0 || c != 0 {
		t.Fatalf("voices/clicks = %d/%d after Stop", v, c)
	}
	if tr.State().Playing {
		t.Fatal("still playing after Stop")
	}
	events := drain(ch)
	if count(events, EventStopped, "") != 1 {
		t.Fatalf("events after stop = %+v", events)
	}
	if rep := tr.Tick(); rep.Playing || rep.Hits != 0 {
		t.Fatalf("tick after stop = %+v", rep)
	}
}

func TestRunReturnsContextError(t *testing.T) {
	tr, _, _ := newTestTransport(t)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- tr.Run(ctx, 0) }()
	cancel()
	select {
	case err := <-done:
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("err = %v, want context.Canceled", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Run ignored cancellation")
	}
}

func TestTriggerPadValidation(t *testing.T) {
	tr, _, _ := newTestTransport(t)
	tests := []struct {
		pad  string
		want error
	}{
		{"nope", ErrUnknownPad},
		{"broken", chain.ErrNoSample},
		{"kick", nil},
	}
	for _, tt := range tests {
		t.Run(tt.pad, func(t *testing.T) {
			err := tr.TriggerPad(tt.pad)
			if (tt.want == nil && err != nil) || (tt.want != nil && !errors.Is(err, tt.want)) {
				t.Fatalf("TriggerPad(%q) = %v, want %v", tt.pad, err, tt.want)
			}
		})
	}
}

func TestTriggerPadFlashIsDebounced(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	if err := tr.TriggerPad("kick"); err != nil {
		t.Fatal(err)
	}
	e.Advance(0.05)
	tr.Tick()
	if err := tr.TriggerPad("kick"); err != nil {
		t.Fatal(err)
	}
	e.Advance(0.05)
	tr.Tick()
	events := drain(ch)
	if count(events, EventPadOn, "kick") != 1 || count(events, EventPadOff, "kick") != 0 {
		t.Fatalf("after retrigger: %+v", events)
	}
	if st := tr.State(); len(st.ActivePads) != 1 || st.ActivePads[0] != "kick" {
		t.Fatalf("active pads = %v", st.ActivePads)
	}
	e.Advance(0.05)
	tr.Tick()
	if got := count(drain(ch), EventPadOff, "kick"); got != 1 {
		t.Fatalf("pad-off events = %d, want 1", got)
	}
}

func TestTriggerAndReleaseLoopingPad(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	if err := tr.TriggerPad("loop"); err != nil {
		t.Fatal(err)
	}
	e.Advance(0.5)
	if v, _ := e.Voices(); v != 1 {
		t.Fatalf("voices = %d, want the held loop", v)
	}
	if err := tr.ReleasePad("loop"); err != nil {
		t.Fatal(err)
	}
	e.Advance(0.1)
	e.Reap()
	if v, _ := e.Voices(); v != 0 {
		t.Fatalf("voices = %d after release", v)
	}
	if err := tr.ReleasePad("nope"); !errors.Is(err, ErrUnknownPad) {
		t.Fatalf("err = %v, want ErrUnknownPad", err)
	}
}

func TestReplacedSampleReleasesReversedRegions(t *testing.T) {
	tr, e, store := newTestTransport(t)
	snap := testSnapshot()
	for i := range snap.Pads {
		if snap.Pads[i].ID == "kick" {
			snap.Pads[i].Reversed = true
		}
	}
	store.Replace(snap)
	tr.Tick()
	if err := tr.TriggerPad("kick"); err != nil {
		t.Fatal(err)
	}
	tr.Tick()
	if n := e.reverse.Len(); n != 1 {
		t.Fatalf("cached regions = %d, want 1", n)
	}

	// same samples, new snapshot: the cache stays
	next := *snap
	store.Replace(&next)
	tr.Tick()
	if n := e.reverse.Len(); n != 1 {
		t.Fatalf("cached regions = %d after an unrelated edit, want 1", n)
	}

	store.Replace(testSnapshot())
	tr.Tick()
	if n := e.reverse.Len(); n != 0 {
		t.Fatalf("cached regions = %d after the sample was replaced, want 0", n)
	}
}

func TestRecordingWritesQuantizedHit(t *testing.T) {
	tr, e, store := newTestTransport(t)
	ch := tr.Watch()
	if err := tr.SetRecording(true); !errors.Is(err, ErrNotPlaying) {
		t.Fatalf("arming while stopped: %v", err)
	}
	tr.SetQuantize(GridSixteenth)
	tr.Start()
	if err := tr.SetRecording(true); err != nil {
		t.Fatal(err)
	}
	// anchor is 0.05; 0.30 is half a beat in
	for i := 0; i < 6; i++ {
		e.Advance(0.05)
		tr.Tick()
	}
	drain(ch)
	if err := tr.TriggerPad("hat"); err != nil {
		t.Fatal(err)
	}

	var rec *Event
	for _, ev := range drain(ch) {
		if ev.Kind == EventRecorded {
			ev := ev
			rec = &ev
		}
	}
	if rec == nil {
		t.Fatal("no recorded event")
	}
	if rec.PatternID != "main" || rec.Hit.PadID != "hat" || rec.Hit.BeatOffset != 0.5 {
		t.Fatalf("recorded %+v", rec)
	}
	p, _ := store.Snapshot().Pattern("main")
	if len(p.Hits) != 4 || p.Hits[3].ID != rec.Hit.ID {
		t.Fatalf("main hits = %+v", p.Hits)
	}
	if !tr.State().Recording {
		t.Fatal("recording flag lost")
	}
}

func TestRecordingInSongModeUsesArmedPattern(t *testing.T) {
	tr, e, store := newTestTransport(t)
	ch := tr.Watch()
	tr.SetSongMode(true)
	tr.Start()
	_ = tr.SetRecording(true)
	play(tr, e, ch, 2.5)
	if err := tr.TriggerPad("kick"); err != nil {
		t.Fatal(err)
	}
	fill, _ := store.Snapshot().Pattern("fill")
	if len(fill.Hits) != 3 || fill.Hits[2].PadID != "kick" {
		t.Fatalf("fill hits = %+v", fill.Hits)
	}
}

func TestSelectPattern(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	if err := tr.SelectPattern("missing"); !errors.Is(err, ErrUnknownPattern) {
		t.Fatalf("err = %v, want ErrUnknownPattern", err)
	}
	if err := tr.SelectPattern("fill"); err != nil {
		t.Fatal(err)
	}
	ch := tr.Watch()
	tr.Start()
	events := play(tr, e, ch, 1.8)
	// fill: the broken pad is skipped, the kick lands at 1.55
	if count(events, EventPadOn, "kick") != 1 || count(events, EventPadOn, "broken") != 0 {
		t.Fatalf("events = %+v", events)
	}
	if tr.State().Pattern != "fill" {
		t.Fatalf("state = %+v", tr.State())
	}
}

func TestDeviceErrorsAreReported(t *testing.T) {
	tr, e, _ := newTestTransport(t)
	ch := tr.Watch()
	e.headless.Interrupt()
	e.headless.FailResumes(1)
	tr.Tick()
	var got error
	for _, ev := range drain(ch) {
		if ev.Kind == EventDeviceError {
			got = ev.Err
		}
	}
	if !errors.Is(got, intaudio.ErrResumeFailed) {
		t.Fatalf("device error = %v", got)
	}
}
