package voice

import "github.com/cbegin/padseq-go/internal/model"

// Handle is the part of a playing voice the tracker needs.
type Handle interface {
	ID() uint64
	PadID() string
	Done() <-chan struct{}
	FadeOut(at float64)
	Stop() error
}

// Tracker records every voice in flight and the current occupant of each
// choke key. It is not safe for concurrent use; the owner serializes calls.
type Tracker struct {
	voices map[uint64]Handle
	clicks map[uint64]Handle
	chokes map[string]Handle
}

func NewTracker() *Tracker {
	return &Tracker{
		voices: make(map[uint64]Handle),
		clicks: make(map[uint64]Handle),
		chokes: make(map[string]Handle),
	}
}

// ChokeKey returns the exclusivity key for pad triggered from context, or ""
// for polyphonic pads.
func ChokeKey(pad model.Pad, context string) string {
	if pad.PlayMode != model.PlayMono {
		return ""
	}
	return context + "/" + pad.ID
}

// Track registers h. A non-empty chokeKey makes h the occupant of that key,
// replacing the previous occupant's entry; stopping the previous voice is
// the caller's job (see StopExclusive).
func (t *Tracker) Track(h Handle, chokeKey string) {
	t.voices[h.ID()] = h
	if chokeKey != "" {
		t.chokes[chokeKey] = h
	}
}

// TrackClick registers a metronome click voice.
func (t *Tracker) TrackClick(h Handle) {
	t.clicks[h.ID()] = h
}

// Occupant returns the voice currently holding chokeKey.
func (t *Tracker) Occupant(chokeKey string) (Handle, bool) {
	h, ok := t.chokes[chokeKey]
	return h, ok
}

// StopExclusive fades out the occupant of chokeKey starting at at. The
// occupant keeps its entry until it ends or is replaced.
func (t *Tracker) StopExclusive(chokeKey string, at float64) bool {
	if chokeKey == "" {
		return false
	}
	h, ok := t.chokes[chokeKey]
	if !ok {
		return false
	}
	h.FadeOut(at)
	return true
}

// Voices returns the tracked pad voices triggered for padID.
func (t *Tracker) Voices(padID string) []Handle {
	var out []Handle
	for _, h := range t.voices {
		if h.PadID() == padID {
			out = append(out, h)
		}
	}
	return out
}

// Reap drops every voice whose Done channel is closed and returns how many
// were removed.
func (t *Tracker) Reap() int {
	n := 0
	for id, h := range t.voices {
		if ended(h) {
			delete(t.voices, id)
			n++
		}
	}
	for id, h := range t.clicks {
		if ended(h) {
			delete(t.clicks, id)
			n++
		}
	}
	for key, h := range t.chokes {
		if ended(h) {
			delete(t.chokes, key)
		}
	}
	return n
}

// StopAll stops every tracked voice and click. A voice that fails to stop
// does not keep the others playing. Calling it again is a no-op.
func (t *Tracker) StopAll() {
	for id, h := range t.voices {
		stopQuietly(h)
		delete(t.voices, id)
	}
	for id, h := range t.clicks {
		stopQuietly(h)
		delete(t.clicks, id)
	}
	for key := range t.chokes {
		delete(t.chokes, key)
	}
}

// Len reports tracked pad voices and clicks.
func (t *Tracker) Len() (voices, clicks int) {
	return len(t.voices), len(t.clicks)
}

func ended(h Handle) bool {
	select {
	case <-h.Done():
		return true
	default:
		return false
	}
}

func stopQuietly(h Handle) {
	defer func() { _ = recover() }()
	_ = h.Stop()
}
