package export

import (
	"bytes"
	"math"
	"sort"

	"gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"

	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/scheduler"
)

const (
	// PPQ is the MIDI resolution in ticks per quarter note.
	PPQ = 960
	// DrumChannel is General MIDI channel 10.
	DrumChannel = 9
	noteLength  = PPQ / 8
	firstNote   = 36
)

// padNote maps the i-th pad onto the General MIDI drum range from the bass
// drum upwards.
func padNote(i int) uint8 {
	n := firstNote + i
	if n > 127 {
		n = 127
	}
	return uint8(n)
}

func velocity(p model.Pad) uint8 {
	v := math.Round(p.Volume * 100)
	if v < 1 {
		v = 1
	}
	if v > 127 {
		v = 127
	}
	return uint8(v)
}

type midiEvent struct {
	tick uint32
	off  bool
	msg  []byte
}

// MIDI renders the arrangement as a format 1 standard MIDI file: a tempo
// track followed by one track per pattern that plays in the song.
func MIDI(snap *model.Snapshot) ([]byte, error) {
	sm := smf.New()
	sm.TimeFormat = smf.MetricTicks(PPQ)

	var tempo smf.Track
	tempo.Add(0, smf.MetaMeter(model.BeatsPerBar, 4))
	tempo.Add(0, smf.MetaTempo(snap.Tempo))
	tempo.Close(0)
	if err := sm.Add(tempo); err != nil {
		return nil, err
	}

	notes := make(map[string]uint8, len(snap.Pads))
	vels := make(map[string]uint8, len(snap.Pads))
	for i, p := range snap.Pads {
		notes[p.ID] = padNote(i)
		vels[p.ID] = velocity(p)
	}
	bd := model.BeatDuration(snap.Tempo)

	for _, pat := range snap.Patterns {
		hits := scheduler.Walk(snap, pat.ID)
		if len(hits) == 0 {
			continue
		}
		var evs []midiEvent
		for _, h := range hits {
			key, ok := notes[h.PadID]
			if !ok {
				continue
			}
			tick := uint32(math.Round(h.Time / bd * PPQ))
			evs = append(evs,
				midiEvent{tick: tick, msg: midi.NoteOn(DrumChannel, key, vels[h.PadID])},
				midiEvent{tick: tick + noteLength, off: true, msg: midi.NoteOff(DrumChannel, key)},
			)
		}
		// note-offs first on shared ticks so retriggers are not cut short
		sort.SliceStable(evs, func(a, b int) bool {
			if evs[a].tick != evs[b].tick {
				return evs[a].tick < evs[b].tick
			}
			return evs[a].off && !evs[b].off
		})

		var tr smf.Track
		tr.Add(0, smf.MetaTrackSequenceName(pat.Name))
		var last uint32
		for _, e := range evs {
			tr.Add(e.tick-last, e.msg)
			last = e.tick
		}
		tr.Close(0)
		if err := sm.Add(tr); err != nil {
			return nil, err
		}
	}

	var b bytes.Buffer
	if _, err := sm.WriteTo(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
