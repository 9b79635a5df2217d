// Package scheduler turns patterns and the song arrangement into absolute
// trigger times. The live Scheduler polls ahead of the audio clock; Walk
// lays out a whole arrangement for offline rendering. Both use the same
// time math: anchor + iteration*patternDuration + beatOffset*beatDuration.
package scheduler

import (
	"math"
	"strconv"

	"github.com/google/uuid"

	"github.com/cbegin/padseq-go/internal/model"
)

// Config holds the timing constants of the live scheduler.
type Config struct {
	// LookAhead is how far past now hits and clicks are handed out.
	LookAhead float64
	// HeadStart is added to the device time when the transport starts.
	HeadStart float64
	// MaxHits caps recorded hits per pattern; the oldest are evicted.
	MaxHits int
}

func DefaultConfig() Config {
	return Config{LookAhead: 0.2, HeadStart: 0.05, MaxHits: 256}
}

// Mode selects what the transport plays.
type Mode int

const (
	PatternMode Mode = iota
	SongMode
)

// HitEvent is one pattern hit due at Time.
type HitEvent struct {
	PatternID string
	HitID     string
	PadID     string
	Time      float64
	Pass      int
	Iteration int
}

// Dispatcher receives scheduled work. Calls happen on the ticking
// goroutine, always before the event's time.
type Dispatcher interface {
	ScheduleHit(ev HitEvent)
	ScheduleClick(when float64, beat int)
}

// Report summarises a tick for UI output.
type Report struct {
	Playing      bool
	Skipped      bool
	Step         int
	Pass         int
	StepDuration float64
	Elapsed      float64
	Progress     float64
	Beat         int
	Bar          int
	Advanced     bool
	Hits         int
	Clicks       int
}

type hitKey struct {
	pass      int
	pattern   string
	hit       string
	iteration int
}

// section is one played step: a span of the timeline with its patterns.
type section struct {
	step     int
	pass     int
	anchor   float64
	duration float64
	patterns []*model.Pattern
}

func (s section) end() float64 { return s.anchor + s.duration }

// Scheduler is the look-ahead loop. It is not safe for concurrent use; the
// transport serializes calls.
type Scheduler struct {
	cfg   Config
	store model.Store
	out   Dispatcher
	newID func() string

	mode        Mode
	selected    string
	sectionLoop bool
	metronome   bool
	grid        Grid

	playing   bool
	recording bool

	step          int
	pass          int
	anchor        float64
	lastScheduled float64
	nextClick     float64
	clickBeat     int
	scheduled     map[hitKey]float64
}

func New(store model.Store, out Dispatcher, cfg Config) *Scheduler {
	def := DefaultConfig()
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = def.LookAhead
	}
	if cfg.HeadStart < 0 {
		cfg.HeadStart = 0
	}
	if cfg.MaxHits <= 0 {
		cfg.MaxHits = def.MaxHits
	}
	return &Scheduler{
		cfg:       cfg,
		store:     store,
		out:       out,
		newID:     func() string { return uuid.New().String() },
		scheduled: make(map[hitKey]float64),
	}
}

func (s *Scheduler) Config() Config { return s.cfg }

// Start captures now+HeadStart as the section anchor and resets the
// look-ahead bookkeeping. Song mode restarts from the first step.
func (s *Scheduler) Start(now float64) {
	s.playing = true
	s.step = 0
	s.pass = 0
	s.anchor = now + s.cfg.HeadStart
	s.lastScheduled = now
	s.nextClick = s.anchor
	s.clickBeat = 0
	clear(s.scheduled)
}

func (s *Scheduler) Stop() {
	s.playing = false
	s.recording = false
	clear(s.scheduled)
}

func (s *Scheduler) Playing() bool   { return s.playing }
func (s *Scheduler) Recording() bool { return s.recording }
func (s *Scheduler) Mode() Mode      { return s.mode }
func (s *Scheduler) Step() int       { return s.step }
func (s *Scheduler) Pass() int       { return s.pass }
func (s *Scheduler) Anchor() float64 { return s.anchor }

// SetRecording arms recording. It has no effect while stopped.
func (s *Scheduler) SetRecording(on bool) {
	s.recording = on && s.playing
}

func (s *Scheduler) SetMode(m Mode)              { s.mode = m }
func (s *Scheduler) SelectPattern(id string)     { s.selected = id }
func (s *Scheduler) SelectedPattern() string     { return s.selected }
func (s *Scheduler) SetSectionLoop(on bool)      { s.sectionLoop = on }
func (s *Scheduler) SectionLoop() bool           { return s.sectionLoop }
func (s *Scheduler) SetMetronome(on bool)        { s.metronome = on }
func (s *Scheduler) Metronome() bool             { return s.metronome }
func (s *Scheduler) SetQuantize(g Grid)          { s.grid = g }
func (s *Scheduler) QuantizeGrid() Grid          { return s.grid }
func (s *Scheduler) setIDSource(f func() string) { s.newID = f }

// Tick hands out every hit and click due in [lastScheduled, now+LookAhead)
// and advances the section when now has passed its end. Bad tempo or an
// arrangement with no playable pattern skips the tick. A skipped tick still
// moves lastScheduled, so hits that fell due meanwhile are dropped rather
// than played all at once on resume.
func (s *Scheduler) Tick(now float64) Report {
	if !s.playing {
		return Report{}
	}
	rep := Report{Playing: true, Step: s.step, Pass: s.pass}
	snap := s.store.Snapshot()
	if snap == nil {
		return s.skip(now, rep)
	}
	bd := model.BeatDuration(snap.Tempo)
	cur, ok := s.current(snap)
	if bd <= 0 || !ok {
		return s.skip(now, rep)
	}
	// steps that no longer resolve are passed over in place
	s.step = cur.step

	lo, hi := s.lastScheduled, now+s.cfg.LookAhead

	for s.nextClick < hi {
		if s.metronome && s.nextClick >= lo {
			s.out.ScheduleClick(s.nextClick, s.clickBeat)
			rep.Clicks++
		}
		s.nextClick += bd
		s.clickBeat++
	}

	sec := cur
	for n := 0; sec.anchor < hi && n < maxSectionsPerTick; n++ {
		if sec.end() > lo {
			rep.Hits += s.dispatch(snap, sec, lo, hi, bd)
		}
		next, ok := s.next(snap, sec)
		if !ok {
			break
		}
		sec = next
	}

	for n := 0; now >= cur.end() && n < maxSectionsPerTick; n++ {
		next, ok := s.next(snap, cur)
		if !ok {
			break
		}
		cur = next
		s.step = cur.step
		s.pass = cur.pass
		s.anchor = cur.anchor
		rep.Advanced = true
	}

	s.lastScheduled = now
	for k, t := range s.scheduled {
		if t < now {
			delete(s.scheduled, k)
		}
	}

	rep.Step = s.step
	rep.Pass = s.pass
	rep.StepDuration = cur.duration
	rep.Elapsed = now - cur.anchor
	if rep.Elapsed > 0 {
		rep.Progress = math.Min(rep.Elapsed/cur.duration, 1)
		beats := int(rep.Elapsed / bd)
		rep.Beat = beats % model.BeatsPerBar
		rep.Bar = beats / model.BeatsPerBar
	}
	return rep
}

func (s *Scheduler) skip(now float64, rep Report) Report {
	if now > s.lastScheduled {
		s.lastScheduled = now
	}
	rep.Skipped = true
	return rep
}

// maxSectionsPerTick bounds the work a single, very late tick can do.
const maxSectionsPerTick = 64

func (s *Scheduler) dispatch(snap *model.Snapshot, sec section, lo, hi, bd float64) int {
	n := 0
	end := sec.end()
	for _, p := range sec.patterns {
		pd := p.Duration(snap.Tempo)
		if pd <= 0 {
			continue
		}
		first := 0
		if lo > sec.anchor {
			first = int(math.Floor((lo - sec.anchor) / pd))
		}
		for i := first; ; i++ {
			base := sec.anchor + float64(i)*pd
			if base >= hi || base >= end {
				break
			}
			for j, h := range p.Hits {
				t := sec.anchor + float64(i)*pd + h.BeatOffset*bd
				if t < lo || t >= hi || t >= end {
					continue
				}
				key := hitKey{pass: sec.pass, pattern: p.ID, hit: hitID(h, j), iteration: i}
				if _, done := s.scheduled[key]; done {
					continue
				}
				s.scheduled[key] = t
				s.out.ScheduleHit(HitEvent{
					PatternID: p.ID,
					HitID:     key.hit,
					PadID:     h.PadID,
					Time:      t,
					Pass:      sec.pass,
					Iteration: i,
				})
				n++
			}
		}
	}
	return n
}

func hitID(h model.Hit, index int) string {
	if h.ID != "" {
		return h.ID
	}
	return "#" + strconv.Itoa(index)
}

// current resolves the section the transport is in.
func (s *Scheduler) current(snap *model.Snapshot) (section, bool) {
	return s.resolve(snap, s.step, s.pass, s.anchor)
}

func (s *Scheduler) next(snap *model.Snapshot, sec section) (section, bool) {
	step := sec.step
	if s.mode == SongMode && !s.sectionLoop && len(snap.Song) > 0 {
		step = (step + 1) % len(snap.Song)
	}
	return s.resolve(snap, step, sec.pass+1, sec.end())
}

// resolve builds the section for step. In song mode a step with no
// playable pattern takes no time: the search moves on to the following
// steps, at most one lap, the way Timeline lays the song out.
func (s *Scheduler) resolve(snap *model.Snapshot, step, pass int, anchor float64) (section, bool) {
	sec := section{step: step, pass: pass, anchor: anchor}
	if s.mode == SongMode {
		n := len(snap.Song)
		for k := 0; k < n; k++ {
			sec.step = (step + k) % n
			st := snap.Song[sec.step]
			sec.patterns = snap.StepPatterns(st)
			sec.duration = snap.StepDuration(st)
			if sec.duration > 0 && len(sec.patterns) > 0 {
				return sec, true
			}
		}
		return sec, false
	}
	p, ok := snap.Pattern(s.patternModeID(snap))
	if !ok {
		return sec, false
	}
	sec.patterns = []*model.Pattern{p}
	sec.duration = p.Duration(snap.Tempo)
	return sec, sec.duration > 0
}

// patternModeID is the selected pattern, or the first pattern when nothing
// is selected or the selection has been deleted.
func (s *Scheduler) patternModeID(snap *model.Snapshot) string {
	if s.selected != "" {
		if _, ok := snap.Pattern(s.selected); ok {
			return s.selected
		}
	}
	if len(snap.Patterns) > 0 {
		return snap.Patterns[0].ID
	}
	return ""
}

// armedPattern is where recorded hits go.
func (s *Scheduler) armedPattern(snap *model.Snapshot) (*model.Pattern, bool) {
	if s.mode != SongMode {
		return snap.Pattern(s.patternModeID(snap))
	}
	if len(snap.Song) == 0 {
		return nil, false
	}
	st := snap.Song[s.step%len(snap.Song)]
	if st.ArmedPatternID != "" {
		if p, ok := snap.Pattern(st.ArmedPatternID); ok {
			return p, true
		}
	}
	for _, id := range st.ActivePatternIDs {
		if p, ok := snap.Pattern(id); ok {
			return p, true
		}
	}
	return nil, false
}

// ArmedPattern names the pattern recorded hits go to.
func (s *Scheduler) ArmedPattern() (string, bool) {
	snap := s.store.Snapshot()
	if snap == nil {
		return "", false
	}
	p, ok := s.armedPattern(snap)
	if !ok {
		return "", false
	}
	return p.ID, true
}

// Record turns a manual trigger at now into a hit on the armed pattern.
// The hit's slot in the running iteration is marked as already scheduled;
// the performer just played it.
func (s *Scheduler) Record(padID string, now float64) (model.Hit, bool) {
	if !s.playing || !s.recording {
		return model.Hit{}, false
	}
	snap := s.store.Snapshot()
	if snap == nil {
		return model.Hit{}, false
	}
	bd := model.BeatDuration(snap.Tempo)
	p, ok := s.armedPattern(snap)
	if bd <= 0 || !ok {
		return model.Hit{}, false
	}
	pd := p.Duration(snap.Tempo)
	if pd <= 0 {
		return model.Hit{}, false
	}
	elapsed := now - s.anchor
	offset := math.Mod(elapsed, pd)
	if offset < 0 {
		offset += pd
	}
	iteration := int(math.Floor(elapsed / pd))
	raw := offset / bd
	beat := Quantize(raw, s.grid, p.Beats())
	if beat < raw-s.grid.Beats() {
		// rounded past the end and wrapped to the next iteration
		iteration++
	}

	hit := model.Hit{
		ID:                 s.newID(),
		PadID:              padID,
		BeatOffset:         beat,
		OriginalBeatOffset: raw,
		Pass:               s.pass,
	}
	if !s.store.AppendHit(p.ID, hit, s.cfg.MaxHits) {
		return model.Hit{}, false
	}
	pass := s.pass
	t := s.anchor + float64(iteration)*pd + beat*bd
	if cur, ok := s.current(snap); ok && t >= cur.end() {
		// the slot falls on the first loop of the next section
		pass++
		iteration = 0
	}
	s.scheduled[hitKey{pass: pass, pattern: p.ID, hit: hit.ID, iteration: iteration}] = t
	return hit, true
}
