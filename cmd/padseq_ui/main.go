package main

import (
	"flag"
	"fmt"
	"image"
	"image/color"
	"log"
	"sync"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/inpututil"

	"github.com/cbegin/padseq-go"
	"github.com/cbegin/padseq-go/internal/model"
	"github.com/cbegin/padseq-go/internal/project"
)

const (
	windowW = 980
	windowH = 660

	textScale = 2
	charW     = 7 * textScale
	lineH     = 14 * textScale

	gridCols = 4
	gridRows = 4

	scopeLen = 2048
	ringLen  = 65536
)

var (
	bgColor        = color.RGBA{192, 192, 192, 255}
	panelColor     = color.RGBA{192, 192, 192, 255}
	borderColor    = color.RGBA{128, 128, 128, 255}
	bevelLight     = color.RGBA{255, 255, 255, 255}
	bevelDarker    = color.RGBA{64, 64, 64, 255}
	sunkenBgColor  = color.RGBA{24, 24, 32, 255}
	padIdleColor   = color.RGBA{88, 92, 110, 255}
	padLitColor    = color.RGBA{255, 170, 40, 255}
	padEmptyColor  = color.RGBA{56, 58, 66, 255}
	activeColor    = color.RGBA{0, 0, 128, 255}
	recordColor    = color.RGBA{170, 20, 20, 255}
	sliderFill     = color.RGBA{0, 0, 128, 255}
	waveColor      = color.RGBA{80, 200, 255, 220}
	scopeBg        = color.RGBA{14, 16, 22, 255}
	scopeGridColor = color.RGBA{40, 44, 58, 100}
)

// padKeys trigger the grid, row by row.
var padKeys = []ebiten.Key{
	ebiten.KeyDigit1, ebiten.KeyDigit2, ebiten.KeyDigit3, ebiten.KeyDigit4,
	ebiten.KeyQ, ebiten.KeyW, ebiten.KeyE, ebiten.KeyR,
	ebiten.KeyA, ebiten.KeyS, ebiten.KeyD, ebiten.KeyF,
	ebiten.KeyZ, ebiten.KeyX, ebiten.KeyC, ebiten.KeyV,
}

var padKeyLabels = []string{"1", "2", "3", "4", "Q", "W", "E", "R", "A", "S", "D", "F", "Z", "X", "C", "V"}

var eqBandLabels = [5]string{"Lo", "LoM", "Mid", "HiM", "Hi"}

// scope keeps the most recent mono output for the waveform view.
type scope struct {
	mu       sync.Mutex
	ring     []float32
	writePos int
}

func newScope() *scope {
	return &scope{ring: make([]float32, ringLen)}
}

// Tap runs on the audio thread.
func (s *scope) Tap(samples []float32) {
	s.mu.Lock()
	for i := 0; i+1 < len(samples); i += 2 {
		s.ring[s.writePos] = (samples[i] + samples[i+1]) * 0.5
		s.writePos = (s.writePos + 1) % ringLen
	}
	s.mu.Unlock()
}

func (s *scope) Latest(n int) []float32 {
	out := make([]float32, n)
	s.mu.Lock()
	start := (s.writePos - n + ringLen) % ringLen
	for i := range out {
		out[i] = s.ring[(start+i)%ringLen]
	}
	s.mu.Unlock()
	return out
}

type button int

const (
	btnPlay button = iota
	btnRecord
	btnMode
	btnPattern
	btnClick
	btnQuantize
	numButtons
)

type game struct {
	engine    *padseq.Engine
	transport *padseq.Transport
	store     model.Store
	events    <-chan padseq.Event
	scope     *scope

	scopeImg *ebiten.Image
	wavePeak float64

	lit        map[string]bool
	pressedPad int
	patternIdx int
	volume     float64
	eqGains    [5]float64

	draggingVolume bool
	draggingEQ     int

	step, pass, bar, beat int

	status    string
	statusErr bool
	textCache map[string]*ebiten.Image
}

func newGame(proj *project.Project) (*game, error) {
	sc := newScope()
	opts := []padseq.EngineOption{padseq.WithSampleTap(sc.Tap)}
	if len(proj.Effects) > 0 {
		opts = append(opts, padseq.WithMasterEffects(proj.Snapshot.Tempo, proj.Effects...))
	}
	eng, err := padseq.NewEngine(opts...)
	if err != nil {
		return nil, err
	}
	store := model.NewMemoryStore(proj.Snapshot)
	tr := padseq.NewTransport(eng, store)
	g := &game{
		engine:     eng,
		transport:  tr,
		store:      store,
		events:     tr.Watch(),
		scope:      sc,
		lit:        make(map[string]bool),
		pressedPad: -1,
		volume:     1,
		eqGains:    [5]float64{1, 1, 1, 1, 1},
		draggingEQ: -1,
		status:     "Ready",
		textCache:  make(map[string]*ebiten.Image, 256),
	}
	if len(proj.Problems) > 0 {
		g.setError(proj.Problems[0].Error())
	}
	return g, nil
}

// Update runs at the display rate and doubles as the scheduler tick.
func (g *game) Update() error {
	g.transport.Tick()
	g.pollEvents()
	g.handleKeys()
	g.handleMouse()
	return nil
}

func (g *game) Draw(screen *ebiten.Image) {
	screen.Fill(bgColor)
	l := layoutRects()
	st := g.transport.State()
	for b := btnPlay; b < numButtons; b++ {
		label, fill := g.buttonFace(b, st)
		g.drawButton(screen, l.buttons[b], label, fill)
	}
	g.drawPads(screen, l.grid)
	g.drawScope(screen, l.scope)
	g.drawPanel(screen, l.eq)
	g.drawEQ(screen, l.eq)
	g.drawVolumeSlider(screen, l.volume)
	g.drawSunkenPanel(screen, l.status)
	pos := fmt.Sprintf("Step %d  Pass %d  %d.%d", g.step+1, g.pass+1, g.bar+1, g.beat+1)
	msg := pos + "   " + g.status
	if g.statusErr {
		msg = pos + "   ERROR - " + g.status
	}
	g.drawText(screen, shorten(msg, (l.status.Dx()-16)/charW), l.status.Min.X+8, l.status.Min.Y+6)
}

func (g *game) Layout(outsideW, outsideH int) (int, int) {
	return windowW, windowH
}

func (g *game) Close() { _ = g.engine.Close() }

type uiLayout struct {
	buttons [numButtons]image.Rectangle
	grid    image.Rectangle
	scope   image.Rectangle
	eq      image.Rectangle
	volume  image.Rectangle
	status  image.Rectangle
}

func layoutRects() uiLayout {
	var l uiLayout
	bw := (windowW - 24 - 8*int(numButtons-1)) / int(numButtons)
	for i := range l.buttons {
		x := 12 + i*(bw+8)
		l.buttons[i] = image.Rect(x, 12, x+bw, 56)
	}
	l.grid = image.Rect(12, 68, 560, 596)
	l.scope = image.Rect(572, 68, windowW-12, 300)
	l.eq = image.Rect(572, 312, windowW-12, 500)
	l.volume = image.Rect(572, 512, windowW-12, 596)
	l.status = image.Rect(12, 608, windowW-12, windowH-12)
	return l
}

func padRect(grid image.Rectangle, i int) image.Rectangle {
	cw := grid.Dx() / gridCols
	ch := grid.Dy() / gridRows
	x := grid.Min.X + (i%gridCols)*cw
	y := grid.Min.Y + (i/gridCols)*ch
	return image.Rect(x+4, y+4, x+cw-4, y+ch-4)
}

func (g *game) pollEvents() {
	for {
		select {
		case ev := <-g.events:
			switch ev.Kind {
			case padseq.EventPadOn:
				g.lit[ev.PadID] = true
			case padseq.EventPadOff:
				delete(g.lit, ev.PadID)
			case padseq.EventBeat:
				g.step, g.pass, g.bar, g.beat = ev.Step, ev.Pass, ev.Bar, ev.Beat
			case padseq.EventRecorded:
				g.setStatus(fmt.Sprintf("Recorded %s into %s at beat %.2f", ev.PadID, ev.PatternID, ev.Hit.BeatOffset))
			case padseq.EventDeviceError:
				g.setError(ev.Err.Error())
			case padseq.EventStopped:
				clear(g.lit)
				g.step, g.pass, g.bar, g.beat = 0, 0, 0, 0
			}
		default:
			return
		}
	}
}

func (g *game) handleKeys() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.press(btnPlay)
	}
	for i, k := range padKeys {
		if inpututil.IsKeyJustPressed(k) {
			g.triggerPad(i)
		}
		if inpututil.IsKeyJustReleased(k) {
			g.releasePad(i)
		}
	}
}

func (g *game) handleMouse() {
	mx, my := ebiten.CursorPosition()
	l := layoutRects()
	if inpututil.IsMouseButtonJustPressed(ebiten.MouseButtonLeft) {
		for b := btnPlay; b < numButtons; b++ {
			if pointInRect(mx, my, l.buttons[b]) {
				g.press(b)
				return
			}
		}
		for i := 0; i < gridCols*gridRows; i++ {
			if pointInRect(mx, my, padRect(l.grid, i)) {
				g.pressedPad = i
				g.triggerPad(i)
				return
			}
		}
		if pointInRect(mx, my, l.volume) {
			g.draggingVolume = true
		}
		if pointInRect(mx, my, l.eq) {
			g.draggingEQ = eqBandFromMouse(mx, l.eq)
		}
	}
	if inpututil.IsMouseButtonJustReleased(ebiten.MouseButtonLeft) {
		if g.pressedPad >= 0 {
			g.releasePad(g.pressedPad)
			g.pressedPad = -1
		}
		g.draggingVolume = false
		g.draggingEQ = -1
		return
	}
	if g.draggingVolume {
		g.updateVolumeFromMouse(mx, l.volume)
	}
	if g.draggingEQ >= 0 {
		g.dragEQ(my, l.eq)
	}
}

func (g *game) pads() []model.Pad {
	pads := g.store.Snapshot().Pads
	if len(pads) > gridCols*gridRows {
		pads = pads[:gridCols*gridRows]
	}
	return pads
}

func (g *game) triggerPad(i int) {
	pads := g.pads()
	if i >= len(pads) {
		return
	}
	if err := g.transport.TriggerPad(pads[i].ID); err != nil {
		g.setError(err.Error())
	}
}

func (g *game) releasePad(i int) {
	pads := g.pads()
	if i >= len(pads) || !pads[i].Loop {
		return
	}
	_ = g.transport.ReleasePad(pads[i].ID)
}

func (g *game) press(b button) {
	st := g.transport.State()
	switch b {
	case btnPlay:
		if st.Playing {
			g.transport.Stop()
			g.setStatus("Stopped")
		} else {
			g.transport.Start()
			g.setStatus("Playing")
		}
	case btnRecord:
		if err := g.transport.SetRecording(!st.Recording); err != nil {
			g.setError(err.Error())
		}
	case btnMode:
		g.transport.SetSongMode(!st.SongMode)
	case btnPattern:
		patterns := g.store.Snapshot().Patterns
		if len(patterns) == 0 {
			return
		}
		g.patternIdx = (g.patternIdx + 1) % len(patterns)
		if err := g.transport.SelectPattern(patterns[g.patternIdx].ID); err != nil {
			g.setError(err.Error())
			return
		}
		g.setStatus("Pattern " + patterns[g.patternIdx].Name)
	case btnClick:
		g.transport.SetMetronome(!st.Metronome)
	case btnQuantize:
		g.transport.SetQuantize((st.Quantize + 1) % (padseq.GridSixteenth + 1))
	}
}

func (g *game) buttonFace(b button, st padseq.TransportState) (string, color.Color) {
	switch b {
	case btnPlay:
		if st.Playing {
			return "Stop", activeColor
		}
		return "Play", panelColor
	case btnRecord:
		if st.Recording {
			return "Rec", recordColor
		}
		return "Rec", panelColor
	case btnMode:
		if st.SongMode {
			return "Song", activeColor
		}
		return "Pattern", panelColor
	case btnPattern:
		name := st.Pattern
		if p, ok := g.store.Snapshot().Pattern(st.Pattern); ok && p.Name != "" {
			name = p.Name
		}
		if name == "" {
			name = "-"
		}
		return shorten(name, 9), panelColor
	case btnClick:
		if st.Metronome {
			return "Click", activeColor
		}
		return "Click", panelColor
	case btnQuantize:
		return "Q " + st.Quantize.String(), panelColor
	}
	return "", panelColor
}

func (g *game) drawPads(screen *ebiten.Image, grid image.Rectangle) {
	pads := g.pads()
	snap := g.store.Snapshot()
	for i := 0; i < gridCols*gridRows; i++ {
		r := padRect(grid, i)
		fill := padEmptyColor
		name := ""
		if i < len(pads) {
			fill = padIdleColor
			if g.lit[pads[i].ID] {
				fill = padLitColor
			}
			name = pads[i].Name
			if name == "" {
				name = pads[i].ID
			}
			if s, _ := snap.Sample(pads[i].SampleID); !pads[i].Playable(s) {
				name = "(" + name + ")"
			}
		}
		ebitenutil.DrawRect(screen, float64(r.Min.X), float64(r.Min.Y), float64(r.Dx()), float64(r.Dy()), fill)
		drawBorder(screen, r)
		g.drawText(screen, padKeyLabels[i], r.Min.X+8, r.Min.Y+6)
		g.drawText(screen, shorten(name, (r.Dx()-16)/charW), r.Min.X+8, r.Max.Y-lineH-6)
	}
}

func (g *game) drawScope(screen *ebiten.Image, rect image.Rectangle) {
	g.drawSunkenPanel(screen, rect)
	inner := rect.Inset(8)
	w, h := inner.Dx(), inner.Dy()
	if w < 2 || h < 4 {
		return
	}
	if g.scopeImg == nil || g.scopeImg.Bounds().Dx() != w || g.scopeImg.Bounds().Dy() != h {
		g.scopeImg = ebiten.NewImage(w, h)
	}
	g.scopeImg.Fill(scopeBg)
	samples := g.scope.Latest(scopeLen)
	midY := h / 2
	ebitenutil.DrawRect(g.scopeImg, 0, float64(midY), float64(w), 1, scopeGridColor)

	// fast attack, slow release auto-gain
	peak := 0.0
	for _, s := range samples {
		if a := float64(s); a > peak {
			peak = a
		} else if -a > peak {
			peak = -a
		}
	}
	peak = max(peak, 0.01)
	if peak > g.wavePeak {
		g.wavePeak = g.wavePeak*0.3 + peak*0.7
	} else {
		g.wavePeak = g.wavePeak*0.995 + peak*0.005
	}
	gain := float64(midY-2) / max(g.wavePeak, 0.01)

	start := risingZero(samples, len(samples)/4)
	visible := max(len(samples)-start, 2)
	prevY := midY - int(float64(samples[start])*gain)
	for px := 1; px < w; px++ {
		si := min(start+px*visible/w, len(samples)-1)
		y := midY - int(float64(samples[si])*gain)
		ebitenutil.DrawLine(g.scopeImg, float64(px-1), float64(prevY), float64(px), float64(y), waveColor)
		prevY = y
	}
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Translate(float64(inner.Min.X), float64(inner.Min.Y))
	screen.DrawImage(g.scopeImg, op)
}

// risingZero finds a rising zero crossing so the waveform holds still.
func risingZero(samples []float32, searchLen int) int {
	searchLen = min(searchLen, len(samples)-2)
	for i := 1; i < searchLen; i++ {
		if samples[i-1] <= 0 && samples[i] > 0 {
			return i
		}
	}
	return 0
}

func (g *game) drawEQ(screen *ebiten.Image, rect image.Rectangle) {
	inner := rect.Inset(8)
	bandW := inner.Dx() / len(g.eqGains)
	trackH := inner.Dy() - lineH - 4
	for i, gain := range g.eqGains {
		bx := inner.Min.X + i*bandW
		bw := bandW - 4
		ebitenutil.DrawRect(screen, float64(bx+bw/2-2), float64(inner.Min.Y), 4, float64(trackH), bevelDarker)
		ebitenutil.DrawRect(screen, float64(bx), float64(inner.Min.Y+trackH/2), float64(bw), 1, borderColor)
		knobY := inner.Min.Y + trackH - int(clamp(gain/2, 0, 1)*float64(trackH)) - 4
		knob := image.Rect(bx+2, knobY, bx+bw-2, knobY+8)
		ebitenutil.DrawRect(screen, float64(knob.Min.X), float64(knob.Min.Y), float64(knob.Dx()), float64(knob.Dy()), panelColor)
		drawBorder(screen, knob)
		g.drawText(screen, eqBandLabels[i], bx+2, inner.Max.Y-lineH)
	}
}

func eqBandFromMouse(mx int, rect image.Rectangle) int {
	inner := rect.Inset(8)
	bandW := inner.Dx() / 5
	if bandW <= 0 {
		return -1
	}
	idx := (mx - inner.Min.X) / bandW
	if idx < 0 || idx >= 5 {
		return -1
	}
	return idx
}

func (g *game) dragEQ(my int, rect image.Rectangle) {
	inner := rect.Inset(8)
	trackH := inner.Dy() - lineH - 4
	if trackH <= 0 {
		return
	}
	gain := (1 - clamp(float64(my-inner.Min.Y)/float64(trackH), 0, 1)) * 2
	g.eqGains[g.draggingEQ] = gain
	g.engine.SetEQBand(g.draggingEQ, float32(gain))
	g.setStatus(fmt.Sprintf("EQ %s: %.1f", eqBandLabels[g.draggingEQ], gain))
}

func (g *game) drawVolumeSlider(screen *ebiten.Image, rect image.Rectangle) {
	g.drawPanel(screen, rect)
	g.drawText(screen, fmt.Sprintf("Vol %d%%", int(g.volume*100+0.5)), rect.Min.X+8, rect.Min.Y+8)
	trackX, trackW := rect.Min.X+12, rect.Dx()-24
	trackY := rect.Max.Y - 24
	ebitenutil.DrawRect(screen, float64(trackX), float64(trackY), float64(trackW), 8, bevelDarker)
	fillW := int(float64(trackW) * clamp(g.volume, 0, 1))
	if fillW > 2 {
		ebitenutil.DrawRect(screen, float64(trackX+1), float64(trackY+1), float64(fillW-1), 6, sliderFill)
	}
	knobX := min(max(trackX+fillW-5, trackX-5), trackX+trackW-5)
	knob := image.Rect(knobX, trackY-4, knobX+10, trackY+12)
	ebitenutil.DrawRect(screen, float64(knob.Min.X), float64(knob.Min.Y), float64(knob.Dx()), float64(knob.Dy()), panelColor)
	drawBorder(screen, knob)
}

func (g *game) updateVolumeFromMouse(mx int, rect image.Rectangle) {
	trackX, trackW := rect.Min.X+12, rect.Dx()-24
	g.volume = clamp(float64(mx-trackX)/float64(trackW), 0, 1)
	g.engine.SetMasterVolume(g.volume)
}

func (g *game) setError(msg string) {
	g.status = msg
	g.statusErr = true
}

func (g *game) setStatus(msg string) {
	g.status = msg
	g.statusErr = false
}

func (g *game) drawPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), panelColor)
	drawBorder(screen, rect)
}

func (g *game) drawSunkenPanel(screen *ebiten.Image, rect image.Rectangle) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), sunkenBgColor)
	drawSunkenBorder(screen, rect)
}

func (g *game) drawButton(screen *ebiten.Image, rect image.Rectangle, label string, fill color.Color) {
	ebitenutil.DrawRect(screen, float64(rect.Min.X), float64(rect.Min.Y), float64(rect.Dx()), float64(rect.Dy()), fill)
	drawBorder(screen, rect)
	x := rect.Min.X + (rect.Dx()-len([]rune(label))*charW)/2
	y := rect.Min.Y + (rect.Dy()-lineH)/2
	g.drawText(screen, label, x, y)
}

// drawBorder draws a raised bevel: highlight top and left, shadow bottom
// and right.
func drawBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelLight)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelLight)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelDarker)
}

func drawSunkenBorder(screen *ebiten.Image, rect image.Rectangle) {
	x, y := float64(rect.Min.X), float64(rect.Min.Y)
	w, h := float64(rect.Dx()), float64(rect.Dy())
	ebitenutil.DrawRect(screen, x, y, w-1, 1, bevelDarker)
	ebitenutil.DrawRect(screen, x, y+1, 1, h-2, bevelDarker)
	ebitenutil.DrawRect(screen, x, y+h-1, w, 1, bevelLight)
	ebitenutil.DrawRect(screen, x+w-1, y, 1, h, bevelLight)
}

func (g *game) drawText(screen *ebiten.Image, msg string, x, y int) {
	if msg == "" {
		return
	}
	img := g.textCache[msg]
	if img == nil {
		img = ebiten.NewImage(max(1, len([]rune(msg))*7), 14)
		ebitenutil.DebugPrintAt(img, msg, 0, 0)
		if len(g.textCache) > 1000 {
			clear(g.textCache)
		}
		g.textCache[msg] = img
	}
	shadow := &ebiten.DrawImageOptions{}
	shadow.GeoM.Scale(textScale, textScale)
	shadow.GeoM.Translate(float64(x+2), float64(y+2))
	shadow.ColorScale.Scale(0, 0, 0, 1)
	screen.DrawImage(img, shadow)
	op := &ebiten.DrawImageOptions{}
	op.GeoM.Scale(textScale, textScale)
	op.GeoM.Translate(float64(x), float64(y))
	screen.DrawImage(img, op)
}

func shorten(s string, maxChars int) string {
	r := []rune(s)
	if len(r) <= maxChars {
		return s
	}
	if maxChars <= 3 {
		return string(r[:max(0, maxChars)])
	}
	return string(r[:maxChars-3]) + "..."
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func pointInRect(x, y int, rect image.Rectangle) bool {
	return image.Pt(x, y).In(rect)
}

func main() {
	projectPath := flag.String("project", "", "path to a project YAML file")
	flag.Parse()
	if *projectPath == "" && flag.NArg() > 0 {
		*projectPath = flag.Arg(0)
	}
	if *projectPath == "" {
		log.Fatal("usage: padseq_ui -project song.yaml")
	}
	proj, err := project.Load(*projectPath)
	if err != nil {
		log.Fatal(err)
	}
	for _, p := range proj.Problems {
		log.Printf("warning: %v", p)
	}

	g, err := newGame(proj)
	if err != nil {
		log.Fatal(err)
	}
	defer g.Close()

	ebiten.SetWindowSize(windowW, windowH)
	ebiten.SetWindowTitle("padseq")
	if err := ebiten.RunGame(g); err != nil {
		log.Fatal(err)
	}
}
