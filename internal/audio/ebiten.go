package audio

import (
	"fmt"
	"sync"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

var (
	ebitenOnce sync.Once
	ebitenCtx  *ebitaudio.Context
	ebitenRate int
)

// ebiten allows one audio context per process.
func sharedEbitenContext(sampleRate int) (*ebitaudio.Context, error) {
	ebitenOnce.Do(func() {
		ebitenRate = sampleRate
		ebitenCtx = ebitaudio.NewContext(sampleRate)
	})
	if ebitenRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", ebitenRate, sampleRate)
	}
	return ebitenCtx, nil
}

// EbitenDevice plays through ebiten's audio package.
type EbitenDevice struct {
	mu     sync.Mutex
	player *ebitaudio.Player
	reader *StreamReader
	state  State
	// wantPlay is set by Play/Resume; a player that stops on its own while
	// wanted is reported as interrupted.
	wantPlay bool
}

func NewEbitenDevice(sampleRate int, src SampleSource) (*EbitenDevice, error) {
	ctx, err := sharedEbitenContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(src)
	pl, err := ctx.NewPlayerF32(reader)
	if err != nil {
		return nil, fmt.Errorf("audio: new player: %w", err)
	}
	return &EbitenDevice{player: pl, reader: reader, state: Suspended}, nil
}

func (d *EbitenDevice) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return
	}
	d.player.Play()
	d.wantPlay = true
	d.state = Running
}

func (d *EbitenDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return
	}
	d.player.Pause()
	d.wantPlay = false
	d.state = Suspended
}

func (d *EbitenDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return ErrDeviceClosed
	}
	d.player.Play()
	d.wantPlay = true
	if !d.player.IsPlaying() {
		d.state = Interrupted
		return fmt.Errorf("audio: player did not restart")
	}
	d.state = Running
	return nil
}

func (d *EbitenDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Running && d.wantPlay && !d.player.IsPlaying() {
		d.state = Interrupted
	}
	return d.state
}

func (d *EbitenDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return nil
	}
	d.state = Closed
	d.player.Pause()
	if err := d.player.Close(); err != nil {
		return err
	}
	return d.reader.Close()
}
