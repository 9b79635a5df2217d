package audio

import (
	"fmt"
	"sync"

	"github.com/ebitengine/oto/v3"
)

var (
	otoOnce sync.Once
	otoCtx  *oto.Context
	otoRate int
	otoErr  error
)

func sharedOtoContext(sampleRate int) (*oto.Context, error) {
	otoOnce.Do(func() {
		otoRate = sampleRate
		ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
			SampleRate:   sampleRate,
			ChannelCount: 2,
			Format:       oto.FormatFloat32LE,
		})
		if err != nil {
			otoErr = err
			return
		}
		<-ready
		otoCtx = ctx
	})
	if otoErr != nil {
		return nil, otoErr
	}
	if otoRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", otoRate, sampleRate)
	}
	return otoCtx, nil
}

// OtoDevice plays through oto directly. Unlike the ebiten backend it can
// suspend the whole context, which releases the platform device.
type OtoDevice struct {
	mu     sync.Mutex
	ctx    *oto.Context
	player *oto.Player
	reader *StreamReader
	state  State
}

func NewOtoDevice(sampleRate int, src SampleSource) (*OtoDevice, error) {
	ctx, err := sharedOtoContext(sampleRate)
	if err != nil {
		return nil, err
	}
	reader := NewStreamReader(src)
	return &OtoDevice{
		ctx:    ctx,
		player: ctx.NewPlayer(reader),
		reader: reader,
		state:  Suspended,
	}, nil
}

func (d *OtoDevice) Play() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return
	}
	d.player.Play()
	d.state = Running
}

func (d *OtoDevice) Pause() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return
	}
	d.player.Pause()
	if err := d.ctx.Suspend(); err != nil {
		d.state = Interrupted
		return
	}
	d.state = Suspended
}

func (d *OtoDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Closed {
		return ErrDeviceClosed
	}
	if err := d.ctx.Resume(); err != nil {
		d.state = Interrupted
		return fmt.Errorf("audio: resume: %w", err)
	}
	d.player.Play()
	d.state = Running
	return nil
}

func (d *OtoDevice) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state == Running && (d.ctx.Err() != nil || d.player.Err() != nil) {
		d.state = Interrupted
	}
	return d.state
}

func (d *OtoDevice) Close() error {
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
