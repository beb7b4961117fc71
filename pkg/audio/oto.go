package audio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// DefaultSampleRate and DefaultChannels are the device format used when
// nothing is configured. Decoded buffers are converted to this format.
const (
	DefaultSampleRate = 44100
	DefaultChannels   = 2
)

// OtoDevice implements Device on real hardware via oto.
type OtoDevice struct {
	ctx        *oto.Context
	mu         sync.Mutex
	ready      bool
	suspended  bool
	sampleRate int
	channels   int
}

// NewOtoDevice initializes an oto context for the given format. bufferMs of
// zero picks a platform default.
func NewOtoDevice(sampleRate, channels, bufferMs int) (*OtoDevice, error) {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	opts := &oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: channels,
		Format:       oto.FormatSignedInt16LE,
	}
	if bufferMs > 0 {
		opts.BufferSize = time.Duration(bufferMs) * time.Millisecond
	} else {
		switch runtime.GOOS {
		case "darwin":
			// CoreAudio benefits from larger buffers.
			opts.BufferSize = 100 * time.Millisecond
		case "windows":
			opts.BufferSize = 80 * time.Millisecond
		default:
			opts.BufferSize = 50 * time.Millisecond
		}
	}

	log.Debug("initializing output device",
		"sample_rate", opts.SampleRate,
		"channels", opts.ChannelCount,
		"buffer_size", opts.BufferSize)

	ctx, readyChan, err := oto.NewContext(opts)
	if err != nil {
		return nil, fmt.Errorf("create audio context: %w", err)
	}
	select {
	case <-readyChan:
	case <-time.After(5 * time.Second):
		return nil, errors.New("audio context initialization timeout")
	}

	return &OtoDevice{
		ctx:        ctx,
		ready:      true,
		sampleRate: sampleRate,
		channels:   channels,
	}, nil
}

// NewPlayer creates a paused oto player over r.
func (d *OtoDevice) NewPlayer(r io.Reader) (Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.ctx == nil {
		return nil, errors.New("output device not ready")
	}
	return &otoPlayer{player: d.ctx.NewPlayer(r), volume: 1.0}, nil
}

// Resume resumes a suspended device. Calling Resume on a running device is
// a no-op.
func (d *OtoDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.ctx == nil {
		return errors.New("output device not ready")
	}
	if !d.suspended {
		return nil
	}
	if err := d.ctx.Resume(); err != nil {
		return fmt.Errorf("resume device: %w", err)
	}
	d.suspended = false
	return nil
}

// Suspend pauses the whole device.
func (d *OtoDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready || d.ctx == nil {
		return errors.New("output device not ready")
	}
	if d.suspended {
		return nil
	}
	if err := d.ctx.Suspend(); err != nil {
		return fmt.Errorf("suspend device: %w", err)
	}
	d.suspended = true
	return nil
}

// SampleRate returns the device sample rate.
func (d *OtoDevice) SampleRate() int { return d.sampleRate }

// ChannelCount returns the device channel count.
func (d *OtoDevice) ChannelCount() int { return d.channels }

// Close marks the device unusable. oto contexts have no Close of their
// own; the context is dropped and collected.
func (d *OtoDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ready = false
	d.ctx = nil
	return nil
}

// otoPlayer wraps an oto.Player to implement Player.
type otoPlayer struct {
	player *oto.Player
	mu     sync.Mutex
	volume float64
}

func (p *otoPlayer) Play()  { p.player.Play() }
func (p *otoPlayer) Pause() { p.player.Pause() }

func (p *otoPlayer) IsPlaying() bool { return p.player.IsPlaying() }

func (p *otoPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
	p.player.SetVolume(volume)
}

func (p *otoPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

func (p *otoPlayer) Close() error {
	return p.player.Close()
}
