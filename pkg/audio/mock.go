package audio

import (
	"errors"
	"io"
	"sync"
)

// MockDevice implements Device without touching hardware. Tests and
// headless environments use it; it records every player it hands out.
type MockDevice struct {
	mu        sync.Mutex
	ready     bool
	suspended bool
	players   []*MockPlayer

	sampleRate int
	channels   int

	// Test counters.
	PlayersCreated int
	PlayersClosed  int
	Resumes        int
	Suspends       int
}

// NewMockDevice creates a ready mock device with the given format.
func NewMockDevice(sampleRate, channels int) *MockDevice {
	if sampleRate <= 0 {
		sampleRate = DefaultSampleRate
	}
	if channels <= 0 {
		channels = DefaultChannels
	}
	return &MockDevice{ready: true, sampleRate: sampleRate, channels: channels}
}

// NewPlayer records and returns a mock player. The source reader is kept
// so tests can drive consumption explicitly.
func (d *MockDevice) NewPlayer(r io.Reader) (Player, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return nil, errors.New("mock device closed")
	}
	p := &MockPlayer{device: d, source: r, volume: 1.0}
	d.players = append(d.players, p)
	d.PlayersCreated++
	return p, nil
}

// Resume clears the suspended flag.
func (d *MockDevice) Resume() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.ready {
		return errors.New("mock device closed")
	}
	d.Resumes++
	d.suspended = false
	return nil
}

// Suspend sets the suspended flag.
func (d *MockDevice) Suspend() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Suspends++
	d.suspended = true
	return nil
}

// SampleRate returns the configured rate.
func (d *MockDevice) SampleRate() int { return d.sampleRate }

// ChannelCount returns the configured channel count.
func (d *MockDevice) ChannelCount() int { return d.channels }

// Close closes all players and marks the device unusable.
func (d *MockDevice) Close() error {
	d.mu.Lock()
	players := append([]*MockPlayer(nil), d.players...)
	d.ready = false
	d.mu.Unlock()
	for _, p := range players {
		_ = p.Close()
	}
	return nil
}

// Players returns every player created so far.
func (d *MockDevice) Players() []*MockPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*MockPlayer(nil), d.players...)
}

// LastPlayer returns the most recently created player, or nil.
func (d *MockDevice) LastPlayer() *MockPlayer {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(d.players) == 0 {
		return nil
	}
	return d.players[len(d.players)-1]
}

// MockPlayer implements Player with plain state flags.
type MockPlayer struct {
	device *MockDevice
	source io.Reader

	mu      sync.Mutex
	playing bool
	closed  bool
	volume  float64

	// Started counts Play calls, letting tests assert a source was ever
	// audible.
	Started int
}

// Play marks the player audible.
func (p *MockPlayer) Play() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return
	}
	p.playing = true
	p.Started++
}

// Pause marks the player silent.
func (p *MockPlayer) Pause() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// IsPlaying reports the playing flag.
func (p *MockPlayer) IsPlaying() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.playing && !p.closed
}

// SetVolume records the gain.
func (p *MockPlayer) SetVolume(volume float64) {
	p.mu.Lock()
	p.volume = volume
	p.mu.Unlock()
}

// Volume returns the recorded gain.
func (p *MockPlayer) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Close halts and disconnects the player. Safe to call twice.
func (p *MockPlayer) Close() error {
	p.mu.Lock()
	alreadyClosed := p.closed
	p.closed = true
	p.playing = false
	p.mu.Unlock()
	if !alreadyClosed && p.device != nil {
		p.device.mu.Lock()
		p.device.PlayersClosed++
		p.device.mu.Unlock()
	}
	return nil
}

// Finish simulates the device draining the source: the player stops
// reporting playing, as a real player does at end of buffer.
func (p *MockPlayer) Finish() {
	p.mu.Lock()
	p.playing = false
	p.mu.Unlock()
}

// Source returns the reader the player was created over.
func (p *MockPlayer) Source() io.Reader {
	return p.source
}
