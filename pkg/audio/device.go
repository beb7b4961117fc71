// Package audio abstracts the output device. The production implementation
// drives real hardware through oto; the mock implementation backs tests and
// headless environments.
package audio

import "io"

// Device is an initialized audio output. A device hands out players that
// consume little-endian 16-bit PCM at the device's fixed format.
type Device interface {
	// NewPlayer creates a player reading PCM from r. The player starts
	// paused.
	NewPlayer(r io.Reader) (Player, error)

	// Resume resumes the device if it was suspended.
	Resume() error

	// Suspend pauses the whole device.
	Suspend() error

	// SampleRate returns the device sample rate in Hz.
	SampleRate() int

	// ChannelCount returns the device channel count.
	ChannelCount() int

	// Close releases device resources.
	Close() error
}

// Player is a single output source bound to a device.
type Player interface {
	// Play starts or resumes playback.
	Play()

	// Pause halts playback without releasing the source.
	Pause()

	// IsPlaying reports whether the source is audible.
	IsPlaying() bool

	// SetVolume sets the linear output gain. Values above 1 are allowed;
	// normalization trims can boost quiet material.
	SetVolume(volume float64)

	// Volume returns the current gain.
	Volume() float64

	// Close halts and disconnects the source.
	Close() error
}
