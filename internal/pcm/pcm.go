// Package pcm holds decoded audio buffers and format conversion helpers.
package pcm

import (
	"encoding/binary"
	"time"
)

// BytesPerSample is the size of one 16-bit sample on the wire.
const BytesPerSample = 2

// Buffer is a fully decoded chunk of audio: interleaved signed 16-bit
// samples plus the format they were decoded at. Buffers are treated as
// immutable once returned by the decode layer; the cache owns them and
// players read them concurrently.
type Buffer struct {
	Samples    []int16
	Channels   int
	SampleRate int
}

// Frames returns the number of sample frames (samples per channel).
func (b *Buffer) Frames() int {
	if b.Channels == 0 {
		return 0
	}
	return len(b.Samples) / b.Channels
}

// Duration returns the playback length of the buffer.
func (b *Buffer) Duration() time.Duration {
	if b.SampleRate == 0 {
		return 0
	}
	return time.Duration(b.Frames()) * time.Second / time.Duration(b.SampleRate)
}

// Bytes renders the samples as little-endian 16-bit PCM, the format the
// output device consumes.
func (b *Buffer) Bytes() []byte {
	out := make([]byte, len(b.Samples)*BytesPerSample)
	for i, s := range b.Samples {
		binary.LittleEndian.PutUint16(out[i*BytesPerSample:], uint16(s))
	}
	return out
}

// FrameAt converts a time offset into a frame index, clamped to the buffer.
func (b *Buffer) FrameAt(offset time.Duration) int {
	if offset <= 0 || b.SampleRate == 0 {
		return 0
	}
	frame := int(offset * time.Duration(b.SampleRate) / time.Second)
	if frame > b.Frames() {
		frame = b.Frames()
	}
	return frame
}

// Convert remixes and resamples a buffer to the given device format.
// Returns the buffer unchanged when it already matches.
func Convert(b *Buffer, sampleRate, channels int) *Buffer {
	if b.SampleRate == sampleRate && b.Channels == channels {
		return b
	}
	out := b
	if out.Channels != channels {
		out = remix(out, channels)
	}
	if out.SampleRate != sampleRate {
		out = resample(out, sampleRate)
	}
	return out
}

// remix converts between channel counts by averaging down or duplicating up.
func remix(b *Buffer, channels int) *Buffer {
	frames := b.Frames()
	out := make([]int16, frames*channels)
	for f := 0; f < frames; f++ {
		switch {
		case channels == 1:
			// Average all source channels into mono.
			var sum int
			for c := 0; c < b.Channels; c++ {
				sum += int(b.Samples[f*b.Channels+c])
			}
			out[f] = int16(sum / b.Channels)
		case b.Channels == 1:
			for c := 0; c < channels; c++ {
				out[f*channels+c] = b.Samples[f]
			}
		default:
			for c := 0; c < channels; c++ {
				src := c
				if src >= b.Channels {
					src = b.Channels - 1
				}
				out[f*channels+c] = b.Samples[f*b.Channels+src]
			}
		}
	}
	return &Buffer{Samples: out, Channels: channels, SampleRate: b.SampleRate}
}

// resample performs linear interpolation to the target rate. Good enough
// for preview playback; sample editing stays in the original file.
func resample(b *Buffer, rate int) *Buffer {
	srcFrames := b.Frames()
	if srcFrames == 0 {
		return &Buffer{Channels: b.Channels, SampleRate: rate}
	}
	dstFrames := int(int64(srcFrames) * int64(rate) / int64(b.SampleRate))
	if dstFrames == 0 {
		dstFrames = 1
	}
	out := make([]int16, dstFrames*b.Channels)
	step := float64(b.SampleRate) / float64(rate)
	for f := 0; f < dstFrames; f++ {
		pos := float64(f) * step
		i := int(pos)
		frac := pos - float64(i)
		j := i + 1
		if j >= srcFrames {
			j = srcFrames - 1
		}
		for c := 0; c < b.Channels; c++ {
			a := float64(b.Samples[i*b.Channels+c])
			d := float64(b.Samples[j*b.Channels+c])
			out[f*b.Channels+c] = int16(a + (d-a)*frac)
		}
	}
	return &Buffer{Samples: out, Channels: b.Channels, SampleRate: rate}
}
