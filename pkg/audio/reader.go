package audio

import (
	"io"
	"sync"
)

// Reader streams a PCM byte slice to a player, starting at a frame offset.
// When looping is enabled the reader wraps to the start instead of
// returning EOF; the flag can be toggled while the player is running.
type Reader struct {
	data       []byte
	frameBytes int

	mu       sync.Mutex
	pos      int
	loop     bool
	finished bool
}

// NewReader creates a reader over data, positioned at startFrame.
func NewReader(data []byte, frameBytes, startFrame int, loop bool) *Reader {
	pos := startFrame * frameBytes
	if pos > len(data) {
		pos = len(data)
	}
	return &Reader{data: data, frameBytes: frameBytes, pos: pos, loop: loop}
}

// Read copies whole frames into p. Destinations smaller than one frame
// are rejected; advancing by a partial frame would desync the channels.
func (r *Reader) Read(p []byte) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	// An empty buffer is done immediately, looping or not.
	if len(r.data) == 0 {
		r.finished = true
		return 0, io.EOF
	}
	if len(p) < r.frameBytes {
		return 0, io.ErrShortBuffer
	}
	if r.pos >= len(r.data) {
		if r.loop {
			r.pos = 0
		} else {
			r.finished = true
			return 0, io.EOF
		}
	}
	n := copy(p, r.data[r.pos:])
	n -= n % r.frameBytes
	r.pos += n
	return n, nil
}

// SetLoop toggles wrap-around at end of data.
func (r *Reader) SetLoop(loop bool) {
	r.mu.Lock()
	r.loop = loop
	r.finished = false
	r.mu.Unlock()
}

// Finished reports whether the reader ran out of data with looping off.
// The device may still be draining its buffer at that point.
func (r *Reader) Finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.finished
}
