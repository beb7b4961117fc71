package engine

import "time"

// Position reports the elapsed playback position. While playing it is
// derived from the playback clock; otherwise it returns the exact paused
// or parked offset. Non-blocking, safe to poll every animation frame.
func (e *Engine) Position() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.playing {
		return e.pauseOffset
	}
	return e.clock().Sub(e.startAt)
}
