package engine

import "time"

// State is the published playback state consumed by the UI. The UI never
// mutates engine internals; it reacts to these snapshots and calls the
// transport operations.
type State struct {
	Path      string
	IsPlaying bool
	Duration  time.Duration
	Loop      bool
	Volume    float64
}

// Snapshot returns the current published state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked()
}

func (e *Engine) snapshotLocked() State {
	st := State{
		IsPlaying: e.playing,
		Loop:      e.loop,
		Volume:    e.volume,
	}
	if e.current != nil {
		st.Path = e.current.Path
	}
	if e.buf != nil {
		st.Duration = e.buf.Duration()
	}
	return st
}
