package engine

import "errors"

// Common errors for the playback engine. Decode failures surface as
// *cache.DecodeError from Play and Preload; the engine never retries.
var (
	// ErrDisposed is returned by operations on a disposed engine.
	ErrDisposed = errors.New("engine has been disposed")
)
