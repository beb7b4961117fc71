package cache

import "fmt"

// DecodeError wraps a byte-fetch or codec failure for a specific file.
// The engine propagates it from Play and Preload without retrying.
type DecodeError struct {
	Path string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("decode %s: %v", e.Path, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }
