package codec

import "errors"

// Common errors for the codec layer.
var (
	// ErrUnknownFormat is returned when neither the file extension nor the
	// content magic identifies a supported format.
	ErrUnknownFormat = errors.New("unknown audio format")

	// ErrInvalidData is returned when the container parses but carries no
	// usable PCM stream.
	ErrInvalidData = errors.New("invalid audio data")
)
