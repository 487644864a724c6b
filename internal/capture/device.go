package capture

import (
	"context"
	"errors"
)

// ErrCapture is returned when a recording device cannot be acquired or fails
// while streaming (permission denied, no device, process exited).
var ErrCapture = errors.New("capture error")

// Device is a source of recorded audio.
type Device interface {
	// Acquire opens the device and starts streaming fragments.
	Acquire(ctx context.Context) (Stream, error)

	// MimeType is the container type of the bytes the device produces.
	MimeType() string
}

// Stream is one acquisition of a Device.
type Stream interface {
	// Fragments delivers audio chunks in order. The channel is closed after Stop
	// has flushed the last pending fragment, or when the device fails.
	Fragments() <-chan []byte

	// Stop flushes buffered-but-undelivered audio, closes Fragments and releases
	// the device. It is safe to call more than once.
	Stop() error

	// Err reports why Fragments closed before Stop was called. Nil otherwise.
	Err() error
}
