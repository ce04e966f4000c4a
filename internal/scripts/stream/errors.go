package stream

import "errors"

var (
	// ErrFrameTooLarge means a frame header declared a payload over the size
	// cap. The connection it arrived on cannot be resynchronized and must be
	// dropped.
	ErrFrameTooLarge = errors.New("stream frame exceeds size limit")

	// ErrMalformedFrame means a frame payload was not valid JSON.
	ErrMalformedFrame = errors.New("stream frame is not valid JSON")

	// ErrEndpointClosed means the endpoint is no longer accepting connections.
	ErrEndpointClosed = errors.New("stream endpoint is closed")
)
