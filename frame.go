package relay

import "io"

// Frame is one discrete event delivered by a streaming response.
// Data is owned by the Decoder only for the duration of a single call.
type Frame struct {
	Event string
	ID    string
	Data  []byte
}

// FrameSource yields frames from a response body in arrival order.
// Next returns io.EOF when the body is exhausted. Close releases parser
// state; it does not close the reader the source was opened over.
type FrameSource interface {
	Next() (Frame, error)
	Close() error
}

// OpenFrameSource opens a FrameSource over a response body.
type OpenFrameSource func(r io.Reader) FrameSource

// Decoder maps one frame to zero or more updates, in order. It must not
// perform I/O or retain the frame.
type Decoder[T any] func(f Frame) ([]T, error)

// DoneSentinel is the payload that marks intentional end of stream.
// It is compared byte-for-byte before decoding.
var DoneSentinel = []byte("[DONE]")
