package relay

import (
	"errors"
	"fmt"
)

// Sentinel errors for common failure modes.
var (
	// ErrValidation indicates a request or message failed validation.
	ErrValidation = errors.New("validation error")

	// ErrProtocolViolation indicates a streaming call returned a response
	// without a content stream. It signals a client/server contract mismatch
	// and is never retried.
	ErrProtocolViolation = errors.New("relay: response has no content stream")

	// ErrRewind is returned by Cursor.Reset. A streamed response is a
	// one-shot network read and cannot be rewound.
	ErrRewind = fmt.Errorf("relay: cannot seek back in an event stream: %w", errors.ErrUnsupported)

	// ErrCancelled indicates the context passed to Next was done while the
	// cursor was waiting on the network.
	ErrCancelled = errors.New("relay: cancelled")

	// ErrCursorClosed indicates Next was called on a cursor after Close.
	ErrCursorClosed = errors.New("relay: cursor closed")
)

// TransportError reports an I/O failure while issuing the request or
// reading frames from the response.
type TransportError struct {
	Op  string // "request", "read" or "close"
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("relay: %s: %v", e.Op, e.Err)
}

// Unwrap returns the underlying transport error.
func (e *TransportError) Unwrap() error { return e.Err }

// DecodeError reports that a Decoder rejected a frame.
type DecodeError struct {
	Event string // frame event name, may be empty
	Err   error
}

func (e *DecodeError) Error() string {
	if e.Event == "" {
		return fmt.Sprintf("relay: decode frame: %v", e.Err)
	}
	return fmt.Sprintf("relay: decode %q frame: %v", e.Event, e.Err)
}

// Unwrap returns the decoder's error.
func (e *DecodeError) Unwrap() error { return e.Err }

// APIError is a non-success HTTP response from a provider API.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: HTTP %d: %s: %s", e.Provider, e.StatusCode, e.Type, e.Message)
}
