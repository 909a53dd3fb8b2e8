package relay

import (
	"context"
	"errors"
	"io"
)

// Result is the outcome of a non-streaming call: a value parsed from the
// complete response body, and the response it was read from.
type Result[T any] struct {
	Value    T
	Response Response
}

// Complete performs a non-streaming call. It invokes produce once, reads
// the whole body, releases the response and parses the buffer.
func Complete[T any](ctx context.Context, produce Producer, parse func([]byte) (T, error)) (Result[T], error) {
	resp, err := produce(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result[T]{}, cancelled(ctxErr)
		}
		return Result[T]{}, &TransportError{Op: "request", Err: err}
	}
	if resp == nil {
		return Result[T]{}, ErrProtocolViolation
	}

	body := resp.Body()
	if body == nil {
		return Result[T]{Response: resp}, errors.Join(ErrProtocolViolation, resp.Close())
	}

	data, err := io.ReadAll(body)
	closeErr := resp.Close()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Result[T]{Response: resp}, cancelled(ctxErr)
		}
		return Result[T]{Response: resp}, &TransportError{Op: "read", Err: err}
	}
	if closeErr != nil {
		return Result[T]{Response: resp}, &TransportError{Op: "close", Err: closeErr}
	}

	v, err := parse(data)
	if err != nil {
		return Result[T]{Response: resp}, &DecodeError{Err: err}
	}
	return Result[T]{Value: v, Response: resp}, nil
}
