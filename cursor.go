package relay

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// CursorState indicates the lifecycle stage of a Cursor.
type CursorState int

const (
	CursorNew       CursorState = iota // Before Next is ever called; no request issued.
	CursorActive                       // Response open, frames being read.
	CursorExhausted                    // Sentinel or end of body reached; resources released.
	CursorClosed                       // Close called, or Next failed.
)

func (s CursorState) String() string {
	switch s {
	case CursorNew:
		return "new"
	case CursorActive:
		return "active"
	case CursorExhausted:
		return "exhausted"
	case CursorClosed:
		return "closed"
	default:
		return fmt.Sprintf("CursorState(%d)", int(s))
	}
}

// Option configures a Cursor or Collection.
type Option func(*options)

type options struct {
	sentinel []byte
	open     OpenFrameSource
	logger   zerolog.Logger
}

func buildOptions(opts []Option) options {
	o := options{
		sentinel: DoneSentinel,
		open:     SSE,
		logger:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// WithSentinel sets the payload that ends the stream. A nil sentinel
// disables detection, so the stream only ends when the body is exhausted.
func WithSentinel(b []byte) Option {
	return func(o *options) { o.sentinel = b }
}

// WithFrameSource replaces the default server-sent events parser.
func WithFrameSource(open OpenFrameSource) Option {
	return func(o *options) { o.open = open }
}

// WithLogger sets the logger used for stream lifecycle messages.
func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// Cursor is a single-pass iterator over the updates of one streamed
// response. The request is issued on the first call to Next, not at
// construction.
//
// Next returns io.EOF when the stream ends normally, either on the
// sentinel frame or when the body is exhausted. Any other error is
// terminal: the cursor releases its response and every later Next returns
// the same error.
//
// A Cursor holds a network connection once Next has been called. Callers
// must call Close unless Next has already returned an error or io.EOF;
// skipping it leaks the connection. Close is idempotent.
//
// A Cursor must not be used from more than one goroutine at a time.
type Cursor[T any] struct {
	produce Producer
	decode  Decoder[T]
	opts    options
	hooks   cursorHooks

	state   CursorState
	resp    Response
	frames  FrameSource
	pending []T
	current T
	err     error

	// release guards the response, which a context watcher may close
	// concurrently with a blocked read.
	release    sync.Once
	releaseErr error
}

// cursorHooks lets an owning Collection observe a cursor's lifecycle.
type cursorHooks struct {
	opened func(Response)
	done   func()
}

// NewCursor returns a cursor that calls produce on its first Next and
// decodes each frame of the response body with decode.
func NewCursor[T any](produce Producer, decode Decoder[T], opts ...Option) *Cursor[T] {
	return newCursor(produce, decode, buildOptions(opts), cursorHooks{})
}

func newCursor[T any](produce Producer, decode Decoder[T], opts options, hooks cursorHooks) *Cursor[T] {
	return &Cursor[T]{
		produce: produce,
		decode:  decode,
		opts:    opts,
		hooks:   hooks,
	}
}

// Next advances to the next update. It returns io.EOF at the end of the
// stream. If ctx is done while Next waits on the network, the response is
// released and the returned error matches both ErrCancelled and ctx.Err().
func (c *Cursor[T]) Next(ctx context.Context) (T, error) {
	var zero T
	c.current = zero

	switch c.state {
	case CursorExhausted:
		return zero, io.EOF
	case CursorClosed:
		if c.err != nil {
			return zero, c.err
		}
		return zero, ErrCursorClosed
	}

	if err := ctx.Err(); err != nil {
		return zero, c.fail(cancelled(err))
	}

	if c.state == CursorNew {
		if err := c.start(ctx); err != nil {
			return zero, c.fail(err)
		}
	}

	for len(c.pending) == 0 {
		frame, err := c.pull(ctx)
		if err == io.EOF {
			c.finish("end of body")
			return zero, io.EOF
		}
		if err != nil {
			return zero, c.fail(err)
		}

		// The sentinel is a protocol marker, never a domain update.
		if c.opts.sentinel != nil && bytes.Equal(frame.Data, c.opts.sentinel) {
			c.finish("sentinel")
			return zero, io.EOF
		}

		updates, err := c.decode(frame)
		if err != nil {
			return zero, c.fail(&DecodeError{Event: frame.Event, Err: err})
		}
		// A frame that decodes to nothing is skipped; keep reading.
		c.pending = updates
	}

	// The slice belongs to the decoder; read it without writing.
	c.current = c.pending[0]
	c.pending = c.pending[1:]
	return c.current, nil
}

// Current returns the update returned by the last successful Next, or the
// zero value if the last Next failed or reported the end of the stream.
func (c *Cursor[T]) Current() T {
	return c.current
}

// Err returns the error that terminated the cursor, or nil.
func (c *Cursor[T]) Err() error {
	return c.err
}

// State returns the current lifecycle stage.
func (c *Cursor[T]) State() CursorState {
	return c.state
}

// Response returns the response opened by the first Next, or nil before
// the request was issued. Status and headers stay readable after the
// response has been released.
func (c *Cursor[T]) Response() Response {
	return c.resp
}

// Reset always fails with ErrRewind and leaves the cursor unchanged.
func (c *Cursor[T]) Reset() error {
	return ErrRewind
}

// Close releases the frame source and the response. It is safe to call
// more than once and before Next.
func (c *Cursor[T]) Close() error {
	switch c.state {
	case CursorExhausted, CursorClosed:
		return nil
	}
	c.state = CursorClosed
	return c.teardown()
}

func (c *Cursor[T]) start(ctx context.Context) error {
	c.state = CursorActive

	resp, err := c.produce(ctx)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return cancelled(ctxErr)
		}
		return &TransportError{Op: "request", Err: err}
	}
	if resp == nil {
		return ErrProtocolViolation
	}
	c.resp = resp
	if c.hooks.opened != nil {
		c.hooks.opened(resp)
	}
	c.opts.logger.Debug().Int("status", resp.StatusCode()).Msg("stream opened")

	body := resp.Body()
	if body == nil {
		return ErrProtocolViolation
	}
	c.frames = c.opts.open(body)
	return nil
}

// pull reads one frame. While the read blocks, a context watcher stands
// ready to release the response so the read returns.
func (c *Cursor[T]) pull(ctx context.Context) (Frame, error) {
	stop := func() bool { return true }
	if ctx.Done() != nil {
		stop = context.AfterFunc(ctx, c.releaseResponse)
	}

	frame, err := c.frames.Next()
	if !stop() {
		return Frame{}, cancelled(ctx.Err())
	}
	if err == nil || err == io.EOF {
		return frame, err
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Frame{}, cancelled(ctxErr)
	}
	return Frame{}, &TransportError{Op: "read", Err: err}
}

func (c *Cursor[T]) finish(reason string) {
	c.state = CursorExhausted
	c.opts.logger.Debug().Str("reason", reason).Msg("stream complete")
	if err := c.teardown(); err != nil {
		c.opts.logger.Warn().Err(err).Msg("release stream")
	}
}

func (c *Cursor[T]) fail(err error) error {
	c.state = CursorClosed
	c.err = err
	c.opts.logger.Debug().Err(err).Msg("stream failed")
	if terr := c.teardown(); terr != nil {
		c.opts.logger.Warn().Err(terr).Msg("release stream")
	}
	return err
}

// teardown runs once per cursor, on its transition to a terminal state.
// The frame source is closed before the response that feeds it.
func (c *Cursor[T]) teardown() error {
	var frameErr error
	if c.frames != nil {
		frameErr = c.frames.Close()
		c.frames = nil
	}
	c.releaseResponse()
	c.pending = nil
	if c.hooks.done != nil {
		c.hooks.done()
	}
	return errors.Join(frameErr, c.releaseErr)
}

func (c *Cursor[T]) releaseResponse() {
	c.release.Do(func() {
		if c.resp != nil {
			c.releaseErr = c.resp.Close()
		}
	})
}

func cancelled(err error) error {
	return fmt.Errorf("%w: %w", ErrCancelled, err)
}
