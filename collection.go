package relay

import (
	"context"
	"errors"
	"io"
	"iter"
	"sync"
)

// Collection is a re-iterable view of a streaming call. Each traversal
// creates a fresh Cursor and therefore issues a new request; only a single
// cursor's traversal is one-shot.
//
// The collection owns every cursor it creates. Close releases the
// responses of cursors that were abandoned early or never started.
type Collection[T any] struct {
	produce    Producer
	newDecoder func() Decoder[T]
	opts       options

	mu      sync.Mutex
	resp    Response
	cursors map[*Cursor[T]]struct{}
	closed  bool
}

// NewCollection returns a collection whose cursors call produce and decode
// the response frames with decode.
func NewCollection[T any](produce Producer, decode Decoder[T], opts ...Option) *Collection[T] {
	return NewCollectionFunc(produce, func() Decoder[T] { return decode }, opts...)
}

// NewCollectionFunc is like NewCollection for decoders that keep state
// between frames. newDecoder is called once per cursor, so every traversal
// decodes with fresh state.
func NewCollectionFunc[T any](produce Producer, newDecoder func() Decoder[T], opts ...Option) *Collection[T] {
	return &Collection[T]{
		produce:    produce,
		newDecoder: newDecoder,
		opts:       buildOptions(opts),
		cursors:    make(map[*Cursor[T]]struct{}),
	}
}

// Cursor starts a new traversal. No request is issued until the cursor's
// first Next. Cursors obtained after Close report ErrCursorClosed.
func (c *Collection[T]) Cursor() *Cursor[T] {
	cur := newCursor(c.produce, c.newDecoder(), c.opts, cursorHooks{})
	cur.hooks = cursorHooks{
		opened: c.setResponse,
		done:   func() { c.forget(cur) },
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		cur.state = CursorClosed
		return cur
	}
	c.cursors[cur] = struct{}{}
	return cur
}

// All returns an iterator over a fresh traversal. The cursor is closed
// when the loop ends, including on break. A terminal error is yielded once
// with the zero value.
func (c *Collection[T]) All(ctx context.Context) iter.Seq2[T, error] {
	return func(yield func(T, error) bool) {
		cur := c.Cursor()
		defer cur.Close()
		for {
			v, err := cur.Next(ctx)
			if err == io.EOF {
				return
			}
			if err != nil {
				var zero T
				yield(zero, err)
				return
			}
			if !yield(v, nil) {
				return
			}
		}
	}
}

// Response returns the response of the most recently opened cursor, or
// nil if no traversal has issued its request yet.
func (c *Collection[T]) Response() Response {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.resp
}

// Close closes every cursor still owned by the collection. It must not run
// concurrently with Next on those cursors.
func (c *Collection[T]) Close() error {
	c.mu.Lock()
	c.closed = true
	live := make([]*Cursor[T], 0, len(c.cursors))
	for cur := range c.cursors {
		live = append(live, cur)
	}
	c.mu.Unlock()

	var errs []error
	for _, cur := range live {
		errs = append(errs, cur.Close())
	}
	return errors.Join(errs...)
}

func (c *Collection[T]) setResponse(resp Response) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.resp = resp
}

func (c *Collection[T]) forget(cur *Cursor[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cursors, cur)
}
