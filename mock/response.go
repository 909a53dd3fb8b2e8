package mock

import (
	"io"
	"net/http"
)

// Response is a test double for relay.Response.
// BodyFn panics when nil to catch missing setup. The other methods are
// nil-safe: StatusCode reports 200, Header an empty header and Close is a
// no-op, since most tests only care about the body.
type Response struct {
	StatusCodeFn func() int
	HeaderFn     func() http.Header
	BodyFn       func() io.Reader
	CloseFn      func() error
}

// StatusCode delegates to StatusCodeFn. Returns 200 when StatusCodeFn is nil.
func (r *Response) StatusCode() int {
	if r.StatusCodeFn == nil {
		return http.StatusOK
	}
	return r.StatusCodeFn()
}

// Header delegates to HeaderFn. Returns an empty header when HeaderFn is nil.
func (r *Response) Header() http.Header {
	if r.HeaderFn == nil {
		return http.Header{}
	}
	return r.HeaderFn()
}

// Body delegates to BodyFn.
func (r *Response) Body() io.Reader {
	return r.BodyFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is nil.
func (r *Response) Close() error {
	if r.CloseFn == nil {
		return nil
	}
	return r.CloseFn()
}
