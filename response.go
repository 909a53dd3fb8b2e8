package relay

import (
	"context"
	"io"
	"net/http"
	"sync"
)

// Response is the raw result of a network call. It owns the underlying
// connection until Close is called. Body returns nil when the response
// carries no content stream.
type Response interface {
	StatusCode() int
	Header() http.Header
	Body() io.Reader
	Close() error
}

// Producer performs the network call. It is invoked at most once per
// cursor, on the cursor's first Next.
type Producer func(ctx context.Context) (Response, error)

// HTTPResponse adapts an [*http.Response] to [Response]. Close is safe to
// call more than once and from another goroutine than the one reading Body.
func HTTPResponse(resp *http.Response) Response {
	return &httpResponse{resp: resp}
}

type httpResponse struct {
	resp *http.Response
	once sync.Once
	err  error
}

// Interface compliance check.
var _ Response = (*httpResponse)(nil)

func (r *httpResponse) StatusCode() int { return r.resp.StatusCode }

func (r *httpResponse) Header() http.Header { return r.resp.Header }

func (r *httpResponse) Body() io.Reader {
	if r.resp.Body == nil || r.resp.Body == http.NoBody {
		return nil
	}
	return r.resp.Body
}

func (r *httpResponse) Close() error {
	r.once.Do(func() {
		if r.resp.Body != nil {
			r.err = r.resp.Body.Close()
		}
	})
	return r.err
}
