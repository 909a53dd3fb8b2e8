package relay

import (
	"io"

	"github.com/fwojciec/relay/sse"
)

// SSE opens a FrameSource that reads server-sent events from r. It is the
// default frame source of cursors and collections.
func SSE(r io.Reader) FrameSource {
	return sseSource{r: sse.NewReader(r)}
}

type sseSource struct {
	r *sse.Reader
}

// Interface compliance check.
var _ FrameSource = sseSource{}

func (s sseSource) Next() (Frame, error) {
	ev, err := s.r.Next()
	if err != nil {
		return Frame{}, err
	}
	return Frame{Event: ev.Type, ID: ev.ID, Data: ev.Data}, nil
}

func (s sseSource) Close() error {
	return s.r.Close()
}
