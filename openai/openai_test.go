package openai_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	event string
	data  string
}

// sseServer replies to every request with events and records the last
// request it saw.
func sseServer(t *testing.T, events ...sseEvent) (*httptest.Server, <-chan *http.Request, <-chan []byte) {
	t.Helper()
	reqs := make(chan *http.Request, 8)
	bodies := make(chan []byte, 8)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		reqs <- r
		bodies <- body
		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("X-Request-Id", "req_123")
		flusher, _ := w.(http.Flusher)
		for _, evt := range events {
			if evt.event != "" {
				fmt.Fprintf(w, "event: %s\n", evt.event)
			}
			fmt.Fprintf(w, "data: %s\n\n", evt.data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, reqs, bodies
}

func data(d string) sseEvent { return sseEvent{data: d} }

func helloRequest() relay.Request {
	return relay.Request{
		Messages: []relay.Message{
			relay.UserText("Hello"),
		},
	}
}

func collectUpdates(t *testing.T, c *relay.Collection[relay.Update]) []relay.Update {
	t.Helper()
	var updates []relay.Update
	for u, err := range c.All(context.Background()) {
		require.NoError(t, err)
		updates = append(updates, u)
	}
	return updates
}

// decodeFrames runs frames through one decoder and returns all updates.
func decodeFrames(t *testing.T, decode relay.Decoder[relay.Update], frames ...relay.Frame) []relay.Update {
	t.Helper()
	var updates []relay.Update
	for _, f := range frames {
		us, err := decode(f)
		require.NoError(t, err)
		updates = append(updates, us...)
	}
	return updates
}
