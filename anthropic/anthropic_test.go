package anthropic_test

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/stretchr/testify/require"
)

type sseEvent struct {
	event string
	data  string
}

// sseHandler writes events as a Messages API stream.
func sseHandler(events []sseEvent) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		for _, evt := range events {
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", evt.event, evt.data)
			if flusher != nil {
				flusher.Flush()
			}
		}
	}
}

const (
	messageStart = `{"type":"message_start","message":{"id":"msg_1","type":"message","role":"assistant","content":[],"model":"claude-sonnet-4-20250514","stop_reason":null,"stop_sequence":null,"usage":{"input_tokens":10,"output_tokens":1}}}`
	messageStop  = `{"type":"message_stop"}`
)

// minimalEvents is the shortest complete stream.
var minimalEvents = []sseEvent{
	{"message_start", messageStart},
	{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn"},"usage":{"output_tokens":0}}`},
	{"message_stop", messageStop},
}

func hiRequest() relay.Request {
	return relay.Request{
		Messages: []relay.Message{
			relay.UserText("Hi"),
		},
	}
}

// streamFromSSE serves events over httptest and returns an open cursor.
func streamFromSSE(t *testing.T, events []sseEvent) *relay.Cursor[relay.Update] {
	t.Helper()
	srv := httptest.NewServer(sseHandler(events))
	t.Cleanup(srv.Close)
	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	c, err := client.Stream(hiRequest())
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c.Cursor()
}

func collectUpdates(t *testing.T, cur *relay.Cursor[relay.Update]) []relay.Update {
	t.Helper()
	var updates []relay.Update
	for {
		u, err := cur.Next(context.Background())
		if err == io.EOF {
			return updates
		}
		require.NoError(t, err)
		updates = append(updates, u)
	}
}
