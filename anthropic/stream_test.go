package anthropic_test

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/anthropic"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStream_TextResponse(t *testing.T) {
	t.Parallel()
	cur := streamFromSSE(t, []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"ping", `{"type":"ping"}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hello"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" world"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":5}}`},
		{"message_stop", messageStop},
	})

	want := []relay.Update{
		relay.UpdateTextDelta{Index: 0, Delta: "Hello"},
		relay.UpdateTextDelta{Index: 0, Delta: " world"},
		relay.UpdateUsage{Usage: relay.Usage{InputTokens: 10, OutputTokens: 5}},
		relay.UpdateFinish{StopReason: relay.StopEndTurn, RawStopReason: "end_turn"},
	}
	if diff := cmp.Diff(want, collectUpdates(t, cur)); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, relay.CursorExhausted, cur.State())
}

func TestStream_ToolUse(t *testing.T) {
	t.Parallel()
	cur := streamFromSSE(t, []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Let me check."}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_1","name":"read","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"path\":"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":" \"foo.go\"}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":42}}`},
		{"message_stop", messageStop},
	})

	msg, err := relay.Drain(context.Background(), cur)
	require.NoError(t, err)
	assert.Equal(t, relay.StopToolUse, msg.StopReason)
	assert.Equal(t, "tool_use", msg.RawStopReason)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, relay.TextBlock{Text: "Let me check."}, msg.Content[0])
	assert.Equal(t, relay.ToolCallBlock{
		ID:        "toolu_1",
		Name:      "read",
		Arguments: json.RawMessage(`{"path": "foo.go"}`),
	}, msg.Content[1])
}

func TestStream_Thinking(t *testing.T) {
	t.Parallel()
	cur := streamFromSSE(t, []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"thinking","thinking":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":"Let me think..."}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"thinking_delta","thinking":" step 2"}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"signature_delta","signature":"sig123"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"text","text":""}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"text_delta","text":"The answer is 42."}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"end_turn","stop_sequence":null},"usage":{"output_tokens":20}}`},
		{"message_stop", messageStop},
	})

	msg, err := relay.Drain(context.Background(), cur)
	require.NoError(t, err)
	require.Len(t, msg.Content, 2)
	assert.Equal(t, relay.ThinkingBlock{Thinking: "Let me think... step 2", Signature: []byte("sig123")}, msg.Content[0])
	assert.Equal(t, relay.TextBlock{Text: "The answer is 42."}, msg.Content[1])
}

func TestStream_MultipleToolCalls(t *testing.T) {
	t.Parallel()
	cur := streamFromSSE(t, []sseEvent{
		{"message_start", messageStart},
		{"content_block_start", `{"type":"content_block_start","index":0,"content_block":{"type":"tool_use","id":"tc_1","name":"read","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":0,"delta":{"type":"input_json_delta","partial_json":"{\"path\": \"a.go\"}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":0}`},
		{"content_block_start", `{"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"tc_2","name":"read","input":{}}}`},
		{"content_block_delta", `{"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"path\": \"b.go\"}"}}`},
		{"content_block_stop", `{"type":"content_block_stop","index":1}`},
		{"message_delta", `{"type":"message_delta","delta":{"stop_reason":"tool_use","stop_sequence":null},"usage":{"output_tokens":30}}`},
		{"message_stop", messageStop},
	})

	updates := collectUpdates(t, cur)
	want := []relay.Update{
		relay.UpdateToolCallBegin{Index: 0, ID: "tc_1", Name: "read"},
		relay.UpdateToolCallDelta{Index: 0, ID: "tc_1", Delta: `{"path": "a.go"}`},
		relay.UpdateToolCallEnd{Index: 0},
		relay.UpdateToolCallBegin{Index: 1, ID: "tc_2", Name: "read"},
		relay.UpdateToolCallDelta{Index: 1, ID: "tc_2", Delta: `{"path": "b.go"}`},
		relay.UpdateToolCallEnd{Index: 1},
	}
	if diff := cmp.Diff(want, updates[:len(want)]); diff != "" {
		t.Errorf("updates mismatch (-want +got):\n%s", diff)
	}
}

func TestStream_SSEError(t *testing.T) {
	t.Parallel()
	cur := streamFromSSE(t, []sseEvent{
		{"message_start", messageStart},
		{"error", `{"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}`},
	})

	_, err := cur.Next(context.Background())
	var decErr *relay.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Equal(t, "error", decErr.Event)
	assert.Contains(t, err.Error(), "overloaded_error")
	assert.Equal(t, relay.CursorClosed, cur.State())
}

func TestStream_UnknownBlockIndex(t *testing.T) {
	t.Parallel()
	cur := streamFromSSE(t, []sseEvent{
		{"message_start", messageStart},
		{"content_block_delta", `{"type":"content_block_delta","index":3,"delta":{"type":"text_delta","text":"orphan"}}`},
	})

	_, err := cur.Next(context.Background())
	var decErr *relay.DecodeError
	require.ErrorAs(t, err, &decErr)
	assert.Contains(t, err.Error(), "unknown block index 3")
}

func TestStream_ContextCancellation(t *testing.T) {
	t.Parallel()

	started := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		fmt.Fprintf(w, "event: message_start\ndata: %s\n\n", messageStart)
		fmt.Fprint(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"Hi\"}}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		close(started)
		<-r.Context().Done()
	}))
	t.Cleanup(srv.Close)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	c, err := client.Stream(hiRequest())
	require.NoError(t, err)
	defer c.Close()
	cur := c.Cursor()

	u, err := cur.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, relay.UpdateTextDelta{Index: 0, Delta: "Hi"}, u)

	<-started
	cancel()

	_, err = cur.Next(ctx)
	assert.ErrorIs(t, err, relay.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, relay.CursorClosed, cur.State())
}

func TestStream_ReadErrorMidStream(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		w.WriteHeader(http.StatusOK)
		flusher, _ := w.(http.Flusher)
		fmt.Fprintf(w, "event: message_start\ndata: %s\n\n", messageStart)
		fmt.Fprint(w, "event: content_block_start\ndata: {\"type\":\"content_block_start\",\"index\":0,\"content_block\":{\"type\":\"text\",\"text\":\"\"}}\n\n")
		fmt.Fprint(w, "event: content_block_delta\ndata: {\"type\":\"content_block_delta\",\"index\":0,\"delta\":{\"type\":\"text_delta\",\"text\":\"partial\"}}\n\n")
		if flusher != nil {
			flusher.Flush()
		}
		// Drop the connection mid-body.
		if hj, ok := w.(http.Hijacker); ok {
			conn, _, _ := hj.Hijack()
			conn.Close()
		}
	}))
	defer srv.Close()

	client := anthropic.New("test-key", anthropic.WithBaseURL(srv.URL))
	c, err := client.Stream(hiRequest())
	require.NoError(t, err)
	defer c.Close()

	msg, err := relay.Drain(context.Background(), c.Cursor())
	var transportErr *relay.TransportError
	require.ErrorAs(t, err, &transportErr)
	assert.Equal(t, "read", transportErr.Op)
	assert.Equal(t, relay.StopError, msg.StopReason)
	assert.Equal(t, []relay.ContentBlock{relay.TextBlock{Text: "partial"}}, msg.Content)
}

func TestStream_StopReasons(t *testing.T) {
	t.Parallel()
	tests := []struct {
		raw  string
		want relay.StopReason
	}{
		{"end_turn", relay.StopEndTurn},
		{"stop_sequence", relay.StopEndTurn},
		{"max_tokens", relay.StopLength},
		{"model_context_window_exceeded", relay.StopLength},
		{"tool_use", relay.StopToolUse},
		{"refusal", relay.StopError},
		{"pause_turn", relay.StopUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			t.Parallel()
			cur := streamFromSSE(t, []sseEvent{
				{"message_start", messageStart},
				{"message_delta", fmt.Sprintf(`{"type":"message_delta","delta":{"stop_reason":%q},"usage":{"output_tokens":1}}`, tt.raw)},
				{"message_stop", messageStop},
			})
			msg, err := relay.Drain(context.Background(), cur)
			require.NoError(t, err)
			assert.Equal(t, tt.want, msg.StopReason)
			assert.Equal(t, tt.raw, msg.RawStopReason)
		})
	}
}

func TestDecoder_Usage(t *testing.T) {
	t.Parallel()

	const startWithCache = `{"type":"message_start","message":{"id":"msg_1","usage":{"input_tokens":10,"output_tokens":1,"cache_creation_input_tokens":50,"cache_read_input_tokens":200}}}`

	tests := []struct {
		name  string
		start string
		delta string
		want  relay.Usage
	}{
		{
			name:  "cache from message_start",
			start: startWithCache,
			delta: `{"type":"message_delta","delta":{},"usage":{"output_tokens":5}}`,
			want:  relay.Usage{InputTokens: 10, OutputTokens: 5, CacheWriteTokens: 50, CacheReadTokens: 200},
		},
		{
			name:  "cache counts in message_delta add up",
			start: startWithCache,
			delta: `{"type":"message_delta","delta":{},"usage":{"output_tokens":5,"cache_creation_input_tokens":10,"cache_read_input_tokens":30}}`,
			want:  relay.Usage{InputTokens: 10, OutputTokens: 5, CacheWriteTokens: 60, CacheReadTokens: 230},
		},
		{
			name:  "null cache fields",
			start: `{"type":"message_start","message":{"usage":{"input_tokens":10,"output_tokens":1,"cache_creation_input_tokens":null,"cache_read_input_tokens":null}}}`,
			delta: `{"type":"message_delta","delta":{},"usage":{"output_tokens":5,"cache_read_input_tokens":null}}`,
			want:  relay.Usage{InputTokens: 10, OutputTokens: 5},
		},
		{
			name:  "input tokens in message_delta replace",
			start: `{"type":"message_start","message":{"usage":{"input_tokens":100,"output_tokens":1}}}`,
			delta: `{"type":"message_delta","delta":{},"usage":{"output_tokens":5,"input_tokens":120}}`,
			want:  relay.Usage{InputTokens: 120, OutputTokens: 5},
		},
		{
			name:  "null input tokens keep message_start",
			start: `{"type":"message_start","message":{"usage":{"input_tokens":100,"output_tokens":1}}}`,
			delta: `{"type":"message_delta","delta":{},"usage":{"output_tokens":5,"input_tokens":null}}`,
			want:  relay.Usage{InputTokens: 100, OutputTokens: 5},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			decode := anthropic.NewDecoder()

			got, err := decode(relay.Frame{Event: "message_start", Data: []byte(tt.start)})
			require.NoError(t, err)
			assert.Empty(t, got)

			got, err = decode(relay.Frame{Event: "message_delta", Data: []byte(tt.delta)})
			require.NoError(t, err)
			assert.Equal(t, []relay.Update{relay.UpdateUsage{Usage: tt.want}}, got)
		})
	}
}

func TestDecoder_EventTypeFromPayload(t *testing.T) {
	t.Parallel()
	decode := anthropic.NewDecoder()

	_, err := decode(relay.Frame{Data: []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":"Hi"}}`)})
	require.NoError(t, err)
	got, err := decode(relay.Frame{Data: []byte(`{"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":" there"}}`)})
	require.NoError(t, err)
	assert.Equal(t, []relay.Update{relay.UpdateTextDelta{Index: 0, Delta: " there"}}, got)
}

func TestDecoder_IgnoredEvents(t *testing.T) {
	t.Parallel()
	decode := anthropic.NewDecoder()

	for _, f := range []relay.Frame{
		{Event: "ping", Data: []byte(`{"type":"ping"}`)},
		{Event: "message_stop", Data: []byte(`{"type":"message_stop"}`)},
		{Event: "future_event", Data: []byte(`not json`)},
		{Data: []byte(`{"type":"future_event"}`)},
	} {
		got, err := decode(f)
		require.NoError(t, err, f.Event)
		assert.Empty(t, got)
	}

	_, err := decode(relay.Frame{Event: "content_block_start", Data: []byte(`{"type":"content_block_start","index":0}`)})
	assert.ErrorContains(t, err, "has no content_block")
	_, err = decode(relay.Frame{Event: "message_delta", Data: []byte(`{`)})
	assert.ErrorContains(t, err, "parse message_delta event")
}

func TestDecoder_TextBlockStop(t *testing.T) {
	t.Parallel()
	decode := anthropic.NewDecoder()

	got, err := decode(relay.Frame{Event: "content_block_start", Data: []byte(`{"type":"content_block_start","index":0,"content_block":{"type":"text","text":"Hi"}}`)})
	require.NoError(t, err)
	assert.Equal(t, []relay.Update{relay.UpdateTextDelta{Index: 0, Delta: "Hi"}}, got)

	got, err = decode(relay.Frame{Event: "content_block_stop", Data: []byte(`{"type":"content_block_stop","index":0}`)})
	require.NoError(t, err)
	assert.Empty(t, got)
}
