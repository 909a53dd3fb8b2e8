package openai_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fwojciec/relay"
	"github.com/fwojciec/relay/openai"
	"github.com/go-json-experiment/json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_RequestFormat(t *testing.T) {
	t.Parallel()
	srv, reqs, bodies := sseServer(t, data(`[DONE]`))

	temp := 0.2
	client := openai.New("sk-test", openai.WithBaseURL(srv.URL+"/"))
	c, err := client.Stream(relay.Request{
		Model:        "gpt-test",
		SystemPrompt: "You are terse.",
		Messages: []relay.Message{
			relay.UserMessage{Content: []relay.ContentBlock{
				relay.TextBlock{Text: "What is this?"},
				relay.ImageBlock{Data: []byte("PNG"), MimeType: "image/png"},
			}},
			relay.AssistantMessage{Content: []relay.ContentBlock{
				relay.ThinkingBlock{Thinking: "dropped"},
				relay.TextBlock{Text: "Checking."},
				relay.ToolCallBlock{ID: "call_1", Name: "inspect", Arguments: []byte(`{"deep":true}`)},
			}},
			relay.ToolResultMessage{ToolCallID: "call_1", ToolName: "inspect", Content: []relay.ContentBlock{relay.TextBlock{Text: "a cat"}}},
		},
		Tools:       []relay.Tool{{Name: "inspect", Description: "Inspect an image"}},
		MaxTokens:   256,
		Temperature: &temp,
	})
	require.NoError(t, err)
	_, err = relay.Drain(context.Background(), c.Cursor())
	require.NoError(t, err)

	r := <-reqs
	assert.Equal(t, http.MethodPost, r.Method)
	assert.Equal(t, "/v1/chat/completions", r.URL.Path)
	assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
	assert.Len(t, r.Header.Get("X-Client-Request-Id"), 36)
	assert.Empty(t, r.Header.Get("OpenAI-Beta"))

	var body struct {
		Model               string           `json:"model"`
		Messages            []map[string]any `json:"messages"`
		Tools               []map[string]any `json:"tools"`
		MaxCompletionTokens int              `json:"max_completion_tokens"`
		Temperature         float64          `json:"temperature"`
		Stream              bool             `json:"stream"`
		StreamOptions       map[string]any   `json:"stream_options"`
	}
	require.NoError(t, json.Unmarshal(<-bodies, &body))

	assert.Equal(t, "gpt-test", body.Model)
	assert.Equal(t, 256, body.MaxCompletionTokens)
	assert.InDelta(t, 0.2, body.Temperature, 1e-9)
	assert.True(t, body.Stream)
	assert.Equal(t, map[string]any{"include_usage": true}, body.StreamOptions)

	require.Len(t, body.Messages, 4)
	assert.Equal(t, map[string]any{"role": "system", "content": "You are terse."}, body.Messages[0])
	assert.Equal(t, []any{
		map[string]any{"type": "text", "text": "What is this?"},
		map[string]any{"type": "image_url", "image_url": map[string]any{"url": "data:image/png;base64,UE5H"}},
	}, body.Messages[1]["content"])
	assert.Equal(t, "Checking.", body.Messages[2]["content"])
	assert.Equal(t, []any{map[string]any{
		"id":       "call_1",
		"type":     "function",
		"function": map[string]any{"name": "inspect", "arguments": `{"deep":true}`},
	}}, body.Messages[2]["tool_calls"])
	assert.Equal(t, map[string]any{"role": "tool", "tool_call_id": "call_1", "content": "a cat"}, body.Messages[3])

	require.Len(t, body.Tools, 1)
	assert.Equal(t, map[string]any{
		"type": "function",
		"function": map[string]any{
			"name":        "inspect",
			"description": "Inspect an image",
			"parameters":  map[string]any{"type": "object", "properties": map[string]any{}},
		},
	}, body.Tools[0])
}

func TestClient_DefaultModel(t *testing.T) {
	t.Parallel()
	srv, _, bodies := sseServer(t, data(`[DONE]`))

	c, err := openai.New("sk-test", openai.WithBaseURL(srv.URL)).Stream(helloRequest())
	require.NoError(t, err)
	collectUpdates(t, c)

	var body map[string]any
	require.NoError(t, json.Unmarshal(<-bodies, &body))
	assert.Equal(t, "gpt-4.1", body["model"])
	assert.NotContains(t, body, "max_completion_tokens")
	assert.NotContains(t, body, "temperature")
	assert.NotContains(t, body, "tools")
}

func TestClient_Validation(t *testing.T) {
	t.Parallel()
	_, err := openai.New("sk-test").Stream(relay.Request{})
	assert.ErrorIs(t, err, relay.ErrValidation)
}

func TestClient_HTTPError(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		body     string
		wantType string
		wantMsg  string
	}{
		{
			name:     "json body",
			body:     `{"error":{"message":"Incorrect API key provided","type":"invalid_request_error","code":"invalid_api_key"}}`,
			wantType: "invalid_request_error",
			wantMsg:  "Incorrect API key provided",
		},
		{
			name:    "plain body",
			body:    "upstream connect error\n",
			wantMsg: "upstream connect error",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("X-Request-Id", "req_err")
				w.WriteHeader(http.StatusUnauthorized)
				fmt.Fprint(w, tt.body)
			}))
			t.Cleanup(srv.Close)

			c, err := openai.New("bad", openai.WithBaseURL(srv.URL)).Stream(helloRequest())
			require.NoError(t, err)
			cur := c.Cursor()
			_, err = cur.Next(context.Background())

			var apiErr *relay.APIError
			require.True(t, errors.As(err, &apiErr))
			assert.Equal(t, "openai", apiErr.Provider)
			assert.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
			assert.Equal(t, tt.wantType, apiErr.Type)
			assert.Equal(t, tt.wantMsg, apiErr.Message)
			assert.Equal(t, "req_err", apiErr.RequestID)
			assert.Equal(t, relay.CursorClosed, cur.State())
		})
	}
}

func TestClient_Complete(t *testing.T) {
	t.Parallel()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		if err := json.UnmarshalRead(r.Body, &body); err != nil || body["stream"] != nil {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{
			"id": "chatcmpl-1",
			"object": "chat.completion",
			"model": "gpt-4.1",
			"choices": [{
				"index": 0,
				"message": {
					"role": "assistant",
					"content": null,
					"tool_calls": [{"id": "call_9", "type": "function", "function": {"name": "now", "arguments": ""}}]
				},
				"finish_reason": "tool_calls"
			}],
			"usage": {"prompt_tokens": 50, "completion_tokens": 7, "prompt_tokens_details": {"cached_tokens": 32}}
		}`)
	}))
	t.Cleanup(srv.Close)

	res, err := openai.New("sk-test", openai.WithBaseURL(srv.URL)).Complete(context.Background(), helloRequest())
	require.NoError(t, err)

	msg := res.Value
	assert.Equal(t, []relay.ContentBlock{
		relay.ToolCallBlock{ID: "call_9", Name: "now", Arguments: []byte(`{}`)},
	}, msg.Content)
	assert.Equal(t, relay.StopToolUse, msg.StopReason)
	assert.Equal(t, "tool_calls", msg.RawStopReason)
	assert.Equal(t, relay.Usage{InputTokens: 18, OutputTokens: 7, CacheReadTokens: 32}, msg.Usage)
	assert.Equal(t, http.StatusOK, res.Response.StatusCode())
}

func TestParseChatCompletion(t *testing.T) {
	t.Parallel()

	t.Run("text with reasoning", func(t *testing.T) {
		t.Parallel()
		msg, err := openai.ParseChatCompletion([]byte(`{"choices":[{"index":0,"message":{"role":"assistant","reasoning_content":"hmm","content":"42"},"finish_reason":"stop"}]}`))
		require.NoError(t, err)
		assert.Equal(t, []relay.ContentBlock{
			relay.ThinkingBlock{Thinking: "hmm"},
			relay.TextBlock{Text: "42"},
		}, msg.Content)
		assert.Equal(t, relay.StopEndTurn, msg.StopReason)
		assert.False(t, msg.Timestamp.IsZero())
	})

	t.Run("no choices", func(t *testing.T) {
		t.Parallel()
		_, err := openai.ParseChatCompletion([]byte(`{"choices":[]}`))
		assert.ErrorIs(t, err, relay.ErrProtocolViolation)
	})

	t.Run("malformed", func(t *testing.T) {
		t.Parallel()
		_, err := openai.ParseChatCompletion([]byte(`not json`))
		assert.Error(t, err)
	})
}
