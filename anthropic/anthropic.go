// Package anthropic implements [relay.Provider] and [relay.Completer] for
// the Anthropic Messages API.
//
// Streaming calls return a [relay.Collection] whose cursors decode the
// API's server-sent events into [relay.Update] values. The stream ends when
// the body is exhausted after message_stop.
package anthropic

import "encoding/json"

const (
	defaultBaseURL   = "https://api.anthropic.com"
	defaultModel     = "claude-sonnet-4-20250514"
	defaultMaxTokens = 8192
	apiVersion       = "2023-06-01"
	messagesPath     = "/v1/messages"
)

type messagesRequest struct {
	Model        string        `json:"model"`
	MaxTokens    int           `json:"max_tokens"`
	Stream       bool          `json:"stream"`
	System       []part        `json:"system,omitempty"`
	Messages     []turn        `json:"messages"`
	Tools        []toolSpec    `json:"tools,omitempty"`
	Temperature  *float64      `json:"temperature,omitempty"`
	CacheControl *cacheControl `json:"cache_control,omitempty"`
}

// cacheControl marks a prompt cache breakpoint. The API only accepts the
// "ephemeral" type.
type cacheControl struct {
	Type string `json:"type"`
}

type turn struct {
	Role    string `json:"role"`
	Content []part `json:"content"`
}

// part is a request content block; Type selects the populated fields.
// A tool_result part nests the result's own parts in Content.
type part struct {
	Type         string          `json:"type"`
	Text         string          `json:"text,omitempty"`
	Thinking     string          `json:"thinking,omitempty"`
	Signature    string          `json:"signature,omitempty"`
	ID           string          `json:"id,omitempty"`
	Name         string          `json:"name,omitempty"`
	Input        json.RawMessage `json:"input,omitempty"`
	ToolUseID    string          `json:"tool_use_id,omitempty"`
	Content      []part          `json:"content,omitempty"`
	IsError      bool            `json:"is_error,omitempty"`
	Source       *imageSource    `json:"source,omitempty"`
	CacheControl *cacheControl   `json:"cache_control,omitempty"`
}

type imageSource struct {
	Type      string `json:"type"`
	MediaType string `json:"media_type"`
	Data      string `json:"data"`
}

type toolSpec struct {
	Name         string          `json:"name"`
	Description  string          `json:"description"`
	InputSchema  json.RawMessage `json:"input_schema"`
	CacheControl *cacheControl   `json:"cache_control,omitempty"`
}

// event is the union of every streamed event payload. Type repeats the SSE
// event name.
type event struct {
	Type         string        `json:"type"`
	Index        int           `json:"index"`
	Message      *messageStart `json:"message"`
	ContentBlock *replyBlock   `json:"content_block"`
	Delta        eventDelta    `json:"delta"`
	Usage        wireUsage     `json:"usage"`
	Error        errorDetail   `json:"error"`
}

type messageStart struct {
	ID    string    `json:"id"`
	Model string    `json:"model"`
	Usage wireUsage `json:"usage"`
}

// eventDelta covers both content_block_delta deltas, selected by Type, and
// the message_delta delta carrying the stop reason.
type eventDelta struct {
	Type        string  `json:"type"`
	Text        string  `json:"text"`
	PartialJSON string  `json:"partial_json"`
	Thinking    string  `json:"thinking"`
	Signature   string  `json:"signature"`
	StopReason  *string `json:"stop_reason"`
}

// wireUsage is reported by message_start and again by message_delta. Every
// count except output_tokens may be absent or null.
type wireUsage struct {
	InputTokens              *int `json:"input_tokens"`
	OutputTokens             int  `json:"output_tokens"`
	CacheCreationInputTokens *int `json:"cache_creation_input_tokens"`
	CacheReadInputTokens     *int `json:"cache_read_input_tokens"`
}

// replyBlock is a content block returned by the API, either opening a
// streamed block or inside a complete response.
type replyBlock struct {
	Type      string          `json:"type"`
	Text      string          `json:"text"`
	Thinking  string          `json:"thinking"`
	Signature string          `json:"signature"`
	ID        string          `json:"id"`
	Name      string          `json:"name"`
	Input     json.RawMessage `json:"input"`
}

type messagesResponse struct {
	ID         string       `json:"id"`
	Model      string       `json:"model"`
	Content    []replyBlock `json:"content"`
	StopReason *string      `json:"stop_reason"`
	Usage      wireUsage    `json:"usage"`
}

type errorDetail struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// errorResponse is the body of a non-200 response.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

func deref(n *int) int {
	if n == nil {
		return 0
	}
	return *n
}
