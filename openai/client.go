package openai

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fwojciec/relay"
	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Interface compliance checks.
var (
	_ relay.Provider  = (*Client)(nil)
	_ relay.Completer = (*Client)(nil)
)

// Client implements [relay.Provider] for the OpenAI chat completions API
// and streams assistants runs.
type Client struct {
	apiKey       string
	baseURL      string
	organization string
	httpClient   *http.Client
	logger       zerolog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest and
// for OpenAI-compatible gateways.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = strings.TrimSuffix(url, "/") }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithOrganization sets the OpenAI-Organization header.
func WithOrganization(org string) Option {
	return func(c *Client) { c.organization = org }
}

// WithLogger sets the logger for request and stream lifecycle messages.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new OpenAI [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		httpClient: http.DefaultClient,
		logger:     zerolog.Nop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Stream validates and encodes req and returns a collection of chat
// completion updates. Each traversal of the collection sends the request
// anew.
func (c *Client) Stream(req relay.Request) (*relay.Collection[relay.Update], error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	body, err := buildChatRequest(req, true)
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	return relay.NewCollectionFunc(c.producer(chatPath, body, false), NewChatDecoder, relay.WithLogger(c.logger)), nil
}

// Complete sends a non-streaming chat completion and returns the assistant
// message.
func (c *Client) Complete(ctx context.Context, req relay.Request) (relay.Result[relay.AssistantMessage], error) {
	if err := req.Validate(); err != nil {
		return relay.Result[relay.AssistantMessage]{}, fmt.Errorf("openai: %w", err)
	}
	body, err := buildChatRequest(req, false)
	if err != nil {
		return relay.Result[relay.AssistantMessage]{}, fmt.Errorf("openai: %w", err)
	}
	return relay.Complete(ctx, c.producer(chatPath, body, false), ParseChatCompletion)
}

// StreamRun creates a run of an assistant on an existing thread and returns
// a collection of its updates. Run lifecycle changes arrive as
// [relay.UpdateRunStatus]; message text and function tool calls arrive as
// the same updates a chat stream produces.
func (c *Client) StreamRun(threadID string, req RunRequest) (*relay.Collection[relay.Update], error) {
	if threadID == "" {
		return nil, fmt.Errorf("openai: thread id is required: %w", relay.ErrValidation)
	}
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	body, err := json.Marshal(runRequest{
		AssistantID:            req.AssistantID,
		Model:                  req.Model,
		Instructions:           req.Instructions,
		AdditionalInstructions: req.AdditionalInstructions,
		Tools:                  convertTools(req.Tools),
		Temperature:            req.Temperature,
		MaxCompletionTokens:    req.MaxCompletionTokens,
		Metadata:               req.Metadata,
		Stream:                 true,
	})
	if err != nil {
		return nil, fmt.Errorf("openai: %w", err)
	}
	path := "/v1/threads/" + url.PathEscape(threadID) + "/runs"
	return relay.NewCollectionFunc(c.producer(path, body, true), NewRunDecoder, relay.WithLogger(c.logger)), nil
}

func (c *Client) producer(path string, body []byte, assistants bool) relay.Producer {
	return func(ctx context.Context) (relay.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)
		httpReq.Header.Set(clientIDHeader, uuid.NewString())
		if c.organization != "" {
			httpReq.Header.Set("OpenAI-Organization", c.organization)
		}
		if assistants {
			httpReq.Header.Set("OpenAI-Beta", assistantsBeta)
		}

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("openai: %w", err)
		}
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("request_id", resp.Header.Get(requestIDHeader)).
			Dur("elapsed", time.Since(start)).
			Msg("openai response")

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			defer resp.Body.Close()
			return nil, parseHTTPError(resp)
		}
		return relay.HTTPResponse(resp), nil
	}
}

func buildChatRequest(req relay.Request, stream bool) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	chatReq := chatRequest{
		Model:               model,
		Messages:            convertMessages(req.SystemPrompt, req.Messages),
		Tools:               convertTools(req.Tools),
		MaxCompletionTokens: req.MaxTokens,
		Temperature:         req.Temperature,
		Stream:              stream,
	}
	if stream {
		chatReq.StreamOptions = &chatStreamOptions{IncludeUsage: true}
	}
	return json.Marshal(chatReq)
}

func convertMessages(system string, msgs []relay.Message) []chatMessage {
	result := make([]chatMessage, 0, len(msgs)+1)
	if system != "" {
		result = append(result, chatMessage{Role: "system", Content: system})
	}
	for _, msg := range msgs {
		switch m := msg.(type) {
		case relay.UserMessage:
			result = append(result, chatMessage{Role: "user", Content: userContent(m.Content)})
		case relay.AssistantMessage:
			result = append(result, assistantMessage(m))
		case relay.ToolResultMessage:
			result = append(result, chatMessage{
				Role:       "tool",
				ToolCallID: m.ToolCallID,
				Content:    joinText(m.Content),
			})
		}
	}
	return result
}

// userContent is a plain string unless the message carries images.
func userContent(blocks []relay.ContentBlock) any {
	hasImage := false
	for _, b := range blocks {
		if _, ok := b.(relay.ImageBlock); ok {
			hasImage = true
			break
		}
	}
	if !hasImage {
		return joinText(blocks)
	}

	parts := make([]chatContentPart, 0, len(blocks))
	for _, b := range blocks {
		switch bl := b.(type) {
		case relay.TextBlock:
			parts = append(parts, chatContentPart{Type: "text", Text: bl.Text})
		case relay.ImageBlock:
			dataURL := "data:" + bl.MimeType + ";base64," + base64.StdEncoding.EncodeToString(bl.Data)
			parts = append(parts, chatContentPart{Type: "image_url", ImageURL: &chatImageURL{URL: dataURL}})
		}
	}
	return parts
}

// assistantMessage drops thinking blocks; the chat API does not accept
// reasoning content back.
func assistantMessage(m relay.AssistantMessage) chatMessage {
	msg := chatMessage{Role: "assistant"}
	if text := joinText(m.Content); text != "" {
		msg.Content = text
	}
	for _, b := range m.Content {
		if tc, ok := b.(relay.ToolCallBlock); ok {
			msg.ToolCalls = append(msg.ToolCalls, chatToolCall{
				ID:       tc.ID,
				Type:     "function",
				Function: chatFunctionCall{Name: tc.Name, Arguments: string(tc.Arguments)},
			})
		}
	}
	return msg
}

func joinText(blocks []relay.ContentBlock) string {
	var sb strings.Builder
	for _, b := range blocks {
		if tb, ok := b.(relay.TextBlock); ok {
			sb.WriteString(tb.Text)
		}
	}
	return sb.String()
}

func convertTools(tools []relay.Tool) []chatTool {
	if len(tools) == 0 {
		return nil
	}
	result := make([]chatTool, len(tools))
	for i, t := range tools {
		params := jsontext.Value(t.Parameters)
		if len(params) == 0 {
			params = jsontext.Value(defaultToolParam)
		}
		result[i] = chatTool{
			Type:     "function",
			Function: chatFunction{Name: t.Name, Description: t.Description, Parameters: params},
		}
	}
	return result
}

// ParseChatCompletion converts a complete chat completion response body
// into an assistant message. Only the first choice is used.
func ParseChatCompletion(data []byte) (relay.AssistantMessage, error) {
	var resp chatCompletion
	if err := json.Unmarshal(data, &resp); err != nil {
		return relay.AssistantMessage{}, fmt.Errorf("openai: parse completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return relay.AssistantMessage{}, fmt.Errorf("openai: completion has no choices: %w", relay.ErrProtocolViolation)
	}

	choice := resp.Choices[0]
	msg := relay.AssistantMessage{
		StopReason:    mapFinishReason(choice.FinishReason),
		RawStopReason: choice.FinishReason,
		Timestamp:     time.Now(),
	}
	if resp.Usage != nil {
		msg.Usage = convertUsage(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, resp.Usage.PromptTokensDetails)
	}
	if choice.Message.ReasoningContent != "" {
		msg.Content = append(msg.Content, relay.ThinkingBlock{Thinking: choice.Message.ReasoningContent})
	}
	if choice.Message.Content != "" {
		msg.Content = append(msg.Content, relay.TextBlock{Text: choice.Message.Content})
	} else if choice.Message.Refusal != "" {
		msg.Content = append(msg.Content, relay.TextBlock{Text: choice.Message.Refusal})
	}
	for _, tc := range choice.Message.ToolCalls {
		args := tc.Function.Arguments
		if args == "" {
			args = "{}"
		}
		msg.Content = append(msg.Content, relay.ToolCallBlock{
			ID:        tc.ID,
			Name:      tc.Function.Name,
			Arguments: []byte(args),
		})
	}
	return msg, nil
}

func parseHTTPError(resp *http.Response) error {
	apiErr := &relay.APIError{
		Provider:   "openai",
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get(requestIDHeader),
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Message = fmt.Sprintf("failed to read body: %v", err)
		return apiErr
	}
	var parsed apiErrorResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error == nil || parsed.Error.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Type = parsed.Error.Type
	apiErr.Message = parsed.Error.Message
	return apiErr
}
