package anthropic

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fwojciec/relay"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Interface compliance checks.
var (
	_ relay.Provider  = (*Client)(nil)
	_ relay.Completer = (*Client)(nil)
)

// Client implements [relay.Provider] for the Anthropic Messages API.
type Client struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithBaseURL sets the API base URL. Useful for testing with httptest.
func WithBaseURL(url string) Option {
	return func(c *Client) { c.baseURL = url }
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithLogger sets the logger for request and stream lifecycle messages.
func WithLogger(l zerolog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// New creates a new Anthropic [Client] with the given API key and options.
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

// Stream validates and encodes req and returns a collection of updates.
// Each traversal of the collection sends the request anew.
func (c *Client) Stream(req relay.Request) (*relay.Collection[relay.Update], error) {
	if err := req.Validate(); err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	body, err := c.buildRequestBody(req, true)
	if err != nil {
		return nil, fmt.Errorf("anthropic: %w", err)
	}
	return relay.NewCollectionFunc(c.producer(body), NewDecoder, relay.WithLogger(c.logger)), nil
}

// Complete sends a non-streaming request and returns the assistant message.
func (c *Client) Complete(ctx context.Context, req relay.Request) (relay.Result[relay.AssistantMessage], error) {
	if err := req.Validate(); err != nil {
		return relay.Result[relay.AssistantMessage]{}, fmt.Errorf("anthropic: %w", err)
	}
	body, err := c.buildRequestBody(req, false)
	if err != nil {
		return relay.Result[relay.AssistantMessage]{}, fmt.Errorf("anthropic: %w", err)
	}
	return relay.Complete(ctx, c.producer(body), ParseMessage)
}

func (c *Client) producer(body []byte) relay.Producer {
	return func(ctx context.Context) (relay.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+messagesPath, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Api-Key", c.apiKey)
		httpReq.Header.Set("Anthropic-Version", apiVersion)
		httpReq.Header.Set("X-Client-Request-Id", uuid.NewString())

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("anthropic: %w", err)
		}
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("request_id", resp.Header.Get("Request-Id")).
			Dur("elapsed", time.Since(start)).
			Msg("anthropic response")

		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, parseHTTPError(resp)
		}
		return relay.HTTPResponse(resp), nil
	}
}

func (c *Client) buildRequestBody(req relay.Request, stream bool) ([]byte, error) {
	model := req.Model
	if model == "" {
		model = defaultModel
	}
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	body := messagesRequest{
		Model:       model,
		MaxTokens:   maxTokens,
		Stream:      stream,
		System:      convertSystem(req.SystemPrompt),
		Messages:    convertMessages(req.Messages),
		Tools:       convertTools(req.Tools),
		Temperature: req.Temperature,
	}
	injectCacheMarkers(&body)

	return json.Marshal(body)
}

func convertSystem(prompt string) []part {
	if prompt == "" {
		return nil
	}
	return []part{{Type: "text", Text: prompt}}
}

// injectCacheMarkers sets cache_control breakpoints at the top level, on the
// last system block and on the last tool.
func injectCacheMarkers(req *messagesRequest) {
	cc := &cacheControl{Type: "ephemeral"}
	req.CacheControl = cc
	if len(req.System) > 0 {
		req.System[len(req.System)-1].CacheControl = cc
	}
	if len(req.Tools) > 0 {
		req.Tools[len(req.Tools)-1].CacheControl = cc
	}
}

// convertMessages maps a conversation to Messages API turns. Tool results
// become tool_result parts of a user turn; consecutive results share it.
func convertMessages(msgs []relay.Message) []turn {
	var out []turn
	for _, msg := range msgs {
		m, ok := msg.(relay.ToolResultMessage)
		if !ok {
			var blocks []relay.ContentBlock
			switch m := msg.(type) {
			case relay.UserMessage:
				blocks = m.Content
			case relay.AssistantMessage:
				blocks = m.Content
			}
			out = append(out, turn{Role: string(msg.Role()), Content: convertParts(blocks)})
			continue
		}
		result := part{
			Type:      "tool_result",
			ToolUseID: m.ToolCallID,
			Content:   convertParts(m.Content),
			IsError:   m.IsError,
		}
		if last := len(out) - 1; last >= 0 && isToolResultTurn(out[last]) {
			out[last].Content = append(out[last].Content, result)
			continue
		}
		out = append(out, turn{Role: "user", Content: []part{result}})
	}
	return out
}

func isToolResultTurn(t turn) bool {
	return t.Role == "user" && len(t.Content) > 0 && t.Content[0].Type == "tool_result"
}

func convertParts(blocks []relay.ContentBlock) []part {
	parts := make([]part, 0, len(blocks))
	for _, b := range blocks {
		switch b := b.(type) {
		case relay.TextBlock:
			parts = append(parts, part{Type: "text", Text: b.Text})
		case relay.ThinkingBlock:
			parts = append(parts, part{Type: "thinking", Thinking: b.Thinking, Signature: string(b.Signature)})
		case relay.ImageBlock:
			parts = append(parts, part{Type: "image", Source: &imageSource{
				Type:      "base64",
				MediaType: b.MimeType,
				Data:      base64.StdEncoding.EncodeToString(b.Data),
			}})
		case relay.ToolCallBlock:
			parts = append(parts, part{Type: "tool_use", ID: b.ID, Name: b.Name, Input: b.Arguments})
		}
	}
	return parts
}

var emptyObjectSchema = json.RawMessage(`{"type":"object"}`)

func convertTools(tools []relay.Tool) []toolSpec {
	var specs []toolSpec
	for _, t := range tools {
		spec := toolSpec{Name: t.Name, Description: t.Description, InputSchema: t.Parameters}
		if len(spec.InputSchema) == 0 {
			spec.InputSchema = emptyObjectSchema
		}
		specs = append(specs, spec)
	}
	return specs
}

// ParseMessage converts a complete Messages API response body into an
// assistant message. Block types it does not know are skipped.
func ParseMessage(data []byte) (relay.AssistantMessage, error) {
	var resp messagesResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return relay.AssistantMessage{}, fmt.Errorf("anthropic: parse message: %w", err)
	}

	msg := relay.AssistantMessage{Usage: convertUsage(resp.Usage), Timestamp: time.Now()}
	if raw := resp.StopReason; raw != nil {
		msg.StopReason, msg.RawStopReason = mapStopReason(*raw), *raw
	}
	for _, b := range resp.Content {
		var block relay.ContentBlock
		switch b.Type {
		case "text":
			block = relay.TextBlock{Text: b.Text}
		case "thinking":
			var sig []byte
			if b.Signature != "" {
				sig = []byte(b.Signature)
			}
			block = relay.ThinkingBlock{Thinking: b.Thinking, Signature: sig}
		case "tool_use":
			args := b.Input
			if len(args) == 0 {
				args = json.RawMessage(`{}`)
			}
			block = relay.ToolCallBlock{ID: b.ID, Name: b.Name, Arguments: args}
		default:
			continue
		}
		msg.Content = append(msg.Content, block)
	}
	return msg, nil
}

func parseHTTPError(resp *http.Response) error {
	apiErr := &relay.APIError{
		Provider:   "anthropic",
		StatusCode: resp.StatusCode,
		RequestID:  resp.Header.Get("Request-Id"),
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		apiErr.Message = fmt.Sprintf("failed to read body: %v", err)
		return apiErr
	}
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err != nil || parsed.Error.Message == "" {
		apiErr.Message = strings.TrimSpace(string(body))
		return apiErr
	}
	apiErr.Type = parsed.Error.Type
	apiErr.Message = parsed.Error.Message
	return apiErr
}
