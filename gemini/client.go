package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/fwojciec/relay"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"google.golang.org/genai"
)

// Interface compliance checks.
var (
	_ relay.Provider  = (*Client)(nil)
	_ relay.Completer = (*Client)(nil)
)

// Client implements [relay.Provider] for the Google Gemini API.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     zerolog.Logger
}

// Option configures a [Client].
type Option func(*Client)

// WithModel sets the model ID used when a request names none. Default is
// gemini-3.1-pro-preview.
func WithModel(model string) Option {
	return func(c *Client) { c.model = model }
}

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

// New creates a new Gemini [Client] with the given API key and options.
func New(apiKey string, opts ...Option) *Client {
	c := &Client{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
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
		return nil, fmt.Errorf("gemini: %w", err)
	}
	body, err := buildRequestBody(req)
	if err != nil {
		return nil, fmt.Errorf("gemini: %w", err)
	}
	endpoint := c.endpoint(req.Model, "streamGenerateContent") + "?alt=sse"
	return relay.NewCollectionFunc(
		c.producer(endpoint, body),
		NewDecoder,
		relay.WithSentinel(nil),
		relay.WithLogger(c.logger),
	), nil
}

// Complete sends a non-streaming request and returns the assistant message.
func (c *Client) Complete(ctx context.Context, req relay.Request) (relay.Result[relay.AssistantMessage], error) {
	if err := req.Validate(); err != nil {
		return relay.Result[relay.AssistantMessage]{}, fmt.Errorf("gemini: %w", err)
	}
	body, err := buildRequestBody(req)
	if err != nil {
		return relay.Result[relay.AssistantMessage]{}, fmt.Errorf("gemini: %w", err)
	}
	return relay.Complete(ctx, c.producer(c.endpoint(req.Model, "generateContent"), body), ParseResponse)
}

func (c *Client) endpoint(model, method string) string {
	if model == "" {
		model = c.model
	}
	return fmt.Sprintf("%s/%s/models/%s:%s", c.baseURL, apiVersion, url.PathEscape(model), method)
}

func (c *Client) producer(endpoint string, body []byte) relay.Producer {
	return func(ctx context.Context) (relay.Response, error) {
		httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		requestID := uuid.NewString()
		httpReq.Header.Set("Content-Type", "application/json")
		httpReq.Header.Set("X-Goog-Api-Key", c.apiKey)
		httpReq.Header.Set("X-Client-Request-Id", requestID)

		start := time.Now()
		resp, err := c.httpClient.Do(httpReq)
		if err != nil {
			return nil, fmt.Errorf("gemini: %w", err)
		}
		c.logger.Debug().
			Int("status", resp.StatusCode).
			Str("request_id", requestID).
			Dur("elapsed", time.Since(start)).
			Msg("gemini response")

		if resp.StatusCode != http.StatusOK {
			defer resp.Body.Close()
			return nil, parseHTTPError(resp, requestID)
		}
		return relay.HTTPResponse(resp), nil
	}
}

func buildRequestBody(req relay.Request) ([]byte, error) {
	maxTokens := req.MaxTokens
	if maxTokens == 0 {
		maxTokens = defaultMaxTokens
	}

	apiReq := apiRequest{
		Contents: ConvertMessages(req.Messages),
		Tools:    ConvertTools(req.Tools),
		GenerationConfig: &genai.GenerationConfig{
			MaxOutputTokens: int32(maxTokens),
			ThinkingConfig:  &genai.ThinkingConfig{IncludeThoughts: true},
		},
	}
	if req.SystemPrompt != "" {
		apiReq.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.SystemPrompt}},
		}
	}
	if req.Temperature != nil {
		temp := float32(*req.Temperature)
		apiReq.GenerationConfig.Temperature = &temp
	}

	return json.Marshal(apiReq)
}

// ConvertMessages maps a conversation to genai contents. Assistant turns
// take the "model" role and consecutive tool results share one user turn
// of function responses. Exported for testing.
func ConvertMessages(msgs []relay.Message) []*genai.Content {
	var out []*genai.Content
	for _, msg := range msgs {
		switch m := msg.(type) {
		case relay.UserMessage:
			out = append(out, genai.NewContentFromParts(convertParts(m.Content), genai.RoleUser))
		case relay.AssistantMessage:
			out = append(out, genai.NewContentFromParts(convertParts(m.Content), genai.RoleModel))
		case relay.ToolResultMessage:
			resp := functionResponse(m)
			if last := len(out) - 1; last >= 0 && isFunctionResponseTurn(out[last]) {
				out[last].Parts = append(out[last].Parts, resp)
				continue
			}
			out = append(out, genai.NewContentFromParts([]*genai.Part{resp}, genai.RoleUser))
		}
	}
	return out
}

// functionResponse reports a tool result under "output", or under "error"
// when the tool failed. Only text content is sent.
func functionResponse(m relay.ToolResultMessage) *genai.Part {
	var texts []string
	for _, b := range m.Content {
		if t, ok := b.(relay.TextBlock); ok {
			texts = append(texts, t.Text)
		}
	}
	key := "output"
	if m.IsError {
		key = "error"
	}
	return &genai.Part{FunctionResponse: &genai.FunctionResponse{
		ID:       m.ToolCallID,
		Name:     m.ToolName,
		Response: map[string]any{key: strings.Join(texts, "\n")},
	}}
}

func isFunctionResponseTurn(c *genai.Content) bool {
	return c.Role == string(genai.RoleUser) && len(c.Parts) > 0 && c.Parts[0].FunctionResponse != nil
}

func convertParts(blocks []relay.ContentBlock) []*genai.Part {
	parts := make([]*genai.Part, 0, len(blocks))
	for _, b := range blocks {
		var p *genai.Part
		switch b := b.(type) {
		case relay.TextBlock:
			p = &genai.Part{Text: b.Text}
		case relay.ThinkingBlock:
			p = &genai.Part{Text: b.Thinking, Thought: true, ThoughtSignature: b.Signature}
		case relay.ImageBlock:
			p = &genai.Part{InlineData: &genai.Blob{MIMEType: b.MimeType, Data: b.Data}}
		case relay.ToolCallBlock:
			// Arguments come from the model and are a JSON object; anything
			// else is sent without args.
			var args map[string]any
			_ = json.Unmarshal(b.Arguments, &args)
			p = &genai.Part{FunctionCall: &genai.FunctionCall{ID: b.ID, Name: b.Name, Args: args}}
		default:
			continue
		}
		parts = append(parts, p)
	}
	return parts
}

// ConvertTools declares every tool in a single genai tool. A tool without
// a schema gets an empty object schema. Exported for testing.
func ConvertTools(tools []relay.Tool) []*genai.Tool {
	if len(tools) == 0 {
		return nil
	}
	decls := make([]*genai.FunctionDeclaration, 0, len(tools))
	for _, t := range tools {
		decl := &genai.FunctionDeclaration{
			Name:                 t.Name,
			Description:          t.Description,
			ParametersJsonSchema: map[string]any{"type": "object"},
		}
		if len(t.Parameters) > 0 {
			decl.ParametersJsonSchema = t.Parameters
		}
		decls = append(decls, decl)
	}
	return []*genai.Tool{{FunctionDeclarations: decls}}
}

// ParseResponse converts a complete generateContent response body into an
// assistant message. The body has the shape of a single stream chunk.
func ParseResponse(data []byte) (relay.AssistantMessage, error) {
	updates, err := NewDecoder()(relay.Frame{Data: data})
	if err != nil {
		return relay.AssistantMessage{}, err
	}
	var acc relay.Accumulator
	for _, u := range updates {
		acc.Apply(u)
	}
	msg := acc.Message()
	msg.Timestamp = time.Now()
	return msg, nil
}

func parseHTTPError(resp *http.Response, requestID string) error {
	apiErr := &relay.APIError{
		Provider:   "gemini",
		StatusCode: resp.StatusCode,
		RequestID:  requestID,
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
	apiErr.Type = parsed.Error.Status
	apiErr.Message = parsed.Error.Message
	return apiErr
}
