// Package openai implements [relay.Provider] for the OpenAI API.
//
// Chat completions stream as server-sent events terminated by a data: [DONE]
// frame. Assistants runs stream named events (thread.run.*, thread.message.*,
// thread.run.step.*) and end with event: done carrying the same sentinel.
// Both decode into [relay.Update] values through the decoders returned by
// [NewChatDecoder] and [NewRunDecoder].
package openai

import "github.com/go-json-experiment/json/jsontext"

const (
	defaultBaseURL   = "https://api.openai.com"
	defaultModel     = "gpt-4.1"
	chatPath         = "/v1/chat/completions"
	assistantsBeta   = "assistants=v2"
	requestIDHeader  = "X-Request-Id"
	clientIDHeader   = "X-Client-Request-Id"
	defaultToolParam = `{"type":"object","properties":{}}`
)

// Chat completions request types.

type chatRequest struct {
	Model               string             `json:"model"`
	Messages            []chatMessage      `json:"messages"`
	Tools               []chatTool         `json:"tools,omitzero"`
	MaxCompletionTokens int                `json:"max_completion_tokens,omitzero"`
	Temperature         *float64           `json:"temperature,omitzero"`
	Stream              bool               `json:"stream,omitzero"`
	StreamOptions       *chatStreamOptions `json:"stream_options,omitzero"`
}

type chatStreamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// chatMessage content is a string, a list of chatContentPart, or absent.
type chatMessage struct {
	Role       string         `json:"role"`
	Content    any            `json:"content,omitzero"`
	ToolCalls  []chatToolCall `json:"tool_calls,omitzero"`
	ToolCallID string         `json:"tool_call_id,omitzero"`
}

type chatContentPart struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitzero"`
	ImageURL *chatImageURL `json:"image_url,omitzero"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatToolCall struct {
	Index    *int             `json:"index,omitzero"`
	ID       string           `json:"id,omitzero"`
	Type     string           `json:"type,omitzero"`
	Function chatFunctionCall `json:"function"`
}

type chatFunctionCall struct {
	Name      string `json:"name,omitzero"`
	Arguments string `json:"arguments"`
}

type chatTool struct {
	Type     string       `json:"type"`
	Function chatFunction `json:"function"`
}

type chatFunction struct {
	Name        string         `json:"name"`
	Description string         `json:"description,omitzero"`
	Parameters  jsontext.Value `json:"parameters,omitzero"`
}

// Chat completions response types.

type chatCompletion struct {
	ID      string       `json:"id"`
	Model   string       `json:"model"`
	Choices []chatChoice `json:"choices"`
	Usage   *chatUsage   `json:"usage"`
}

type chatChoice struct {
	Index        int                 `json:"index"`
	Message      chatResponseMessage `json:"message"`
	FinishReason string              `json:"finish_reason"`
}

type chatResponseMessage struct {
	Role             string         `json:"role"`
	Content          string         `json:"content"`
	ReasoningContent string         `json:"reasoning_content"`
	Refusal          string         `json:"refusal"`
	ToolCalls        []chatToolCall `json:"tool_calls"`
}

type chatChunk struct {
	ID      string            `json:"id"`
	Model   string            `json:"model"`
	Choices []chatChunkChoice `json:"choices"`
	Usage   *chatUsage        `json:"usage"`
	Error   *apiErrorDetail   `json:"error"`
}

type chatChunkChoice struct {
	Index        int                 `json:"index"`
	Delta        chatResponseMessage `json:"delta"`
	FinishReason string              `json:"finish_reason"`
}

type chatUsage struct {
	PromptTokens        int                `json:"prompt_tokens"`
	CompletionTokens    int                `json:"completion_tokens"`
	PromptTokensDetails *chatTokensDetails `json:"prompt_tokens_details"`
}

type chatTokensDetails struct {
	CachedTokens int `json:"cached_tokens"`
}

// Assistants run types.

type runRequest struct {
	AssistantID            string            `json:"assistant_id"`
	Model                  string            `json:"model,omitzero"`
	Instructions           string            `json:"instructions,omitzero"`
	AdditionalInstructions string            `json:"additional_instructions,omitzero"`
	Tools                  []chatTool        `json:"tools,omitzero"`
	Temperature            *float64          `json:"temperature,omitzero"`
	MaxCompletionTokens    int               `json:"max_completion_tokens,omitzero"`
	Metadata               map[string]string `json:"metadata,omitzero"`
	Stream                 bool              `json:"stream"`
}

type runObject struct {
	ID                string          `json:"id"`
	ThreadID          string          `json:"thread_id"`
	Status            string          `json:"status"`
	Usage             *runUsage       `json:"usage"`
	IncompleteDetails *runIncomplete  `json:"incomplete_details"`
	LastError         *apiErrorDetail `json:"last_error"`
}

type runUsage struct {
	PromptTokens       int                `json:"prompt_tokens"`
	CompletionTokens   int                `json:"completion_tokens"`
	PromptTokenDetails *chatTokensDetails `json:"prompt_token_details"`
}

type runIncomplete struct {
	Reason string `json:"reason"`
}

type messageDelta struct {
	ID    string `json:"id"`
	Delta struct {
		Content []messageDeltaContent `json:"content"`
	} `json:"delta"`
}

type messageDeltaContent struct {
	Index int    `json:"index"`
	Type  string `json:"type"`
	Text  *struct {
		Value string `json:"value"`
	} `json:"text"`
}

type runStep struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	ThreadID    string          `json:"thread_id"`
	Status      string          `json:"status"`
	StepDetails runStepDetails  `json:"step_details"`
	LastError   *apiErrorDetail `json:"last_error"`
}

type runStepDelta struct {
	ID    string `json:"id"`
	Delta struct {
		StepDetails runStepDetails `json:"step_details"`
	} `json:"delta"`
}

type runStepDetails struct {
	Type      string            `json:"type"`
	ToolCalls []runStepToolCall `json:"tool_calls"`
}

type runStepToolCall struct {
	Index    int               `json:"index"`
	ID       string            `json:"id"`
	Type     string            `json:"type"`
	Function *chatFunctionCall `json:"function"`
}

// Error types.

type apiErrorResponse struct {
	Error *apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    any    `json:"code"`
}
