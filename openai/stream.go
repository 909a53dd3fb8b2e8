package openai

import (
	"fmt"
	"slices"

	"github.com/fwojciec/relay"
	"github.com/go-json-experiment/json"
)

// chatDecoder maps chat.completion.chunk frames to updates. Text and
// reasoning blocks are indexed by choice; tool calls by their wire index.
type chatDecoder struct {
	open []int // tool call indexes begun and not yet ended
}

// NewChatDecoder returns a decoder for one chat completions stream.
func NewChatDecoder() relay.Decoder[relay.Update] {
	d := &chatDecoder{}
	return d.decode
}

func (d *chatDecoder) decode(f relay.Frame) ([]relay.Update, error) {
	var chunk chatChunk
	if err := json.Unmarshal(f.Data, &chunk); err != nil {
		return nil, fmt.Errorf("openai: failed to parse chunk: %w", err)
	}
	if chunk.Error != nil {
		return nil, streamError(chunk.Error)
	}

	var updates []relay.Update
	for _, choice := range chunk.Choices {
		delta := choice.Delta
		if delta.ReasoningContent != "" {
			updates = append(updates, relay.UpdateThinkingDelta{Index: choice.Index, Delta: delta.ReasoningContent})
		}
		if delta.Content != "" {
			updates = append(updates, relay.UpdateTextDelta{Index: choice.Index, Delta: delta.Content})
		}
		if delta.Refusal != "" {
			updates = append(updates, relay.UpdateTextDelta{Index: choice.Index, Delta: delta.Refusal})
		}
		for i, tc := range delta.ToolCalls {
			index := i
			if tc.Index != nil {
				index = *tc.Index
			}
			// The first fragment of a call carries its id and name.
			if tc.ID != "" && !slices.Contains(d.open, index) {
				updates = append(updates, relay.UpdateToolCallBegin{Index: index, ID: tc.ID, Name: tc.Function.Name})
				d.open = append(d.open, index)
			}
			if tc.Function.Arguments != "" {
				updates = append(updates, relay.UpdateToolCallDelta{Index: index, ID: tc.ID, Delta: tc.Function.Arguments})
			}
		}
		if choice.FinishReason != "" {
			for _, index := range d.open {
				updates = append(updates, relay.UpdateToolCallEnd{Index: index})
			}
			d.open = d.open[:0]
			updates = append(updates, relay.UpdateFinish{
				StopReason:    mapFinishReason(choice.FinishReason),
				RawStopReason: choice.FinishReason,
			})
		}
	}
	if chunk.Usage != nil {
		u := chunk.Usage
		updates = append(updates, relay.UpdateUsage{Usage: convertUsage(u.PromptTokens, u.CompletionTokens, u.PromptTokensDetails)})
	}
	return updates, nil
}

func streamError(e *apiErrorDetail) error {
	if e.Type == "" {
		return fmt.Errorf("openai: %s", e.Message)
	}
	return fmt.Errorf("openai: %s: %s", e.Type, e.Message)
}

// convertUsage maps API usage to the provider-neutral invariant.
// prompt_tokens includes cached tokens.
func convertUsage(prompt, completion int, details *chatTokensDetails) relay.Usage {
	var cached int
	if details != nil {
		cached = details.CachedTokens
	}
	return relay.Usage{
		InputTokens:     max(0, prompt-cached),
		OutputTokens:    completion,
		CacheReadTokens: cached,
	}
}

func mapFinishReason(raw string) relay.StopReason {
	switch raw {
	case "stop":
		return relay.StopEndTurn
	case "length":
		return relay.StopLength
	case "tool_calls", "function_call":
		return relay.StopToolUse
	case "content_filter":
		return relay.StopError
	default:
		return relay.StopUnknown
	}
}
