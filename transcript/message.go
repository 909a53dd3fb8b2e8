package transcript

import (
	"fmt"
	"time"

	"github.com/fwojciec/relay"
	"github.com/go-json-experiment/json/jsontext"
)

// message is a Message with a type discriminator.
type message struct {
	Type          string    `json:"type"`
	Content       []block   `json:"content"`
	Timestamp     time.Time `json:"timestamp,omitzero"`
	StopReason    string    `json:"stop_reason,omitzero"`
	RawStopReason string    `json:"raw_stop_reason,omitzero"`
	Usage         *usage    `json:"usage,omitzero"`
	ToolCallID    string    `json:"tool_call_id,omitzero"`
	ToolName      string    `json:"tool_name,omitzero"`
	IsError       bool      `json:"is_error,omitzero"`
}

type usage struct {
	InputTokens      int `json:"input_tokens"`
	OutputTokens     int `json:"output_tokens"`
	CacheReadTokens  int `json:"cache_read_tokens,omitzero"`
	CacheWriteTokens int `json:"cache_write_tokens,omitzero"`
}

// block is a ContentBlock with a type discriminator. Byte slices are
// base64 in the document.
type block struct {
	Type      string         `json:"type"`
	Text      string         `json:"text,omitzero"`
	Thinking  string         `json:"thinking,omitzero"`
	Signature []byte         `json:"signature,omitzero"`
	Data      []byte         `json:"data,omitzero"`
	MimeType  string         `json:"mime_type,omitzero"`
	ID        string         `json:"id,omitzero"`
	Name      string         `json:"name,omitzero"`
	Arguments jsontext.Value `json:"arguments,omitzero"`
}

func encodeMessage(msg relay.Message) (message, error) {
	switch m := msg.(type) {
	case relay.UserMessage:
		blocks, err := encodeBlocks(m.Content)
		return message{Type: "user", Content: blocks, Timestamp: m.Timestamp}, err
	case relay.AssistantMessage:
		blocks, err := encodeBlocks(m.Content)
		return message{
			Type:          "assistant",
			Content:       blocks,
			Timestamp:     m.Timestamp,
			StopReason:    string(m.StopReason),
			RawStopReason: m.RawStopReason,
			Usage: &usage{
				InputTokens:      m.Usage.InputTokens,
				OutputTokens:     m.Usage.OutputTokens,
				CacheReadTokens:  m.Usage.CacheReadTokens,
				CacheWriteTokens: m.Usage.CacheWriteTokens,
			},
		}, err
	case relay.ToolResultMessage:
		blocks, err := encodeBlocks(m.Content)
		return message{
			Type:       "tool_result",
			Content:    blocks,
			Timestamp:  m.Timestamp,
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
			IsError:    m.IsError,
		}, err
	default:
		return message{}, fmt.Errorf("unknown message type %T", msg)
	}
}

func decodeMessage(m message) (relay.Message, error) {
	content, err := decodeBlocks(m.Content)
	if err != nil {
		return nil, err
	}
	switch m.Type {
	case "user":
		return relay.UserMessage{Content: content, Timestamp: m.Timestamp}, nil
	case "assistant":
		msg := relay.AssistantMessage{
			Content:       content,
			StopReason:    relay.StopReason(m.StopReason),
			RawStopReason: m.RawStopReason,
			Timestamp:     m.Timestamp,
		}
		if u := m.Usage; u != nil {
			msg.Usage = relay.Usage{
				InputTokens:      u.InputTokens,
				OutputTokens:     u.OutputTokens,
				CacheReadTokens:  u.CacheReadTokens,
				CacheWriteTokens: u.CacheWriteTokens,
			}
		}
		return msg, nil
	case "tool_result":
		return relay.ToolResultMessage{
			ToolCallID: m.ToolCallID,
			ToolName:   m.ToolName,
			Content:    content,
			IsError:    m.IsError,
			Timestamp:  m.Timestamp,
		}, nil
	default:
		return nil, fmt.Errorf("unknown message type %q", m.Type)
	}
}

func encodeBlocks(blocks []relay.ContentBlock) ([]block, error) {
	result := make([]block, len(blocks))
	for i, b := range blocks {
		switch v := b.(type) {
		case relay.TextBlock:
			result[i] = block{Type: "text", Text: v.Text}
		case relay.ThinkingBlock:
			result[i] = block{Type: "thinking", Thinking: v.Thinking, Signature: v.Signature}
		case relay.ImageBlock:
			result[i] = block{Type: "image", Data: v.Data, MimeType: v.MimeType}
		case relay.ToolCallBlock:
			result[i] = block{Type: "tool_call", ID: v.ID, Name: v.Name}
			if len(v.Arguments) > 0 {
				result[i].Arguments = jsontext.Value(v.Arguments)
			}
		default:
			return nil, fmt.Errorf("content block %d: unknown type %T", i, b)
		}
	}
	return result, nil
}

func decodeBlocks(blocks []block) ([]relay.ContentBlock, error) {
	result := make([]relay.ContentBlock, len(blocks))
	for i, b := range blocks {
		switch b.Type {
		case "text":
			result[i] = relay.TextBlock{Text: b.Text}
		case "thinking":
			result[i] = relay.ThinkingBlock{Thinking: b.Thinking, Signature: b.Signature}
		case "image":
			result[i] = relay.ImageBlock{Data: b.Data, MimeType: b.MimeType}
		case "tool_call":
			tc := relay.ToolCallBlock{ID: b.ID, Name: b.Name}
			if len(b.Arguments) > 0 {
				tc.Arguments = []byte(b.Arguments)
			}
			result[i] = tc
		default:
			return nil, fmt.Errorf("content block %d: unknown type %q", i, b.Type)
		}
	}
	return result, nil
}
