package relay

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Request is one model turn: the conversation so far plus generation
// settings. Zero values leave the choice to the provider.
type Request struct {
	Model        string
	SystemPrompt string
	Messages     []Message
	Tools        []Tool
	MaxTokens    int
	Temperature  *float64
}

// Tool declares a function the model may call. Parameters is a JSON Schema
// object; providers substitute an empty object schema when it is unset.
type Tool struct {
	Name        string
	Description string
	Parameters  json.RawMessage
}

// Validate reports the first problem that every provider would reject.
// Errors wrap [ErrValidation].
func (r Request) Validate() error {
	if t := r.Temperature; t != nil && (*t < 0 || *t > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *t, ErrValidation)
	}
	if r.MaxTokens < 0 {
		return fmt.Errorf("max_tokens must be non-negative, got %d: %w", r.MaxTokens, ErrValidation)
	}
	if len(r.Messages) == 0 {
		return fmt.Errorf("request has no messages: %w", ErrValidation)
	}
	for i, m := range r.Messages {
		if err := ValidateMessage(m); err != nil {
			return fmt.Errorf("message %d: %w", i, err)
		}
	}
	for i, t := range r.Tools {
		if err := t.validate(); err != nil {
			return fmt.Errorf("tool %d %w", i, err)
		}
	}
	return nil
}

func (t Tool) validate() error {
	if t.Name == "" {
		return fmt.Errorf("has no name: %w", ErrValidation)
	}
	if len(t.Parameters) == 0 {
		return nil
	}
	if !json.Valid(t.Parameters) || !bytes.HasPrefix(bytes.TrimSpace(t.Parameters), []byte("{")) {
		return fmt.Errorf("%q: parameters must be a JSON object: %w", t.Name, ErrValidation)
	}
	return nil
}

// ValidateMessage checks that msg only holds blocks its role may carry.
// Users and tool results send text and images; the assistant sends text,
// thinking and tool calls.
func ValidateMessage(msg Message) error {
	var blocks []ContentBlock
	switch m := msg.(type) {
	case UserMessage:
		blocks = m.Content
	case AssistantMessage:
		blocks = m.Content
	case ToolResultMessage:
		blocks = m.Content
	default:
		return fmt.Errorf("unknown message type %T: %w", msg, ErrValidation)
	}
	role := msg.Role()
	for i, b := range blocks {
		ok, known := permitted(role, b)
		if !known {
			return fmt.Errorf("block %d: unknown content block type %T in %s message: %w", i, b, role, ErrValidation)
		}
		if !ok {
			return fmt.Errorf("block %d: %T not allowed in %s message: %w", i, b, role, ErrValidation)
		}
	}
	return nil
}

func permitted(role Role, b ContentBlock) (ok, known bool) {
	assistant := role == RoleAssistant
	switch b.(type) {
	case TextBlock:
		return true, true
	case ImageBlock:
		return !assistant, true
	case ThinkingBlock, ToolCallBlock:
		return assistant, true
	default:
		return false, false
	}
}
