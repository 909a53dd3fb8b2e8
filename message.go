package relay

import (
	"strings"
	"time"
)

// Role names the author of a [Message].
type Role string

const (
	RoleUser       Role = "user"
	RoleAssistant  Role = "assistant"
	RoleToolResult Role = "tool_result"
)

// Message is one turn of a conversation. The set of implementations is
// closed: [UserMessage], [AssistantMessage] and [ToolResultMessage].
type Message interface {
	Role() Role
	message()
}

// UserMessage is a turn written by the caller.
type UserMessage struct {
	Content   []ContentBlock
	Timestamp time.Time
}

// UserText returns a user turn holding a single text block.
func UserText(text string) UserMessage {
	return UserMessage{Content: []ContentBlock{TextBlock{Text: text}}, Timestamp: time.Now()}
}

func (UserMessage) Role() Role { return RoleUser }
func (UserMessage) message()   {}

// AssistantMessage is a model reply, either returned whole by a completion
// call or assembled from a stream of updates by an [Accumulator].
type AssistantMessage struct {
	Content       []ContentBlock
	StopReason    StopReason
	RawStopReason string // as reported by the provider
	Usage         Usage
	Timestamp     time.Time
}

func (AssistantMessage) Role() Role { return RoleAssistant }
func (AssistantMessage) message()   {}

// Text joins the message's text blocks, separated by a blank line.
// Thinking and tool calls are left out.
func (m AssistantMessage) Text() string {
	var parts []string
	for _, b := range m.Content {
		if t, ok := b.(TextBlock); ok && t.Text != "" {
			parts = append(parts, t.Text)
		}
	}
	return strings.Join(parts, "\n\n")
}

// ToolCalls returns the tool calls requested by the message, in order.
func (m AssistantMessage) ToolCalls() []ToolCallBlock {
	var calls []ToolCallBlock
	for _, b := range m.Content {
		if c, ok := b.(ToolCallBlock); ok {
			calls = append(calls, c)
		}
	}
	return calls
}

// ToolResultMessage answers the tool call with the matching ToolCallID.
type ToolResultMessage struct {
	ToolCallID string
	ToolName   string
	Content    []ContentBlock
	IsError    bool
	Timestamp  time.Time
}

func (ToolResultMessage) Role() Role { return RoleToolResult }
func (ToolResultMessage) message()   {}

var (
	_ Message = UserMessage{}
	_ Message = AssistantMessage{}
	_ Message = ToolResultMessage{}
)
