package relay

import "encoding/json"

// ContentBlock is a piece of message content. The set of implementations
// is closed: [TextBlock], [ThinkingBlock], [ImageBlock] and [ToolCallBlock].
// Which kinds a message may hold depends on its role; see [ValidateMessage].
type ContentBlock interface {
	block()
}

type TextBlock struct {
	Text string
}

// ThinkingBlock holds model reasoning. Providers that sign their reasoning
// return an opaque Signature which has to be sent back unchanged with the
// block on the next turn.
type ThinkingBlock struct {
	Thinking  string
	Signature []byte
}

// ImageBlock holds raw image bytes. Providers encode Data as they need.
type ImageBlock struct {
	Data     []byte
	MimeType string
}

// ToolCallBlock is a function call requested by the model. Arguments is a
// JSON object; an accumulated call with no argument deltas gets {}.
type ToolCallBlock struct {
	ID        string
	Name      string
	Arguments json.RawMessage
}

func (TextBlock) block()     {}
func (ThinkingBlock) block() {}
func (ImageBlock) block()    {}
func (ToolCallBlock) block() {}

var (
	_ ContentBlock = TextBlock{}
	_ ContentBlock = ThinkingBlock{}
	_ ContentBlock = ImageBlock{}
	_ ContentBlock = ToolCallBlock{}
)
