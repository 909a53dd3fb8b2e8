package anthropic

import (
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
)

type openBlock struct {
	kind   string
	toolID string
}

// decoder maps Messages API events to updates. It keeps the kind of each
// open content block and the usage reported so far.
type decoder struct {
	open  map[int]openBlock
	usage relay.Usage
}

// NewDecoder returns a decoder for one Messages API event stream.
func NewDecoder() relay.Decoder[relay.Update] {
	d := &decoder{open: make(map[int]openBlock)}
	return d.decode
}

func (d *decoder) decode(f relay.Frame) ([]relay.Update, error) {
	switch f.Event {
	case "", "message_start", "content_block_start", "content_block_delta",
		"content_block_stop", "message_delta", "error":
	default:
		// message_stop, ping and event types added later carry nothing.
		return nil, nil
	}

	var evt event
	if err := json.Unmarshal(f.Data, &evt); err != nil {
		return nil, fmt.Errorf("anthropic: parse %s event: %w", orType(f.Event, "untyped"), err)
	}
	// Some proxies drop the event line; the payload repeats the type.
	kind := orType(f.Event, evt.Type)

	switch kind {
	case "message_start":
		if evt.Message != nil {
			d.usage = convertUsage(evt.Message.Usage)
		}
		return nil, nil
	case "content_block_start":
		return d.blockStart(evt)
	case "content_block_delta":
		return d.blockDelta(evt)
	case "content_block_stop":
		return d.blockStop(evt)
	case "message_delta":
		return d.messageDelta(evt), nil
	case "error":
		return nil, fmt.Errorf("anthropic: %s: %s", evt.Error.Type, evt.Error.Message)
	default:
		return nil, nil
	}
}

func orType(event, fallback string) string {
	if event == "" {
		return fallback
	}
	return event
}

func (d *decoder) blockStart(evt event) ([]relay.Update, error) {
	if evt.ContentBlock == nil {
		return nil, fmt.Errorf("anthropic: content_block_start %d has no content_block", evt.Index)
	}
	b := evt.ContentBlock
	d.open[evt.Index] = openBlock{kind: b.Type, toolID: b.ID}

	switch {
	case b.Type == "tool_use":
		return []relay.Update{relay.UpdateToolCallBegin{Index: evt.Index, ID: b.ID, Name: b.Name}}, nil
	case b.Type == "text" && b.Text != "":
		return []relay.Update{relay.UpdateTextDelta{Index: evt.Index, Delta: b.Text}}, nil
	case b.Type == "thinking" && b.Thinking != "":
		return []relay.Update{relay.UpdateThinkingDelta{Index: evt.Index, Delta: b.Thinking}}, nil
	}
	return nil, nil
}

func (d *decoder) blockDelta(evt event) ([]relay.Update, error) {
	b, ok := d.open[evt.Index]
	if !ok {
		return nil, fmt.Errorf("anthropic: delta for unknown block index %d", evt.Index)
	}

	var u relay.Update
	switch delta := evt.Delta; delta.Type {
	case "text_delta":
		u = relay.UpdateTextDelta{Index: evt.Index, Delta: delta.Text}
	case "thinking_delta":
		u = relay.UpdateThinkingDelta{Index: evt.Index, Delta: delta.Thinking}
	case "signature_delta":
		u = relay.UpdateThinkingSignature{Index: evt.Index, Signature: []byte(delta.Signature)}
	case "input_json_delta":
		u = relay.UpdateToolCallDelta{Index: evt.Index, ID: b.toolID, Delta: delta.PartialJSON}
	default:
		return nil, nil
	}
	return []relay.Update{u}, nil
}

func (d *decoder) blockStop(evt event) ([]relay.Update, error) {
	b, ok := d.open[evt.Index]
	if !ok {
		return nil, fmt.Errorf("anthropic: stop for unknown block index %d", evt.Index)
	}
	delete(d.open, evt.Index)
	if b.kind != "tool_use" {
		return nil, nil
	}
	return []relay.Update{relay.UpdateToolCallEnd{Index: evt.Index}}, nil
}

// messageDelta reports usage and, once known, the stop reason. Output and
// input counts replace earlier ones; cache counts add to message_start's.
func (d *decoder) messageDelta(evt event) []relay.Update {
	u := evt.Usage
	d.usage.OutputTokens = u.OutputTokens
	if u.InputTokens != nil {
		d.usage.InputTokens = *u.InputTokens
	}
	d.usage.CacheReadTokens += deref(u.CacheReadInputTokens)
	d.usage.CacheWriteTokens += deref(u.CacheCreationInputTokens)

	updates := []relay.Update{relay.UpdateUsage{Usage: d.usage}}
	if raw := evt.Delta.StopReason; raw != nil {
		updates = append(updates, relay.UpdateFinish{StopReason: mapStopReason(*raw), RawStopReason: *raw})
	}
	return updates
}

// convertUsage needs no subtraction: input_tokens already excludes cached
// tokens.
func convertUsage(u wireUsage) relay.Usage {
	return relay.Usage{
		InputTokens:      deref(u.InputTokens),
		OutputTokens:     u.OutputTokens,
		CacheReadTokens:  deref(u.CacheReadInputTokens),
		CacheWriteTokens: deref(u.CacheCreationInputTokens),
	}
}

func mapStopReason(raw string) relay.StopReason {
	switch raw {
	case "end_turn", "stop_sequence":
		return relay.StopEndTurn
	case "max_tokens", "model_context_window_exceeded":
		return relay.StopLength
	case "tool_use":
		return relay.StopToolUse
	case "refusal":
		return relay.StopError
	default:
		return relay.StopUnknown
	}
}
