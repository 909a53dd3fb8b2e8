package relay

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"strings"
	"time"
)

type blockKind uint8

const (
	kindText blockKind = iota
	kindThinking
	kindToolCall
)

// Text, thinking and tool call indexes are separate namespaces: some wire
// formats number tool calls independently of content blocks.
type blockKey struct {
	kind  blockKind
	index int
}

type blockState struct {
	kind  blockKind
	id    string
	name  string
	buf   strings.Builder
	sig   []byte
	ended bool
}

// Accumulator folds a sequence of updates into an AssistantMessage.
// The zero value is ready to use.
type Accumulator struct {
	blocks        []*blockState
	byKey         map[blockKey]*blockState
	usage         Usage
	stopReason    StopReason
	rawStopReason string
}

// Apply folds one update into the message under construction.
func (a *Accumulator) Apply(u Update) {
	switch u := u.(type) {
	case UpdateTextDelta:
		a.block(kindText, u.Index).buf.WriteString(u.Delta)
	case UpdateThinkingDelta:
		a.block(kindThinking, u.Index).buf.WriteString(u.Delta)
	case UpdateThinkingSignature:
		a.block(kindThinking, u.Index).sig = u.Signature
	case UpdateToolCallBegin:
		key := blockKey{kindToolCall, u.Index}
		if bs, ok := a.byKey[key]; ok && bs.ended {
			// Index reused by a later call; start a new block.
			delete(a.byKey, key)
		}
		bs := a.block(kindToolCall, u.Index)
		bs.id = u.ID
		bs.name = u.Name
	case UpdateToolCallDelta:
		bs := a.block(kindToolCall, u.Index)
		if bs.id == "" {
			bs.id = u.ID
		}
		bs.buf.WriteString(u.Delta)
	case UpdateToolCallEnd:
		if bs, ok := a.byKey[blockKey{kindToolCall, u.Index}]; ok {
			bs.ended = true
		}
	case UpdateUsage:
		a.usage = u.Usage
	case UpdateFinish:
		a.stopReason = u.StopReason
		a.rawStopReason = u.RawStopReason
	case UpdateRunStatus:
		// Run lifecycle carries no message content.
	}
}

// Message returns the message assembled so far, with content blocks in
// the order they were first seen.
func (a *Accumulator) Message() AssistantMessage {
	msg := AssistantMessage{
		StopReason:    a.stopReason,
		RawStopReason: a.rawStopReason,
		Usage:         a.usage,
	}
	for _, bs := range a.blocks {
		switch bs.kind {
		case kindText:
			msg.Content = append(msg.Content, TextBlock{Text: bs.buf.String()})
		case kindThinking:
			msg.Content = append(msg.Content, ThinkingBlock{Thinking: bs.buf.String(), Signature: bs.sig})
		case kindToolCall:
			raw := bs.buf.String()
			if raw == "" {
				raw = "{}"
			}
			msg.Content = append(msg.Content, ToolCallBlock{
				ID:        bs.id,
				Name:      bs.name,
				Arguments: json.RawMessage(raw),
			})
		}
	}
	return msg
}

func (a *Accumulator) block(kind blockKind, index int) *blockState {
	key := blockKey{kind, index}
	if bs, ok := a.byKey[key]; ok {
		return bs
	}
	if a.byKey == nil {
		a.byKey = make(map[blockKey]*blockState)
	}
	bs := &blockState{kind: kind}
	a.byKey[key] = bs
	a.blocks = append(a.blocks, bs)
	return bs
}

// Drain consumes cur to the end, closes it and returns the assembled
// message. On error the partial message is returned along with the error,
// with StopReason set to StopAborted for cancellation and StopError
// otherwise.
func Drain(ctx context.Context, cur *Cursor[Update]) (AssistantMessage, error) {
	defer cur.Close()

	var acc Accumulator
	for {
		u, err := cur.Next(ctx)
		if err == io.EOF {
			break
		}
		if err != nil {
			msg := acc.Message()
			msg.Timestamp = time.Now()
			msg.StopReason = StopError
			msg.RawStopReason = "error"
			if errors.Is(err, ErrCancelled) {
				msg.StopReason = StopAborted
				msg.RawStopReason = "aborted"
			}
			return msg, err
		}
		acc.Apply(u)
	}

	msg := acc.Message()
	msg.Timestamp = time.Now()
	return msg, nil
}
