package gemini

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/fwojciec/relay"
	"github.com/google/uuid"
	"google.golang.org/genai"
)

type partKind uint8

const (
	partNone partKind = iota
	partThinking
	partText
	partToolCall
)

// decoder maps generateContent chunks to updates. Gemini has no block
// indexes on the wire, so a new index starts whenever the part kind
// changes and for every function call.
type decoder struct {
	index       int
	kind        partKind
	lastThought int
	sawToolCall bool
}

// NewDecoder returns a decoder for one streamGenerateContent response.
func NewDecoder() relay.Decoder[relay.Update] {
	d := &decoder{index: -1, lastThought: -1}
	return d.decode
}

func (d *decoder) decode(f relay.Frame) ([]relay.Update, error) {
	if bytes.Equal(bytes.TrimSpace(f.Data), []byte("null")) {
		return nil, nil
	}
	var chunk genai.GenerateContentResponse
	if err := json.Unmarshal(f.Data, &chunk); err != nil {
		return nil, fmt.Errorf("gemini: failed to parse chunk: %w", err)
	}

	if len(chunk.Candidates) == 0 {
		if fb := chunk.PromptFeedback; fb != nil && fb.BlockReason != "" {
			return nil, fmt.Errorf("gemini: prompt blocked: %s", fb.BlockReason)
		}
		if chunk.UsageMetadata == nil {
			return nil, chunkError(f.Data)
		}
	}

	var (
		updates []relay.Update
		reason  genai.FinishReason
	)
	if len(chunk.Candidates) > 0 && chunk.Candidates[0] != nil {
		cand := chunk.Candidates[0]
		reason = cand.FinishReason
		if cand.Content != nil {
			for _, part := range cand.Content.Parts {
				if part == nil {
					continue
				}
				us, err := d.part(part)
				if err != nil {
					return nil, err
				}
				updates = append(updates, us...)
			}
		}
	}
	if chunk.UsageMetadata != nil {
		updates = append(updates, relay.UpdateUsage{Usage: convertUsage(chunk.UsageMetadata)})
	}
	if reason != "" {
		updates = append(updates, d.finish(reason))
	}
	return updates, nil
}

func (d *decoder) part(p *genai.Part) ([]relay.Update, error) {
	switch {
	case p.FunctionCall != nil:
		return d.functionCall(p)
	case p.Thought:
		d.advance(partThinking)
		d.lastThought = d.index
		var updates []relay.Update
		if p.Text != "" {
			updates = append(updates, relay.UpdateThinkingDelta{Index: d.index, Delta: p.Text})
		}
		if len(p.ThoughtSignature) > 0 {
			updates = append(updates, relay.UpdateThinkingSignature{Index: d.index, Signature: p.ThoughtSignature})
		}
		return updates, nil
	case p.Text != "":
		d.advance(partText)
		return []relay.Update{relay.UpdateTextDelta{Index: d.index, Delta: p.Text}}, nil
	case len(p.ThoughtSignature) > 0 && d.lastThought >= 0:
		// A signature may trail the thought it signs in a part of its own.
		return []relay.Update{relay.UpdateThinkingSignature{Index: d.lastThought, Signature: p.ThoughtSignature}}, nil
	default:
		return nil, nil
	}
}

func (d *decoder) functionCall(p *genai.Part) ([]relay.Update, error) {
	fc := p.FunctionCall
	args := []byte("{}")
	if fc.Args != nil {
		b, err := json.Marshal(fc.Args)
		if err != nil {
			return nil, fmt.Errorf("gemini: invalid tool call arguments for %s: %w", fc.Name, err)
		}
		args = b
	}
	id := fc.ID
	if id == "" {
		id = "call_" + uuid.NewString()
	}

	d.kind = partToolCall
	d.index++
	d.sawToolCall = true

	var updates []relay.Update
	// The signature that arrives with a call belongs to the reasoning that
	// led to it.
	if len(p.ThoughtSignature) > 0 && d.lastThought >= 0 {
		updates = append(updates, relay.UpdateThinkingSignature{Index: d.lastThought, Signature: p.ThoughtSignature})
	}
	return append(updates,
		relay.UpdateToolCallBegin{Index: d.index, ID: id, Name: fc.Name},
		relay.UpdateToolCallDelta{Index: d.index, ID: id, Delta: string(args)},
		relay.UpdateToolCallEnd{Index: d.index},
	), nil
}

func (d *decoder) advance(kind partKind) {
	if d.kind != kind {
		d.kind = kind
		d.index++
	}
}

func (d *decoder) finish(reason genai.FinishReason) relay.UpdateFinish {
	stop := mapFinishReason(reason)
	if stop == relay.StopEndTurn && d.sawToolCall {
		stop = relay.StopToolUse
	}
	return relay.UpdateFinish{StopReason: stop, RawStopReason: string(reason)}
}

// chunkError reports an error object sent in place of a chunk, or an
// empty chunk when there is none.
func chunkError(data []byte) error {
	var parsed apiErrorResponse
	if err := json.Unmarshal(data, &parsed); err != nil || parsed.Error == nil {
		return nil
	}
	return fmt.Errorf("gemini: %s: %s", parsed.Error.Status, parsed.Error.Message)
}

// convertUsage maps usage metadata to the provider-neutral invariant.
// promptTokenCount includes cached tokens and thoughts are billed as output.
func convertUsage(u *genai.GenerateContentResponseUsageMetadata) relay.Usage {
	cached := int(u.CachedContentTokenCount)
	return relay.Usage{
		InputTokens:     max(0, int(u.PromptTokenCount)-cached),
		OutputTokens:    int(u.CandidatesTokenCount + u.ThoughtsTokenCount),
		CacheReadTokens: cached,
	}
}

func mapFinishReason(reason genai.FinishReason) relay.StopReason {
	switch reason {
	case genai.FinishReasonStop:
		return relay.StopEndTurn
	case genai.FinishReasonMaxTokens:
		return relay.StopLength
	case genai.FinishReasonSafety,
		genai.FinishReasonRecitation,
		genai.FinishReasonBlocklist,
		genai.FinishReasonProhibitedContent,
		genai.FinishReasonSPII,
		genai.FinishReasonMalformedFunctionCall,
		genai.FinishReasonUnexpectedToolCall,
		genai.FinishReasonImageSafety,
		genai.FinishReasonLanguage:
		return relay.StopError
	default:
		return relay.StopUnknown
	}
}
