package openai

import (
	"fmt"
	"slices"
	"strings"

	"github.com/fwojciec/relay"
	"github.com/go-json-experiment/json"
)

// RunRequest configures an assistants run. Zero fields fall back to the
// assistant's own configuration.
type RunRequest struct {
	AssistantID            string
	Model                  string
	Instructions           string
	AdditionalInstructions string
	Tools                  []relay.Tool
	Temperature            *float64
	MaxCompletionTokens    int
	Metadata               map[string]string
}

// Validate reports whether r can be sent. Errors wrap [relay.ErrValidation].
func (r RunRequest) Validate() error {
	if r.AssistantID == "" {
		return fmt.Errorf("run request has no assistant id: %w", relay.ErrValidation)
	}
	if r.Temperature != nil && (*r.Temperature < 0 || *r.Temperature > 2) {
		return fmt.Errorf("temperature must be in [0, 2], got %g: %w", *r.Temperature, relay.ErrValidation)
	}
	if r.MaxCompletionTokens < 0 {
		return fmt.Errorf("max_completion_tokens must be non-negative, got %d: %w", r.MaxCompletionTokens, relay.ErrValidation)
	}
	for i, t := range r.Tools {
		if t.Name == "" {
			return fmt.Errorf("tool %d has no name: %w", i, relay.ErrValidation)
		}
	}
	return nil
}

type contentKey struct {
	message string
	index   int
}

type toolKey struct {
	step  string
	index int
}

// runDecoder maps assistants stream events to updates. Content indexes on
// the wire restart with every message and tool call indexes with every
// run step, so the decoder assigns its own.
type runDecoder struct {
	text      map[contentKey]int
	tools     map[toolKey]int
	toolIDs   map[int]string
	stepTools map[string][]int
	nextText  int
	nextTool  int
}

// NewRunDecoder returns a decoder for one assistants run stream.
func NewRunDecoder() relay.Decoder[relay.Update] {
	d := &runDecoder{
		text:      make(map[contentKey]int),
		tools:     make(map[toolKey]int),
		toolIDs:   make(map[int]string),
		stepTools: make(map[string][]int),
	}
	return d.decode
}

func (d *runDecoder) decode(f relay.Frame) ([]relay.Update, error) {
	switch event := f.Event; {
	case event == "thread.message.delta":
		return d.messageDelta(f.Data)
	case event == "thread.run.step.delta":
		return d.stepDelta(f.Data)
	case event == "thread.run.step.completed",
		event == "thread.run.step.failed",
		event == "thread.run.step.cancelled",
		event == "thread.run.step.expired":
		return d.stepDone(f.Data)
	case strings.HasPrefix(event, "thread.run.step."):
		return nil, nil
	case strings.HasPrefix(event, "thread.run."):
		return d.runEvent(f.Data)
	case event == "error":
		var e apiErrorDetail
		if err := json.Unmarshal(f.Data, &e); err != nil {
			return nil, fmt.Errorf("openai: failed to parse error event: %w", err)
		}
		return nil, streamError(&e)
	case event == "":
		return nil, fmt.Errorf("openai: run stream frame has no event name")
	default:
		// thread.created, thread.message.created and the like.
		return nil, nil
	}
}

func (d *runDecoder) runEvent(data []byte) ([]relay.Update, error) {
	var run runObject
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, fmt.Errorf("openai: failed to parse run: %w", err)
	}

	updates := []relay.Update{relay.UpdateRunStatus{RunID: run.ID, ThreadID: run.ThreadID, Status: run.Status}}
	if run.Usage != nil {
		u := run.Usage
		updates = append(updates, relay.UpdateUsage{Usage: convertUsage(u.PromptTokens, u.CompletionTokens, u.PromptTokenDetails)})
	}

	var finish *relay.UpdateFinish
	switch run.Status {
	case "completed":
		finish = &relay.UpdateFinish{StopReason: relay.StopEndTurn, RawStopReason: run.Status}
	case "requires_action":
		updates = append(updates, d.endAll()...)
		finish = &relay.UpdateFinish{StopReason: relay.StopToolUse, RawStopReason: run.Status}
	case "incomplete":
		raw := run.Status
		if run.IncompleteDetails != nil && run.IncompleteDetails.Reason != "" {
			raw = run.IncompleteDetails.Reason
		}
		finish = &relay.UpdateFinish{StopReason: relay.StopLength, RawStopReason: raw}
	case "failed", "expired":
		raw := run.Status
		if run.LastError != nil {
			if code, ok := run.LastError.Code.(string); ok && code != "" {
				raw = code
			}
		}
		finish = &relay.UpdateFinish{StopReason: relay.StopError, RawStopReason: raw}
	case "cancelled":
		finish = &relay.UpdateFinish{StopReason: relay.StopAborted, RawStopReason: run.Status}
	}
	if finish != nil {
		updates = append(updates, *finish)
	}
	return updates, nil
}

func (d *runDecoder) messageDelta(data []byte) ([]relay.Update, error) {
	var evt messageDelta
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("openai: failed to parse message delta: %w", err)
	}

	var updates []relay.Update
	for _, c := range evt.Delta.Content {
		if c.Type != "text" || c.Text == nil || c.Text.Value == "" {
			continue
		}
		key := contentKey{evt.ID, c.Index}
		index, ok := d.text[key]
		if !ok {
			index = d.nextText
			d.nextText++
			d.text[key] = index
		}
		updates = append(updates, relay.UpdateTextDelta{Index: index, Delta: c.Text.Value})
	}
	return updates, nil
}

func (d *runDecoder) stepDelta(data []byte) ([]relay.Update, error) {
	var evt runStepDelta
	if err := json.Unmarshal(data, &evt); err != nil {
		return nil, fmt.Errorf("openai: failed to parse run step delta: %w", err)
	}
	if evt.Delta.StepDetails.Type != "tool_calls" {
		return nil, nil
	}

	var updates []relay.Update
	for _, tc := range evt.Delta.StepDetails.ToolCalls {
		// Only function calls are returned to the caller to execute.
		if tc.Type != "" && tc.Type != "function" {
			continue
		}
		key := toolKey{evt.ID, tc.Index}
		index, ok := d.tools[key]
		if !ok {
			index = d.nextTool
			d.nextTool++
			d.tools[key] = index
			d.toolIDs[index] = tc.ID
			d.stepTools[evt.ID] = append(d.stepTools[evt.ID], index)
			var name string
			if tc.Function != nil {
				name = tc.Function.Name
			}
			updates = append(updates, relay.UpdateToolCallBegin{Index: index, ID: tc.ID, Name: name})
		}
		if tc.Function != nil && tc.Function.Arguments != "" {
			updates = append(updates, relay.UpdateToolCallDelta{Index: index, ID: d.toolIDs[index], Delta: tc.Function.Arguments})
		}
	}
	return updates, nil
}

func (d *runDecoder) stepDone(data []byte) ([]relay.Update, error) {
	var step runStep
	if err := json.Unmarshal(data, &step); err != nil {
		return nil, fmt.Errorf("openai: failed to parse run step: %w", err)
	}
	indexes := d.stepTools[step.ID]
	delete(d.stepTools, step.ID)

	updates := make([]relay.Update, 0, len(indexes))
	for _, index := range indexes {
		updates = append(updates, relay.UpdateToolCallEnd{Index: index})
	}
	return updates, nil
}

// endAll ends every tool call still open, in the order the calls began.
func (d *runDecoder) endAll() []relay.Update {
	var indexes []int
	for _, idx := range d.stepTools {
		indexes = append(indexes, idx...)
	}
	clear(d.stepTools)
	slices.Sort(indexes)

	updates := make([]relay.Update, 0, len(indexes))
	for _, index := range indexes {
		updates = append(updates, relay.UpdateToolCallEnd{Index: index})
	}
	return updates
}
