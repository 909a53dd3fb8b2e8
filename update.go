package relay

// Update is a sealed interface over the typed values decoded from a
// streamed chat or assistant response. Updates are purely semantic:
// transport and decode failures come from Cursor.Next's error return.
// The unexported marker method prevents external implementations.
type Update interface {
	update()
}

// UpdateTextDelta carries a fragment of assistant text for the content
// block at Index.
type UpdateTextDelta struct {
	Index int
	Delta string
}

func (UpdateTextDelta) update() {}

// UpdateThinkingDelta carries a fragment of reasoning text.
type UpdateThinkingDelta struct {
	Index int
	Delta string
}

func (UpdateThinkingDelta) update() {}

// UpdateThinkingSignature attaches the provider's opaque signature to the
// reasoning block at Index.
type UpdateThinkingSignature struct {
	Index     int
	Signature []byte
}

func (UpdateThinkingSignature) update() {}

// UpdateToolCallBegin signals the start of a tool call at Index.
type UpdateToolCallBegin struct {
	Index int
	ID    string
	Name  string
}

func (UpdateToolCallBegin) update() {}

// UpdateToolCallDelta carries a fragment of a tool call's JSON arguments.
// ID is empty when the wire format only identifies calls by index.
type UpdateToolCallDelta struct {
	Index int
	ID    string
	Delta string
}

func (UpdateToolCallDelta) update() {}

// UpdateToolCallEnd signals that the tool call at Index has received all of
// its argument fragments.
type UpdateToolCallEnd struct {
	Index int
}

func (UpdateToolCallEnd) update() {}

// UpdateUsage reports token consumption. Providers that report usage more
// than once per stream send cumulative values; the last one wins.
type UpdateUsage struct {
	Usage Usage
}

func (UpdateUsage) update() {}

// UpdateFinish reports why generation stopped.
type UpdateFinish struct {
	StopReason    StopReason
	RawStopReason string
}

func (UpdateFinish) update() {}

// UpdateRunStatus reports a lifecycle change of an assistant run, such as
// "queued", "in_progress", "requires_action" or "completed".
type UpdateRunStatus struct {
	RunID    string
	ThreadID string
	Status   string
}

func (UpdateRunStatus) update() {}

// Interface compliance checks.
var (
	_ Update = UpdateTextDelta{}
	_ Update = UpdateThinkingDelta{}
	_ Update = UpdateThinkingSignature{}
	_ Update = UpdateToolCallBegin{}
	_ Update = UpdateToolCallDelta{}
	_ Update = UpdateToolCallEnd{}
	_ Update = UpdateUsage{}
	_ Update = UpdateFinish{}
	_ Update = UpdateRunStatus{}
)
