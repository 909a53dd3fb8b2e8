package relay

// StopReason is the provider-neutral reason a reply ended. The provider's
// own value is kept alongside it as a raw string.
type StopReason string

const (
	StopEndTurn StopReason = "end_turn"
	StopLength  StopReason = "length"
	StopToolUse StopReason = "tool_use"
	StopError   StopReason = "error"
	StopAborted StopReason = "aborted"
	StopUnknown StopReason = "unknown"
)

// Usage counts the tokens of one turn. The three input counts do not
// overlap: InputTokens excludes tokens read from or written to the prompt
// cache, so providers that report a cache-inclusive input total subtract
// the cached part and clamp the result at zero.
type Usage struct {
	InputTokens      int
	OutputTokens     int
	CacheReadTokens  int
	CacheWriteTokens int
}

// TotalInput returns all input tokens, cached or not.
func (u Usage) TotalInput() int {
	return u.InputTokens + u.CacheReadTokens + u.CacheWriteTokens
}

// Add returns the sum of u and o, for totals across several turns.
func (u Usage) Add(o Usage) Usage {
	return Usage{
		InputTokens:      u.InputTokens + o.InputTokens,
		OutputTokens:     u.OutputTokens + o.OutputTokens,
		CacheReadTokens:  u.CacheReadTokens + o.CacheReadTokens,
		CacheWriteTokens: u.CacheWriteTokens + o.CacheWriteTokens,
	}
}
