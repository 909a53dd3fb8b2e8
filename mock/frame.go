package mock

import "github.com/fwojciec/relay"

// FrameSource is a test double for relay.FrameSource.
// NextFn panics when nil. CloseFn is nil-safe (no-op) because cursors
// always close their frame source.
type FrameSource struct {
	NextFn  func() (relay.Frame, error)
	CloseFn func() error
}

// Next delegates to NextFn.
func (s *FrameSource) Next() (relay.Frame, error) {
	return s.NextFn()
}

// Close delegates to CloseFn. Returns nil when CloseFn is nil.
func (s *FrameSource) Close() error {
	if s.CloseFn == nil {
		return nil
	}
	return s.CloseFn()
}
