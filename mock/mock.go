// Package mock provides test doubles for relay interfaces using function fields.
package mock

import (
	"context"

	"github.com/fwojciec/relay"
)

// Interface compliance checks.
var (
	_ relay.Provider    = (*Provider)(nil)
	_ relay.Completer   = (*Completer)(nil)
	_ relay.Response    = (*Response)(nil)
	_ relay.FrameSource = (*FrameSource)(nil)
)

// Provider is a test double for relay.Provider.
// Set StreamFn before calling Stream.
type Provider struct {
	StreamFn func(req relay.Request) (*relay.Collection[relay.Update], error)
}

// Stream delegates to StreamFn.
func (p *Provider) Stream(req relay.Request) (*relay.Collection[relay.Update], error) {
	return p.StreamFn(req)
}

// Completer is a test double for relay.Completer.
// Set CompleteFn before calling Complete.
type Completer struct {
	CompleteFn func(ctx context.Context, req relay.Request) (relay.Result[relay.AssistantMessage], error)
}

// Complete delegates to CompleteFn.
func (c *Completer) Complete(ctx context.Context, req relay.Request) (relay.Result[relay.AssistantMessage], error) {
	return c.CompleteFn(ctx, req)
}
