package relay

import "context"

// Provider starts streaming calls against a model API. Stream validates and
// encodes the request eagerly; the network call is deferred to the first
// Next of each cursor of the returned collection.
type Provider interface {
	Stream(req Request) (*Collection[Update], error)
}

// Completer performs non-streaming calls.
type Completer interface {
	Complete(ctx context.Context, req Request) (Result[AssistantMessage], error)
}
