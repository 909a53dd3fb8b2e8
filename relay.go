// Package relay decodes streamed responses from generative-AI HTTP APIs.
//
// A streaming call is represented by a [Collection]. Each traversal of the
// collection creates a [Cursor], which issues the request on its first
// Next, reads the response body frame by frame (server-sent events by
// default), decodes each frame into zero or more typed updates with a
// caller-supplied [Decoder], and stops at the "[DONE]" sentinel or at the
// end of the body. Non-streaming calls go through [Complete], which reads
// a complete body and parses it once.
//
// The provider packages (openai, anthropic, gemini) supply the request
// producers and decoders for their APIs and return [Update] values: a
// sealed set of semantic events that [Accumulator] folds into an
// [AssistantMessage].
package relay
