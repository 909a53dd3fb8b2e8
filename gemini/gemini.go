// Package gemini implements [relay.Provider] for the Google Gemini API.
//
// Requests go to the REST endpoint directly. The request and response
// bodies use the wire types of google.golang.org/genai, so only the
// transport is owned here. Streams use server-sent events and end when the
// body is exhausted; the API sends no sentinel.
package gemini

import "google.golang.org/genai"

const (
	defaultBaseURL   = "https://generativelanguage.googleapis.com"
	defaultModel     = "gemini-3.1-pro-preview"
	defaultMaxTokens = 65536
	apiVersion       = "v1beta"
)

// apiRequest is the body of generateContent and streamGenerateContent.
type apiRequest struct {
	Contents          []*genai.Content        `json:"contents"`
	SystemInstruction *genai.Content          `json:"systemInstruction,omitempty"`
	Tools             []*genai.Tool           `json:"tools,omitempty"`
	GenerationConfig  *genai.GenerationConfig `json:"generationConfig,omitempty"`
}

// apiErrorResponse is the body of a non-2xx response, and of an error
// frame inside a stream.
type apiErrorResponse struct {
	Error *apiErrorDetail `json:"error"`
}

type apiErrorDetail struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Status  string `json:"status"`
}
