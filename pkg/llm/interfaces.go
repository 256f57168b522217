// Package llm adapts external text-completion services (OpenAI-compatible
// endpoints, Anthropic and Gemini) behind a single interface.
package llm

import (
	"context"
)

// CompletionRequest is one call to a completion service.
//
// Services that separate roles receive System and Prompt as distinct
// messages. Services that take a single instruction blob receive the
// combined text in Prompt and an empty System.
type CompletionRequest struct {
	System          string
	Prompt          string
	Temperature     float64
	CandidateCount  int // 0 means provider default (one candidate)
	MaxOutputTokens int // 0 means provider default
}

// CompletionService defines the interface for completion operations.
// Use this interface for dependency injection to enable mocking in tests.
type CompletionService interface {
	// Complete returns the text of the first candidate. An empty completion
	// is reported as an error.
	Complete(ctx context.Context, req *CompletionRequest) (string, error)

	// SeparatesRoles reports whether the service accepts a distinct system
	// instruction. When false callers send one combined prompt.
	SeparatesRoles() bool

	// GetModel returns the configured model name.
	GetModel() string

	// GetEndpoint returns the configured endpoint.
	GetEndpoint() string
}

// Ensure adapters implement CompletionService at compile time.
var (
	_ CompletionService = (*OpenAIService)(nil)
	_ CompletionService = (*AnthropicService)(nil)
	_ CompletionService = (*GeminiService)(nil)
	_ CompletionService = (*RecordingService)(nil)
	_ CompletionService = (*MockCompletionService)(nil)
)
