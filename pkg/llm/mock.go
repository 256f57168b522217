package llm

import (
	"context"
)

// MockCompletionService is a configurable mock for testing completion callers.
// Set the function fields to control behavior in tests.
type MockCompletionService struct {
	// CompleteFunc is called when Complete is invoked.
	// If nil, returns "mock completion" and nil error.
	CompleteFunc func(ctx context.Context, req *CompletionRequest) (string, error)

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	// Endpoint is returned by GetEndpoint. Defaults to "http://mock-endpoint".
	Endpoint string

	// Combined switches the mock to single-blob mode (SeparatesRoles false).
	Combined bool

	// Call tracking for verification
	CompleteCalls int
	Requests      []CompletionRequest
}

// NewMockCompletionService creates a new mock with sensible defaults.
func NewMockCompletionService() *MockCompletionService {
	return &MockCompletionService{
		Model:    "mock-model",
		Endpoint: "http://mock-endpoint",
	}
}

// Complete implements CompletionService.
func (m *MockCompletionService) Complete(ctx context.Context, req *CompletionRequest) (string, error) {
	m.CompleteCalls++
	m.Requests = append(m.Requests, *req)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, req)
	}
	return "mock completion", nil
}

// SeparatesRoles implements CompletionService.
func (m *MockCompletionService) SeparatesRoles() bool {
	return !m.Combined
}

// GetModel implements CompletionService.
func (m *MockCompletionService) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// GetEndpoint implements CompletionService.
func (m *MockCompletionService) GetEndpoint() string {
	if m.Endpoint == "" {
		return "http://mock-endpoint"
	}
	return m.Endpoint
}

// Reset clears call tracking.
func (m *MockCompletionService) Reset() {
	m.CompleteCalls = 0
	m.Requests = nil
}
