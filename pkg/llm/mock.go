package llm

import (
	"context"
	"fmt"
	"sync"
)

// MockClient is a configurable oracle for tests.
// Set CompleteFunc to control behavior, or queue canned Responses.
type MockClient struct {
	// CompleteFunc is called when Complete is invoked. It takes precedence over Responses.
	CompleteFunc func(ctx context.Context, messages []Message, opts CompletionOptions) (string, error)

	// Responses are returned in order, one per call. Once exhausted, Complete fails.
	Responses []string

	// Model is returned by GetModel. Defaults to "mock-model".
	Model string

	mu       sync.Mutex
	requests []MockRequest
}

// MockRequest records one call to Complete.
type MockRequest struct {
	Messages []Message
	Options  CompletionOptions
}

// NewMockClient creates a mock that returns the given responses in order.
func NewMockClient(responses ...string) *MockClient {
	return &MockClient{
		Model:     "mock-model",
		Responses: responses,
	}
}

// Complete implements Client.
func (m *MockClient) Complete(ctx context.Context, messages []Message, opts CompletionOptions) (string, error) {
	m.mu.Lock()
	copied := make([]Message, len(messages))
	copy(copied, messages)
	m.requests = append(m.requests, MockRequest{Messages: copied, Options: opts})
	call := len(m.requests)
	m.mu.Unlock()

	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, messages, opts)
	}
	if call > len(m.Responses) {
		return "", fmt.Errorf("mock client: no response queued for call %d", call)
	}
	return m.Responses[call-1], nil
}

// GetModel implements Client.
func (m *MockClient) GetModel() string {
	if m.Model == "" {
		return "mock-model"
	}
	return m.Model
}

// Calls returns how many times Complete was invoked.
func (m *MockClient) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.requests)
}

// Requests returns a copy of every recorded call.
func (m *MockClient) Requests() []MockRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]MockRequest, len(m.requests))
	copy(out, m.requests)
	return out
}

// Reset clears recorded calls.
func (m *MockClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests = nil
}
