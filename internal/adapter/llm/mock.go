package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"
)

// MockResponder produces the raw text for a call. Returning an error simulates a provider failure.
type MockResponder func(req CallRequest) (string, error)

// MockClient is a deterministic provider used in mock mode and tests.
type MockClient struct {
	mu        sync.Mutex
	responder MockResponder
	delay     time.Duration
	calls     []CallRequest
}

// Ensure MockClient implements Provider.
var _ Provider = (*MockClient)(nil)

// NewMockClient creates a mock provider that approves every eye.
func NewMockClient() *MockClient {
	return &MockClient{responder: DefaultMockResponse}
}

// WithResponder replaces the response function.
func (m *MockClient) WithResponder(fn MockResponder) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.responder = fn
	return m
}

// WithDelay adds artificial latency to each call.
func (m *MockClient) WithDelay(d time.Duration) *MockClient {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
	return m
}

// Calls returns a copy of the recorded calls.
func (m *MockClient) Calls() []CallRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]CallRequest, len(m.calls))
	copy(out, m.calls)
	return out
}

// Call implements Provider.
func (m *MockClient) Call(ctx context.Context, req CallRequest) (*CallResult, error) {
	m.mu.Lock()
	m.calls = append(m.calls, req)
	responder := m.responder
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	text, err := responder(req)
	if err != nil {
		return nil, err
	}
	return &CallResult{
		Text:      text,
		Model:     req.Model,
		TokensIn:  len(strings.Fields(req.SystemPrompt + " " + req.UserInput)),
		TokensOut: len(strings.Fields(text)),
	}, nil
}

// ListModels implements Provider.
func (m *MockClient) ListModels(ctx context.Context, provider string) ([]Model, error) {
	return []Model{{ID: "mock-model", Object: "model", OwnedBy: provider}}, nil
}

// DefaultMockResponse approves review eyes and returns OK for the rest.
func DefaultMockResponse(req CallRequest) (string, error) {
	code := "OK"
	switch req.Eye {
	case "mangekyo", "tenseigan", "byakugan":
		code = "APPROVED"
	}
	return MockEnvelope(req.Eye, true, code, fmt.Sprintf("%s reviewed the input", req.Eye)), nil
}

// MockEnvelope renders a well-formed envelope as provider output.
func MockEnvelope(eye string, ok bool, code, md string) string {
	body, _ := json.Marshal(map[string]interface{}{
		"eye":  eye,
		"ok":   ok,
		"code": code,
		"md":   md,
		"data": map[string]interface{}{"confidence": 0.9},
		"next": nil,
	})
	return string(body)
}
