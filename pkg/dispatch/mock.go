package dispatch

import (
	"context"
	"fmt"

	"github.com/zen-systems/taskgate/pkg/schema"
)

// MockHandler returns deterministic responses for local runs and tests.
type MockHandler struct {
	responses       map[string]string
	defaultResponse string
	Err             error
	Delay           func(ctx context.Context) error
	calls           int
}

// NewMockHandler creates a mock handler with a default response.
func NewMockHandler() *MockHandler {
	return &MockHandler{
		responses:       make(map[string]string),
		defaultResponse: "mock response:",
	}
}

// NewMockHandlerWithResponses creates a mock handler with predefined
// per-prompt responses.
func NewMockHandlerWithResponses(responses map[string]string, defaultResponse string) *MockHandler {
	if defaultResponse == "" {
		defaultResponse = "mock response:"
	}
	return &MockHandler{responses: responses, defaultResponse: defaultResponse}
}

// Name returns the handler identifier.
func (h *MockHandler) Name() string { return "mock" }

// Calls reports how many times Handle ran.
func (h *MockHandler) Calls() int { return h.calls }

// Handle returns a deterministic response for the prompt.
func (h *MockHandler) Handle(ctx context.Context, req *schema.TaskRequest) (string, map[string]string, error) {
	h.calls++
	if h.Delay != nil {
		if err := h.Delay(ctx); err != nil {
			return "", nil, &DispatchError{Temporary: true, Err: err}
		}
	}
	if h.Err != nil {
		return "", nil, h.Err
	}
	metadata := map[string]string{"handler": h.Name()}
	if response, ok := h.responses[req.Prompt]; ok {
		return response, metadata, nil
	}
	return fmt.Sprintf("%s\n%s", h.defaultResponse, req.Prompt), metadata, nil
}
