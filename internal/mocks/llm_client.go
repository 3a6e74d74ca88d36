package mocks

import (
	"context"
	"fmt"
	"sync"

	"promptarchitect/pkg/llm"
)

// Reply is one scripted model response.
type Reply struct {
	Err     error
	Content string
}

// MockLLMClient implements llm.LLMClient for testing.
//
//nolint:govet // fieldalignment: mock struct layout optimized for readability
type MockLLMClient struct {
	// CompleteFunc is called when Complete is invoked. Override to customize behavior.
	CompleteFunc func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)

	// CompleteCalls tracks all calls to Complete for verification.
	CompleteCalls []llm.CompletionRequest

	// Operations records the operation tag of each call, in order.
	Operations []string

	modelName string

	// mu protects call tracking slices
	mu sync.Mutex
}

// NewMockLLMClient creates a new mock LLM client that answers every call with "Mock response".
func NewMockLLMClient() *MockLLMClient {
	m := &MockLLMClient{modelName: "mock-model"}
	m.RespondWith("Mock response")
	return m
}

// Complete implements llm.LLMClient.
func (m *MockLLMClient) Complete(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
	m.mu.Lock()
	m.CompleteCalls = append(m.CompleteCalls, req)
	m.Operations = append(m.Operations, llm.OperationFromContext(ctx))
	fn := m.CompleteFunc
	m.mu.Unlock()
	return fn(ctx, req)
}

// GetModelName implements llm.LLMClient.
func (m *MockLLMClient) GetModelName() string {
	return m.modelName
}

// SetModelName sets the model name returned by GetModelName.
func (m *MockLLMClient) SetModelName(name string) {
	m.modelName = name
}

// OnComplete sets a custom handler for Complete calls.
func (m *MockLLMClient) OnComplete(fn func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteFunc = fn
}

// RespondWith configures Complete to return the specified content.
func (m *MockLLMClient) RespondWith(content string) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{Content: content, StopReason: "end_turn"}, nil
	})
}

// FailCompleteWith configures Complete to return the specified error.
func (m *MockLLMClient) FailCompleteWith(err error) {
	m.OnComplete(func(_ context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		return llm.CompletionResponse{}, err
	})
}

// RespondByOperation answers each call with the reply registered for its operation tag.
// An operation without a reply fails the call.
func (m *MockLLMClient) RespondByOperation(replies map[string]Reply) {
	m.OnComplete(func(ctx context.Context, _ llm.CompletionRequest) (llm.CompletionResponse, error) {
		op := llm.OperationFromContext(ctx)
		reply, ok := replies[op]
		if !ok {
			return llm.CompletionResponse{}, fmt.Errorf("mock: no reply scripted for operation %q", op)
		}
		if reply.Err != nil {
			return llm.CompletionResponse{}, reply.Err
		}
		return llm.CompletionResponse{Content: reply.Content, StopReason: "end_turn"}, nil
	})
}

// BlockOn makes calls for operation wait until their context ends, signaling entered first.
// Other operations are answered from replies.
func (m *MockLLMClient) BlockOn(operation string, entered chan<- struct{}, replies map[string]Reply) {
	m.RespondByOperation(replies)
	m.mu.Lock()
	next := m.CompleteFunc
	m.mu.Unlock()
	m.OnComplete(func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
		if llm.OperationFromContext(ctx) != operation {
			return next(ctx, req)
		}
		if entered != nil {
			entered <- struct{}{}
		}
		<-ctx.Done()
		return llm.CompletionResponse{}, ctx.Err()
	})
}

// GetCallCount returns the number of Complete calls.
func (m *MockLLMClient) GetCallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.CompleteCalls)
}

// GetOperations returns a copy of the recorded operation tags.
func (m *MockLLMClient) GetOperations() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.Operations...)
}

// GetLastCall returns the most recent request, or false when there was none.
func (m *MockLLMClient) GetLastCall() (llm.CompletionRequest, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.CompleteCalls) == 0 {
		return llm.CompletionRequest{}, false
	}
	return m.CompleteCalls[len(m.CompleteCalls)-1], true
}

// GetCall returns the i-th request.
func (m *MockLLMClient) GetCall(i int) llm.CompletionRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.CompleteCalls[i]
}

// Reset clears recorded calls.
func (m *MockLLMClient) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.CompleteCalls = nil
	m.Operations = nil
}

// Verify interface compliance at compile time.
var _ llm.LLMClient = (*MockLLMClient)(nil)
