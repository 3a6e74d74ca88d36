// Package llm provides interfaces and types for Large Language Model client implementations.
package llm

import (
	"context"
)

// CompletionRole represents the role of a message in a conversation.
type CompletionRole string

const (
	// RoleSystem indicates a system message that provides instructions or context.
	RoleSystem CompletionRole = "system"
	// RoleUser indicates a message from the human user.
	RoleUser CompletionRole = "user"
	// RoleAssistant indicates a message from the model.
	RoleAssistant CompletionRole = "assistant"
)

// ResponseFormat tells a provider how the reply should be shaped.
type ResponseFormat string

const (
	// FormatText is free-form text.
	FormatText ResponseFormat = "text"
	// FormatJSON asks for a single JSON object, using the provider's JSON mode where one exists.
	FormatJSON ResponseFormat = "json"
)

const (
	// DefaultMaxTokens is used when a request does not set MaxTokens.
	DefaultMaxTokens = 8192

	// TemperatureDefault matches the provider default for the hosted models.
	TemperatureDefault = 1.0
)

// CompletionMessage represents a message in a completion request.
type CompletionMessage struct {
	Content string
	Role    CompletionRole
}

// CompletionRequest represents a request to generate a completion.
type CompletionRequest struct {
	Messages       []CompletionMessage
	ResponseFormat ResponseFormat
	MaxTokens      int
	Temperature    float32
}

// Usage reports token consumption for a completion, when the provider returns it.
type Usage struct {
	PromptTokens     int
	CompletionTokens int
}

// CompletionResponse represents a response from a completion request.
type CompletionResponse struct {
	Content    string // Main response text
	StopReason string // Why the response stopped: "end_turn", "max_tokens", "STOP", etc.
	Usage      Usage
}

// LLMClient defines the interface for language model interactions.
type LLMClient interface { //nolint:revive // Name kept for readability at call sites
	// Complete generates a completion synchronously.
	Complete(ctx context.Context, in CompletionRequest) (CompletionResponse, error)

	// GetModelName returns the model name for this LLM client.
	GetModelName() string
}

// NewCompletionRequest creates a new completion request with default values.
func NewCompletionRequest(messages []CompletionMessage) CompletionRequest {
	return CompletionRequest{
		Messages:       messages,
		ResponseFormat: FormatText,
		MaxTokens:      DefaultMaxTokens,
		Temperature:    TemperatureDefault,
	}
}

// NewSystemMessage creates a new system message.
func NewSystemMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleSystem,
		Content: content,
	}
}

// NewUserMessage creates a new user message.
func NewUserMessage(content string) CompletionMessage {
	return CompletionMessage{
		Role:    RoleUser,
		Content: content,
	}
}

// SplitSystem separates system messages from the conversation. Providers that take the
// system instruction as a separate parameter use this; multiple system messages are joined
// with a blank line.
func SplitSystem(messages []CompletionMessage) (string, []CompletionMessage) {
	var system string
	rest := make([]CompletionMessage, 0, len(messages))
	for i := range messages {
		if messages[i].Role == RoleSystem {
			if system != "" {
				system += "\n\n"
			}
			system += messages[i].Content
			continue
		}
		rest = append(rest, messages[i])
	}
	return system, rest
}
