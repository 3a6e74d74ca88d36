// Package anthropic provides the Anthropic Claude client implementation of the LLM interface.
package anthropic

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
)

const providerName = "claude"

// jsonReminder is appended to the system prompt for JSON requests; the Messages API has no JSON mode.
const jsonReminder = "Respond with a single JSON object only. Do not wrap it in markdown code fences."

// ClaudeClient wraps the Anthropic API client to implement the llm.LLMClient interface.
type ClaudeClient struct {
	client anthropic.Client
	model  anthropic.Model
}

// NewClaudeClientWithModel creates a new Claude client for a specific model (raw client, middleware applied at higher level).
func NewClaudeClientWithModel(apiKey, model string) llm.LLMClient {
	return &ClaudeClient{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  anthropic.Model(model),
	}
}

// ensureAlternation prepares messages for Anthropic API requirements.
// 1. Extracts system messages to the top-level system parameter
// 2. Merges consecutive user messages
// 3. Validates the sequence starts and ends with a user message.
func ensureAlternation(messages []llm.CompletionMessage) (string, []llm.CompletionMessage, error) {
	systemPrompt, rest := llm.SplitSystem(messages)
	if len(rest) == 0 {
		return "", nil, fmt.Errorf("must have at least one non-system message")
	}

	merged := make([]llm.CompletionMessage, 0, len(rest))
	for i := range rest {
		msg := rest[i]
		if n := len(merged); n > 0 && merged[n-1].Role == msg.Role {
			merged[n-1].Content += "\n\n" + msg.Content
			continue
		}
		merged = append(merged, msg)
	}

	if merged[0].Role != llm.RoleUser {
		return "", nil, fmt.Errorf("first message must be user role, got: %s", merged[0].Role)
	}
	if last := merged[len(merged)-1]; last.Role != llm.RoleUser {
		return "", nil, fmt.Errorf("last message must be user role, got: %s", last.Role)
	}
	return systemPrompt, merged, nil
}

// buildParams converts a completion request into Messages API parameters.
//
//nolint:gocritic // CompletionRequest passed by value to mirror Complete
func (c *ClaudeClient) buildParams(in llm.CompletionRequest) (anthropic.MessageNewParams, error) {
	systemPrompt, alternating, err := ensureAlternation(in.Messages)
	if err != nil {
		return anthropic.MessageNewParams{}, err
	}

	messages := make([]anthropic.MessageParam, 0, len(alternating))
	for i := range alternating {
		msg := &alternating[i]
		messages = append(messages, anthropic.MessageParam{
			Role:    anthropic.MessageParamRole(msg.Role),
			Content: []anthropic.ContentBlockParamUnion{anthropic.NewTextBlock(msg.Content)},
		})
	}

	params := anthropic.MessageNewParams{
		Model:       c.model,
		Messages:    messages,
		MaxTokens:   int64(maxTokens(in.MaxTokens)),
		Temperature: anthropic.Float(float64(in.Temperature)),
	}

	if in.ResponseFormat == llm.FormatJSON {
		if systemPrompt != "" {
			systemPrompt += "\n\n"
		}
		systemPrompt += jsonReminder
	}
	if systemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: systemPrompt}}
	}
	return params, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (c *ClaudeClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := c.buildParams(in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message alternation error")
	}

	resp, err := c.client.Messages.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil || len(resp.Content) == 0 {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "received empty or nil response from Claude API")
	}

	var text strings.Builder
	for i := range resp.Content {
		block := &resp.Content[i]
		if block.Type == "text" {
			text.WriteString(block.AsText().Text)
		}
	}

	return llm.CompletionResponse{
		Content:    text.String(),
		StopReason: string(resp.StopReason),
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (c *ClaudeClient) GetModelName() string {
	return string(c.model)
}

// classifyError maps Anthropic SDK errors to structured error types, using the
// typed status code when the SDK provides one.
func classifyError(err error) *llmerrors.Error {
	var apiErr *anthropic.Error
	if errors.As(err, &apiErr) {
		if classified := llmerrors.FromStatus(apiErr.StatusCode, err); classified != nil {
			return classified
		}
	}
	return llmerrors.Classify(providerName, err)
}

// maxTokens resolves the required max_tokens field. The Messages API has no unset value.
func maxTokens(requested int) int {
	if requested > 0 {
		return requested
	}
	return llm.DefaultMaxTokens
}
