// Package openai provides the OpenAI client implementation of the LLM interface using the Responses API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/responses"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
)

const providerName = "openai"

const jsonReminder = "Respond with a single JSON object only. Do not wrap it in markdown code fences."

// OfficialClient wraps the official OpenAI Go client to implement the llm.LLMClient interface.
type OfficialClient struct {
	client openai.Client
	model  string
}

// NewOfficialClientWithModel creates a new OpenAI client for a specific model (raw client, middleware applied at higher level).
func NewOfficialClientWithModel(apiKey, model string) llm.LLMClient {
	return &OfficialClient{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// supportsTemperature reports whether the model accepts a sampling temperature.
// Reasoning models reject the parameter.
func supportsTemperature(model string) bool {
	for _, prefix := range []string{"gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return false
		}
	}
	return true
}

// buildParams converts a completion request into Responses API parameters. System messages
// become Instructions; the remaining turns are flattened into the input string.
//
//nolint:gocritic // CompletionRequest passed by value to mirror Complete
func (o *OfficialClient) buildParams(in llm.CompletionRequest) (responses.ResponseNewParams, error) {
	system, rest := llm.SplitSystem(in.Messages)
	if len(rest) == 0 {
		return responses.ResponseNewParams{}, fmt.Errorf("message list must contain at least one non-system message")
	}

	var input strings.Builder
	for i := range rest {
		msg := &rest[i]
		if i > 0 {
			input.WriteString("\n\n")
		}
		if msg.Role == llm.RoleAssistant {
			input.WriteString("Assistant: ")
		}
		input.WriteString(msg.Content)
	}

	// Cap MaxTokens to the model's limit to prevent API errors.
	maxTokens := in.MaxTokens
	if info, known := config.GetModelInfo(o.model); known && info.MaxOutputTokens > 0 && maxTokens > info.MaxOutputTokens {
		maxTokens = info.MaxOutputTokens
	}

	if in.ResponseFormat == llm.FormatJSON {
		if system != "" {
			system += "\n\n"
		}
		system += jsonReminder
	}

	params := responses.ResponseNewParams{
		Model: o.model,
		Input: responses.ResponseNewParamsInputUnion{OfString: openai.String(input.String())},
	}
	if maxTokens > 0 {
		params.MaxOutputTokens = openai.Int(int64(maxTokens))
	}
	if system != "" {
		params.Instructions = openai.String(system)
	}
	if supportsTemperature(o.model) {
		params.Temperature = openai.Float(float64(in.Temperature))
	}
	return params, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest passed by value to match interface
func (o *OfficialClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	params, err := o.buildParams(in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	resp, err := o.client.Responses.New(ctx, params)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if resp == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from OpenAI Responses API")
	}

	stopReason := string(resp.Status)
	if resp.IncompleteDetails.Reason != "" {
		stopReason = resp.IncompleteDetails.Reason
	}

	return llm.CompletionResponse{
		Content:    resp.OutputText(),
		StopReason: stopReason,
		Usage: llm.Usage{
			PromptTokens:     int(resp.Usage.InputTokens),
			CompletionTokens: int(resp.Usage.OutputTokens),
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *OfficialClient) GetModelName() string {
	return o.model
}

func classifyError(err error) *llmerrors.Error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		if classified := llmerrors.FromStatus(apiErr.StatusCode, err); classified != nil {
			return classified
		}
	}
	return llmerrors.Classify(providerName, err)
}
