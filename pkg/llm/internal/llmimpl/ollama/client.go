// Package ollama provides the Ollama client implementation of the LLM interface.
// Ollama is a local LLM runtime that allows running open-source models.
package ollama

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/ollama/ollama/api"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
)

// modelPrefix lets users force the Ollama provider for model names that would otherwise be ambiguous.
const modelPrefix = "ollama:"

// Client wraps the Ollama API client to implement the llm.LLMClient interface.
type Client struct {
	client  *api.Client
	model   string
	hostURL string
}

// NewOllamaClientWithModel creates a new Ollama client for a specific model.
// hostURL should be the Ollama server URL (e.g., "http://localhost:11434").
func NewOllamaClientWithModel(hostURL, model string) llm.LLMClient {
	parsedURL, err := url.Parse(hostURL)
	if err != nil || parsedURL.Host == "" {
		hostURL = config.DefaultOllamaHostURL
		parsedURL, _ = url.Parse(hostURL)
	}

	return &Client{
		client:  api.NewClient(parsedURL, http.DefaultClient),
		model:   model,
		hostURL: hostURL,
	}
}

// buildRequest converts a completion request into an Ollama chat request.
//
//nolint:gocritic // CompletionRequest passed by value to mirror Complete
func (o *Client) buildRequest(in llm.CompletionRequest) (*api.ChatRequest, error) {
	if len(in.Messages) == 0 {
		return nil, fmt.Errorf("message list cannot be empty")
	}

	messages := make([]api.Message, 0, len(in.Messages))
	for i := range in.Messages {
		messages = append(messages, api.Message{
			Role:    string(in.Messages[i].Role),
			Content: in.Messages[i].Content,
		})
	}

	stream := false
	req := &api.ChatRequest{
		Model:    strings.TrimPrefix(o.model, modelPrefix),
		Messages: messages,
		Stream:   &stream,
		Options: map[string]any{
			"temperature": in.Temperature,
		},
	}
	if in.MaxTokens > 0 {
		req.Options["num_predict"] = in.MaxTokens
	}
	if in.ResponseFormat == llm.FormatJSON {
		req.Format = json.RawMessage(`"json"`)
	}
	return req, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (o *Client) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	req, err := o.buildRequest(in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	var response api.ChatResponse
	err = o.client.Chat(ctx, req, func(resp api.ChatResponse) error {
		response = resp
		return nil
	})
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}

	return llm.CompletionResponse{
		Content:    response.Message.Content,
		StopReason: getStopReason(&response),
		Usage: llm.Usage{
			PromptTokens:     response.PromptEvalCount,
			CompletionTokens: response.EvalCount,
		},
	}, nil
}

// GetModelName returns the model name for this client.
func (o *Client) GetModelName() string {
	return o.model
}

// getStopReason converts Ollama's done_reason to the common stop reason format.
func getStopReason(resp *api.ChatResponse) string {
	if !resp.Done {
		return "incomplete"
	}

	switch resp.DoneReason {
	case "stop", "":
		return "end_turn"
	case "length":
		return "max_tokens"
	default:
		return resp.DoneReason
	}
}

// classifyError converts Ollama errors to structured error types.
func classifyError(err error) error {
	var statusErr api.StatusError
	if errors.As(err, &statusErr) {
		if statusErr.StatusCode == http.StatusNotFound {
			return llmerrors.NewErrorWithStatus(llmerrors.ErrorTypeBadPrompt, statusErr.StatusCode, err, "Ollama model not found - pull it first")
		}
		if classified := llmerrors.FromStatus(statusErr.StatusCode, err); classified != nil {
			return classified
		}
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "connection refused"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeTransient, err, "Ollama server not reachable")
	case strings.Contains(errStr, "model") && strings.Contains(errStr, "not found"):
		return llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "Ollama model not found")
	default:
		return llmerrors.Classify("ollama", err)
	}
}
