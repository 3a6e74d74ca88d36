// Package google provides the Google Gemini client implementation of the LLM interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"google.golang.org/genai"

	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
)

const providerName = "gemini"

// GeminiClient wraps the Google GenAI client to implement the llm.LLMClient interface.
type GeminiClient struct {
	client *genai.Client
	apiKey string
	model  string
	mu     sync.Mutex
}

// NewGeminiClientWithModel creates a new Gemini client for a specific model (raw client, middleware applied at higher level).
func NewGeminiClientWithModel(apiKey, model string) llm.LLMClient {
	// Client creation requires a context, so it is deferred to the first Complete call.
	return &GeminiClient{
		apiKey: apiKey,
		model:  model,
	}
}

func (g *GeminiClient) ensureClient(ctx context.Context) (*genai.Client, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.client != nil {
		return g.client, nil
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  g.apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err, "failed to create Gemini client")
	}
	g.client = client
	return client, nil
}

// Complete implements the llm.LLMClient interface.
//
//nolint:gocritic // CompletionRequest size acceptable for interface consistency
func (g *GeminiClient) Complete(ctx context.Context, in llm.CompletionRequest) (llm.CompletionResponse, error) {
	client, err := g.ensureClient(ctx)
	if err != nil {
		return llm.CompletionResponse{}, err
	}

	contents, config, err := buildRequest(in)
	if err != nil {
		return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err, "message conversion error")
	}

	result, err := client.Models.GenerateContent(ctx, g.model, contents, config)
	if err != nil {
		return llm.CompletionResponse{}, classifyError(err)
	}
	if result == nil {
		return llm.CompletionResponse{}, llmerrors.NewError(llmerrors.ErrorTypeEmptyResponse, "empty response from Gemini API")
	}

	return convertResponse(result), nil
}

// GetModelName returns the model name for this client.
func (g *GeminiClient) GetModelName() string {
	return g.model
}

// buildRequest converts a completion request into Gemini contents and generation config.
//
//nolint:gocritic // CompletionRequest passed by value to mirror Complete
func buildRequest(in llm.CompletionRequest) ([]*genai.Content, *genai.GenerateContentConfig, error) {
	system, messages := llm.SplitSystem(in.Messages)
	if len(messages) == 0 {
		return nil, nil, fmt.Errorf("message list must contain at least one non-system message")
	}

	contents := make([]*genai.Content, 0, len(messages))
	for i := range messages {
		msg := &messages[i]
		var role string
		switch msg.Role {
		case llm.RoleUser:
			role = genai.RoleUser
		case llm.RoleAssistant:
			role = genai.RoleModel
		default:
			return nil, nil, fmt.Errorf("unsupported message role: %s", msg.Role)
		}
		contents = append(contents, &genai.Content{
			Role:  role,
			Parts: []*genai.Part{{Text: msg.Content}},
		})
	}

	temperature := in.Temperature
	config := &genai.GenerateContentConfig{
		Temperature: &temperature,
	}
	// Thinking models count reasoning against the limit, so none is sent unless asked for.
	if in.MaxTokens > 0 {
		//nolint:gosec // MaxTokens validated at config load
		config.MaxOutputTokens = int32(in.MaxTokens)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: system}},
		}
	}
	if in.ResponseFormat == llm.FormatJSON {
		config.ResponseMIMEType = "application/json"
	}

	return contents, config, nil
}

func convertResponse(result *genai.GenerateContentResponse) llm.CompletionResponse {
	response := llm.CompletionResponse{
		Content:    result.Text(),
		StopReason: getStopReason(result),
	}
	if result.UsageMetadata != nil {
		response.Usage = llm.Usage{
			PromptTokens:     int(result.UsageMetadata.PromptTokenCount),
			CompletionTokens: int(result.UsageMetadata.CandidatesTokenCount),
		}
	}
	return response
}

// getStopReason extracts the finish reason of the first candidate.
func getStopReason(result *genai.GenerateContentResponse) string {
	if len(result.Candidates) == 0 || result.Candidates[0] == nil {
		return "unknown"
	}
	if reason := result.Candidates[0].FinishReason; reason != "" {
		return string(reason)
	}
	return "end_turn"
}

// classifyError prefers the HTTP status carried by genai.APIError over string matching.
func classifyError(err error) error {
	var apiErr genai.APIError
	if errors.As(err, &apiErr) {
		if classified := llmerrors.FromStatus(apiErr.Code, err); classified != nil {
			classified.Message = fmt.Sprintf("Gemini API %s: %s", classified.Message, apiErr.Message)
			return classified
		}
	}
	return llmerrors.Classify(providerName, err)
}
