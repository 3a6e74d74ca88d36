// Package factory builds model clients with their middleware chain from configuration.
package factory

import (
	"fmt"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llm/internal/llmimpl/anthropic"
	"promptarchitect/pkg/llm/internal/llmimpl/google"
	"promptarchitect/pkg/llm/internal/llmimpl/ollama"
	"promptarchitect/pkg/llm/internal/llmimpl/openai"
	metricsmw "promptarchitect/pkg/llm/middleware/metrics"
	"promptarchitect/pkg/llm/middleware/ratelimit"
	"promptarchitect/pkg/llm/middleware/retry"
	"promptarchitect/pkg/llm/middleware/timeout"
	"promptarchitect/pkg/llm/middleware/validation"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/metrics"
)

// RawClientFunc constructs an unwrapped provider client. Tests replace it to avoid network access.
type RawClientFunc func(provider, credential, model string) (llm.LLMClient, error)

// Factory creates LLM clients with properly configured middleware chains.
type Factory struct {
	recorder metrics.Recorder
	newRaw   RawClientFunc
	logger   *logx.Logger
	config   config.Config
}

// New creates a factory for cfg. A nil recorder disables metrics.
func New(cfg config.Config, recorder metrics.Recorder) *Factory {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	return &Factory{
		config:   cfg,
		recorder: recorder,
		newRaw:   NewRawClient,
		logger:   logx.NewLogger("llm"),
	}
}

// WithRawClientFunc overrides provider construction.
func (f *Factory) WithRawClientFunc(fn RawClientFunc) *Factory {
	f.newRaw = fn
	return f
}

// NewRawClient creates the provider client for model. credential is the API key, or the host URL for Ollama.
func NewRawClient(provider, credential, model string) (llm.LLMClient, error) {
	switch provider {
	case config.ProviderGoogle:
		return google.NewGeminiClientWithModel(credential, model), nil
	case config.ProviderAnthropic:
		return anthropic.NewClaudeClientWithModel(credential, model), nil
	case config.ProviderOpenAI:
		return openai.NewOfficialClientWithModel(credential, model), nil
	case config.ProviderOllama:
		return ollama.NewOllamaClientWithModel(credential, model), nil
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}
}

// CreateClient creates the client for the configured model with the full middleware chain.
func (f *Factory) CreateClient() (llm.LLMClient, error) {
	return f.CreateClientForModel(f.config.Model)
}

// CreateClientForModel creates a client for an explicit model name.
func (f *Factory) CreateClientForModel(modelName string) (llm.LLMClient, error) {
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to determine provider for model %s: %w", modelName, err)
	}

	credential, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, fmt.Errorf("failed to get API key for provider %s: %w", provider, err)
	}

	rawClient, err := f.newRaw(provider, credential, modelName)
	if err != nil {
		return nil, err
	}

	resilience := f.config.Resilience
	retryPolicy := retry.NewPolicy(retry.FromConfig(resilience.Retry), nil)

	// Metrics -> Retry -> RateLimit -> Timeout -> EmptyResponse -> RawClient
	client := llm.Chain(rawClient,
		metricsmw.Middleware(f.recorder, nil, f.logger),
		retry.Middleware(retryPolicy, f.logger),
		ratelimit.Middleware(ratelimit.FromConfig(resilience.RateLimit), f.recorder, f.logger),
		timeout.Middleware(f.config.Pipeline.StageTimeout),
		validation.NewEmptyResponseValidator().Middleware(),
	)

	f.logger.Info("🤖 Model client ready: %s (provider %s, timeout %s, retry attempts %d)",
		modelName, provider, f.config.Pipeline.StageTimeout, resilience.Retry.MaxAttempts)
	return client, nil
}
