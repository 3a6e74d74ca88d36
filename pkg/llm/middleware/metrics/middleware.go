// Package metrics provides metrics middleware for LLM clients.
package metrics

import (
	"context"
	"errors"
	"time"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/metrics"
	"promptarchitect/pkg/utils"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

// UsageExtractor extracts token usage from a request and response.
type UsageExtractor func(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int)

// DefaultUsageExtractor prefers provider-reported usage and falls back to TikToken estimates.
//
//nolint:gocritic // Request and response passed by value to match UsageExtractor
func DefaultUsageExtractor(req llm.CompletionRequest, resp llm.CompletionResponse) (promptTokens, completionTokens int) {
	if resp.Usage.PromptTokens > 0 || resp.Usage.CompletionTokens > 0 {
		return resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	}

	var promptText string
	for i := range req.Messages {
		promptText += req.Messages[i].Content + "\n"
	}
	return utils.CountTokensSimple(promptText), utils.CountTokensSimple(resp.Content)
}

// Middleware returns a middleware function that records latency, token usage, cost and
// error type for every model call. The operation label comes from llm.WithOperation.
func Middleware(recorder metrics.Recorder, usageExtractor UsageExtractor, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}
	if usageExtractor == nil {
		usageExtractor = DefaultUsageExtractor
	}

	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				start := time.Now()
				model := next.GetModelName()
				operation := llm.OperationFromContext(ctx)

				resp, err := next.Complete(ctx, req)
				duration := time.Since(start)

				var promptTokens, completionTokens int
				var cost float64
				errorType := ""
				if err == nil {
					promptTokens, completionTokens = usageExtractor(req, resp)
					cost = config.CalculateCost(model, promptTokens, completionTokens)
				} else {
					errorType = getErrorType(err)
				}

				recorder.ObserveRequest(model, operation, promptTokens, completionTokens, cost, err == nil, errorType, duration)

				if logger != nil {
					status := statusSuccess
					if err != nil {
						status = statusError
					}
					logger.Info("🎯 LLM Request: model=%s operation=%s tokens=%d+%d=%d cost=$%.4f status=%s duration=%dms",
						model, operation, promptTokens, completionTokens, promptTokens+completionTokens, cost, status, duration.Milliseconds())
				}

				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}

// getErrorType labels errors for metrics.
func getErrorType(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.Type.String()
	}
	return "unknown"
}
