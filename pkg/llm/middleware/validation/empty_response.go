// Package validation provides response validation middleware for LLM clients.
package validation

import (
	"context"
	"strings"

	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
	"promptarchitect/pkg/logx"
)

const maxEmptyAttempts = 2

// EmptyResponseValidator rejects blank completions. The first blank reply is retried once
// with a guidance message appended; a second blank reply becomes ErrorTypeEmptyResponse.
type EmptyResponseValidator struct {
	logger *logx.Logger
}

// NewEmptyResponseValidator creates a new validator.
func NewEmptyResponseValidator() *EmptyResponseValidator {
	return &EmptyResponseValidator{logger: logx.NewLogger("empty-response-validator")}
}

// Middleware returns the validating middleware.
func (v *EmptyResponseValidator) Middleware() llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				for attempt := 1; attempt <= maxEmptyAttempts; attempt++ {
					resp, err := next.Complete(ctx, req)
					if err != nil && !llmerrors.Is(err, llmerrors.ErrorTypeEmptyResponse) {
						return resp, err //nolint:wrapcheck // Middleware passes through errors unchanged
					}
					if err == nil && strings.TrimSpace(resp.Content) != "" {
						return resp, nil
					}

					v.logger.Warn("⚠️ EMPTY RESPONSE DETECTED (attempt %d/%d) for %s: stop_reason=%q err=%v",
						attempt, maxEmptyAttempts, llm.OperationFromContext(ctx), resp.StopReason, err)

					if attempt < maxEmptyAttempts {
						guided := req
						guided.Messages = append(append([]llm.CompletionMessage(nil), req.Messages...),
							llm.NewUserMessage(guidanceMessage(req)))
						req = guided
					}
				}

				v.logger.Error("❌ AUTO-RETRY FAILED: both attempts returned empty responses")
				return llm.CompletionResponse{}, llmerrors.NewError(
					llmerrors.ErrorTypeEmptyResponse,
					"received empty response after guidance",
				)
			},
			next.GetModelName,
		)
	}
}

func guidanceMessage(req llm.CompletionRequest) string {
	if req.ResponseFormat == llm.FormatJSON {
		return "Your previous response was empty. Reply with the complete JSON object described in the instructions."
	}
	return "Your previous response was empty. Please answer the request above."
}
