// Package timeout provides timeout middleware for LLM clients.
package timeout

import (
	"context"
	"errors"
	"fmt"
	"time"

	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
)

// Middleware returns a middleware function that bounds each request to duration.
// An expired deadline is reported as a transient error naming the limit; a cancellation
// from the caller's context passes through unchanged.
func Middleware(duration time.Duration) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				timeoutCtx, cancel := context.WithTimeout(ctx, duration)
				defer cancel()

				resp, err := next.Complete(timeoutCtx, req)
				if err != nil && ctx.Err() == nil && errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(
						llmerrors.ErrorTypeTransient,
						context.DeadlineExceeded,
						fmt.Sprintf("model call timed out after %s", duration),
					)
				}
				return resp, err //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
