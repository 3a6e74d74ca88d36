package retry

import (
	"context"
	"fmt"
	"time"

	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
	"promptarchitect/pkg/logx"
)

// Middleware returns a middleware function that retries failed requests according to policy.
// With MaxAttempts of 1 it is a pass-through.
func Middleware(policy *Policy, logger *logx.Logger) llm.Middleware {
	return func(next llm.LLMClient) llm.LLMClient {
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				var lastErr error

				for attempt := 1; attempt <= policy.Config.MaxAttempts; attempt++ {
					if attempt > 1 {
						delay := policy.CalculateDelay(attempt)
						if logger != nil {
							logger.Warn("🔁 Retrying %s call (attempt %d/%d) in %s: %v",
								llm.OperationFromContext(ctx), attempt, policy.Config.MaxAttempts, delay.Round(time.Millisecond), lastErr)
						}
						if delay > 0 {
							timer := time.NewTimer(delay)
							select {
							case <-ctx.Done():
								timer.Stop()
								return llm.CompletionResponse{}, fmt.Errorf("retry cancelled: %w", ctx.Err())
							case <-timer.C:
							}
						}
					}

					resp, err := next.Complete(ctx, req)
					if err == nil {
						return resp, nil
					}
					lastErr = err

					if !policy.ShouldRetry(err) {
						return llm.CompletionResponse{}, err //nolint:wrapcheck // Non-retryable errors pass through unchanged
					}
				}

				if policy.Config.MaxAttempts > 1 {
					return llm.CompletionResponse{}, llmerrors.NewServiceUnavailableError(lastErr, policy.Config.MaxAttempts)
				}
				return llm.CompletionResponse{}, lastErr
			},
			next.GetModelName,
		)
	}
}
