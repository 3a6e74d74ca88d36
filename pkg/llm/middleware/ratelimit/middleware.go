// Package ratelimit provides rate limiting middleware for LLM clients.
package ratelimit

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llm"
	"promptarchitect/pkg/llmerrors"
	"promptarchitect/pkg/logx"
	"promptarchitect/pkg/metrics"
)

// NewLimiter builds a token bucket allowing requestsPerMinute calls with the given burst.
// Returns nil when requestsPerMinute is not positive, which disables limiting.
func NewLimiter(requestsPerMinute, burst int) *rate.Limiter {
	if requestsPerMinute <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Every(time.Minute/time.Duration(requestsPerMinute)), burst)
}

// FromConfig builds the limiter described by the resilience settings.
func FromConfig(c config.RateLimitConfig) *rate.Limiter {
	return NewLimiter(c.RequestsPerMinute, c.Burst)
}

// Middleware returns a middleware function that waits for limiter capacity before each call.
// A nil limiter yields a pass-through middleware.
func Middleware(limiter *rate.Limiter, recorder metrics.Recorder, logger *logx.Logger) llm.Middleware {
	if recorder == nil {
		recorder = metrics.Nop()
	}

	return func(next llm.LLMClient) llm.LLMClient {
		if limiter == nil {
			return next
		}
		return llm.WrapClient(
			func(ctx context.Context, req llm.CompletionRequest) (llm.CompletionResponse, error) {
				model := next.GetModelName()

				if limiter.Tokens() < 1 {
					recorder.IncThrottle(model, "rate_limit")
					if logger != nil {
						logger.Info("RATELIMIT: %s call waiting for capacity (model %s)", llm.OperationFromContext(ctx), model)
					}
				}

				start := time.Now()
				if err := limiter.Wait(ctx); err != nil {
					recorder.IncThrottle(model, "wait_aborted")
					if ctx.Err() != nil {
						return llm.CompletionResponse{}, ctx.Err() //nolint:wrapcheck // Context error propagated as-is
					}
					// Wait fails fast when the deadline is closer than the next token.
					return llm.CompletionResponse{}, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeRateLimit, err, "local rate limit would exceed deadline")
				}
				recorder.ObserveQueueWait(model, time.Since(start))

				return next.Complete(ctx, req) //nolint:wrapcheck // Middleware should pass through errors unchanged
			},
			next.GetModelName,
		)
	}
}
