// Package retry provides retry logic with exponential backoff for model calls.
package retry

import (
	"context"
	"errors"
	"math"
	"math/rand/v2"
	"time"

	"promptarchitect/pkg/config"
	"promptarchitect/pkg/llmerrors"
)

// Config defines configuration for retry behavior.
type Config struct {
	MaxAttempts   int           // Maximum number of attempts (including initial)
	InitialDelay  time.Duration // Initial delay before first retry
	MaxDelay      time.Duration // Maximum delay between retries
	BackoffFactor float64       // Multiplier for exponential backoff
	Jitter        bool          // Add random jitter of up to 10%
}

// FromConfig converts the on-disk retry settings.
func FromConfig(c config.RetryConfig) Config {
	return Config{
		MaxAttempts:   c.MaxAttempts,
		InitialDelay:  c.InitialDelay,
		MaxDelay:      c.MaxDelay,
		BackoffFactor: c.BackoffFactor,
		Jitter:        c.Jitter,
	}
}

// Classifier determines if an error should be retried.
type Classifier func(error) bool

// ShouldRetry is the default classifier. It never retries cancellation and otherwise
// defers to the classified error type.
func ShouldRetry(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var llmErr *llmerrors.Error
	if errors.As(err, &llmErr) {
		return llmErr.IsRetryable()
	}
	return false
}

// Policy encapsulates retry configuration and logic.
type Policy struct {
	Classifier Classifier
	Config     Config
}

// NewPolicy creates a new retry policy with the given configuration and classifier.
func NewPolicy(cfg Config, classifier Classifier) *Policy {
	if classifier == nil {
		classifier = ShouldRetry
	}
	if cfg.MaxAttempts < 1 {
		cfg.MaxAttempts = 1
	}
	return &Policy{
		Config:     cfg,
		Classifier: classifier,
	}
}

// CalculateDelay computes the delay before the given attempt number (1-based).
func (p *Policy) CalculateDelay(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}

	delay := time.Duration(float64(p.Config.InitialDelay) * math.Pow(p.Config.BackoffFactor, float64(attempt-2)))
	if delay > p.Config.MaxDelay {
		delay = p.Config.MaxDelay
	}

	if p.Config.Jitter && delay > 0 {
		jitter := time.Duration(float64(delay) * 0.1 * (2*rand.Float64() - 1))
		delay += jitter
	}
	return delay
}

// ShouldRetry determines if an error should be retried based on the configured classifier.
func (p *Policy) ShouldRetry(err error) bool {
	return p.Classifier(err)
}
