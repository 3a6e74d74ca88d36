// Package metrics provides metrics recording for model calls and pipeline runs.
package metrics

import (
	"time"
)

// Run outcomes used as the "outcome" label.
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
	OutcomeCanceled = "canceled"
)

// Recorder defines the interface for recording pipeline metrics.
type Recorder interface {
	// ObserveRequest records metrics for a completed model request.
	ObserveRequest(
		model, operation string,
		promptTokens, completionTokens int,
		cost float64,
		success bool,
		errorType string,
		duration time.Duration,
	)

	// IncThrottle increments the throttle counter for rate limiting events.
	IncThrottle(model, reason string)

	// ObserveQueueWait records time spent waiting for rate limit availability.
	ObserveQueueWait(model string, duration time.Duration)

	// ObserveRun records a finished pipeline run. stage is the failing stage, or "" on success.
	ObserveRun(outcome, stage string, duration time.Duration)

	// ObserveScore records the evaluator's total score for a completed run.
	ObserveScore(total int)
}

// NoopRecorder implements Recorder with no-op behavior for when metrics are disabled.
type NoopRecorder struct{}

// Nop returns a no-op metrics recorder that discards all metrics.
func Nop() Recorder {
	return &NoopRecorder{}
}

// ObserveRequest does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRequest(_, _ string, _, _ int, _ float64, _ bool, _ string, _ time.Duration) {}

// IncThrottle does nothing in the no-op recorder.
func (n *NoopRecorder) IncThrottle(_, _ string) {}

// ObserveQueueWait does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveQueueWait(_ string, _ time.Duration) {}

// ObserveRun does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveRun(_, _ string, _ time.Duration) {}

// ObserveScore does nothing in the no-op recorder.
func (n *NoopRecorder) ObserveScore(_ int) {}
