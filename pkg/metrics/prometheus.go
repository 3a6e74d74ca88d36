package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "promptarchitect"

// PrometheusRecorder implements the Recorder interface using Prometheus metrics.
type PrometheusRecorder struct {
	requestsTotal   *prometheus.CounterVec
	tokensTotal     *prometheus.CounterVec
	costsTotal      *prometheus.CounterVec
	requestDuration *prometheus.HistogramVec
	throttleTotal   *prometheus.CounterVec
	queueWaitTime   *prometheus.HistogramVec
	runsTotal       *prometheus.CounterVec
	runDuration     *prometheus.HistogramVec
	totalScore      prometheus.Histogram
}

// NewPrometheusRecorder creates a recorder whose collectors are registered with reg.
// Pass prometheus.DefaultRegisterer for the process-wide registry.
func NewPrometheusRecorder(reg prometheus.Registerer) *PrometheusRecorder {
	factory := promauto.With(reg)
	return &PrometheusRecorder{
		requestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_requests_total",
				Help:      "Total number of model requests by model, operation, and status",
			},
			[]string{"model", "operation", "status", "error_type"},
		),
		tokensTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_tokens_total",
				Help:      "Total number of tokens used in model requests",
			},
			[]string{"model", "operation", "type"},
		),
		costsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_costs_total",
				Help:      "Total cost in USD for model requests",
			},
			[]string{"model", "operation"},
		),
		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_request_duration_seconds",
				Help:      "Duration of model requests in seconds",
				Buckets:   []float64{0.5, 1, 2.5, 5, 10, 20, 30, 45, 60, 90},
			},
			[]string{"model", "operation"},
		),
		throttleTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "llm_throttle_total",
				Help:      "Total number of model throttling events",
			},
			[]string{"model", "reason"},
		),
		queueWaitTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "llm_queue_wait_duration_seconds",
				Help:      "Time spent waiting for rate limit availability",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"model"},
		),
		runsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "runs_total",
				Help:      "Total number of pipeline runs by outcome and failing stage",
			},
			[]string{"outcome", "stage"},
		),
		runDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "run_duration_seconds",
				Help:      "Wall time of pipeline runs in seconds",
				Buckets:   []float64{5, 10, 20, 30, 60, 90, 120, 180, 300},
			},
			[]string{"outcome"},
		),
		totalScore: factory.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "evaluation_total_score",
				Help:      "Distribution of evaluator total scores (0-175)",
				Buckets:   prometheus.LinearBuckets(25, 25, 7),
			},
		),
	}
}

// ObserveRequest records metrics for a completed model request.
func (p *PrometheusRecorder) ObserveRequest(
	model, operation string,
	promptTokens, completionTokens int,
	cost float64,
	success bool,
	errorType string,
	duration time.Duration,
) {
	status := "success"
	if !success {
		status = "error"
	}

	p.requestsTotal.WithLabelValues(model, operation, status, errorType).Inc()

	// Tokens and costs are only known for successful calls.
	if success {
		p.tokensTotal.WithLabelValues(model, operation, "prompt").Add(float64(promptTokens))
		p.tokensTotal.WithLabelValues(model, operation, "completion").Add(float64(completionTokens))
		p.costsTotal.WithLabelValues(model, operation).Add(cost)
	}

	p.requestDuration.WithLabelValues(model, operation).Observe(duration.Seconds())
}

// IncThrottle increments the throttle counter for rate limiting events.
func (p *PrometheusRecorder) IncThrottle(model, reason string) {
	p.throttleTotal.WithLabelValues(model, reason).Inc()
}

// ObserveQueueWait records time spent waiting for rate limit availability.
func (p *PrometheusRecorder) ObserveQueueWait(model string, duration time.Duration) {
	p.queueWaitTime.WithLabelValues(model).Observe(duration.Seconds())
}

// ObserveRun records a finished pipeline run.
func (p *PrometheusRecorder) ObserveRun(outcome, stage string, duration time.Duration) {
	p.runsTotal.WithLabelValues(outcome, stage).Inc()
	p.runDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// ObserveScore records the evaluator's total score.
func (p *PrometheusRecorder) ObserveScore(total int) {
	p.totalScore.Observe(float64(total))
}
