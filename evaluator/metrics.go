package evaluator

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Batch metrics
	batchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_evaluator_batches_total",
			Help: "Total number of evaluation batches",
		},
		[]string{"mode", "engine"},
	)

	batchDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_evaluator_batch_duration_seconds",
			Help:    "Duration of evaluation batches in seconds",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		},
		[]string{"engine"},
	)

	batchSize = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_evaluator_batch_size",
			Help:    "Number of report pairs per batch",
			Buckets: []float64{1, 2, 5, 10, 20, 50, 100, 500, 1000},
		},
	)

	// Rating metrics
	ratingsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_evaluator_ratings_total",
			Help: "Total number of final ratings by validity",
		},
		[]string{"valid"},
	)

	retryRounds = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "report_evaluator_retry_rounds_total",
			Help: "Total number of re-evaluation rounds for unparseable replies",
		},
	)

	invalidRatings = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_evaluator_invalid_ratings",
			Help:    "Number of invalid ratings entering a re-evaluation round",
			Buckets: []float64{0, 1, 2, 5, 10, 20, 50, 100},
		},
	)

	// Error metrics
	errorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_evaluator_errors_total",
			Help: "Total number of terminal provider errors by type",
		},
		[]string{"error_type"},
	)

	// Circuit breaker metrics
	circuitBreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "report_evaluator_circuit_breaker_state",
			Help: "Current state of circuit breaker (0=closed, 1=half-open, 2=open)",
		},
		[]string{"name"},
	)

	circuitBreakerTrips = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_evaluator_circuit_breaker_trips_total",
			Help: "Total number of circuit breaker trips",
		},
		[]string{"name"},
	)

	// Retry metrics
	retryAttempts = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_evaluator_attempts_per_request",
			Help:    "Number of provider attempts per request",
			Buckets: []float64{1, 2, 3, 4, 5},
		},
	)

	retryTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_evaluator_retry_total",
			Help: "Total number of retries by reason",
		},
		[]string{"reason"},
	)

	// API metrics
	apiCallDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "report_evaluator_api_call_duration_seconds",
			Help:    "Duration of chat completion calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"outcome"},
	)

	apiTokensUsed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "report_evaluator_api_tokens_used_total",
			Help: "Total number of tokens used in API calls",
		},
		[]string{"type"}, // prompt, completion
	)

	// Rate limiter metrics
	limiterWait = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "report_evaluator_rate_limiter_wait_seconds",
			Help:    "Time spent waiting for rate limiter admission",
			Buckets: []float64{0, 0.1, 1, 2, 5, 10, 30, 60},
		},
	)

	inFlightRequests = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "report_evaluator_in_flight_requests",
			Help: "Number of requests admitted and not yet resolved",
		},
	)
)

// MetricsRecorder provides methods to record metrics. A nil or disabled
// recorder drops everything.
type MetricsRecorder struct {
	enabled bool
}

// NewMetricsRecorder creates a new metrics recorder
func NewMetricsRecorder(enabled bool) *MetricsRecorder {
	return &MetricsRecorder{enabled: enabled}
}

func (m *MetricsRecorder) on() bool {
	return m != nil && m.enabled
}

// RecordBatch records a finished batch
func (m *MetricsRecorder) RecordBatch(mode, engine string, size int, seconds float64) {
	if !m.on() {
		return
	}
	batchesTotal.WithLabelValues(mode, engine).Inc()
	batchSize.Observe(float64(size))
	batchDuration.WithLabelValues(engine).Observe(seconds)
}

// RecordRatings records the validity of final ratings
func (m *MetricsRecorder) RecordRatings(valid, invalid int) {
	if !m.on() {
		return
	}
	ratingsTotal.WithLabelValues("true").Add(float64(valid))
	ratingsTotal.WithLabelValues("false").Add(float64(invalid))
}

// RecordRetryRound records a re-evaluation round over invalid ratings
func (m *MetricsRecorder) RecordRetryRound(invalid int) {
	if !m.on() {
		return
	}
	retryRounds.Inc()
	invalidRatings.Observe(float64(invalid))
}

// RecordError records a terminal provider error
func (m *MetricsRecorder) RecordError(errorType string) {
	if !m.on() {
		return
	}
	errorsTotal.WithLabelValues(errorType).Inc()
}

// RecordCircuitBreakerState records circuit breaker state
func (m *MetricsRecorder) RecordCircuitBreakerState(name string, state int) {
	if !m.on() {
		return
	}
	circuitBreakerState.WithLabelValues(name).Set(float64(state))
}

// RecordCircuitBreakerTrip records a circuit breaker trip
func (m *MetricsRecorder) RecordCircuitBreakerTrip(name string) {
	if !m.on() {
		return
	}
	circuitBreakerTrips.WithLabelValues(name).Inc()
}

// RecordRetryAttempt records attempts used by one request
func (m *MetricsRecorder) RecordRetryAttempt(attempts int) {
	if !m.on() {
		return
	}
	retryAttempts.Observe(float64(attempts))
}

// RecordRetry records a retry
func (m *MetricsRecorder) RecordRetry(reason string) {
	if !m.on() {
		return
	}
	retryTotal.WithLabelValues(reason).Inc()
}

// RecordAPICall records an API call duration
func (m *MetricsRecorder) RecordAPICall(outcome string, seconds float64) {
	if !m.on() {
		return
	}
	apiCallDuration.WithLabelValues(outcome).Observe(seconds)
}

// RecordTokensUsed records tokens used
func (m *MetricsRecorder) RecordTokensUsed(tokenType string, count int) {
	if !m.on() {
		return
	}
	apiTokensUsed.WithLabelValues(tokenType).Add(float64(count))
}

// RecordLimiterWait records time spent waiting for admission
func (m *MetricsRecorder) RecordLimiterWait(seconds float64) {
	if !m.on() {
		return
	}
	limiterWait.Observe(seconds)
}

// RecordInFlight updates the in flight request count
func (m *MetricsRecorder) RecordInFlight(delta float64) {
	if !m.on() {
		return
	}
	inFlightRequests.Add(delta)
}

// GetMetricsHandler returns an HTTP handler for Prometheus metrics
func GetMetricsHandler() http.Handler {
	return promhttp.Handler()
}
