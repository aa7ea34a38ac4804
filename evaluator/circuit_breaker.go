package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

const breakerName = "chat-completions"

// DefaultCircuitBreakerConfig returns the breaker settings used when the
// breaker is enabled without a config.
func DefaultCircuitBreakerConfig() *CircuitBreakerConfig {
	return &CircuitBreakerConfig{
		MaxRequests: 10,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			// Trip if 5 consecutive failures OR failure rate > 60%
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.ConsecutiveFailures >= 5 ||
				(counts.Requests >= 10 && failureRatio > 0.6)
		},
	}
}

// CircuitBreaker guards provider calls. It outlives sessions, so one breaker
// sees the failures of every batch run by an evaluator.
type CircuitBreaker struct {
	cb *gobreaker.CircuitBreaker[openai.ChatCompletionResponse]
}

// NewCircuitBreaker creates a breaker from config, falling back to
// DefaultCircuitBreakerConfig when config is nil.
func NewCircuitBreaker(config *CircuitBreakerConfig, metrics *MetricsRecorder) *CircuitBreaker {
	if config == nil {
		config = DefaultCircuitBreakerConfig()
	}

	settings := gobreaker.Settings{
		Name:        breakerName,
		MaxRequests: config.MaxRequests,
		Interval:    config.Interval,
		Timeout:     config.Timeout,
		ReadyToTrip: config.ReadyToTrip,
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("Circuit breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String())

			metrics.RecordCircuitBreakerState(name, stateToInt(to))
			if to == gobreaker.StateOpen {
				metrics.RecordCircuitBreakerTrip(name)
			}
			if config.OnStateChange != nil {
				config.OnStateChange(name, from, to)
			}
		},
		IsSuccessful: func(err error) bool {
			return !ShouldTripCircuit(err)
		},
	}

	return &CircuitBreaker{
		cb: gobreaker.NewCircuitBreaker[openai.ChatCompletionResponse](settings),
	}
}

// Wrap returns a client whose calls pass through the breaker.
func (b *CircuitBreaker) Wrap(client OpenAIClient) OpenAIClient {
	return &breakerClient{client: client, cb: b.cb}
}

// State returns the current state of the circuit breaker
func (b *CircuitBreaker) State() gobreaker.State {
	return b.cb.State()
}

// Counts returns the current counts of the circuit breaker
func (b *CircuitBreaker) Counts() gobreaker.Counts {
	return b.cb.Counts()
}

// GetHealth returns the health status of the circuit breaker
func (b *CircuitBreaker) GetHealth() HealthStatus {
	state := b.cb.State()
	counts := b.cb.Counts()

	var healthy bool
	var status string

	switch state {
	case gobreaker.StateClosed:
		healthy = true
		status = "closed"
	case gobreaker.StateHalfOpen:
		healthy = true // Degraded but operational
		status = "half-open"
	case gobreaker.StateOpen:
		healthy = false
		status = "open"
	default:
		status = "unknown"
	}

	details := map[string]interface{}{
		"state":                 state.String(),
		"requests":              counts.Requests,
		"total_successes":       counts.TotalSuccesses,
		"total_failures":        counts.TotalFailures,
		"consecutive_failures":  counts.ConsecutiveFailures,
		"consecutive_successes": counts.ConsecutiveSuccesses,
	}

	return HealthStatus{
		Healthy: healthy,
		Status:  status,
		Details: details,
	}
}

type breakerClient struct {
	client OpenAIClient
	cb     *gobreaker.CircuitBreaker[openai.ChatCompletionResponse]
}

func (c *breakerClient) CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error) {
	resp, err := c.cb.Execute(func() (openai.ChatCompletionResponse, error) {
		return c.client.CreateChatCompletion(ctx, req)
	})

	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) {
			slog.Debug("Circuit breaker is open, request rejected",
				"error", err)
		} else if errors.Is(err, gobreaker.ErrTooManyRequests) {
			slog.Debug("Circuit breaker in half-open state, too many requests",
				"error", err)
		}
	}

	return resp, err
}

// ShouldTripCircuit reports whether err counts as a breaker failure. Rate
// limits, filtered prompts and timeouts are expected and do not trip it.
func ShouldTripCircuit(err error) bool {
	if err == nil {
		return false
	}

	switch ClassifyAttempt(openai.ChatCompletionResponse{}, err).Kind {
	case OutcomeRateLimited, OutcomeFiltered:
		return false
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) && apiErr.HTTPStatusCode == http.StatusRequestTimeout {
		return false
	}

	// Auth failures, server errors and broken connections trip the circuit
	return true
}

// stateToInt converts circuit breaker state to int for metrics
func stateToInt(state gobreaker.State) int {
	switch state {
	case gobreaker.StateClosed:
		return 0
	case gobreaker.StateHalfOpen:
		return 1
	case gobreaker.StateOpen:
		return 2
	default:
		return -1
	}
}
