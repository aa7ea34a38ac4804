package evaluator

import (
	"context"
	"errors"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"
)

// EvaluationRequest is one reference/candidate pair to be rated
type EvaluationRequest struct {
	ID        string `json:"id"`        // Caller supplied identifier
	Reference string `json:"reference"` // Ground truth findings
	Candidate string `json:"candidate"` // Generated findings
}

// EvaluationResult is the rating for one EvaluationRequest
type EvaluationResult struct {
	ID        string `json:"id"`
	Reference string `json:"reference"`
	Candidate string `json:"candidate"`
	Rating    Rating `json:"rating"`
}

// ErrorCategory names one of the six discrepancy types the model counts.
type ErrorCategory string

const (
	FalsePositiveFinding    ErrorCategory = "false_positive_finding"    // A
	OmissionFinding         ErrorCategory = "omission_finding"          // B
	IncorrectLocation       ErrorCategory = "incorrect_location"        // C
	IncorrectSeverity       ErrorCategory = "incorrect_severity"        // D
	FalsePositiveComparison ErrorCategory = "false_positive_comparison" // E
	OmissionComparison      ErrorCategory = "omission_comparison"       // F
)

// Categories lists the error categories in prompt letter order A through F.
var Categories = [...]ErrorCategory{
	FalsePositiveFinding,
	OmissionFinding,
	IncorrectLocation,
	IncorrectSeverity,
	FalsePositiveComparison,
	OmissionComparison,
}

// CategoryForLetter maps a prompt letter (A-F) to its category.
func CategoryForLetter(letter rune) (ErrorCategory, bool) {
	idx := int(letter - 'A')
	if idx < 0 || idx >= len(Categories) {
		return "", false
	}
	return Categories[idx], true
}

// ErrorCountTable maps every ErrorCategory to a non-negative count. A non-nil
// table always holds all six categories.
type ErrorCountTable map[ErrorCategory]int

// NewErrorCountTable returns a table with every category set to zero.
func NewErrorCountTable() ErrorCountTable {
	t := make(ErrorCountTable, len(Categories))
	for _, c := range Categories {
		t[c] = 0
	}
	return t
}

// Total returns the sum of all counts in the table.
func (t ErrorCountTable) Total() int {
	total := 0
	for _, n := range t {
		total += n
	}
	return total
}

// Rating holds the clinically significant and insignificant error counts for a
// pair. A nil table means the model reply could not be parsed; it is never
// replaced with zeros.
type Rating struct {
	ClinicallySignificant   ErrorCountTable `json:"clinically_significant"`
	ClinicallyInsignificant ErrorCountTable `json:"clinically_insignificant"`
}

// Valid reports whether both tables were parsed.
func (r Rating) Valid() bool {
	return r.ClinicallySignificant != nil && r.ClinicallyInsignificant != nil
}

// HealthStatus represents the health state of the evaluator
type HealthStatus struct {
	Healthy bool                   // Overall health status
	Status  string                 // Human-readable status message
	Details map[string]interface{} // Additional health details
}

// Config holds the configuration for the evaluator
type Config struct {
	Provider             ProviderConfig        // Endpoint and credentials (required)
	Engine               string                // Engine alias, see SupportedEngines
	Temperature          float32               // Sampling temperature
	MaxTokens            int                   // Maximum completion tokens
	TopP                 float32               // Nucleus sampling probability
	RequestsPerMinute    int                   // Request starts admitted per rolling minute (0 = unlimited)
	FrequencyPenalty     float32               // Frequency penalty
	PresencePenalty      float32               // Presence penalty
	Stop                 []string              // Optional stop sequences
	MaxRetries           int                   // Re-evaluation rounds for unparseable replies
	Concurrent           bool                  // Dispatch the whole batch concurrently
	RequestTimeout       time.Duration         // Per attempt timeout (0 = none)
	Retry                *RetryPolicy          // Per request retry policy (nil = defaults)
	EnableCircuitBreaker bool                  // Enable circuit breaker pattern
	CircuitBreakerConfig *CircuitBreakerConfig // Circuit breaker configuration
	EnableMetrics        bool                  // Record Prometheus metrics
}

// CircuitBreakerConfig holds circuit breaker settings
type CircuitBreakerConfig struct {
	MaxRequests   uint32                                      // Max requests in half-open state
	Interval      time.Duration                               // Interval for closed state
	Timeout       time.Duration                               // Timeout for open state
	ReadyToTrip   func(counts gobreaker.Counts) bool          // Custom trip condition
	OnStateChange func(name string, from, to gobreaker.State) // State change callback
}

// RetryPolicy controls the per request retry loop of the completion client.
type RetryPolicy struct {
	MaxAttempts    int           // Attempts per request, including the first
	RateLimitBase  time.Duration // Base unit of the rate limit backoff
	TransientDelay time.Duration // Fixed delay after timeouts and connection errors
}

// OpenAIClient defines the interface for interacting with OpenAI API
type OpenAIClient interface {
	CreateChatCompletion(context.Context, openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

const (
	// FilteredSentinel replaces the reply of a request the provider rejected
	// as invalid or content filtered.
	FilteredSentinel = "Invalid Request: Prompt was filtered"

	// EmptySentinel replaces the reply of a request that failed for any other
	// reason or ran out of attempts.
	EmptySentinel = ""
)

// Error definitions
var (
	ErrMissingAPIKey     = errors.New("OpenAI API key is required")
	ErrMissingEndpoint   = errors.New("OpenAI API base URL is required")
	ErrMissingAPIVersion = errors.New("OpenAI API version is required")
	ErrInvalidConfig     = errors.New("invalid configuration")
	ErrUnsupportedEngine = errors.New("unsupported engine")
	ErrEmptyInput        = errors.New("input requests cannot be empty")
)
