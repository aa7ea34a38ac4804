package evaluator

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"regexp"
	"strconv"
	"time"

	"github.com/sashabaranov/go-openai"
	"github.com/sethvargo/go-retry"
	"github.com/sony/gobreaker/v2"
)

// DefaultRetryPolicy returns the per request retry settings used when
// Config.Retry is nil.
func DefaultRetryPolicy() *RetryPolicy {
	return &RetryPolicy{
		MaxAttempts:    5,
		RateLimitBase:  30 * time.Second,
		TransientDelay: 10 * time.Second,
	}
}

// OutcomeKind tags the result of a single completion attempt.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeRateLimited
	OutcomeTransient
	OutcomeFiltered
	OutcomeFailed
)

// String returns the metric label for the kind.
func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeRateLimited:
		return "rate_limit"
	case OutcomeTransient:
		return "transient"
	case OutcomeFiltered:
		return "filtered"
	case OutcomeFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Outcome is the classified result of one attempt.
type Outcome struct {
	Kind       OutcomeKind
	Text       string        // Reply text, set for OutcomeSuccess
	RetryAfter time.Duration // Provider suggested wait, set for OutcomeRateLimited
	Err        error
}

var retryAfterPattern = regexp.MustCompile(`(?i)retry after (\d+)`)

// ClassifyAttempt turns a provider response or error into an Outcome.
func ClassifyAttempt(resp openai.ChatCompletionResponse, err error) Outcome {
	if err == nil {
		text := EmptySentinel
		if len(resp.Choices) > 0 {
			text = resp.Choices[0].Message.Content
		}
		return Outcome{Kind: OutcomeSuccess, Text: text}
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		if apiErr.InnerError != nil && apiErr.InnerError.Code == "content_filter" {
			return Outcome{Kind: OutcomeFiltered, Err: err}
		}
		if code, ok := apiErr.Code.(string); ok && code == "content_filter" {
			return Outcome{Kind: OutcomeFiltered, Err: err}
		}
		return classifyStatus(apiErr.HTTPStatusCode, apiErr.Message, err)
	}

	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) && reqErr.HTTPStatusCode != 0 {
		return classifyStatus(reqErr.HTTPStatusCode, reqErr.Error(), err)
	}

	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return Outcome{Kind: OutcomeTransient, Err: err}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return Outcome{Kind: OutcomeTransient, Err: err}
	}

	if errors.Is(err, context.Canceled) {
		return Outcome{Kind: OutcomeFailed, Err: err}
	}

	var netErr net.Error
	var urlErr *url.Error
	if errors.As(err, &netErr) || errors.As(err, &urlErr) {
		return Outcome{Kind: OutcomeTransient, Err: err}
	}

	return Outcome{Kind: OutcomeFailed, Err: err}
}

func classifyStatus(status int, message string, err error) Outcome {
	switch status {
	case http.StatusTooManyRequests:
		return Outcome{Kind: OutcomeRateLimited, RetryAfter: parseRetryAfter(message), Err: err}
	case http.StatusRequestTimeout:
		return Outcome{Kind: OutcomeTransient, Err: err}
	case http.StatusBadRequest, http.StatusNotFound, http.StatusUnprocessableEntity:
		return Outcome{Kind: OutcomeFiltered, Err: err}
	default:
		return Outcome{Kind: OutcomeFailed, Err: err}
	}
}

// parseRetryAfter reads "Please retry after N seconds" from a provider message.
func parseRetryAfter(message string) time.Duration {
	m := retryAfterPattern.FindStringSubmatch(message)
	if m == nil {
		return 0
	}
	secs, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return time.Duration(secs) * time.Second
}

// RateLimitDelay is the wait after a rate limit signal on the given zero based
// attempt: retryAfter + base*(1+attempt²).
func RateLimitDelay(retryAfter, base time.Duration, attempt int) time.Duration {
	return retryAfter + base*time.Duration(1+attempt*attempt)
}

// attemptFunc performs one provider call.
type attemptFunc func(ctx context.Context) (openai.ChatCompletionResponse, error)

// completeWithRetry runs attempts until one yields a reply text or a terminal
// outcome. It never returns an error; failures become sentinel texts.
func completeWithRetry(ctx context.Context, policy *RetryPolicy, metrics *MetricsRecorder, attempt attemptFunc) string {
	var (
		attempts int
		delay    time.Duration
		text     = EmptySentinel
	)

	backoff := retry.WithMaxRetries(
		uint64(max(policy.MaxAttempts-1, 0)),
		retry.BackoffFunc(func() (time.Duration, bool) {
			return delay, false
		}),
	)

	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		idx := attempts
		attempts++

		start := time.Now()
		resp, err := attempt(ctx)
		outcome := ClassifyAttempt(resp, err)
		if outcome.Kind == OutcomeTransient && ctx.Err() != nil {
			outcome.Kind = OutcomeFailed
		}
		metrics.RecordAPICall(outcome.Kind.String(), time.Since(start).Seconds())

		switch outcome.Kind {
		case OutcomeSuccess:
			metrics.RecordTokensUsed("prompt", resp.Usage.PromptTokens)
			metrics.RecordTokensUsed("completion", resp.Usage.CompletionTokens)
			text = outcome.Text
			return nil

		case OutcomeRateLimited:
			delay = RateLimitDelay(outcome.RetryAfter, policy.RateLimitBase, idx)
			metrics.RecordRetry(outcome.Kind.String())
			slog.Warn("Provider rate limit exceeded, backing off",
				"attempt", idx,
				"retry_after", outcome.RetryAfter,
				"delay", delay)
			return retry.RetryableError(outcome.Err)

		case OutcomeTransient:
			delay = policy.TransientDelay
			metrics.RecordRetry(outcome.Kind.String())
			slog.Warn("Provider timeout or connection error, backing off",
				"attempt", idx,
				"delay", delay,
				"error", outcome.Err)
			return retry.RetryableError(outcome.Err)

		case OutcomeFiltered:
			metrics.RecordError(outcome.Kind.String())
			slog.Warn("Invalid request: prompt was filtered",
				"attempt", idx,
				"error", outcome.Err)
			text = FilteredSentinel
			return nil

		default:
			metrics.RecordError(outcome.Kind.String())
			slog.Warn("Provider error, giving up on request",
				"attempt", idx,
				"error", outcome.Err)
			return outcome.Err
		}
	})

	metrics.RecordRetryAttempt(attempts)
	if err != nil {
		if attempts >= policy.MaxAttempts {
			slog.Warn("Max retry attempts reached",
				"attempts", attempts,
				"error", err)
		}
		return EmptySentinel
	}
	return text
}
