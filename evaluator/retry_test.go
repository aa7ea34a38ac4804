// Retry tests cover classification of provider failures into tagged outcomes
// and the per request retry loop of the completion client.
package evaluator_test

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/sashabaranov/go-openai"
	"github.com/sony/gobreaker/v2"

	"github.com/JohnPlummer/chexprompt/evaluator"
)

var _ = Describe("Retry", func() {
	Describe("ClassifyAttempt", func() {
		It("should return the first choice text on success", func() {
			outcome := evaluator.ClassifyAttempt(chatResponse("hello"), nil)
			Expect(outcome.Kind).To(Equal(evaluator.OutcomeSuccess))
			Expect(outcome.Text).To(Equal("hello"))
		})

		It("should treat a reply without choices as empty text", func() {
			outcome := evaluator.ClassifyAttempt(openai.ChatCompletionResponse{}, nil)
			Expect(outcome.Kind).To(Equal(evaluator.OutcomeSuccess))
			Expect(outcome.Text).To(Equal(evaluator.EmptySentinel))
		})

		It("should read the suggested wait from a rate limit message", func() {
			err := &openai.APIError{
				Code:           "429",
				Message:        "Requests to the ChatCompletions_Create Operation have exceeded call rate limit. Please retry after 7 seconds.",
				HTTPStatusCode: 429,
			}
			outcome := evaluator.ClassifyAttempt(openai.ChatCompletionResponse{}, err)
			Expect(outcome.Kind).To(Equal(evaluator.OutcomeRateLimited))
			Expect(outcome.RetryAfter).To(Equal(7 * time.Second))
		})

		It("should default the suggested wait to zero", func() {
			err := &openai.APIError{Message: "Rate limit exceeded", HTTPStatusCode: 429}
			outcome := evaluator.ClassifyAttempt(openai.ChatCompletionResponse{}, err)
			Expect(outcome.Kind).To(Equal(evaluator.OutcomeRateLimited))
			Expect(outcome.RetryAfter).To(BeZero())
		})

		DescribeTable("should classify provider failures",
			func(err error, kind evaluator.OutcomeKind) {
				Expect(evaluator.ClassifyAttempt(openai.ChatCompletionResponse{}, err).Kind).To(Equal(kind))
			},
			Entry("content filter code", &openai.APIError{Code: "content_filter", HTTPStatusCode: 400}, evaluator.OutcomeFiltered),
			Entry("content filter inner error", &openai.APIError{HTTPStatusCode: 400, InnerError: &openai.InnerError{Code: "content_filter"}}, evaluator.OutcomeFiltered),
			Entry("bad request", &openai.APIError{HTTPStatusCode: 400}, evaluator.OutcomeFiltered),
			Entry("unknown deployment", &openai.APIError{HTTPStatusCode: 404}, evaluator.OutcomeFiltered),
			Entry("request timeout status", &openai.APIError{HTTPStatusCode: 408}, evaluator.OutcomeTransient),
			Entry("auth failure", &openai.APIError{HTTPStatusCode: 401}, evaluator.OutcomeFailed),
			Entry("server error", &openai.APIError{HTTPStatusCode: 500}, evaluator.OutcomeFailed),
			Entry("rate limited request error", &openai.RequestError{HTTPStatusCode: 429, Err: errors.New("slow down")}, evaluator.OutcomeRateLimited),
			Entry("gateway request error", &openai.RequestError{HTTPStatusCode: 502, Err: errors.New("bad gateway")}, evaluator.OutcomeFailed),
			Entry("deadline", fmt.Errorf("call: %w", context.DeadlineExceeded), evaluator.OutcomeTransient),
			Entry("cancelled", context.Canceled, evaluator.OutcomeFailed),
			Entry("connection refused", &url.Error{Op: "Post", URL: "https://example.invalid", Err: &net.OpError{Op: "dial", Err: errors.New("connection refused")}}, evaluator.OutcomeTransient),
			Entry("breaker open", gobreaker.ErrOpenState, evaluator.OutcomeTransient),
			Entry("unknown", errors.New("boom"), evaluator.OutcomeFailed),
		)
	})

	Describe("RateLimitDelay", func() {
		It("should grow with the square of the attempt index", func() {
			base := 30 * time.Second
			Expect(evaluator.RateLimitDelay(0, base, 0)).To(Equal(30 * time.Second))
			Expect(evaluator.RateLimitDelay(0, base, 1)).To(Equal(60 * time.Second))
			Expect(evaluator.RateLimitDelay(0, base, 2)).To(Equal(150 * time.Second))
			Expect(evaluator.RateLimitDelay(0, base, 3)).To(Equal(300 * time.Second))
			Expect(evaluator.RateLimitDelay(5*time.Second, base, 0)).To(Equal(35 * time.Second))
		})
	})

	Describe("DefaultRetryPolicy", func() {
		It("should use five attempts with 30s and 10s delays", func() {
			policy := evaluator.DefaultRetryPolicy()
			Expect(policy.MaxAttempts).To(Equal(5))
			Expect(policy.RateLimitBase).To(Equal(30 * time.Second))
			Expect(policy.TransientDelay).To(Equal(10 * time.Second))
		})
	})
})
