package evaluator_test

import (
	"context"
	"io"
	"net/http/httptest"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/JohnPlummer/chexprompt/evaluator"
)

var _ = Describe("Metrics", func() {
	scrape := func() string {
		rec := httptest.NewRecorder()
		evaluator.GetMetricsHandler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
		body, err := io.ReadAll(rec.Result().Body)
		Expect(err).ToNot(HaveOccurred())
		return string(body)
	}

	It("should tolerate a nil or disabled recorder", func() {
		var nilRecorder *evaluator.MetricsRecorder
		Expect(func() {
			nilRecorder.RecordBatch("sequential", "gpt-4t", 1, 0.1)
			evaluator.NewMetricsRecorder(false).RecordRetry("rate_limit")
		}).ToNot(Panic())
	})

	It("should export batch and call metrics after an evaluation", func() {
		mockAPI := newMockAPIClient(func(string, int) (string, error) {
			return ratingText(zeroCounts, zeroCounts), nil
		})
		ev, err := evaluator.NewWithClient(mockAPI, testConfig().WithConcurrent(true).WithMetrics(true))
		Expect(err).ToNot(HaveOccurred())

		_, err = ev.Evaluate(context.Background(), []evaluator.EvaluationRequest{
			{ID: "1", Reference: "ref", Candidate: "cand"},
		})
		Expect(err).ToNot(HaveOccurred())

		body := scrape()
		Expect(body).To(ContainSubstring(`report_evaluator_batches_total{engine="gpt-4t",mode="concurrent"}`))
		Expect(body).To(ContainSubstring(`report_evaluator_ratings_total{valid="true"}`))
		Expect(body).To(ContainSubstring(`report_evaluator_api_call_duration_seconds_count{outcome="success"}`))
	})
})
