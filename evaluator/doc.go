// Package evaluator scores generated radiology report findings against reference
// findings by asking an OpenAI-compatible chat model to count errors, parsing the
// structured counts out of its reply, and aggregating the results over a batch.
//
// The package provides rate limited concurrent dispatch, bounded per-request
// retries for transient provider failures, and batch-level re-evaluation of
// items whose model reply could not be parsed.
//
// Features:
//   - Fixed few-shot prompt with six error categories (A-F)
//   - Strict parsing of significant and insignificant error count tables
//   - Rolling 60 second requests-per-minute ceiling shared by a batch
//   - Retry with provider aware backoff for rate limits and timeouts
//   - Sentinel responses instead of errors for unrecoverable provider failures
//   - Optional circuit breaker and Prometheus metrics
//   - JSONL input and output helpers
//
// Basic usage:
//
//	provider, err := evaluator.LoadProviderConfigFromEnv()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg := evaluator.NewDefaultConfig(provider).WithConcurrent(true)
//	ev, err := evaluator.New(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	results, err := ev.Evaluate(ctx, requests)
package evaluator
