package evaluator

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/sashabaranov/go-openai"
)

// Evaluator rates candidate findings against reference findings.
type Evaluator struct {
	config  Config
	client  *CompletionClient
	metrics *MetricsRecorder
}

// New creates an Evaluator talking to the provider in cfg. Configuration
// problems are reported here and never per request.
func New(cfg Config) (*Evaluator, error) {
	if promptLoadError != nil {
		return nil, promptLoadError
	}

	metrics := NewMetricsRecorder(cfg.EnableMetrics)
	client, err := NewCompletionClient(cfg, metrics)
	if err != nil {
		return nil, err
	}

	slog.Info("Report evaluator created",
		"engine", cfg.Engine,
		"model", client.Model(),
		"api_type", cfg.Provider.APIType,
		"requests_per_minute", cfg.RequestsPerMinute,
		"max_retries", cfg.MaxRetries,
		"concurrent", cfg.Concurrent,
		"circuit_breaker", cfg.EnableCircuitBreaker)

	return &Evaluator{config: cfg, client: client, metrics: metrics}, nil
}

// NewWithClient creates an Evaluator that sends every request to api. The
// provider section of cfg is not used.
func NewWithClient(api OpenAIClient, cfg Config) (*Evaluator, error) {
	if promptLoadError != nil {
		return nil, promptLoadError
	}

	metrics := NewMetricsRecorder(cfg.EnableMetrics)
	client, err := NewCompletionClientWithAPI(api, cfg, metrics)
	if err != nil {
		return nil, err
	}
	return &Evaluator{config: cfg, client: client, metrics: metrics}, nil
}

// Evaluate rates every request and returns one result per request in input
// order. Items whose reply cannot be parsed are re-requested for up to
// MaxRetries rounds; items still unparseable keep nil tables. The error is
// non-nil only when ctx ended before the batch finished, and the results are
// complete even then.
func (e *Evaluator) Evaluate(ctx context.Context, requests []EvaluationRequest) ([]EvaluationResult, error) {
	batchID := uuid.NewString()
	start := time.Now()

	prompts := make([][]openai.ChatCompletionMessage, len(requests))
	for i, req := range requests {
		prompts[i] = BuildMessages(req.Reference, req.Candidate)
	}

	session := e.client.Open()
	defer session.Close()

	mode := "sequential"
	var ratings []Rating
	if e.config.Concurrent {
		mode = "concurrent"
		ratings = e.evaluateBatch(ctx, batchID, session, prompts)
	} else {
		ratings = e.evaluateSequential(ctx, batchID, session, prompts)
	}

	results := make([]EvaluationResult, len(requests))
	invalid := 0
	for i, req := range requests {
		results[i] = EvaluationResult{
			ID:        req.ID,
			Reference: req.Reference,
			Candidate: req.Candidate,
			Rating:    ratings[i],
		}
		if !ratings[i].Valid() {
			invalid++
		}
	}

	duration := time.Since(start)
	e.metrics.RecordBatch(mode, e.config.Engine, len(requests), duration.Seconds())
	e.metrics.RecordRatings(len(requests)-invalid, invalid)

	slog.Info("Batch evaluation completed",
		"batch_id", batchID,
		"mode", mode,
		"items", len(requests),
		"invalid", invalid,
		"duration", duration)

	return results, ctx.Err()
}

// EvaluatePair rates a single reference/candidate pair.
func (e *Evaluator) EvaluatePair(ctx context.Context, reference, candidate string) (Rating, error) {
	results, err := e.Evaluate(ctx, []EvaluationRequest{{Reference: reference, Candidate: candidate}})
	return results[0].Rating, err
}

// evaluateBatch dispatches every prompt at once, then re-dispatches only the
// invalid indices for up to MaxRetries rounds.
func (e *Evaluator) evaluateBatch(ctx context.Context, batchID string, session *Session, prompts [][]openai.ChatCompletionMessage) []Rating {
	ratings := make([]Rating, len(prompts))

	all := make([]int, len(prompts))
	for i := range all {
		all[i] = i
	}
	e.runRound(ctx, session, prompts, all, ratings)

	invalid := invalidIndices(ratings)
	for round := 1; round <= e.config.MaxRetries && len(invalid) > 0; round++ {
		if ctx.Err() != nil {
			break
		}
		slog.Warn("Found invalid ratings, retrying",
			"batch_id", batchID,
			"round", round,
			"invalid", len(invalid))
		e.metrics.RecordRetryRound(len(invalid))

		e.runRound(ctx, session, prompts, invalid, ratings)
		invalid = invalidIndices(ratings)
	}

	return ratings
}

// runRound completes and parses the prompts at indices, writing each rating
// into its slot.
func (e *Evaluator) runRound(ctx context.Context, session *Session, prompts [][]openai.ChatCompletionMessage, indices []int, ratings []Rating) {
	subset := make([][]openai.ChatCompletionMessage, len(indices))
	for k, idx := range indices {
		subset[k] = prompts[idx]
	}

	responses := session.CompleteAll(ctx, subset)
	for k, idx := range indices {
		ratings[idx] = ParseResponse(responses[k])
	}
}

// evaluateSequential rates one prompt at a time. Each item is re-requested
// while either table is nil, up to MaxRetries times.
func (e *Evaluator) evaluateSequential(ctx context.Context, batchID string, session *Session, prompts [][]openai.ChatCompletionMessage) []Rating {
	ratings := make([]Rating, len(prompts))

	for i, messages := range prompts {
		rating := ParseResponse(session.Complete(ctx, messages))
		for retries := 0; !rating.Valid() && retries < e.config.MaxRetries && ctx.Err() == nil; retries++ {
			slog.Warn("Invalid rating, retrying",
				"batch_id", batchID,
				"index", i,
				"retry", retries+1)
			rating = ParseResponse(session.Complete(ctx, messages))
		}
		ratings[i] = rating
	}

	return ratings
}

func invalidIndices(ratings []Rating) []int {
	var invalid []int
	for i, r := range ratings {
		if !r.Valid() {
			invalid = append(invalid, i)
		}
	}
	return invalid
}

// GetHealth returns the evaluator configuration and breaker state.
func (e *Evaluator) GetHealth(ctx context.Context) HealthStatus {
	health := HealthStatus{
		Healthy: true,
		Status:  "ok",
		Details: map[string]interface{}{},
	}
	if e.client.breaker != nil {
		health = e.client.breaker.GetHealth()
	}

	health.Details["evaluator"] = map[string]interface{}{
		"engine":                  e.config.Engine,
		"model":                   e.client.Model(),
		"requests_per_minute":     e.config.RequestsPerMinute,
		"max_retries":             e.config.MaxRetries,
		"concurrent":              e.config.Concurrent,
		"circuit_breaker_enabled": e.config.EnableCircuitBreaker,
		"metrics_enabled":         e.config.EnableMetrics,
	}
	return health
}
