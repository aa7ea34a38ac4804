package evaluator

import (
	"context"
	"log/slog"
	"math"
	"net/http"
	"time"

	"github.com/sashabaranov/go-openai"
	"golang.org/x/sync/errgroup"
)

// sessionFactory opens the provider client for one session and returns a
// function releasing its network resources.
type sessionFactory func() (OpenAIClient, func())

// CompletionClient issues rate limited chat completions with bounded retries.
// It holds only immutable configuration; network state lives in a Session.
type CompletionClient struct {
	model      string
	config     Config
	policy     *RetryPolicy
	newSession sessionFactory
	breaker    *CircuitBreaker
	metrics    *MetricsRecorder
}

// NewCompletionClient creates a client talking to the configured provider.
func NewCompletionClient(cfg Config, metrics *MetricsRecorder) (*CompletionClient, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	model, _ := ResolveEngine(cfg.Engine)
	clientConfig := cfg.Provider.clientConfig(model)

	factory := func() (OpenAIClient, func()) {
		transport := http.DefaultTransport.(*http.Transport).Clone()
		sessionConfig := clientConfig
		sessionConfig.HTTPClient = &http.Client{Transport: transport}
		return openai.NewClientWithConfig(sessionConfig), transport.CloseIdleConnections
	}
	return newCompletionClient(cfg, model, factory, metrics), nil
}

// NewCompletionClientWithAPI creates a client that sends every request to api.
// Sessions share api and closing them is a no-op. The provider section of cfg
// is not validated.
func NewCompletionClientWithAPI(api OpenAIClient, cfg Config, metrics *MetricsRecorder) (*CompletionClient, error) {
	if err := cfg.validateSettings(); err != nil {
		return nil, err
	}
	model, _ := ResolveEngine(cfg.Engine)
	factory := func() (OpenAIClient, func()) {
		return api, func() {}
	}
	return newCompletionClient(cfg, model, factory, metrics), nil
}

func newCompletionClient(cfg Config, model string, factory sessionFactory, metrics *MetricsRecorder) *CompletionClient {
	c := &CompletionClient{
		model:      model,
		config:     cfg,
		policy:     cfg.retryPolicy(),
		newSession: factory,
		metrics:    metrics,
	}
	if cfg.EnableCircuitBreaker {
		c.breaker = NewCircuitBreaker(cfg.CircuitBreakerConfig, metrics)
	}
	return c
}

// Model returns the provider model name requests are sent with.
func (c *CompletionClient) Model() string {
	return c.model
}

// Open starts a session: one network client and one rate limiter shared by
// every request made through it. Close it when the batch is done.
func (c *CompletionClient) Open() *Session {
	api, closeFn := c.newSession()
	if c.breaker != nil {
		api = c.breaker.Wrap(api)
	}
	return &Session{
		client:  c,
		api:     api,
		limiter: NewRequestsPerMinuteLimiter(c.config.RequestsPerMinute),
		closeFn: closeFn,
	}
}

// Complete sends one prompt in a session of its own.
func (c *CompletionClient) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) string {
	s := c.Open()
	defer s.Close()
	return s.Complete(ctx, messages)
}

// CompleteAll sends all prompts concurrently in a session of their own.
func (c *CompletionClient) CompleteAll(ctx context.Context, prompts [][]openai.ChatCompletionMessage) []string {
	s := c.Open()
	defer s.Close()
	return s.CompleteAll(ctx, prompts)
}

// buildRequest assembles the chat completion request for messages. go-openai
// omits zero floats, so zero temperature and top_p are sent as the smallest
// positive value to keep them from falling back to provider defaults.
func (c *CompletionClient) buildRequest(messages []openai.ChatCompletionMessage) openai.ChatCompletionRequest {
	return openai.ChatCompletionRequest{
		Model:            c.model,
		Messages:         messages,
		Temperature:      nonZero(c.config.Temperature),
		MaxTokens:        c.config.MaxTokens,
		TopP:             nonZero(c.config.TopP),
		FrequencyPenalty: c.config.FrequencyPenalty,
		PresencePenalty:  c.config.PresencePenalty,
		Stop:             c.config.Stop,
	}
}

func nonZero(v float32) float32 {
	if v == 0 {
		return math.SmallestNonzeroFloat32
	}
	return v
}

// Session is one network session with its rate limiter.
type Session struct {
	client  *CompletionClient
	api     OpenAIClient
	limiter *WindowLimiter
	closeFn func()
}

// Close releases the session's network resources.
func (s *Session) Close() {
	s.closeFn()
}

// Complete waits for rate limiter admission and then runs the retry loop for
// one prompt. The result is the reply text, FilteredSentinel or EmptySentinel.
func (s *Session) Complete(ctx context.Context, messages []openai.ChatCompletionMessage) string {
	metrics := s.client.metrics

	start := time.Now()
	if err := s.limiter.Wait(ctx); err != nil {
		slog.Warn("Rate limiter wait aborted", "error", err)
		return EmptySentinel
	}
	metrics.RecordLimiterWait(time.Since(start).Seconds())

	metrics.RecordInFlight(1)
	defer metrics.RecordInFlight(-1)

	req := s.client.buildRequest(messages)
	timeout := s.client.config.RequestTimeout
	return completeWithRetry(ctx, s.client.policy, metrics, func(ctx context.Context) (openai.ChatCompletionResponse, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		return s.api.CreateChatCompletion(ctx, req)
	})
}

// CompleteAll runs Complete for every prompt concurrently and returns the
// replies in prompt order once all of them have resolved.
func (s *Session) CompleteAll(ctx context.Context, prompts [][]openai.ChatCompletionMessage) []string {
	responses := make([]string, len(prompts))

	var g errgroup.Group
	for i, messages := range prompts {
		i, messages := i, messages
		g.Go(func() error {
			responses[i] = s.Complete(ctx, messages)
			return nil
		})
	}
	_ = g.Wait()

	return responses
}
