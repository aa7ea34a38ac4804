package evaluator

import (
	"fmt"
	"os"
	"slices"
	"sort"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

const (
	APITypeAzure  = "azure"
	APITypeOpenAI = "openai"

	DefaultEngine = "gpt-4t"
)

// engines maps supported engine aliases to provider model names.
var engines = map[string]string{
	"gpt-4t":      openai.GPT4Turbo1106,
	"gpt-4":       openai.GPT4,
	"gpt-4o":      openai.GPT4o,
	"gpt-4o-mini": openai.GPT4oMini,
}

// SupportedEngines returns the accepted engine aliases, sorted.
func SupportedEngines() []string {
	names := make([]string, 0, len(engines))
	for name := range engines {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ResolveEngine maps an engine alias to its provider model name.
func ResolveEngine(engine string) (string, error) {
	model, ok := engines[engine]
	if !ok {
		return "", fmt.Errorf("%w: %s, currently supporting %v", ErrUnsupportedEngine, engine, SupportedEngines())
	}
	return model, nil
}

// ProviderConfig locates and authenticates the chat completion endpoint. It is
// read once when the evaluator is built and never modified afterwards.
type ProviderConfig struct {
	APIType    string // "azure" (default) or "openai"
	BaseURL    string // e.g. https://{resource}.openai.azure.com/
	APIVersion string // e.g. 2023-07-01-preview, azure only
	APIKey     string
	Deployment string // Azure deployment name, defaults to the engine model
}

// LoadProviderConfigFromEnv reads OPENAI_API_TYPE, OPENAI_API_BASE,
// OPENAI_API_VERSION, OPENAI_API_KEY and OPENAI_DEPLOYMENT and validates them.
func LoadProviderConfigFromEnv() (ProviderConfig, error) {
	cfg := ProviderConfig{
		APIType:    os.Getenv("OPENAI_API_TYPE"),
		BaseURL:    os.Getenv("OPENAI_API_BASE"),
		APIVersion: os.Getenv("OPENAI_API_VERSION"),
		APIKey:     os.Getenv("OPENAI_API_KEY"),
		Deployment: os.Getenv("OPENAI_DEPLOYMENT"),
	}
	if cfg.APIType == "" {
		cfg.APIType = APITypeAzure
	}
	if err := cfg.Validate(); err != nil {
		return ProviderConfig{}, err
	}
	return cfg, nil
}

// Validate checks that the required endpoint values are present.
func (p ProviderConfig) Validate() error {
	if p.APIKey == "" {
		return ErrMissingAPIKey
	}

	switch strings.ToLower(p.APIType) {
	case "", APITypeAzure:
		if p.BaseURL == "" {
			return ErrMissingEndpoint
		}
		if p.APIVersion == "" {
			return ErrMissingAPIVersion
		}
	case APITypeOpenAI:
	default:
		return fmt.Errorf("%w: unknown API type %q", ErrInvalidConfig, p.APIType)
	}
	return nil
}

// clientConfig builds the go-openai client configuration for model.
func (p ProviderConfig) clientConfig(model string) openai.ClientConfig {
	if strings.EqualFold(p.APIType, APITypeOpenAI) {
		cfg := openai.DefaultConfig(p.APIKey)
		if p.BaseURL != "" {
			cfg.BaseURL = p.BaseURL
		}
		return cfg
	}

	cfg := openai.DefaultAzureConfig(p.APIKey, p.BaseURL)
	cfg.APIVersion = p.APIVersion
	deployment := p.Deployment
	if deployment == "" {
		deployment = model
	}
	cfg.AzureModelMapperFunc = func(string) string {
		return deployment
	}
	return cfg
}

// NewDefaultConfig creates a config with the defaults of the original rating
// tool: gpt-4t, temperature 0, 128 tokens, top_p 0.9, 30 requests per minute
// and one re-evaluation round.
func NewDefaultConfig(provider ProviderConfig) Config {
	return Config{
		Provider:          provider,
		Engine:            DefaultEngine,
		Temperature:       0,
		MaxTokens:         128,
		TopP:              0.9,
		RequestsPerMinute: 30,
		MaxRetries:        1,
		RequestTimeout:    60 * time.Second,
	}
}

// WithEngine sets the engine alias
func (c Config) WithEngine(engine string) Config {
	c.Engine = engine
	return c
}

// WithSampling sets temperature and top_p
func (c Config) WithSampling(temperature, topP float32) Config {
	c.Temperature = temperature
	c.TopP = topP
	return c
}

// WithPenalties sets the frequency and presence penalties
func (c Config) WithPenalties(frequency, presence float32) Config {
	c.FrequencyPenalty = frequency
	c.PresencePenalty = presence
	return c
}

// WithMaxTokens sets the completion token limit
func (c Config) WithMaxTokens(n int) Config {
	c.MaxTokens = n
	return c
}

// WithStop sets the stop sequences
func (c Config) WithStop(stop ...string) Config {
	c.Stop = slices.Clone(stop)
	return c
}

// WithRequestsPerMinute sets the rolling minute request ceiling
func (c Config) WithRequestsPerMinute(rpm int) Config {
	c.RequestsPerMinute = rpm
	return c
}

// WithMaxRetries sets the number of re-evaluation rounds
func (c Config) WithMaxRetries(n int) Config {
	c.MaxRetries = n
	return c
}

// WithConcurrent switches between whole batch dispatch and one at a time
func (c Config) WithConcurrent(concurrent bool) Config {
	c.Concurrent = concurrent
	return c
}

// WithTimeout sets the per attempt timeout
func (c Config) WithTimeout(timeout time.Duration) Config {
	c.RequestTimeout = timeout
	return c
}

// WithRetryPolicy sets the per request retry policy
func (c Config) WithRetryPolicy(policy *RetryPolicy) Config {
	c.Retry = policy
	return c
}

// WithCircuitBreaker enables circuit breaker with default settings
func (c Config) WithCircuitBreaker() Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = DefaultCircuitBreakerConfig()
	return c
}

// WithCircuitBreakerConfig enables circuit breaker with custom settings
func (c Config) WithCircuitBreakerConfig(config *CircuitBreakerConfig) Config {
	c.EnableCircuitBreaker = true
	c.CircuitBreakerConfig = config
	return c
}

// WithMetrics toggles Prometheus metrics
func (c Config) WithMetrics(enabled bool) Config {
	c.EnableMetrics = enabled
	return c
}

// Validate checks if the config is valid
func (c Config) Validate() error {
	if err := c.Provider.Validate(); err != nil {
		return err
	}
	return c.validateSettings()
}

// validateSettings checks everything but the provider section, which clients
// built around a caller supplied API do not use.
func (c Config) validateSettings() error {
	if _, err := ResolveEngine(c.Engine); err != nil {
		return err
	}

	if c.Temperature < 0 || c.Temperature > 2 {
		return fmt.Errorf("%w: temperature must be between 0 and 2", ErrInvalidConfig)
	}

	if c.TopP < 0 || c.TopP > 1 {
		return fmt.Errorf("%w: top_p must be between 0 and 1", ErrInvalidConfig)
	}

	if c.FrequencyPenalty < -2 || c.FrequencyPenalty > 2 || c.PresencePenalty < -2 || c.PresencePenalty > 2 {
		return fmt.Errorf("%w: penalties must be between -2 and 2", ErrInvalidConfig)
	}

	if c.MaxTokens <= 0 {
		return fmt.Errorf("%w: max_tokens must be positive", ErrInvalidConfig)
	}

	if c.RequestsPerMinute < 0 {
		return fmt.Errorf("%w: requests_per_minute must be non-negative", ErrInvalidConfig)
	}

	if c.MaxRetries < 0 {
		return fmt.Errorf("%w: max_retries must be non-negative", ErrInvalidConfig)
	}

	if c.RequestTimeout < 0 {
		return fmt.Errorf("%w: timeout must be non-negative", ErrInvalidConfig)
	}

	if c.Retry != nil {
		if c.Retry.MaxAttempts <= 0 {
			return fmt.Errorf("%w: retry MaxAttempts must be positive", ErrInvalidConfig)
		}
		if c.Retry.RateLimitBase < 0 || c.Retry.TransientDelay < 0 {
			return fmt.Errorf("%w: retry delays must be non-negative", ErrInvalidConfig)
		}
	}

	return nil
}

// retryPolicy returns the configured policy or the default one.
func (c Config) retryPolicy() *RetryPolicy {
	if c.Retry != nil {
		return c.Retry
	}
	return DefaultRetryPolicy()
}
