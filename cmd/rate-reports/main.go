// Command rate-reports rates a JSONL file of reference/candidate report pairs
// and writes the ratings to <output-dir>/<rating-name>.jsonl.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JohnPlummer/chexprompt"
	"github.com/JohnPlummer/chexprompt/evaluator"
)

type options struct {
	ratingName       string
	outputDir        string
	inputPath        string
	engine           string
	temperature      float32
	maxTokens        int
	topP             float32
	maxRequestPerMin int
	useAsync         bool
	maxRetries       int
	envFile          string
	metricsAddr      string
	verbose          bool
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:          "rate-reports",
		Short:        "Rate a batch of generated radiology reports against references",
		Version:      chexprompt.GetVersion().Version,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), opts)
		},
	}

	f := cmd.Flags()
	f.StringVar(&opts.ratingName, "rating-name", "", "Name of rating to be saved to output directory")
	f.StringVar(&opts.outputDir, "output-dir", "", "Path to directory to save output reports")
	f.StringVar(&opts.inputPath, "input-fpath", "", "Path to file containing reports to rate")
	f.StringVar(&opts.engine, "engine", evaluator.DefaultEngine, fmt.Sprintf("The model to use for scoring the reports %v", evaluator.SupportedEngines()))
	f.Float32Var(&opts.temperature, "temperature", 0.4, "The sampling temperature")
	f.IntVar(&opts.maxTokens, "max-tokens", 128, "The maximum number of tokens to generate")
	f.Float32Var(&opts.topP, "top-p", 0.95, "The nucleus sampling probability")
	f.IntVar(&opts.maxRequestPerMin, "max-request-per-min", 30, "The maximum number of requests per minute")
	f.BoolVar(&opts.useAsync, "use-async", true, "Dispatch the whole batch concurrently")
	f.IntVar(&opts.maxRetries, "max-retries", 1, "Re-evaluation rounds for unparseable ratings")
	f.StringVar(&opts.envFile, "env-file", ".env", "Optional dotenv file with OPENAI_* settings")
	f.StringVar(&opts.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while rating")
	f.BoolVarP(&opts.verbose, "verbose", "v", false, "Enable debug logging")

	for _, name := range []string{"rating-name", "output-dir", "input-fpath"} {
		_ = cmd.MarkFlagRequired(name)
	}

	return cmd
}

func run(ctx context.Context, opts *options) error {
	if opts.verbose {
		slog.SetLogLoggerLevel(slog.LevelDebug)
	}

	if strings.TrimSpace(opts.ratingName) == "" {
		return errors.New("rating name cannot be empty")
	}

	if opts.envFile != "" {
		if err := godotenv.Load(opts.envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to load %s: %w", opts.envFile, err)
		}
	}

	provider, err := evaluator.LoadProviderConfigFromEnv()
	if err != nil {
		return err
	}

	cfg := evaluator.NewDefaultConfig(provider).
		WithEngine(opts.engine).
		WithSampling(opts.temperature, opts.topP).
		WithMaxTokens(opts.maxTokens).
		WithRequestsPerMinute(opts.maxRequestPerMin).
		WithMaxRetries(opts.maxRetries).
		WithConcurrent(opts.useAsync).
		WithMetrics(opts.metricsAddr != "")

	ev, err := evaluator.New(cfg)
	if err != nil {
		return err
	}

	requests, err := evaluator.LoadRequests(opts.inputPath)
	if err != nil {
		return err
	}
	// Suspect items are still rated; the model decides what an empty
	// candidate is worth.
	if results, err := evaluator.ValidateRequests(requests); err != nil {
		slog.Warn("Input has suspect requests, rating them anyway", "error", err)
		for _, line := range evaluator.ValidationSummary(requests, results) {
			slog.Warn("Suspect request", "issue", line)
		}
	}

	outputPath := filepath.Join(opts.outputDir, opts.ratingName+".jsonl")
	if _, err := os.Stat(outputPath); err == nil {
		slog.Warn("Output file already exists, overwriting", "path", outputPath)
	}
	if err := os.MkdirAll(opts.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	if opts.metricsAddr != "" {
		srv := serveMetrics(opts.metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	slog.Info("Rating reports",
		"input", opts.inputPath,
		"items", len(requests),
		"engine", opts.engine)

	results, evalErr := ev.Evaluate(ctx, requests)

	if err := evaluator.SaveResults(outputPath, results); err != nil {
		return err
	}

	invalid := 0
	for _, r := range results {
		if !r.Rating.Valid() {
			invalid++
		}
	}
	slog.Info("Ratings saved",
		"path", outputPath,
		"items", len(results),
		"invalid", invalid)

	return evalErr
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", evaluator.GetMetricsHandler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server failed", "error", err)
		}
	}()
	return srv
}
