// Package embeddings provides the optional embedding-provider adapter
// for semantic variant scoring. Dispatch is rate-limited and
// semaphore-bounded so a slow or rate-limited upstream never backs up
// the screening pipeline; callers that need a result within budget
// should treat a provider error or timeout as "fall back to the
// TF-IDF vector index only" (spec.md §4.L error-rule table,
// errs.KindEmbedding).
package embeddings

import (
	"context"
	"fmt"
	"time"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"golang.org/x/time/rate"

	"github.com/dariapavlova/sanctions-screen/internal/metrics"
)

// Provider is the minimal embedding-provider contract. Swappable so a
// test double or a non-OpenAI provider can stand in without touching
// callers.
type Provider interface {
	Embed(ctx context.Context, texts []string) ([][]float64, error)
}

// OpenAIProvider implements Provider using the official OpenAI Go SDK,
// following laplaque-ai-anonymizing-proxy's upstream-client
// construction idiom (functional options over a config struct).
type OpenAIProvider struct {
	client openai.Client
	model  string
}

// Option configures an OpenAIProvider.
type Option func(*openaiConfig)

type openaiConfig struct {
	model   string
	apiKey  string
	baseURL string
	timeout time.Duration
}

// WithModel sets the embedding model (default: "text-embedding-3-small").
func WithModel(model string) Option { return func(c *openaiConfig) { c.model = model } }

// WithAPIKey sets the API key. If empty, the SDK falls back to
// OPENAI_API_KEY from the environment.
func WithAPIKey(key string) Option { return func(c *openaiConfig) { c.apiKey = key } }

// WithBaseURL points the client at an OpenAI-compatible endpoint.
func WithBaseURL(url string) Option { return func(c *openaiConfig) { c.baseURL = url } }

// WithTimeout sets the per-request timeout (default: 30s).
func WithTimeout(d time.Duration) Option { return func(c *openaiConfig) { c.timeout = d } }

// NewOpenAIProvider constructs an OpenAIProvider from opts.
func NewOpenAIProvider(opts ...Option) *OpenAIProvider {
	cfg := openaiConfig{model: "text-embedding-3-small", timeout: 30 * time.Second}
	for _, o := range opts {
		o(&cfg)
	}

	var clientOpts []option.RequestOption
	if cfg.apiKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(cfg.apiKey))
	}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	clientOpts = append(clientOpts, option.WithRequestTimeout(cfg.timeout))

	return &OpenAIProvider{client: openai.NewClient(clientOpts...), model: cfg.model}
}

// Embed calls the OpenAI embeddings endpoint for every text and
// returns one vector per input, in order.
//
// ASSUMPTION (see DESIGN.md): the retrieved pack snippets show the
// openai-go/v3 chat-completions call shape
// (client.Chat.Completions.New) but not its Embeddings API; this
// method's exact field names (EmbeddingNewParams{Input, Model}) are a
// plausible extrapolation from that same client's method-group
// convention, not a signature observed directly in the pack.
func (p *OpenAIProvider) Embed(ctx context.Context, texts []string) ([][]float64, error) {
	resp, err := p.client.Embeddings.New(ctx, openai.EmbeddingNewParams{
		Input: openai.EmbeddingNewParamsInputUnion{OfArrayOfStrings: texts},
		Model: openai.EmbeddingModel(p.model),
	})
	if err != nil {
		return nil, fmt.Errorf("embeddings.New: %w", err)
	}
	out := make([][]float64, len(resp.Data))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Dispatcher rate-limits and bounds concurrent calls to a Provider,
// and records dispatch/error/fallback counts to metrics.Metrics —
// the same atomic counters internal/metrics already exposes as
// EmbeddingDispatches/EmbeddingErrors/EmbeddingFallbacks.
type Dispatcher struct {
	provider Provider
	limiter  *rate.Limiter
	sem      chan struct{}
	metrics  *metrics.Metrics
}

// NewDispatcher wraps provider with a token-bucket rate limiter
// (ratePerSecond, burst) and a concurrency bound (maxConcurrent).
func NewDispatcher(provider Provider, ratePerSecond float64, burst, maxConcurrent int, m *metrics.Metrics) *Dispatcher {
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return &Dispatcher{
		provider: provider,
		limiter:  rate.NewLimiter(rate.Limit(ratePerSecond), burst),
		sem:      make(chan struct{}, maxConcurrent),
		metrics:  m,
	}
}

// Dispatch embeds texts, blocking on the rate limiter and concurrency
// semaphore until ctx allows it to proceed or is canceled. On any
// error (including ctx deadline) it records an EmbeddingError and
// EmbeddingFallback and returns the error — callers fall back to
// TF-IDF-only scoring per spec.md §4.L.
func (d *Dispatcher) Dispatch(ctx context.Context, texts []string) ([][]float64, error) {
	if err := d.limiter.Wait(ctx); err != nil {
		d.recordFallback()
		return nil, fmt.Errorf("rate limiter wait: %w", err)
	}

	select {
	case d.sem <- struct{}{}:
	case <-ctx.Done():
		d.recordFallback()
		return nil, ctx.Err()
	}
	defer func() { <-d.sem }()

	if d.metrics != nil {
		d.metrics.EmbeddingDispatches.Add(1)
	}

	vectors, err := d.provider.Embed(ctx, texts)
	if err != nil {
		d.recordFallback()
		return nil, err
	}
	return vectors, nil
}

func (d *Dispatcher) recordFallback() {
	if d.metrics == nil {
		return
	}
	d.metrics.EmbeddingErrors.Add(1)
	d.metrics.EmbeddingFallbacks.Add(1)
}
