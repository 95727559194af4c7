package embed

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	openai "github.com/sashabaranov/go-openai"

	cerr "github.com/cognidex/cognidex/internal/errors"
)

// OpenAIConfig configures the OpenAI-compatible embedding backend.
type OpenAIConfig struct {
	// BaseURL points the client at a custom OpenAI-compatible endpoint.
	// Empty uses the default OpenAI API.
	BaseURL string
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string
	// Model is the embedding model name.
	Model string
	// Dimensions is the expected output dimension. Required: the per-tenant
	// index is created with this dimension and never migrates.
	Dimensions int
	// BatchSize bounds texts per request.
	BatchSize int
	// Timeout bounds each embedding request.
	Timeout time.Duration
}

// OpenAIEmbedder generates embeddings via an OpenAI-compatible API.
// All transport failures are wrapped as model errors so the orchestrator and
// retrieval engine can apply a uniform retry/fallback policy.
type OpenAIEmbedder struct {
	client  *openai.Client
	config  OpenAIConfig
	breaker *cerr.CircuitBreaker

	mu     sync.RWMutex
	closed bool
}

// Verify interface implementation at compile time.
var _ Embedder = (*OpenAIEmbedder)(nil)

// NewOpenAIEmbedder creates an embedder backed by an OpenAI-compatible API.
func NewOpenAIEmbedder(cfg OpenAIConfig) (*OpenAIEmbedder, error) {
	if cfg.Model == "" {
		cfg.Model = string(openai.SmallEmbedding3)
	}
	if cfg.Dimensions <= 0 {
		return nil, cerr.ConfigError("embedding dimensions must be positive", nil)
	}
	if cfg.BatchSize <= 0 || cfg.BatchSize > MaxBatchSize {
		cfg.BatchSize = DefaultBatchSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.APIKeyEnv == "" {
		cfg.APIKeyEnv = "OPENAI_API_KEY"
	}

	key := os.Getenv(cfg.APIKeyEnv)
	if key == "" {
		return nil, cerr.ModelUnavailable(
			fmt.Sprintf("missing API key in env %s", cfg.APIKeyEnv), nil)
	}

	clientCfg := openai.DefaultConfig(key)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}

	return &OpenAIEmbedder{
		client:  openai.NewClientWithConfig(clientCfg),
		config:  cfg,
		breaker: cerr.NewCircuitBreaker("embeddings"),
	}, nil
}

// Embed generates an embedding for a single text.
func (e *OpenAIEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch generates embeddings for multiple texts, splitting into
// API-sized batches as needed. Results preserve input order.
func (e *OpenAIEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, fmt.Errorf("embedder is closed")
	}
	e.mu.RUnlock()

	if len(texts) == 0 {
		return [][]float32{}, nil
	}

	vectors := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += e.config.BatchSize {
		end := start + e.config.BatchSize
		if end > len(texts) {
			end = len(texts)
		}

		batch, err := e.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, err
		}
		vectors = append(vectors, batch...)
	}

	return vectors, nil
}

// embedRequest performs one embeddings API call through the circuit
// breaker. A backend that keeps failing trips the breaker, so callers fail
// fast instead of waiting out the timeout on every request.
func (e *OpenAIEmbedder) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	var vectors [][]float32
	err := e.breaker.Execute(func() error {
		var reqErr error
		vectors, reqErr = e.doEmbedRequest(ctx, texts)
		return reqErr
	})
	if err == cerr.ErrCircuitOpen {
		return nil, cerr.ModelUnavailable("embedding backend circuit open", err)
	}
	if err != nil {
		return nil, err
	}
	return vectors, nil
}

func (e *OpenAIEmbedder) doEmbedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	reqCtx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	resp, err := e.client.CreateEmbeddings(reqCtx, openai.EmbeddingRequestStrings{
		Input:      texts,
		Model:      openai.EmbeddingModel(e.config.Model),
		Dimensions: e.config.Dimensions,
	})
	if err != nil {
		if reqCtx.Err() == context.DeadlineExceeded {
			return nil, cerr.New(cerr.ErrCodeModelTimeout,
				fmt.Sprintf("embedding request timed out after %s", e.config.Timeout), err)
		}
		return nil, cerr.ModelUnavailable("embedding request failed", err)
	}

	if len(resp.Data) != len(texts) {
		return nil, cerr.ModelUnavailable(
			fmt.Sprintf("embedding response count mismatch: want %d, got %d", len(texts), len(resp.Data)), nil)
	}

	vectors := make([][]float32, len(texts))
	for _, d := range resp.Data {
		if d.Index < 0 || d.Index >= len(texts) {
			return nil, cerr.ModelUnavailable(
				fmt.Sprintf("embedding response index %d out of range", d.Index), nil)
		}
		if len(d.Embedding) != e.config.Dimensions {
			return nil, cerr.New(cerr.ErrCodeDimensionMismatch,
				fmt.Sprintf("expected %d dimensions, got %d", e.config.Dimensions, len(d.Embedding)), nil)
		}
		vectors[d.Index] = d.Embedding
	}

	return vectors, nil
}

// Dimensions returns the embedding dimension.
func (e *OpenAIEmbedder) Dimensions() int { return e.config.Dimensions }

// ModelName returns the model identifier.
func (e *OpenAIEmbedder) ModelName() string { return e.config.Model }

// Available probes the backend with a minimal embedding request.
func (e *OpenAIEmbedder) Available(ctx context.Context) bool {
	_, err := e.Embed(ctx, "ping")
	return err == nil
}

// Close releases resources.
func (e *OpenAIEmbedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}
