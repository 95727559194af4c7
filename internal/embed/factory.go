package embed

import (
	"fmt"
	"time"

	cerr "github.com/cognidex/cognidex/internal/errors"
)

// FactoryConfig selects and configures the embedding backend.
type FactoryConfig struct {
	// Provider selects the backend: "openai" or "static".
	Provider   string
	Model      string
	Dimensions int
	BatchSize  int
	Timeout    time.Duration
	BaseURL    string
	APIKeyEnv  string
	// CacheSize enables LRU caching when positive.
	CacheSize int
}

// NewEmbedder constructs the configured embedder, wrapped with caching when
// enabled. A backend that cannot initialize surfaces a model error; there is
// no silent fallback to a different backend, because mixing embedders of
// different models silently corrupts every tenant index built so far.
func NewEmbedder(cfg FactoryConfig) (Embedder, error) {
	var (
		inner Embedder
		err   error
	)

	switch cfg.Provider {
	case "static":
		inner = NewStaticEmbedderWithDimensions(cfg.Dimensions)
	case "openai", "":
		inner, err = NewOpenAIEmbedder(OpenAIConfig{
			BaseURL:    cfg.BaseURL,
			APIKeyEnv:  cfg.APIKeyEnv,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			BatchSize:  cfg.BatchSize,
			Timeout:    cfg.Timeout,
		})
		if err != nil {
			return nil, err
		}
	default:
		return nil, cerr.ConfigError(fmt.Sprintf("unknown embeddings provider %q", cfg.Provider), nil)
	}

	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(inner, cfg.CacheSize), nil
	}
	return inner, nil
}
