// Package config loads and validates cognidex configuration.
//
// Configuration is resolved in priority order:
//  1. Environment variables (COGNIDEX_*) - highest priority
//  2. Config file (cognidex.yaml)
//  3. Built-in defaults
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	cerr "github.com/cognidex/cognidex/internal/errors"
)

// Config represents the complete cognidex configuration.
type Config struct {
	Version    int              `yaml:"version" json:"version"`
	Storage    StorageConfig    `yaml:"storage" json:"storage"`
	Chunking   ChunkingConfig   `yaml:"chunking" json:"chunking"`
	Embeddings EmbeddingsConfig `yaml:"embeddings" json:"embeddings"`
	Index      IndexConfig      `yaml:"index" json:"index"`
	Retrieval  RetrievalConfig  `yaml:"retrieval" json:"retrieval"`
	Generation GenerationConfig `yaml:"generation" json:"generation"`
	Ingest     IngestConfig     `yaml:"ingest" json:"ingest"`
	Logging    LoggingConfig    `yaml:"logging" json:"logging"`
}

// StorageConfig configures on-disk state locations.
type StorageConfig struct {
	// Root is the directory holding per-tenant vector index files.
	Root string `yaml:"root" json:"root"`
	// MetadataPath is the SQLite database path for chunk metadata.
	MetadataPath string `yaml:"metadata_path" json:"metadata_path"`
	// MaxLoadedIndexes bounds how many tenant indexes stay resident (LRU).
	MaxLoadedIndexes int `yaml:"max_loaded_indexes" json:"max_loaded_indexes"`
}

// ChunkingConfig configures the token-window chunker.
type ChunkingConfig struct {
	// MaxTokens is the window size in tokens.
	MaxTokens int `yaml:"max_tokens" json:"max_tokens"`
	// OverlapTokens is the overlap between consecutive windows.
	// Must be strictly less than MaxTokens.
	OverlapTokens int `yaml:"overlap_tokens" json:"overlap_tokens"`
	// Encoding is the tiktoken encoding name.
	Encoding string `yaml:"encoding" json:"encoding"`
}

// EmbeddingsConfig configures the embedding provider.
type EmbeddingsConfig struct {
	// Provider selects the backend: "openai" or "static".
	Provider   string        `yaml:"provider" json:"provider"`
	Model      string        `yaml:"model" json:"model"`
	Dimensions int           `yaml:"dimensions" json:"dimensions"`
	BatchSize  int           `yaml:"batch_size" json:"batch_size"`
	Timeout    time.Duration `yaml:"timeout" json:"timeout"`
	// BaseURL points the OpenAI-compatible client at a custom endpoint.
	BaseURL string `yaml:"base_url" json:"base_url"`
	// APIKeyEnv names the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env" json:"api_key_env"`
	// CacheSize is the LRU embedding cache size (0 disables caching).
	CacheSize int `yaml:"cache_size" json:"cache_size"`
}

// IndexConfig configures the per-tenant vector index.
type IndexConfig struct {
	// Backend selects the index implementation: "flat" (exact L2 scan,
	// default) or "hnsw" (approximate). Flat preserves the exact-search
	// ordering contract; hnsw trades recall for speed on large tenants.
	Backend string `yaml:"backend" json:"backend"`
}

// RetrievalConfig configures query-time ranking defaults.
type RetrievalConfig struct {
	// TopK is the default number of chunks to return.
	TopK int `yaml:"top_k" json:"top_k"`
	// FreshnessWeight is the default per-query freshness weight.
	FreshnessWeight float64 `yaml:"freshness_weight" json:"freshness_weight"`
	// ExcludeDeprecated drops deprecated chunks by default.
	ExcludeDeprecated bool `yaml:"exclude_deprecated" json:"exclude_deprecated"`
}

// GenerationConfig configures the answer generator.
type GenerationConfig struct {
	Model     string        `yaml:"model" json:"model"`
	BaseURL   string        `yaml:"base_url" json:"base_url"`
	APIKeyEnv string        `yaml:"api_key_env" json:"api_key_env"`
	Timeout   time.Duration `yaml:"timeout" json:"timeout"`
}

// IngestConfig configures the async ingestion runner.
type IngestConfig struct {
	// Workers is the number of concurrent ingestion workers.
	Workers int `yaml:"workers" json:"workers"`
	// QueueSize bounds the pending ingestion queue.
	QueueSize int `yaml:"queue_size" json:"queue_size"`
	// WatchDir, when set, is scanned for dropped files (directory ingestion).
	WatchDir string `yaml:"watch_dir" json:"watch_dir"`
	// WatchTenant is the tenant dropped files are ingested into.
	WatchTenant int64 `yaml:"watch_tenant" json:"watch_tenant"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level string `yaml:"level" json:"level"`
}

// CurrentVersion is the current config schema version.
const CurrentVersion = 1

// Default returns the default configuration.
func Default() *Config {
	dataDir := DefaultDataDir()
	return &Config{
		Version: CurrentVersion,
		Storage: StorageConfig{
			Root:             filepath.Join(dataDir, "indexes"),
			MetadataPath:     filepath.Join(dataDir, "metadata.db"),
			MaxLoadedIndexes: 64,
		},
		Chunking: ChunkingConfig{
			MaxTokens:     512,
			OverlapTokens: 50,
			Encoding:      "cl100k_base",
		},
		Embeddings: EmbeddingsConfig{
			Provider:   "openai",
			Model:      "text-embedding-3-small",
			Dimensions: 384,
			BatchSize:  32,
			Timeout:    60 * time.Second,
			APIKeyEnv:  "OPENAI_API_KEY",
			CacheSize:  1000,
		},
		Index: IndexConfig{
			Backend: "flat",
		},
		Retrieval: RetrievalConfig{
			TopK:              5,
			FreshnessWeight:   0.1,
			ExcludeDeprecated: true,
		},
		Generation: GenerationConfig{
			Model:     "gpt-4o-mini",
			APIKeyEnv: "OPENAI_API_KEY",
			Timeout:   60 * time.Second,
		},
		Ingest: IngestConfig{
			Workers:   2,
			QueueSize: 256,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
	}
}

// DefaultDataDir returns the default data directory (~/.cognidex).
func DefaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".cognidex")
	}
	return filepath.Join(home, ".cognidex")
}

// Load reads configuration from the given path, applying defaults for
// missing fields and environment overrides on top. A missing file is not an
// error; defaults are used.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, cerr.New(cerr.ErrCodeConfigNotFound,
					fmt.Sprintf("cannot read config %s", path), err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, cerr.ConfigError(fmt.Sprintf("invalid config %s", path), err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration to the given path as YAML.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Validate checks configuration invariants.
func (c *Config) Validate() error {
	if c.Chunking.MaxTokens <= 0 {
		return cerr.ConfigError("chunking.max_tokens must be positive", nil)
	}
	if c.Chunking.OverlapTokens < 0 {
		return cerr.ConfigError("chunking.overlap_tokens must not be negative", nil)
	}
	if c.Chunking.OverlapTokens >= c.Chunking.MaxTokens {
		return cerr.ConfigError("chunking.overlap_tokens must be less than max_tokens", nil)
	}
	if c.Embeddings.Dimensions <= 0 {
		return cerr.ConfigError("embeddings.dimensions must be positive", nil)
	}
	if c.Embeddings.BatchSize <= 0 {
		return cerr.ConfigError("embeddings.batch_size must be positive", nil)
	}
	switch c.Embeddings.Provider {
	case "openai", "static":
	default:
		return cerr.ConfigError(
			fmt.Sprintf("unknown embeddings provider %q (want openai or static)", c.Embeddings.Provider), nil)
	}
	switch c.Index.Backend {
	case "flat", "hnsw":
	default:
		return cerr.ConfigError(
			fmt.Sprintf("unknown index backend %q (want flat or hnsw)", c.Index.Backend), nil)
	}
	if c.Retrieval.TopK <= 0 {
		return cerr.ConfigError("retrieval.top_k must be positive", nil)
	}
	if c.Ingest.Workers <= 0 {
		return cerr.ConfigError("ingest.workers must be positive", nil)
	}
	return nil
}

// applyEnvOverrides applies COGNIDEX_* environment variables over the config.
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("COGNIDEX_STORAGE_ROOT"); v != "" {
		c.Storage.Root = v
	}
	if v := os.Getenv("COGNIDEX_METADATA_PATH"); v != "" {
		c.Storage.MetadataPath = v
	}
	if v := os.Getenv("COGNIDEX_CHUNK_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Chunking.MaxTokens = n
		}
	}
	if v := os.Getenv("COGNIDEX_CHUNK_OVERLAP_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n >= 0 {
			c.Chunking.OverlapTokens = n
		}
	}
	if v := os.Getenv("COGNIDEX_EMBEDDINGS_PROVIDER"); v != "" {
		c.Embeddings.Provider = v
	}
	if v := os.Getenv("COGNIDEX_EMBEDDINGS_MODEL"); v != "" {
		c.Embeddings.Model = v
	}
	if v := os.Getenv("COGNIDEX_EMBEDDINGS_BASE_URL"); v != "" {
		c.Embeddings.BaseURL = v
	}
	if v := os.Getenv("COGNIDEX_EMBEDDINGS_DIMENSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Embeddings.Dimensions = n
		}
	}
	if v := os.Getenv("COGNIDEX_INDEX_BACKEND"); v != "" {
		c.Index.Backend = v
	}
	if v := os.Getenv("COGNIDEX_TOP_K"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retrieval.TopK = n
		}
	}
	if v := os.Getenv("COGNIDEX_FRESHNESS_WEIGHT"); v != "" {
		if f, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil {
			c.Retrieval.FreshnessWeight = f
		}
	}
	if v := os.Getenv("COGNIDEX_GENERATION_MODEL"); v != "" {
		c.Generation.Model = v
	}
	if v := os.Getenv("COGNIDEX_GENERATION_BASE_URL"); v != "" {
		c.Generation.BaseURL = v
	}
	if v := os.Getenv("COGNIDEX_INGEST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Ingest.Workers = n
		}
	}
	if v := os.Getenv("COGNIDEX_LOG_LEVEL"); v != "" {
		c.Logging.Level = v
	}
}
