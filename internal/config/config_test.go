package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	cerr "github.com/cognidex/cognidex/internal/errors"
)

func TestDefault_IsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "flat", cfg.Index.Backend)
	assert.Equal(t, "cl100k_base", cfg.Chunking.Encoding)
	assert.True(t, cfg.Retrieval.ExcludeDeprecated)
}

func TestLoad_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default().Chunking.MaxTokens, cfg.Chunking.MaxTokens)
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cognidex.yaml")
	content := `
chunking:
  max_tokens: 256
  overlap_tokens: 32
retrieval:
  top_k: 10
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 256, cfg.Chunking.MaxTokens)
	assert.Equal(t, 32, cfg.Chunking.OverlapTokens)
	assert.Equal(t, 10, cfg.Retrieval.TopK)
	// Untouched sections keep defaults.
	assert.Equal(t, "openai", cfg.Embeddings.Provider)
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cognidex.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retrieval:\n  top_k: 10\n"), 0o644))

	t.Setenv("COGNIDEX_TOP_K", "3")
	t.Setenv("COGNIDEX_EMBEDDINGS_PROVIDER", "static")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Retrieval.TopK)
	assert.Equal(t, "static", cfg.Embeddings.Provider)
}

func TestValidate_Errors(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"overlap equals max", func(c *Config) { c.Chunking.OverlapTokens = c.Chunking.MaxTokens }},
		{"overlap above max", func(c *Config) { c.Chunking.OverlapTokens = c.Chunking.MaxTokens + 1 }},
		{"zero max tokens", func(c *Config) { c.Chunking.MaxTokens = 0 }},
		{"negative overlap", func(c *Config) { c.Chunking.OverlapTokens = -1 }},
		{"zero dimensions", func(c *Config) { c.Embeddings.Dimensions = 0 }},
		{"bad provider", func(c *Config) { c.Embeddings.Provider = "psychic" }},
		{"bad backend", func(c *Config) { c.Index.Backend = "btree" }},
		{"zero top_k", func(c *Config) { c.Retrieval.TopK = 0 }},
		{"zero workers", func(c *Config) { c.Ingest.Workers = 0 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Equal(t, cerr.ErrCodeConfigInvalid, cerr.GetCode(err))
		})
	}
}

func TestSaveAndReload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "cognidex.yaml")

	cfg := Default()
	cfg.Retrieval.TopK = 7
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Retrieval.TopK)
}
