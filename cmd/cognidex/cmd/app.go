package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/cognidex/cognidex/internal/answer"
	"github.com/cognidex/cognidex/internal/chunk"
	"github.com/cognidex/cognidex/internal/config"
	"github.com/cognidex/cognidex/internal/embed"
	cerr "github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/ingest"
	"github.com/cognidex/cognidex/internal/logging"
	"github.com/cognidex/cognidex/internal/retrieve"
	"github.com/cognidex/cognidex/internal/store"
)

// app bundles the wired pipeline components behind every command. The
// metadata store and tenant indexes are opened eagerly; the embedder and
// anything depending on it are built on first use so commands that never
// embed (stats, watch setup failures) work without an API key.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	meta    *store.SQLiteStore
	indexes *store.TenantIndexes

	embedder embed.Embedder
	orch     *ingest.Orchestrator

	cleanups []func()
}

// openApp loads configuration and opens the persistence layers.
func openApp(path string) (*app, error) {
	cfg, err := config.Load(path)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: slog.Default()}

	if !debugMode {
		logCfg := logging.DefaultConfig()
		logCfg.Level = cfg.Logging.Level
		logCfg.WriteToStderr = false
		if logger, cleanup, err := logging.Setup(logCfg); err == nil {
			a.logger = logger
			slog.SetDefault(logger)
			a.cleanups = append(a.cleanups, cleanup)
		}
	}

	if err := os.MkdirAll(filepath.Dir(cfg.Storage.MetadataPath), 0o755); err != nil {
		a.Close()
		return nil, fmt.Errorf("creating data directory: %w", err)
	}

	meta, err := store.NewSQLiteStore(cfg.Storage.MetadataPath, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.meta = meta
	a.cleanups = append(a.cleanups, func() { _ = meta.Close() })

	indexes, err := store.NewTenantIndexes(store.TenantIndexesConfig{
		Root:             cfg.Storage.Root,
		Dimensions:       cfg.Embeddings.Dimensions,
		Backend:          store.IndexBackend(cfg.Index.Backend),
		MaxLoadedIndexes: cfg.Storage.MaxLoadedIndexes,
	}, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.indexes = indexes

	return a, nil
}

// Close releases resources in reverse acquisition order.
func (a *app) Close() {
	for i := len(a.cleanups) - 1; i >= 0; i-- {
		a.cleanups[i]()
	}
	a.cleanups = nil
}

func (a *app) newEmbedder() (embed.Embedder, error) {
	if a.embedder != nil {
		return a.embedder, nil
	}
	embedder, err := embed.NewEmbedder(embed.FactoryConfig{
		Provider:   a.cfg.Embeddings.Provider,
		Model:      a.cfg.Embeddings.Model,
		Dimensions: a.cfg.Embeddings.Dimensions,
		BatchSize:  a.cfg.Embeddings.BatchSize,
		Timeout:    a.cfg.Embeddings.Timeout,
		BaseURL:    a.cfg.Embeddings.BaseURL,
		APIKeyEnv:  a.cfg.Embeddings.APIKeyEnv,
		CacheSize:  a.cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}
	a.embedder = embedder
	a.cleanups = append(a.cleanups, func() { _ = embedder.Close() })
	return embedder, nil
}

func (a *app) orchestrator() (*ingest.Orchestrator, error) {
	if a.orch != nil {
		return a.orch, nil
	}
	embedder, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}
	chunker, err := chunk.NewTokenChunker(a.cfg.Chunking.Encoding,
		a.cfg.Chunking.MaxTokens, a.cfg.Chunking.OverlapTokens)
	if err != nil {
		return nil, err
	}
	a.orch = ingest.NewOrchestrator(a.meta, a.indexes, chunker, embedder, a.logger)
	return a.orch, nil
}

func (a *app) engine() (*retrieve.Engine, error) {
	embedder, err := a.newEmbedder()
	if err != nil {
		return nil, err
	}
	return retrieve.NewEngine(a.meta, a.indexes, embedder, a.logger), nil
}

// composer builds the answer composer. Without a generation API key it
// wires a generator that always reports the model unavailable, so answers
// degrade to context excerpts instead of failing the query.
func (a *app) composer() *answer.Composer {
	key := os.Getenv(a.cfg.Generation.APIKeyEnv)
	if key == "" {
		a.logger.Warn("no generation API key, answers degrade to context excerpts",
			"env", a.cfg.Generation.APIKeyEnv)
		return answer.NewComposer(offlineGenerator{}, a.logger)
	}
	gen, err := answer.NewOpenAIGenerator(answer.OpenAIGeneratorConfig{
		APIKey:  key,
		BaseURL: a.cfg.Generation.BaseURL,
		Model:   a.cfg.Generation.Model,
		Timeout: a.cfg.Generation.Timeout,
	})
	if err != nil {
		a.logger.Warn("generator unavailable, answers degrade to context excerpts",
			"error", err)
		return answer.NewComposer(offlineGenerator{}, a.logger)
	}
	a.cleanups = append(a.cleanups, func() { _ = gen.Close() })
	return answer.NewComposer(gen, a.logger)
}

// offlineGenerator stands in when no generation backend is configured. Its
// errors carry the model category, which the composer turns into an excerpt
// fallback.
type offlineGenerator struct{}

func (offlineGenerator) Generate(context.Context, string) (string, error) {
	return "", cerr.ModelUnavailable("no generation backend configured", nil)
}

func (offlineGenerator) Available(context.Context) bool { return false }

func (offlineGenerator) Close() error { return nil }
