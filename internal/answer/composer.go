// Package answer turns ranked chunks plus a question into a generated
// answer, degrading to a context excerpt when the generation backend is
// down.
package answer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/cognidex/cognidex/internal/errors"
	"github.com/cognidex/cognidex/internal/retrieve"
)

// NoInformationFound is the fixed response for queries with no surviving
// candidates. Callers return it without invoking the generator.
const NoInformationFound = "No relevant information found in the knowledge base."

const promptTemplate = `Based on the following context, answer the question. If the answer is not in the context, say so.

Context:
%s

Question: %s

Answer:`

const excerptLimit = 200

// Composer builds the generation prompt from ranked chunks and delegates
// to the generator.
type Composer struct {
	gen    Generator
	logger *slog.Logger
}

// NewComposer wires a composer over the given generator.
func NewComposer(gen Generator, logger *slog.Logger) *Composer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Composer{gen: gen, logger: logger}
}

// BuildPrompt concatenates the chunk texts in ranked order, double-newline
// separated, into the question template.
func BuildPrompt(query string, chunks []retrieve.ScoredChunk) string {
	texts := make([]string, len(chunks))
	for i, c := range chunks {
		texts[i] = c.Chunk.ChunkText
	}
	return fmt.Sprintf(promptTemplate, strings.Join(texts, "\n\n"), query)
}

// Compose generates an answer for the query from the ranked chunks.
//
// An empty chunk list returns NoInformationFound without touching the
// generator. A model failure falls back to an excerpt of the best chunk:
// answering sits on the synchronous query path, so a degraded answer beats
// an error.
func (c *Composer) Compose(ctx context.Context, query string, chunks []retrieve.ScoredChunk) (string, error) {
	if len(chunks) == 0 {
		return NoInformationFound, nil
	}

	text, err := c.gen.Generate(ctx, BuildPrompt(query, chunks))
	if err != nil {
		if errors.GetCategory(err) == errors.CategoryModel {
			c.logger.Warn("generation unavailable, falling back to context excerpt", "error", err)
			return excerptFallback(chunks), nil
		}
		return "", err
	}
	if strings.TrimSpace(text) == "" {
		return excerptFallback(chunks), nil
	}
	return text, nil
}

func excerptFallback(chunks []retrieve.ScoredChunk) string {
	top := chunks[0].Chunk.ChunkText
	if len(top) > excerptLimit {
		cut := excerptLimit
		// Back off to a rune boundary so the cut never splits a multi-byte
		// character.
		for cut > 0 && !utf8.RuneStart(top[cut]) {
			cut--
		}
		top = top[:cut] + "..."
	}
	return "Based on the provided context: " + top
}
