// Package chunk splits raw text into token-bounded overlapping windows.
//
// Chunking is deterministic: the same text always yields the same chunk
// sequence. That property is what makes re-ingestion of an identical
// document version verifiable and idempotent.
package chunk

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"

	cerr "github.com/cognidex/cognidex/internal/errors"
)

// Default window parameters.
const (
	// DefaultMaxTokens is the default chunk window size.
	DefaultMaxTokens = 512
	// DefaultOverlapTokens is the default overlap between windows.
	DefaultOverlapTokens = 50
	// DefaultEncoding is the tiktoken encoding used for tokenization.
	DefaultEncoding = "cl100k_base"
)

// TokenChunker splits text into overlapping token windows using a
// deterministic BPE tokenizer.
type TokenChunker struct {
	maxTokens     int
	overlapTokens int
	encoding      *tiktoken.Tiktoken
}

// NewTokenChunker creates a chunker with the given window parameters.
// overlapTokens must be strictly less than maxTokens, otherwise the stride
// would be zero or negative and the window loop could not advance.
func NewTokenChunker(encodingName string, maxTokens, overlapTokens int) (*TokenChunker, error) {
	if maxTokens <= 0 {
		return nil, cerr.ConfigError(fmt.Sprintf("max tokens must be positive, got %d", maxTokens), nil)
	}
	if overlapTokens < 0 {
		return nil, cerr.ConfigError(fmt.Sprintf("overlap tokens must not be negative, got %d", overlapTokens), nil)
	}
	if overlapTokens >= maxTokens {
		return nil, cerr.ConfigError(
			fmt.Sprintf("overlap tokens (%d) must be less than max tokens (%d)", overlapTokens, maxTokens), nil)
	}
	if encodingName == "" {
		encodingName = DefaultEncoding
	}

	enc, err := tiktoken.GetEncoding(encodingName)
	if err != nil {
		return nil, cerr.ConfigError(fmt.Sprintf("unknown encoding %q", encodingName), err)
	}

	return &TokenChunker{
		maxTokens:     maxTokens,
		overlapTokens: overlapTokens,
		encoding:      enc,
	}, nil
}

// MaxTokens returns the configured window size.
func (c *TokenChunker) MaxTokens() int { return c.maxTokens }

// OverlapTokens returns the configured window overlap.
func (c *TokenChunker) OverlapTokens() int { return c.overlapTokens }

// Split chunks text into overlapping token windows.
// Empty or whitespace-only input yields zero chunks; text at or under the
// window size yields exactly one chunk equal to the whole text. The final
// window may be shorter than maxTokens and no empty trailing chunk is
// produced.
func (c *TokenChunker) Split(text string) []string {
	if strings.TrimSpace(text) == "" {
		return nil
	}

	tokens := c.encoding.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil
	}
	if len(tokens) <= c.maxTokens {
		return []string{text}
	}

	stride := c.maxTokens - c.overlapTokens
	chunks := make([]string, 0, (len(tokens)+stride-1)/stride)

	for start := 0; start < len(tokens); start += stride {
		end := start + c.maxTokens
		if end > len(tokens) {
			end = len(tokens)
		}
		chunks = append(chunks, c.encoding.Decode(tokens[start:end]))
		if end >= len(tokens) {
			break
		}
	}

	return chunks
}

// CountTokens returns the token length of text under the chunker's encoding.
func (c *TokenChunker) CountTokens(text string) int {
	return len(c.encoding.Encode(text, nil, nil))
}
