package answer

import (
	"context"
	stderrors "errors"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"github.com/cognidex/cognidex/internal/errors"
)

// Generator produces an answer from a fully composed prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string) (string, error)
	Available(ctx context.Context) bool
	Close() error
}

// OpenAIGeneratorConfig configures the chat-completion generator.
type OpenAIGeneratorConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// OpenAIGenerator generates answers through an OpenAI-compatible chat
// completion endpoint.
type OpenAIGenerator struct {
	client  *openai.Client
	model   string
	timeout time.Duration
}

// NewOpenAIGenerator creates a generator. BaseURL may point at any
// OpenAI-compatible server.
func NewOpenAIGenerator(cfg OpenAIGeneratorConfig) (*OpenAIGenerator, error) {
	if cfg.APIKey == "" {
		return nil, errors.ConfigError("generation API key is empty", nil)
	}
	if cfg.Model == "" {
		return nil, errors.ConfigError("generation model is empty", nil)
	}
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIGenerator{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
	}, nil
}

// Generate sends the prompt as a single user message and returns the first
// choice. Transport errors come back wrapped with the model error codes so
// the caller's fallback policy applies uniformly.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: g.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
	})
	if err != nil {
		if stderrors.Is(err, context.DeadlineExceeded) {
			return "", errors.New(errors.ErrCodeModelTimeout, "generation request timed out", err)
		}
		return "", errors.New(errors.ErrCodeGenerationFailed, "generation request failed", err)
	}
	if len(resp.Choices) == 0 {
		return "", errors.New(errors.ErrCodeGenerationFailed, "generation returned no choices", nil)
	}
	return resp.Choices[0].Message.Content, nil
}

// Available probes the endpoint with a model listing.
func (g *OpenAIGenerator) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err := g.client.ListModels(ctx)
	return err == nil
}

// Close releases resources. The HTTP client needs none.
func (g *OpenAIGenerator) Close() error { return nil }
