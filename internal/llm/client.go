package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
	"github.com/sashabaranov/go-openai"
	"golang.org/x/time/rate"
)

// defaultRateLimit caps outgoing Completion calls so a wide community fan-out
// (one Map Worker call per community) does not trip the provider's own
// per-second throttle.
const defaultRateLimit = 10

// Provider names the active Completion/Embedding backend.
type Provider string

const (
	ProviderOpenAI    Provider = "openai"
	ProviderAnthropic Provider = "anthropic"
	ProviderNone      Provider = "none"
)

// Client provides a unified Completion and Embedding interface over OpenAI
// and Anthropic. Embeddings are OpenAI-only: Anthropic does not offer an
// embeddings endpoint, so an Anthropic-configured Client falls back to
// ErrEmbeddingUnsupported for Embed.
type Client struct {
	provider        Provider
	openaiClient    *openai.Client
	anthropicClient *anthropic.Client
	logger          *slog.Logger
	embeddingModel  string
	rateLimiter     *rate.Limiter
}

// ErrEmbeddingUnsupported is returned by Embed when the active provider has
// no embeddings endpoint.
var ErrEmbeddingUnsupported = fmt.Errorf("embeddings are not supported by this provider")

// NewClient creates a Completion/Embedding client for the given provider and
// API key. An empty apiKey yields a disabled, ProviderNone client so callers
// can degrade gracefully (spec.md §4.C community summarization fallback).
func NewClient(provider Provider, apiKey string, embeddingModel string) *Client {
	logger := slog.Default().With("component", "llm", "provider", string(provider))

	if apiKey == "" {
		logger.Warn("no completion api key configured, client disabled")
		return &Client{provider: ProviderNone, logger: logger}
	}

	switch provider {
	case ProviderOpenAI:
		client := openai.NewClient(apiKey)
		logger.Info("openai client initialized")
		return &Client{
			provider:       ProviderOpenAI,
			openaiClient:   client,
			logger:         logger,
			embeddingModel: embeddingModel,
			rateLimiter:    rate.NewLimiter(rate.Limit(defaultRateLimit), 1),
		}
	case ProviderAnthropic:
		client := anthropic.NewClient(option.WithAPIKey(apiKey))
		logger.Info("anthropic client initialized")
		return &Client{
			provider:        ProviderAnthropic,
			anthropicClient: &client,
			logger:          logger,
			embeddingModel:  embeddingModel,
			rateLimiter:     rate.NewLimiter(rate.Limit(defaultRateLimit), 1),
		}
	default:
		logger.Warn("unknown completion provider, client disabled", "provider", provider)
		return &Client{provider: ProviderNone, logger: logger}
	}
}

// IsEnabled returns true if a Completion client is configured and ready.
func (c *Client) IsEnabled() bool {
	return c.provider != ProviderNone
}

// GetProvider returns the active provider.
func (c *Client) GetProvider() Provider {
	return c.provider
}

// Complete sends a request to the active Completion provider.
func (c *Client) Complete(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	if !c.IsEnabled() {
		return nil, fmt.Errorf("completion client not enabled, no api key configured")
	}

	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("completion rate limiter: %w", err)
	}

	switch c.provider {
	case ProviderOpenAI:
		return c.completeOpenAI(ctx, req)
	case ProviderAnthropic:
		return c.completeAnthropic(ctx, req)
	default:
		return nil, fmt.Errorf("no completion provider configured")
	}
}

func (c *Client) completeOpenAI(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := req.Model
	if model == "" {
		model = openai.GPT4oMini
	}

	resp, err := c.openaiClient.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: req.SystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: req.UserPrompt},
		},
		Temperature: float32(req.Temperature),
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("openai completion failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("openai returned no choices")
	}

	content := resp.Choices[0].Message.Content
	c.logger.Debug("openai completion",
		"prompt_length", len(req.UserPrompt),
		"response_length", len(content),
		"tokens_used", resp.Usage.TotalTokens,
	)

	return &CompletionResponse{
		Content:    content,
		TokensUsed: resp.Usage.TotalTokens,
		Model:      model,
	}, nil
}

func (c *Client) completeAnthropic(ctx context.Context, req CompletionRequest) (*CompletionResponse, error) {
	model := anthropic.Model(req.Model)
	if req.Model == "" {
		model = anthropic.ModelClaude3_5HaikuLatest
	}

	maxTokens := int64(req.MaxTokens)
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	resp, err := c.anthropicClient.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     model,
		MaxTokens: maxTokens,
		System:    []anthropic.TextBlockParam{{Text: req.SystemPrompt}},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(req.UserPrompt)),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("anthropic completion failed: %w", err)
	}
	if len(resp.Content) == 0 {
		return nil, fmt.Errorf("anthropic returned no content blocks")
	}

	content := resp.Content[0].Text
	c.logger.Debug("anthropic completion",
		"prompt_length", len(req.UserPrompt),
		"response_length", len(content),
		"input_tokens", resp.Usage.InputTokens,
		"output_tokens", resp.Usage.OutputTokens,
	)

	return &CompletionResponse{
		Content:    content,
		TokensUsed: int(resp.Usage.InputTokens + resp.Usage.OutputTokens),
		Model:      string(model),
	}, nil
}

// Embed vectorizes a batch of texts via OpenAI's embeddings endpoint.
func (c *Client) Embed(ctx context.Context, req EmbeddingRequest) (*EmbeddingResponse, error) {
	if c.provider != ProviderOpenAI {
		return nil, ErrEmbeddingUnsupported
	}

	model := req.Model
	if model == "" {
		model = c.embeddingModel
	}
	if model == "" {
		model = string(openai.SmallEmbedding3)
	}

	resp, err := c.openaiClient.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: req.Texts,
		Model: openai.EmbeddingModel(model),
	})
	if err != nil {
		return nil, fmt.Errorf("openai embedding failed: %w", err)
	}

	vectors := make([][]float32, len(resp.Data))
	for i, d := range resp.Data {
		vectors[i] = d.Embedding
	}

	return &EmbeddingResponse{Vectors: vectors, Model: model}, nil
}
