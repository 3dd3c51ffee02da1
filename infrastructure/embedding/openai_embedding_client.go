package embedding

import (
	"context"
	"errors"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"

	"dev-copilot/config"
	"dev-copilot/domain"
)

// OpenAIEmbeddingClient implements domain.Embedder using the OpenAI API.
// With a fixed model the output is deterministic: the same text always
// yields the same vector (up to external service versioning).
type OpenAIEmbeddingClient struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
	timeout    time.Duration
	retry      RetryConfig
}

// NewOpenAIEmbeddingClient creates a new embedding client from the
// validated configuration.
func NewOpenAIEmbeddingClient(cfg *config.EmbedderConfig) (*OpenAIEmbeddingClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("OPENAI_API_KEY environment variable not set")
	}

	retry := DefaultRetryConfig()
	if cfg.MaxRetries > 0 {
		retry.MaxRetries = cfg.MaxRetries
	}

	return &OpenAIEmbeddingClient{
		client:     openai.NewClient(cfg.APIKey),
		model:      openai.EmbeddingModel(cfg.Model),
		dimensions: cfg.Dimensions,
		timeout:    time.Duration(cfg.TimeoutSecs) * time.Second,
		retry:      retry,
	}, nil
}

// Dimensions returns the fixed output dimension of the configured model.
func (c *OpenAIEmbeddingClient) Dimensions() int {
	return c.dimensions
}

// Embed generates the embedding for a single text.
func (c *OpenAIEmbeddingClient) Embed(ctx context.Context, text string) (domain.Embedding, error) {
	embeddings, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return embeddings[0], nil
}

// EmbedBatch generates embeddings for the given texts, in input order.
// The call is bounded by the configured timeout and retried with
// exponential backoff; a failure after the last attempt is reported as
// ErrEmbeddingUnavailable.
func (c *OpenAIEmbeddingClient) EmbedBatch(ctx context.Context, texts []string) ([]domain.Embedding, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	var resp openai.EmbeddingResponse
	err := WithRetry(ctx, c.retry, func() error {
		callCtx, cancel := context.WithTimeout(ctx, c.timeout)
		defer cancel()

		var err error
		resp, err = c.client.CreateEmbeddings(callCtx, openai.EmbeddingRequest{
			Input: texts,
			Model: c.model,
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrEmbeddingUnavailable, err)
	}

	if len(resp.Data) != len(texts) {
		return nil, fmt.Errorf("%w: got %d embeddings for %d texts",
			domain.ErrEmbeddingUnavailable, len(resp.Data), len(texts))
	}

	embeddings := make([]domain.Embedding, len(resp.Data))
	for i, data := range resp.Data {
		if len(data.Embedding) != c.dimensions {
			return nil, fmt.Errorf("%w: model returned dimension %d, expected %d",
				domain.ErrEmbeddingUnavailable, len(data.Embedding), c.dimensions)
		}
		embeddings[i] = domain.Embedding(data.Embedding)
	}
	return embeddings, nil
}

var _ domain.Embedder = (*OpenAIEmbeddingClient)(nil)
