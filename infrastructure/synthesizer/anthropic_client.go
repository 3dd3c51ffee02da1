package synthesizer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"dev-copilot/config"
	"dev-copilot/domain"
)

// AnthropicClient implements domain.AnswerSynthesizer using the Anthropic
// API. One prompt in, one answer out; any failure surfaces as
// ErrSynthesisFailed with no automatic retry.
type AnthropicClient struct {
	client    *anthropic.Client
	model     anthropic.Model
	maxTokens int64
}

// NewAnthropicClient creates a new Anthropic synthesizer from the
// validated configuration.
func NewAnthropicClient(cfg *config.SynthesizerConfig) (*AnthropicClient, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("ANTHROPIC_API_KEY environment variable not set")
	}

	client := anthropic.NewClient(
		option.WithAPIKey(cfg.APIKey),
	)

	return &AnthropicClient{
		client:    &client,
		model:     anthropic.Model(cfg.Model),
		maxTokens: int64(cfg.MaxTokens),
	}, nil
}

// Synthesize sends the assembled prompt and returns the answer text.
func (a *AnthropicClient) Synthesize(ctx context.Context, prompt string) (string, error) {
	message, err := a.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     a.model,
		MaxTokens: a.maxTokens,
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		return "", fmt.Errorf("%w: %v", domain.ErrSynthesisFailed, err)
	}

	var answer strings.Builder
	for _, content := range message.Content {
		if content.Type == "text" {
			answer.WriteString(content.Text)
		}
	}

	if answer.Len() == 0 {
		return "", fmt.Errorf("%w: model returned no text content", domain.ErrSynthesisFailed)
	}
	return answer.String(), nil
}

var _ domain.AnswerSynthesizer = (*AnthropicClient)(nil)
