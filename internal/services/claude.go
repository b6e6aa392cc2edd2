package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

type ClaudeScorer struct {
	client      anthropic.Client
	model       string
	temperature float64
	maxTokens   int64
}

func NewClaudeScorer(apiKey, model, baseURL string, temperature float32, maxTokens int) *ClaudeScorer {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}

	return &ClaudeScorer{
		client:      anthropic.NewClient(opts...),
		model:       model,
		temperature: float64(temperature),
		maxTokens:   int64(maxTokens),
	}
}

// Invoke implements Scorer. Text blocks of the reply are concatenated.
func (c *ClaudeScorer) Invoke(ctx context.Context, prompt string) (string, error) {
	message, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:       anthropic.Model(c.model),
		MaxTokens:   c.maxTokens,
		Temperature: anthropic.Float(c.temperature),
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(prompt)),
		},
	})
	if err != nil {
		var apiErr *anthropic.Error
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.StatusCode
		}
		return "", scoringError(ProviderClaude, status, err)
	}

	var sb strings.Builder
	for _, block := range message.Content {
		if block.Type == "text" {
			sb.WriteString(block.Text)
		}
	}

	if sb.Len() == 0 {
		return "", fmt.Errorf("%w: no text content in claude response", ErrScoring)
	}

	return sb.String(), nil
}

func (c *ClaudeScorer) Provider() Provider {
	return ProviderClaude
}

func (c *ClaudeScorer) Model() string {
	return c.model
}
