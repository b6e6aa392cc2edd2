package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/sashabaranov/go-openai"
)

// OpenAIScorer talks to any OpenAI-compatible chat completion API. Grok is
// served through the same client with the xAI base URL.
type OpenAIScorer struct {
	client      *openai.Client
	provider    Provider
	model       string
	temperature float32
	maxTokens   int
}

func NewOpenAIScorer(provider Provider, apiKey, model, baseURL string, temperature float32, maxTokens int) *OpenAIScorer {
	cfg := openai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}

	return &OpenAIScorer{
		client:      openai.NewClientWithConfig(cfg),
		provider:    provider,
		model:       model,
		temperature: temperature,
		maxTokens:   maxTokens,
	}
}

// Invoke implements Scorer.
func (o *OpenAIScorer) Invoke(ctx context.Context, prompt string) (string, error) {
	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       o.model,
		Temperature: o.temperature,
		MaxTokens:   o.maxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleUser,
				Content: prompt,
			},
		},
	})
	if err != nil {
		return "", scoringError(o.provider, openAIStatus(err), err)
	}

	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("%w: %s returned no choices", ErrScoring, o.provider)
	}

	return resp.Choices[0].Message.Content, nil
}

func (o *OpenAIScorer) Provider() Provider {
	return o.provider
}

func (o *OpenAIScorer) Model() string {
	return o.model
}

func openAIStatus(err error) int {
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return apiErr.HTTPStatusCode
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return reqErr.HTTPStatusCode
	}
	return 0
}
