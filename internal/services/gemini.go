package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// Texts longer than this are cut before embedding (~10000 tokens).
const maxEmbeddingChars = 40000

type GeminiService struct {
	client      *genai.Client
	modelName   string
	embedModel  string
	temperature float32
	maxTokens   int32
}

// NewGeminiService returns the Gemini client used both as Embedder and as the
// "gemini" Scorer.
func NewGeminiService(ctx context.Context, apiKey, model, embedModel string, temperature float32, maxTokens int) (*GeminiService, error) {
	apiKey = strings.TrimSpace(apiKey)
	if apiKey == "" {
		return nil, fmt.Errorf("%w: gemini api key not configured", ErrConfiguration)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create gemini client: %v", ErrConfiguration, err)
	}

	return &GeminiService{
		client:      client,
		modelName:   model,
		embedModel:  embedModel,
		temperature: temperature,
		maxTokens:   int32(maxTokens),
	}, nil
}

// Embed implements Embedder.
func (g *GeminiService) Embed(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: empty text", ErrEmbedding)
	}
	if len(text) > maxEmbeddingChars {
		text = strings.ToValidUTF8(text[:maxEmbeddingChars], "")
	}

	result, err := g.client.Models.EmbedContent(ctx, g.embedModel, genai.Text(text), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to generate embedding: %v", ErrEmbedding, err)
	}

	if result == nil || len(result.Embeddings) == 0 {
		return nil, fmt.Errorf("%w: empty embedding result", ErrEmbedding)
	}

	return result.Embeddings[0].Values, nil
}

// Invoke implements Scorer.
func (g *GeminiService) Invoke(ctx context.Context, prompt string) (string, error) {
	temperature := g.temperature
	config := &genai.GenerateContentConfig{
		Temperature:     &temperature,
		MaxOutputTokens: g.maxTokens,
	}

	resp, err := g.client.Models.GenerateContent(ctx, g.modelName, genai.Text(prompt), config)
	if err != nil {
		var apiErr genai.APIError
		status := 0
		if errors.As(err, &apiErr) {
			status = apiErr.Code
		}
		return "", scoringError(ProviderGemini, status, err)
	}

	if resp == nil {
		return "", fmt.Errorf("%w: gemini returned nil response", ErrScoring)
	}

	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("%w: no text content in gemini response", ErrScoring)
	}

	return text, nil
}

func (g *GeminiService) Provider() Provider {
	return ProviderGemini
}

func (g *GeminiService) Model() string {
	return g.modelName
}
