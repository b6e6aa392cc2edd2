package services

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/config"
)

// Provider is the closed set of LLM backends a match can be scored with.
type Provider string

const (
	ProviderOpenAI Provider = "openai"
	ProviderClaude Provider = "claude"
	ProviderGrok   Provider = "grok"
	ProviderGemini Provider = "gemini"
)

var providers = []Provider{ProviderOpenAI, ProviderClaude, ProviderGrok, ProviderGemini}

// ParseProvider resolves a provider name case-insensitively.
func ParseProvider(name string) (Provider, error) {
	p := Provider(strings.ToLower(strings.TrimSpace(name)))
	for _, known := range providers {
		if p == known {
			return p, nil
		}
	}
	return "", fmt.Errorf("%w: unsupported llm provider %q", ErrConfiguration, name)
}

// Scorer sends a prompt to a language model and returns the raw reply.
// Failures wrap ErrScoring.
type Scorer interface {
	Invoke(ctx context.Context, prompt string) (string, error)
	Provider() Provider
	Model() string
}

// NewScorer builds the scorer for provider. A missing credential is a
// configuration error.
func NewScorer(ctx context.Context, provider Provider, cfg *config.Config) (Scorer, error) {
	llm := cfg.LLM

	switch provider {
	case ProviderOpenAI:
		if llm.OpenAIAPIKey == "" {
			return nil, fmt.Errorf("%w: openai api key not configured", ErrConfiguration)
		}
		return NewOpenAIScorer(ProviderOpenAI, llm.OpenAIAPIKey, llm.OpenAIModel, llm.OpenAIBaseURL, llm.Temperature, llm.MaxTokens), nil
	case ProviderGrok:
		if llm.GrokAPIKey == "" {
			return nil, fmt.Errorf("%w: grok api key not configured", ErrConfiguration)
		}
		return NewOpenAIScorer(ProviderGrok, llm.GrokAPIKey, llm.GrokModel, llm.GrokBaseURL, llm.Temperature, llm.MaxTokens), nil
	case ProviderClaude:
		if llm.ClaudeAPIKey == "" {
			return nil, fmt.Errorf("%w: claude api key not configured", ErrConfiguration)
		}
		return NewClaudeScorer(llm.ClaudeAPIKey, llm.ClaudeModel, llm.ClaudeBaseURL, llm.Temperature, llm.MaxTokens), nil
	case ProviderGemini:
		gemini, err := NewGeminiService(ctx, cfg.Gemini.APIKey, cfg.Gemini.Model, cfg.Gemini.EmbeddingModel, llm.Temperature, llm.MaxTokens)
		if err != nil {
			return nil, err
		}
		return gemini, nil
	default:
		return nil, fmt.Errorf("%w: unsupported llm provider %q", ErrConfiguration, provider)
	}
}

// ScorerRegistry holds one scorer per configured provider, built at startup.
type ScorerRegistry struct {
	scorers map[Provider]Scorer
}

func NewScorerRegistry(scorers ...Scorer) *ScorerRegistry {
	r := &ScorerRegistry{scorers: make(map[Provider]Scorer, len(scorers))}
	for _, s := range scorers {
		r.scorers[s.Provider()] = s
	}
	return r
}

// NewScorerRegistryFromConfig builds every provider that has credentials.
// Providers without credentials are skipped and fail at lookup time.
func NewScorerRegistryFromConfig(ctx context.Context, cfg *config.Config, maxRetries int, logger *zap.Logger) (*ScorerRegistry, error) {
	defaultProvider, err := ParseProvider(cfg.LLM.Provider)
	if err != nil {
		return nil, err
	}

	r := NewScorerRegistry()
	for _, p := range providers {
		s, err := NewScorer(ctx, p, cfg)
		if err != nil {
			logger.Debug("llm provider not available", zap.String("provider", string(p)), zap.Error(err))
			continue
		}
		r.scorers[p] = WithRetry(s, maxRetries, logger)
		logger.Info("llm provider configured", zap.String("provider", string(p)), zap.String("model", s.Model()))
	}

	if _, err := r.Get(string(defaultProvider)); err != nil {
		return nil, fmt.Errorf("default llm provider: %w", err)
	}

	return r, nil
}

// Get resolves a provider name to its scorer.
func (r *ScorerRegistry) Get(name string) (Scorer, error) {
	p, err := ParseProvider(name)
	if err != nil {
		return nil, err
	}

	s, ok := r.scorers[p]
	if !ok {
		return nil, fmt.Errorf("%w: llm provider %q is not configured", ErrConfiguration, p)
	}
	return s, nil
}

type retryingScorer struct {
	Scorer
	maxRetries int
	logger     *zap.Logger
}

// WithRetry retries failed invocations up to maxRetries attempts in total.
// Errors marked ErrProviderRejected are returned after the first attempt.
func WithRetry(s Scorer, maxRetries int, logger *zap.Logger) Scorer {
	if maxRetries <= 1 {
		return s
	}
	return &retryingScorer{Scorer: s, maxRetries: maxRetries, logger: logger}
}

func (r *retryingScorer) Invoke(ctx context.Context, prompt string) (string, error) {
	var lastErr error

	for attempt := 1; attempt <= r.maxRetries; attempt++ {
		result, err := r.Scorer.Invoke(ctx, prompt)
		if err == nil {
			return result, nil
		}

		lastErr = err
		if errors.Is(err, ErrProviderRejected) {
			return "", err
		}

		select {
		case <-ctx.Done():
			return "", fmt.Errorf("%w: context cancelled: %v", ErrScoring, ctx.Err())
		default:
		}

		if attempt < r.maxRetries {
			r.logger.Warn("llm invocation failed, retrying",
				zap.String("provider", string(r.Provider())),
				zap.Int("attempt", attempt),
				zap.Error(err))
		}
	}

	return "", fmt.Errorf("failed after %d attempts: %w", r.maxRetries, lastErr)
}

// scoringError wraps a provider failure as ErrScoring. Client errors other
// than timeouts and rate limits are also marked ErrProviderRejected.
func scoringError(provider Provider, status int, err error) error {
	if status >= 400 && status < 500 && status != http.StatusRequestTimeout && status != http.StatusTooManyRequests {
		return fmt.Errorf("%w: %w: %s: %v", ErrScoring, ErrProviderRejected, provider, err)
	}
	return fmt.Errorf("%w: %s: %v", ErrScoring, provider, err)
}
