package services_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/config"
	"alfredoptarigan/cv-matcher/internal/services"
)

type flakyScorer struct {
	failures int32
	calls    atomic.Int32
}

func (f *flakyScorer) Invoke(context.Context, string) (string, error) {
	if f.calls.Add(1) <= f.failures {
		return "", errors.Join(services.ErrScoring, errors.New("rate limited"))
	}
	return "ok", nil
}

func (f *flakyScorer) Provider() services.Provider { return services.ProviderGrok }

func (f *flakyScorer) Model() string { return "flaky" }

type rejectingScorer struct {
	flakyScorer
}

func (r *rejectingScorer) Invoke(context.Context, string) (string, error) {
	r.calls.Add(1)
	return "", fmt.Errorf("%w: %w: invalid api key", services.ErrScoring, services.ErrProviderRejected)
}

var _ = Describe("Provider", func() {
	DescribeTable("ParseProvider",
		func(name string, expected services.Provider) {
			p, err := services.ParseProvider(name)
			Expect(err).NotTo(HaveOccurred())
			Expect(p).To(Equal(expected))
		},
		Entry("lower case", "openai", services.ProviderOpenAI),
		Entry("mixed case", "Claude", services.ProviderClaude),
		Entry("padded", " grok ", services.ProviderGrok),
		Entry("gemini", "GEMINI", services.ProviderGemini),
	)

	It("rejects unknown providers", func() {
		_, err := services.ParseProvider("llama")
		Expect(err).To(MatchError(services.ErrConfiguration))
	})
})

var _ = Describe("ScorerRegistry", func() {
	It("returns the scorer registered for a provider", func() {
		s := &fakeScorer{provider: services.ProviderClaude}
		r := services.NewScorerRegistry(s)

		got, err := r.Get("claude")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeIdenticalTo(s))
	})

	It("fails for providers without a scorer", func() {
		r := services.NewScorerRegistry(&fakeScorer{})

		_, err := r.Get("grok")
		Expect(err).To(MatchError(services.ErrConfiguration))
	})

	It("builds only providers that have credentials", func() {
		cfg := &config.Config{}
		cfg.LLM.Provider = "grok"
		cfg.LLM.GrokAPIKey = "xai-key"
		cfg.LLM.GrokModel = "grok-1"

		r, err := services.NewScorerRegistryFromConfig(context.Background(), cfg, 1, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())

		grok, err := r.Get("grok")
		Expect(err).NotTo(HaveOccurred())
		Expect(grok.Model()).To(Equal("grok-1"))

		_, err = r.Get("openai")
		Expect(err).To(MatchError(services.ErrConfiguration))
	})

	It("fails when the default provider has no credentials", func() {
		cfg := &config.Config{}
		cfg.LLM.Provider = "claude"

		_, err := services.NewScorerRegistryFromConfig(context.Background(), cfg, 1, zap.NewNop())
		Expect(err).To(MatchError(services.ErrConfiguration))
	})
})

var _ = Describe("WithRetry", func() {
	It("retries until the scorer succeeds", func() {
		s := &flakyScorer{failures: 2}

		reply, err := services.WithRetry(s, 3, zap.NewNop()).Invoke(context.Background(), "prompt")
		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal("ok"))
		Expect(s.calls.Load()).To(Equal(int32(3)))
	})

	It("gives up after the configured attempts", func() {
		s := &flakyScorer{failures: 5}

		_, err := services.WithRetry(s, 2, zap.NewNop()).Invoke(context.Background(), "prompt")
		Expect(err).To(MatchError(services.ErrScoring))
		Expect(s.calls.Load()).To(Equal(int32(2)))
	})

	It("does not retry requests the provider rejected", func() {
		s := &rejectingScorer{}

		_, err := services.WithRetry(s, 3, zap.NewNop()).Invoke(context.Background(), "prompt")
		Expect(err).To(MatchError(services.ErrProviderRejected))
		Expect(err).To(MatchError(services.ErrScoring))
		Expect(s.calls.Load()).To(Equal(int32(1)))
	})

	It("keeps provider and model of the wrapped scorer", func() {
		wrapped := services.WithRetry(&flakyScorer{}, 3, zap.NewNop())
		Expect(wrapped.Provider()).To(Equal(services.ProviderGrok))
		Expect(wrapped.Model()).To(Equal("flaky"))
	})
})

var _ = Describe("OpenAIScorer", func() {
	It("returns the first choice of an OpenAI-compatible API", func() {
		var request map[string]any
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/chat/completions"))
			Expect(r.Header.Get("Authorization")).To(Equal("Bearer xai-key"))

			body, _ := io.ReadAll(r.Body)
			Expect(json.Unmarshal(body, &request)).To(Succeed())

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"chatcmpl-1","object":"chat.completion","model":"grok-1","choices":[{"index":0,"message":{"role":"assistant","content":"{\"match_score\":0.6}"},"finish_reason":"stop"}]}`)
		}))
		defer srv.Close()

		s := services.NewOpenAIScorer(services.ProviderGrok, "xai-key", "grok-1", srv.URL+"/v1", 0.7, 256)
		reply, err := s.Invoke(context.Background(), "score this")

		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal(`{"match_score":0.6}`))
		Expect(request["model"]).To(Equal("grok-1"))
		Expect(s.Provider()).To(Equal(services.ProviderGrok))
	})

	It("wraps API failures as scoring errors", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		}))
		defer srv.Close()

		s := services.NewOpenAIScorer(services.ProviderOpenAI, "bad", "gpt-4", srv.URL+"/v1", 0.7, 256)
		_, err := s.Invoke(context.Background(), "score this")
		Expect(err).To(MatchError(services.ErrScoring))
		Expect(err).To(MatchError(services.ErrProviderRejected))
	})

	It("sends a rejected request only once under retry", func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"error":{"message":"bad key","type":"invalid_request_error"}}`)
		}))
		defer srv.Close()

		s := services.NewOpenAIScorer(services.ProviderOpenAI, "bad", "gpt-4", srv.URL+"/v1", 0.7, 256)
		_, err := services.WithRetry(s, 3, zap.NewNop()).Invoke(context.Background(), "score this")

		Expect(err).To(MatchError(services.ErrProviderRejected))
		Expect(hits.Load()).To(Equal(int32(1)))
	})

	It("retries rate limits and server errors", func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			w.Header().Set("Content-Type", "application/json")
			if hits.Add(1) == 1 {
				w.WriteHeader(http.StatusTooManyRequests)
				_, _ = io.WriteString(w, `{"error":{"message":"slow down","type":"rate_limit_error"}}`)
				return
			}
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"error":{"message":"overloaded","type":"server_error"}}`)
		}))
		defer srv.Close()

		s := services.NewOpenAIScorer(services.ProviderOpenAI, "key", "gpt-4", srv.URL+"/v1", 0.7, 256)
		_, err := services.WithRetry(s, 3, zap.NewNop()).Invoke(context.Background(), "score this")

		Expect(err).To(MatchError(services.ErrScoring))
		Expect(errors.Is(err, services.ErrProviderRejected)).To(BeFalse())
		Expect(hits.Load()).To(Equal(int32(3)))
	})
})

var _ = Describe("ClaudeScorer", func() {
	It("concatenates the text blocks of the reply", func() {
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer GinkgoRecover()
			Expect(r.URL.Path).To(Equal("/v1/messages"))
			Expect(r.Header.Get("X-Api-Key")).To(Equal("sk-ant"))

			w.Header().Set("Content-Type", "application/json")
			_, _ = io.WriteString(w, `{"id":"msg_1","type":"message","role":"assistant","model":"claude-3-opus-20240229","content":[{"type":"text","text":"{\"match_score\":"},{"type":"text","text":"0.9}"}],"stop_reason":"end_turn","usage":{"input_tokens":10,"output_tokens":5}}`)
		}))
		defer srv.Close()

		s := services.NewClaudeScorer("sk-ant", "claude-3-opus-20240229", srv.URL, 0.7, 256)
		reply, err := s.Invoke(context.Background(), "score this")

		Expect(err).NotTo(HaveOccurred())
		Expect(reply).To(Equal(`{"match_score":0.9}`))
		Expect(s.Provider()).To(Equal(services.ProviderClaude))
	})

	It("marks authentication failures as rejected", func() {
		var hits atomic.Int32
		srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			hits.Add(1)
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			_, _ = io.WriteString(w, `{"type":"error","error":{"type":"authentication_error","message":"invalid x-api-key"}}`)
		}))
		defer srv.Close()

		s := services.NewClaudeScorer("bad", "claude-3-opus-20240229", srv.URL, 0.7, 256)
		_, err := services.WithRetry(s, 3, zap.NewNop()).Invoke(context.Background(), "score this")

		Expect(err).To(MatchError(services.ErrScoring))
		Expect(err).To(MatchError(services.ErrProviderRejected))
		Expect(hits.Load()).To(Equal(int32(1)))
	})
})
