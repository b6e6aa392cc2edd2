package services_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/services"
)

var _ = Describe("BatchMatcher", func() {
	var (
		ctx      context.Context
		embedder *fakeEmbedder
		index    *fakeIndex
		scorer   *fakeScorer
		tracer   *recordingTracer
		cvs      fakeCVSource
		request  models.MatchRequest
	)

	newMatcher := func(concurrency int) services.BatchMatcher {
		return services.NewBatchMatcher(
			embedder,
			index,
			services.NewScorerRegistry(scorer),
			tracer,
			cvs,
			services.PipelineOptions{},
			concurrency,
			zap.NewNop(),
		)
	}

	matchedIDs := func(result *models.BatchResult) []string {
		ids := make([]string, 0, len(result.Matches))
		for _, m := range result.Matches {
			ids = append(ids, m.CVID)
		}
		return ids
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &fakeEmbedder{}
		index = newFakeIndex()
		tracer = &recordingTracer{}
		scorer = &fakeScorer{
			replies: map[string]string{
				"cv_1": judgmentJSON(0.9),
				"cv_2": judgmentJSON(0.4),
				"cv_3": judgmentJSON(0.95),
			},
		}
		cvs = fakeCVSource{
			"cv_1": {ID: "cv_1", Filename: "alice.txt", Text: "resume of cv_1\nGo, Kubernetes"},
			"cv_2": {ID: "cv_2", Filename: "bob.txt", Text: "resume of cv_2\nPHP"},
			"cv_3": {ID: "cv_3", Filename: "carol.txt", Text: "resume of cv_3\nGo, Postgres"},
		}
		request = models.MatchRequest{
			JobTitle:       "Backend Engineer",
			JobDescription: "Go services on Kubernetes",
			CVIDs:          []string{"cv_1", "cv_2", "cv_3"},
			LLMProvider:    "openai",
			TopK:           2,
		}
	})

	Context("ranking", func() {
		It("keeps the top_k highest scores in descending order", func() {
			result, err := newMatcher(3).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			Expect(matchedIDs(result)).To(Equal([]string{"cv_3", "cv_1"}))
			Expect(result.TotalMatched).To(Equal(2))
			Expect(result.JobTitle).To(Equal("Backend Engineer"))
			Expect(result.Timestamp.Location().String()).To(Equal("UTC"))
		})

		It("does not pad when fewer CVs succeed than top_k", func() {
			request.TopK = 10
			request.CVIDs = []string{"cv_1", "missing", "cv_3"}

			result, err := newMatcher(2).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(matchedIDs(result)).To(Equal([]string{"cv_3", "cv_1"}))
			Expect(result.TotalMatched).To(Equal(len(result.Matches)))
		})

		It("keeps input order for equal scores whatever the completion order", func() {
			scorer.replies = nil
			scorer.fallback = judgmentJSON(0.7)
			scorer.delays = map[string]time.Duration{
				"cv_1": 200 * time.Millisecond,
				"cv_2": 100 * time.Millisecond,
				"cv_3": 0,
			}
			request.TopK = 3

			result, err := newMatcher(3).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(scorer.Finished()).To(Equal([]string{"cv_3", "cv_2", "cv_1"}))
			Expect(matchedIDs(result)).To(Equal([]string{"cv_1", "cv_2", "cv_3"}))
		})

		It("returns the same ranking on repeated runs", func() {
			request.TopK = 3
			m := newMatcher(3)

			first, err := m.Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			second, err := m.Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Matches).To(Equal(first.Matches))
		})
	})

	Context("degraded replies", func() {
		It("uses the fallback judgment when the reply is not JSON", func() {
			scorer.replies = nil
			scorer.fallback = "I think this candidate is great"
			request.CVIDs = []string{"cv_1"}

			result, err := newMatcher(1).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Matches).To(HaveLen(1))

			match := result.Matches[0]
			Expect(match.MatchScore).To(Equal(0.5))
			Expect(match.Reasoning).To(Equal("I think this candidate is great"))
			Expect(match.MatchedSkills).To(BeEmpty())
			Expect(match.MatchedSkills).NotTo(BeNil())
			Expect(match.ExperienceAlignment).To(Equal("unknown"))
			Expect(match.OverallAssessment).To(Equal("Analysis incomplete"))
			Expect(match.Filename).To(Equal("alice.txt"))
		})
	})

	Context("failure isolation", func() {
		It("drops a CV whose embedding failed and keeps the rest", func() {
			embedder.failOn = map[int]bool{2: true}
			request.TopK = 5

			result, err := newMatcher(1).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(matchedIDs(result)).To(Equal([]string{"cv_3", "cv_1"}))
		})

		It("drops a CV whose scorer panicked", func() {
			scorer.panicOn = "cv_3"
			request.TopK = 5

			result, err := newMatcher(3).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(matchedIDs(result)).To(Equal([]string{"cv_1", "cv_2"}))
		})

		It("returns an empty batch when every CV is missing", func() {
			request.CVIDs = []string{"nope", "also-nope"}

			result, err := newMatcher(2).Match(ctx, request)
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Matches).To(BeEmpty())
			Expect(result.Matches).NotTo(BeNil())
			Expect(result.TotalMatched).To(Equal(0))
		})

		It("reports the upstream as unavailable when every run fails on a shared dependency", func() {
			index.queryErr = services.ErrRetrieval

			result, err := newMatcher(3).Match(ctx, request)
			Expect(err).To(MatchError(services.ErrUpstreamUnavailable))
			Expect(result).To(BeNil())
		})
	})

	Context("upstream failures mixed with unknown CVs", func() {
		It("still reports the upstream as unavailable when an unknown id is present", func() {
			embedder.failOn = map[int]bool{1: true, 2: true, 3: true}
			request.CVIDs = []string{"cv_1", "typo", "cv_3"}

			result, err := newMatcher(3).Match(ctx, request)
			Expect(err).To(MatchError(services.ErrUpstreamUnavailable))
			Expect(result).To(BeNil())
		})

		It("treats an unreachable CV store as a shared dependency", func() {
			request.CVIDs = []string{"cv_1", "cv_2"}

			m := services.NewBatchMatcher(
				embedder,
				index,
				services.NewScorerRegistry(scorer),
				tracer,
				failingCVSource{},
				services.PipelineOptions{},
				2,
				zap.NewNop(),
			)

			_, err := m.Match(ctx, request)
			Expect(err).To(MatchError(services.ErrUpstreamUnavailable))
			Expect(embedder.Calls()).To(Equal(0))
		})
	})

	Context("request validation", func() {
		It("rejects an unsupported provider before running any pipeline", func() {
			request.LLMProvider = "llama"

			_, err := newMatcher(3).Match(ctx, request)
			Expect(err).To(MatchError(services.ErrConfiguration))
			Expect(embedder.Calls()).To(Equal(0))
			Expect(scorer.Prompts()).To(BeEmpty())
		})

		It("rejects a known provider that is not configured", func() {
			request.LLMProvider = "claude"

			err := newMatcher(3).Validate(request)
			Expect(err).To(MatchError(services.ErrConfiguration))
		})

		It("accepts provider names in any case", func() {
			request.LLMProvider = "OpenAI"
			Expect(newMatcher(1).Validate(request)).To(Succeed())
		})

		DescribeTable("rejects malformed requests",
			func(mutate func(*models.MatchRequest)) {
				mutate(&request)
				_, err := newMatcher(1).Match(ctx, request)
				Expect(err).To(MatchError(services.ErrInvalidRequest))
				Expect(embedder.Calls()).To(Equal(0))
			},
			Entry("no cv ids", func(r *models.MatchRequest) { r.CVIDs = nil }),
			Entry("blank cv id", func(r *models.MatchRequest) { r.CVIDs = []string{"cv_1", ""} }),
			Entry("zero top_k", func(r *models.MatchRequest) { r.TopK = 0 }),
			Entry("missing job title", func(r *models.MatchRequest) { r.JobTitle = "" }),
			Entry("missing job description", func(r *models.MatchRequest) { r.JobDescription = "" }),
		)
	})
})
