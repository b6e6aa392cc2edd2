package services_test

import (
	"context"
	"fmt"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/services"
)

var _ = Describe("MatchPipeline", func() {
	var (
		ctx      context.Context
		embedder *fakeEmbedder
		index    *fakeIndex
		scorer   *fakeScorer
		tracer   *recordingTracer
		input    services.PipelineInput
	)

	newPipeline := func(opts services.PipelineOptions) *services.MatchPipeline {
		return services.NewMatchPipeline(embedder, index, scorer, tracer, opts, zap.NewNop())
	}

	BeforeEach(func() {
		ctx = context.Background()
		embedder = &fakeEmbedder{}
		index = newFakeIndex()
		index.candidates = []services.Candidate{
			{ID: "cv_9", Score: 0.8, Metadata: map[string]string{"filename": "other.txt"}},
		}
		scorer = &fakeScorer{fallback: judgmentJSON(0.82)}
		tracer = &recordingTracer{}
		input = services.PipelineInput{
			JobTitle:       "Data Engineer",
			JobDescription: "Spark and Airflow",
			CVID:           "cv_1",
			Filename:       "alice.txt",
			CVText:         "Alice\nSpark, Airflow, Python",
		}
	})

	It("runs every stage and produces a match result", func() {
		st := newPipeline(services.PipelineOptions{}).Run(ctx, input)

		Expect(st.Error).To(BeEmpty())
		Expect(st.Embedding).NotTo(BeEmpty())
		Expect(st.SimilarCandidates).To(HaveLen(1))
		Expect(st.Judgment).NotTo(BeNil())
		Expect(st.Judgment.Kind).To(Equal(services.JudgmentParsed))

		Expect(st.MatchResult).NotTo(BeNil())
		Expect(st.MatchResult.CVID).To(Equal("cv_1"))
		Expect(st.MatchResult.Filename).To(Equal("alice.txt"))
		Expect(st.MatchResult.MatchScore).To(Equal(0.82))
		Expect(st.MatchResult.MatchedSkills).To(Equal([]string{"go"}))

		Expect(tracer.Events()).To(Equal([]string{"embedding_generation", "llm_call", "cv_matching"}))
	})

	It("builds the prompt from the job and the CV", func() {
		newPipeline(services.PipelineOptions{}).Run(ctx, input)

		prompts := scorer.Prompts()
		Expect(prompts).To(HaveLen(1))
		Expect(prompts[0]).To(ContainSubstring("JOB TITLE: Data Engineer"))
		Expect(prompts[0]).To(ContainSubstring("Spark and Airflow"))
		Expect(prompts[0]).To(ContainSubstring("Spark, Airflow, Python"))
	})

	It("sends only the first lines of a long CV", func() {
		lines := make([]string, 0, 60)
		for i := 1; i <= 60; i++ {
			lines = append(lines, fmt.Sprintf("L%03d", i))
		}
		input.CVText = strings.Join(lines, "\n")

		st := newPipeline(services.PipelineOptions{}).Run(ctx, input)
		Expect(st.Error).To(BeEmpty())

		prompt := scorer.Prompts()[0]
		Expect(prompt).To(ContainSubstring("L050"))
		Expect(prompt).NotTo(ContainSubstring("L051"))
	})

	It("honours a custom line limit", func() {
		input.CVText = "one\ntwo\nthree"

		st := newPipeline(services.PipelineOptions{CVLineLimit: 2}).Run(ctx, input)
		Expect(st.CVText).To(Equal("one\ntwo"))
	})

	It("falls back to the CV id when the filename is unknown", func() {
		input.Filename = ""

		st := newPipeline(services.PipelineOptions{}).Run(ctx, input)
		Expect(st.MatchResult.Filename).To(Equal("cv_1"))
	})

	It("stops after a failing stage and leaves no result", func() {
		index.queryErr = fmt.Errorf("%w: connection refused", services.ErrRetrieval)

		st := newPipeline(services.PipelineOptions{}).Run(ctx, input)

		Expect(st.Error).To(ContainSubstring("connection refused"))
		Expect(st.FailedStage).To(Equal(services.StageRetrieveCandidates))
		Expect(st.MatchResult).To(BeNil())
		Expect(scorer.Prompts()).To(BeEmpty())
	})

	It("fails prepare_cv for a CV without text", func() {
		input.CVText = "  \n "

		st := newPipeline(services.PipelineOptions{}).Run(ctx, input)

		Expect(st.FailedStage).To(Equal(services.StagePrepareCV))
		Expect(st.MatchResult).To(BeNil())
	})

	It("turns a panicking stage into a failed state", func() {
		scorer.panicOn = "Alice"

		var st *services.PipelineState
		Expect(func() {
			st = newPipeline(services.PipelineOptions{}).Run(ctx, input)
		}).NotTo(Panic())

		Expect(st.FailedStage).To(Equal(services.StageScoreWithLLM))
		Expect(st.Error).To(ContainSubstring("panicked"))
		Expect(st.MatchResult).To(BeNil())
	})

	It("records the degraded judgment on an unparseable reply", func() {
		scorer.fallback = `{"match_score": 1.7}`

		st := newPipeline(services.PipelineOptions{}).Run(ctx, input)

		Expect(st.Error).To(BeEmpty())
		Expect(st.Judgment.Kind).To(Equal(services.JudgmentDegraded))
		Expect(st.MatchResult.MatchScore).To(Equal(0.5))
		Expect(st.MatchResult.Reasoning).To(Equal(`{"match_score": 1.7}`))
	})
})
