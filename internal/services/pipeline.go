package services

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/logger"
	"alfredoptarigan/cv-matcher/internal/metrics"
	"alfredoptarigan/cv-matcher/internal/models"
)

type Stage string

const (
	StageEmbedJob           Stage = "embed_job"
	StageRetrieveCandidates Stage = "retrieve_candidates"
	StagePrepareCV          Stage = "prepare_cv"
	StageScoreWithLLM       Stage = "score_with_llm"
	StageFormatResult       Stage = "format_result"
)

// systemic reports whether a failure in this stage points at a shared
// dependency rather than at the individual CV.
func (s Stage) systemic() bool {
	return s == StageEmbedJob || s == StageRetrieveCandidates
}

const (
	defaultRetrievalLimit = 10
	defaultCVLineLimit    = 50
)

// PipelineInput is the job context plus one CV.
type PipelineInput struct {
	JobTitle       string
	JobDescription string
	CVID           string
	Filename       string
	CVText         string
}

// PipelineState is threaded through the stages of one run and owned by it.
// Once Error is set the remaining stages pass the state through untouched,
// so MatchResult and Error are never both set.
type PipelineState struct {
	JobTitle          string
	JobDescription    string
	CVID              string
	Filename          string
	CVText            string
	Embedding         []float32
	SimilarCandidates []Candidate
	Judgment          *Judgment
	MatchResult       *models.MatchResult
	Error             string
	FailedStage       Stage
}

type PipelineOptions struct {
	// RetrievalLimit is the number of neighbours fetched in retrieve_candidates.
	RetrievalLimit int
	// CVLineLimit bounds the CV text sent to the LLM.
	CVLineLimit int
}

// MatchPipeline runs embed_job, retrieve_candidates, prepare_cv,
// score_with_llm and format_result for one job/CV pair.
type MatchPipeline struct {
	embedder Embedder
	index    VectorIndex
	scorer   Scorer
	tracer   Tracer
	prompts  *PromptBuilder
	opts     PipelineOptions
	logger   *zap.Logger
}

type stage struct {
	name Stage
	run  func(ctx context.Context, st *PipelineState) error
}

func NewMatchPipeline(
	embedder Embedder,
	index VectorIndex,
	scorer Scorer,
	tracer Tracer,
	opts PipelineOptions,
	logger *zap.Logger,
) *MatchPipeline {
	if opts.RetrievalLimit <= 0 {
		opts.RetrievalLimit = defaultRetrievalLimit
	}
	if opts.CVLineLimit <= 0 {
		opts.CVLineLimit = defaultCVLineLimit
	}
	if tracer == nil {
		tracer = NewNopTracer()
	}

	return &MatchPipeline{
		embedder: embedder,
		index:    index,
		scorer:   scorer,
		tracer:   tracer,
		prompts:  NewPromptBuilder(),
		opts:     opts,
		logger:   logger.Named("pipeline"),
	}
}

// Run executes every stage in order and never returns an error; failures are
// reported through PipelineState.Error.
func (p *MatchPipeline) Run(ctx context.Context, in PipelineInput) *PipelineState {
	st := &PipelineState{
		JobTitle:       in.JobTitle,
		JobDescription: in.JobDescription,
		CVID:           in.CVID,
		Filename:       in.Filename,
		CVText:         in.CVText,
	}

	stages := []stage{
		{StageEmbedJob, p.embedJob},
		{StageRetrieveCandidates, p.retrieveCandidates},
		{StagePrepareCV, p.prepareCV},
		{StageScoreWithLLM, p.scoreWithLLM},
		{StageFormatResult, p.formatResult},
	}

	for _, s := range stages {
		p.runStage(ctx, st, s)
	}

	return st
}

func (p *MatchPipeline) runStage(ctx context.Context, st *PipelineState, s stage) {
	if st.Error != "" {
		return
	}

	log := p.logger.With(zap.String("stage", string(s.name)), zap.String("cv_id", st.CVID))

	defer func() {
		if r := recover(); r != nil {
			log.Error("stage panicked", zap.Any("panic", r))
			p.fail(st, s.name, fmt.Errorf("%s panicked: %v", s.name, r))
		}
	}()

	log.Debug("running stage")
	if err := s.run(ctx, st); err != nil {
		log.Error("stage failed", zap.Error(err))
		p.fail(st, s.name, err)
	}
}

func (p *MatchPipeline) fail(st *PipelineState, name Stage, err error) {
	st.Error = err.Error()
	st.FailedStage = name
	st.MatchResult = nil
	metrics.IncreaseStageFailuresMetric(string(name))
}

func (p *MatchPipeline) embedJob(ctx context.Context, st *PipelineState) error {
	embedding, err := p.embedder.Embed(ctx, st.JobTitle+"\n"+st.JobDescription)
	if err != nil {
		return err
	}

	st.Embedding = embedding
	p.tracer.Record(ctx, "embedding_generation", map[string]any{
		"text_length":         len(st.JobDescription),
		"embedding_dimension": len(embedding),
	})
	return nil
}

// retrieveCandidates stores the nearest CVs to the job. Nothing downstream
// reads SimilarCandidates yet; the prompt is built from the CV alone.
func (p *MatchPipeline) retrieveCandidates(ctx context.Context, st *PipelineState) error {
	candidates, err := p.index.Query(ctx, st.Embedding, p.opts.RetrievalLimit)
	if err != nil {
		return err
	}

	st.SimilarCandidates = candidates
	p.logger.Debug("retrieved similar candidates",
		zap.String("cv_id", st.CVID),
		zap.Int("count", len(candidates)))
	return nil
}

func (p *MatchPipeline) prepareCV(_ context.Context, st *PipelineState) error {
	if !utf8.ValidString(st.CVText) {
		return fmt.Errorf("%w: cv %s is not valid UTF-8", ErrInvalidRequest, st.CVID)
	}
	if strings.TrimSpace(st.CVText) == "" {
		return fmt.Errorf("%w: cv %s has no text", ErrInvalidRequest, st.CVID)
	}

	st.CVText = truncateLines(st.CVText, p.opts.CVLineLimit)
	return nil
}

func (p *MatchPipeline) scoreWithLLM(ctx context.Context, st *PipelineState) error {
	prompt := p.prompts.BuildMatchPrompt(st.JobTitle, st.JobDescription, st.CVText)

	response, err := p.scorer.Invoke(ctx, prompt)
	if err != nil {
		return err
	}

	p.tracer.Record(ctx, "llm_call", map[string]any{
		"model":           p.scorer.Model(),
		"provider":        string(p.scorer.Provider()),
		"prompt_length":   len(prompt),
		"response_length": len(response),
	})

	judgment := ParseJudgment(response)
	if judgment.Kind == JudgmentDegraded {
		p.logger.Warn("failed to parse LLM response as JSON",
			zap.String("cv_id", st.CVID),
			zap.String("response", logger.TruncateForLog(response, 200)))
		metrics.IncreaseDegradedJudgmentsMetric(string(p.scorer.Provider()))
	}

	st.Judgment = &judgment
	return nil
}

func (p *MatchPipeline) formatResult(ctx context.Context, st *PipelineState) error {
	var analysis MatchJudgment
	if st.Judgment != nil {
		analysis = st.Judgment.MatchJudgment
	}

	skills := analysis.MatchedSkills
	if skills == nil {
		skills = []string{}
	}

	filename := st.Filename
	if filename == "" {
		filename = st.CVID
	}

	st.MatchResult = &models.MatchResult{
		CVID:                st.CVID,
		Filename:            filename,
		MatchScore:          analysis.MatchScore,
		Reasoning:           analysis.Reasoning,
		MatchedSkills:       skills,
		ExperienceAlignment: analysis.ExperienceAlignment,
		OverallAssessment:   analysis.OverallAssessment,
	}

	p.tracer.Record(ctx, "cv_matching", map[string]any{
		"cv_filename": filename,
		"job_title":   st.JobTitle,
		"match_score": st.MatchResult.MatchScore,
		"reasoning":   st.MatchResult.Reasoning,
	})
	return nil
}

func truncateLines(text string, limit int) string {
	lines := strings.Split(text, "\n")
	if len(lines) <= limit {
		return text
	}
	return strings.Join(lines[:limit], "\n")
}
