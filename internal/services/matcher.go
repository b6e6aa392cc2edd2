package services

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"alfredoptarigan/cv-matcher/internal/metrics"
	"alfredoptarigan/cv-matcher/internal/models"
)

// BatchMatcher ranks a set of CVs against one job description.
type BatchMatcher interface {
	// Validate checks the request and resolves its provider without running anything.
	Validate(req models.MatchRequest) error
	Match(ctx context.Context, req models.MatchRequest) (*models.BatchResult, error)
}

type batchMatcher struct {
	embedder    Embedder
	index       VectorIndex
	scorers     *ScorerRegistry
	tracer      Tracer
	cvSource    CVSource
	validate    *validator.Validate
	opts        PipelineOptions
	concurrency int
	logger      *zap.Logger
	now         func() time.Time
}

func NewBatchMatcher(
	embedder Embedder,
	index VectorIndex,
	scorers *ScorerRegistry,
	tracer Tracer,
	cvSource CVSource,
	opts PipelineOptions,
	concurrency int,
	logger *zap.Logger,
) BatchMatcher {
	if concurrency <= 0 {
		concurrency = 1
	}
	if tracer == nil {
		tracer = NewNopTracer()
	}

	return &batchMatcher{
		embedder:    embedder,
		index:       index,
		scorers:     scorers,
		tracer:      tracer,
		cvSource:    cvSource,
		validate:    validator.New(),
		opts:        opts,
		concurrency: concurrency,
		logger:      logger.Named("matcher"),
		now:         time.Now,
	}
}

// runOutcome is one CV's run. systemic marks a failure of a shared
// dependency; missing marks a CV id the source does not know.
type runOutcome struct {
	result   *models.MatchResult
	err      error
	systemic bool
	missing  bool
}

// Match implements BatchMatcher. Per-CV failures are logged and the CV is
// left out of the result. An error is returned only for an invalid request,
// an unusable provider, or when every CV failed on a shared dependency.
func (m *batchMatcher) Match(ctx context.Context, req models.MatchRequest) (*models.BatchResult, error) {
	scorer, err := m.resolve(req)
	if err != nil {
		return nil, err
	}

	start := time.Now()
	defer func() {
		metrics.ObserveBatchDuration(string(scorer.Provider()), time.Since(start))
	}()

	log := m.logger.With(zap.String("job_title", req.JobTitle), zap.String("provider", string(scorer.Provider())))
	log.Info("starting matching", zap.Int("cvs", len(req.CVIDs)), zap.Int("top_k", req.TopK))

	pipeline := NewMatchPipeline(m.embedder, m.index, scorer, m.tracer, m.opts, m.logger)

	// Outcomes are stored by input position so ranking never depends on
	// completion order.
	outcomes := make([]runOutcome, len(req.CVIDs))
	g := new(errgroup.Group)
	g.SetLimit(m.concurrency)
	for i, cvID := range req.CVIDs {
		g.Go(func() error {
			outcomes[i] = m.runOne(ctx, pipeline, req, cvID)
			return nil
		})
	}
	_ = g.Wait()

	matches := make([]models.MatchResult, 0, len(outcomes))
	failed := 0
	systemicFailed := 0
	var lastSystemicErr error
	// Unknown CV ids are skipped and do not count towards the upstream decision.
	allSystemic := true
	for i, out := range outcomes {
		if out.err != nil {
			failed++
			switch {
			case out.systemic:
				systemicFailed++
				lastSystemicErr = out.err
			case !out.missing:
				allSystemic = false
			}
			log.Error("error processing cv", zap.String("cv_id", req.CVIDs[i]), zap.Error(out.err))
			metrics.IncreasePipelineRunsMetric(metrics.OutcomeFailed)
			continue
		}
		matches = append(matches, *out.result)
		metrics.IncreasePipelineRunsMetric(metrics.OutcomeMatched)
	}

	if len(matches) == 0 && systemicFailed > 0 && allSystemic {
		return nil, fmt.Errorf("%w: %v", ErrUpstreamUnavailable, lastSystemicErr)
	}

	slices.SortStableFunc(matches, func(a, b models.MatchResult) int {
		return cmp.Compare(b.MatchScore, a.MatchScore)
	})
	if len(matches) > req.TopK {
		matches = matches[:req.TopK]
	}

	log.Info("matching completed", zap.Int("matches", len(matches)), zap.Int("failed", failed))

	return &models.BatchResult{
		JobTitle:     req.JobTitle,
		TotalMatched: len(matches),
		Matches:      matches,
		Timestamp:    m.now().UTC(),
	}, nil
}

// Validate implements BatchMatcher.
func (m *batchMatcher) Validate(req models.MatchRequest) error {
	_, err := m.resolve(req)
	return err
}

func (m *batchMatcher) resolve(req models.MatchRequest) (Scorer, error) {
	if err := m.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return m.scorers.Get(req.LLMProvider)
}

func (m *batchMatcher) runOne(ctx context.Context, pipeline *MatchPipeline, req models.MatchRequest, cvID string) (out runOutcome) {
	defer func() {
		if r := recover(); r != nil {
			out = runOutcome{err: fmt.Errorf("pipeline panicked: %v", r)}
		}
	}()

	cv, err := m.cvSource.Load(ctx, cvID)
	if err != nil {
		if errors.Is(err, ErrCVNotFound) {
			return runOutcome{err: err, missing: true}
		}
		return runOutcome{err: err, systemic: true}
	}

	st := pipeline.Run(ctx, PipelineInput{
		JobTitle:       req.JobTitle,
		JobDescription: req.JobDescription,
		CVID:           cvID,
		Filename:       cv.Filename,
		CVText:         cv.Text,
	})

	if st.Error != "" {
		return runOutcome{err: errors.New(st.Error), systemic: st.FailedStage.systemic()}
	}
	if st.MatchResult == nil {
		return runOutcome{err: fmt.Errorf("pipeline produced no result for %s", cvID)}
	}

	return runOutcome{result: st.MatchResult}
}
