package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/repositories"
)

// Worker runs queued match jobs in the background.
type Worker interface {
	Start(ctx context.Context)
	Stop()
	EnqueueJob(jobID uuid.UUID)
	// ProcessJob runs one job synchronously and persists its outcome.
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
}

type worker struct {
	jobRepo      repositories.MatchJobRepository
	matcher      BatchMatcher
	jobQueue     chan uuid.UUID
	concurrency  int
	pollInterval time.Duration
	jobLease     time.Duration
	wg           sync.WaitGroup
	stopChan     chan struct{}
	stopOnce     sync.Once
	logger       *zap.Logger
}

func NewWorker(
	jobRepo repositories.MatchJobRepository,
	matcher BatchMatcher,
	concurrency int,
	pollInterval time.Duration,
	jobLease time.Duration,
	logger *zap.Logger,
) Worker {
	if concurrency <= 0 {
		concurrency = 1
	}
	if pollInterval <= 0 {
		pollInterval = 10 * time.Second
	}

	return &worker{
		jobRepo:      jobRepo,
		matcher:      matcher,
		jobQueue:     make(chan uuid.UUID, 100),
		concurrency:  concurrency,
		pollInterval: pollInterval,
		jobLease:     jobLease,
		stopChan:     make(chan struct{}),
		logger:       logger.Named("worker"),
	}
}

// Start implements Worker.
func (w *worker) Start(ctx context.Context) {
	w.logger.Info("starting worker", zap.Int("concurrency", w.concurrency))

	w.requeueStaleJobs(ctx)

	for i := 0; i < w.concurrency; i++ {
		w.wg.Add(1)
		go w.processJobs(ctx, i+1)
	}

	w.wg.Add(1)
	go w.pollPendingJobs(ctx)
}

// Stop implements Worker.
func (w *worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping worker")
		close(w.stopChan)
		w.wg.Wait()
		w.logger.Info("worker stopped")
	})
}

// EnqueueJob implements Worker.
func (w *worker) EnqueueJob(jobID uuid.UUID) {
	select {
	case w.jobQueue <- jobID:
		w.logger.Debug("job enqueued", zap.Stringer("job_id", jobID))
	case <-w.stopChan:
		w.logger.Warn("worker stopped, cannot enqueue job", zap.Stringer("job_id", jobID))
	}
}

// ProcessJob implements Worker.
func (w *worker) ProcessJob(ctx context.Context, jobID uuid.UUID) error {
	job, err := w.jobRepo.FindByID(ctx, jobID)
	if err != nil {
		return fmt.Errorf("failed to get match job: %w", err)
	}

	// The poller may re-enqueue a job that a worker already picked up.
	claimed, err := w.jobRepo.Claim(ctx, jobID)
	if err != nil {
		return err
	}
	if !claimed {
		w.logger.Debug("skipping job that is not queued", zap.Stringer("job_id", jobID), zap.String("status", string(job.Status)))
		return nil
	}

	var req models.MatchRequest
	if err := json.Unmarshal([]byte(job.Request), &req); err != nil {
		return w.failJob(ctx, jobID, fmt.Errorf("failed to decode match request: %w", err))
	}

	result, err := w.matcher.Match(ctx, req)
	if err != nil {
		return w.failJob(ctx, jobID, err)
	}

	encoded, err := json.Marshal(result)
	if err != nil {
		return w.failJob(ctx, jobID, fmt.Errorf("failed to encode batch result: %w", err))
	}

	if err := w.jobRepo.UpdateResult(ctx, jobID, string(encoded)); err != nil {
		return fmt.Errorf("failed to save results: %w", err)
	}

	return nil
}

// requeueStaleJobs returns jobs stuck in processing longer than the lease to
// the queue; the poller then picks them up.
func (w *worker) requeueStaleJobs(ctx context.Context) {
	if w.jobLease <= 0 {
		return
	}

	count, err := w.jobRepo.RequeueStale(ctx, time.Now().Add(-w.jobLease))
	if err != nil {
		w.logger.Warn("failed to requeue stale jobs", zap.Error(err))
		return
	}
	if count > 0 {
		w.logger.Info("requeued stale jobs", zap.Int64("count", count))
	}
}

func (w *worker) failJob(ctx context.Context, jobID uuid.UUID, cause error) error {
	if err := w.jobRepo.UpdateError(ctx, jobID, cause.Error()); err != nil {
		w.logger.Error("failed to record job error", zap.Stringer("job_id", jobID), zap.Error(err))
	}
	return cause
}

func (w *worker) processJobs(ctx context.Context, workerID int) {
	defer w.wg.Done()
	log := w.logger.With(zap.Int("worker", workerID))

	for {
		select {
		case <-w.stopChan:
			log.Debug("worker routine stopped")
			return
		case <-ctx.Done():
			return
		case jobID := <-w.jobQueue:
			log.Info("processing job", zap.Stringer("job_id", jobID))
			if err := w.ProcessJob(ctx, jobID); err != nil {
				log.Error("failed to process job", zap.Stringer("job_id", jobID), zap.Error(err))
			} else {
				log.Info("completed job", zap.Stringer("job_id", jobID))
			}
		}
	}
}

func (w *worker) pollPendingJobs(ctx context.Context) {
	defer w.wg.Done()
	ticker := time.NewTicker(w.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopChan:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			pendingJobs, err := w.jobRepo.FindPendingJobs(ctx, 10)
			if err != nil {
				w.logger.Warn("failed to fetch pending jobs", zap.Error(err))
				continue
			}

			if len(pendingJobs) > 0 {
				w.logger.Info("found pending jobs", zap.Int("count", len(pendingJobs)))
			}

			for _, job := range pendingJobs {
				w.EnqueueJob(job.ID)
			}
		}
	}
}
