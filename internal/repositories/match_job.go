package repositories

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"alfredoptarigan/cv-matcher/internal/models"
)

type MatchJobRepository interface {
	Create(ctx context.Context, job *models.MatchJob) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.MatchJob, error)
	Claim(ctx context.Context, id uuid.UUID) (bool, error)
	UpdateResult(ctx context.Context, id uuid.UUID, result string) error
	UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error
	FindPendingJobs(ctx context.Context, limit int) ([]models.MatchJob, error)
	RequeueStale(ctx context.Context, before time.Time) (int64, error)
}

type matchJobRepository struct {
	db *gorm.DB
}

func NewMatchJobRepository(db *gorm.DB) MatchJobRepository {
	return &matchJobRepository{db: db}
}

func (r *matchJobRepository) Create(ctx context.Context, job *models.MatchJob) error {
	if err := r.db.WithContext(ctx).Create(job).Error; err != nil {
		return fmt.Errorf("failed to create match job: %w", err)
	}
	return nil
}

func (r *matchJobRepository) FindByID(ctx context.Context, id uuid.UUID) (*models.MatchJob, error) {
	var job models.MatchJob
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&job).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("match job %s: %w", id, ErrRecordNotFound)
		}
		return nil, fmt.Errorf("failed to find match job: %w", err)
	}
	return &job, nil
}

// Claim moves a queued job to processing. It reports false when the job was
// not queued, e.g. because another worker already took it.
func (r *matchJobRepository) Claim(ctx context.Context, id uuid.UUID) (bool, error) {
	result := r.db.WithContext(ctx).Model(&models.MatchJob{}).
		Where("id = ? AND status = ?", id, models.StatusQueued).
		Updates(map[string]interface{}{
			"status":     models.StatusProcessing,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return false, fmt.Errorf("failed to claim match job: %w", result.Error)
	}

	return result.RowsAffected == 1, nil
}

func (r *matchJobRepository) UpdateResult(ctx context.Context, id uuid.UUID, result string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status": models.StatusCompleted,
		"result": result,
	})
}

func (r *matchJobRepository) UpdateError(ctx context.Context, id uuid.UUID, errorMsg string) error {
	return r.update(ctx, id, map[string]interface{}{
		"status":        models.StatusFailed,
		"error_message": errorMsg,
	})
}

func (r *matchJobRepository) FindPendingJobs(ctx context.Context, limit int) ([]models.MatchJob, error) {
	var jobs []models.MatchJob
	err := r.db.WithContext(ctx).
		Where("status = ?", models.StatusQueued).
		Order("created_at ASC").
		Limit(limit).
		Find(&jobs).Error

	if err != nil {
		return nil, fmt.Errorf("failed to find pending jobs: %w", err)
	}

	return jobs, nil
}

// RequeueStale puts processing jobs last touched before the cutoff back in the
// queue. A worker that died mid-job leaves such rows behind.
func (r *matchJobRepository) RequeueStale(ctx context.Context, before time.Time) (int64, error) {
	result := r.db.WithContext(ctx).Model(&models.MatchJob{}).
		Where("status = ? AND updated_at < ?", models.StatusProcessing, before).
		Updates(map[string]interface{}{
			"status":     models.StatusQueued,
			"updated_at": time.Now(),
		})

	if result.Error != nil {
		return 0, fmt.Errorf("failed to requeue stale jobs: %w", result.Error)
	}

	return result.RowsAffected, nil
}

func (r *matchJobRepository) update(ctx context.Context, id uuid.UUID, updates map[string]interface{}) error {
	updates["updated_at"] = time.Now()

	result := r.db.WithContext(ctx).Model(&models.MatchJob{}).
		Where("id = ?", id).
		Updates(updates)

	if result.Error != nil {
		return fmt.Errorf("failed to update match job: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("match job %s: %w", id, ErrRecordNotFound)
	}

	return nil
}
