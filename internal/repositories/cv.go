package repositories

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"alfredoptarigan/cv-matcher/internal/models"
)

// ErrRecordNotFound is returned when a lookup or delete matches no rows.
var ErrRecordNotFound = errors.New("record not found")

type CVRepository interface {
	Upsert(ctx context.Context, doc *models.CVDocument) error
	FindByID(ctx context.Context, id string) (*models.CVDocument, error)
	List(ctx context.Context) ([]models.CVDocument, error)
	Delete(ctx context.Context, id string) error
}

type cvRepository struct {
	db *gorm.DB
}

func NewCVRepository(db *gorm.DB) CVRepository {
	return &cvRepository{db: db}
}

// Upsert implements CVRepository. Re-ingesting an ID replaces filename and content.
func (r *cvRepository) Upsert(ctx context.Context, doc *models.CVDocument) error {
	err := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"filename", "content", "updated_at"}),
		}).
		Create(doc).Error
	if err != nil {
		return fmt.Errorf("failed to upsert cv document: %w", err)
	}

	return nil
}

// FindByID implements CVRepository.
func (r *cvRepository) FindByID(ctx context.Context, id string) (*models.CVDocument, error) {
	var doc models.CVDocument
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&doc).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("cv document %s: %w", id, ErrRecordNotFound)
		}

		return nil, fmt.Errorf("failed to find cv document: %w", err)
	}

	return &doc, nil
}

// List implements CVRepository. Content is not loaded.
func (r *cvRepository) List(ctx context.Context) ([]models.CVDocument, error) {
	var docs []models.CVDocument
	err := r.db.WithContext(ctx).
		Select("id", "filename", "created_at", "updated_at").
		Order("created_at ASC").
		Find(&docs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list cv documents: %w", err)
	}

	return docs, nil
}

// Delete implements CVRepository.
func (r *cvRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Where("id = ?", id).Delete(&models.CVDocument{})
	if result.Error != nil {
		return fmt.Errorf("failed to delete cv document: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		return fmt.Errorf("cv document %s: %w", id, ErrRecordNotFound)
	}

	return nil
}
