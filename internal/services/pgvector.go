package services

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/pgvector/pgvector-go"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type cvVector struct {
	ID        string          `gorm:"type:text;primaryKey"`
	Embedding pgvector.Vector `gorm:"not null"`
	Metadata  string          `gorm:"type:text"`
}

func (cvVector) TableName() string {
	return "cv_vectors"
}

type pgvectorIndex struct {
	db        *gorm.DB
	dimension int
	logger    *zap.Logger
}

// NewPgvectorIndex stores CV vectors next to the relational data in Postgres.
func NewPgvectorIndex(db *gorm.DB, dimension int, logger *zap.Logger) VectorIndex {
	return &pgvectorIndex{db: db, dimension: dimension, logger: logger.Named("pgvector")}
}

// EnsureCollection implements VectorIndex.
func (p *pgvectorIndex) EnsureCollection(ctx context.Context) error {
	db := p.db.WithContext(ctx)

	if err := db.Exec("CREATE EXTENSION IF NOT EXISTS vector").Error; err != nil {
		return fmt.Errorf("%w: failed to enable vector extension: %v", ErrStore, err)
	}

	stmt := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS cv_vectors (id text PRIMARY KEY, embedding vector(%d) NOT NULL, metadata text)",
		p.dimension,
	)
	if err := db.Exec(stmt).Error; err != nil {
		return fmt.Errorf("%w: failed to create cv_vectors table: %v", ErrStore, err)
	}

	p.logger.Info("cv_vectors table ready", zap.Int("dimension", p.dimension))
	return nil
}

// Upsert implements VectorIndex.
func (p *pgvectorIndex) Upsert(ctx context.Context, records []VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	rows := make([]cvVector, 0, len(records))
	for _, rec := range records {
		metadata, err := json.Marshal(rec.Metadata)
		if err != nil {
			return fmt.Errorf("%w: failed to encode metadata for %s: %v", ErrStore, rec.ID, err)
		}
		rows = append(rows, cvVector{
			ID:        rec.ID,
			Embedding: pgvector.NewVector(rec.Vector),
			Metadata:  string(metadata),
		})
	}

	err := p.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "id"}},
			DoUpdates: clause.AssignmentColumns([]string{"embedding", "metadata"}),
		}).
		Create(&rows).Error
	if err != nil {
		return fmt.Errorf("%w: failed to upsert vectors: %v", ErrStore, err)
	}

	return nil
}

// Query implements VectorIndex. Score is cosine similarity.
func (p *pgvectorIndex) Query(ctx context.Context, vector []float32, topK int) ([]Candidate, error) {
	query := pgvector.NewVector(vector)

	var rows []struct {
		ID       string
		Metadata string
		Score    float32
	}
	err := p.db.WithContext(ctx).
		Model(&cvVector{}).
		Select("id, metadata, 1 - (embedding <=> ?) AS score", query).
		Order(clause.Expr{SQL: "embedding <=> ?", Vars: []interface{}{query}}).
		Limit(topK).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query vectors: %v", ErrRetrieval, err)
	}

	candidates := make([]Candidate, 0, len(rows))
	for _, row := range rows {
		metadata := map[string]string{}
		if row.Metadata != "" {
			if err := json.Unmarshal([]byte(row.Metadata), &metadata); err != nil {
				p.logger.Warn("skipping unreadable metadata", zap.String("cv_id", row.ID), zap.Error(err))
			}
		}
		candidates = append(candidates, Candidate{ID: row.ID, Score: row.Score, Metadata: metadata})
	}

	return candidates, nil
}

// Delete implements VectorIndex.
func (p *pgvectorIndex) Delete(ctx context.Context, id string) error {
	if err := p.db.WithContext(ctx).Where("id = ?", id).Delete(&cvVector{}).Error; err != nil {
		return fmt.Errorf("%w: failed to delete vector: %v", ErrStore, err)
	}
	return nil
}
