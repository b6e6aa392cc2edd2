package services

import (
	"context"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"alfredoptarigan/cv-matcher/internal/config"
)

// Embedder maps text to a fixed-dimension vector. Failures wrap ErrEmbedding.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// VectorRecord is one (id, vector, metadata) triple stored in a VectorIndex.
type VectorRecord struct {
	ID       string
	Vector   []float32
	Metadata map[string]string
}

// Candidate is a nearest-neighbour hit, ordered by Score descending.
type Candidate struct {
	ID       string            `json:"id"`
	Score    float32           `json:"score"`
	Metadata map[string]string `json:"metadata"`
}

// VectorIndex stores CV vectors. Query failures wrap ErrRetrieval,
// Upsert/Delete failures wrap ErrStore.
type VectorIndex interface {
	EnsureCollection(ctx context.Context) error
	Upsert(ctx context.Context, records []VectorRecord) error
	Query(ctx context.Context, vector []float32, topK int) ([]Candidate, error)
	Delete(ctx context.Context, id string) error
}

// NewVectorIndex builds the index selected by VECTOR_BACKEND.
func NewVectorIndex(cfg *config.Config, db *gorm.DB, logger *zap.Logger) (VectorIndex, error) {
	switch cfg.Vector.Backend {
	case "qdrant":
		return NewQdrantIndex(cfg.Qdrant.URL, cfg.Qdrant.APIKey, cfg.Qdrant.Collection, cfg.Vector.Dimension, logger)
	case "pgvector":
		if cfg.Database.Type != "pgsql" {
			return nil, fmt.Errorf("%w: pgvector backend requires DB_TYPE=pgsql", ErrConfiguration)
		}
		return NewPgvectorIndex(db, cfg.Vector.Dimension, logger), nil
	default:
		return nil, fmt.Errorf("%w: unknown vector backend %q", ErrConfiguration, cfg.Vector.Backend)
	}
}
