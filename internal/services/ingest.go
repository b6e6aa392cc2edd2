package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"alfredoptarigan/cv-matcher/internal/models"
	"alfredoptarigan/cv-matcher/internal/repositories"
)

// Number of leading characters kept in the vector metadata.
const contentPreviewChars = 500

// CVService manages the CV catalogue: stored text plus its vector.
type CVService interface {
	Ingest(ctx context.Context, cvID, filename, text string) (*IngestResult, error)
	Delete(ctx context.Context, cvID string) error
	List(ctx context.Context) ([]models.CVDocument, error)
	EmbedText(ctx context.Context, text string) ([]float32, error)
}

type IngestResult struct {
	CVID               string
	Filename           string
	EmbeddingDimension int
}

type cvService struct {
	repo     repositories.CVRepository
	embedder Embedder
	index    VectorIndex
	tracer   Tracer
	logger   *zap.Logger
}

func NewCVService(
	repo repositories.CVRepository,
	embedder Embedder,
	index VectorIndex,
	tracer Tracer,
	logger *zap.Logger,
) CVService {
	if tracer == nil {
		tracer = NewNopTracer()
	}

	return &cvService{
		repo:     repo,
		embedder: embedder,
		index:    index,
		tracer:   tracer,
		logger:   logger.Named("cv"),
	}
}

// Ingest implements CVService. An empty cvID gets a generated one.
func (s *cvService) Ingest(ctx context.Context, cvID, filename, text string) (*IngestResult, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: cv text is empty", ErrInvalidRequest)
	}

	cvID = strings.TrimSpace(cvID)
	if cvID == "" {
		cvID = uuid.NewString()
	}
	if filename == "" {
		filename = cvID
	}

	embedding, err := s.EmbedText(ctx, text)
	if err != nil {
		return nil, err
	}

	err = s.index.Upsert(ctx, []VectorRecord{{
		ID:     cvID,
		Vector: embedding,
		Metadata: map[string]string{
			"filename": filename,
			"content":  preview(text, contentPreviewChars),
		},
	}})
	if err != nil {
		return nil, err
	}

	if err := s.repo.Upsert(ctx, &models.CVDocument{ID: cvID, Filename: filename, Content: text}); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.logger.Info("cv ingested",
		zap.String("cv_id", cvID),
		zap.String("filename", filename),
		zap.Int("dimension", len(embedding)))

	return &IngestResult{CVID: cvID, Filename: filename, EmbeddingDimension: len(embedding)}, nil
}

// Delete implements CVService.
func (s *cvService) Delete(ctx context.Context, cvID string) error {
	if _, err := s.repo.FindByID(ctx, cvID); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrCVNotFound, cvID)
		}
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	// The document must outlive a failed index delete.
	if err := s.index.Delete(ctx, cvID); err != nil {
		return err
	}

	if err := s.repo.Delete(ctx, cvID); err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return fmt.Errorf("%w: %s", ErrCVNotFound, cvID)
		}
		return fmt.Errorf("%w: %v", ErrStore, err)
	}

	s.logger.Info("cv deleted", zap.String("cv_id", cvID))
	return nil
}

// List implements CVService.
func (s *cvService) List(ctx context.Context) ([]models.CVDocument, error) {
	docs, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}
	return docs, nil
}

// EmbedText implements CVService.
func (s *cvService) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: text is empty", ErrInvalidRequest)
	}

	embedding, err := s.embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}

	s.tracer.Record(ctx, "embedding_generation", map[string]any{
		"text_length":         len(text),
		"embedding_dimension": len(embedding),
	})
	return embedding, nil
}

func preview(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
