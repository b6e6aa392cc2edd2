package services

import (
	"context"
	"errors"
	"fmt"

	"alfredoptarigan/cv-matcher/internal/repositories"
)

type CVContent struct {
	ID       string
	Filename string
	Text     string
}

// CVSource supplies the text of a CV at scoring time.
type CVSource interface {
	Load(ctx context.Context, cvID string) (*CVContent, error)
}

type repositoryCVSource struct {
	repo repositories.CVRepository
}

// NewRepositoryCVSource reads CV text stored by the ingestion path.
func NewRepositoryCVSource(repo repositories.CVRepository) CVSource {
	return &repositoryCVSource{repo: repo}
}

// Load implements CVSource.
func (s *repositoryCVSource) Load(ctx context.Context, cvID string) (*CVContent, error) {
	doc, err := s.repo.FindByID(ctx, cvID)
	if err != nil {
		if errors.Is(err, repositories.ErrRecordNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrCVNotFound, cvID)
		}
		return nil, fmt.Errorf("%w: %v", ErrStore, err)
	}

	return &CVContent{ID: doc.ID, Filename: doc.Filename, Text: doc.Content}, nil
}
