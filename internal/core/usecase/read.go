package usecase

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
)

// ReadDocumentUseCase serves document state and extracted entities.
// Reads track access as a side effect; a failed access bump never fails
// the read itself.
type ReadDocumentUseCase struct {
	repo ports.DocumentRepository
	log  *slog.Logger
}

func NewReadDocumentUseCase(repo ports.DocumentRepository, log *slog.Logger) *ReadDocumentUseCase {
	return &ReadDocumentUseCase{repo: repo, log: log}
}

func (uc *ReadDocumentUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := uc.repo.RecordAccess(ctx, id); err != nil {
		uc.log.Warn("record_access_failed", "document_id", id, "error", err)
	}
	return doc, nil
}

func (uc *ReadDocumentUseCase) ListEntities(ctx context.Context, documentID string) ([]domain.Entity, error) {
	// Confirm the document exists first so a missing id yields the same
	// not-found error as a direct read, not an empty list.
	if _, err := uc.repo.GetByID(ctx, documentID); err != nil {
		return nil, err
	}
	entities, err := uc.repo.ListEntities(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	return entities, nil
}
