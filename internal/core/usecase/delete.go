package usecase

import (
	"context"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
	"github.com/medinsight/insight-engine/internal/observability/audit"
)

// DeleteDocumentUseCase removes a document's record, its entity rows and
// its encrypted blob. The record goes first: once the row is gone no
// reader or worker can reach the blob, so a trailing blob-removal fault
// leaves only an orphaned ciphertext file.
type DeleteDocumentUseCase struct {
	repo  ports.DocumentRepository
	vault ports.BlobVault
	audit ports.AuditSink
}

func NewDeleteDocumentUseCase(repo ports.DocumentRepository, vault ports.BlobVault, auditSink ports.AuditSink) *DeleteDocumentUseCase {
	return &DeleteDocumentUseCase{repo: repo, vault: vault, audit: auditSink}
}

func (uc *DeleteDocumentUseCase) Delete(ctx context.Context, id, actor string) error {
	doc, err := uc.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}

	if err := uc.repo.Delete(ctx, id); err != nil {
		return domain.WrapError(domain.ErrStorage, "delete document record", err)
	}
	if err := uc.vault.Delete(doc.StoragePath); err != nil {
		return domain.WrapError(domain.ErrStorage, "delete document blob", err)
	}

	uc.audit.Record(ctx, audit.Event(actor, audit.ActionDocumentDeleted, id, map[string]any{
		"filename": doc.Filename,
	}))
	return nil
}
