package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
	"github.com/medinsight/insight-engine/internal/observability/audit"
)

const processingActor = "system:worker"

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	vault      ports.BlobVault
	cipher     ports.Cipher
	recognizer ports.Recognizer
	extractor  ports.EntityExtractor
	audit      ports.AuditSink
	log        *slog.Logger
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	vault ports.BlobVault,
	cipher ports.Cipher,
	recognizer ports.Recognizer,
	extractor ports.EntityExtractor,
	auditSink ports.AuditSink,
	log *slog.Logger,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		vault:      vault,
		cipher:     cipher,
		recognizer: recognizer,
		extractor:  extractor,
		audit:      auditSink,
		log:        log,
	}
}

// ProcessByID drives one document from pending to a terminal state. Every
// pipeline fault is contained: the document is marked failed with a
// diagnostic payload and the error is reported only as the operation's
// outcome. A document that no longer exists is skipped silently so a
// duplicate queue delivery cannot poison the worker.
func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) (err error) {
	// Third-party parsers can panic on malformed input. A panic that
	// escaped here would kill the worker's delivery goroutine and leave
	// the document in processing with no retry to ever rescue it, so it
	// is contained like any other pipeline fault.
	defer func() {
		if r := recover(); r != nil {
			uc.log.Error("processing_panic", "document_id", documentID, "panic", r)
			err = uc.markFailed(ctx, documentID, fmt.Errorf("processing panic: %v", r))
		}
	}()

	if err := uc.repo.MarkProcessing(ctx, documentID); err != nil {
		if domain.IsKind(err, domain.ErrDocumentNotFound) {
			uc.log.Warn("document_vanished_before_processing", "document_id", documentID)
			return nil
		}
		return fmt.Errorf("set status=processing: %w", err)
	}
	uc.audit.Record(ctx, audit.Event(processingActor, audit.ActionProcessingStarted, documentID, nil))

	completion, err := uc.runPipeline(ctx, documentID)
	if err != nil {
		return uc.markFailed(ctx, documentID, err)
	}

	if err := uc.repo.Complete(ctx, documentID, *completion); err != nil {
		return uc.markFailed(ctx, documentID, fmt.Errorf("persist results: %w", err))
	}

	uc.audit.Record(ctx, audit.Event(processingActor, audit.ActionProcessingCompleted, documentID, map[string]any{
		"entity_total":  len(completion.Entities),
		"entity_counts": completion.Result.Summary.EntityCounts,
	}))
	return nil
}

func (uc *ProcessDocumentUseCase) runPipeline(ctx context.Context, documentID string) (*domain.Completion, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document: %w", err)
	}

	scratchPath, cleanup, err := uc.vault.OpenForProcessing(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open document for processing: %w", err)
	}
	defer cleanup()

	recognition, err := uc.recognizer.Recognize(ctx, scratchPath, doc.FileType)
	if err != nil {
		return nil, fmt.Errorf("recognize document: %w", err)
	}
	if !recognition.Success {
		msg := recognition.Err
		if msg == "" {
			msg = "recognition failed"
		}
		return nil, fmt.Errorf("recognize document: %w", errors.New(msg))
	}

	extraction, err := uc.extractor.Extract(ctx, recognition.Text)
	if err != nil {
		return nil, fmt.Errorf("extract entities: %w", err)
	}

	textToken, err := uc.cipher.EncryptField(recognition.Text)
	if err != nil {
		return nil, domain.WrapError(domain.ErrEncryption, "encrypt recognized text", err)
	}

	return &domain.Completion{
		RecognizedText: textToken,
		Confidence:     recognition.Confidence,
		ProcessingTime: recognition.ProcessingTime,
		Result:         domain.SummaryResult(extraction.Counts(), recognition.Pages),
		Entities:       uc.buildEntities(documentID, extraction),
	}, nil
}

// buildEntities materializes extraction hits as entity rows in a
// deterministic order: kind, then position in text.
func (uc *ProcessDocumentUseCase) buildEntities(documentID string, extraction domain.ExtractionResult) []domain.Entity {
	kinds := make([]string, 0, len(extraction))
	for kind := range extraction {
		kinds = append(kinds, kind)
	}
	sort.Strings(kinds)

	now := time.Now().UTC()
	var entities []domain.Entity
	for _, kind := range kinds {
		for _, item := range extraction[kind] {
			start, end, confidence := item.Start, item.End, item.Confidence
			entities = append(entities, domain.Entity{
				ID:             uuid.NewString(),
				DocumentID:     documentID,
				Kind:           kind,
				Text:           item.Text,
				NormalizedText: uc.extractor.Normalize(item.Text, kind),
				Context:        item.Context,
				StartOffset:    &start,
				EndOffset:      &end,
				Confidence:     &confidence,
				Codes:          item.Codes,
				CreatedAt:      now,
			})
		}
	}
	return entities
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	// The pipeline context may already be expired (processing deadline);
	// the terminal status write must still land.
	failCtx := context.WithoutCancel(ctx)
	if markErr := uc.repo.MarkFailed(failCtx, documentID, processErr.Error()); markErr != nil {
		return fmt.Errorf("%w; mark failed status: %v", processErr, markErr)
	}
	uc.audit.Record(failCtx, audit.Event(processingActor, audit.ActionProcessingFailed, documentID, map[string]any{
		"error": processErr.Error(),
	}))
	return processErr
}
