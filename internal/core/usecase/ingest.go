package usecase

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
	"github.com/medinsight/insight-engine/internal/observability/audit"
)

// IngestLimits bounds what the gateway accepts. Extensions are compared
// case-insensitively without the leading dot.
type IngestLimits struct {
	MaxUploadSize     int64
	AllowedExtensions []string
	MaxBatchSize      int
}

type IngestDocumentUseCase struct {
	repo   ports.DocumentRepository
	vault  ports.BlobVault
	cipher ports.Cipher
	queue  ports.ProcessingQueue
	audit  ports.AuditSink

	maxUploadSize int64
	maxBatchSize  int
	allowedExts   map[string]struct{}
	encVersion    int
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	vault ports.BlobVault,
	cipher ports.Cipher,
	queue ports.ProcessingQueue,
	auditSink ports.AuditSink,
	limits IngestLimits,
	encryptionVersion int,
) *IngestDocumentUseCase {
	allowed := make(map[string]struct{}, len(limits.AllowedExtensions))
	for _, ext := range limits.AllowedExtensions {
		allowed[strings.ToLower(strings.TrimPrefix(ext, "."))] = struct{}{}
	}
	maxBatch := limits.MaxBatchSize
	if maxBatch <= 0 {
		maxBatch = 10
	}
	return &IngestDocumentUseCase{
		repo:          repo,
		vault:         vault,
		cipher:        cipher,
		queue:         queue,
		audit:         auditSink,
		maxUploadSize: limits.MaxUploadSize,
		maxBatchSize:  maxBatch,
		allowedExts:   allowed,
		encVersion:    encryptionVersion,
	}
}

// Upload validates, stages, seals and records one document, then schedules
// processing. It returns as soon as the pending record is durable; no
// recognition or extraction has run yet.
func (uc *IngestDocumentUseCase) Upload(ctx context.Context, req ports.UploadRequest) (*domain.UploadReceipt, error) {
	fileType, err := uc.validate(req)
	if err != nil {
		return nil, err
	}

	staged, err := uc.vault.Stage(ctx, req.Body, req.Filename)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStorage, "stage upload", err)
	}

	if staged.Size == 0 {
		_ = uc.vault.Delete(staged.Path)
		return nil, domain.WrapError(domain.ErrInvalidInput, "stage upload", errors.New("empty file"))
	}
	if uc.maxUploadSize > 0 && staged.Size > uc.maxUploadSize {
		_ = uc.vault.Delete(staged.Path)
		return nil, domain.WrapError(
			domain.ErrPayloadTooLarge,
			"stage upload",
			fmt.Errorf("%d bytes exceeds limit of %d", staged.Size, uc.maxUploadSize),
		)
	}

	encryptedRef, err := uc.vault.Seal(ctx, staged.Path)
	if err != nil {
		return nil, fmt.Errorf("seal upload: %w", err)
	}

	patientID, patientName, err := uc.encryptPatientFields(req.PatientID, req.PatientName)
	if err != nil {
		_ = uc.vault.Delete(encryptedRef)
		return nil, domain.WrapError(domain.ErrEncryption, "encrypt patient fields", err)
	}

	now := time.Now().UTC()
	doc := &domain.Document{
		ID:                uuid.NewString(),
		Filename:          req.Filename,
		StoragePath:       encryptedRef,
		FileSize:          staged.Size,
		FileType:          fileType,
		ReportType:        req.ReportType,
		ReportDate:        parseReportDate(req.ReportDate),
		PatientID:         patientID,
		PatientName:       patientName,
		UploadedBy:        req.Actor,
		Status:            domain.StatusPending,
		EncryptionVersion: uc.encVersion,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		_ = uc.vault.Delete(encryptedRef)
		return nil, domain.WrapError(domain.ErrStorage, "create document record", err)
	}

	if err := uc.queue.PublishDocumentStaged(ctx, doc.ID); err != nil {
		// The pending record is unreachable by any worker without its
		// queue message, so roll the whole upload back.
		_ = uc.repo.Delete(ctx, doc.ID)
		_ = uc.vault.Delete(encryptedRef)
		return nil, domain.WrapError(domain.ErrStorage, "schedule processing", err)
	}

	uc.audit.Record(ctx, audit.Event(req.Actor, audit.ActionUploadAccepted, doc.ID, map[string]any{
		"filename":  doc.Filename,
		"file_type": doc.FileType,
		"file_size": doc.FileSize,
	}))

	return &domain.UploadReceipt{
		DocumentID: doc.ID,
		Filename:   doc.Filename,
		Status:     string(domain.StatusPending),
		Message:    "document accepted for processing",
	}, nil
}

// UploadBatch ingests up to the configured maximum of documents with
// partial-success semantics: a rejected or failed item never aborts its
// siblings, and results retain input order.
func (uc *IngestDocumentUseCase) UploadBatch(ctx context.Context, reqs []ports.UploadRequest) ([]domain.BatchItemResult, error) {
	if len(reqs) == 0 {
		return nil, domain.WrapError(domain.ErrInvalidInput, "batch upload", errors.New("no files provided"))
	}
	if len(reqs) > uc.maxBatchSize {
		return nil, domain.WrapError(
			domain.ErrInvalidInput,
			"batch upload",
			fmt.Errorf("%d files exceeds batch limit of %d", len(reqs), uc.maxBatchSize),
		)
	}

	results := make([]domain.BatchItemResult, len(reqs))
	var group errgroup.Group
	group.SetLimit(4)
	for i, req := range reqs {
		group.Go(func() error {
			receipt, err := uc.Upload(ctx, req)
			if err != nil {
				results[i] = domain.BatchItemResult{
					Filename: req.Filename,
					Status:   string(domain.StatusFailed),
					Message:  err.Error(),
				}
				return nil
			}
			results[i] = domain.BatchItemResult{
				Filename:   receipt.Filename,
				DocumentID: receipt.DocumentID,
				Status:     receipt.Status,
				Message:    receipt.Message,
			}
			return nil
		})
	}
	_ = group.Wait()
	return results, nil
}

func (uc *IngestDocumentUseCase) validate(req ports.UploadRequest) (string, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("missing filename"))
	}
	if req.Body == nil {
		return "", domain.WrapError(domain.ErrInvalidInput, "validate upload", errors.New("missing file body"))
	}
	ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(req.Filename), "."))
	if ext == "" {
		return "", domain.WrapError(domain.ErrUnsupportedType, "validate upload", errors.New("filename has no extension"))
	}
	if _, ok := uc.allowedExts[ext]; !ok {
		return "", domain.WrapError(domain.ErrUnsupportedType, "validate upload", fmt.Errorf("extension %q not allowed", ext))
	}
	return ext, nil
}

func (uc *IngestDocumentUseCase) encryptPatientFields(patientID, patientName string) (string, string, error) {
	idToken, err := uc.cipher.EncryptField(patientID)
	if err != nil {
		return "", "", fmt.Errorf("patient id: %w", err)
	}
	nameToken, err := uc.cipher.EncryptField(patientName)
	if err != nil {
		return "", "", fmt.Errorf("patient name: %w", err)
	}
	return idToken, nameToken, nil
}

// parseReportDate accepts the common ISO-8601 shapes uploads carry. An
// unparsable or empty value maps to absent rather than an error.
func parseReportDate(value string) *time.Time {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02T15:04:05", "2006-01-02"} {
		if parsed, err := time.Parse(layout, value); err == nil {
			parsed = parsed.UTC()
			return &parsed
		}
	}
	return nil
}
