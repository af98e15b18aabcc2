package ports

import (
	"context"
	"io"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

// UploadRequest carries one incoming document and its optional metadata.
// PatientID and PatientName arrive in plaintext and are encrypted before
// anything is persisted. ReportDate is a lenient ISO-8601 string; an
// unparsable value is stored as absent, not rejected.
type UploadRequest struct {
	Filename    string
	Body        io.Reader
	PatientID   string
	PatientName string
	ReportType  string
	ReportDate  string
	Actor       string
}

// DocumentIngestor is the inbound contract for upload orchestration. Both
// operations return before any processing has run.
type DocumentIngestor interface {
	Upload(ctx context.Context, req UploadRequest) (*domain.UploadReceipt, error)

	// UploadBatch ingests up to the configured maximum of documents with
	// partial-success semantics: one result entry per input, in order.
	UploadBatch(ctx context.Context, reqs []UploadRequest) ([]domain.BatchItemResult, error)
}

// DocumentProcessor is the inbound contract for asynchronous processing.
// It always resolves the document into a terminal state and never
// re-raises past its boundary except to report the outcome to the worker.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document state and
// extracted entities.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	ListEntities(ctx context.Context, documentID string) ([]domain.Entity, error)
}

// DocumentRemover deletes a document, its entities and its backing blob.
type DocumentRemover interface {
	Delete(ctx context.Context, id, actor string) error
}
