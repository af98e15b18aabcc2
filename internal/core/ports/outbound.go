package ports

import (
	"context"
	"io"
	"time"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

// DocumentRepository persists document and entity state. Each status
// transition is a single self-contained read-modify-write on one
// document's rows; no cross-document locking is required.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)

	// MarkProcessing flips pending -> processing. A missing row yields
	// ErrDocumentNotFound so the caller can exit silently.
	MarkProcessing(ctx context.Context, id string) error

	// MarkFailed flips the document to the failed terminal state with a
	// human-readable failure payload. No entity rows are written.
	MarkFailed(ctx context.Context, id, message string) error

	// Complete commits the completed terminal state transactionally:
	// document fields and all entity rows, or nothing.
	Complete(ctx context.Context, id string, completion domain.Completion) error

	// ListEntities returns the entities persisted for a completed
	// document, oldest first.
	ListEntities(ctx context.Context, documentID string) ([]domain.Entity, error)

	// RecordAccess bumps the access counter and last-access timestamp.
	RecordAccess(ctx context.Context, id string) error

	// Delete removes the document and, by cascade, its entities.
	Delete(ctx context.Context, id string) error
}

// StagedFile describes freshly uploaded plaintext awaiting sealing.
type StagedFile struct {
	Path   string
	Size   int64
	SHA256 string
}

// VaultStats summarizes on-disk usage across the vault's roots.
type VaultStats struct {
	Files      int
	TotalBytes int64
}

// BlobVault owns the three filesystem namespaces: staging (plaintext
// awaiting sealing), the encrypted store (durable blobs) and scratch
// (transient plaintext for one processing attempt).
type BlobVault interface {
	// Stage writes the stream under the staging root, computing size and
	// a streaming SHA-256 digest.
	Stage(ctx context.Context, data io.Reader, originalName string) (StagedFile, error)

	// Seal encrypts the staged file into the encrypted store and removes
	// the staged plaintext only on confirmed success. On cipher failure
	// the staged file is left intact for operator inspection.
	Seal(ctx context.Context, stagedPath string) (string, error)

	// OpenForProcessing decrypts the blob into the scratch root for one
	// processing attempt. The returned cleanup removes the scratch file
	// and must run on every exit path.
	OpenForProcessing(ctx context.Context, encryptedRef string) (string, func(), error)

	Delete(path string) error
	VerifyIntegrity(path, expectedSHA256 string) (bool, error)

	// PurgeStaleTemp sweeps staging and scratch roots only; the encrypted
	// store is never touched.
	PurgeStaleTemp(maxAge time.Duration) (int, error)

	Stats() (VaultStats, error)
}

// Cipher is the symmetric authenticated encryption boundary. Safe for
// concurrent use; no I/O.
type Cipher interface {
	EncryptBytes(plain []byte) ([]byte, error)
	DecryptBytes(ciphertext []byte) ([]byte, error)
	EncryptField(text string) (string, error)
	DecryptField(token string) (string, error)

	// HashForMatching is one-way and salted; the same input and salt
	// always yield the same hash. A nil salt generates a fresh one.
	HashForMatching(text string, salt []byte) (hash, usedSalt string, err error)
}

// Recognizer converts a plaintext document file into recognized text with
// a confidence score. Implementations must be safe for concurrent
// invocation by multiple processing units.
type Recognizer interface {
	Recognize(ctx context.Context, path, fileType string) (domain.RecognitionResult, error)
}

// EntityExtractor pulls typed entities out of recognized text.
type EntityExtractor interface {
	Extract(ctx context.Context, text string) (domain.ExtractionResult, error)

	// Normalize maps a raw span to its canonical form for the given kind.
	Normalize(text, kind string) string
}

// ProcessingQueue hands staged documents off to detached processing
// without blocking the upload request.
type ProcessingQueue interface {
	PublishDocumentStaged(ctx context.Context, documentID string) error
	SubscribeDocumentStaged(ctx context.Context, handler func(context.Context, string) error) error
}

// AuditSink receives one event per state-changing operation. Delivery is
// best-effort; the sink owns serialization and retention.
type AuditSink interface {
	Record(ctx context.Context, event domain.AuditEvent)
}
