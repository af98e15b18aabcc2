package domain

import "time"

type DocumentStatus string

const (
	StatusPending    DocumentStatus = "pending"
	StatusProcessing DocumentStatus = "processing"
	StatusCompleted  DocumentStatus = "completed"
	StatusFailed     DocumentStatus = "failed"
)

// IsTerminal reports whether no further automatic transition occurs.
func (s DocumentStatus) IsTerminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Document is one uploaded artifact tracked through the processing
// lifecycle. PatientID, PatientName and RecognizedText hold field-level
// encryption tokens, never plaintext; StoragePath always references an
// encrypted blob.
type Document struct {
	ID                string            `json:"id"`
	Filename          string            `json:"filename"`
	StoragePath       string            `json:"storage_path"`
	FileSize          int64             `json:"file_size"`
	FileType          string            `json:"file_type"`
	ReportType        string            `json:"report_type,omitempty"`
	ReportDate        *time.Time        `json:"report_date,omitempty"`
	PatientID         string            `json:"patient_id,omitempty"`
	PatientName       string            `json:"patient_name,omitempty"`
	UploadedBy        string            `json:"uploaded_by,omitempty"`
	Status            DocumentStatus    `json:"status"`
	RecognizedText    string            `json:"-"`
	Confidence        *float64          `json:"confidence,omitempty"`
	ProcessingTime    *float64          `json:"processing_time,omitempty"`
	Result            *ProcessingResult `json:"result,omitempty"`
	AccessCount       int64             `json:"access_count"`
	LastAccessedAt    *time.Time        `json:"last_accessed_at,omitempty"`
	EncryptionVersion int               `json:"encryption_version"`
	CreatedAt         time.Time         `json:"created_at"`
	UpdatedAt         time.Time         `json:"updated_at"`
}

// ProcessingResult is the terminal payload of one processing attempt.
// Exactly one branch is set: Summary for completed documents, Failure for
// failed ones.
type ProcessingResult struct {
	Summary *ResultSummary `json:"summary,omitempty"`
	Failure *ResultFailure `json:"failure,omitempty"`
}

type ResultSummary struct {
	EntityCounts map[string]int `json:"entity_counts"`
	Pages        int            `json:"pages"`
}

type ResultFailure struct {
	Message string `json:"message"`
}

func SummaryResult(entityCounts map[string]int, pages int) *ProcessingResult {
	if entityCounts == nil {
		entityCounts = map[string]int{}
	}
	return &ProcessingResult{Summary: &ResultSummary{EntityCounts: entityCounts, Pages: pages}}
}

func FailureResult(message string) *ProcessingResult {
	return &ProcessingResult{Failure: &ResultFailure{Message: message}}
}

// Entity is a structured fact extracted from a document's recognized text.
// Entity rows exist only for documents that reached StatusCompleted.
type Entity struct {
	ID             string    `json:"id"`
	DocumentID     string    `json:"document_id"`
	Kind           string    `json:"kind"`
	Text           string    `json:"text"`
	NormalizedText string    `json:"normalized_text,omitempty"`
	Context        string    `json:"context,omitempty"`
	StartOffset    *int      `json:"start_offset,omitempty"`
	EndOffset      *int      `json:"end_offset,omitempty"`
	Confidence     *float64  `json:"confidence,omitempty"`
	Codes          []string  `json:"codes,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

// RecognitionResult is the output contract of a recognition engine run.
type RecognitionResult struct {
	Success        bool    `json:"success"`
	Text           string  `json:"text"`
	Confidence     float64 `json:"confidence"`
	ProcessingTime float64 `json:"processing_time"`
	Pages          int     `json:"pages"`
	Err            string  `json:"error,omitempty"`
}

// ExtractedItem is one raw hit reported by the entity engine.
type ExtractedItem struct {
	Text       string   `json:"text"`
	Confidence float64  `json:"confidence"`
	Context    string   `json:"context"`
	Start      int      `json:"start"`
	End        int      `json:"end"`
	Codes      []string `json:"codes,omitempty"`
}

// ExtractionResult maps an entity kind to the items found for it.
type ExtractionResult map[string][]ExtractedItem

func (r ExtractionResult) Counts() map[string]int {
	counts := make(map[string]int, len(r))
	for kind, items := range r {
		counts[kind] = len(items)
	}
	return counts
}

func (r ExtractionResult) Total() int {
	total := 0
	for _, items := range r {
		total += len(items)
	}
	return total
}

// Completion carries everything the record store must persist atomically
// when a document transitions to StatusCompleted: either all of it becomes
// durable or none of it does.
type Completion struct {
	RecognizedText string // field-level encryption token
	Confidence     float64
	ProcessingTime float64
	Result         *ProcessingResult
	Entities       []Entity
}

// UploadReceipt is returned to the caller immediately after a successful
// upload, before any processing has run.
type UploadReceipt struct {
	DocumentID string `json:"document_id"`
	Filename   string `json:"filename"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// BatchItemResult is the per-file outcome of a batch upload. A failed item
// carries no DocumentID and does not abort its siblings.
type BatchItemResult struct {
	Filename   string `json:"filename"`
	DocumentID string `json:"document_id,omitempty"`
	Status     string `json:"status"`
	Message    string `json:"message"`
}

// AuditEvent records one state-changing operation. The core emits events;
// retention belongs to the sink.
type AuditEvent struct {
	Actor        string         `json:"actor"`
	Action       string         `json:"action"`
	ResourceKind string         `json:"resource_kind"`
	ResourceID   string         `json:"resource_id"`
	At           time.Time      `json:"at"`
	Details      map[string]any `json:"details,omitempty"`
}
