package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

type DocumentRepository struct {
	db *sql.DB
}

func NewDocumentRepository(db *sql.DB) *DocumentRepository {
	return &DocumentRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *DocumentRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026090101)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS documents (
	id TEXT PRIMARY KEY,
	filename TEXT NOT NULL,
	storage_path TEXT NOT NULL,
	file_size BIGINT NOT NULL,
	file_type TEXT NOT NULL,
	report_type TEXT,
	report_date TIMESTAMPTZ,
	patient_id TEXT,
	patient_name TEXT,
	uploaded_by TEXT,
	status TEXT NOT NULL,
	recognized_text TEXT,
	confidence DOUBLE PRECISION,
	processing_time DOUBLE PRECISION,
	result JSONB,
	access_count BIGINT NOT NULL DEFAULT 0,
	last_accessed_at TIMESTAMPTZ,
	encryption_version INT NOT NULL DEFAULT 1,
	created_at TIMESTAMPTZ NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_documents_status ON documents(status);
CREATE INDEX IF NOT EXISTS idx_documents_created_at ON documents(created_at DESC);

CREATE TABLE IF NOT EXISTS entities (
	id TEXT PRIMARY KEY,
	document_id TEXT NOT NULL REFERENCES documents(id) ON DELETE CASCADE,
	kind TEXT NOT NULL,
	text TEXT NOT NULL,
	normalized_text TEXT,
	context TEXT,
	start_offset INT,
	end_offset INT,
	confidence DOUBLE PRECISION,
	codes JSONB,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_entities_document_id ON entities(document_id);
CREATE INDEX IF NOT EXISTS idx_entities_kind ON entities(kind);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) Create(ctx context.Context, doc *domain.Document) error {
	resultJSON, err := marshalResult(doc.Result)
	if err != nil {
		return err
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO documents (
	id, filename, storage_path, file_size, file_type, report_type, report_date,
	patient_id, patient_name, uploaded_by, status, recognized_text, confidence,
	processing_time, result, access_count, last_accessed_at, encryption_version,
	created_at, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
`,
		doc.ID, doc.Filename, doc.StoragePath, doc.FileSize, doc.FileType,
		nullIfEmpty(doc.ReportType), doc.ReportDate,
		nullIfEmpty(doc.PatientID), nullIfEmpty(doc.PatientName), nullIfEmpty(doc.UploadedBy),
		string(doc.Status), nullIfEmpty(doc.RecognizedText), doc.Confidence,
		doc.ProcessingTime, resultJSON, doc.AccessCount, doc.LastAccessedAt,
		doc.EncryptionVersion, doc.CreatedAt, doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *DocumentRepository) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT id, filename, storage_path, file_size, file_type, report_type, report_date,
	patient_id, patient_name, uploaded_by, status, recognized_text, confidence,
	processing_time, result, access_count, last_accessed_at, encryption_version,
	created_at, updated_at
FROM documents
WHERE id = $1
`, id)

	var (
		doc            domain.Document
		status         string
		reportType     sql.NullString
		patientID      sql.NullString
		patientName    sql.NullString
		uploadedBy     sql.NullString
		recognizedText sql.NullString
		resultRaw      []byte
	)

	err := row.Scan(
		&doc.ID, &doc.Filename, &doc.StoragePath, &doc.FileSize, &doc.FileType,
		&reportType, &doc.ReportDate, &patientID, &patientName, &uploadedBy,
		&status, &recognizedText, &doc.Confidence, &doc.ProcessingTime, &resultRaw,
		&doc.AccessCount, &doc.LastAccessedAt, &doc.EncryptionVersion,
		&doc.CreatedAt, &doc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrDocumentNotFound, "get document", fmt.Errorf("id=%s", id))
		}
		return nil, fmt.Errorf("scan document: %w", err)
	}

	doc.Status = domain.DocumentStatus(status)
	doc.ReportType = reportType.String
	doc.PatientID = patientID.String
	doc.PatientName = patientName.String
	doc.UploadedBy = uploadedBy.String
	doc.RecognizedText = recognizedText.String
	if len(resultRaw) > 0 {
		var result domain.ProcessingResult
		if err := json.Unmarshal(resultRaw, &result); err != nil {
			return nil, fmt.Errorf("unmarshal result: %w", err)
		}
		doc.Result = &result
	}
	return &doc, nil
}

// MarkProcessing performs the pending -> processing pickup transition. A
// row that is missing, already picked up, or already terminal yields
// ErrDocumentNotFound so the unit of work can exit silently.
func (r *DocumentRepository) MarkProcessing(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, updated_at = $3
WHERE id = $1 AND status = $4
`, id, string(domain.StatusProcessing), time.Now().UTC(), string(domain.StatusPending))
	if err != nil {
		return fmt.Errorf("mark processing: %w", err)
	}
	return requireRow(res, "mark processing", id)
}

func (r *DocumentRepository) MarkFailed(ctx context.Context, id, message string) error {
	resultJSON, err := marshalResult(domain.FailureResult(message))
	if err != nil {
		return err
	}

	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET status = $2, result = $3, recognized_text = NULL, confidence = NULL,
	processing_time = NULL, updated_at = $4
WHERE id = $1
`, id, string(domain.StatusFailed), resultJSON, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	return requireRow(res, "mark failed", id)
}

// Complete commits the terminal completed transition in one transaction:
// the document row update and every entity row become durable together or
// not at all.
func (r *DocumentRepository) Complete(ctx context.Context, id string, completion domain.Completion) error {
	resultJSON, err := marshalResult(completion.Result)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin completion tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	res, err := tx.ExecContext(ctx, `
UPDATE documents
SET status = $2, recognized_text = $3, confidence = $4, processing_time = $5,
	result = $6, updated_at = $7
WHERE id = $1 AND status = $8
`,
		id, string(domain.StatusCompleted), completion.RecognizedText,
		completion.Confidence, completion.ProcessingTime, resultJSON,
		time.Now().UTC(), string(domain.StatusProcessing),
	)
	if err != nil {
		return fmt.Errorf("update completed document: %w", err)
	}
	if err := requireRow(res, "complete document", id); err != nil {
		return err
	}

	for _, entity := range completion.Entities {
		codesJSON, err := marshalCodes(entity.Codes)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
INSERT INTO entities (
	id, document_id, kind, text, normalized_text, context,
	start_offset, end_offset, confidence, codes, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
			entity.ID, id, entity.Kind, entity.Text,
			nullIfEmpty(entity.NormalizedText), nullIfEmpty(entity.Context),
			entity.StartOffset, entity.EndOffset, entity.Confidence,
			codesJSON, entity.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert entity: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit completion tx: %w", err)
	}
	return nil
}

func (r *DocumentRepository) ListEntities(ctx context.Context, documentID string) ([]domain.Entity, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT id, document_id, kind, text, normalized_text, context,
	start_offset, end_offset, confidence, codes, created_at
FROM entities
WHERE document_id = $1
ORDER BY created_at, id
`, documentID)
	if err != nil {
		return nil, fmt.Errorf("query entities: %w", err)
	}
	defer rows.Close()

	var entities []domain.Entity
	for rows.Next() {
		var (
			entity         domain.Entity
			normalizedText sql.NullString
			contextText    sql.NullString
			codesRaw       []byte
		)
		err := rows.Scan(
			&entity.ID, &entity.DocumentID, &entity.Kind, &entity.Text,
			&normalizedText, &contextText, &entity.StartOffset, &entity.EndOffset,
			&entity.Confidence, &codesRaw, &entity.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("scan entity: %w", err)
		}
		entity.NormalizedText = normalizedText.String
		entity.Context = contextText.String
		if len(codesRaw) > 0 {
			if err := json.Unmarshal(codesRaw, &entity.Codes); err != nil {
				return nil, fmt.Errorf("unmarshal entity codes: %w", err)
			}
		}
		entities = append(entities, entity)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entities: %w", err)
	}
	return entities, nil
}

func (r *DocumentRepository) RecordAccess(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `
UPDATE documents
SET access_count = access_count + 1, last_accessed_at = $2
WHERE id = $1
`, id, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("record access: %w", err)
	}
	return requireRow(res, "record access", id)
}

func (r *DocumentRepository) Delete(ctx context.Context, id string) error {
	// Entity rows go with the document via ON DELETE CASCADE.
	res, err := r.db.ExecContext(ctx, `DELETE FROM documents WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	return requireRow(res, "delete document", id)
}

func requireRow(res sql.Result, operation, id string) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("%s rows affected: %w", operation, err)
	}
	if affected == 0 {
		return domain.WrapError(domain.ErrDocumentNotFound, operation, fmt.Errorf("id=%s", id))
	}
	return nil
}

func marshalResult(result *domain.ProcessingResult) (any, error) {
	if result == nil {
		return nil, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshal result: %w", err)
	}
	return raw, nil
}

func marshalCodes(codes []string) (any, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(codes)
	if err != nil {
		return nil, fmt.Errorf("marshal codes: %w", err)
	}
	return raw, nil
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
