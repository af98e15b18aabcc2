package httpadapter

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/medinsight/insight-engine/internal/config"
	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
	"github.com/medinsight/insight-engine/internal/core/usecase"
	"github.com/medinsight/insight-engine/internal/observability/metrics"
)

type memRepo struct {
	mu       sync.Mutex
	docs     map[string]*domain.Document
	entities map[string][]domain.Entity
}

func newMemRepo() *memRepo {
	return &memRepo{
		docs:     make(map[string]*domain.Document),
		entities: make(map[string][]domain.Entity),
	}
}

func (f *memRepo) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *memRepo) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *memRepo) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.docs[id]; !ok {
		return domain.ErrDocumentNotFound
	}
	f.docs[id].Status = domain.StatusProcessing
	return nil
}

func (f *memRepo) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.Status = domain.StatusFailed
		doc.Result = domain.FailureResult(message)
	}
	return nil
}

func (f *memRepo) Complete(_ context.Context, id string, completion domain.Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	doc, ok := f.docs[id]
	if !ok {
		return domain.ErrDocumentNotFound
	}
	doc.Status = domain.StatusCompleted
	doc.Result = completion.Result
	f.entities[id] = completion.Entities
	return nil
}

func (f *memRepo) ListEntities(_ context.Context, documentID string) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.entities[documentID], nil
}

func (f *memRepo) RecordAccess(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if doc, ok := f.docs[id]; ok {
		doc.AccessCount++
	}
	return nil
}

func (f *memRepo) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.docs, id)
	delete(f.entities, id)
	return nil
}

type memVault struct {
	mu     sync.Mutex
	nextID int
	blobs  map[string][]byte
	staged map[string][]byte
}

func newMemVault() *memVault {
	return &memVault{blobs: make(map[string][]byte), staged: make(map[string][]byte)}
}

func (f *memVault) Stage(_ context.Context, data io.Reader, originalName string) (ports.StagedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, err := io.ReadAll(data)
	if err != nil {
		return ports.StagedFile{}, err
	}
	f.nextID++
	path := fmt.Sprintf("staging/%d_%s", f.nextID, originalName)
	f.staged[path] = content
	return ports.StagedFile{Path: path, Size: int64(len(content)), SHA256: "sum"}, nil
}

func (f *memVault) Seal(_ context.Context, stagedPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.staged[stagedPath]
	if !ok {
		return "", fmt.Errorf("staged file missing")
	}
	ref := "encrypted/" + stagedPath
	f.blobs[ref] = content
	delete(f.staged, stagedPath)
	return ref, nil
}

func (f *memVault) OpenForProcessing(_ context.Context, encryptedRef string) (string, func(), error) {
	return "scratch/file", func() {}, nil
}

func (f *memVault) Delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blobs, path)
	delete(f.staged, path)
	return nil
}

func (f *memVault) VerifyIntegrity(string, string) (bool, error) { return true, nil }

func (f *memVault) PurgeStaleTemp(time.Duration) (int, error) { return 0, nil }

func (f *memVault) Stats() (ports.VaultStats, error) { return ports.VaultStats{}, nil }

type tokenCipher struct{}

func (tokenCipher) EncryptBytes(plain []byte) ([]byte, error)      { return plain, nil }
func (tokenCipher) DecryptBytes(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

func (tokenCipher) EncryptField(text string) (string, error) {
	if text == "" {
		return "", nil
	}
	return "tok:" + text, nil
}

func (tokenCipher) DecryptField(token string) (string, error) { return token, nil }

func (tokenCipher) HashForMatching(text string, _ []byte) (string, string, error) {
	return "hash:" + text, "salt", nil
}

type nopQueue struct{}

func (nopQueue) PublishDocumentStaged(context.Context, string) error { return nil }

func (nopQueue) SubscribeDocumentStaged(context.Context, func(context.Context, string) error) error {
	return nil
}

type nopAudit struct{}

func (nopAudit) Record(context.Context, domain.AuditEvent) {}

func testConfig() config.Config {
	return config.Config{
		MaxUploadSize:     1 << 20,
		AllowedExtensions: []string{"pdf", "jpg", "png"},
		MaxBatchSize:      10,
	}
}

func newTestHandler(t *testing.T, cfg config.Config) (http.Handler, *memRepo) {
	t.Helper()
	repo := newMemRepo()
	vault := newMemVault()
	log := slog.New(slog.DiscardHandler)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, vault, tokenCipher{}, nopQueue{}, nopAudit{}, usecase.IngestLimits{
		MaxUploadSize:     cfg.MaxUploadSize,
		AllowedExtensions: cfg.AllowedExtensions,
		MaxBatchSize:      cfg.MaxBatchSize,
	}, 1)
	readUC := usecase.NewReadDocumentUseCase(repo, log)
	deleteUC := usecase.NewDeleteDocumentUseCase(repo, vault, nopAudit{})

	router := NewRouter(ingestUC, readUC, deleteUC, metrics.NewHTTPServerMetrics("api"), cfg)
	return router.Handler(), repo
}

func multipartUpload(t *testing.T, field, filename, content string, form map[string]string) (*bytes.Buffer, string) {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile(field, filename)
	if err != nil {
		t.Fatalf("create form file: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write form file: %v", err)
	}
	for key, value := range form {
		if err := writer.WriteField(key, value); err != nil {
			t.Fatalf("write form field: %v", err)
		}
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &body, writer.FormDataContentType()
}

func doRequest(handler http.Handler, req *http.Request) *httptest.ResponseRecorder {
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	return res
}
