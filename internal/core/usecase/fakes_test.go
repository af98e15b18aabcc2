package usecase

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/medinsight/insight-engine/internal/core/domain"
	"github.com/medinsight/insight-engine/internal/core/ports"
)

type repoFake struct {
	mu sync.Mutex

	docs     map[string]*domain.Document
	entities map[string][]domain.Entity

	createErr  error
	getErr     error
	markErr    error
	failErr    error
	complErr   error
	deleteErr  error
	accessErr  error
	listErr    error

	processingMarked []string
	failedMessages   map[string]string
	completions      map[string]domain.Completion
	deletedIDs       []string
	accessedIDs      []string
}

func newRepoFake() *repoFake {
	return &repoFake{
		docs:           make(map[string]*domain.Document),
		entities:       make(map[string][]domain.Entity),
		failedMessages: make(map[string]string),
		completions:    make(map[string]domain.Completion),
	}
}

func (f *repoFake) Create(_ context.Context, doc *domain.Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return f.createErr
	}
	copyDoc := *doc
	f.docs[doc.ID] = &copyDoc
	return nil
}

func (f *repoFake) GetByID(_ context.Context, id string) (*domain.Document, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.getErr != nil {
		return nil, f.getErr
	}
	doc, ok := f.docs[id]
	if !ok {
		return nil, domain.ErrDocumentNotFound
	}
	copyDoc := *doc
	return &copyDoc, nil
}

func (f *repoFake) MarkProcessing(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.markErr != nil {
		return f.markErr
	}
	doc, ok := f.docs[id]
	if !ok || doc.Status != domain.StatusPending {
		return domain.ErrDocumentNotFound
	}
	doc.Status = domain.StatusProcessing
	f.processingMarked = append(f.processingMarked, id)
	return nil
}

func (f *repoFake) MarkFailed(_ context.Context, id, message string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failErr != nil {
		return f.failErr
	}
	if doc, ok := f.docs[id]; ok {
		doc.Status = domain.StatusFailed
		doc.Result = domain.FailureResult(message)
	}
	f.failedMessages[id] = message
	return nil
}

func (f *repoFake) Complete(_ context.Context, id string, completion domain.Completion) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.complErr != nil {
		return f.complErr
	}
	doc, ok := f.docs[id]
	if !ok || doc.Status != domain.StatusProcessing {
		return domain.ErrDocumentNotFound
	}
	doc.Status = domain.StatusCompleted
	doc.RecognizedText = completion.RecognizedText
	doc.Result = completion.Result
	f.completions[id] = completion
	f.entities[id] = completion.Entities
	return nil
}

func (f *repoFake) ListEntities(_ context.Context, documentID string) ([]domain.Entity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.entities[documentID], nil
}

func (f *repoFake) RecordAccess(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.accessErr != nil {
		return f.accessErr
	}
	f.accessedIDs = append(f.accessedIDs, id)
	return nil
}

func (f *repoFake) Delete(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.docs, id)
	delete(f.entities, id)
	f.deletedIDs = append(f.deletedIDs, id)
	return nil
}

type vaultFake struct {
	mu sync.Mutex

	staged map[string][]byte
	sealed map[string][]byte

	stageErr  error
	sealErr   error
	openErr   error
	deleteErr error

	deletedPaths   []string
	cleanupCalls   int
	scratchPath    string
	stageSequence  int
}

func newVaultFake() *vaultFake {
	return &vaultFake{
		staged:      make(map[string][]byte),
		sealed:      make(map[string][]byte),
		scratchPath: "scratch/active",
	}
}

func (f *vaultFake) Stage(_ context.Context, data io.Reader, originalName string) (ports.StagedFile, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stageErr != nil {
		return ports.StagedFile{}, f.stageErr
	}
	content, err := io.ReadAll(data)
	if err != nil {
		return ports.StagedFile{}, err
	}
	f.stageSequence++
	path := fmt.Sprintf("staging/%d_%s", f.stageSequence, originalName)
	f.staged[path] = content
	return ports.StagedFile{Path: path, Size: int64(len(content)), SHA256: "fakesum"}, nil
}

func (f *vaultFake) Seal(_ context.Context, stagedPath string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sealErr != nil {
		return "", f.sealErr
	}
	content, ok := f.staged[stagedPath]
	if !ok {
		return "", fmt.Errorf("staged file %q not found", stagedPath)
	}
	ref := "encrypted/" + strings.TrimPrefix(stagedPath, "staging/")
	f.sealed[ref] = content
	delete(f.staged, stagedPath)
	return ref, nil
}

func (f *vaultFake) OpenForProcessing(_ context.Context, encryptedRef string) (string, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.openErr != nil {
		return "", nil, f.openErr
	}
	if _, ok := f.sealed[encryptedRef]; !ok {
		return "", nil, fmt.Errorf("blob %q not found", encryptedRef)
	}
	return f.scratchPath, func() {
		f.mu.Lock()
		f.cleanupCalls++
		f.mu.Unlock()
	}, nil
}

func (f *vaultFake) Delete(path string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.deleteErr != nil {
		return f.deleteErr
	}
	delete(f.staged, path)
	delete(f.sealed, path)
	f.deletedPaths = append(f.deletedPaths, path)
	return nil
}

func (f *vaultFake) VerifyIntegrity(string, string) (bool, error) { return true, nil }

func (f *vaultFake) PurgeStaleTemp(time.Duration) (int, error) { return 0, nil }

func (f *vaultFake) Stats() (ports.VaultStats, error) { return ports.VaultStats{}, nil }

type cipherFake struct {
	encryptFieldErr error
}

func (f *cipherFake) EncryptBytes(plain []byte) ([]byte, error) { return plain, nil }

func (f *cipherFake) DecryptBytes(ciphertext []byte) ([]byte, error) { return ciphertext, nil }

func (f *cipherFake) EncryptField(text string) (string, error) {
	if f.encryptFieldErr != nil {
		return "", f.encryptFieldErr
	}
	if text == "" {
		return "", nil
	}
	return "enc(" + text + ")", nil
}

func (f *cipherFake) DecryptField(token string) (string, error) {
	return strings.TrimSuffix(strings.TrimPrefix(token, "enc("), ")"), nil
}

func (f *cipherFake) HashForMatching(text string, _ []byte) (string, string, error) {
	return "hash(" + text + ")", "salt", nil
}

type queueFake struct {
	mu         sync.Mutex
	published  []string
	publishErr error
}

func (f *queueFake) PublishDocumentStaged(_ context.Context, documentID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentStaged(context.Context, func(context.Context, string) error) error {
	return nil
}

type auditFake struct {
	mu     sync.Mutex
	events []domain.AuditEvent
}

func (f *auditFake) Record(_ context.Context, event domain.AuditEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, event)
}

func (f *auditFake) actions() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	actions := make([]string, len(f.events))
	for i, event := range f.events {
		actions[i] = event.Action
	}
	return actions
}

type recognizerFake struct {
	result    domain.RecognitionResult
	err       error
	seenPaths []string
}

func (f *recognizerFake) Recognize(_ context.Context, path, _ string) (domain.RecognitionResult, error) {
	f.seenPaths = append(f.seenPaths, path)
	if f.err != nil {
		return domain.RecognitionResult{}, f.err
	}
	return f.result, nil
}

type recognizerFunc func(context.Context, string, string) (domain.RecognitionResult, error)

func (f recognizerFunc) Recognize(ctx context.Context, path, fileType string) (domain.RecognitionResult, error) {
	return f(ctx, path, fileType)
}

type entityExtractorFake struct {
	result domain.ExtractionResult
	err    error
}

func (f *entityExtractorFake) Extract(context.Context, string) (domain.ExtractionResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

func (f *entityExtractorFake) Normalize(text, _ string) string {
	return "norm:" + text
}
