package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/medinsight/insight-engine/internal/core/domain"
)

func TestGetByIDRecordsAccess(t *testing.T) {
	repo := newRepoFake()
	vault := newVaultFake()
	doc := seedPendingDocument(t, repo, vault)
	uc := NewReadDocumentUseCase(repo, discardLogger())

	got, err := uc.GetByID(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("GetByID: %v", err)
	}
	if got.ID != doc.ID {
		t.Errorf("got id %q, want %q", got.ID, doc.ID)
	}
	if len(repo.accessedIDs) != 1 || repo.accessedIDs[0] != doc.ID {
		t.Errorf("accessed ids = %v", repo.accessedIDs)
	}
}

func TestGetByIDToleratesAccessTrackingFault(t *testing.T) {
	repo := newRepoFake()
	vault := newVaultFake()
	doc := seedPendingDocument(t, repo, vault)
	repo.accessErr = errors.New("counter update failed")
	uc := NewReadDocumentUseCase(repo, discardLogger())

	if _, err := uc.GetByID(context.Background(), doc.ID); err != nil {
		t.Fatalf("read must survive access-tracking fault, got %v", err)
	}
}

func TestListEntitiesRequiresExistingDocument(t *testing.T) {
	uc := NewReadDocumentUseCase(newRepoFake(), discardLogger())
	if _, err := uc.ListEntities(context.Background(), "ghost"); !domain.IsKind(err, domain.ErrDocumentNotFound) {
		t.Fatalf("err = %v, want ErrDocumentNotFound", err)
	}
}

func TestListEntitiesReturnsPersistedRows(t *testing.T) {
	repo := newRepoFake()
	vault := newVaultFake()
	doc := seedPendingDocument(t, repo, vault)
	repo.entities[doc.ID] = []domain.Entity{{
		ID:         "ent-1",
		DocumentID: doc.ID,
		Kind:       "disease",
		Text:       "hypertension",
		CreatedAt:  time.Now().UTC(),
	}}
	uc := NewReadDocumentUseCase(repo, discardLogger())

	entities, err := uc.ListEntities(context.Background(), doc.ID)
	if err != nil {
		t.Fatalf("ListEntities: %v", err)
	}
	if len(entities) != 1 || entities[0].Text != "hypertension" {
		t.Errorf("entities = %+v", entities)
	}
}
