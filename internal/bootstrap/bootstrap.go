package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/medinsight/insight-engine/internal/config"
	"github.com/medinsight/insight-engine/internal/core/ports"
	"github.com/medinsight/insight-engine/internal/core/usecase"
	"github.com/medinsight/insight-engine/internal/infrastructure/crypto"
	"github.com/medinsight/insight-engine/internal/infrastructure/extractor/rules"
	"github.com/medinsight/insight-engine/internal/infrastructure/queue/nats"
	"github.com/medinsight/insight-engine/internal/infrastructure/recognizer/remote"
	"github.com/medinsight/insight-engine/internal/infrastructure/recognizer/textlayer"
	"github.com/medinsight/insight-engine/internal/infrastructure/repository/postgres"
	"github.com/medinsight/insight-engine/internal/infrastructure/resilience"
	"github.com/medinsight/insight-engine/internal/infrastructure/storage/securefs"
	"github.com/medinsight/insight-engine/internal/observability/audit"
)

type App struct {
	Config config.Config

	Queue ports.ProcessingQueue
	Repo  ports.DocumentRepository
	Vault ports.BlobVault

	IngestUC  ports.DocumentIngestor
	ProcessUC ports.DocumentProcessor
	ReadUC    *usecase.ReadDocumentUseCase
	DeleteUC  *usecase.DeleteDocumentUseCase

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, log *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	cipher, err := crypto.New(cfg.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}

	vault, err := securefs.New(cfg.StagingDir, cfg.EncryptedDir, cfg.ScratchDir, cipher)
	if err != nil {
		return nil, fmt.Errorf("init blob vault: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())
	queue, err := nats.NewWithOptions(cfg.NATSURL, cfg.NATSSubject, nats.Options{
		ResilienceExecutor: executor,
	})
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	var recognizer ports.Recognizer
	if cfg.OCRURL != "" {
		recognizer = remote.New(cfg.OCRURL, remote.Options{
			Timeout:            time.Duration(cfg.OCRTimeoutSeconds) * time.Second,
			ResilienceExecutor: executor,
		})
	} else {
		recognizer = textlayer.New()
	}

	extractor, err := rules.NewExtractor(cfg.EntityRulesPath)
	if err != nil {
		return nil, fmt.Errorf("load entity rules: %w", err)
	}

	auditSink := audit.NewLogger(log)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, vault, cipher, queue, auditSink, usecase.IngestLimits{
		MaxUploadSize:     cfg.MaxUploadSize,
		AllowedExtensions: cfg.AllowedExtensions,
		MaxBatchSize:      cfg.MaxBatchSize,
	}, crypto.Version)
	processUC := usecase.NewProcessDocumentUseCase(repo, vault, cipher, recognizer, extractor, auditSink, log)
	readUC := usecase.NewReadDocumentUseCase(repo, log)
	deleteUC := usecase.NewDeleteDocumentUseCase(repo, vault, auditSink)

	return &App{
		Config: cfg,
		Queue:  queue,
		Repo:   repo,
		Vault:  vault,

		IngestUC:  ingestUC,
		ProcessUC: processUC,
		ReadUC:    readUC,
		DeleteUC:  deleteUC,

		closeFn: func() {
			queue.Close()
			_ = db.Close()
		},
	}, nil
}

func (a *App) Close() {
	if a.closeFn != nil {
		a.closeFn()
	}
}
