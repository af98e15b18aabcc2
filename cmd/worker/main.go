package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/medinsight/insight-engine/internal/bootstrap"
	"github.com/medinsight/insight-engine/internal/config"
	"github.com/medinsight/insight-engine/internal/observability/logging"
	"github.com/medinsight/insight-engine/internal/observability/metrics"
)

const metricsService = "worker"

func main() {
	cfg := config.Load()
	logger := logging.Setup("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(metricsService)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		logger.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	go sweepTempFiles(ctx, app, workerMetrics, cfg)

	processTimeout := time.Duration(cfg.ProcessTimeoutSecs) * time.Second
	logger.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeDocumentStaged(ctx, func(handlerCtx context.Context, documentID string) error {
		start := time.Now()
		workerMetrics.StartDocument()

		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()
		processErr := app.ProcessUC.ProcessByID(processCtx, documentID)

		workerMetrics.FinishDocument(metricsService, time.Since(start), processErr)
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}

// sweepTempFiles periodically removes stale staging and scratch files
// left behind by crashed uploads or processing attempts, and refreshes
// vault usage gauges.
func sweepTempFiles(ctx context.Context, app *bootstrap.App, workerMetrics *metrics.WorkerMetrics, cfg config.Config) {
	interval := time.Duration(cfg.TempSweepMinutes) * time.Minute
	if interval <= 0 {
		interval = time.Hour
	}
	maxAge := time.Duration(cfg.TempMaxAgeHours) * time.Hour
	if maxAge <= 0 {
		maxAge = 24 * time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			purged, err := app.Vault.PurgeStaleTemp(maxAge)
			if err != nil {
				log.Printf("temp sweep error: %v", err)
				continue
			}
			workerMetrics.AddPurgedFiles(metricsService, purged)
			if stats, err := app.Vault.Stats(); err == nil {
				workerMetrics.SetVaultUsage(stats.Files, stats.TotalBytes)
			}
		}
	}
}
