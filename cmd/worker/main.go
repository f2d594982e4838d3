package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/kirillkom/legal-doc-analyzer/internal/bootstrap"
	"github.com/kirillkom/legal-doc-analyzer/internal/config"
	"github.com/kirillkom/legal-doc-analyzer/internal/observability/logging"
	"github.com/kirillkom/legal-doc-analyzer/internal/observability/metrics"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	logger := logging.NewJSONLogger("worker", cfg.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics("worker")
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	processTimeout := time.Duration(cfg.ProcessTimeoutSeconds) * time.Second

	logger.Info("worker_subscribed", "nats_url", cfg.NATSURL)
	err = app.Queue.SubscribeDocumentIngested(ctx, func(handlerCtx context.Context, documentID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, processTimeout)
		defer cancel()

		workerMetrics.StartDocument()
		start := time.Now()

		processErr := app.ProcessUC.ProcessByID(processCtx, documentID)

		// Fresh context: processCtx may already be cancelled here.
		statsCtx, statsCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer statsCancel()

		modality := "unknown"
		if doc, getErr := app.Repo.GetByID(statsCtx, documentID); getErr == nil {
			modality = string(doc.Modality)
			if processErr == nil {
				workerMetrics.ObserveIngestStats("worker", modality, doc.SegmentCount, doc.ChunkCount)
			}
		}
		workerMetrics.FinishDocument("worker", modality, time.Since(start), processErr)

		if processErr != nil {
			logger.Error("document_process_failed", "document_id", documentID, "error", processErr)
		} else {
			logger.Info("document_processed", "document_id", documentID, "duration_ms", time.Since(start).Milliseconds())
		}
		return processErr
	})
	if err != nil && err != context.Canceled {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
