package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/time/rate"

	"github.com/kirillkom/legal-doc-analyzer/internal/config"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/usecase"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/chunking"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/embedding"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/llm"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/llm/mistral"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/processor"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/processor/audioproc"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/processor/pdfproc"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/processor/videoproc"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/queue/nats"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/repository/postgres"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/resilience"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/storage/localfs"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/transcription/whisper"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/vector/memory"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/vector/qdrant"
)

type App struct {
	Config config.Config
	Logger *slog.Logger

	Queue *nats.Queue
	Repo  ports.DocumentRepository

	IngestUC  ports.DocumentIngestor
	GetUC     ports.DocumentReader
	ProcessUC ports.DocumentProcessor
	SearchUC  ports.ContextRetriever
	AnalyzeUC ports.DocumentAnalyzer

	closeFn func()
}

func New(ctx context.Context, cfg config.Config, logger *slog.Logger) (*App, error) {
	db, err := postgres.OpenDB(cfg.PostgresDSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	repo := postgres.NewDocumentRepository(db)
	if err := repo.EnsureSchema(ctx); err != nil {
		return nil, fmt.Errorf("ensure schema: %w", err)
	}

	storage, err := localfs.New(cfg.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("init object storage: %w", err)
	}

	executor := resilience.NewExecutor(resilience.DefaultConfig())

	queue, err := nats.New(cfg.NATSURL, executor)
	if err != nil {
		return nil, fmt.Errorf("init message queue: %w", err)
	}

	transcriber := whisper.New(cfg.WhisperURL, cfg.WhisperModel)
	extractors := processor.NewRegistry(
		pdfproc.New(),
		audioproc.New(transcriber),
		videoproc.New(nil, transcriber, nil),
	)

	embedClient := embedding.NewOllamaClient(cfg.OllamaURL, cfg.OllamaEmbedModel, cfg.EmbedDimensions)
	embedder := embedding.NewService(embedClient, executor, cfg.EmbedBatchSize, cfg.EmbedPoolSize)

	var vectorDB ports.VectorStore
	switch cfg.VectorBackend {
	case "memory":
		vectorDB = memory.New()
	default:
		vectorDB = qdrant.New(cfg.QdrantURL, cfg.QdrantAPIKey, cfg.QdrantCollection, executor)
	}

	limiter := rate.NewLimiter(rate.Limit(cfg.LLMRatePerSec), cfg.LLMBurst)
	completions := llm.NewResilient(
		mistral.New(cfg.MistralURL, cfg.MistralAPIKey, cfg.MistralModel, limiter),
		executor,
		mistral.ClassifyError,
	)

	chunker := chunking.NewSplitter(cfg.ChunkSize, cfg.ChunkOverlap)

	ingestUC := usecase.NewIngestDocumentUseCase(repo, storage, queue)
	getUC := usecase.NewGetDocumentUseCase(repo)
	processUC := usecase.NewProcessDocumentUseCase(repo, storage, extractors, chunker, embedder, vectorDB)
	searchUC := usecase.NewRetrieveContextUseCase(embedder, vectorDB, cfg.RetrievalTopK, cfg.AnalysisTokenBudget)
	analyzeUC := usecase.NewAnalyzeDocumentsUseCase(searchUC, completions, usecase.PromptSet{
		Summarize: cfg.PromptTemplates.Summarize,
		QA:        cfg.PromptTemplates.QA,
		KeyPoints: cfg.PromptTemplates.KeyPoints,
	})

	return &App{
		Config: cfg,
		Logger: logger,

		Queue: queue,
		Repo:  repo,

		IngestUC:  ingestUC,
		GetUC:     getUC,
		ProcessUC: processUC,
		SearchUC:  searchUC,
		AnalyzeUC: analyzeUC,

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
