package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
)

// ExtractorRegistry dispatches extraction to the right modality processor.
type ExtractorRegistry interface {
	Extract(ctx context.Context, doc *domain.Document, raw io.Reader) ([]domain.Segment, error)
}

type ProcessDocumentUseCase struct {
	repo       ports.DocumentRepository
	storage    ports.ObjectStorage
	extractors ExtractorRegistry
	chunker    ports.Chunker
	embedder   ports.Embedder
	vectorDB   ports.VectorStore
}

func NewProcessDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	extractors ExtractorRegistry,
	chunker ports.Chunker,
	embedder ports.Embedder,
	vectorDB ports.VectorStore,
) *ProcessDocumentUseCase {
	return &ProcessDocumentUseCase{
		repo:       repo,
		storage:    storage,
		extractors: extractors,
		chunker:    chunker,
		embedder:   embedder,
		vectorDB:   vectorDB,
	}
}

func (uc *ProcessDocumentUseCase) ProcessByID(ctx context.Context, documentID string) error {
	if err := uc.markStatus(ctx, documentID, domain.StatusProcessing, ""); err != nil {
		return fmt.Errorf("set status=processing: %w", err)
	}

	if err := uc.processPipeline(ctx, documentID); err != nil {
		// A cancelled or timed-out run is not a verdict on the document:
		// leave it in processing so a later delivery can retry it.
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		if failErr := uc.markFailed(ctx, documentID, err); failErr != nil {
			return fmt.Errorf("%w; mark failed status: %v", err, failErr)
		}
		return err
	}

	if err := uc.markStatus(ctx, documentID, domain.StatusProcessed, ""); err != nil {
		return fmt.Errorf("set status=processed: %w", err)
	}

	return nil
}

func (uc *ProcessDocumentUseCase) processPipeline(ctx context.Context, documentID string) error {
	doc, err := uc.loadDocument(ctx, documentID)
	if err != nil {
		return err
	}

	segments, err := uc.extractSegments(ctx, doc)
	if err != nil {
		return err
	}

	chunks, err := uc.chunk(doc.ID, segments)
	if err != nil {
		return err
	}

	if err := uc.embed(ctx, chunks); err != nil {
		return err
	}

	if err := uc.index(ctx, doc, chunks); err != nil {
		return err
	}

	if err := uc.repo.SaveIngestStats(ctx, doc.ID, len(segments), len(chunks)); err != nil {
		return fmt.Errorf("save ingest stats: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) loadDocument(ctx context.Context, documentID string) (*domain.Document, error) {
	doc, err := uc.repo.GetByID(ctx, documentID)
	if err != nil {
		return nil, fmt.Errorf("fetch document by id: %w", err)
	}
	return doc, nil
}

func (uc *ProcessDocumentUseCase) extractSegments(ctx context.Context, doc *domain.Document) ([]domain.Segment, error) {
	raw, err := uc.storage.Open(ctx, doc.StoragePath)
	if err != nil {
		return nil, fmt.Errorf("open stored document: %w", err)
	}
	defer raw.Close()

	segments, err := uc.extractors.Extract(ctx, doc, raw)
	if err != nil {
		return nil, fmt.Errorf("extract segments: %w", err)
	}
	if len(segments) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "extract segments", errors.New("no segments extracted"))
	}
	return segments, nil
}

func (uc *ProcessDocumentUseCase) chunk(documentID string, segments []domain.Segment) ([]domain.Chunk, error) {
	chunks, err := uc.chunker.Chunk(documentID, segments)
	if err != nil {
		return nil, fmt.Errorf("chunk segments: %w", err)
	}
	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrChunking, "chunk segments", errors.New("chunking produced zero chunks"))
	}
	return chunks, nil
}

func (uc *ProcessDocumentUseCase) embed(ctx context.Context, chunks []domain.Chunk) error {
	texts := make([]string, len(chunks))
	for i, chunk := range chunks {
		texts[i] = chunk.Text
	}

	vectors, err := uc.embedder.Embed(ctx, texts)
	if err != nil {
		return fmt.Errorf("embed chunks: %w", err)
	}
	if len(vectors) != len(chunks) {
		return domain.WrapError(
			domain.ErrEmbedding,
			"embed chunks",
			fmt.Errorf("vectors/chunks mismatch: %d/%d", len(vectors), len(chunks)),
		)
	}

	for i := range chunks {
		chunks[i].Vector = vectors[i]
	}
	return nil
}

func (uc *ProcessDocumentUseCase) index(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if err := uc.vectorDB.UpsertChunks(ctx, doc, chunks); err != nil {
		return fmt.Errorf("upsert chunks in vector store: %w", err)
	}
	return nil
}

func (uc *ProcessDocumentUseCase) markStatus(ctx context.Context, documentID string, status domain.DocumentStatus, errMessage string) error {
	return uc.repo.UpdateStatus(ctx, documentID, status, errMessage)
}

func (uc *ProcessDocumentUseCase) markFailed(ctx context.Context, documentID string, processErr error) error {
	if processErr == nil {
		return nil
	}
	return uc.markStatus(ctx, documentID, domain.StatusFailed, processErr.Error())
}
