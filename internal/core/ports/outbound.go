package ports

import (
	"context"
	"io"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

// DocumentRepository persists and reads document state.
type DocumentRepository interface {
	Create(ctx context.Context, doc *domain.Document) error
	GetByID(ctx context.Context, id string) (*domain.Document, error)
	UpdateStatus(ctx context.Context, id string, status domain.DocumentStatus, errMessage string) error
	SaveIngestStats(ctx context.Context, id string, segmentCount, chunkCount int) error
}

// ObjectStorage stores source documents.
type ObjectStorage interface {
	Save(ctx context.Context, key string, data io.Reader) error
	Open(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
}

// MessageQueue publishes/consumes ingestion events.
type MessageQueue interface {
	PublishDocumentIngested(ctx context.Context, documentID string) error
	SubscribeDocumentIngested(ctx context.Context, handler func(context.Context, string) error) error
}

// SegmentExtractor converts raw document bytes into ordered, provenance-tagged
// segments for one modality. Undecodable spans become zero-confidence
// segments, never silent drops.
type SegmentExtractor interface {
	Modality() domain.Modality
	Extract(ctx context.Context, doc *domain.Document, raw io.Reader) ([]domain.Segment, error)
}

// Chunker splits a document's segments into overlapping, size-bounded chunks.
type Chunker interface {
	Chunk(documentID string, segments []domain.Segment) ([]domain.Chunk, error)
}

// Embedder builds fixed-dimension vectors for chunk texts and query text.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedQuery(ctx context.Context, text string) ([]float32, error)
}

// VectorStore indexes embedded chunks and answers hybrid
// similarity+filter queries. Upsert is idempotent per chunk ID, and a query
// issued after a successful upsert observes the upserted chunk.
type VectorStore interface {
	UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error
	Query(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error)
}

// Transcriber is the speech-to-text boundary used by the audio and video
// processors.
type Transcriber interface {
	Transcribe(ctx context.Context, audio io.Reader) (*domain.Transcript, error)
}

// FrameTagger optionally annotates video frames with sparse object tags.
type FrameTagger interface {
	Tag(ctx context.Context, video io.Reader) ([]domain.FrameTag, error)
}

// CompletionBackend is the external text-generation capability.
type CompletionBackend interface {
	Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error)
}
