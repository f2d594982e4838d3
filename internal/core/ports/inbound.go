package ports

import (
	"context"
	"io"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

// DocumentIngestor is the inbound contract for document upload orchestration.
type DocumentIngestor interface {
	Upload(ctx context.Context, filename, mimeType string, body io.Reader) (*domain.Document, error)
}

// DocumentProcessor is the inbound contract for asynchronous document processing.
type DocumentProcessor interface {
	ProcessByID(ctx context.Context, documentID string) error
}

// DocumentReader is the inbound read model for document metadata/state.
type DocumentReader interface {
	GetByID(ctx context.Context, id string) (*domain.Document, error)
}

// ContextRetriever turns a query into a ranked, deduplicated, budget-bounded
// context of chunks.
type ContextRetriever interface {
	Retrieve(ctx context.Context, query string, scope []string, tokenBudget int) ([]domain.SearchResult, error)
}

// DocumentAnalyzer drives an analysis request through its state machine and
// returns the citation-backed answer.
type DocumentAnalyzer interface {
	Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error)
}
