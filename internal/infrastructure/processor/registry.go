package processor

import (
	"context"
	"fmt"
	"io"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
)

// Registry holds the closed set of modality processors and dispatches by the
// document's modality tag.
type Registry struct {
	extractors map[domain.Modality]ports.SegmentExtractor
}

func NewRegistry(extractors ...ports.SegmentExtractor) *Registry {
	byModality := make(map[domain.Modality]ports.SegmentExtractor, len(extractors))
	for _, e := range extractors {
		byModality[e.Modality()] = e
	}
	return &Registry{extractors: byModality}
}

func (r *Registry) Extract(ctx context.Context, doc *domain.Document, raw io.Reader) ([]domain.Segment, error) {
	extractor, ok := r.extractors[doc.Modality]
	if !ok {
		return nil, domain.WrapError(domain.ErrExtraction, "select processor",
			fmt.Errorf("no processor registered for modality %q", doc.Modality))
	}
	return extractor.Extract(ctx, doc, raw)
}
