package pdfproc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

const unreadablePagePlaceholder = "[unreadable page]"

// Processor extracts one segment per PDF page. Pages that cannot be decoded
// become zero-confidence placeholder segments; only an unreadable container
// fails the whole document.
type Processor struct{}

func New() *Processor {
	return &Processor{}
}

func (p *Processor) Modality() domain.Modality {
	return domain.ModalityPDF
}

func (p *Processor) Extract(ctx context.Context, doc *domain.Document, raw io.Reader) ([]domain.Segment, error) {
	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "read pdf bytes", err)
	}

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "parse pdf container",
			fmt.Errorf("%s: %w", doc.Filename, err))
	}

	segments := make([]domain.Segment, 0, reader.NumPage())
	for pageNum := 1; pageNum <= reader.NumPage(); pageNum++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		text, pageErr := extractPageText(reader, pageNum)
		if pageErr != nil {
			slog.Warn("pdf_page_unreadable", "document_id", doc.ID, "page", pageNum, "error", pageErr)
			segments = append(segments, domain.Segment{
				Index:      len(segments),
				Text:       unreadablePagePlaceholder,
				Confidence: 0,
				Locator:    domain.PageLocator(pageNum),
			})
			continue
		}
		if strings.TrimSpace(text) == "" {
			continue
		}

		segments = append(segments, domain.Segment{
			Index:      len(segments),
			Text:       text,
			Confidence: 1,
			Locator:    domain.PageLocator(pageNum),
		})
	}

	if len(segments) == 0 {
		return nil, domain.WrapError(domain.ErrExtraction, "extract pdf text",
			fmt.Errorf("no extractable text in %s", doc.Filename))
	}
	return segments, nil
}

func extractPageText(reader *pdf.Reader, pageNum int) (text string, err error) {
	// The pdf library panics on some malformed page trees.
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf page panic: %v", r)
		}
	}()

	page := reader.Page(pageNum)
	if page.V.IsNull() {
		return "", fmt.Errorf("page %d is null", pageNum)
	}
	return page.GetPlainText(nil)
}
