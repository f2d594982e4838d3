package httpadapter

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"net/textproto"
	"strings"
	"testing"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

type ingestorFake struct {
	doc *domain.Document
	err error
}

func (f *ingestorFake) Upload(_ context.Context, filename, mimeType string, _ io.Reader) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	doc := *f.doc
	doc.Filename = filename
	doc.MimeType = mimeType
	return &doc, nil
}

type readerFake struct {
	doc *domain.Document
	err error
}

func (f *readerFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.doc, nil
}

type searcherFake struct {
	results []domain.SearchResult
	err     error
}

func (f *searcherFake) Retrieve(context.Context, string, []string, int) ([]domain.SearchResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type analyzerFake struct {
	response *domain.AnalysisResponse
	err      error
	lastReq  *domain.AnalysisRequest
}

func (f *analyzerFake) Analyze(_ context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	f.lastReq = req
	if f.err != nil {
		return &domain.AnalysisResponse{State: domain.AnalysisFailed}, f.err
	}
	return f.response, nil
}

func testRouter(ingestor *ingestorFake, reader *readerFake, searcher *searcherFake, analyzer *analyzerFake) http.Handler {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewRouter(ingestor, reader, searcher, analyzer, logger, nil, "test-model").Handler()
}

func multipartBody(t *testing.T, filename, contentType, content string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
	header.Set("Content-Type", contentType)
	part, err := writer.CreatePart(header)
	if err != nil {
		t.Fatalf("create part: %v", err)
	}
	if _, err := part.Write([]byte(content)); err != nil {
		t.Fatalf("write part: %v", err)
	}
	if err := writer.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}
	return &buf, writer.FormDataContentType()
}

func TestUploadDocumentAccepted(t *testing.T) {
	handler := testRouter(
		&ingestorFake{doc: &domain.Document{ID: "doc-1", Status: domain.StatusUploaded, Modality: domain.ModalityPDF}},
		&readerFake{}, &searcherFake{}, &analyzerFake{},
	)

	body, contentType := multipartBody(t, "nda.pdf", "application/pdf", "%PDF-1.7")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusAccepted {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var doc domain.Document
	if err := json.Unmarshal(rec.Body.Bytes(), &doc); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if doc.ID != "doc-1" || doc.Filename != "nda.pdf" {
		t.Fatalf("response document %+v", doc)
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatal("missing request id header")
	}
}

func TestUploadDocumentRequiresFile(t *testing.T) {
	handler := testRouter(&ingestorFake{}, &readerFake{}, &searcherFake{}, &analyzerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/documents", strings.NewReader("not multipart"))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestUploadDocumentUnsupportedType(t *testing.T) {
	uploadErr := domain.WrapError(domain.ErrInvalidInput, "detect modality", errors.New("unsupported"))
	handler := testRouter(&ingestorFake{err: uploadErr}, &readerFake{}, &searcherFake{}, &analyzerFake{})

	body, contentType := multipartBody(t, "notes.docx", "application/msword", "x")
	req := httptest.NewRequest(http.MethodPost, "/v1/documents", body)
	req.Header.Set("Content-Type", contentType)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestGetDocumentNotFound(t *testing.T) {
	notFound := domain.WrapError(domain.ErrDocumentNotFound, "get document", errors.New("id=missing"))
	handler := testRouter(&ingestorFake{}, &readerFake{err: notFound}, &searcherFake{}, &analyzerFake{})

	req := httptest.NewRequest(http.MethodGet, "/v1/documents/missing", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestSearchValidatesQuery(t *testing.T) {
	handler := testRouter(&ingestorFake{}, &readerFake{}, &searcherFake{}, &analyzerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"  "}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status %d, want 400", rec.Code)
	}
}

func TestSearchReturnsResults(t *testing.T) {
	handler := testRouter(&ingestorFake{}, &readerFake{}, &searcherFake{results: []domain.SearchResult{
		{ChunkID: "c-1", DocumentID: "doc-1", Score: 0.92, Snippet: "the liability cap…"},
	}}, &analyzerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"liability cap"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	var payload struct {
		Results []domain.SearchResult `json:"results"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &payload); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(payload.Results) != 1 || payload.Results[0].ChunkID != "c-1" {
		t.Fatalf("payload %+v", payload)
	}
}

func TestSearchNoCandidatesMapsToNotFound(t *testing.T) {
	searchErr := domain.WrapError(domain.ErrRetrieval, "retrieve context", errors.New("no candidates"))
	handler := testRouter(&ingestorFake{}, &readerFake{}, &searcherFake{err: searchErr}, &analyzerFake{})

	req := httptest.NewRequest(http.MethodPost, "/v1/search", strings.NewReader(`{"query":"nothing matches"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status %d, want 404", rec.Code)
	}
}

func TestAnalyzeDefaultsToSummarize(t *testing.T) {
	analyzer := &analyzerFake{response: &domain.AnalysisResponse{
		RequestID: "req-1",
		Answer:    "Summary [1].",
		Citations: []domain.Citation{{ChunkID: "c-1", DocumentID: "doc-1"}},
		State:     domain.AnalysisCompleted,
	}}
	handler := testRouter(&ingestorFake{}, &readerFake{}, &searcherFake{}, analyzer)

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"query":"summarize the contract"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status %d, body %s", rec.Code, rec.Body.String())
	}
	if analyzer.lastReq.Mode != domain.ModeSummarize {
		t.Fatalf("mode %s, want summarize default", analyzer.lastReq.Mode)
	}

	var response domain.AnalysisResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &response); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if response.State != domain.AnalysisCompleted || len(response.Citations) != 1 {
		t.Fatalf("response %+v", response)
	}
}

func TestAnalyzeTemporaryFailureMapsTo503(t *testing.T) {
	genErr := domain.WrapError(domain.ErrTemporary, "llm complete",
		domain.WrapError(domain.ErrGeneration, "llm complete", errors.New("upstream timeout")))
	handler := testRouter(&ingestorFake{}, &readerFake{}, &searcherFake{}, &analyzerFake{err: genErr})

	req := httptest.NewRequest(http.MethodPost, "/v1/analyze", strings.NewReader(`{"query":"q","mode":"qa"}`))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status %d, want 503", rec.Code)
	}
}
