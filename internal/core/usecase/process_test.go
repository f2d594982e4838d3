package usecase

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

type statusCall struct {
	status domain.DocumentStatus
	errMsg string
}

type processRepoFake struct {
	doc          *domain.Document
	getErr       error
	createErr    error
	statusCalls  []statusCall
	segmentCount int
	chunkCount   int
}

func (f *processRepoFake) Create(context.Context, *domain.Document) error { return f.createErr }

func (f *processRepoFake) GetByID(context.Context, string) (*domain.Document, error) {
	if f.getErr != nil {
		return nil, f.getErr
	}
	copyDoc := *f.doc
	return &copyDoc, nil
}

func (f *processRepoFake) UpdateStatus(_ context.Context, _ string, status domain.DocumentStatus, errMessage string) error {
	f.statusCalls = append(f.statusCalls, statusCall{status: status, errMsg: errMessage})
	return nil
}

func (f *processRepoFake) SaveIngestStats(_ context.Context, _ string, segmentCount, chunkCount int) error {
	f.segmentCount = segmentCount
	f.chunkCount = chunkCount
	return nil
}

type storageFake struct {
	content string
	openErr error
	saved   map[string]string
	deleted []string
}

func (f *storageFake) Save(_ context.Context, key string, data io.Reader) error {
	if f.saved == nil {
		f.saved = make(map[string]string)
	}
	raw, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	f.saved[key] = string(raw)
	return nil
}

func (f *storageFake) Open(context.Context, string) (io.ReadCloser, error) {
	if f.openErr != nil {
		return nil, f.openErr
	}
	return io.NopCloser(strings.NewReader(f.content)), nil
}

func (f *storageFake) Delete(_ context.Context, key string) error {
	f.deleted = append(f.deleted, key)
	delete(f.saved, key)
	return nil
}

type registryFake struct {
	segments []domain.Segment
	err      error
}

func (f *registryFake) Extract(ctx context.Context, _ *domain.Document, _ io.Reader) ([]domain.Segment, error) {
	if f.err != nil {
		return nil, f.err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return f.segments, nil
}

type chunkerFake struct {
	chunks []domain.Chunk
	err    error
}

func (f *chunkerFake) Chunk(string, []domain.Segment) ([]domain.Chunk, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.chunks, nil
}

type embedderFake struct {
	queryVector []float32
	err         error
}

func (f *embedderFake) Embed(_ context.Context, texts []string) ([][]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	vectors := make([][]float32, len(texts))
	for i := range vectors {
		vectors[i] = []float32{1, 2, 3}
	}
	return vectors, nil
}

func (f *embedderFake) EmbedQuery(context.Context, string) ([]float32, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.queryVector, nil
}

type vectorStoreFake struct {
	upserted   []domain.Chunk
	upsertErr  error
	results    []domain.SearchResult
	queryErr   error
	queryCalls int
	lastK      int
	lastFilter domain.SearchFilter
}

func (f *vectorStoreFake) UpsertChunks(_ context.Context, _ *domain.Document, chunks []domain.Chunk) error {
	if f.upsertErr != nil {
		return f.upsertErr
	}
	f.upserted = append(f.upserted, chunks...)
	return nil
}

func (f *vectorStoreFake) Query(_ context.Context, _ []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	f.queryCalls++
	f.lastK = k
	f.lastFilter = filter
	if f.queryErr != nil {
		return nil, f.queryErr
	}
	return f.results, nil
}

func newProcessFixture(repo *processRepoFake) (*ProcessDocumentUseCase, *vectorStoreFake) {
	vectorDB := &vectorStoreFake{}
	uc := NewProcessDocumentUseCase(
		repo,
		&storageFake{content: "raw bytes"},
		&registryFake{segments: []domain.Segment{{Index: 0, Text: "Extracted clause.", Confidence: 1, Locator: domain.PageLocator(1)}}},
		&chunkerFake{chunks: []domain.Chunk{{ID: "c-1", DocumentID: "doc-1", Text: "Extracted clause."}}},
		&embedderFake{},
		vectorDB,
	)
	return uc, vectorDB
}

func TestProcessByIDSuccess(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Modality: domain.ModalityPDF, StoragePath: "doc-1_a.pdf"}}
	uc, vectorDB := newProcessFixture(repo)

	if err := uc.ProcessByID(context.Background(), "doc-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStatuses := []domain.DocumentStatus{domain.StatusProcessing, domain.StatusProcessed}
	if len(repo.statusCalls) != len(wantStatuses) {
		t.Fatalf("status calls %+v", repo.statusCalls)
	}
	for i, call := range repo.statusCalls {
		if call.status != wantStatuses[i] {
			t.Errorf("status call %d: %s, want %s", i, call.status, wantStatuses[i])
		}
	}

	if len(vectorDB.upserted) != 1 || len(vectorDB.upserted[0].Vector) == 0 {
		t.Fatalf("chunk was not embedded and indexed: %+v", vectorDB.upserted)
	}
	if repo.segmentCount != 1 || repo.chunkCount != 1 {
		t.Fatalf("ingest stats %d/%d, want 1/1", repo.segmentCount, repo.chunkCount)
	}
}

func TestProcessByIDExtractionFailureMarksFailedWithReason(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Modality: domain.ModalityPDF}}
	extractErr := domain.WrapError(domain.ErrExtraction, "parse pdf", errors.New("corrupt xref table"))
	uc := NewProcessDocumentUseCase(
		repo,
		&storageFake{},
		&registryFake{err: extractErr},
		&chunkerFake{},
		&embedderFake{},
		&vectorStoreFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("got %v, want ErrExtraction", err)
	}

	last := repo.statusCalls[len(repo.statusCalls)-1]
	if last.status != domain.StatusFailed {
		t.Fatalf("final status %s, want failed", last.status)
	}
	if !strings.Contains(last.errMsg, "corrupt xref table") {
		t.Fatalf("failure reason %q does not carry the cause", last.errMsg)
	}
}

func TestProcessByIDCancellationLeavesProcessing(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Modality: domain.ModalityAudio}}
	uc, _ := newProcessFixture(repo)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := uc.ProcessByID(ctx, "doc-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}

	for _, call := range repo.statusCalls {
		if call.status == domain.StatusFailed {
			t.Fatalf("cancelled run must not mark the document failed: %+v", repo.statusCalls)
		}
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusProcessing {
		t.Fatalf("document should stay in processing for a retry: %+v", repo.statusCalls)
	}
}

func TestProcessByIDZeroChunksFails(t *testing.T) {
	repo := &processRepoFake{doc: &domain.Document{ID: "doc-1", Modality: domain.ModalityPDF}}
	uc := NewProcessDocumentUseCase(
		repo,
		&storageFake{},
		&registryFake{segments: []domain.Segment{{Text: "text"}}},
		&chunkerFake{chunks: nil},
		&embedderFake{},
		&vectorStoreFake{},
	)

	err := uc.ProcessByID(context.Background(), "doc-1")
	if !domain.IsKind(err, domain.ErrChunking) {
		t.Fatalf("got %v, want ErrChunking", err)
	}
	if repo.statusCalls[len(repo.statusCalls)-1].status != domain.StatusFailed {
		t.Fatalf("status calls %+v", repo.statusCalls)
	}
}
