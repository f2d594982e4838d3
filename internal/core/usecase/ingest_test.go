package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

type queueFake struct {
	published []string
	err       error
}

func (f *queueFake) PublishDocumentIngested(_ context.Context, documentID string) error {
	if f.err != nil {
		return f.err
	}
	f.published = append(f.published, documentID)
	return nil
}

func (f *queueFake) SubscribeDocumentIngested(context.Context, func(context.Context, string) error) error {
	return nil
}

func TestUploadStoresPersistsAndPublishes(t *testing.T) {
	repo := &processRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	doc, err := uc.Upload(context.Background(), "NDA final (v2).pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if doc.Status != domain.StatusUploaded {
		t.Errorf("status %s, want uploaded", doc.Status)
	}
	if doc.Modality != domain.ModalityPDF {
		t.Errorf("modality %s, want pdf", doc.Modality)
	}
	if doc.ID == "" || doc.StoragePath == "" {
		t.Errorf("missing identity: %+v", doc)
	}
	if strings.ContainsAny(doc.StoragePath, " ()") {
		t.Errorf("storage key %q was not sanitized", doc.StoragePath)
	}

	if _, ok := storage.saved[doc.StoragePath]; !ok {
		t.Errorf("upload body was not saved under %q", doc.StoragePath)
	}
	if len(queue.published) != 1 || queue.published[0] != doc.ID {
		t.Errorf("published %v, want the new document id", queue.published)
	}
}

func TestUploadMetadataFailureRemovesStoredBlob(t *testing.T) {
	repo := &processRepoFake{createErr: errors.New("connection refused")}
	storage := &storageFake{}
	queue := &queueFake{}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "nda.pdf", "application/pdf", strings.NewReader("%PDF-1.7"))
	if err == nil {
		t.Fatal("expected the metadata error")
	}

	if len(storage.saved) != 0 {
		t.Fatalf("blob left behind: %v", storage.saved)
	}
	if len(storage.deleted) != 1 {
		t.Fatalf("deleted keys %v, want exactly the failed upload", storage.deleted)
	}
	if len(queue.published) != 0 {
		t.Fatalf("nothing should be published after a failed create: %v", queue.published)
	}
}

func TestUploadPublishFailureCleansUpAndMarksFailed(t *testing.T) {
	repo := &processRepoFake{}
	storage := &storageFake{}
	queue := &queueFake{err: errors.New("nats unavailable")}
	uc := NewIngestDocumentUseCase(repo, storage, queue)

	_, err := uc.Upload(context.Background(), "hearing.mp4", "video/mp4", strings.NewReader("bytes"))
	if err == nil {
		t.Fatal("expected the publish error")
	}

	if len(storage.saved) != 0 || len(storage.deleted) != 1 {
		t.Fatalf("blob not cleaned up: saved %v, deleted %v", storage.saved, storage.deleted)
	}
	if len(repo.statusCalls) != 1 {
		t.Fatalf("status calls %+v, want one failed mark", repo.statusCalls)
	}
	last := repo.statusCalls[0]
	if last.status != domain.StatusFailed {
		t.Fatalf("status %s, want failed", last.status)
	}
	if !strings.Contains(last.errMsg, "nats unavailable") {
		t.Fatalf("failure reason %q does not carry the cause", last.errMsg)
	}
}

func TestUploadRejectsUnsupportedType(t *testing.T) {
	uc := NewIngestDocumentUseCase(&processRepoFake{}, &storageFake{}, &queueFake{})

	_, err := uc.Upload(context.Background(), "notes.docx", "application/vnd.openxmlformats-officedocument.wordprocessingml.document", strings.NewReader("x"))
	if !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
}

func TestDetectModality(t *testing.T) {
	cases := []struct {
		filename string
		mimeType string
		want     domain.Modality
	}{
		{"a.pdf", "application/pdf", domain.ModalityPDF},
		{"a.bin", "application/pdf; charset=binary", domain.ModalityPDF},
		{"deposition.mp3", "audio/mpeg", domain.ModalityAudio},
		{"hearing.mp4", "video/mp4", domain.ModalityVideo},
		{"scan.pdf", "application/octet-stream", domain.ModalityPDF},
		{"call.wav", "", domain.ModalityAudio},
		{"clip.mov", "application/octet-stream", domain.ModalityVideo},
	}
	for _, tc := range cases {
		got, err := detectModality(tc.filename, tc.mimeType)
		if err != nil {
			t.Errorf("%s/%s: unexpected error %v", tc.filename, tc.mimeType, err)
			continue
		}
		if got != tc.want {
			t.Errorf("%s/%s: got %s, want %s", tc.filename, tc.mimeType, got, tc.want)
		}
	}

	if _, err := detectModality("archive.zip", "application/zip"); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Errorf("zip: got %v, want ErrInvalidInput", err)
	}
}

func TestGetDocumentRequiresID(t *testing.T) {
	uc := NewGetDocumentUseCase(&processRepoFake{doc: &domain.Document{ID: "doc-1"}})

	if _, err := uc.GetByID(context.Background(), "  "); !domain.IsKind(err, domain.ErrInvalidInput) {
		t.Fatalf("got %v, want ErrInvalidInput", err)
	}
	doc, err := uc.GetByID(context.Background(), "doc-1")
	if err != nil || doc.ID != "doc-1" {
		t.Fatalf("got %v / %+v", err, doc)
	}
}
