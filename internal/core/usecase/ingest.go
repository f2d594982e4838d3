package usecase

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
)

type IngestDocumentUseCase struct {
	repo    ports.DocumentRepository
	storage ports.ObjectStorage
	queue   ports.MessageQueue
}

func NewIngestDocumentUseCase(
	repo ports.DocumentRepository,
	storage ports.ObjectStorage,
	queue ports.MessageQueue,
) *IngestDocumentUseCase {
	return &IngestDocumentUseCase{
		repo:    repo,
		storage: storage,
		queue:   queue,
	}
}

func (uc *IngestDocumentUseCase) Upload(
	ctx context.Context,
	filename, mimeType string,
	body io.Reader,
) (*domain.Document, error) {
	modality, err := detectModality(filename, mimeType)
	if err != nil {
		return nil, err
	}

	id := uuid.NewString()
	storageKey := fmt.Sprintf("%s_%s", id, sanitizeFilename(filename))
	now := time.Now().UTC()

	if err := uc.storage.Save(ctx, storageKey, body); err != nil {
		return nil, fmt.Errorf("save to object storage: %w", err)
	}

	doc := &domain.Document{
		ID:          id,
		Filename:    filename,
		MimeType:    mimeType,
		Modality:    modality,
		StoragePath: storageKey,
		Status:      domain.StatusUploaded,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := uc.repo.Create(ctx, doc); err != nil {
		uc.discardBlob(ctx, storageKey)
		return nil, fmt.Errorf("create document metadata: %w", err)
	}

	if err := uc.queue.PublishDocumentIngested(ctx, doc.ID); err != nil {
		// The row already exists, so the failure must be observable through
		// the status endpoint; the blob is unreachable without an event.
		publishErr := fmt.Errorf("publish ingestion event: %w", err)
		uc.discardBlob(ctx, storageKey)
		if markErr := uc.repo.UpdateStatus(ctx, doc.ID, domain.StatusFailed, publishErr.Error()); markErr != nil {
			return nil, fmt.Errorf("%w; mark failed status: %v", publishErr, markErr)
		}
		return nil, publishErr
	}

	return doc, nil
}

// discardBlob is best-effort compensation: the upload already failed, a
// leftover file must not fail it twice.
func (uc *IngestDocumentUseCase) discardBlob(ctx context.Context, storageKey string) {
	_ = uc.storage.Delete(ctx, storageKey)
}

// detectModality routes an upload by MIME type first, then by file extension.
func detectModality(filename, mimeType string) (domain.Modality, error) {
	mime := strings.ToLower(strings.TrimSpace(mimeType))
	if idx := strings.IndexByte(mime, ';'); idx >= 0 {
		mime = strings.TrimSpace(mime[:idx])
	}

	switch {
	case mime == "application/pdf":
		return domain.ModalityPDF, nil
	case strings.HasPrefix(mime, "audio/"):
		return domain.ModalityAudio, nil
	case strings.HasPrefix(mime, "video/"):
		return domain.ModalityVideo, nil
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".pdf":
		return domain.ModalityPDF, nil
	case ".mp3", ".wav", ".m4a", ".ogg", ".flac":
		return domain.ModalityAudio, nil
	case ".mp4", ".mov", ".mkv", ".avi", ".webm":
		return domain.ModalityVideo, nil
	}

	return "", domain.WrapError(
		domain.ErrInvalidInput,
		"detect modality",
		fmt.Errorf("unsupported document type %q (%s)", filepath.Ext(filename), mimeType),
	)
}

func sanitizeFilename(name string) string {
	base := filepath.Base(name)
	base = strings.ReplaceAll(base, " ", "_")
	base = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z':
			return r
		case r >= 'A' && r <= 'Z':
			return r
		case r >= '0' && r <= '9':
			return r
		case r == '.', r == '-', r == '_':
			return r
		default:
			return '_'
		}
	}, base)
	if base == "" || base == "." {
		return "document.bin"
	}
	return base
}

// GetDocumentUseCase exposes the stored document state to the API.
type GetDocumentUseCase struct {
	repo ports.DocumentRepository
}

func NewGetDocumentUseCase(repo ports.DocumentRepository) *GetDocumentUseCase {
	return &GetDocumentUseCase{repo: repo}
}

func (uc *GetDocumentUseCase) GetByID(ctx context.Context, id string) (*domain.Document, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "get document", errors.New("empty document id"))
	}
	return uc.repo.GetByID(ctx, id)
}
