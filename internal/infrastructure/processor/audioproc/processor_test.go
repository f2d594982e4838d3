package audioproc

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

type transcriberFake struct {
	transcript *domain.Transcript
	err        error
}

func (f *transcriberFake) Transcribe(context.Context, io.Reader) (*domain.Transcript, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.transcript, nil
}

func TestExtractBuildsTimestampedSegments(t *testing.T) {
	processor := New(&transcriberFake{transcript: &domain.Transcript{
		Language: "en",
		Segments: []domain.TranscriptSegment{
			{StartSec: 0, EndSec: 4.5, Text: " The witness takes the stand. ", Confidence: 0.93},
			{StartSec: 4.5, EndSec: 9, Text: "Counsel begins questioning.", Confidence: 0.88},
		},
	}})

	segments, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 2 {
		t.Fatalf("got %d segments, want 2", len(segments))
	}
	if segments[0].Text != "The witness takes the stand." {
		t.Errorf("segment text not trimmed: %q", segments[0].Text)
	}
	if segments[0].Locator.StartSec != 0 || segments[0].Locator.EndSec != 4.5 {
		t.Errorf("segment locator %+v", segments[0].Locator)
	}
	if segments[1].Index != 1 || segments[1].Confidence != 0.88 {
		t.Errorf("segment 1: %+v", segments[1])
	}
}

func TestExtractEmptyTranscriptYieldsPlaceholder(t *testing.T) {
	processor := New(&transcriberFake{transcript: &domain.Transcript{}})

	segments, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want the single placeholder", len(segments))
	}
	if segments[0].Text != "[no speech detected]" || segments[0].Confidence != 0 {
		t.Fatalf("placeholder segment %+v", segments[0])
	}
}

func TestExtractBlankRangeBecomesInaudible(t *testing.T) {
	processor := New(&transcriberFake{transcript: &domain.Transcript{
		Segments: []domain.TranscriptSegment{
			{StartSec: 0, EndSec: 3, Text: "Clear speech.", Confidence: 0.9},
			{StartSec: 3, EndSec: 6, Text: "   ", Confidence: 0.4},
		},
	}})

	segments, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("wav"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if segments[1].Text != "[inaudible]" || segments[1].Confidence != 0 {
		t.Fatalf("blank range %+v, want zero-confidence placeholder", segments[1])
	}
}

func TestExtractTranscriberFailure(t *testing.T) {
	processor := New(&transcriberFake{err: errors.New("backend gone")})

	_, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("wav"))
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("got %v, want ErrExtraction", err)
	}
}

func TestExtractCancellationIsNotExtractionFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	processor := New(&transcriberFake{err: ctx.Err()})

	_, err := processor.Extract(ctx, &domain.Document{ID: "doc-1"}, strings.NewReader("wav"))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("got %v, want context.Canceled", err)
	}
	if domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("cancellation must not be tagged as extraction failure: %v", err)
	}
}
