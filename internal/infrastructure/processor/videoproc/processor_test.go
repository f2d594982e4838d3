package videoproc

import (
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

type demuxerFake struct {
	err error
}

func (f *demuxerFake) DemuxAudio(_ context.Context, _ io.Reader) (io.Reader, error) {
	if f.err != nil {
		return nil, f.err
	}
	return strings.NewReader("wav"), nil
}

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

type taggerFake struct {
	tags []domain.FrameTag
	err  error
}

func (f *taggerFake) Tag(context.Context, io.Reader) ([]domain.FrameTag, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.tags, nil
}

func spokenTranscript() *domain.Transcript {
	return &domain.Transcript{Segments: []domain.TranscriptSegment{
		{StartSec: 0, EndSec: 5, Text: "Opening statement.", Confidence: 0.9},
	}}
}

func TestExtractAppendsFrameTagSegments(t *testing.T) {
	processor := New(&demuxerFake{}, &transcriberFake{transcript: spokenTranscript()}, &taggerFake{tags: []domain.FrameTag{
		{TimestampSec: 12, Label: "whiteboard", Confidence: 0.81},
		{TimestampSec: 12, Label: "person", Confidence: 0.95},
		{TimestampSec: 30, Label: "document", Confidence: 0.77},
	}})

	segments, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("mp4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 3 {
		t.Fatalf("got %d segments, want transcript + 2 frame segments", len(segments))
	}

	frame := segments[1]
	if !strings.HasPrefix(frame.Text, "Detected objects at 12s:") {
		t.Fatalf("frame segment text %q", frame.Text)
	}
	if !strings.Contains(frame.Text, "whiteboard (0.81)") || !strings.Contains(frame.Text, "person (0.95)") {
		t.Fatalf("frame segment is missing labels: %q", frame.Text)
	}
	if frame.Locator.StartSec != 12 || frame.Locator.EndSec != 12 {
		t.Fatalf("frame locator %+v", frame.Locator)
	}
}

func TestExtractToleratesTaggerFailure(t *testing.T) {
	processor := New(&demuxerFake{}, &transcriberFake{transcript: spokenTranscript()}, &taggerFake{err: errors.New("model missing")})

	segments, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("mp4"))
	if err != nil {
		t.Fatalf("tagger failure must not fail the document: %v", err)
	}
	if len(segments) != 1 {
		t.Fatalf("got %d segments, want only the transcript", len(segments))
	}
}

func TestExtractDemuxFailure(t *testing.T) {
	processor := New(&demuxerFake{err: errors.New("no audio track")}, &transcriberFake{}, nil)

	_, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("mp4"))
	if !domain.IsKind(err, domain.ErrExtraction) {
		t.Fatalf("got %v, want ErrExtraction", err)
	}
}

func TestExtractWithoutTagger(t *testing.T) {
	processor := New(&demuxerFake{}, &transcriberFake{transcript: spokenTranscript()}, nil)

	segments, err := processor.Extract(context.Background(), &domain.Document{ID: "doc-1"}, strings.NewReader("mp4"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(segments) != 1 || segments[0].Text != "Opening statement." {
		t.Fatalf("segments %+v", segments)
	}
}
