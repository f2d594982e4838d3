package audioproc

import (
	"context"
	"io"
	"strings"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
)

const (
	noSpeechPlaceholder    = "[no speech detected]"
	failedRangePlaceholder = "[inaudible]"
)

// Processor turns an audio stream into timestamped segments via the
// transcription backend. Sub-ranges the backend could not transcribe become
// zero-confidence placeholders instead of aborting the document.
type Processor struct {
	transcriber ports.Transcriber
}

func New(transcriber ports.Transcriber) *Processor {
	return &Processor{transcriber: transcriber}
}

func (p *Processor) Modality() domain.Modality {
	return domain.ModalityAudio
}

func (p *Processor) Extract(ctx context.Context, doc *domain.Document, raw io.Reader) ([]domain.Segment, error) {
	transcript, err := p.transcriber.Transcribe(ctx, raw)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(domain.ErrExtraction, "transcribe audio", err)
	}
	return SegmentsFromTranscript(transcript), nil
}

// SegmentsFromTranscript is shared with the video path, which transcribes a
// demuxed audio track through the same backend.
func SegmentsFromTranscript(transcript *domain.Transcript) []domain.Segment {
	if transcript == nil || len(transcript.Segments) == 0 {
		return []domain.Segment{{
			Index:      0,
			Text:       noSpeechPlaceholder,
			Confidence: 0,
			Locator:    domain.TimeLocator(0, 0),
		}}
	}

	segments := make([]domain.Segment, 0, len(transcript.Segments))
	for _, ts := range transcript.Segments {
		text := strings.TrimSpace(ts.Text)
		confidence := ts.Confidence
		if text == "" {
			text = failedRangePlaceholder
			confidence = 0
		}
		segments = append(segments, domain.Segment{
			Index:      len(segments),
			Text:       text,
			Confidence: confidence,
			Locator:    domain.TimeLocator(ts.StartSec, ts.EndSec),
		})
	}
	return segments
}
