package videoproc

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/processor/audioproc"
)

// Demuxer extracts the audio track from a video container.
type Demuxer interface {
	DemuxAudio(ctx context.Context, video io.Reader) (io.Reader, error)
}

// Processor demuxes the audio track, delegates it to the audio transcription
// path, and optionally appends sparse frame-tag segments.
type Processor struct {
	demuxer     Demuxer
	transcriber ports.Transcriber
	frameTagger ports.FrameTagger // optional, may be nil
}

func New(demuxer Demuxer, transcriber ports.Transcriber, frameTagger ports.FrameTagger) *Processor {
	if demuxer == nil {
		demuxer = &FFmpegDemuxer{}
	}
	return &Processor{
		demuxer:     demuxer,
		transcriber: transcriber,
		frameTagger: frameTagger,
	}
}

func (p *Processor) Modality() domain.Modality {
	return domain.ModalityVideo
}

func (p *Processor) Extract(ctx context.Context, doc *domain.Document, raw io.Reader) ([]domain.Segment, error) {
	data, err := io.ReadAll(raw)
	if err != nil {
		return nil, domain.WrapError(domain.ErrExtraction, "read video bytes", err)
	}

	audio, err := p.demuxer.DemuxAudio(ctx, bytes.NewReader(data))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(domain.ErrExtraction, "demux audio track", err)
	}

	transcript, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, domain.WrapError(domain.ErrExtraction, "transcribe video audio", err)
	}
	segments := audioproc.SegmentsFromTranscript(transcript)

	// Frame tags enrich the transcript; their failure never fails the document.
	if p.frameTagger != nil {
		tags, tagErr := p.frameTagger.Tag(ctx, bytes.NewReader(data))
		if tagErr != nil {
			slog.Warn("frame_tagging_failed", "document_id", doc.ID, "error", tagErr)
		} else {
			segments = appendFrameSegments(segments, tags)
		}
	}
	return segments, nil
}

func appendFrameSegments(segments []domain.Segment, tags []domain.FrameTag) []domain.Segment {
	byTimestamp := make(map[float64][]string)
	confidence := make(map[float64]float64)
	var order []float64
	for _, tag := range tags {
		if strings.TrimSpace(tag.Label) == "" {
			continue
		}
		if _, seen := byTimestamp[tag.TimestampSec]; !seen {
			order = append(order, tag.TimestampSec)
			confidence[tag.TimestampSec] = tag.Confidence
		}
		byTimestamp[tag.TimestampSec] = append(byTimestamp[tag.TimestampSec],
			fmt.Sprintf("%s (%.2f)", tag.Label, tag.Confidence))
		if tag.Confidence < confidence[tag.TimestampSec] {
			confidence[tag.TimestampSec] = tag.Confidence
		}
	}

	for _, ts := range order {
		segments = append(segments, domain.Segment{
			Index:      len(segments),
			Text:       fmt.Sprintf("Detected objects at %.0fs: %s", ts, strings.Join(byTimestamp[ts], ", ")),
			Confidence: confidence[ts],
			Locator:    domain.TimeLocator(ts, ts),
		})
	}
	return segments
}

// FFmpegDemuxer shells out to ffmpeg to pull a mono 16kHz wav track out of
// the container, matching what the transcription backend expects.
type FFmpegDemuxer struct {
	Binary string
}

func (d *FFmpegDemuxer) DemuxAudio(ctx context.Context, video io.Reader) (io.Reader, error) {
	binary := d.Binary
	if binary == "" {
		binary = "ffmpeg"
	}

	var out bytes.Buffer
	var stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, binary,
		"-i", "pipe:0",
		"-vn",
		"-acodec", "pcm_s16le",
		"-ar", "16000",
		"-ac", "1",
		"-f", "wav",
		"pipe:1",
	)
	cmd.Stdin = video
	cmd.Stdout = &out
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		msg := strings.TrimSpace(stderr.String())
		if len(msg) > 512 {
			msg = msg[len(msg)-512:]
		}
		return nil, fmt.Errorf("ffmpeg demux: %w: %s", err, msg)
	}
	if out.Len() == 0 {
		return nil, fmt.Errorf("ffmpeg demux: container has no audio track")
	}
	return &out, nil
}
