package chunking

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

// Splitter turns a document's ordered segments into overlapping, size-bounded
// chunks. All sizes are measured in runes of the concatenated segment text.
type Splitter struct {
	TargetSize     int
	Overlap        int
	SentenceWindow int
	MaxSize        int
	MinSize        int
}

func NewSplitter(targetSize, overlap int) *Splitter {
	if targetSize <= 0 {
		targetSize = 900
	}
	if overlap < 0 {
		overlap = 0
	}
	s := &Splitter{
		TargetSize:     targetSize,
		Overlap:        overlap,
		SentenceWindow: 30,
		MaxSize:        2 * targetSize,
		MinSize:        1,
	}
	s.SentenceWindow = s.boundaryWindow()
	return s
}

// boundaryWindow keeps the boundary search from eating the whole forward
// step, which would stall the scan. Computed per call: a splitter is shared
// across concurrently processed documents, so Chunk never writes the receiver.
func (s *Splitter) boundaryWindow() int {
	limit := s.TargetSize - s.Overlap - 1
	if limit < 0 {
		limit = 0
	}
	if s.SentenceWindow > limit {
		return limit
	}
	return s.SentenceWindow
}

type segmentSpan struct {
	index int
	start int // rune offset in the concatenated text
	end   int
	runes []rune
}

func (s *Splitter) Chunk(documentID string, segments []domain.Segment) ([]domain.Chunk, error) {
	if s.Overlap >= s.TargetSize {
		return nil, domain.WrapError(domain.ErrChunking, "validate config",
			errors.New("overlap must be smaller than target size"))
	}
	if len(segments) == 0 {
		return nil, domain.WrapError(domain.ErrChunking, "validate input",
			errors.New("no segments to chunk"))
	}
	window := s.boundaryWindow()

	spans := make([]segmentSpan, 0, len(segments))
	text := make([]rune, 0, 4096)
	for i, seg := range segments {
		runes := []rune(seg.Text)
		spans = append(spans, segmentSpan{
			index: i,
			start: len(text),
			end:   len(text) + len(runes),
			runes: runes,
		})
		text = append(text, runes...)
	}

	now := time.Now().UTC()
	var chunks []domain.Chunk

	// Oversized segments are emitted whole and act as barriers: the greedy
	// scan and the overlap never cross them.
	runStart := 0
	for i := 0; i <= len(spans); i++ {
		if i < len(spans) && len(spans[i].runes) <= s.MaxSize {
			continue
		}
		runEnd := len(text)
		if i < len(spans) {
			runEnd = spans[i].start
		}
		chunks = s.appendRunChunks(chunks, documentID, text, segments, spans, runStart, runEnd, window, now)
		if i < len(spans) {
			chunks = s.appendChunk(chunks, documentID, text, segments, spans,
				spans[i].start, spans[i].end, true, now)
			runStart = spans[i].end
		}
	}

	if len(chunks) == 0 {
		return nil, domain.WrapError(domain.ErrChunking, "chunk document",
			errors.New("segments contain no chunkable text"))
	}
	return chunks, nil
}

func (s *Splitter) appendRunChunks(
	chunks []domain.Chunk,
	documentID string,
	text []rune,
	segments []domain.Segment,
	spans []segmentSpan,
	runStart, runEnd, window int,
	now time.Time,
) []domain.Chunk {
	pos := runStart
	for pos < runEnd {
		end := pos + s.TargetSize
		if end >= runEnd {
			end = runEnd
		} else {
			end = sentenceBoundary(text, pos, end, window)
		}

		chunks = s.appendChunk(chunks, documentID, text, segments, spans, pos, end, false, now)
		if end == runEnd {
			break
		}
		pos = end - s.Overlap
	}
	return chunks
}

// sentenceBoundary walks back from the tentative cut looking for a sentence
// terminator inside the tolerance window; without one the cut stays hard.
func sentenceBoundary(text []rune, pos, end, window int) int {
	low := end - window
	if low <= pos {
		low = pos + 1
	}
	for i := end - 1; i >= low; i-- {
		switch text[i] {
		case '.', '!', '?', '\n':
			return i + 1
		}
	}
	return end
}

func (s *Splitter) appendChunk(
	chunks []domain.Chunk,
	documentID string,
	text []rune,
	segments []domain.Segment,
	spans []segmentSpan,
	start, end int,
	oversized bool,
	now time.Time,
) []domain.Chunk {
	if end <= start {
		return chunks
	}
	body := string(text[start:end])
	if len(strings.TrimSpace(body)) < s.MinSize {
		return chunks
	}

	var provenance []domain.SegmentRange
	for _, span := range spans {
		if span.end <= start || span.start >= end {
			continue
		}
		from := start
		if span.start > from {
			from = span.start
		}
		to := end
		if span.end < to {
			to = span.end
		}
		provenance = append(provenance, domain.SegmentRange{
			SegmentIndex: span.index,
			Start:        from - span.start,
			End:          to - span.start,
			Locator:      segments[span.index].Locator,
		})
	}

	return append(chunks, domain.Chunk{
		ID:         uuid.NewString(),
		DocumentID: documentID,
		Index:      len(chunks),
		Text:       body,
		CharCount:  end - start,
		Start:      start,
		End:        end,
		Oversized:  oversized,
		Provenance: provenance,
		CreatedAt:  now,
	})
}
