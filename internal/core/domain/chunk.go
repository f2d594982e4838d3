package domain

import "time"

// SegmentRange maps a piece of a chunk back to a rune range inside one
// source segment.
type SegmentRange struct {
	SegmentIndex int     `json:"segment_index"`
	Start        int     `json:"start"`
	End          int     `json:"end"`
	Locator      Locator `json:"locator"`
}

// Chunk is an embedding-ready text unit built from one or more contiguous
// segments of one document. Chunks are immutable after creation; re-chunking
// a document mints new IDs.
type Chunk struct {
	ID         string         `json:"id"`
	DocumentID string         `json:"document_id"`
	Index      int            `json:"index"`
	Text       string         `json:"text"`
	CharCount  int            `json:"char_count"`
	Start      int            `json:"start"` // rune offset in the concatenated document text
	End        int            `json:"end"`
	Oversized  bool           `json:"oversized,omitempty"`
	Provenance []SegmentRange `json:"provenance"`
	Vector     []float32      `json:"-"`
	CreatedAt  time.Time      `json:"created_at"`
}

// ResolveProvenance rebuilds the chunk text from the source segments. The
// result must equal Chunk.Text for any chunk the splitter produced.
func (c Chunk) ResolveProvenance(segments []Segment) string {
	var out []rune
	for _, r := range c.Provenance {
		if r.SegmentIndex < 0 || r.SegmentIndex >= len(segments) {
			continue
		}
		runes := []rune(segments[r.SegmentIndex].Text)
		if r.Start < 0 || r.End > len(runes) || r.Start > r.End {
			continue
		}
		out = append(out, runes[r.Start:r.End]...)
	}
	return string(out)
}
