package domain

import "time"

// SearchFilter narrows the vector-store candidate set before ranking.
type SearchFilter struct {
	DocumentIDs    []string
	Modality       Modality
	IngestedAfter  time.Time
	IngestedBefore time.Time
}

func (f SearchFilter) IsZero() bool {
	return len(f.DocumentIDs) == 0 &&
		f.Modality == "" &&
		f.IngestedAfter.IsZero() &&
		f.IngestedBefore.IsZero()
}

type SearchResult struct {
	ChunkID    string    `json:"chunk_id"`
	DocumentID string    `json:"document_id"`
	Modality   Modality  `json:"modality"`
	Score      float64   `json:"score"`
	Text       string    `json:"text"`
	Snippet    string    `json:"snippet,omitempty"`
	Locator    Locator   `json:"locator"`
	CharStart  int       `json:"char_start"`
	CharEnd    int       `json:"char_end"`
	SourceURI  string    `json:"source_uri,omitempty"`
	IngestedAt time.Time `json:"ingested_at"`
}
