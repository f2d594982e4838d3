package memory

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

// Store is an in-process vector store with cosine ranking. It backs tests and
// single-node deployments where running qdrant is not worth it.
type Store struct {
	mu      sync.RWMutex
	records map[string]record
}

type record struct {
	result domain.SearchResult
	vector []float32
}

func New() *Store {
	return &Store{records: make(map[string]record)}
}

func (s *Store) UpsertChunks(_ context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ingestedAt := time.Now().UTC()
	for _, chunk := range chunks {
		locator := domain.Locator{}
		if len(chunk.Provenance) > 0 {
			locator = chunk.Provenance[0].Locator
			locator.EndSec = chunk.Provenance[len(chunk.Provenance)-1].Locator.EndSec
		}
		// Keyed by chunk ID: re-upserting replaces, never duplicates.
		s.records[chunk.ID] = record{
			vector: chunk.Vector,
			result: domain.SearchResult{
				ChunkID:    chunk.ID,
				DocumentID: chunk.DocumentID,
				Modality:   doc.Modality,
				Text:       chunk.Text,
				Locator:    locator,
				CharStart:  chunk.Start,
				CharEnd:    chunk.End,
				SourceURI:  doc.StoragePath,
				IngestedAt: ingestedAt,
			},
		}
	}
	return nil
}

func (s *Store) Query(_ context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = 10
	}

	s.mu.RLock()
	candidates := make([]domain.SearchResult, 0, len(s.records))
	for _, rec := range s.records {
		if !matches(rec.result, filter) {
			continue
		}
		result := rec.result
		result.Score = cosine(vector, rec.vector)
		candidates = append(candidates, result)
	}
	s.mu.RUnlock()

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].IngestedAt.After(candidates[j].IngestedAt)
	})
	if len(candidates) > k {
		candidates = candidates[:k]
	}
	return candidates, nil
}

// Len reports the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}

func matches(result domain.SearchResult, filter domain.SearchFilter) bool {
	if len(filter.DocumentIDs) > 0 {
		found := false
		for _, id := range filter.DocumentIDs {
			if result.DocumentID == id {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Modality != "" && result.Modality != filter.Modality {
		return false
	}
	if !filter.IngestedAfter.IsZero() && result.IngestedAt.Before(filter.IngestedAfter) {
		return false
	}
	if !filter.IngestedBefore.IsZero() && result.IngestedAt.After(filter.IngestedBefore) {
		return false
	}
	return true
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
