package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
)

const (
	defaultTopK        = 8
	defaultTokenBudget = 3000

	// candidateFanOut over-fetches so deduplication and the token budget
	// still leave enough distinct context.
	candidateFanOut = 3

	// overlapDedupeRatio is the fraction of the smaller char range that two
	// results from the same document may share before the lower-scored one
	// is dropped.
	overlapDedupeRatio = 0.5
)

type RetrieveContextUseCase struct {
	embedder    ports.Embedder
	vectorDB    ports.VectorStore
	topK        int
	tokenBudget int
}

func NewRetrieveContextUseCase(embedder ports.Embedder, vectorDB ports.VectorStore, topK, tokenBudget int) *RetrieveContextUseCase {
	if topK <= 0 {
		topK = defaultTopK
	}
	if tokenBudget <= 0 {
		tokenBudget = defaultTokenBudget
	}
	return &RetrieveContextUseCase{
		embedder:    embedder,
		vectorDB:    vectorDB,
		topK:        topK,
		tokenBudget: tokenBudget,
	}
}

// Retrieve embeds the query, fans out to the vector store, deduplicates
// overlapping spans and cuts the ranked tail to the token budget. A query
// that matches nothing is an ErrRetrieval, not an empty success.
func (uc *RetrieveContextUseCase) Retrieve(ctx context.Context, query string, scope []string, tokenBudget int) ([]domain.SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "retrieve context", errors.New("empty query"))
	}
	if tokenBudget <= 0 {
		tokenBudget = uc.tokenBudget
	}

	vector, err := uc.embedder.EmbedQuery(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	filter := domain.SearchFilter{DocumentIDs: scope}
	candidates, err := uc.vectorDB.Query(ctx, vector, uc.topK*candidateFanOut, filter)
	if err != nil {
		return nil, fmt.Errorf("query vector store: %w", err)
	}
	if len(candidates) == 0 {
		return nil, domain.WrapError(domain.ErrRetrieval, "retrieve context", fmt.Errorf("no candidates for query"))
	}

	results := dedupeOverlapping(candidates)
	results = uc.cutToBudget(results, tokenBudget)

	for i := range results {
		if results[i].Snippet == "" {
			results[i].Snippet = snippetOf(results[i].Text)
		}
	}
	return results, nil
}

// dedupeOverlapping drops results whose char range mostly repeats a
// higher-ranked result from the same document. Input is assumed sorted by
// rank; output preserves that order.
func dedupeOverlapping(candidates []domain.SearchResult) []domain.SearchResult {
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].Score != candidates[j].Score {
			return candidates[i].Score > candidates[j].Score
		}
		return candidates[i].IngestedAt.After(candidates[j].IngestedAt)
	})

	kept := make([]domain.SearchResult, 0, len(candidates))
	for _, candidate := range candidates {
		duplicate := false
		for _, winner := range kept {
			if winner.DocumentID != candidate.DocumentID {
				continue
			}
			if overlapFraction(winner, candidate) > overlapDedupeRatio {
				duplicate = true
				break
			}
		}
		if !duplicate {
			kept = append(kept, candidate)
		}
	}
	return kept
}

func overlapFraction(a, b domain.SearchResult) float64 {
	lo := a.CharStart
	if b.CharStart > lo {
		lo = b.CharStart
	}
	hi := a.CharEnd
	if b.CharEnd < hi {
		hi = b.CharEnd
	}
	if hi <= lo {
		return 0
	}

	smaller := a.CharEnd - a.CharStart
	if span := b.CharEnd - b.CharStart; span < smaller {
		smaller = span
	}
	if smaller <= 0 {
		return 0
	}
	return float64(hi-lo) / float64(smaller)
}

// cutToBudget keeps ranked results until the estimated token total would
// exceed the budget, and never more than topK.
func (uc *RetrieveContextUseCase) cutToBudget(results []domain.SearchResult, tokenBudget int) []domain.SearchResult {
	kept := make([]domain.SearchResult, 0, len(results))
	used := 0
	for _, result := range results {
		cost := estimateTokens(result.Text)
		if len(kept) > 0 && used+cost > tokenBudget {
			break
		}
		kept = append(kept, result)
		used += cost
		if len(kept) == uc.topK {
			break
		}
	}
	return kept
}
