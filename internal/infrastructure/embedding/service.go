package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/resilience"
)

// Client is the raw embedding backend.
type Client interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	ModelVersion() string
	Dimensions() int
}

// Service wraps a backend client with a content-hash cache, batch splitting,
// a bounded worker pool and retry. Vectors are deterministic per model
// version, so the cache has no invalidation rule other than a version change,
// which changes the key namespace.
type Service struct {
	client    Client
	executor  *resilience.Executor
	batchSize int
	poolSize  int

	mu    sync.RWMutex
	cache map[string][]float32
}

func NewService(client Client, executor *resilience.Executor, batchSize, poolSize int) *Service {
	if batchSize <= 0 {
		batchSize = 16
	}
	if poolSize <= 0 {
		poolSize = 4
	}
	return &Service{
		client:    client,
		executor:  executor,
		batchSize: batchSize,
		poolSize:  poolSize,
		cache:     make(map[string][]float32),
	}
}

func (s *Service) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	vectors := make([][]float32, len(texts))
	missing := make([]int, 0, len(texts))
	for i, text := range texts {
		if v, ok := s.cached(s.cacheKey(text)); ok {
			vectors[i] = v
			continue
		}
		missing = append(missing, i)
	}

	if err := s.embedMissing(ctx, texts, vectors, missing); err != nil {
		return nil, err
	}

	dim := s.client.Dimensions()
	for i, v := range vectors {
		if dim > 0 && len(v) != dim {
			return nil, domain.WrapError(domain.ErrEmbedding, "validate dimensions",
				fmt.Errorf("vector %d has dimension %d, store expects %d", i, len(v), dim))
		}
	}
	return vectors, nil
}

func (s *Service) EmbedQuery(ctx context.Context, text string) ([]float32, error) {
	vectors, err := s.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) == 0 || len(vectors[0]) == 0 {
		return nil, domain.WrapError(domain.ErrEmbedding, "embed query",
			errors.New("backend returned an empty vector"))
	}
	return vectors[0], nil
}

func (s *Service) embedMissing(ctx context.Context, texts []string, vectors [][]float32, missing []int) error {
	if len(missing) == 0 {
		return nil
	}

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(s.poolSize)

	var mu sync.Mutex
	for start := 0; start < len(missing); start += s.batchSize {
		end := start + s.batchSize
		if end > len(missing) {
			end = len(missing)
		}
		batch := missing[start:end]

		group.Go(func() error {
			batchTexts := make([]string, len(batch))
			for i, idx := range batch {
				batchTexts[i] = texts[idx]
			}

			var result [][]float32
			err := s.executor.Execute(groupCtx, "embedding.embed", func(callCtx context.Context) error {
				var callErr error
				result, callErr = s.client.Embed(callCtx, batchTexts)
				return callErr
			}, classifyEmbeddingError)
			if err != nil {
				return wrapEmbeddingError("embed batch", err)
			}
			if len(result) != len(batchTexts) {
				return domain.WrapError(domain.ErrEmbedding, "embed batch",
					fmt.Errorf("got %d vectors for %d texts", len(result), len(batchTexts)))
			}

			mu.Lock()
			for i, idx := range batch {
				vectors[idx] = result[i]
			}
			mu.Unlock()

			for i, idx := range batch {
				s.store(s.cacheKey(texts[idx]), result[i])
			}
			return nil
		})
	}

	return group.Wait()
}

// cacheKey hashes whitespace-normalized text and prefixes the model version,
// so a version bump abandons the whole previous namespace.
func (s *Service) cacheKey(text string) string {
	sum := sha256.Sum256([]byte(normalizeText(text)))
	return s.client.ModelVersion() + ":" + hex.EncodeToString(sum[:])
}

func normalizeText(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func (s *Service) cached(key string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.cache[key]
	return v, ok
}

func (s *Service) store(key string, vector []float32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[key] = vector
}
