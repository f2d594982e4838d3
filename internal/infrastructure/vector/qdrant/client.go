package qdrant

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/resilience"
)

// Client indexes embedded chunks in a qdrant collection. Upserts are keyed by
// chunk ID and sent with wait=true, so a successful ack means the point is
// already visible to queries.
type Client struct {
	baseURL    string
	apiKey     string
	collection string
	httpClient *http.Client
	executor   *resilience.Executor

	ensureMu          sync.Mutex
	ensuredCollection bool
	ensuredVectorSize int
}

func New(baseURL, apiKey, collection string, executor *resilience.Executor) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		collection: collection,
		httpClient: &http.Client{Timeout: 60 * time.Second},
		executor:   executor,
	}
}

func (c *Client) UpsertChunks(ctx context.Context, doc *domain.Document, chunks []domain.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	for _, chunk := range chunks {
		if len(chunk.Vector) == 0 {
			return domain.WrapError(domain.ErrStore, "validate chunks",
				fmt.Errorf("chunk %s has no embedding vector", chunk.ID))
		}
	}
	if err := c.checkDimensions(len(chunks[0].Vector)); err != nil {
		return err
	}
	if err := c.ensureCollection(ctx, len(chunks[0].Vector)); err != nil {
		return err
	}

	ingestedAt := time.Now().UTC()

	type point struct {
		ID      string         `json:"id"`
		Vector  []float32      `json:"vector"`
		Payload map[string]any `json:"payload"`
	}
	points := make([]point, 0, len(chunks))
	for _, chunk := range chunks {
		points = append(points, point{
			ID:     chunk.ID,
			Vector: chunk.Vector,
			Payload: map[string]any{
				"chunk_id":    chunk.ID,
				"document_id": chunk.DocumentID,
				"modality":    string(doc.Modality),
				"text":        chunk.Text,
				"page":        firstLocator(chunk).Page,
				"start_sec":   firstLocator(chunk).StartSec,
				"end_sec":     lastLocator(chunk).EndSec,
				"char_start":  chunk.Start,
				"char_end":    chunk.End,
				"source_uri":  doc.StoragePath,
				"ingested_at": ingestedAt.Format(time.RFC3339Nano),
			},
		})
	}

	body, err := json.Marshal(map[string]any{"points": points})
	if err != nil {
		return domain.WrapError(domain.ErrStore, "marshal upsert body", err)
	}

	// wait=true blocks until the write is applied, which is what upholds the
	// read-after-write contract over qdrant's async default.
	url := fmt.Sprintf("%s/collections/%s/points?wait=true", c.baseURL, c.collection)
	err = c.execute(ctx, "qdrant.upsert", func(callCtx context.Context) error {
		return c.send(callCtx, http.MethodPut, url, body, nil)
	})
	if err != nil {
		return wrapStoreError("upsert chunks", err)
	}
	return nil
}

func (c *Client) Query(ctx context.Context, vector []float32, k int, filter domain.SearchFilter) ([]domain.SearchResult, error) {
	if k <= 0 {
		k = 10
	}
	if err := c.checkDimensions(len(vector)); err != nil {
		return nil, err
	}

	reqBody := map[string]any{
		"query":        vector,
		"limit":        k,
		"with_payload": true,
	}
	if must := buildFilter(filter); len(must) > 0 {
		reqBody["filter"] = map[string]any{"must": must}
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return nil, domain.WrapError(domain.ErrStore, "marshal query body", err)
	}

	var response struct {
		Result struct {
			Points []struct {
				Score   float64        `json:"score"`
				Payload map[string]any `json:"payload"`
			} `json:"points"`
		} `json:"result"`
	}
	url := fmt.Sprintf("%s/collections/%s/points/query", c.baseURL, c.collection)
	err = c.execute(ctx, "qdrant.query", func(callCtx context.Context) error {
		return c.send(callCtx, http.MethodPost, url, body, &response)
	})
	if err != nil {
		return nil, wrapStoreError("query points", err)
	}

	out := make([]domain.SearchResult, 0, len(response.Result.Points))
	for _, p := range response.Result.Points {
		out = append(out, resultFromPayload(p.Score, p.Payload))
	}
	sortResults(out)
	return out, nil
}

// sortResults orders by descending score, breaking ties by most recent
// ingestion time.
func sortResults(results []domain.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].IngestedAt.After(results[j].IngestedAt)
	})
}

func buildFilter(filter domain.SearchFilter) []map[string]any {
	var must []map[string]any
	if len(filter.DocumentIDs) > 0 {
		must = append(must, map[string]any{
			"key":   "document_id",
			"match": map[string]any{"any": filter.DocumentIDs},
		})
	}
	if filter.Modality != "" {
		must = append(must, map[string]any{
			"key":   "modality",
			"match": map[string]any{"value": string(filter.Modality)},
		})
	}
	if !filter.IngestedAfter.IsZero() || !filter.IngestedBefore.IsZero() {
		rangeClause := map[string]any{}
		if !filter.IngestedAfter.IsZero() {
			rangeClause["gte"] = filter.IngestedAfter.Format(time.RFC3339Nano)
		}
		if !filter.IngestedBefore.IsZero() {
			rangeClause["lte"] = filter.IngestedBefore.Format(time.RFC3339Nano)
		}
		must = append(must, map[string]any{
			"key":            "ingested_at",
			"datetime_range": rangeClause,
		})
	}
	return must
}

func resultFromPayload(score float64, payload map[string]any) domain.SearchResult {
	result := domain.SearchResult{
		ChunkID:    getString(payload, "chunk_id"),
		DocumentID: getString(payload, "document_id"),
		Modality:   domain.Modality(getString(payload, "modality")),
		Score:      score,
		Text:       getString(payload, "text"),
		SourceURI:  getString(payload, "source_uri"),
		CharStart:  getInt(payload, "char_start"),
		CharEnd:    getInt(payload, "char_end"),
		Locator: domain.Locator{
			Page:     getInt(payload, "page"),
			StartSec: getFloat(payload, "start_sec"),
			EndSec:   getFloat(payload, "end_sec"),
		},
	}
	if ts, err := time.Parse(time.RFC3339Nano, getString(payload, "ingested_at")); err == nil {
		result.IngestedAt = ts
	}
	return result
}

// checkDimensions rejects a dimensionality change without a network round
// trip: a schema mismatch is permanent and must not be retried.
func (c *Client) checkDimensions(vectorSize int) error {
	c.ensureMu.Lock()
	defer c.ensureMu.Unlock()
	if c.ensuredCollection && c.ensuredVectorSize != vectorSize {
		return domain.WrapError(domain.ErrStore, "check dimensions",
			fmt.Errorf("vector dimensionality %d does not match collection size %d",
				vectorSize, c.ensuredVectorSize))
	}
	return nil
}

func (c *Client) ensureCollection(ctx context.Context, vectorSize int) error {
	c.ensureMu.Lock()
	if c.ensuredCollection && c.ensuredVectorSize == vectorSize {
		c.ensureMu.Unlock()
		return nil
	}
	c.ensureMu.Unlock()

	body, err := json.Marshal(map[string]any{
		"vectors": map[string]any{
			"size":     vectorSize,
			"distance": "Cosine",
		},
	})
	if err != nil {
		return domain.WrapError(domain.ErrStore, "marshal create collection body", err)
	}

	url := fmt.Sprintf("%s/collections/%s", c.baseURL, c.collection)
	err = c.execute(ctx, "qdrant.ensure_collection", func(callCtx context.Context) error {
		sendErr := c.send(callCtx, http.MethodPut, url, body, nil)
		var statusErr *HTTPStatusError
		// 409 means the collection already exists.
		if asStatusError(sendErr, &statusErr) && statusErr.StatusCode == http.StatusConflict {
			return nil
		}
		return sendErr
	})
	if err != nil {
		return wrapStoreError("ensure collection", err)
	}

	c.ensureMu.Lock()
	c.ensuredCollection = true
	c.ensuredVectorSize = vectorSize
	c.ensureMu.Unlock()
	return nil
}

func (c *Client) execute(ctx context.Context, operation string, fn func(context.Context) error) error {
	if c.executor == nil {
		return fn(ctx)
	}
	return c.executor.Execute(ctx, operation, fn, classifyStoreError)
}

func (c *Client) send(ctx context.Context, method, url string, body []byte, out any) error {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("qdrant request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &HTTPStatusError{
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(raw)),
		}
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode qdrant response: %w", err)
	}
	return nil
}

func firstLocator(chunk domain.Chunk) domain.Locator {
	if len(chunk.Provenance) == 0 {
		return domain.Locator{}
	}
	return chunk.Provenance[0].Locator
}

func lastLocator(chunk domain.Chunk) domain.Locator {
	if len(chunk.Provenance) == 0 {
		return domain.Locator{}
	}
	return chunk.Provenance[len(chunk.Provenance)-1].Locator
}

func getString(payload map[string]any, key string) string {
	if v, ok := payload[key].(string); ok {
		return v
	}
	return ""
}

func getInt(payload map[string]any, key string) int {
	switch v := payload[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	}
	return 0
}

func getFloat(payload map[string]any, key string) float64 {
	switch v := payload[key].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	}
	return 0
}
