package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
)

// Client talks to a Whisper-compatible transcription server and maps its
// verbose segment output onto the domain transcript.
type Client struct {
	baseURL    string
	model      string
	httpClient *http.Client
}

func New(baseURL, model string) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		model:   model,
		// Transcription of long recordings is slow; the caller's context
		// carries the real deadline.
		httpClient: &http.Client{Timeout: 30 * time.Minute},
	}
}

func (c *Client) Transcribe(ctx context.Context, audio io.Reader) (*domain.Transcript, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", "audio.wav")
	if err != nil {
		return nil, fmt.Errorf("create multipart file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return nil, fmt.Errorf("copy audio stream: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return nil, fmt.Errorf("write model field: %w", err)
	}
	if err := writer.WriteField("response_format", "verbose_json"); err != nil {
		return nil, fmt.Errorf("write response_format field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return nil, fmt.Errorf("finalize multipart body: %w", err)
	}

	url := c.baseURL + "/v1/audio/transcriptions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &body)
	if err != nil {
		return nil, fmt.Errorf("create transcription request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("transcription request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return nil, fmt.Errorf("transcription status: %s: %s", resp.Status, strings.TrimSpace(string(raw)))
	}

	var response struct {
		Text     string `json:"text"`
		Language string `json:"language"`
		Segments []struct {
			Start      float64 `json:"start"`
			End        float64 `json:"end"`
			Text       string  `json:"text"`
			AvgLogprob float64 `json:"avg_logprob"`
		} `json:"segments"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("decode transcription response: %w", err)
	}

	transcript := &domain.Transcript{Language: response.Language}
	for _, seg := range response.Segments {
		transcript.Segments = append(transcript.Segments, domain.TranscriptSegment{
			StartSec:   seg.Start,
			EndSec:     seg.End,
			Text:       seg.Text,
			Confidence: confidenceFromLogprob(seg.AvgLogprob),
		})
	}
	return transcript, nil
}

// confidenceFromLogprob turns the backend's average token logprob into a
// [0,1] score.
func confidenceFromLogprob(avgLogprob float64) float64 {
	p := math.Exp(avgLogprob)
	if p > 1 {
		return 1
	}
	if p < 0 || math.IsNaN(p) {
		return 0
	}
	return p
}
