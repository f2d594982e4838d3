package domain

import "time"

type AnalysisMode string

const (
	ModeSummarize AnalysisMode = "summarize"
	ModeQA        AnalysisMode = "qa"
	ModeKeyPoints AnalysisMode = "key_points"
)

func (m AnalysisMode) Valid() bool {
	switch m {
	case ModeSummarize, ModeQA, ModeKeyPoints:
		return true
	}
	return false
}

type AnalysisState string

const (
	AnalysisPending        AnalysisState = "pending"
	AnalysisRetrieving     AnalysisState = "retrieving"
	AnalysisPromptBuilding AnalysisState = "prompt_building"
	AnalysisGenerating     AnalysisState = "generating"
	AnalysisCompleted      AnalysisState = "completed"
	AnalysisFailed         AnalysisState = "failed"
)

type AnalysisRequest struct {
	ID          string        `json:"id"`
	DocumentIDs []string      `json:"document_ids,omitempty"`
	Query       string        `json:"query"`
	Mode        AnalysisMode  `json:"mode"`
	TokenBudget int           `json:"token_budget"`
	State       AnalysisState `json:"state"`
	Error       string        `json:"error,omitempty"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Citation maps a span of the generated answer back to the chunk that
// justifies it.
type Citation struct {
	ChunkID    string  `json:"chunk_id"`
	DocumentID string  `json:"document_id"`
	Snippet    string  `json:"snippet"`
	Locator    Locator `json:"locator"`
}

type AnalysisResponse struct {
	RequestID string        `json:"request_id"`
	Answer    string        `json:"answer"`
	KeyPoints []string      `json:"key_points,omitempty"`
	Citations []Citation    `json:"citations"`
	State     AnalysisState `json:"state"`
}
