package usecase

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
)

// PromptSet holds the per-mode prompt templates. Each template takes the
// numbered context block first and the query (or focus suffix) second.
type PromptSet struct {
	Summarize string
	QA        string
	KeyPoints string
}

const (
	summarizeMaxTokens = 500
	qaMaxTokens        = 1000
	keyPointsMaxTokens = 500

	analysisTemperature = 0.1
)

var citationMarker = regexp.MustCompile(`\[(\d+)\]`)

type AnalyzeDocumentsUseCase struct {
	retriever ports.ContextRetriever
	llm       ports.CompletionBackend
	prompts   PromptSet
}

func NewAnalyzeDocumentsUseCase(retriever ports.ContextRetriever, llm ports.CompletionBackend, prompts PromptSet) *AnalyzeDocumentsUseCase {
	return &AnalyzeDocumentsUseCase{
		retriever: retriever,
		llm:       llm,
		prompts:   prompts,
	}
}

// Analyze drives a request through retrieval, prompt building and generation.
// The response it returns always reflects the final state, including failed.
func (uc *AnalyzeDocumentsUseCase) Analyze(ctx context.Context, req *domain.AnalysisRequest) (*domain.AnalysisResponse, error) {
	if err := validateRequest(req); err != nil {
		return nil, err
	}
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.State = domain.AnalysisPending

	response := &domain.AnalysisResponse{RequestID: req.ID}

	req.State = domain.AnalysisRetrieving
	results, err := uc.retriever.Retrieve(ctx, req.Query, req.DocumentIDs, req.TokenBudget)
	if err != nil {
		// No context means no grounded answer: fail before spending a
		// generation call.
		return uc.fail(req, response, fmt.Errorf("retrieve context: %w", err))
	}

	req.State = domain.AnalysisPromptBuilding
	prompt := uc.buildPrompt(req.Mode, req.Query, results)

	req.State = domain.AnalysisGenerating
	answer, err := uc.llm.Complete(ctx, prompt, maxTokensFor(req.Mode), analysisTemperature)
	if err != nil {
		if !domain.IsKind(err, domain.ErrGeneration) {
			err = domain.WrapError(domain.ErrGeneration, "complete analysis", err)
		}
		return uc.fail(req, response, err)
	}

	answer, citations := resolveCitations(answer, results)

	response.Answer = answer
	response.Citations = citations
	if req.Mode == domain.ModeKeyPoints {
		response.KeyPoints = splitKeyPoints(answer)
	}

	req.State = domain.AnalysisCompleted
	response.State = domain.AnalysisCompleted
	return response, nil
}

func validateRequest(req *domain.AnalysisRequest) error {
	if req == nil {
		return domain.WrapError(domain.ErrInvalidInput, "analyze documents", errors.New("nil request"))
	}
	if strings.TrimSpace(req.Query) == "" {
		return domain.WrapError(domain.ErrInvalidInput, "analyze documents", errors.New("empty query"))
	}
	if !req.Mode.Valid() {
		return domain.WrapError(domain.ErrInvalidInput, "analyze documents", fmt.Errorf("unknown mode %q", req.Mode))
	}
	return nil
}

func (uc *AnalyzeDocumentsUseCase) fail(req *domain.AnalysisRequest, response *domain.AnalysisResponse, err error) (*domain.AnalysisResponse, error) {
	req.State = domain.AnalysisFailed
	req.Error = err.Error()
	response.State = domain.AnalysisFailed
	return response, err
}

func (uc *AnalyzeDocumentsUseCase) buildPrompt(mode domain.AnalysisMode, query string, results []domain.SearchResult) string {
	var context strings.Builder
	for i, result := range results {
		fmt.Fprintf(&context, "[%d] (document %s, %s) %s\n\n", i+1, result.DocumentID, result.Locator.String(), result.Text)
	}
	block := strings.TrimRight(context.String(), "\n")

	switch mode {
	case domain.ModeQA:
		return fmt.Sprintf(uc.prompts.QA, block, query)
	case domain.ModeKeyPoints:
		return fmt.Sprintf(uc.prompts.KeyPoints, block, focusSuffix(query))
	default:
		return fmt.Sprintf(uc.prompts.Summarize, block, focusSuffix(query))
	}
}

// focusSuffix turns a free-form query into an optional focus instruction for
// the modes whose main task is fixed.
func focusSuffix(query string) string {
	query = strings.TrimSpace(query)
	if query == "" {
		return ""
	}
	return "\n\nFocus on: " + query
}

func maxTokensFor(mode domain.AnalysisMode) int {
	switch mode {
	case domain.ModeQA:
		return qaMaxTokens
	case domain.ModeKeyPoints:
		return keyPointsMaxTokens
	default:
		return summarizeMaxTokens
	}
}

// resolveCitations maps [n] markers in the answer onto the retrieved context.
// Markers that point outside the context are stripped: a citation the reader
// cannot follow is worse than none.
func resolveCitations(answer string, results []domain.SearchResult) (string, []domain.Citation) {
	seen := make(map[int]bool)
	var citations []domain.Citation

	cleaned := citationMarker.ReplaceAllStringFunc(answer, func(marker string) string {
		n, err := strconv.Atoi(strings.Trim(marker, "[]"))
		if err != nil || n < 1 || n > len(results) {
			return ""
		}
		if !seen[n] {
			seen[n] = true
			result := results[n-1]
			citations = append(citations, domain.Citation{
				ChunkID:    result.ChunkID,
				DocumentID: result.DocumentID,
				Snippet:    snippetOf(result.Text),
				Locator:    result.Locator,
			})
		}
		return marker
	})

	return strings.TrimSpace(cleaned), citations
}

// splitKeyPoints turns a line-per-point completion into a clean list,
// dropping bullets and empty lines.
func splitKeyPoints(answer string) []string {
	var points []string
	for _, line := range strings.Split(answer, "\n") {
		line = strings.TrimSpace(line)
		line = strings.TrimLeft(line, "-*• \t")
		if idx := strings.IndexByte(line, '.'); idx > 0 && idx <= 3 && isDigits(line[:idx]) {
			line = strings.TrimSpace(line[idx+1:])
		}
		if line == "" {
			continue
		}
		points = append(points, line)
	}
	return points
}

func isDigits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return s != ""
}
