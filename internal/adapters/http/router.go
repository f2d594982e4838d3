package httpadapter

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
	"github.com/kirillkom/legal-doc-analyzer/internal/observability/metrics"
)

const serviceName = "api"

// maxUploadBytes bounds multipart uploads; legal video depositions get large.
const maxUploadBytes = 2 << 30

type Router struct {
	ingestor ports.DocumentIngestor
	reader   ports.DocumentReader
	searcher ports.ContextRetriever
	analyzer ports.DocumentAnalyzer

	logger   *slog.Logger
	metrics  *metrics.HTTPServerMetrics
	llmModel string
}

func NewRouter(
	ingestor ports.DocumentIngestor,
	reader ports.DocumentReader,
	searcher ports.ContextRetriever,
	analyzer ports.DocumentAnalyzer,
	logger *slog.Logger,
	m *metrics.HTTPServerMetrics,
	llmModel string,
) *Router {
	return &Router{
		ingestor: ingestor,
		reader:   reader,
		searcher: searcher,
		analyzer: analyzer,
		logger:   logger,
		metrics:  m,
		llmModel: llmModel,
	}
}

func (rt *Router) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", rt.healthz)
	mux.HandleFunc("/v1/documents", rt.uploadDocument)
	mux.HandleFunc("/v1/documents/", rt.getDocumentByID)
	mux.HandleFunc("/v1/search", rt.search)
	mux.HandleFunc("/v1/analyze", rt.analyze)

	var handler http.Handler = mux
	if rt.metrics != nil {
		handler = rt.metrics.Middleware(serviceName, handler)
	}
	handler = accessLogMiddleware(rt.logger, handler)
	return requestIDMiddleware(handler)
}

func (rt *Router) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (rt *Router) uploadDocument(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxUploadBytes)
	file, fileHeader, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "multipart field 'file' is required")
		return
	}
	defer file.Close()

	doc, err := rt.ingestor.Upload(
		r.Context(),
		fileHeader.Filename,
		fileHeader.Header.Get("Content-Type"),
		file,
	)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	writeJSON(w, http.StatusAccepted, doc)
}

func (rt *Router) getDocumentByID(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	id := strings.TrimPrefix(r.URL.Path, "/v1/documents/")
	if id == "" || strings.Contains(id, "/") {
		writeError(w, http.StatusBadRequest, "document id is required")
		return
	}

	doc, err := rt.reader.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

func (rt *Router) search(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Query       string   `json:"query"`
		DocumentIDs []string `json:"document_ids"`
		TokenBudget int      `json:"token_budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	start := time.Now()
	results, err := rt.searcher.Retrieve(r.Context(), req.Query, req.DocumentIDs, req.TokenBudget)
	if err != nil {
		if rt.metrics != nil && domain.IsKind(err, domain.ErrRetrieval) {
			rt.metrics.RecordSearch(serviceName, 0, time.Since(start))
		}
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}
	if rt.metrics != nil {
		rt.metrics.RecordSearch(serviceName, len(results), time.Since(start))
	}

	writeJSON(w, http.StatusOK, map[string]any{"results": results})
}

func (rt *Router) analyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req struct {
		Query       string   `json:"query"`
		Mode        string   `json:"mode"`
		DocumentIDs []string `json:"document_ids"`
		TokenBudget int      `json:"token_budget"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Mode == "" {
		req.Mode = string(domain.ModeSummarize)
	}

	request := &domain.AnalysisRequest{
		Query:       req.Query,
		Mode:        domain.AnalysisMode(req.Mode),
		DocumentIDs: req.DocumentIDs,
		TokenBudget: req.TokenBudget,
	}

	start := time.Now()
	response, err := rt.analyzer.Analyze(r.Context(), request)
	if rt.metrics != nil && response != nil {
		rt.metrics.RecordAnalysis(serviceName, string(request.Mode), string(response.State), len(response.Citations), time.Since(start))
	}
	if err != nil {
		writeError(w, mapErrorToHTTPStatus(err), err.Error())
		return
	}

	if rt.metrics != nil {
		rt.metrics.RecordTokenUsage(serviceName, rt.llmModel,
			utf8.RuneCountInString(req.Query)/4,
			utf8.RuneCountInString(response.Answer)/4,
		)
	}
	writeJSON(w, http.StatusOK, response)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
