package llm

import (
	"context"

	"github.com/kirillkom/legal-doc-analyzer/internal/core/domain"
	"github.com/kirillkom/legal-doc-analyzer/internal/core/ports"
	"github.com/kirillkom/legal-doc-analyzer/internal/infrastructure/resilience"
)

// Resilient decorates a completion backend with retry and circuit breaking.
// Errors that survive the policy come back kind-tagged so callers can tell a
// transient outage from a rejected request.
type Resilient struct {
	backend  ports.CompletionBackend
	executor *resilience.Executor
	classify func(error) resilience.ErrorClassification
}

func NewResilient(backend ports.CompletionBackend, executor *resilience.Executor, classify func(error) resilience.ErrorClassification) *Resilient {
	return &Resilient{
		backend:  backend,
		executor: executor,
		classify: classify,
	}
}

func (r *Resilient) Complete(ctx context.Context, prompt string, maxTokens int, temperature float64) (string, error) {
	var answer string
	err := r.executor.Execute(ctx, "llm.complete", func(callCtx context.Context) error {
		var callErr error
		answer, callErr = r.backend.Complete(callCtx, prompt, maxTokens, temperature)
		return callErr
	}, r.classify)
	if err != nil {
		wrapped := domain.WrapError(domain.ErrGeneration, "llm complete", err)
		if r.classify(err).Retryable {
			wrapped = domain.WrapError(domain.ErrTemporary, "llm complete", wrapped)
		}
		return "", wrapped
	}
	return answer, nil
}
