package domain

import (
	"errors"
	"fmt"
)

// Pipeline failure taxonomy. Each stage wraps its errors with the matching
// kind so callers can branch without string inspection.
var (
	ErrExtraction = errors.New("extraction failed")
	ErrChunking   = errors.New("chunking failed")
	ErrEmbedding  = errors.New("embedding failed")
	ErrStore      = errors.New("vector store failed")
	ErrRetrieval  = errors.New("retrieval found no candidates")
	ErrGeneration = errors.New("generation failed")

	ErrDocumentNotFound = errors.New("document not found")
	ErrInvalidInput     = errors.New("invalid input")
	ErrTemporary        = errors.New("temporary failure")
)

// WrapError preserves typed semantic errors with operation context.
func WrapError(kind error, operation string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w: %w", operation, kind, err)
}

func IsKind(err error, kind error) bool {
	return errors.Is(err, kind)
}

// IsRetryable reports whether the failure is transient: callers may retry
// the whole operation. Configuration and data errors never are.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrTemporary)
}
