package rag

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/pdfqa/internal/models"
)

// providerError wraps err with kind, or with models.ErrTimeout when a deadline expired.
func providerError(kind error, op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %s: %w", models.ErrTimeout, op, err)
	}
	return fmt.Errorf("%w: %s: %w", kind, op, err)
}

// classified reports whether err already carries one of the model error kinds.
func classified(err error) bool {
	for _, kind := range []error{
		models.ErrValidation, models.ErrNotFound, models.ErrExtraction, models.ErrIngestion,
		models.ErrEmbedding, models.ErrVectorStore, models.ErrGeneration, models.ErrTimeout,
	} {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}
