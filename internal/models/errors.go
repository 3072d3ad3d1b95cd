package models

import "errors"

// Error kinds. Provider boundaries wrap the underlying cause together with one of these,
// so callers can test with errors.Is.
var (
	ErrValidation  = errors.New("validation failed")
	ErrNotFound    = errors.New("not found")
	ErrExtraction  = errors.New("extraction failed")
	ErrIngestion   = errors.New("ingestion failed")
	ErrEmbedding   = errors.New("embedding provider error")
	ErrVectorStore = errors.New("vector store error")
	ErrGeneration  = errors.New("generation provider error")
	ErrTimeout     = errors.New("timed out")
)
