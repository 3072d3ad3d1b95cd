// Package keyword provides a lexical chunk index used when vector retrieval has nothing to offer.
package keyword

import (
	"context"

	"github.com/hyperjump/pdfqa/internal/models"
)

// SearchOptions optional parameters for keyword search. Nil means use defaults.
type SearchOptions struct {
	// FuzzyEnabled matches terms within Fuzziness edits, which helps with OCR'd pages.
	FuzzyEnabled bool
	// Fuzziness is the maximum Levenshtein edit distance for fuzzy matching (1 or 2).
	// Default is 1 when FuzzyEnabled is true.
	Fuzziness int
}

// ChunkIndex defines lexical indexing of chunks scoped by document.
type ChunkIndex interface {
	Index(ctx context.Context, chunks []*models.Chunk) error
	// Search returns chunks of docID matching query, best first. Chunks of other documents never match.
	Search(ctx context.Context, docID, query string, limit int, opts *SearchOptions) ([]*KeywordResult, error)
	// DocCount returns the number of indexed chunks.
	DocCount() (uint64, error)
	Close() error
}

// KeywordResult is a single keyword search hit.
type KeywordResult struct {
	ID    string
	Text  string
	Page  *int
	Score float64
}
