// Package models defines core data structures for documents, chunks, retrieval hits, and chat turns.
package models

import "time"

// Document is an uploaded PDF known to the registry.
type Document struct {
	ID        string    `json:"id" db:"id"`
	Filename  string    `json:"filename" db:"filename"`
	Path      string    `json:"-" db:"path"`
	PageCount int       `json:"page_count" db:"page_count"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// Pages returns the 1-based page numbers of the document.
func (d *Document) Pages() []int {
	pages := make([]int, 0, d.PageCount)
	for i := 1; i <= d.PageCount; i++ {
		pages = append(pages, i)
	}
	return pages
}

// Chunk is a bounded span of document text. Page is nil when no page marker precedes it.
type Chunk struct {
	ID        string    `json:"id"`
	DocID     string    `json:"doc_id"`
	Text      string    `json:"text"`
	Page      *int      `json:"page"`
	Offset    int       `json:"-"`
	Embedding []float32 `json:"-"`
}

// PageNumber returns a pointer to n, for filling Chunk.Page and RetrievalHit.Page.
func PageNumber(n int) *int {
	return &n
}
