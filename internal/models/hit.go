package models

import (
	"sort"
	"time"
)

// RetrievalHit is a ranked chunk returned for one query.
type RetrievalHit struct {
	Text  string  `json:"text"`
	Page  *int    `json:"page"`
	Score float64 `json:"-"`
}

// ChatTurn is one completed question/answer exchange for a document.
type ChatTurn struct {
	Question  string         `json:"question"`
	Answer    string         `json:"answer"`
	Sources   []RetrievalHit `json:"sources"`
	CreatedAt time.Time      `json:"created_at"`
}

// Metadata describes the pages behind an answer.
type Metadata struct {
	Filename  string `json:"filename"`
	Pages     []int  `json:"pages"`
	UsedPages []int  `json:"used_pages"`
}

// UsedPages returns the sorted, de-duplicated page numbers of hits that carry one.
func UsedPages(hits []RetrievalHit) []int {
	seen := make(map[int]struct{}, len(hits))
	pages := make([]int, 0, len(hits))
	for _, h := range hits {
		if h.Page == nil {
			continue
		}
		if _, ok := seen[*h.Page]; ok {
			continue
		}
		seen[*h.Page] = struct{}{}
		pages = append(pages, *h.Page)
	}
	sort.Ints(pages)
	return pages
}

// UploadResult is returned after a document has been ingested and registered.
type UploadResult struct {
	ID       string `json:"id"`
	Filename string `json:"filename"`
	Chunks   int    `json:"chunks"`
}

// AskResult is the non-streaming answer to a question.
type AskResult struct {
	Query    string         `json:"query"`
	Answer   string         `json:"answer"`
	DocID    string         `json:"doc_id"`
	History  []ChatTurn     `json:"history"`
	Context  []RetrievalHit `json:"context"`
	Metadata Metadata       `json:"metadata"`
}
