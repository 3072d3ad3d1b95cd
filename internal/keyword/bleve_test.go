package keyword

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/hyperjump/pdfqa/internal/models"
)

func newMemIndex(t *testing.T) *BleveIndex {
	t.Helper()
	idx, err := NewBleveIndex("")
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	t.Cleanup(func() { _ = idx.Close() })
	return idx
}

func TestBleveIndex_SearchFindsChunkText(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	chunks := []*models.Chunk{
		{ID: "c1", DocID: "doc-a", Text: "This report mentions Omnisyan and other findings.", Page: models.PageNumber(2)},
		{ID: "c2", DocID: "doc-a", Text: "The Bayes app is also referenced."},
	}
	if err := idx.Index(ctx, chunks); err != nil {
		t.Fatalf("Index: %v", err)
	}

	results, err := idx.Search(ctx, "doc-a", "Omnisyan", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Fatalf("expected one result, got %d", len(results))
	}
	if results[0].ID != "c1" || results[0].Text != chunks[0].Text {
		t.Errorf("unexpected hit %+v", results[0])
	}
	if results[0].Page == nil || *results[0].Page != 2 {
		t.Errorf("page = %v, want 2", results[0].Page)
	}

	// Standard analyzer (no stemming) so "bayes" matches "Bayes"
	results, err = idx.Search(ctx, "doc-a", "bayes", 10, nil)
	if err != nil {
		t.Fatalf("Search bayes: %v", err)
	}
	if len(results) != 1 || results[0].ID != "c2" {
		t.Fatalf("expected c2 for \"bayes\", got %+v", results)
	}
	if results[0].Page != nil {
		t.Errorf("chunk without page should come back without page, got %d", *results[0].Page)
	}
}

func TestBleveIndex_SearchScopedToDocument(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	chunks := []*models.Chunk{
		{ID: "a1", DocID: "doc-a", Text: "shared vocabulary appears here"},
		{ID: "b1", DocID: "doc-b", Text: "shared vocabulary appears here too"},
	}
	if err := idx.Index(ctx, chunks); err != nil {
		t.Fatalf("Index: %v", err)
	}
	want := map[string]string{"doc-a": "a1", "doc-b": "b1"}
	for docID, chunkID := range want {
		results, err := idx.Search(ctx, docID, "shared vocabulary", 10, nil)
		if err != nil {
			t.Fatalf("Search: %v", err)
		}
		if len(results) != 1 {
			t.Fatalf("%s: expected 1 result, got %d", docID, len(results))
		}
		if results[0].ID != chunkID {
			t.Errorf("%s: got chunk %s from another document", docID, results[0].ID)
		}
	}
	results, err := idx.Search(ctx, "doc-c", "shared", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("unknown document should match nothing, got %d", len(results))
	}
}

func TestBleveIndex_FuzzySearch(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, []*models.Chunk{{ID: "c1", DocID: "d", Text: "quarterly revenue grew"}}); err != nil {
		t.Fatal(err)
	}
	results, err := idx.Search(ctx, "d", "revenu", 10, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 0 {
		t.Errorf("exact search should not match a typo, got %d", len(results))
	}
	results, err = idx.Search(ctx, "d", "revenu?", 10, &SearchOptions{FuzzyEnabled: true})
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 {
		t.Errorf("fuzzy search should match one edit away, got %d", len(results))
	}
}

func TestBleveIndex_emptyInputs(t *testing.T) {
	idx := newMemIndex(t)
	ctx := context.Background()
	if err := idx.Index(ctx, nil); err != nil {
		t.Errorf("empty batch: %v", err)
	}
	for _, q := range []struct{ doc, query string }{{"", "x"}, {"d", ""}, {"d", "   "}} {
		results, err := idx.Search(ctx, q.doc, q.query, 10, nil)
		if err != nil || results != nil {
			t.Errorf("Search(%q, %q) = %v, %v", q.doc, q.query, results, err)
		}
	}
}

func TestBleveIndex_ReopenKeepsChunks(t *testing.T) {
	indexPath := filepath.Join(t.TempDir(), "sub", "bleve")

	idx1, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex: %v", err)
	}
	ctx := context.Background()
	if err := idx1.Index(ctx, []*models.Chunk{{ID: "c1", DocID: "d", Text: "uniqueword"}}); err != nil {
		t.Fatalf("Index: %v", err)
	}
	if err := idx1.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if _, err := os.Stat(indexPath); err != nil {
		t.Fatalf("index path should exist: %v", err)
	}

	idx2, err := NewBleveIndex(indexPath)
	if err != nil {
		t.Fatalf("NewBleveIndex (open existing): %v", err)
	}
	defer func() {
		_ = idx2.Close()
	}()
	n, err := idx2.DocCount()
	if err != nil || n != 1 {
		t.Errorf("DocCount = %d, %v; want 1", n, err)
	}
	results, err := idx2.Search(ctx, "d", "uniqueword", 10, nil)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(results) != 1 {
		t.Errorf("expected reopened index to find the chunk, got %d", len(results))
	}
}
