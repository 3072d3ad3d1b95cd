package rag

import (
	"context"
	"strings"

	"github.com/hyperjump/pdfqa/internal/embedding"
	"github.com/hyperjump/pdfqa/internal/keyword"
	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/vector"
	"github.com/hyperjump/pdfqa/pkg/utils"
	"go.uber.org/zap"
)

// DefaultTopK is used when a Retriever is built with a non-positive topK.
const DefaultTopK = 10

const zeroScore = 1e-9

// Retriever finds the chunks of one document closest to a question.
type Retriever struct {
	embedder   embedding.Embedder
	store      vector.Store
	collection string
	topK       int
	keyword    keyword.ChunkIndex
	fuzzy      bool
	logger     *zap.Logger
}

// RetrieverOption configures a Retriever.
type RetrieverOption func(*Retriever)

// WithKeywordFallback searches idx when vector search has nothing to offer: the query embeds to
// a zero vector, or no hit scores above zero. fuzzy enables typo-tolerant matching.
func WithKeywordFallback(idx keyword.ChunkIndex, fuzzy bool) RetrieverOption {
	return func(r *Retriever) {
		r.keyword = idx
		r.fuzzy = fuzzy
	}
}

// WithRetrieverLogger sets a logger for debug output.
func WithRetrieverLogger(l *zap.Logger) RetrieverOption {
	return func(r *Retriever) { r.logger = l }
}

// NewRetriever creates a retriever. embedder must be the one used at ingestion.
func NewRetriever(embedder embedding.Embedder, store vector.Store, collection string, topK int, opts ...RetrieverOption) *Retriever {
	if topK <= 0 {
		topK = DefaultTopK
	}
	r := &Retriever{embedder: embedder, store: store, collection: collection, topK: topK}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Retrieve returns up to topK hits of docID ranked by similarity to query. A blank query or doc_id
// yields no hits.
func (r *Retriever) Retrieve(ctx context.Context, docID, query string) ([]models.RetrievalHit, error) {
	if strings.TrimSpace(query) == "" || docID == "" {
		return nil, nil
	}
	vec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, providerError(models.ErrEmbedding, "embed query", err)
	}
	if utils.IsZeroVector(vec) {
		return r.lexical(ctx, docID, query, "zero query vector")
	}

	results, err := r.store.Search(ctx, r.collection, vec, vector.Filter{DocID: docID}, r.topK)
	if err != nil {
		return nil, providerError(models.ErrVectorStore, "search", err)
	}
	hits := make([]models.RetrievalHit, 0, len(results))
	allZero := true
	for _, res := range results {
		if res.Payload.DocID != docID {
			continue
		}
		if res.Score > zeroScore {
			allZero = false
		}
		hits = append(hits, models.RetrievalHit{Text: res.Payload.Text, Page: res.Payload.Page, Score: res.Score})
	}
	if allZero && r.keyword != nil {
		return r.lexical(ctx, docID, query, "no positive vector score")
	}
	if r.logger != nil {
		r.logger.Debug("retrieved chunks", zap.String("doc_id", docID), zap.Int("hits", len(hits)))
	}
	return hits, nil
}

func (r *Retriever) lexical(ctx context.Context, docID, query, reason string) ([]models.RetrievalHit, error) {
	if r.keyword == nil {
		return []models.RetrievalHit{}, nil
	}
	if r.logger != nil {
		r.logger.Debug("falling back to keyword search", zap.String("doc_id", docID), zap.String("reason", reason))
	}
	results, err := r.keyword.Search(ctx, docID, query, r.topK, &keyword.SearchOptions{FuzzyEnabled: r.fuzzy})
	if err != nil {
		return nil, providerError(models.ErrVectorStore, "keyword search", err)
	}
	hits := make([]models.RetrievalHit, 0, len(results))
	for _, res := range results {
		hits = append(hits, models.RetrievalHit{Text: res.Text, Page: res.Page, Score: res.Score})
	}
	return hits, nil
}
