package indexer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/hyperjump/pdfqa/internal/embedding"
	"github.com/hyperjump/pdfqa/internal/keyword"
	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/vector"
	"go.uber.org/zap"
)

// Indexer embeds chunks and upserts them into the shared vector collection.
type Indexer struct {
	embedder     embedding.Embedder
	store        vector.Store
	spec         vector.CollectionSpec
	keywordIndex keyword.ChunkIndex // optional
	logger       *zap.Logger        // optional; when set, logs debug events

	mu    sync.Mutex
	ready bool
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithKeywordIndex also adds every indexed chunk to a lexical index.
func WithKeywordIndex(k keyword.ChunkIndex) IndexerOption {
	return func(idx *Indexer) { idx.keywordIndex = k }
}

// NewIndexer creates an indexer writing to collection. The collection's dimensionality is
// the embedder's, so ingestion and retrieval share one vector schema.
func NewIndexer(embedder embedding.Embedder, store vector.Store, collection string, distance vector.Distance, opts ...IndexerOption) *Indexer {
	if distance == "" {
		distance = vector.Cosine
	}
	idx := &Indexer{
		embedder: embedder,
		store:    store,
		spec: vector.CollectionSpec{
			Name:       collection,
			Dimensions: embedder.Dimensions(),
			Distance:   distance,
		},
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// Collection returns the collection schema the indexer writes to.
func (idx *Indexer) Collection() vector.CollectionSpec {
	return idx.spec
}

// EnsureCollection creates the collection on first use. A failed attempt is retried on the next call.
func (idx *Indexer) EnsureCollection(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	if idx.ready {
		return nil
	}
	if err := idx.store.EnsureCollection(ctx, idx.spec); err != nil {
		return fmt.Errorf("%w: ensure collection %s: %w", models.ErrVectorStore, idx.spec.Name, err)
	}
	idx.ready = true
	if idx.logger != nil {
		idx.logger.Debug("indexer collection ready",
			zap.String("collection", idx.spec.Name), zap.Int("dimensions", idx.spec.Dimensions))
	}
	return nil
}

// IndexChunks embeds all chunk texts in one batch and upserts one point per chunk with payload
// {text, doc_id, page}. Embeddings are stored on the chunks. Zero chunks is a no-op.
func (idx *Indexer) IndexChunks(ctx context.Context, docID string, chunks []*models.Chunk) error {
	if len(chunks) == 0 {
		return nil
	}
	if docID == "" {
		return fmt.Errorf("%w: doc_id is required", models.ErrValidation)
	}
	if err := idx.EnsureCollection(ctx); err != nil {
		return err
	}

	texts := make([]string, len(chunks))
	for i, ch := range chunks {
		texts[i] = ch.Text
	}
	embeddings, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return fmt.Errorf("%w: embed %d chunks: %w", models.ErrEmbedding, len(chunks), err)
	}
	if len(embeddings) != len(chunks) {
		return fmt.Errorf("%w: got %d embeddings for %d chunks", models.ErrEmbedding, len(embeddings), len(chunks))
	}

	points := make([]vector.Point, len(chunks))
	for i, ch := range chunks {
		if ch.ID == "" {
			ch.ID = uuid.New().String()
		}
		ch.DocID = docID
		ch.Embedding = embeddings[i]
		points[i] = vector.Point{
			ID:      ch.ID,
			Vector:  embeddings[i],
			Payload: vector.Payload{Text: ch.Text, DocID: docID, Page: ch.Page},
		}
	}
	if err := idx.store.Upsert(ctx, idx.spec.Name, points); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Errorf("%w: upsert: %w", models.ErrTimeout, err)
		}
		return fmt.Errorf("%w: upsert %d points: %w", models.ErrVectorStore, len(points), err)
	}

	if idx.keywordIndex != nil {
		if err := idx.keywordIndex.Index(ctx, chunks); err != nil {
			// lexical index is a fallback; vectors are already durable
			if idx.logger != nil {
				idx.logger.Warn("keyword indexing failed", zap.String("doc_id", docID), zap.Error(err))
			}
		}
	}
	if idx.logger != nil {
		idx.logger.Debug("indexer chunks indexed", zap.String("doc_id", docID), zap.Int("chunks", len(chunks)))
	}
	return nil
}
