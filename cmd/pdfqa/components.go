package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/hyperjump/pdfqa/internal/config"
	"github.com/hyperjump/pdfqa/internal/embedding"
	"github.com/hyperjump/pdfqa/internal/extract"
	"github.com/hyperjump/pdfqa/internal/generation"
	"github.com/hyperjump/pdfqa/internal/indexer"
	"github.com/hyperjump/pdfqa/internal/keyword"
	"github.com/hyperjump/pdfqa/internal/rag"
	"github.com/hyperjump/pdfqa/internal/storage"
	"github.com/hyperjump/pdfqa/internal/vector"
	"go.uber.org/zap"
)

// Components holds everything the service is built from, so it can be closed in one place.
type Components struct {
	Store    storage.Store
	Embedder embedding.Embedder
	Vectors  vector.Store
	Keyword  keyword.ChunkIndex
	Indexer  *indexer.Indexer
	Service  *rag.Service
}

// Close releases every component that holds resources.
func (c *Components) Close() {
	if c.Store != nil {
		_ = c.Store.Close()
	}
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Vectors != nil {
		_ = c.Vectors.Close()
	}
	if c.Keyword != nil {
		_ = c.Keyword.Close()
	}
}

func newEmbedder(cfg config.EmbeddingConfig, logger *zap.Logger) (embedding.Embedder, error) {
	switch cfg.Type {
	case "http":
		return embedding.NewHTTPEmbedder(embedding.HTTPConfig{
			BaseURL:    cfg.URL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Dimensions: cfg.Dimensions,
			Timeout:    cfg.Timeout,
			Logger:     logger,
		})
	case "onnx":
		e, err := embedding.NewONNXEmbedder(embedding.ONNXConfig{
			ModelPath:  cfg.ModelPath,
			Dimensions: cfg.Dimensions,
			MaxTokens:  cfg.MaxTokens,
		})
		if err != nil {
			return nil, fmt.Errorf("onnx embedder: %w", err)
		}
		return e, nil
	case "mock":
		logger.Warn("using mock embedder; answers will not be semantically grounded")
		return embedding.NewMockEmbedder(cfg.Dimensions), nil
	default:
		return nil, fmt.Errorf("unknown embedding type: %s (supported: http, onnx, mock)", cfg.Type)
	}
}

func initializeComponents(ctx context.Context, cfg *config.Config, logger *zap.Logger, debug bool) (*Components, error) {
	c := &Components{}
	ok := false
	defer func() {
		if !ok {
			c.Close()
		}
	}()

	var err error
	if c.Store, err = storage.New(cfg.Storage.Type, cfg.Storage.DSN); err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	uploads, err := storage.NewUploads(cfg.Storage.UploadDir)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize upload directory: %w", err)
	}
	if c.Embedder, err = newEmbedder(cfg.Embedding, logger); err != nil {
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}
	c.Embedder = embedding.NewCached(c.Embedder, cfg.Embedding.CacheSize)
	c.Vectors, err = vector.NewStore(cfg.Vector.Type, vector.QdrantConfig{
		URL:     cfg.Vector.URL,
		APIKey:  cfg.Vector.APIKey,
		Timeout: cfg.Vector.Timeout,
		Logger:  logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize vector store: %w", err)
	}
	if cfg.Keyword.Enabled {
		if c.Keyword, err = keyword.NewBleveIndex(cfg.Keyword.Path); err != nil {
			return nil, fmt.Errorf("failed to initialize keyword index: %w", err)
		}
	}

	var debugLogger *zap.Logger
	if debug {
		debugLogger = logger
	}

	idxOpts := []indexer.IndexerOption{indexer.WithLogger(logger)}
	if c.Keyword != nil {
		idxOpts = append(idxOpts, indexer.WithKeywordIndex(c.Keyword))
	}
	c.Indexer = indexer.NewIndexer(c.Embedder, c.Vectors, cfg.Vector.Collection, vector.Distance(cfg.Vector.Distance), idxOpts...)
	if err := c.Indexer.EnsureCollection(ctx); err != nil {
		// not fatal: the indexer retries before the first upsert
		logger.Warn("vector collection not ready", zap.String("collection", cfg.Vector.Collection), zap.Error(err))
	}

	provider, err := generation.NewProvider(generation.Config{
		Provider:    cfg.Generation.Provider,
		BaseURL:     cfg.Generation.BaseURL,
		APIKey:      cfg.Generation.APIKey,
		Model:       cfg.Generation.Model,
		VisionModel: cfg.Generation.VisionModel,
		Timeout:     cfg.Generation.Timeout,
		Logger:      logger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize generation provider: %w", err)
	}
	var streamer generation.StreamingGenerator = provider
	if cfg.Generation.Streaming == "simulated" {
		streamer = generation.NewSimulated(provider, cfg.Generation.FragmentSize, cfg.Generation.FragmentDelay)
	}

	extractor := extract.NewExtractor(
		extract.WithVision(provider),
		extract.WithMinPageChars(cfg.Extract.MinPageChars),
		extract.WithRenderDPI(cfg.Extract.RenderDPI),
		extract.WithConcurrency(cfg.Extract.Concurrency),
		extract.WithVisionRateLimit(cfg.Extract.VisionRPS, cfg.Extract.VisionBurst),
		extract.WithLogger(logger),
	)
	chunker := indexer.NewChunker(cfg.Chunking.ChunkSize, cfg.Chunking.Overlap()).WithStrategy(cfg.Chunking.Strategy)

	retrieverOpts := []rag.RetrieverOption{rag.WithRetrieverLogger(debugLogger)}
	if c.Keyword != nil {
		retrieverOpts = append(retrieverOpts, rag.WithKeywordFallback(c.Keyword, true))
	}
	retriever := rag.NewRetriever(c.Embedder, c.Vectors, cfg.Vector.Collection, cfg.Retrieval.TopK, retrieverOpts...)
	answers := rag.NewAnswerStreamer(retriever, provider, streamer, c.Store, cfg.Generation.Timeout,
		rag.WithStreamerLogger(debugLogger))

	c.Service = rag.NewService(c.Store, uploads, extractor, chunker, c.Indexer, answers, logger)
	logger.Info("components initialized",
		zap.String("storage", cfg.Storage.Type),
		zap.String("vector_store", cfg.Vector.Type),
		zap.String("embedding", cfg.Embedding.Type),
		zap.String("generation", cfg.Generation.Provider),
		zap.String("streaming", cfg.Generation.Streaming),
		zap.Bool("keyword_fallback", c.Keyword != nil),
		zap.String("upload_dir", filepath.Clean(cfg.Storage.UploadDir)),
	)
	ok = true
	return c, nil
}
