// Package rag answers questions about uploaded PDFs: ingestion (extract, chunk, index, register)
// and question answering (retrieve, prompt, generate, record).
package rag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hyperjump/pdfqa/internal/extract"
	"github.com/hyperjump/pdfqa/internal/indexer"
	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/storage"
	"go.uber.org/zap"
)

// Service is the boundary used by the HTTP server, the CLI and the inbox watcher.
type Service struct {
	store     storage.Store
	uploads   *storage.Uploads
	extractor *extract.Extractor
	chunker   *indexer.Chunker
	indexer   *indexer.Indexer
	answers   *AnswerStreamer
	logger    *zap.Logger
}

// NewService wires the pipeline. logger may be nil.
func NewService(store storage.Store, uploads *storage.Uploads, extractor *extract.Extractor, chunker *indexer.Chunker,
	idx *indexer.Indexer, answers *AnswerStreamer, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:     store,
		uploads:   uploads,
		extractor: extractor,
		chunker:   chunker,
		indexer:   idx,
		answers:   answers,
		logger:    logger,
	}
}

// Upload stores, extracts, chunks and indexes a PDF, then registers it. The document is only
// registered once every step succeeded; on failure the stored file is removed.
func (s *Service) Upload(ctx context.Context, content []byte, filename string) (*models.UploadResult, error) {
	if len(content) == 0 || strings.TrimSpace(filename) == "" {
		return nil, fmt.Errorf("%w: No file uploaded", models.ErrValidation)
	}
	id := uuid.New().String()
	filename = storage.SafeFilename(filename)
	path, err := s.uploads.Save(id, filename, content)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
	}

	res, err := s.ingest(ctx, id, filename, path, content)
	if err != nil {
		if rmErr := s.uploads.Remove(path); rmErr != nil {
			s.logger.Warn("failed to remove upload", zap.String("path", path), zap.Error(rmErr))
		}
		s.logger.Error("ingestion failed", zap.String("doc_id", id), zap.String("filename", filename), zap.Error(err))
		return nil, err
	}
	s.logger.Info("document ingested", zap.String("doc_id", id), zap.String("filename", filename), zap.Int("chunks", res.Chunks))
	return res, nil
}

func (s *Service) ingest(ctx context.Context, id, filename, path string, content []byte) (*models.UploadResult, error) {
	extracted, err := s.extractor.Extract(ctx, content)
	if err != nil {
		return nil, ingestionError("extract", err)
	}
	s.logger.Debug("document extracted", zap.String("doc_id", id), zap.Int("pages", extracted.PageCount()))

	chunks := s.chunker.Chunk(id, extracted.Text(), extracted.PageCount())
	if err := s.indexer.IndexChunks(ctx, id, chunks); err != nil {
		return nil, ingestionError("index", err)
	}

	doc := &models.Document{
		ID:        id,
		Filename:  filename,
		Path:      path,
		PageCount: extracted.PageCount(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Register(ctx, doc); err != nil {
		return nil, ingestionError("register", err)
	}
	return &models.UploadResult{ID: id, Filename: filename, Chunks: len(chunks)}, nil
}

func ingestionError(op string, err error) error {
	if classified(err) {
		return err
	}
	return fmt.Errorf("%w: %s: %w", models.ErrIngestion, op, err)
}

// IngestFile uploads the file at path under its base name.
func (s *Service) IngestFile(ctx context.Context, path string) (*models.UploadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", models.ErrValidation, path, err)
	}
	return s.Upload(ctx, content, filepath.Base(path))
}

// IngestDirectory walks dir recursively and ingests each regular .pdf file. It returns the
// results so far and the first error encountered, if any.
func (s *Service) IngestDirectory(ctx context.Context, dir string) ([]*models.UploadResult, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("not a directory: %s", dir)
	}
	var results []*models.UploadResult
	err = filepath.WalkDir(dir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() || !IsPDF(path) {
			return nil
		}
		// resolve symlinks so only regular files are ingested
		finfo, statErr := os.Stat(path)
		if statErr != nil || !finfo.Mode().IsRegular() {
			return nil
		}
		res, err := s.IngestFile(ctx, path)
		if err != nil {
			return err
		}
		results = append(results, res)
		return nil
	})
	return results, err
}

// IsPDF reports whether path has a .pdf extension.
func IsPDF(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".pdf")
}

// lookup validates the question and resolves the document before any provider is called.
func (s *Service) lookup(ctx context.Context, docID, question string) (*models.Document, error) {
	if strings.TrimSpace(question) == "" || strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: Missing question or doc_id", models.ErrValidation)
	}
	doc, err := s.store.Get(ctx, docID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: Selected document not found", models.ErrNotFound)
	}
	return doc, err
}

// Ask answers question from the document's content and records the turn.
func (s *Service) Ask(ctx context.Context, docID, question string) (*models.AskResult, error) {
	doc, err := s.lookup(ctx, docID, question)
	if err != nil {
		return nil, err
	}
	return s.answers.Answer(ctx, doc, question)
}

// AskStream validates the request and resolves the document, then streams the answer.
// Validation and lookup errors are returned before any fragment exists.
func (s *Service) AskStream(ctx context.Context, docID, question string) (<-chan string, error) {
	doc, err := s.lookup(ctx, docID, question)
	if err != nil {
		return nil, err
	}
	return s.answers.Stream(ctx, doc, question), nil
}

// Documents lists registered documents, newest first.
func (s *Service) Documents(ctx context.Context) ([]*models.Document, error) {
	return s.store.List(ctx)
}

// History returns the chat history of a document.
func (s *Service) History(ctx context.Context, docID string) ([]models.ChatTurn, error) {
	if strings.TrimSpace(docID) == "" {
		return nil, fmt.Errorf("%w: Missing doc_id", models.ErrValidation)
	}
	turns, err := s.store.History(ctx, docID)
	if errors.Is(err, models.ErrNotFound) {
		return nil, fmt.Errorf("%w: Selected document not found", models.ErrNotFound)
	}
	return turns, err
}

// UploadUsage returns the bytes used by stored uploads.
func (s *Service) UploadUsage() (int64, error) {
	return s.uploads.Usage()
}
