// Package server provides the HTTP API for pdfqa.
package server

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/pdfqa/internal/config"
	"github.com/hyperjump/pdfqa/internal/models"
	"go.uber.org/zap"
)

// Service is the question answering core behind the HTTP API.
type Service interface {
	Upload(ctx context.Context, content []byte, filename string) (*models.UploadResult, error)
	Ask(ctx context.Context, docID, question string) (*models.AskResult, error)
	AskStream(ctx context.Context, docID, question string) (<-chan string, error)
	Documents(ctx context.Context) ([]*models.Document, error)
	History(ctx context.Context, docID string) ([]models.ChatTurn, error)
	UploadUsage() (int64, error)
}

// Server is the HTTP server for the pdfqa API.
type Server struct {
	service Service
	config  *config.ServerConfig
	logger  *zap.Logger
	server  *http.Server
}

// NewServer creates a server with the given dependencies.
func NewServer(service Service, cfg *config.ServerConfig, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Server{
		service: service,
		config:  cfg,
		logger:  logger,
	}
}

// Handler builds the router. Streaming routes are outside the request timeout; the answer
// streamer bounds them with the generation timeout.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/ask/stream", s.handleAskStream)
	r.Post("/ask/stream/", s.handleAskStream)

	r.Group(func(r chi.Router) {
		if s.config.RequestTimeout > 0 {
			r.Use(middleware.Timeout(s.config.RequestTimeout))
		}
		r.Use(middleware.Compress(5))

		r.Post("/upload", s.handleUpload)
		r.Post("/upload/", s.handleUpload)
		r.Post("/ask", s.handleAsk)
		r.Post("/ask/", s.handleAsk)
		r.Get("/api/v1/documents", s.handleListDocuments)
		r.Get("/api/v1/documents/{id}/history", s.handleHistory)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}
	s.logger.Info("Starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}
