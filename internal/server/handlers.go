package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/hyperjump/pdfqa/internal/models"
	"go.uber.org/zap"
)

const (
	msgNoFile       = "No file uploaded"
	msgMissingInput = "Missing question or doc_id"
	msgDocNotFound  = "Selected document not found"
)

type askRequest struct {
	Question string `json:"question"`
	DocID    string `json:"doc_id"`
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if s.config.MaxUploadMB > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.config.MaxUploadMB<<20)
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.respondError(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("file exceeds %d MB", s.config.MaxUploadMB))
			return
		}
		s.respondError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	defer file.Close()
	content, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, msgNoFile)
		return
	}
	s.logger.Debug("upload request", zap.String("filename", header.Filename), zap.Int("bytes", len(content)),
		zap.String("request_id", middleware.GetReqID(r.Context())))

	res, err := s.service.Upload(r.Context(), content, header.Filename)
	if err != nil {
		s.fail(w, r, "upload failed", err, msgNoFile)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

// decodeAsk reads the question body. A malformed body counts as missing input.
func (s *Server) decodeAsk(w http.ResponseWriter, r *http.Request) (askRequest, bool) {
	var req askRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, msgMissingInput)
		return req, false
	}
	return req, true
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAsk(w, r)
	if !ok {
		return
	}
	s.logger.Debug("ask request", zap.String("doc_id", req.DocID), zap.String("request_id", middleware.GetReqID(r.Context())))
	res, err := s.service.Ask(r.Context(), req.DocID, req.Question)
	if err != nil {
		s.fail(w, r, "ask failed", err, msgMissingInput)
		return
	}
	s.respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleAskStream(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeAsk(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		s.respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	s.logger.Debug("ask stream request", zap.String("doc_id", req.DocID), zap.String("request_id", middleware.GetReqID(r.Context())))
	fragments, err := s.service.AskStream(r.Context(), req.DocID, req.Question)
	if err != nil {
		s.fail(w, r, "ask stream failed", err, msgMissingInput)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for f := range fragments {
		if _, err := io.WriteString(w, f); err != nil {
			// client went away; the channel closes once the request context is cancelled
			continue
		}
		flusher.Flush()
	}
}

func (s *Server) handleListDocuments(w http.ResponseWriter, r *http.Request) {
	docs, err := s.service.Documents(r.Context())
	if err != nil {
		s.fail(w, r, "list documents failed", err, "")
		return
	}
	if docs == nil {
		docs = []*models.Document{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"documents": docs})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	turns, err := s.service.History(r.Context(), id)
	if err != nil {
		s.fail(w, r, "history failed", err, msgMissingInput)
		return
	}
	if turns == nil {
		turns = []models.ChatTurn{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"doc_id": id, "history": turns})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if usage, err := s.service.UploadUsage(); err == nil {
		resp["upload_bytes"] = usage
	}
	s.respondJSON(w, http.StatusOK, resp)
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, models.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, models.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, models.ErrTimeout):
		return http.StatusGatewayTimeout
	case errors.Is(err, models.ErrEmbedding), errors.Is(err, models.ErrVectorStore), errors.Is(err, models.ErrGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// fail logs err and writes its status. Validation and not-found errors get fixed messages;
// validationMsg is used for validation errors when non-empty.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, msg string, err error, validationMsg string) {
	status := statusFor(err)
	message := err.Error()
	switch status {
	case http.StatusBadRequest:
		if validationMsg != "" {
			message = validationMsg
		} else {
			message = strings.TrimPrefix(message, models.ErrValidation.Error()+": ")
		}
	case http.StatusNotFound:
		message = msgDocNotFound
	}
	if status >= http.StatusInternalServerError {
		s.logger.Error(msg, zap.Error(err), zap.String("request_id", middleware.GetReqID(r.Context())))
	} else {
		s.logger.Debug(msg, zap.Error(err))
	}
	s.respondError(w, status, message)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
