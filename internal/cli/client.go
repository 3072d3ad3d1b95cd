package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/hyperjump/pdfqa/internal/transport"
)

// Client talks to a running pdfqa server.
type Client struct {
	baseURL string
	http    *transport.Client
	stream  *transport.Client
}

// NewClient returns a client for the server at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    transport.New(timeout),
		stream:  transport.New(0, transport.WithRetries(0)),
	}
}

// Upload sends the PDF at path.
func (c *Client) Upload(ctx context.Context, path string) (*models.UploadResult, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	part, err := mw.CreateFormFile("file", filepath.Base(path))
	if err != nil {
		return nil, err
	}
	if _, err := part.Write(content); err != nil {
		return nil, err
	}
	if err := mw.Close(); err != nil {
		return nil, err
	}
	resp, err := c.http.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/upload", bytes.NewReader(body.Bytes()))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", mw.FormDataContentType())
		return req, nil
	})
	if err != nil {
		return nil, serverError(err)
	}
	defer resp.Body.Close()
	var res models.UploadResult
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &res, nil
}

// Ask asks a question and waits for the whole answer.
func (c *Client) Ask(ctx context.Context, docID, question string) (*models.AskResult, error) {
	var res models.AskResult
	err := c.http.DoJSON(ctx, http.MethodPost, c.baseURL+"/ask", nil,
		map[string]string{"doc_id": docID, "question": question}, &res)
	if err != nil {
		return nil, serverError(err)
	}
	return &res, nil
}

// AskStream asks a question and returns the raw response body pieces as they arrive.
func (c *Client) AskStream(ctx context.Context, docID, question string) (<-chan string, error) {
	payload, err := json.Marshal(map[string]string{"doc_id": docID, "question": question})
	if err != nil {
		return nil, err
	}
	resp, err := c.stream.Do(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := transport.NewJSONRequest(ctx, http.MethodPost, c.baseURL+"/ask/stream", payload)
		if err != nil {
			return nil, err
		}
		req.Header.Set("Accept", "text/event-stream")
		return req, nil
	})
	if err != nil {
		return nil, serverError(err)
	}
	out := make(chan string)
	go func() {
		defer close(out)
		defer resp.Body.Close()
		buf := make([]byte, 4096)
		for {
			n, err := resp.Body.Read(buf)
			if n > 0 {
				select {
				case out <- string(buf[:n]):
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return out, nil
}

// Documents lists the documents registered on the server.
func (c *Client) Documents(ctx context.Context) ([]*models.Document, error) {
	var out struct {
		Documents []*models.Document `json:"documents"`
	}
	if err := c.http.DoJSON(ctx, http.MethodGet, c.baseURL+"/api/v1/documents", nil, nil, &out); err != nil {
		return nil, serverError(err)
	}
	return out.Documents, nil
}

// History returns a document's chat history from the server.
func (c *Client) History(ctx context.Context, docID string) ([]models.ChatTurn, error) {
	var out struct {
		History []models.ChatTurn `json:"history"`
	}
	u := c.baseURL + "/api/v1/documents/" + url.PathEscape(docID) + "/history"
	if err := c.http.DoJSON(ctx, http.MethodGet, u, nil, nil, &out); err != nil {
		return nil, serverError(err)
	}
	return out.History, nil
}

// serverError turns an error response into the server's message.
func serverError(err error) error {
	var serr *transport.StatusError
	if !errors.As(err, &serr) {
		return fmt.Errorf("request failed: %w", err)
	}
	var body struct {
		Error string `json:"error"`
	}
	if json.Unmarshal([]byte(serr.Body), &body) == nil && body.Error != "" {
		return fmt.Errorf("server returned %d: %s", serr.StatusCode, body.Error)
	}
	return fmt.Errorf("server returned %d: %s", serr.StatusCode, strings.TrimSpace(serr.Body))
}

