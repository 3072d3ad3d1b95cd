package vector

import (
	"context"
	"fmt"
	"math"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hyperjump/pdfqa/internal/transport"
	"go.uber.org/zap"
)

// QdrantStore talks to Qdrant over its REST API.
type QdrantStore struct {
	baseURL string
	apiKey  string
	client  *transport.Client
	logger  *zap.Logger
}

// QdrantConfig configures a QdrantStore.
type QdrantConfig struct {
	URL     string
	APIKey  string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewQdrantStore returns a client for the Qdrant instance at cfg.URL.
func NewQdrantStore(cfg QdrantConfig) (*QdrantStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("qdrant url is required")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	var opts []transport.Option
	if cfg.Logger != nil {
		opts = append(opts, transport.WithLogger(cfg.Logger))
	}
	return &QdrantStore{
		baseURL: strings.TrimRight(cfg.URL, "/"),
		apiKey:  cfg.APIKey,
		client:  transport.New(cfg.Timeout, opts...),
		logger:  cfg.Logger,
	}, nil
}

type qdrantCollectionInfo struct {
	Result struct {
		Config struct {
			Params struct {
				Vectors struct {
					Size     int    `json:"size"`
					Distance string `json:"distance"`
				} `json:"vectors"`
			} `json:"params"`
		} `json:"config"`
	} `json:"result"`
}

// EnsureCollection creates the collection when Qdrant does not know it. An existing collection
// with a different size or distance yields ErrCollectionMismatch and is left untouched.
func (q *QdrantStore) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	exists, err := q.checkCollection(ctx, spec)
	if err != nil || exists {
		return err
	}
	body := map[string]any{
		"vectors": map[string]any{
			"size":     spec.Dimensions,
			"distance": string(spec.Distance),
		},
	}
	err = q.client.DoJSON(ctx, http.MethodPut, q.collectionURL(spec.Name), q.headers(), body, nil)
	if transport.IsStatus(err, http.StatusConflict) {
		// created concurrently
		_, err = q.checkCollection(ctx, spec)
		return err
	}
	if err != nil {
		return fmt.Errorf("create collection %s: %w", spec.Name, err)
	}
	if q.logger != nil {
		q.logger.Info("qdrant collection created", zap.String("collection", spec.Name), zap.Int("size", spec.Dimensions))
	}
	return nil
}

func (q *QdrantStore) checkCollection(ctx context.Context, spec CollectionSpec) (bool, error) {
	var info qdrantCollectionInfo
	err := q.client.DoJSON(ctx, http.MethodGet, q.collectionURL(spec.Name), q.headers(), nil, &info)
	if transport.IsStatus(err, http.StatusNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get collection %s: %w", spec.Name, err)
	}
	v := info.Result.Config.Params.Vectors
	if v.Size != spec.Dimensions || !strings.EqualFold(v.Distance, string(spec.Distance)) {
		return true, fmt.Errorf("%w: %s has size %d/%s, want %d/%s",
			ErrCollectionMismatch, spec.Name, v.Size, v.Distance, spec.Dimensions, spec.Distance)
	}
	return true, nil
}

type qdrantPoint struct {
	ID      string         `json:"id"`
	Vector  []float32      `json:"vector"`
	Payload map[string]any `json:"payload"`
}

// Upsert writes points with wait=true so they are searchable when it returns.
func (q *QdrantStore) Upsert(ctx context.Context, collection string, points []Point) error {
	if len(points) == 0 {
		return nil
	}
	body := struct {
		Points []qdrantPoint `json:"points"`
	}{Points: make([]qdrantPoint, len(points))}
	for i, p := range points {
		payload := map[string]any{
			"text":   p.Payload.Text,
			"doc_id": p.Payload.DocID,
			"page":   nil,
		}
		if p.Payload.Page != nil {
			payload["page"] = *p.Payload.Page
		}
		body.Points[i] = qdrantPoint{ID: p.ID, Vector: p.Vector, Payload: payload}
	}
	u := q.collectionURL(collection) + "/points?wait=true"
	if err := q.client.DoJSON(ctx, http.MethodPut, u, q.headers(), body, nil); err != nil {
		return fmt.Errorf("upsert %d points: %w", len(points), err)
	}
	return nil
}

type qdrantSearchResponse struct {
	Result []struct {
		ID      any            `json:"id"`
		Score   float64        `json:"score"`
		Payload map[string]any `json:"payload"`
	} `json:"result"`
}

// Search runs a filtered nearest-neighbour query. Hits whose payload lacks text or belongs to
// another document are dropped.
func (q *QdrantStore) Search(ctx context.Context, collection string, query []float32, filter Filter, topK int) ([]Result, error) {
	if topK <= 0 {
		return nil, nil
	}
	body := map[string]any{
		"vector":       query,
		"limit":        topK,
		"with_payload": true,
		"filter": map[string]any{
			"must": []any{
				map[string]any{"key": "doc_id", "match": map[string]any{"value": filter.DocID}},
			},
		},
	}
	var resp qdrantSearchResponse
	if err := q.client.DoJSON(ctx, http.MethodPost, q.collectionURL(collection)+"/points/search", q.headers(), body, &resp); err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}

	results := make([]Result, 0, len(resp.Result))
	for _, r := range resp.Result {
		payload, ok := decodePayload(r.Payload)
		if !ok || payload.DocID != filter.DocID {
			if q.logger != nil {
				q.logger.Warn("dropping qdrant hit with unusable payload", zap.Any("id", r.ID))
			}
			continue
		}
		results = append(results, Result{ID: fmt.Sprint(r.ID), Score: r.Score, Payload: payload})
	}
	return results, nil
}

// decodePayload maps a loosely typed payload to Payload. Text is required; a missing or
// non-integral page becomes nil.
func decodePayload(m map[string]any) (Payload, bool) {
	text, _ := m["text"].(string)
	if text == "" {
		return Payload{}, false
	}
	p := Payload{Text: text}
	p.DocID, _ = m["doc_id"].(string)
	if f, ok := m["page"].(float64); ok && f == math.Trunc(f) && f >= 1 {
		n := int(f)
		p.Page = &n
	}
	return p, true
}

// Close is a no-op.
func (q *QdrantStore) Close() error {
	return nil
}

func (q *QdrantStore) collectionURL(name string) string {
	return q.baseURL + "/collections/" + url.PathEscape(name)
}

func (q *QdrantStore) headers() map[string]string {
	if q.apiKey == "" {
		return nil
	}
	return map[string]string{"api-key": q.apiKey}
}
