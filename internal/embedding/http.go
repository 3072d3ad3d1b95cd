package embedding

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/hyperjump/pdfqa/internal/transport"
	"go.uber.org/zap"
)

// HTTPEmbedder calls an OpenAI-compatible /embeddings endpoint (OpenAI, Ollama /v1, TEI, vLLM).
// The Ollama-native single-vector response shape is accepted too.
type HTTPEmbedder struct {
	baseURL    string
	apiKey     string
	model      string
	dimensions int
	client     *transport.Client
}

// HTTPConfig configures an HTTPEmbedder.
type HTTPConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	Dimensions int
	Timeout    time.Duration
	Logger     *zap.Logger
}

// NewHTTPEmbedder returns an embedder for cfg. Dimensions is the vector size the endpoint must return.
func NewHTTPEmbedder(cfg HTTPConfig) (*HTTPEmbedder, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("embedding base url is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("embedding model is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	var opts []transport.Option
	if cfg.Logger != nil {
		opts = append(opts, transport.WithLogger(cfg.Logger))
	}
	return &HTTPEmbedder{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		model:      cfg.Model,
		dimensions: cfg.Dimensions,
		client:     transport.New(cfg.Timeout, opts...),
	}, nil
}

type embeddingsRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embeddingsResponse struct {
	Data []struct {
		Index     int       `json:"index"`
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	// Ollama-native shape
	Embedding  []float32   `json:"embedding"`
	Embeddings [][]float32 `json:"embeddings"`
}

// Embed returns the embedding of one text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	out, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// EmbedBatch embeds texts in a single request; results keep the input order.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	headers := map[string]string{}
	if e.apiKey != "" {
		headers["Authorization"] = "Bearer " + e.apiKey
	}
	var resp embeddingsResponse
	err := e.client.DoJSON(ctx, http.MethodPost, e.baseURL+"/embeddings", headers,
		embeddingsRequest{Model: e.model, Input: texts}, &resp)
	if err != nil {
		return nil, fmt.Errorf("embeddings request: %w", err)
	}

	vectors, err := resp.vectors(len(texts))
	if err != nil {
		return nil, err
	}
	for i, v := range vectors {
		if len(v) != e.dimensions {
			return nil, fmt.Errorf("embedding %d has %d dimensions, want %d", i, len(v), e.dimensions)
		}
	}
	return vectors, nil
}

func (r *embeddingsResponse) vectors(want int) ([][]float32, error) {
	var out [][]float32
	switch {
	case len(r.Data) > 0:
		data := r.Data
		sort.SliceStable(data, func(i, j int) bool { return data[i].Index < data[j].Index })
		for _, d := range data {
			out = append(out, d.Embedding)
		}
	case len(r.Embeddings) > 0:
		out = r.Embeddings
	case len(r.Embedding) > 0:
		out = [][]float32{r.Embedding}
	}
	if len(out) != want {
		return nil, fmt.Errorf("got %d embeddings for %d inputs", len(out), want)
	}
	return out, nil
}

// Dimensions returns the embedding dimension.
func (e *HTTPEmbedder) Dimensions() int {
	return e.dimensions
}

// Close is a no-op.
func (e *HTTPEmbedder) Close() error {
	return nil
}
