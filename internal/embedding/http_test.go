package embedding

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPEmbedder_EmbedBatch_openAIShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/embeddings", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		var req embeddingsRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "bge", req.Model)
		assert.Equal(t, []string{"a", "b"}, req.Input)
		// out of order on purpose
		_, _ = w.Write([]byte(`{"data":[{"index":1,"embedding":[0,1]},{"index":0,"embedding":[1,0]}]}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL + "/v1/", APIKey: "secret", Model: "bge", Dimensions: 2})
	require.NoError(t, err)
	got, err := e.EmbedBatch(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	assert.Equal(t, [][]float32{{1, 0}, {0, 1}}, got)
}

func TestHTTPEmbedder_Embed_ollamaShape(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"embedding":[0.5,0.5,0]}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
	require.NoError(t, err)
	got, err := e.Embed(context.Background(), "x")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.5, 0.5, 0}, got)
}

func TestHTTPEmbedder_dimensionMismatch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":[{"index":0,"embedding":[1,2,3,4]}]}`))
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
	require.NoError(t, err)
	_, err = e.Embed(context.Background(), "x")
	assert.ErrorContains(t, err, "want 3")
}

func TestHTTPEmbedder_retriesOnce(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: srv.URL, Model: "m", Dimensions: 3})
	require.NoError(t, err)
	_, err = e.EmbedBatch(context.Background(), []string{"x"})
	require.Error(t, err)
	assert.EqualValues(t, 2, calls.Load())
}

func TestHTTPEmbedder_emptyBatch(t *testing.T) {
	e, err := NewHTTPEmbedder(HTTPConfig{BaseURL: "http://unused", Model: "m", Dimensions: 3})
	require.NoError(t, err)
	got, err := e.EmbedBatch(context.Background(), nil)
	assert.NoError(t, err)
	assert.Empty(t, got)
}

func TestNewHTTPEmbedder_validation(t *testing.T) {
	_, err := NewHTTPEmbedder(HTTPConfig{Model: "m", Dimensions: 3})
	assert.Error(t, err)
	_, err = NewHTTPEmbedder(HTTPConfig{BaseURL: "http://x", Dimensions: 3})
	assert.Error(t, err)
	_, err = NewHTTPEmbedder(HTTPConfig{BaseURL: "http://x", Model: "m"})
	assert.Error(t, err)
}

func TestMockEmbedder_deterministicAndSimilar(t *testing.T) {
	e := NewMockEmbedder(64)
	ctx := context.Background()
	a1, _ := e.Embed(ctx, "revenue grew in march")
	a2, _ := e.Embed(ctx, "revenue grew in march")
	assert.Equal(t, a1, a2)

	related, _ := e.Embed(ctx, "march revenue")
	unrelated, _ := e.Embed(ctx, "photosynthesis chlorophyll")
	assert.Greater(t, dot(a1, related), dot(a1, unrelated))

	empty, _ := e.Embed(ctx, "")
	assert.Equal(t, float32(0), dot(empty, empty))
}

func dot(a, b []float32) float32 {
	var s float32
	for i := range a {
		s += a[i] * b[i]
	}
	return s
}
