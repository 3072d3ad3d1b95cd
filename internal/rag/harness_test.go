package rag

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/hyperjump/pdfqa/internal/embedding"
	"github.com/hyperjump/pdfqa/internal/extract"
	"github.com/hyperjump/pdfqa/internal/extract/extracttest"
	"github.com/hyperjump/pdfqa/internal/generation"
	"github.com/hyperjump/pdfqa/internal/indexer"
	"github.com/hyperjump/pdfqa/internal/storage"
	"github.com/hyperjump/pdfqa/internal/vector"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubLLM is a deterministic generation and vision provider.
type stubLLM struct {
	answer    string
	streamErr error
	hang      bool // Stream blocks until ctx is done

	completes atomic.Int32
	streams   atomic.Int32
	describes atomic.Int32

	mu      sync.Mutex
	prompts []string
}

func (s *stubLLM) record(prompt string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prompts = append(s.prompts, prompt)
}

func (s *stubLLM) lastPrompt() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.prompts) == 0 {
		return ""
	}
	return s.prompts[len(s.prompts)-1]
}

func (s *stubLLM) Complete(ctx context.Context, prompt string) (string, error) {
	s.completes.Add(1)
	s.record(prompt)
	return s.answer, nil
}

func (s *stubLLM) Stream(ctx context.Context, prompt string) (<-chan generation.Fragment, error) {
	s.streams.Add(1)
	s.record(prompt)
	ch := make(chan generation.Fragment)
	go func() {
		defer close(ch)
		if s.hang {
			<-ctx.Done()
			return
		}
		for _, p := range generation.Slice(s.answer, 7) {
			select {
			case ch <- generation.Fragment{Text: p}:
			case <-ctx.Done():
				return
			}
		}
		if s.streamErr != nil {
			select {
			case ch <- generation.Fragment{Err: s.streamErr}:
			case <-ctx.Done():
			}
		}
	}()
	return ch, nil
}

func (s *stubLLM) Describe(ctx context.Context, image []byte, mimeType, instruction string) (string, error) {
	s.describes.Add(1)
	return "scanned " + extracttest.Words("visionword", 40) + " " + string(image), nil
}

type countingEmbedder struct {
	embedding.Embedder
	calls atomic.Int32
	err   error
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.EmbedBatch(ctx, texts)
}

type stubRenderer struct{}

func (stubRenderer) Open([]byte) (extract.PageRenderer, error) { return stubPageRenderer{}, nil }

type stubPageRenderer struct{}

func (stubPageRenderer) RenderJPEG(n int, _ float64) ([]byte, error) {
	return []byte(fmt.Sprintf("image%d", n)), nil
}

func (stubPageRenderer) Close() error { return nil }

type harness struct {
	svc      *Service
	llm      *stubLLM
	embedder *countingEmbedder
	store    storage.Store
	vectors  *vector.MemoryStore
	uploads  string

	mu     sync.Mutex
	states []State
}

func (h *harness) observed() []State {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]State(nil), h.states...)
}

func newHarness(t *testing.T, llm *stubLLM, timeout time.Duration) *harness {
	t.Helper()
	h := &harness{
		llm:      llm,
		embedder: &countingEmbedder{Embedder: embedding.NewMockEmbedder(32)},
		store:    storage.NewMemoryStore(),
		vectors:  vector.NewMemoryStore(),
		uploads:  t.TempDir(),
	}
	uploads, err := storage.NewUploads(h.uploads)
	require.NoError(t, err)

	logger := zap.NewNop()
	extractor := extract.NewExtractor(extract.WithVision(llm), extract.WithRenderer(stubRenderer{}), extract.WithLogger(logger))
	idx := indexer.NewIndexer(h.embedder, h.vectors, "pdf_chunks", vector.Cosine, indexer.WithLogger(logger))
	require.NoError(t, idx.EnsureCollection(context.Background()))
	retriever := NewRetriever(h.embedder, h.vectors, "pdf_chunks", 5, WithRetrieverLogger(logger))
	answers := NewAnswerStreamer(retriever, llm, llm, h.store, timeout,
		WithStreamerLogger(logger),
		WithStateObserver(func(_ string, s State) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.states = append(h.states, s)
		}))
	h.svc = NewService(h.store, uploads, extractor, indexer.NewChunker(200, 20), idx, answers, logger)
	return h
}

// drain reads a stream to the end and splits off the metadata fragment.
func drain(t *testing.T, ch <-chan string) (fragments []string, meta string) {
	t.Helper()
	timeout := time.After(5 * time.Second)
	for {
		select {
		case f, ok := <-ch:
			if !ok {
				return fragments, meta
			}
			if strings.HasPrefix(f, MetaPrefix) {
				require.Empty(t, meta, "more than one metadata fragment")
				meta = strings.TrimPrefix(f, MetaPrefix)
				continue
			}
			require.Empty(t, meta, "fragment after metadata")
			fragments = append(fragments, f)
		case <-timeout:
			t.Fatal("stream did not finish")
		}
	}
}
