package embedding

import (
	"context"
	"hash/fnv"
	"math/rand/v2"
	"unicode"

	"github.com/hyperjump/pdfqa/pkg/utils"
)

// MockEmbedder is a deterministic embedder for tests and offline runs. Every word maps to a
// pseudo-random direction seeded by its hash; a text is the normalized sum of its words, so
// texts sharing words score higher than texts that don't. Text with no words embeds to zero.
type MockEmbedder struct {
	dimensions int
}

// NewMockEmbedder defaults to 384 dimensions, the size of bge-small.
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = 384
	}
	return &MockEmbedder{dimensions: dimensions}
}

func (e *MockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	vec := make([]float32, e.dimensions)
	for _, word := range SplitWords(text) {
		if !isWord(word) {
			continue
		}
		h := fnv.New64a()
		_, _ = h.Write([]byte(word))
		rng := rand.New(rand.NewPCG(h.Sum64(), uint64(e.dimensions)))
		for i := range vec {
			vec[i] += float32(rng.NormFloat64())
		}
	}
	utils.NormalizeL2(vec)
	return vec, nil
}

func (e *MockEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	return embedEach(ctx, e.Embed, texts)
}

func (e *MockEmbedder) Dimensions() int {
	return e.dimensions
}

func (e *MockEmbedder) Close() error {
	return nil
}

func isWord(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return true
		}
	}
	return false
}
