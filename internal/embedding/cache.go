package embedding

import (
	"container/list"
	"context"
	"fmt"
	"sync"
)

// Cached wraps an Embedder with an LRU of recent vectors keyed by text. Re-asked questions and
// re-ingested pages skip the provider.
type Cached struct {
	Embedder
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List
}

type cached struct {
	text string
	vec  []float32
}

// NewCached returns inner unchanged when capacity is below 1.
func NewCached(inner Embedder, capacity int) Embedder {
	if capacity < 1 {
		return inner
	}
	return &Cached{
		Embedder: inner,
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Embed returns the cached vector for text, or asks the wrapped embedder.
func (c *Cached) Embed(ctx context.Context, text string) ([]float32, error) {
	if vec, ok := c.lookup(text); ok {
		return vec, nil
	}
	vec, err := c.Embedder.Embed(ctx, text)
	if err != nil {
		return nil, err
	}
	c.store(text, vec)
	return vec, nil
}

// EmbedBatch sends only the uncached texts to the wrapped embedder, in one batch call.
func (c *Cached) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	var missing []string
	var at []int
	for i, text := range texts {
		if vec, ok := c.lookup(text); ok {
			out[i] = vec
			continue
		}
		missing = append(missing, text)
		at = append(at, i)
	}
	if len(missing) == 0 {
		return out, nil
	}
	vecs, err := c.Embedder.EmbedBatch(ctx, missing)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(missing) {
		return nil, fmt.Errorf("embedder returned %d vectors for %d texts", len(vecs), len(missing))
	}
	for j, vec := range vecs {
		out[at[j]] = vec
		c.store(missing[j], vec)
	}
	return out, nil
}

// Len returns the number of cached vectors.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *Cached) lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cached).vec, true
}

func (c *Cached) store(text string, vec []float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[text]; ok {
		elem.Value.(*cached).vec = vec
		c.order.MoveToFront(elem)
		return
	}
	c.entries[text] = c.order.PushFront(&cached{text: text, vec: vec})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cached).text)
	}
}
