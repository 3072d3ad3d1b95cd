package vector

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/hyperjump/pdfqa/pkg/utils"
)

// MemoryStore is an in-process Store using brute-force search.
// Suitable for tests and single-process deployments without Qdrant.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]*memoryCollection
}

type memoryCollection struct {
	spec   CollectionSpec
	order  []string
	points map[string]Point
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]*memoryCollection)}
}

// EnsureCollection creates the collection, or checks an existing one has the same schema.
func (m *MemoryStore) EnsureCollection(ctx context.Context, spec CollectionSpec) error {
	if spec.Dimensions <= 0 {
		return fmt.Errorf("dimensions must be positive")
	}
	if spec.Distance != Cosine && spec.Distance != Dot {
		return fmt.Errorf("unsupported distance %q", spec.Distance)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if c, ok := m.collections[spec.Name]; ok {
		if c.spec != spec {
			return fmt.Errorf("%w: %s has size %d/%s", ErrCollectionMismatch, spec.Name, c.spec.Dimensions, c.spec.Distance)
		}
		return nil
	}
	m.collections[spec.Name] = &memoryCollection{spec: spec, points: make(map[string]Point)}
	return nil
}

// Upsert replaces points with the same ID and appends new ones.
func (m *MemoryStore) Upsert(ctx context.Context, collection string, points []Point) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.collections[collection]
	if !ok {
		return fmt.Errorf("collection %s not found", collection)
	}
	for _, p := range points {
		if len(p.Vector) != c.spec.Dimensions {
			return fmt.Errorf("vector dimension mismatch: got %d, expected %d", len(p.Vector), c.spec.Dimensions)
		}
	}
	for _, p := range points {
		vec := make([]float32, len(p.Vector))
		copy(vec, p.Vector)
		if c.spec.Distance == Cosine {
			utils.NormalizeL2(vec)
		}
		p.Vector = vec
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = p
	}
	return nil
}

// Search scores every point of filter.DocID against query. Equal scores keep insertion order.
func (m *MemoryStore) Search(ctx context.Context, collection string, query []float32, filter Filter, topK int) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.collections[collection]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", collection)
	}
	if len(query) != c.spec.Dimensions {
		return nil, fmt.Errorf("query dimension mismatch: got %d, expected %d", len(query), c.spec.Dimensions)
	}
	if topK <= 0 {
		return nil, nil
	}
	q := query
	if c.spec.Distance == Cosine {
		q = make([]float32, len(query))
		copy(q, query)
		utils.NormalizeL2(q)
	}

	var results []Result
	for _, id := range c.order {
		p := c.points[id]
		if p.Payload.DocID != filter.DocID {
			continue
		}
		results = append(results, Result{ID: id, Score: innerProduct(q, p.Vector), Payload: p.Payload})
	}
	sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	if len(results) > topK {
		results = results[:topK]
	}
	return results, nil
}

// Size returns the number of points in collection.
func (m *MemoryStore) Size(collection string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if c, ok := m.collections[collection]; ok {
		return len(c.order)
	}
	return 0
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}

func innerProduct(a, b []float32) float64 {
	var dot float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
	}
	return dot
}
