// Package vector stores chunk embeddings and runs doc-filtered similarity search.
package vector

import (
	"context"
	"errors"
)

// Distance is the similarity metric of a collection.
type Distance string

const (
	Cosine Distance = "Cosine"
	Dot    Distance = "Dot"
)

// ErrCollectionMismatch is returned when a collection exists with another vector size or metric.
var ErrCollectionMismatch = errors.New("collection exists with a different vector schema")

// CollectionSpec fixes the vector schema shared by every chunk of every document.
type CollectionSpec struct {
	Name       string
	Dimensions int
	Distance   Distance
}

// Payload is the typed form of the data stored next to each vector.
type Payload struct {
	Text  string
	DocID string
	Page  *int
}

// Point is one vector to upsert.
type Point struct {
	ID      string
	Vector  []float32
	Payload Payload
}

// Filter restricts a search. DocID is required; searches are always scoped to one document.
type Filter struct {
	DocID string
}

// Result is a search hit, ordered by descending score.
type Result struct {
	ID      string
	Score   float64
	Payload Payload
}

// Store is a vector collection store.
type Store interface {
	// EnsureCollection creates the collection if missing. It never recreates or empties an existing one.
	EnsureCollection(ctx context.Context, spec CollectionSpec) error
	// Upsert writes points and returns once they are durable and searchable.
	Upsert(ctx context.Context, collection string, points []Point) error
	Search(ctx context.Context, collection string, query []float32, filter Filter, topK int) ([]Result, error)
	Close() error
}
