// Package storage keeps the document registry and each document's chat history.
package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/hyperjump/pdfqa/internal/models"
)

// ErrDuplicate is returned when registering an id that already exists.
var ErrDuplicate = errors.New("document already registered")

// Store defines registry and chat history operations. Implementations are safe for concurrent use.
type Store interface {
	// Register atomically creates the document and its empty history. No reader observes one without the other.
	Register(ctx context.Context, doc *models.Document) error
	// Get returns the document or an error wrapping models.ErrNotFound.
	Get(ctx context.Context, id string) (*models.Document, error)
	// List returns all documents, newest first.
	List(ctx context.Context) ([]*models.Document, error)
	// AppendTurn adds a completed turn and returns the history including it. Appends to one
	// document are serialized; different documents do not block each other.
	AppendTurn(ctx context.Context, docID string, turn models.ChatTurn) ([]models.ChatTurn, error)
	// History returns the turns of a document in append order.
	History(ctx context.Context, docID string) ([]models.ChatTurn, error)
	Close() error
}

// New creates a store of the given type. dsn is only used for sqlite.
func New(storeType, dsn string) (Store, error) {
	switch storeType {
	case "memory", "":
		return NewMemoryStore(), nil
	case "sqlite":
		return NewSQLiteStore(dsn)
	default:
		return nil, fmt.Errorf("unknown storage type: %s (supported: memory, sqlite)", storeType)
	}
}

func notFound(id string) error {
	return fmt.Errorf("%w: document %s", models.ErrNotFound, id)
}
