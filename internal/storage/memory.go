package storage

import (
	"context"
	"sort"
	"sync"

	"github.com/hyperjump/pdfqa/internal/models"
)

// MemoryStore implements Store in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	docs      map[string]*models.Document
	histories map[string]*history
}

type history struct {
	mu    sync.Mutex
	turns []models.ChatTurn
}

// NewMemoryStore returns an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		docs:      make(map[string]*models.Document),
		histories: make(map[string]*history),
	}
}

func (m *MemoryStore) Register(ctx context.Context, doc *models.Document) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.docs[doc.ID]; ok {
		return ErrDuplicate
	}
	cp := *doc
	m.docs[doc.ID] = &cp
	m.histories[doc.ID] = &history{}
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*models.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.docs[id]
	if !ok {
		return nil, notFound(id)
	}
	cp := *doc
	return &cp, nil
}

func (m *MemoryStore) List(ctx context.Context) ([]*models.Document, error) {
	m.mu.RLock()
	docs := make([]*models.Document, 0, len(m.docs))
	for _, d := range m.docs {
		cp := *d
		docs = append(docs, &cp)
	}
	m.mu.RUnlock()
	sort.Slice(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID < docs[j].ID
		}
		return docs[i].CreatedAt.After(docs[j].CreatedAt)
	})
	return docs, nil
}

func (m *MemoryStore) AppendTurn(ctx context.Context, docID string, turn models.ChatTurn) ([]models.ChatTurn, error) {
	h, err := m.history(docID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	h.turns = append(h.turns, turn)
	return append([]models.ChatTurn(nil), h.turns...), nil
}

func (m *MemoryStore) History(ctx context.Context, docID string) ([]models.ChatTurn, error) {
	h, err := m.history(docID)
	if err != nil {
		return nil, err
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]models.ChatTurn{}, h.turns...), nil
}

func (m *MemoryStore) history(docID string) (*history, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.histories[docID]
	if !ok {
		return nil, notFound(docID)
	}
	return h, nil
}

// Close is a no-op.
func (m *MemoryStore) Close() error {
	return nil
}
