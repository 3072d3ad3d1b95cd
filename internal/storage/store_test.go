package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/hyperjump/pdfqa/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func forEachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Helper()
	t.Run("memory", func(t *testing.T) {
		fn(t, NewMemoryStore())
	})
	t.Run("sqlite", func(t *testing.T) {
		s, err := NewSQLiteStore(filepath.Join(t.TempDir(), "sub", "pdfqa.db"))
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
	t.Run("sqlite in memory", func(t *testing.T) {
		s, err := NewSQLiteStore(":memory:")
		require.NoError(t, err)
		t.Cleanup(func() { _ = s.Close() })
		fn(t, s)
	})
}

func testDoc(id string, created time.Time) *models.Document {
	return &models.Document{ID: id, Filename: id + ".pdf", Path: "/tmp/" + id, PageCount: 3, CreatedAt: created}
}

func TestStore_RegisterGetList(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
		require.NoError(t, s.Register(ctx, testDoc("a", base)))
		require.NoError(t, s.Register(ctx, testDoc("b", base.Add(time.Minute))))
		assert.ErrorIs(t, s.Register(ctx, testDoc("a", base)), ErrDuplicate)

		doc, err := s.Get(ctx, "a")
		require.NoError(t, err)
		assert.Equal(t, "a.pdf", doc.Filename)
		assert.Equal(t, 3, doc.PageCount)
		assert.Equal(t, "/tmp/a", doc.Path)
		assert.Equal(t, []int{1, 2, 3}, doc.Pages())

		_, err = s.Get(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)

		docs, err := s.List(ctx)
		require.NoError(t, err)
		require.Len(t, docs, 2)
		assert.Equal(t, "b", docs[0].ID)
		assert.Equal(t, "a", docs[1].ID)
	})
}

func TestStore_HistoryStartsEmpty(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Register(ctx, testDoc("a", time.Now())))
		turns, err := s.History(ctx, "a")
		require.NoError(t, err)
		assert.NotNil(t, turns)
		assert.Empty(t, turns)

		_, err = s.History(ctx, "missing")
		assert.ErrorIs(t, err, models.ErrNotFound)
		_, err = s.AppendTurn(ctx, "missing", models.ChatTurn{Question: "q"})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})
}

func TestStore_AppendTurn(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.Register(ctx, testDoc("a", time.Now())))
		require.NoError(t, s.Register(ctx, testDoc("b", time.Now())))

		turn := models.ChatTurn{
			Question: "What is on page 2?",
			Answer:   "A table.",
			Sources:  []models.RetrievalHit{{Text: "table", Page: models.PageNumber(2)}, {Text: "intro"}},
		}
		turns, err := s.AppendTurn(ctx, "a", turn)
		require.NoError(t, err)
		require.Len(t, turns, 1)

		turns, err = s.AppendTurn(ctx, "a", models.ChatTurn{Question: "second", Answer: "two"})
		require.NoError(t, err)
		require.Len(t, turns, 2)
		assert.Equal(t, "What is on page 2?", turns[0].Question)
		assert.Equal(t, "second", turns[1].Question)
		require.Len(t, turns[0].Sources, 2)
		require.NotNil(t, turns[0].Sources[0].Page)
		assert.Equal(t, 2, *turns[0].Sources[0].Page)
		assert.Nil(t, turns[0].Sources[1].Page)

		other, err := s.History(ctx, "b")
		require.NoError(t, err)
		assert.Empty(t, other, "turns must not leak across documents")
	})
}

func TestStore_ConcurrentAppendsAreNotLost(t *testing.T) {
	forEachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, id := range []string{"a", "b"} {
			require.NoError(t, s.Register(ctx, testDoc(id, time.Now())))
		}
		const perDoc = 25
		var wg sync.WaitGroup
		for _, id := range []string{"a", "b"} {
			for i := 0; i < perDoc; i++ {
				wg.Add(1)
				go func(id string, i int) {
					defer wg.Done()
					_, err := s.AppendTurn(ctx, id, models.ChatTurn{Question: fmt.Sprintf("%s-%d", id, i)})
					assert.NoError(t, err)
				}(id, i)
			}
		}
		wg.Wait()
		for _, id := range []string{"a", "b"} {
			turns, err := s.History(ctx, id)
			require.NoError(t, err)
			assert.Len(t, turns, perDoc)
		}
	})
}

func TestNew(t *testing.T) {
	s, err := New("memory", "")
	require.NoError(t, err)
	_ = s.Close()
	s, err = New("sqlite", ":memory:")
	require.NoError(t, err)
	_ = s.Close()
	_, err = New("postgres", "")
	assert.Error(t, err)
}
