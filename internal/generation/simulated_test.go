package generation

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubGenerator struct {
	answer string
	err    error
}

func (s stubGenerator) Complete(context.Context, string) (string, error) {
	return s.answer, s.err
}

func TestSlice(t *testing.T) {
	assert.Nil(t, Slice("", 20))
	assert.Equal(t, []string{"abc"}, Slice("abc", 20))
	assert.Equal(t, []string{"ab", "cd", "e"}, Slice("abcde", 2))
	assert.Equal(t, []string{"héé", "llo"}, Slice("hééllo", 3))
}

func TestSimulated_StreamEqualsComplete(t *testing.T) {
	answer := strings.Repeat("Answer text with ümlauts. ", 5)
	s := NewSimulated(stubGenerator{answer: answer}, 20, time.Millisecond)

	full, err := s.Complete(context.Background(), "q")
	require.NoError(t, err)

	ch, err := s.Stream(context.Background(), "q")
	require.NoError(t, err)
	var pieces []string
	for f := range ch {
		require.NoError(t, f.Err)
		pieces = append(pieces, f.Text)
	}
	assert.Equal(t, full, strings.Join(pieces, ""))
	for _, p := range pieces[:len(pieces)-1] {
		assert.Equal(t, 20, len([]rune(p)))
	}
}

func TestSimulated_errorBeforeStream(t *testing.T) {
	s := NewSimulated(stubGenerator{err: errors.New("down")}, 20, 0)
	ch, err := s.Stream(context.Background(), "q")
	assert.Nil(t, ch)
	assert.Error(t, err)
}

func TestSimulated_cancelStopsProducer(t *testing.T) {
	s := NewSimulated(stubGenerator{answer: strings.Repeat("x", 1000)}, 1, time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	ch, err := s.Stream(ctx, "q")
	require.NoError(t, err)

	first := <-ch
	assert.Equal(t, "x", first.Text)
	cancel()

	select {
	case _, ok := <-ch:
		if ok {
			// at most one more fragment may race the cancellation
			_, ok = <-ch
			assert.False(t, ok)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("producer did not stop after cancel")
	}
}
