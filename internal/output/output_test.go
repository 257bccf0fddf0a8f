package output

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memWriter struct {
	links   []string
	failAt  int
	closed  bool
	closeErr error
}

func (m *memWriter) Write(_ context.Context, link string) error {
	if m.failAt > 0 && len(m.links)+1 == m.failAt {
		return errors.New("disk full")
	}
	m.links = append(m.links, link)
	return nil
}

func (m *memWriter) Close(context.Context) error {
	m.closed = true
	return m.closeErr
}

func TestDrainWritesInOrderToEveryWriter(t *testing.T) {
	t.Parallel()

	links := []string{"http://a.example/", "http://b.example/", "http://a.example/"}
	w1, w2 := &memWriter{}, &memWriter{}

	n, err := Drain(context.Background(), slices.Values(links), w1, w2)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
	assert.Equal(t, links, w1.links)
	assert.Equal(t, links, w2.links)
}

func TestDrainStopsPullingOnError(t *testing.T) {
	t.Parallel()

	pulled := 0
	seq := func(yield func(string) bool) {
		for _, l := range []string{"a", "b", "c", "d"} {
			pulled++
			if !yield(l) {
				return
			}
		}
	}
	n, err := Drain(context.Background(), seq, &memWriter{failAt: 2})
	require.ErrorContains(t, err, "disk full")
	assert.Equal(t, 1, n)
	assert.Equal(t, 2, pulled)
}

func TestDrainHonorsContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := Drain(ctx, slices.Values([]string{"a"}), &memWriter{})
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, n)
}

func TestCloseAllJoinsErrors(t *testing.T) {
	t.Parallel()

	ok := &memWriter{}
	bad := &memWriter{closeErr: errors.New("flush failed")}
	err := CloseAll(context.Background(), bad, ok)
	require.ErrorContains(t, err, "flush failed")
	assert.True(t, ok.closed)
	assert.True(t, bad.closed)
	assert.NoError(t, CloseAll(context.Background()))
}
