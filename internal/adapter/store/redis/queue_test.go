package redisstore

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		_ = rdb.Close()
		mr.Close()
	})
	return NewQueue(rdb)
}

func TestQueue_FIFO(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	for _, id := range []string{"one", "two", "three"} {
		require.NoError(t, q.Push(ctx, id))
	}

	n, err := q.Len(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), n)

	for _, want := range []string{"one", "two", "three"} {
		id, ok, err := q.Pop(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, want, id)
	}
}

func TestQueue_Pop_Empty(t *testing.T) {
	q := newTestQueue(t)
	id, ok, err := q.Pop(context.Background())
	require.NoError(t, err)
	require.False(t, ok)
	require.Empty(t, id)
}

func TestQueue_Len_Empty(t *testing.T) {
	q := newTestQueue(t)
	n, err := q.Len(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}
