package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-collector/internal/collector"
)

func newIndex(t *testing.T) (*miniredis.Miniredis, *Index) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	idx, err := New(client, "test")
	require.NoError(t, err)
	return mr, idx
}

func TestIndexSaveAllAndGet(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	mr, idx := newIndex(t)
	ts := time.Date(2024, 5, 1, 3, 4, 5, 0, time.UTC)
	docs := []collector.Document{
		{ID: 1, Title: "one", Source: "board", Author: "kim", Link: "/1", CommentCount: 2, ViewCount: 30, RecommendationCount: 1, CreatedAt: ts},
		{ID: 2, Title: "two", Source: "board", Link: "/2", CreatedAt: ts.Add(time.Minute)},
	}
	require.NoError(t, idx.SaveAll(ctx, docs))

	require.True(t, mr.Exists("test:doc:1"))
	require.Equal(t, "one", mr.HGet("test:doc:1", "title"))

	got, ok, err := idx.Get(ctx, 1)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, docs[0], got)

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	latest, err := idx.Latest(ctx, "board", 10)
	require.NoError(t, err)
	require.Equal(t, []int64{2, 1}, latest)
}

func TestIndexUpsertKeepsCount(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	_, idx := newIndex(t)
	doc := collector.Document{ID: 5, Title: "v1", Source: "board", Link: "/5", CreatedAt: time.Unix(0, 0).UTC()}
	require.NoError(t, idx.SaveAll(ctx, []collector.Document{doc}))
	doc.Title = "v2"
	doc.ViewCount = 9
	require.NoError(t, idx.SaveAll(ctx, []collector.Document{doc}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	got, ok, err := idx.Get(ctx, 5)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "v2", got.Title)
	require.Equal(t, 9, got.ViewCount)
}

func TestIndexRejectsUnpersisted(t *testing.T) {
	t.Parallel()

	_, idx := newIndex(t)
	err := idx.SaveAll(context.Background(), []collector.Document{{Title: "no id"}})
	require.ErrorIs(t, err, collector.ErrUnpersisted)

	n, err := idx.Count(context.Background())
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestIndexGetMissing(t *testing.T) {
	t.Parallel()

	_, idx := newIndex(t)
	_, ok, err := idx.Get(context.Background(), 404)
	require.NoError(t, err)
	require.False(t, ok)
}

func TestNewRequiresClient(t *testing.T) {
	t.Parallel()

	_, err := New(nil, "")
	require.Error(t, err)
}
