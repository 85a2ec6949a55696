package memory

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-collector/internal/collector"
)

func TestPostStoreSaveAndLookup(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPostStore()
	ts := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	saved, err := store.SaveAll(ctx, []collector.Item{
		{Source: "a", Link: "/1", Title: "one", CreatedAt: ts},
		{Source: "a", Link: "/2", Title: "two", CreatedAt: ts.Add(time.Hour)},
		{Source: "b", Link: "/1", Title: "other", CreatedAt: ts.Add(2 * time.Hour)},
	})
	require.NoError(t, err)
	require.Equal(t, []int64{1, 2, 3}, []int64{saved[0].ID, saved[1].ID, saved[2].ID})

	exists, err := store.ExistsBySource(ctx, "a")
	require.NoError(t, err)
	require.True(t, exists)
	exists, err = store.ExistsBySource(ctx, "c")
	require.NoError(t, err)
	require.False(t, exists)

	latest, found, err := store.FindLatestBySource(ctx, "a")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "/2", latest.Link)

	matches, err := store.FindBySourceAndLinks(ctx, "a", []string{"/1", "/9"})
	require.NoError(t, err)
	require.Len(t, matches, 1)
	require.Equal(t, int64(1), matches[0].ID)

	updated := saved[0]
	updated.Title = "one!"
	_, err = store.SaveAll(ctx, []collector.Item{updated})
	require.NoError(t, err)
	count, err := store.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(3), count)

	matches, err = store.FindBySourceAndLinks(ctx, "a", []string{"/1"})
	require.NoError(t, err)
	require.Equal(t, "one!", matches[0].Title)
}

func TestPostStoreUnknownIDRejected(t *testing.T) {
	t.Parallel()

	_, err := NewPostStore().SaveAll(context.Background(), []collector.Item{{ID: 42, Source: "a", Link: "/x"}})
	require.Error(t, err)
}

func TestPostStoreFindPage(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewPostStore()
	items := make([]collector.Item, 5)
	for i := range items {
		items[i] = collector.Item{Source: "a", Link: fmt.Sprintf("/%d", i)}
	}
	_, err := store.SaveAll(ctx, items)
	require.NoError(t, err)

	page, err := store.FindPage(ctx, 0, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.True(t, page.HasNext)

	page, err = store.FindPage(ctx, 2, 2)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.False(t, page.HasNext)
	require.Equal(t, int64(5), page.Items[0].ID)

	_, err = store.FindPage(ctx, 0, 0)
	require.Error(t, err)
}

func TestRunStoreKeepsLatest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	store := NewRunStore(2)
	for i := range 3 {
		require.NoError(t, store.RecordRun(ctx, collector.RunRecord{RunID: fmt.Sprint(i), Source: "a"}))
	}
	last, ok, err := store.LastRun(ctx, "a")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "2", last.RunID)
	require.Len(t, store.runs["a"], 2)

	_, ok, err = store.LastRun(ctx, "b")
	require.NoError(t, err)
	require.False(t, ok)
}
