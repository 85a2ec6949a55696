package collector

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestClassify(t *testing.T) {
	t.Parallel()

	ts := time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)
	existing := []Item{
		{ID: 10, Source: "board", Link: "/p/1", Title: "same", CommentCount: 1, CreatedAt: ts},
		{ID: 11, Source: "board", Link: "/p/2", Title: "old", ViewCount: 5, Author: "kim", CreatedAt: ts},
	}
	crawled := []Item{
		{Source: "board", Link: "/p/1", Title: "same", CommentCount: 1, CreatedAt: ts},
		{Source: "board", Link: "/p/2", Title: "new", ViewCount: 9, Author: "ignored", CreatedAt: ts},
		{Source: "board", Link: "/p/3", Title: "fresh", CreatedAt: ts},
		{Source: "board", Link: "/p/3", Title: "dup", CreatedAt: ts},
	}

	res := Classify(crawled, existing)

	require.Equal(t, 1, res.Unchanged)
	require.Equal(t, 1, res.Duplicates)
	require.Len(t, res.Inserts, 1)
	require.Equal(t, "fresh", res.Inserts[0].Title)
	require.Zero(t, res.Inserts[0].ID)
	require.Len(t, res.Updates, 1)
	require.Equal(t, int64(11), res.Updates[0].ID)
	require.Equal(t, "new", res.Updates[0].Title)
	require.Equal(t, 9, res.Updates[0].ViewCount)
	require.Equal(t, "kim", res.Updates[0].Author)
}

func TestDecide(t *testing.T) {
	t.Parallel()

	base := Item{Title: "t", CommentCount: 1, ViewCount: 2, RecommendationCount: 3}
	testCases := []struct {
		name    string
		crawled Item
		found   bool
		want    Decision
	}{
		{"missing", base, false, DecisionInsert},
		{"equal", base, true, DecisionNoOp},
		{"title", Item{Title: "x", CommentCount: 1, ViewCount: 2, RecommendationCount: 3}, true, DecisionUpdate},
		{"comments", Item{Title: "t", CommentCount: 9, ViewCount: 2, RecommendationCount: 3}, true, DecisionUpdate},
		{"views", Item{Title: "t", CommentCount: 1, ViewCount: 9, RecommendationCount: 3}, true, DecisionUpdate},
		{"recommends", Item{Title: "t", CommentCount: 1, ViewCount: 2, RecommendationCount: 9}, true, DecisionUpdate},
		{"author ignored", Item{Title: "t", CommentCount: 1, ViewCount: 2, RecommendationCount: 3, Author: "z"}, true, DecisionNoOp},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, Decide(tc.crawled, base, tc.found))
		})
	}
}

func TestMerger_StampsSourceAndLooksUpOnce(t *testing.T) {
	t.Parallel()

	store := &fakePrimary{}
	m := NewMerger(store)
	res, err := m.Merge(context.Background(), "board", []Item{
		{Source: "wrong", Link: "/a"},
		{Link: "/b"},
		{Link: "/a"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, store.lookups)
	require.Len(t, res.Inserts, 2)
	for _, item := range res.Inserts {
		require.Equal(t, "board", item.Source)
	}
	require.Equal(t, 1, res.Duplicates)
}

func TestMerger_Empty(t *testing.T) {
	t.Parallel()

	store := &fakePrimary{}
	res, err := NewMerger(store).Merge(context.Background(), "board", nil)
	require.NoError(t, err)
	require.Empty(t, res.Pending())
	require.Zero(t, store.lookups)
}

func TestMergeResult_PendingUpdatesFirst(t *testing.T) {
	t.Parallel()

	res := MergeResult{
		Inserts: []Item{{Link: "i"}},
		Updates: []Item{{ID: 1, Link: "u"}},
	}
	pending := res.Pending()
	require.Equal(t, []string{"u", "i"}, []string{pending[0].Link, pending[1].Link})
}
