package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-collector/internal/collector"
)

func TestIndex(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	idx := New()
	require.NoError(t, idx.SaveAll(ctx, []collector.Document{{ID: 1, Title: "a"}, {ID: 2}}))
	require.NoError(t, idx.SaveAll(ctx, []collector.Document{{ID: 1, Title: "b"}}))

	n, err := idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	doc, ok := idx.Get(1)
	require.True(t, ok)
	require.Equal(t, "b", doc.Title)

	require.ErrorIs(t, idx.SaveAll(ctx, []collector.Document{{ID: 3}, {}}), collector.ErrUnpersisted)
	n, err = idx.Count(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
}
