package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-collector/internal/collector"
)

func TestQueueEnqueueDequeue(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	result := make(chan collector.Trigger, 1)
	errCh := make(chan error, 1)

	go func() {
		trigger, err := q.Dequeue(context.Background())
		if err != nil {
			errCh <- err
			return
		}
		result <- trigger
	}()

	require.True(t, q.TryEnqueue(collector.Trigger{Source: "board"}))
	select {
	case err := <-errCh:
		t.Fatalf("Dequeue() error = %v", err)
	case got := <-result:
		require.Equal(t, "board", got.Source)
	case <-time.After(time.Second):
		t.Fatal("dequeue did not return trigger")
	}
}

func TestQueueTryEnqueueFull(t *testing.T) {
	t.Parallel()

	q := NewQueue(1)
	require.True(t, q.TryEnqueue(collector.Trigger{Source: "a"}))
	require.False(t, q.TryEnqueue(collector.Trigger{Source: "b"}))
	require.Equal(t, 1, q.Len())

	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "a", got.Source)
	require.True(t, q.TryEnqueue(collector.Trigger{Source: "c"}))
}

func TestQueueCancelationErrors(t *testing.T) {
	t.Parallel()

	qDequeue := NewQueue(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := qDequeue.Dequeue(ctx)
	require.EqualError(t, err, "dequeue canceled: context canceled")
}

func TestQueueClose(t *testing.T) {
	t.Parallel()

	q := NewQueue(2)
	require.True(t, q.TryEnqueue(collector.Trigger{Source: "buffered"}))
	q.Close()
	got, err := q.Dequeue(context.Background())
	require.NoError(t, err)
	require.Equal(t, "buffered", got.Source)
	_, err = q.Dequeue(context.Background())
	require.ErrorIs(t, err, ErrClosed)
	require.False(t, q.TryEnqueue(collector.Trigger{Source: "late"}))
	// Closing twice should be safe.
	q.Close()
}
