package postgres

import (
	"context"
	"testing"
	"time"

	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/board-collector/internal/collector"
)

func TestRunStoreRecordRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	run := collector.RunRecord{
		RunID:      "run-1",
		Source:     "board",
		State:      collector.WindowPeriodic,
		LowerBound: started.Add(-30 * time.Minute),
		StartedAt:  started,
		FinishedAt: started.Add(time.Second),
		Status:     collector.RunSucceeded,
		Crawled:    5,
		Inserted:   2,
		Updated:    1,
		Unchanged:  2,
	}
	var noErr *string
	mock.ExpectExec("INSERT INTO crawl_runs").
		WithArgs(
			"run-1", "board", "periodic", run.LowerBound, run.StartedAt, run.FinishedAt,
			"succeeded", 5, 2, 1, 2, noErr,
		).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.RecordRun(context.Background(), run))
	require.NoError(t, mock.ExpectationsWereMet())

	require.Error(t, store.RecordRun(context.Background(), collector.RunRecord{}))
}

func TestRunStoreLastRun(t *testing.T) {
	t.Parallel()

	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	store, err := NewRunStore(mock, "crawl_runs")
	require.NoError(t, err)

	started := time.Unix(1700000000, 0).UTC()
	mock.ExpectQuery("FROM crawl_runs WHERE source").
		WithArgs("board").
		WillReturnRows(pgxmock.NewRows([]string{
			"run_id", "source", "state", "lower_bound", "started_at", "finished_at",
			"status", "crawled", "inserted", "updated", "unchanged", "error_message",
		}).AddRow("run-9", "board", "gap_restart", started, started, started, "partial", 3, 3, 0, 0, "fetch page 2"))

	run, ok, err := store.LastRun(context.Background(), "board")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, collector.WindowGapRestart, run.State)
	require.Equal(t, collector.RunPartial, run.Status)
	require.Equal(t, "fetch page 2", run.Error)
	require.NoError(t, mock.ExpectationsWereMet())
}
