package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// RunStore records executed runs.
type RunStore struct {
	db    DB
	table string
}

var _ collector.RunRecorder = (*RunStore)(nil)

// NewRunStore wraps db. An empty table defaults to "crawl_runs".
func NewRunStore(db DB, table string) (*RunStore, error) {
	if db == nil {
		return nil, errors.New("db is required")
	}
	table, err := checkTable(table, "crawl_runs")
	if err != nil {
		return nil, err
	}
	return &RunStore{db: db, table: table}, nil
}

// Migrate creates the run table if it is missing.
func (s *RunStore) Migrate(ctx context.Context) error {
	stmt := fmt.Sprintf(`
CREATE TABLE IF NOT EXISTS %[1]s (
	run_id TEXT PRIMARY KEY,
	source TEXT NOT NULL,
	state TEXT NOT NULL,
	lower_bound TIMESTAMPTZ,
	started_at TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	status TEXT NOT NULL,
	crawled INTEGER NOT NULL DEFAULT 0,
	inserted INTEGER NOT NULL DEFAULT 0,
	updated INTEGER NOT NULL DEFAULT 0,
	unchanged INTEGER NOT NULL DEFAULT 0,
	error_message TEXT
);
CREATE INDEX IF NOT EXISTS %[1]s_source_started_at_idx ON %[1]s (source, started_at DESC)`, s.table)
	if _, err := s.db.Exec(ctx, stmt); err != nil {
		return fmt.Errorf("migrate %s: %w", s.table, err)
	}
	return nil
}

// RecordRun inserts one run row.
func (s *RunStore) RecordRun(ctx context.Context, run collector.RunRecord) error {
	if run.RunID == "" {
		return errors.New("run id is required")
	}
	var errMsg *string
	if run.Error != "" {
		errMsg = &run.Error
	}
	query := fmt.Sprintf(`
INSERT INTO %s (
	run_id, source, state, lower_bound, started_at, finished_at,
	status, crawled, inserted, updated, unchanged, error_message
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`, s.table)
	_, err := s.db.Exec(ctx, query,
		run.RunID,
		run.Source,
		string(run.State),
		run.LowerBound,
		run.StartedAt,
		run.FinishedAt,
		string(run.Status),
		run.Crawled,
		run.Inserted,
		run.Updated,
		run.Unchanged,
		errMsg,
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}
	return nil
}

// LastRun returns the most recent run of source.
func (s *RunStore) LastRun(ctx context.Context, source string) (collector.RunRecord, bool, error) {
	query := fmt.Sprintf(`
SELECT run_id, source, state, lower_bound, started_at, finished_at,
	status, crawled, inserted, updated, unchanged, COALESCE(error_message, '')
FROM %s WHERE source = $1 ORDER BY started_at DESC LIMIT 1`, s.table)
	var (
		run    collector.RunRecord
		state  string
		status string
	)
	err := s.db.QueryRow(ctx, query, source).Scan(
		&run.RunID,
		&run.Source,
		&state,
		&run.LowerBound,
		&run.StartedAt,
		&run.FinishedAt,
		&status,
		&run.Crawled,
		&run.Inserted,
		&run.Updated,
		&run.Unchanged,
		&run.Error,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return collector.RunRecord{}, false, nil
	}
	if err != nil {
		return collector.RunRecord{}, false, fmt.Errorf("last run: %w", err)
	}
	run.State = collector.WindowState(state)
	run.Status = collector.RunStatus(status)
	return run, true, nil
}
