package collector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/metrics"
)

// EventItemCreated names the event published for each inserted item.
const EventItemCreated = "item.created"

// partialWriteTimeout bounds persisting a crawl cut short by cancellation.
const partialWriteTimeout = 30 * time.Second

// JobDeps bundles the collaborators shared by every source job.
type JobDeps struct {
	Locks     LockRegistry
	Resolver  *Resolver
	Merger    *Merger
	Writer    *Writer
	Runs      RunRecorder
	Publisher Publisher
	Topic     string
	Clock     Clock
	IDs       IDGenerator
	Logger    *zap.Logger
}

// Job runs one source: lock, window, crawl, merge, write, release.
type Job struct {
	source  string
	policy  WindowPolicy
	adapter Adapter
	deps    JobDeps
	logger  *zap.Logger
}

// NewJob binds an adapter to the shared collaborators.
func NewJob(source string, policy WindowPolicy, adapter Adapter, deps JobDeps) *Job {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Job{
		source:  source,
		policy:  policy,
		adapter: adapter,
		deps:    deps,
		logger:  logger.Named("job").With(zap.String("source", source)),
	}
}

// Source returns the name of the source the job runs.
func (j *Job) Source() string {
	return j.source
}

// Run executes one run. Lock contention is not an error: the returned record
// has status skipped and nothing is read or written.
func (j *Job) Run(ctx context.Context) (RunRecord, error) {
	lease, acquired, err := j.deps.Locks.TryAcquire(ctx, j.source)
	if err != nil {
		return RunRecord{Source: j.source, Status: RunFailed, Error: err.Error()}, fmt.Errorf("acquire lock: %w", err)
	}
	if !acquired {
		metrics.ObserveLockContention(j.source)
		j.logger.Info("previous run still in progress, skipping")
		return RunRecord{Source: j.source, Status: RunSkipped}, nil
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
			j.logger.Error("release lock failed", zap.Error(err))
		}
	}()

	run := RunRecord{Source: j.source, StartedAt: j.deps.Clock.Now()}
	if j.deps.IDs != nil {
		id, err := j.deps.IDs.NewID()
		if err != nil {
			return j.finish(ctx, run, fmt.Errorf("generate run id: %w", err))
		}
		run.RunID = id
	}
	logger := j.logger.With(zap.String("run_id", run.RunID))

	window, err := j.deps.Resolver.Resolve(ctx, j.source, j.policy)
	if err != nil {
		return j.finish(ctx, run, fmt.Errorf("resolve window: %w", err))
	}
	run.State = window.State
	run.LowerBound = window.LowerBound
	logger = logger.With(zap.String("state", string(window.State)), zap.Time("lower_bound", window.LowerBound))
	logger.Info("crawl started")

	items, crawlErr := j.adapter.Crawl(ctx, window.LowerBound)
	var transportErr *AdapterTransportError
	switch {
	case crawlErr == nil:
	case errors.As(crawlErr, &transportErr):
		metrics.ObserveAdapterTransportError(j.source)
		logger.Warn("crawl ended early, keeping partial result",
			zap.Int("items", len(items)),
			zap.Error(crawlErr),
		)
	default:
		return j.finish(ctx, run, fmt.Errorf("crawl: %w", crawlErr))
	}
	run.Crawled = len(items)

	// A canceled run still persists what it gathered.
	if ctx.Err() != nil && len(items) > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(context.WithoutCancel(ctx), partialWriteTimeout)
		defer cancel()
	}

	merged, err := j.deps.Merger.Merge(ctx, j.source, items)
	if err != nil {
		return j.finish(ctx, run, fmt.Errorf("merge: %w", err))
	}
	run.Unchanged = merged.Unchanged
	metrics.ObserveItems(j.source, string(DecisionNoOp), merged.Unchanged)

	persisted, writeErr := j.deps.Writer.Write(ctx, merged.Pending())
	updated := min(len(persisted), len(merged.Updates))
	run.Updated = updated
	run.Inserted = len(persisted) - updated
	metrics.ObserveItems(j.source, string(DecisionUpdate), run.Updated)
	metrics.ObserveItems(j.source, string(DecisionInsert), run.Inserted)
	j.publishCreated(ctx, logger, persisted[updated:])
	if writeErr != nil {
		return j.finish(ctx, run, fmt.Errorf("write: %w", writeErr))
	}

	if transportErr != nil {
		run.Status = RunPartial
		run.Error = crawlErr.Error()
	}
	logger.Info("crawl finished",
		zap.Int("crawled", run.Crawled),
		zap.Int("inserted", run.Inserted),
		zap.Int("updated", run.Updated),
		zap.Int("unchanged", run.Unchanged),
		zap.Int("duplicates", merged.Duplicates),
	)
	return j.finish(ctx, run, nil)
}

func (j *Job) finish(ctx context.Context, run RunRecord, runErr error) (RunRecord, error) {
	run.FinishedAt = j.deps.Clock.Now()
	switch {
	case runErr != nil:
		run.Status = RunFailed
		run.Error = runErr.Error()
	case run.Status == "":
		run.Status = RunSucceeded
	}
	metrics.ObserveRun(j.source, string(run.Status), run.FinishedAt.Sub(run.StartedAt))

	if j.deps.Runs != nil {
		if err := j.deps.Runs.RecordRun(context.WithoutCancel(ctx), run); err != nil {
			j.logger.Error("record run failed", zap.String("run_id", run.RunID), zap.Error(err))
		}
	}
	return run, runErr
}

func (j *Job) publishCreated(ctx context.Context, logger *zap.Logger, inserted []Item) {
	if j.deps.Publisher == nil || j.deps.Topic == "" {
		return
	}
	for _, item := range inserted {
		payload := map[string]any{
			"event":      EventItemCreated,
			"id":         item.ID,
			"source":     item.Source,
			"title":      item.Title,
			"link":       item.Link,
			"created_at": item.CreatedAt.UTC().Format(time.RFC3339),
		}
		if _, err := j.deps.Publisher.Publish(ctx, j.deps.Topic, payload); err != nil {
			metrics.ObservePublishFailure(j.source)
			logger.Warn("publish item.created failed", zap.Int64("id", item.ID), zap.Error(err))
		}
	}
}
