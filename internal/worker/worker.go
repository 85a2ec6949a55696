// Package worker runs source jobs pulled off the trigger queue.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/metrics"
)

// Config controls Worker behavior.
type Config struct {
	// RunTimeout bounds a single run. Zero disables the bound.
	RunTimeout time.Duration
}

// Worker consumes triggers and executes the matching runner.
type Worker struct {
	queue   collector.Queue
	runners map[string]collector.Runner
	cfg     Config
	logger  *zap.Logger
}

// New constructs a Worker. runners is read-only after construction.
func New(queue collector.Queue, runners map[string]collector.Runner, cfg Config, logger *zap.Logger) *Worker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Worker{
		queue:   queue,
		runners: runners,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run blocks, consuming triggers until the context finishes or the queue closes.
func (w *Worker) Run(ctx context.Context) {
	for {
		trigger, err := w.queue.Dequeue(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			if errors.Is(err, collector.ErrQueueClosed) {
				return
			}
			w.logger.Error("queue dequeue failed", zap.Error(err))
			continue
		}
		w.logger.Debug("dequeued trigger", zap.String("source", trigger.Source), zap.Bool("manual", trigger.Manual))
		w.process(ctx, trigger)
	}
}

func (w *Worker) process(ctx context.Context, trigger collector.Trigger) {
	log := w.logger.With(zap.String("source", trigger.Source))
	runner, ok := w.runners[trigger.Source]
	if !ok {
		log.Error("no runner for source")
		return
	}

	metrics.IncActiveWorkers()
	defer metrics.DecActiveWorkers()

	runCtx := ctx
	if w.cfg.RunTimeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, w.cfg.RunTimeout)
		defer cancel()
	}

	run, err := w.safeRun(runCtx, runner)
	switch {
	case err != nil:
		var perr *collector.PersistenceError
		if errors.As(err, &perr) {
			log.Error("run aborted on store write",
				zap.String("run_id", run.RunID),
				zap.String("store", perr.Store),
				zap.Int("chunk", perr.Chunk),
				zap.Error(err),
			)
			return
		}
		log.Error("run failed", zap.String("run_id", run.RunID), zap.Error(err))
	case run.Status == collector.RunSkipped:
		log.Debug("run skipped")
	default:
		log.Info("run complete",
			zap.String("run_id", run.RunID),
			zap.String("status", string(run.Status)),
			zap.Duration("duration", run.FinishedAt.Sub(run.StartedAt)),
		)
	}
}

// safeRun converts a runner panic into an error. The runner releases its own
// lock while the panic unwinds.
func (w *Worker) safeRun(ctx context.Context, runner collector.Runner) (run collector.RunRecord, err error) {
	defer func() {
		if r := recover(); r != nil {
			w.logger.Error("runner panicked", zap.Any("panic", r), zap.ByteString("stack", debug.Stack()))
			err = fmt.Errorf("runner panic: %v", r)
		}
	}()
	return runner.Run(ctx)
}
