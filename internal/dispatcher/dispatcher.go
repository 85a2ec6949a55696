// Package dispatcher runs the bounded worker pool over the trigger queue.
package dispatcher

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/worker"
)

// Dispatcher fans triggers out to a fixed pool of workers.
type Dispatcher struct {
	workers []*worker.Worker
}

// New creates a Dispatcher over workers that share one queue.
func New(workers []*worker.Worker) *Dispatcher {
	return &Dispatcher{workers: workers}
}

// NewPool builds size workers sharing queue and runners.
func NewPool(
	queue collector.Queue,
	runners map[string]collector.Runner,
	size int,
	cfg worker.Config,
	logger *zap.Logger,
) *Dispatcher {
	if size < 1 {
		size = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	workers := make([]*worker.Worker, 0, size)
	for i := range size {
		workers = append(workers, worker.New(queue, runners, cfg, logger.Named("worker").With(zap.Int("index", i))))
	}
	return New(workers)
}

// Size returns the number of workers.
func (d *Dispatcher) Size() int {
	return len(d.workers)
}

// Run starts all workers and blocks until every worker has returned.
func (d *Dispatcher) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, w := range d.workers {
		wg.Add(1)
		go func(wk *worker.Worker) {
			defer wg.Done()
			wk.Run(ctx)
		}(w)
	}
	wg.Wait()
}
