package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// RunStore keeps run history in memory, bounded per source.
type RunStore struct {
	mu    sync.RWMutex
	limit int
	runs  map[string][]collector.RunRecord
}

var _ collector.RunRecorder = (*RunStore)(nil)

// NewRunStore constructs a RunStore keeping at most limit runs per source.
func NewRunStore(limit int) *RunStore {
	if limit <= 0 {
		limit = 100
	}
	return &RunStore{limit: limit, runs: make(map[string][]collector.RunRecord)}
}

// RecordRun appends run to the source's history.
func (s *RunStore) RecordRun(_ context.Context, run collector.RunRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	history := append(s.runs[run.Source], run)
	if len(history) > s.limit {
		history = history[len(history)-s.limit:]
	}
	s.runs[run.Source] = history
	return nil
}

// LastRun returns the most recent run of source.
func (s *RunStore) LastRun(_ context.Context, source string) (collector.RunRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	history := s.runs[source]
	if len(history) == 0 {
		return collector.RunRecord{}, false, nil
	}
	return history[len(history)-1], true, nil
}
