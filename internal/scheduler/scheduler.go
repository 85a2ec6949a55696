// Package scheduler binds configured sources to cron entries that feed the
// trigger queue.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/JakeFAU/board-collector/internal/collector"
	"github.com/JakeFAU/board-collector/internal/metrics"
)

// Errors returned by Trigger.
var (
	ErrUnknownSource = errors.New("source is not scheduled")
	ErrQueueFull     = errors.New("trigger queue is full")
)

// parser accepts five-field expressions, an optional leading seconds field
// and descriptors such as "@every 5m".
var parser = cron.NewParser(
	cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
)

// Source is the schedule of one configured source.
type Source struct {
	Name    string
	Cron    string
	Enabled bool
	Policy  collector.WindowPolicy
}

// AdapterLookup resolves an adapter by source name.
type AdapterLookup interface {
	Lookup(name string) (collector.Adapter, bool)
}

// Binding is a scheduled source with its resolved adapter.
type Binding struct {
	Source  Source
	Adapter collector.Adapter
}

// Status describes a registered entry.
type Status struct {
	Name string    `json:"name"`
	Cron string    `json:"cron"`
	Next time.Time `json:"next"`
	Prev time.Time `json:"prev,omitempty"`
}

// Scheduler owns the cron runner.
type Scheduler struct {
	cron   *cron.Cron
	queue  collector.Queue
	clock  collector.Clock
	logger *zap.Logger

	mu      sync.RWMutex
	entries map[string]entry
}

type entry struct {
	id   cron.EntryID
	spec string
}

// New constructs a Scheduler. A nil location means time.Local.
func New(queue collector.Queue, clock collector.Clock, loc *time.Location, logger *zap.Logger) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("scheduler")
	if loc == nil {
		loc = time.Local
	}
	return &Scheduler{
		cron: cron.New(
			cron.WithParser(parser),
			cron.WithLocation(loc),
			cron.WithLogger(cronLogger{logger: logger}),
		),
		queue:   queue,
		clock:   clock,
		logger:  logger,
		entries: make(map[string]entry),
	}
}

// Register adds a cron entry for every enabled source with an adapter. Sources
// that are disabled, have no adapter or carry an invalid expression are
// logged and skipped. The bound sources are returned.
func (s *Scheduler) Register(sources []Source, adapters AdapterLookup) []Binding {
	bindings := make([]Binding, 0, len(sources))
	for _, src := range sources {
		log := s.logger.With(zap.String("source", src.Name))
		if !src.Enabled {
			log.Info("source disabled, not scheduling")
			continue
		}
		a, ok := adapters.Lookup(src.Name)
		if !ok {
			log.Warn("no adapter registered for source, not scheduling")
			continue
		}
		if err := s.add(src); err != nil {
			log.Error("invalid cron expression, not scheduling", zap.String("cron", src.Cron), zap.Error(err))
			continue
		}
		log.Info("source scheduled", zap.String("cron", src.Cron))
		bindings = append(bindings, Binding{Source: src, Adapter: a})
	}
	return bindings
}

func (s *Scheduler) add(src Source) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.entries[src.Name]; exists {
		return fmt.Errorf("source %q already scheduled", src.Name)
	}
	sched, err := parser.Parse(src.Cron)
	if err != nil {
		return fmt.Errorf("parse %q: %w", src.Cron, err)
	}
	name := src.Name
	id := s.cron.Schedule(sched, cron.FuncJob(func() { s.tick(name) }))
	s.entries[name] = entry{id: id, spec: src.Cron}
	return nil
}

// tick never blocks the cron goroutine. A full queue drops the tick; the next
// one retries.
func (s *Scheduler) tick(name string) {
	trigger := collector.Trigger{Source: name, FiredAt: s.clock.Now()}
	if !s.queue.TryEnqueue(trigger) {
		metrics.ObserveDroppedTrigger(name)
		s.logger.Warn("trigger queue full, dropping tick", zap.String("source", name))
	}
}

// Trigger enqueues a manual run of name.
func (s *Scheduler) Trigger(name string) error {
	s.mu.RLock()
	_, ok := s.entries[name]
	s.mu.RUnlock()
	if !ok {
		return ErrUnknownSource
	}
	if !s.queue.TryEnqueue(collector.Trigger{Source: name, FiredAt: s.clock.Now(), Manual: true}) {
		metrics.ObserveDroppedTrigger(name)
		return ErrQueueFull
	}
	return nil
}

// Sources reports every registered entry ordered by name.
func (s *Scheduler) Sources() []Status {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Status, 0, len(s.entries))
	for name, e := range s.entries {
		ce := s.cron.Entry(e.id)
		out = append(out, Status{Name: name, Cron: e.spec, Next: ce.Next, Prev: ce.Prev})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Start begins firing entries in the background.
func (s *Scheduler) Start() {
	s.cron.Start()
}

// Stop halts the cron runner and waits for in-flight ticks or ctx.
func (s *Scheduler) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return fmt.Errorf("stop scheduler: %w", ctx.Err())
	}
}

type cronLogger struct {
	logger *zap.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...any) {
	l.logger.Sugar().Debugw(msg, keysAndValues...)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...any) {
	l.logger.Sugar().Errorw(msg, append(keysAndValues, "error", err)...)
}
