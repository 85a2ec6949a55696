package collector

import (
	"context"
	"fmt"
)

// Resolver computes the crawl window for a source from what the primary store
// already holds. Nothing about the window is persisted.
type Resolver struct {
	store PrimaryStore
	clock Clock
}

// NewResolver constructs a Resolver.
func NewResolver(store PrimaryStore, clock Clock) *Resolver {
	return &Resolver{store: store, clock: clock}
}

// Resolve returns the window for the next run of source.
//
//   - no item for the source: initial, now - InitialCrawl
//   - newest item older than now - Lookback: gap restart, now - RestartCrawl
//   - otherwise: periodic, now - Lookback
func (r *Resolver) Resolve(ctx context.Context, source string, policy WindowPolicy) (Window, error) {
	now := r.clock.Now()

	exists, err := r.store.ExistsBySource(ctx, source)
	if err != nil {
		return Window{}, fmt.Errorf("exists by source: %w", err)
	}
	if !exists {
		return Window{
			Source:     source,
			State:      WindowInitial,
			LowerBound: now.Add(-policy.InitialCrawl),
		}, nil
	}

	lastSeen := now
	latest, found, err := r.store.FindLatestBySource(ctx, source)
	if err != nil {
		return Window{}, fmt.Errorf("find latest by source: %w", err)
	}
	if found {
		lastSeen = latest.CreatedAt
	}

	if lastSeen.Before(now.Add(-policy.Lookback)) {
		return Window{
			Source:     source,
			State:      WindowGapRestart,
			LowerBound: now.Add(-policy.RestartCrawl),
		}, nil
	}
	return Window{
		Source:     source,
		State:      WindowPeriodic,
		LowerBound: now.Add(-policy.Lookback),
	}, nil
}
