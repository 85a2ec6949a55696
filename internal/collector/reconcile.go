package collector

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// DefaultReconcilePageSize is the primary-store page size used at startup.
const DefaultReconcilePageSize = 1000

// Reconciler re-indexes the primary store when the two stores' counts differ.
// Drift with equal counts is not detected.
type Reconciler struct {
	primary  PrimaryStore
	index    IndexStore
	pageSize int
	logger   *zap.Logger
}

// ReconcileResult summarises one reconciliation pass.
type ReconcileResult struct {
	PrimaryCount int64
	IndexCount   int64
	Indexed      int
	Pages        int
	Skipped      bool
}

// NewReconciler constructs a Reconciler.
func NewReconciler(primary PrimaryStore, index IndexStore, pageSize int, logger *zap.Logger) *Reconciler {
	if pageSize <= 0 {
		pageSize = DefaultReconcilePageSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{primary: primary, index: index, pageSize: pageSize, logger: logger}
}

// Reconcile compares counts and, unless they match and are nonzero, pages
// through the primary store upserting every item into the index.
func (r *Reconciler) Reconcile(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	primaryCount, err := r.primary.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count primary: %w", err)
	}
	indexCount, err := r.index.Count(ctx)
	if err != nil {
		return res, fmt.Errorf("count index: %w", err)
	}
	res.PrimaryCount, res.IndexCount = primaryCount, indexCount

	if primaryCount == indexCount && primaryCount > 0 {
		res.Skipped = true
		r.logger.Info("stores in sync", zap.Int64("count", primaryCount))
		return res, nil
	}

	r.logger.Info("reconciling index",
		zap.Int64("primary_count", primaryCount),
		zap.Int64("index_count", indexCount),
	)
	for page := 0; ; page++ {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("reconcile canceled: %w", err)
		}
		p, err := r.primary.FindPage(ctx, page, r.pageSize)
		if err != nil {
			return res, fmt.Errorf("find page %d: %w", page, err)
		}
		if len(p.Items) > 0 {
			docs, err := NewDocuments(p.Items)
			if err != nil {
				return res, fmt.Errorf("convert page %d: %w", page, err)
			}
			if err := r.index.SaveAll(ctx, docs); err != nil {
				return res, fmt.Errorf("index page %d: %w", page, err)
			}
			res.Indexed += len(docs)
			res.Pages++
		}
		if !p.HasNext {
			break
		}
	}
	r.logger.Info("reconcile complete", zap.Int("indexed", res.Indexed), zap.Int("pages", res.Pages))
	return res, nil
}
