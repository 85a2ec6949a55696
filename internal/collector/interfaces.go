package collector

import (
	"context"
	"io"
	"time"
)

// Adapter harvests one source. Items come back newest-first and none is older
// than lowerBound. A transport failure may come back together with the items
// gathered before it.
type Adapter interface {
	Crawl(ctx context.Context, lowerBound time.Time) ([]Item, error)
}

// PrimaryStore is the system of record for items.
type PrimaryStore interface {
	ExistsBySource(ctx context.Context, source string) (bool, error)
	FindLatestBySource(ctx context.Context, source string) (Item, bool, error)
	FindBySourceAndLinks(ctx context.Context, source string, links []string) ([]Item, error)
	SaveAll(ctx context.Context, items []Item) ([]Item, error)
	Count(ctx context.Context) (int64, error)
	FindPage(ctx context.Context, page, size int) (Page, error)
}

// IndexStore holds the derived search documents.
type IndexStore interface {
	SaveAll(ctx context.Context, docs []Document) error
	Count(ctx context.Context) (int64, error)
}

// Lease is a held per-source lock.
type Lease interface {
	Release(ctx context.Context) error
}

// LockRegistry hands out at most one lease per source name at a time.
// TryAcquire never blocks waiting for a holder.
type LockRegistry interface {
	TryAcquire(ctx context.Context, name string) (Lease, bool, error)
}

// RunRecorder keeps the history of executed runs.
type RunRecorder interface {
	RecordRun(ctx context.Context, run RunRecord) error
	LastRun(ctx context.Context, source string) (RunRecord, bool, error)
}

// Publisher pushes events to Pub/Sub (or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// BlobStore writes raw artifacts and returns a URI.
type BlobStore interface {
	PutObject(ctx context.Context, path string, contentType string, data io.Reader) (string, error)
}

// Queue carries triggers from the scheduler to the worker pool. Producers
// never block; a full queue rejects the trigger.
type Queue interface {
	TryEnqueue(trigger Trigger) bool
	Dequeue(ctx context.Context) (Trigger, error)
}

// Runner executes one run of a source.
type Runner interface {
	Run(ctx context.Context) (RunRecord, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}

// IDGenerator produces run IDs.
type IDGenerator interface {
	NewID() (string, error)
}
