package collector

import (
	"context"

	"go.uber.org/zap"
)

// DefaultBatchSize is used when the writer is configured with a non-positive size.
const DefaultBatchSize = 100

// Writer persists merged items to the primary store and then the index,
// one chunk at a time.
type Writer struct {
	primary   PrimaryStore
	index     IndexStore
	batchSize int
	logger    *zap.Logger
}

// NewWriter constructs a Writer.
func NewWriter(primary PrimaryStore, index IndexStore, batchSize int, logger *zap.Logger) *Writer {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		primary:   primary,
		index:     index,
		batchSize: batchSize,
		logger:    logger,
	}
}

// Write stores items chunk by chunk. Each chunk goes to the primary store
// first; the persisted rows (with IDs) are then indexed. The first failure
// stops the remaining chunks and is returned as a *PersistenceError. Every
// row the primary store accepted is returned in both cases, including a chunk
// whose index write failed.
func (w *Writer) Write(ctx context.Context, items []Item) ([]Item, error) {
	persisted := make([]Item, 0, len(items))
	for chunk, start := 0, 0; start < len(items); chunk, start = chunk+1, start+w.batchSize {
		end := min(start+w.batchSize, len(items))

		saved, err := w.primary.SaveAll(ctx, items[start:end])
		if err != nil {
			return persisted, &PersistenceError{Store: StorePrimary, Chunk: chunk, Err: err}
		}
		persisted = append(persisted, saved...)
		docs, err := NewDocuments(saved)
		if err != nil {
			return persisted, &PersistenceError{Store: StoreIndex, Chunk: chunk, Err: err}
		}
		if err := w.index.SaveAll(ctx, docs); err != nil {
			return persisted, &PersistenceError{Store: StoreIndex, Chunk: chunk, Err: err}
		}
		w.logger.Debug("chunk written", zap.Int("chunk", chunk), zap.Int("items", len(saved)))
	}
	return persisted, nil
}
