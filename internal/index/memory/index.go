// Package memory provides an in-process search index for development.
package memory

import (
	"context"
	"sync"

	"github.com/JakeFAU/board-collector/internal/collector"
)

// Index keeps documents in a map keyed by ID.
type Index struct {
	mu   sync.RWMutex
	docs map[int64]collector.Document
}

var _ collector.IndexStore = (*Index)(nil)

// New constructs an empty Index.
func New() *Index {
	return &Index{docs: make(map[int64]collector.Document)}
}

// SaveAll upserts docs. Documents without an ID are rejected before any write.
func (x *Index) SaveAll(_ context.Context, docs []collector.Document) error {
	for _, doc := range docs {
		if doc.ID == 0 {
			return collector.ErrUnpersisted
		}
	}
	x.mu.Lock()
	defer x.mu.Unlock()
	for _, doc := range docs {
		x.docs[doc.ID] = doc
	}
	return nil
}

// Count returns the number of documents.
func (x *Index) Count(context.Context) (int64, error) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return int64(len(x.docs)), nil
}

// Get returns the document with id.
func (x *Index) Get(id int64) (collector.Document, bool) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	doc, ok := x.docs[id]
	return doc, ok
}
