package collector

import (
	"errors"
	"fmt"
)

// ErrUnpersisted is returned when an item without a primary-store ID would be
// written to the search index.
var ErrUnpersisted = errors.New("item has no primary-store id")

// ErrQueueClosed is returned by a Queue after it has been closed.
var ErrQueueClosed = errors.New("queue closed")

// Store names used in PersistenceError.
const (
	StorePrimary = "primary"
	StoreIndex   = "index"
)

// PersistenceError reports a failed chunk write. Chunks before Chunk were
// committed to both stores.
type PersistenceError struct {
	Store string
	Chunk int
	Err   error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s store write failed at chunk %d: %v", e.Store, e.Chunk, e.Err)
}

func (e *PersistenceError) Unwrap() error {
	return e.Err
}

// AdapterTransportError marks a page fetch failure that ended a crawl early.
// Items collected before the failure are still returned by the adapter.
type AdapterTransportError struct {
	URL  string
	Page int
	Err  error
}

func (e *AdapterTransportError) Error() string {
	return fmt.Sprintf("fetch page %d (%s): %v", e.Page, e.URL, e.Err)
}

func (e *AdapterTransportError) Unwrap() error {
	return e.Err
}
