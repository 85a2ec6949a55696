// Package collector defines the core types of the board collector and the
// engine that keeps the primary store and the search index in step.
package collector

import (
	"time"
)

// Item is a harvested board post. ID is zero until the primary store has
// persisted the item.
type Item struct {
	ID                  int64     `json:"id"`
	Source              string    `json:"source"`
	SourceID            int64     `json:"source_id"`
	Link                string    `json:"link"`
	Title               string    `json:"title"`
	Author              string    `json:"author"`
	CommentCount        int       `json:"comment_count"`
	ViewCount           int       `json:"view_count"`
	RecommendationCount int       `json:"recommendation_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// Persisted reports whether the primary store has assigned an ID.
func (i Item) Persisted() bool {
	return i.ID != 0
}

// Document is the search-index representation of a persisted Item.
type Document struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	Source              string    `json:"source"`
	Author              string    `json:"author"`
	Link                string    `json:"link"`
	CommentCount        int       `json:"comment_count"`
	ViewCount           int       `json:"view_count"`
	RecommendationCount int       `json:"recommendation_count"`
	CreatedAt           time.Time `json:"created_at"`
}

// NewDocument converts a persisted item. Unpersisted items are rejected so the
// index can never hold a document without a primary-store ID.
func NewDocument(item Item) (Document, error) {
	if !item.Persisted() {
		return Document{}, ErrUnpersisted
	}
	return Document{
		ID:                  item.ID,
		Title:               item.Title,
		Source:              item.Source,
		Author:              item.Author,
		Link:                item.Link,
		CommentCount:        item.CommentCount,
		ViewCount:           item.ViewCount,
		RecommendationCount: item.RecommendationCount,
		CreatedAt:           item.CreatedAt.UTC(),
	}, nil
}

// NewDocuments converts a slice of persisted items, failing on the first
// unpersisted one.
func NewDocuments(items []Item) ([]Document, error) {
	docs := make([]Document, 0, len(items))
	for _, item := range items {
		doc, err := NewDocument(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// Page is one slice of the primary store returned by FindPage.
type Page struct {
	Items   []Item
	Number  int
	Size    int
	HasNext bool
}

// WindowState names the branch of the window state machine taken for a run.
type WindowState string

// Window states.
const (
	WindowInitial    WindowState = "initial"
	WindowGapRestart WindowState = "gap_restart"
	WindowPeriodic   WindowState = "periodic"
)

// Window is the lower bound handed to an adapter for one run.
type Window struct {
	Source     string
	State      WindowState
	LowerBound time.Time
}

// WindowPolicy holds the per-source thresholds used by the Resolver.
type WindowPolicy struct {
	Lookback     time.Duration
	InitialCrawl time.Duration
	RestartCrawl time.Duration
}

// Decision is the merge classification of a crawled item.
type Decision string

// Merge decisions.
const (
	DecisionInsert Decision = "insert"
	DecisionUpdate Decision = "update"
	DecisionNoOp   Decision = "noop"
)

// RunStatus is the outcome of one scheduled run.
type RunStatus string

// Run statuses.
const (
	RunSucceeded RunStatus = "succeeded"
	RunPartial   RunStatus = "partial"
	RunFailed    RunStatus = "failed"
	RunSkipped   RunStatus = "skipped"
)

// RunRecord is written after every executed run.
type RunRecord struct {
	RunID      string      `json:"run_id"`
	Source     string      `json:"source"`
	State      WindowState `json:"state"`
	LowerBound time.Time   `json:"lower_bound"`
	StartedAt  time.Time   `json:"started_at"`
	FinishedAt time.Time   `json:"finished_at"`
	Status     RunStatus   `json:"status"`
	Crawled    int         `json:"crawled"`
	Inserted   int         `json:"inserted"`
	Updated    int         `json:"updated"`
	Unchanged  int         `json:"unchanged"`
	Error      string      `json:"error,omitempty"`
}

// Trigger asks the worker pool to run the job of one source.
type Trigger struct {
	Source  string
	FiredAt time.Time
	Manual  bool
}
