package collector

import (
	"context"
	"fmt"
)

// MergeResult is the classified output of one merge.
type MergeResult struct {
	Inserts    []Item
	Updates    []Item
	Unchanged  int
	Duplicates int
}

// Pending returns the items that must be written, updates first.
func (m MergeResult) Pending() []Item {
	out := make([]Item, 0, len(m.Updates)+len(m.Inserts))
	out = append(out, m.Updates...)
	out = append(out, m.Inserts...)
	return out
}

// Merger classifies crawled items against the primary store.
type Merger struct {
	store PrimaryStore
}

// NewMerger constructs a Merger.
func NewMerger(store PrimaryStore) *Merger {
	return &Merger{store: store}
}

// Merge stamps crawled items with source, looks up existing records by link
// in one query and classifies each distinct item.
func (m *Merger) Merge(ctx context.Context, source string, crawled []Item) (MergeResult, error) {
	if len(crawled) == 0 {
		return MergeResult{}, nil
	}
	links := distinctLinks(crawled)
	existing, err := m.store.FindBySourceAndLinks(ctx, source, links)
	if err != nil {
		return MergeResult{}, fmt.Errorf("find by source and links: %w", err)
	}
	stamped := make([]Item, len(crawled))
	for i, item := range crawled {
		item.Source = source
		stamped[i] = item
	}
	return Classify(stamped, existing), nil
}

// Classify is the pure part of Merge. The first occurrence of a link wins;
// later ones count as duplicates.
func Classify(crawled, existing []Item) MergeResult {
	byLink := make(map[string]Item, len(existing))
	for _, item := range existing {
		if _, ok := byLink[item.Link]; !ok {
			byLink[item.Link] = item
		}
	}

	var result MergeResult
	seen := make(map[string]struct{}, len(crawled))
	for _, item := range crawled {
		if _, dup := seen[item.Link]; dup {
			result.Duplicates++
			continue
		}
		seen[item.Link] = struct{}{}

		current, ok := byLink[item.Link]
		switch Decide(item, current, ok) {
		case DecisionInsert:
			item.ID = 0
			result.Inserts = append(result.Inserts, item)
		case DecisionUpdate:
			current.Title = item.Title
			current.CommentCount = item.CommentCount
			current.ViewCount = item.ViewCount
			current.RecommendationCount = item.RecommendationCount
			result.Updates = append(result.Updates, current)
		default:
			result.Unchanged++
		}
	}
	return result
}

// Decide compares a crawled item with its stored counterpart.
func Decide(crawled, existing Item, found bool) Decision {
	if !found {
		return DecisionInsert
	}
	if crawled.Title != existing.Title ||
		crawled.CommentCount != existing.CommentCount ||
		crawled.ViewCount != existing.ViewCount ||
		crawled.RecommendationCount != existing.RecommendationCount {
		return DecisionUpdate
	}
	return DecisionNoOp
}

func distinctLinks(items []Item) []string {
	seen := make(map[string]struct{}, len(items))
	links := make([]string, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.Link]; ok {
			continue
		}
		seen[item.Link] = struct{}{}
		links = append(links, item.Link)
	}
	return links
}
