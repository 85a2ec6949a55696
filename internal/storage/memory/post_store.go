// Package memory provides in-process stores for development and tests.
package memory

import (
	"context"
	"errors"
	"sort"
	"sync"

	"github.com/JakeFAU/board-collector/internal/collector"
)

type postKey struct {
	source string
	link   string
}

// PostStore is an in-memory primary store keyed by (source, link).
type PostStore struct {
	mu     sync.RWMutex
	nextID int64
	byID   map[int64]collector.Item
	byKey  map[postKey]int64
}

var _ collector.PrimaryStore = (*PostStore)(nil)

// NewPostStore constructs an empty PostStore.
func NewPostStore() *PostStore {
	return &PostStore{
		byID:  make(map[int64]collector.Item),
		byKey: make(map[postKey]int64),
	}
}

// ExistsBySource reports whether any item of source is stored.
func (s *PostStore) ExistsBySource(_ context.Context, source string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for key := range s.byKey {
		if key.source == source {
			return true, nil
		}
	}
	return false, nil
}

// FindLatestBySource returns the item of source with the newest CreatedAt.
func (s *PostStore) FindLatestBySource(_ context.Context, source string) (collector.Item, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var latest collector.Item
	found := false
	for _, item := range s.byID {
		if item.Source != source {
			continue
		}
		if !found || item.CreatedAt.After(latest.CreatedAt) {
			latest, found = item, true
		}
	}
	return latest, found, nil
}

// FindBySourceAndLinks returns the stored items of source whose link is in links.
func (s *PostStore) FindBySourceAndLinks(_ context.Context, source string, links []string) ([]collector.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]collector.Item, 0, len(links))
	for _, link := range links {
		if id, ok := s.byKey[postKey{source: source, link: link}]; ok {
			out = append(out, s.byID[id])
		}
	}
	return out, nil
}

// SaveAll inserts items without an ID and overwrites those with one. The
// returned slice keeps the input order.
func (s *PostStore) SaveAll(_ context.Context, items []collector.Item) ([]collector.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]collector.Item, 0, len(items))
	for _, item := range items {
		key := postKey{source: item.Source, link: item.Link}
		if item.ID == 0 {
			if id, ok := s.byKey[key]; ok {
				item.ID = id
			} else {
				s.nextID++
				item.ID = s.nextID
			}
		} else if _, ok := s.byID[item.ID]; !ok {
			return nil, errors.New("item not found")
		}
		s.byID[item.ID] = item
		s.byKey[key] = item.ID
		out = append(out, item)
	}
	return out, nil
}

// Count returns the number of stored items.
func (s *PostStore) Count(context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return int64(len(s.byID)), nil
}

// FindPage returns items ordered by ID.
func (s *PostStore) FindPage(_ context.Context, page, size int) (collector.Page, error) {
	if page < 0 || size <= 0 {
		return collector.Page{}, errors.New("invalid page request")
	}
	s.mu.RLock()
	ids := make([]int64, 0, len(s.byID))
	for id := range s.byID {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	start := min(page*size, len(ids))
	end := min(start+size, len(ids))
	items := make([]collector.Item, 0, end-start)
	s.mu.RLock()
	for _, id := range ids[start:end] {
		if item, ok := s.byID[id]; ok {
			items = append(items, item)
		}
	}
	s.mu.RUnlock()
	return collector.Page{Items: items, Number: page, Size: size, HasNext: end < len(ids)}, nil
}
