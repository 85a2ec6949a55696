package collector

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"
)

type fakeClock struct {
	now time.Time
}

func (f *fakeClock) Now() time.Time {
	return f.now
}

type fakeIDs struct {
	id string
}

func (f fakeIDs) NewID() (string, error) {
	return f.id, nil
}

// fakePrimary keeps items in insertion order and assigns sequential IDs.
type fakePrimary struct {
	mu        sync.Mutex
	items     []Item
	nextID    int64
	saveCalls [][]Item
	failSave  int // 1-based SaveAll call that fails; 0 disables
	lookupErr error
	lookups   int
}

func (f *fakePrimary) ExistsBySource(_ context.Context, source string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lookupErr != nil {
		return false, f.lookupErr
	}
	for _, item := range f.items {
		if item.Source == source {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakePrimary) FindLatestBySource(_ context.Context, source string) (Item, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var latest Item
	found := false
	for _, item := range f.items {
		if item.Source != source {
			continue
		}
		if !found || item.CreatedAt.After(latest.CreatedAt) {
			latest = item
			found = true
		}
	}
	return latest, found, nil
}

func (f *fakePrimary) FindBySourceAndLinks(_ context.Context, source string, links []string) ([]Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups++
	if f.lookupErr != nil {
		return nil, f.lookupErr
	}
	want := make(map[string]bool, len(links))
	for _, l := range links {
		want[l] = true
	}
	var out []Item
	for _, item := range f.items {
		if item.Source == source && want[item.Link] {
			out = append(out, item)
		}
	}
	return out, nil
}

func (f *fakePrimary) SaveAll(ctx context.Context, items []Item) ([]Item, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls = append(f.saveCalls, append([]Item(nil), items...))
	if f.failSave > 0 && len(f.saveCalls) == f.failSave {
		return nil, errors.New("primary down")
	}
	out := make([]Item, 0, len(items))
	for _, item := range items {
		if item.ID == 0 {
			f.nextID++
			item.ID = f.nextID
			f.items = append(f.items, item)
		} else {
			for i := range f.items {
				if f.items[i].ID == item.ID {
					f.items[i] = item
				}
			}
		}
		out = append(out, item)
	}
	return out, nil
}

func (f *fakePrimary) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return int64(len(f.items)), nil
}

func (f *fakePrimary) FindPage(_ context.Context, page, size int) (Page, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sorted := append([]Item(nil), f.items...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ID < sorted[j].ID })
	start := min(page*size, len(sorted))
	end := min(start+size, len(sorted))
	return Page{Items: sorted[start:end], Number: page, Size: size, HasNext: end < len(sorted)}, nil
}

type fakeIndex struct {
	mu        sync.Mutex
	docs      map[int64]Document
	saveCalls int
	failSave  int
	count     *int64
}

func newFakeIndex() *fakeIndex {
	return &fakeIndex{docs: make(map[int64]Document)}
}

func (f *fakeIndex) SaveAll(_ context.Context, docs []Document) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.saveCalls++
	if f.failSave > 0 && f.saveCalls == f.failSave {
		return errors.New("index down")
	}
	for _, doc := range docs {
		f.docs[doc.ID] = doc
	}
	return nil
}

func (f *fakeIndex) Count(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.count != nil {
		return *f.count, nil
	}
	return int64(len(f.docs)), nil
}

type fakeLease struct {
	locks *fakeLocks
	name  string
}

func (l *fakeLease) Release(context.Context) error {
	l.locks.mu.Lock()
	defer l.locks.mu.Unlock()
	delete(l.locks.held, l.name)
	l.locks.released++
	return nil
}

type fakeLocks struct {
	mu       sync.Mutex
	held     map[string]bool
	released int
}

func newFakeLocks() *fakeLocks {
	return &fakeLocks{held: make(map[string]bool)}
}

func (f *fakeLocks) TryAcquire(_ context.Context, name string) (Lease, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.held[name] {
		return nil, false, nil
	}
	f.held[name] = true
	return &fakeLease{locks: f, name: name}, true, nil
}

func (f *fakeLocks) isHeld(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.held[name]
}

type fakeAdapter struct {
	items      []Item
	err        error
	panicMsg   string
	lowerBound time.Time
	calls      int
}

func (f *fakeAdapter) Crawl(_ context.Context, lowerBound time.Time) ([]Item, error) {
	f.calls++
	f.lowerBound = lowerBound
	if f.panicMsg != "" {
		panic(f.panicMsg)
	}
	return f.items, f.err
}

type fakeRuns struct {
	mu   sync.Mutex
	runs []RunRecord
}

func (f *fakeRuns) RecordRun(_ context.Context, run RunRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.runs = append(f.runs, run)
	return nil
}

func (f *fakeRuns) LastRun(_ context.Context, source string) (RunRecord, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := len(f.runs) - 1; i >= 0; i-- {
		if f.runs[i].Source == source {
			return f.runs[i], true, nil
		}
	}
	return RunRecord{}, false, nil
}

type fakePublisher struct {
	mu       sync.Mutex
	messages []map[string]any
	err      error
}

func (f *fakePublisher) Publish(_ context.Context, _ string, payload any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return "", f.err
	}
	msg, _ := payload.(map[string]any)
	f.messages = append(f.messages, msg)
	return "msg", nil
}
