package store

import (
	"context"
	"sort"
	"time"

	"github.com/davidroman0O/stagepipe"
	"github.com/sasha-s/go-deadlock"
)

// MemoryStore is a threadsafe in-memory Store. Pipelines are deep copied on
// the way in and out so callers never share parameter storage with it.
type MemoryStore struct {
	mu      deadlock.RWMutex
	entries map[string]Entry
	now     func() time.Time
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: make(map[string]Entry), now: time.Now}
}

// Save implements Store.
func (s *MemoryStore) Save(ctx context.Context, name string, sp stagepipe.SerializedPipeline) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[name] = Entry{Name: name, Pipeline: sp.Clone(), UpdatedAt: s.now()}
	return nil
}

// Load implements Store.
func (s *MemoryStore) Load(ctx context.Context, name string) (Entry, error) {
	name, err := checkName(name)
	if err != nil {
		return Entry{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[name]
	if !ok {
		return Entry{}, notFound(name)
	}
	e.Pipeline = e.Pipeline.Clone()
	return e, nil
}

// List implements Store.
func (s *MemoryStore) List(ctx context.Context) ([]Entry, error) {
	s.mu.RLock()
	entries := make([]Entry, 0, len(s.entries))
	for _, e := range s.entries {
		e.Pipeline = e.Pipeline.Clone()
		entries = append(entries, e)
	}
	s.mu.RUnlock()

	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(ctx context.Context, name string) error {
	name, err := checkName(name)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.entries[name]; !ok {
		return notFound(name)
	}
	delete(s.entries, name)
	return nil
}

// Close implements Store.
func (s *MemoryStore) Close() error { return nil }
