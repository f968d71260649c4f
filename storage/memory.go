// Package storage provides in-memory response storage.
//
// Information Hiding:
// - Map + recency list structure hidden from users
// - Thread-safe access via Mutex hidden behind interface
// - Suitable for testing and ephemeral sessions

package storage

import (
	"container/list"
	"context"
	"sync"

	"github.com/richinex/chunkmill/model"
)

type memoryEntry struct {
	req model.Request
	res model.Result
}

// InMemoryStorage implements ResponseStorage using an in-memory map keyed
// by the request tuple. Data is lost when process terminates.
//
// With a positive bound the least recently used entry is evicted once the
// bound is exceeded.
type InMemoryStorage struct {
	mu         sync.Mutex
	maxEntries int
	entries    map[model.Request]*list.Element
	recency    *list.List // front = most recently used
}

// NewInMemoryStorage creates a new in-memory storage. maxEntries <= 0 means
// unbounded.
func NewInMemoryStorage(maxEntries int) *InMemoryStorage {
	return &InMemoryStorage{
		maxEntries: max(maxEntries, 0),
		entries:    make(map[model.Request]*list.Element),
		recency:    list.New(),
	}
}

// Get returns the stored result for req.
func (s *InMemoryStorage) Get(ctx context.Context, req model.Request) (model.Result, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	el, ok := s.entries[req]
	if !ok {
		return model.Result{}, false, nil
	}
	s.recency.MoveToFront(el)
	return el.Value.(*memoryEntry).res, true, nil
}

// Put stores res for req.
func (s *InMemoryStorage) Put(ctx context.Context, req model.Request, res model.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[req]; ok {
		el.Value.(*memoryEntry).res = res
		s.recency.MoveToFront(el)
		return nil
	}

	s.entries[req] = s.recency.PushFront(&memoryEntry{req: req, res: res})
	if s.maxEntries > 0 && s.recency.Len() > s.maxEntries {
		oldest := s.recency.Back()
		s.recency.Remove(oldest)
		delete(s.entries, oldest.Value.(*memoryEntry).req)
	}
	return nil
}

// Delete removes the entry for req.
func (s *InMemoryStorage) Delete(ctx context.Context, req model.Request) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.entries[req]; ok {
		s.recency.Remove(el)
		delete(s.entries, req)
	}
	return nil
}

// Clear removes every entry.
func (s *InMemoryStorage) Clear(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = make(map[model.Request]*list.Element)
	s.recency.Init()
	return nil
}

// Len returns the number of stored entries.
func (s *InMemoryStorage) Len(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries), nil
}

// Verify InMemoryStorage implements ResponseStorage
var _ ResponseStorage = (*InMemoryStorage)(nil)
