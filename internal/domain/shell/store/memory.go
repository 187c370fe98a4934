package store

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"
)

type memoryStore struct {
	mutex       sync.RWMutex
	generations map[string]map[string]Entry
	order       []string
}

// NewMemory builds an in-process store. Contents are lost on restart.
func NewMemory() Store {
	return &memoryStore{
		generations: make(map[string]map[string]Entry),
	}
}

func (s *memoryStore) open(generation string) map[string]Entry {
	entries, ok := s.generations[generation]
	if !ok {
		entries = make(map[string]Entry)
		s.generations[generation] = entries
		s.order = append(s.order, generation)
	}
	return entries
}

func (s *memoryStore) Open(_ context.Context, generation string) error {
	if generation == "" {
		return fmt.Errorf("generation name required")
	}
	s.mutex.Lock()
	s.open(generation)
	s.mutex.Unlock()
	return nil
}

func (s *memoryStore) Match(_ context.Context, generation, key string) (Entry, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entry, ok := s.generations[generation][key]
	if !ok {
		return Entry{}, false, nil
	}
	return entry.Clone(), true, nil
}

func (s *memoryStore) Put(_ context.Context, generation string, entry Entry) error {
	if entry.Key == "" {
		return fmt.Errorf("entry key required")
	}
	s.mutex.Lock()
	defer s.mutex.Unlock()

	target, ok := s.generations[generation]
	if !ok {
		return ErrGenerationNotFound
	}
	stored := entry.Clone()
	if stored.StoredAt.IsZero() {
		stored.StoredAt = time.Now()
	}
	target[entry.Key] = stored
	return nil
}

func (s *memoryStore) PutAll(_ context.Context, generation string, entries []Entry) error {
	if generation == "" {
		return fmt.Errorf("generation name required")
	}
	for _, entry := range entries {
		if entry.Key == "" {
			return fmt.Errorf("entry key required")
		}
	}

	now := time.Now()
	s.mutex.Lock()
	defer s.mutex.Unlock()

	target := s.open(generation)
	for _, entry := range entries {
		stored := entry.Clone()
		if stored.StoredAt.IsZero() {
			stored.StoredAt = now
		}
		target[entry.Key] = stored
	}
	return nil
}

func (s *memoryStore) Keys(_ context.Context, generation string) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	entries := s.generations[generation]
	keys := make([]string, 0, len(entries))
	for key := range entries {
		keys = append(keys, key)
	}
	slices.Sort(keys)
	return keys, nil
}

func (s *memoryStore) Generations(context.Context) ([]string, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	return slices.Clone(s.order), nil
}

func (s *memoryStore) Delete(_ context.Context, generation string) (bool, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.generations[generation]; !ok {
		return false, nil
	}
	delete(s.generations, generation)
	s.order = slices.DeleteFunc(s.order, func(name string) bool { return name == generation })
	return true, nil
}

func (s *memoryStore) Stats(context.Context) (map[string]any, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	total := 0
	for _, entries := range s.generations {
		total += len(entries)
	}
	return map[string]any{
		"type":        DriverMemory,
		"generations": len(s.generations),
		"entries":     total,
	}, nil
}

func (s *memoryStore) Close(context.Context) error {
	return nil
}
