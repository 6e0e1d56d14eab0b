package rendezvous

import (
	"context"
	"sync"
)

// MemoryStore is an in-process Store used by tests; the CLI commands use
// RedisStore.
type MemoryStore struct {
	mu        sync.Mutex
	documents map[string]map[string]PartialAnswer
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{documents: make(map[string]map[string]PartialAnswer)}
}

func (s *MemoryStore) Put(_ context.Context, queryKey, subKey string, value PartialAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc, ok := s.documents[queryKey]
	if !ok {
		doc = make(map[string]PartialAnswer)
		s.documents[queryKey] = doc
	}
	doc[subKey] = value
	return nil
}

func (s *MemoryStore) Get(_ context.Context, queryKey string) (map[string]PartialAnswer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	doc := s.documents[queryKey]
	out := make(map[string]PartialAnswer, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	return out, nil
}

func (s *MemoryStore) Delete(_ context.Context, queryKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.documents, queryKey)
	return nil
}

func (s *MemoryStore) Close() error { return nil }

var _ Store = (*MemoryStore)(nil)
