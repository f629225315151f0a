package registry

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Mapping records which bucket currently backs a template.
type Mapping struct {
	Template    string    `json:"template"`
	Environment string    `json:"environment"`
	Bucket      string    `json:"bucket"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// Store persists the registry: the template to bucket mappings and the set
// of buckets this service created or adopted.
type Store interface {
	GetMapping(ctx context.Context, template string) (Mapping, bool, error)
	PutMapping(ctx context.Context, m Mapping) error
	DeleteMapping(ctx context.Context, template string) error
	// DeleteMappingsForBucket drops every mapping that points at bucket.
	DeleteMappingsForBucket(ctx context.Context, bucket string) error
	// Mappings returns every mapping ordered by template.
	Mappings(ctx context.Context) ([]Mapping, error)

	AddBucket(ctx context.Context, name string) error
	RemoveBucket(ctx context.Context, name string) error
	// Buckets returns the tracked bucket names, sorted.
	Buckets(ctx context.Context) ([]string, error)

	Close() error
}

// MemoryStore is a process-local Store. Its contents are lost on restart.
type MemoryStore struct {
	mu       sync.RWMutex
	mappings map[string]Mapping
	buckets  map[string]time.Time
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		mappings: make(map[string]Mapping),
		buckets:  make(map[string]time.Time),
	}
}

func (s *MemoryStore) GetMapping(_ context.Context, template string) (Mapping, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.mappings[template]
	return m, ok, nil
}

func (s *MemoryStore) PutMapping(_ context.Context, m Mapping) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.UpdatedAt.IsZero() {
		m.UpdatedAt = time.Now().UTC()
	}
	s.mappings[m.Template] = m
	return nil
}

func (s *MemoryStore) DeleteMapping(_ context.Context, template string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.mappings, template)
	return nil
}

func (s *MemoryStore) DeleteMappingsForBucket(_ context.Context, bucket string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for template, m := range s.mappings {
		if m.Bucket == bucket {
			delete(s.mappings, template)
		}
	}
	return nil
}

func (s *MemoryStore) Mappings(_ context.Context) ([]Mapping, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Mapping, 0, len(s.mappings))
	for _, m := range s.mappings {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Template < out[j].Template })
	return out, nil
}

func (s *MemoryStore) AddBucket(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.buckets[name]; !ok {
		s.buckets[name] = time.Now().UTC()
	}
	return nil
}

func (s *MemoryStore) RemoveBucket(_ context.Context, name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.buckets, name)
	return nil
}

func (s *MemoryStore) Buckets(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.buckets))
	for name := range s.buckets {
		out = append(out, name)
	}
	sort.Strings(out)
	return out, nil
}

func (s *MemoryStore) Close() error { return nil }
