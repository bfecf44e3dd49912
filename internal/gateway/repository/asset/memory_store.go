package asset

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

type blob struct {
	data        []byte
	contentType string
}

type MemoryStore struct {
	mu   sync.RWMutex
	data map[string]blob
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{data: make(map[string]blob)}
}

func (s *MemoryStore) Put(_ context.Context, key string, data []byte, contentType string) error {
	if s == nil {
		return fmt.Errorf("store is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.data[key] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return nil
}

func (s *MemoryStore) Get(_ context.Context, key string) ([]byte, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	key, err := normalizeKey(key)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.data[key]
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), b.data...), nil
}

// ContentType reports the stored content type of key.
func (s *MemoryStore) ContentType(key string) string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.data[strings.TrimLeft(key, "/")].contentType
}

func (s *MemoryStore) List(_ context.Context, prefix string) ([]string, error) {
	if s == nil {
		return nil, fmt.Errorf("store is nil")
	}
	prefix = strings.TrimLeft(strings.TrimSpace(prefix), "/")
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, 16)
	for key := range s.data {
		if strings.HasPrefix(key, prefix) {
			out = append(out, key)
		}
	}
	sort.Strings(out)
	return out, nil
}

// URL is empty: memory blobs are served by the gateway's asset route.
func (s *MemoryStore) URL(context.Context, string) (string, error) {
	return "", nil
}
