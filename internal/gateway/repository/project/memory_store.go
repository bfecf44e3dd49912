package project

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"adflow/internal/types"
)

type MemoryStore struct {
	mu   sync.RWMutex
	byID map[string]types.Project
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]types.Project)}
}

func (s *MemoryStore) Create(_ context.Context, p types.Project) (types.Project, error) {
	p, err := prepareNew(p)
	if err != nil {
		return types.Project{}, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byID[p.ID]; ok {
		return types.Project{}, fmt.Errorf("%w: %s", ErrExists, p.ID)
	}
	s.byID[p.ID] = p
	return p.Clone(), nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (types.Project, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.byID[id]
	if !ok {
		return types.Project{}, ErrNotFound
	}
	return p.Clone(), nil
}

func (s *MemoryStore) Update(_ context.Context, id string, fn func(*types.Project) error) (types.Project, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.byID[id]
	if !ok {
		return types.Project{}, ErrNotFound
	}
	next := p.Clone()
	if err := fn(&next); err != nil {
		return types.Project{}, err
	}
	next.ID = p.ID
	next.CreatedAt = p.CreatedAt
	next.UpdatedAt = now()
	s.byID[id] = next
	return next.Clone(), nil
}

func (s *MemoryStore) ListByOwner(_ context.Context, ownerID string) ([]types.Project, error) {
	s.mu.RLock()
	out := make([]types.Project, 0, 8)
	for _, p := range s.byID {
		if p.OwnerID == ownerID {
			out = append(out, p.Clone())
		}
	}
	s.mu.RUnlock()
	sortNewestFirst(out)
	return out, nil
}

func sortNewestFirst(ps []types.Project) {
	sort.SliceStable(ps, func(i, j int) bool {
		if ps[i].CreatedAt.Equal(ps[j].CreatedAt) {
			return ps[i].ID > ps[j].ID
		}
		return ps[i].CreatedAt.After(ps[j].CreatedAt)
	})
}
