package artifact

import (
	"context"
	"fmt"
	"sync"

	"adflow/internal/artifact"
)

// projectLog is one project's artifacts in insertion order.
type projectLog struct {
	mu    sync.RWMutex
	items []artifact.Artifact
}

// MemoryStore keeps artifacts in process. Each project has its own lock;
// the outer lock only guards the project and id maps.
type MemoryStore struct {
	mu       sync.RWMutex
	projects map[string]*projectLog
	byID     map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		projects: make(map[string]*projectLog),
		byID:     make(map[string]string),
	}
}

func (s *MemoryStore) log(projectID string, create bool) *projectLog {
	s.mu.RLock()
	l := s.projects[projectID]
	s.mu.RUnlock()
	if l != nil || !create {
		return l
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if l = s.projects[projectID]; l == nil {
		l = &projectLog{}
		s.projects[projectID] = l
	}
	return l
}

func (s *MemoryStore) Save(_ context.Context, a artifact.Artifact) (artifact.Artifact, error) {
	a, err := prepare(a)
	if err != nil {
		return artifact.Artifact{}, err
	}
	l := s.log(a.ProjectID, true)
	l.mu.Lock()
	maxVersion := 0
	for _, it := range l.items {
		if it.Type != a.Type {
			continue
		}
		if it.Version == a.Version {
			l.mu.Unlock()
			return artifact.Artifact{}, fmt.Errorf("%w: %s v%d", ErrVersionConflict, a.Type, a.Version)
		}
		maxVersion = max(maxVersion, it.Version)
	}
	if a.Version == 0 {
		a.Version = maxVersion + 1
	}
	l.items = append(l.items, a)
	l.mu.Unlock()

	s.mu.Lock()
	s.byID[a.ID] = a.ProjectID
	s.mu.Unlock()
	return a.Clone(), nil
}

func (s *MemoryStore) Latest(_ context.Context, projectID string, t artifact.Type) (artifact.Artifact, error) {
	l := s.log(projectID, false)
	if l == nil {
		return artifact.Artifact{}, ErrNotFound
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	best := -1
	for i, it := range l.items {
		if it.Type == t && (best < 0 || it.Version > l.items[best].Version) {
			best = i
		}
	}
	if best < 0 {
		return artifact.Artifact{}, ErrNotFound
	}
	return l.items[best].Clone(), nil
}

func (s *MemoryStore) All(_ context.Context, projectID string) ([]artifact.Artifact, error) {
	l := s.log(projectID, false)
	if l == nil {
		return []artifact.Artifact{}, nil
	}
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]artifact.Artifact, 0, len(l.items))
	for _, it := range l.items {
		out = append(out, it.Clone())
	}
	return out, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (artifact.Artifact, error) {
	l, idx := s.locate(id)
	if l == nil {
		return artifact.Artifact{}, ErrNotFound
	}
	defer l.mu.RUnlock()
	return l.items[idx].Clone(), nil
}

// locate returns the project log holding id, read-locked, and the index.
func (s *MemoryStore) locate(id string) (*projectLog, int) {
	s.mu.RLock()
	projectID, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return nil, -1
	}
	l := s.log(projectID, false)
	if l == nil {
		return nil, -1
	}
	l.mu.RLock()
	for i, it := range l.items {
		if it.ID == id {
			return l, i
		}
	}
	l.mu.RUnlock()
	return nil, -1
}

func (s *MemoryStore) MarkReviewed(_ context.Context, id string, status artifact.Status, notes string) (artifact.Artifact, error) {
	s.mu.RLock()
	projectID, ok := s.byID[id]
	s.mu.RUnlock()
	if !ok {
		return artifact.Artifact{}, ErrNotFound
	}
	l := s.log(projectID, false)
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range l.items {
		it := &l.items[i]
		if it.ID != id {
			continue
		}
		if err := checkTransition(*it, status); err != nil {
			return artifact.Artifact{}, err
		}
		it.Status = status
		it.ReviewNotes = notes
		it.UpdatedAt = now()
		return it.Clone(), nil
	}
	return artifact.Artifact{}, ErrNotFound
}
