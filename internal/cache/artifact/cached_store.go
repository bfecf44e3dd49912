package artifact

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"adflow/internal/artifact"
	artifactrepo "adflow/internal/gateway/repository/artifact"
)

type Store = artifactrepo.Store

type CacheConfig struct {
	ItemTTL        time.Duration
	ItemMaxEntries int

	ListTTL        time.Duration
	ListMaxEntries int
}

func DefaultCacheConfig() CacheConfig {
	return CacheConfig{
		ItemTTL:        5 * time.Minute,
		ItemMaxEntries: 1024,
		ListTTL:        30 * time.Second,
		ListMaxEntries: 512,
	}
}

type MetricsSnapshot struct {
	ItemHits       uint64
	ItemMisses     uint64
	LatestHits     uint64
	LatestMisses   uint64
	ListHits       uint64
	ListMisses     uint64
	OriginReads    uint64
	OriginWrites   uint64
	OriginReadErr  uint64
	OriginWriteErr uint64
}

type Metrics struct {
	itemHits       atomic.Uint64
	itemMisses     atomic.Uint64
	latestHits     atomic.Uint64
	latestMisses   atomic.Uint64
	listHits       atomic.Uint64
	listMisses     atomic.Uint64
	originReads    atomic.Uint64
	originWrites   atomic.Uint64
	originReadErr  atomic.Uint64
	originWriteErr atomic.Uint64
}

func (m *Metrics) snapshot() MetricsSnapshot {
	if m == nil {
		return MetricsSnapshot{}
	}
	return MetricsSnapshot{
		ItemHits:       m.itemHits.Load(),
		ItemMisses:     m.itemMisses.Load(),
		LatestHits:     m.latestHits.Load(),
		LatestMisses:   m.latestMisses.Load(),
		ListHits:       m.listHits.Load(),
		ListMisses:     m.listMisses.Load(),
		OriginReads:    m.originReads.Load(),
		OriginWrites:   m.originWrites.Load(),
		OriginReadErr:  m.originReadErr.Load(),
		OriginWriteErr: m.originWriteErr.Load(),
	}
}

// CachedStore is a read-through cache in front of an artifact Store. Writes go
// to the origin first; the project's list and latest entries are then dropped.
//
// Every write bumps gen. A read only fills the cache when gen did not move
// while it was at the origin, so a fill can never resurrect a value that a
// concurrent write already replaced.
type CachedStore struct {
	origin Store

	mu  sync.Mutex
	gen uint64

	items   *expirable.LRU[string, artifact.Artifact]
	latest  *expirable.LRU[string, artifact.Artifact]
	lists   *expirable.LRU[string, []artifact.Artifact]
	metrics Metrics
}

func NewCachedStore(origin Store, cfg CacheConfig) *CachedStore {
	def := DefaultCacheConfig()
	if cfg.ItemTTL <= 0 {
		cfg.ItemTTL = def.ItemTTL
	}
	if cfg.ItemMaxEntries <= 0 {
		cfg.ItemMaxEntries = def.ItemMaxEntries
	}
	if cfg.ListTTL <= 0 {
		cfg.ListTTL = def.ListTTL
	}
	if cfg.ListMaxEntries <= 0 {
		cfg.ListMaxEntries = def.ListMaxEntries
	}
	return &CachedStore{
		origin: origin,
		items:  expirable.NewLRU[string, artifact.Artifact](cfg.ItemMaxEntries, nil, cfg.ItemTTL),
		latest: expirable.NewLRU[string, artifact.Artifact](cfg.ItemMaxEntries, nil, cfg.ItemTTL),
		lists:  expirable.NewLRU[string, []artifact.Artifact](cfg.ListMaxEntries, nil, cfg.ListTTL),
	}
}

func latestKey(projectID string, t artifact.Type) string { return projectID + "/" + string(t) }

func (s *CachedStore) generation() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen
}

// invalidate records a write of a: dependent entries are dropped and a is
// cached by id.
func (s *CachedStore) invalidate(a artifact.Artifact) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.items.Remove(a.ID)
	s.latest.Remove(latestKey(a.ProjectID, a.Type))
	s.lists.Remove(a.ProjectID)
	s.items.Add(a.ID, a.Clone())
}

// fill runs add only if no write happened since gen was read.
func (s *CachedStore) fill(gen uint64, add func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen == gen {
		add()
	}
}

func (s *CachedStore) Save(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error) {
	s.metrics.originWrites.Add(1)
	saved, err := s.origin.Save(ctx, a)
	if err != nil {
		s.metrics.originWriteErr.Add(1)
		return artifact.Artifact{}, err
	}
	s.invalidate(saved)
	return saved, nil
}

func (s *CachedStore) MarkReviewed(ctx context.Context, id string, status artifact.Status, notes string) (artifact.Artifact, error) {
	s.metrics.originWrites.Add(1)
	updated, err := s.origin.MarkReviewed(ctx, id, status, notes)
	if err != nil {
		s.metrics.originWriteErr.Add(1)
		return artifact.Artifact{}, err
	}
	s.invalidate(updated)
	return updated, nil
}

func (s *CachedStore) Get(ctx context.Context, id string) (artifact.Artifact, error) {
	if a, ok := s.items.Get(id); ok {
		s.metrics.itemHits.Add(1)
		return a.Clone(), nil
	}
	s.metrics.itemMisses.Add(1)
	s.metrics.originReads.Add(1)
	gen := s.generation()
	a, err := s.origin.Get(ctx, id)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return artifact.Artifact{}, err
	}
	s.fill(gen, func() { s.items.Add(id, a.Clone()) })
	return a, nil
}

func (s *CachedStore) Latest(ctx context.Context, projectID string, t artifact.Type) (artifact.Artifact, error) {
	key := latestKey(projectID, t)
	if a, ok := s.latest.Get(key); ok {
		s.metrics.latestHits.Add(1)
		return a.Clone(), nil
	}
	s.metrics.latestMisses.Add(1)
	s.metrics.originReads.Add(1)
	gen := s.generation()
	a, err := s.origin.Latest(ctx, projectID, t)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return artifact.Artifact{}, err
	}
	s.fill(gen, func() { s.latest.Add(key, a.Clone()) })
	return a, nil
}

func (s *CachedStore) All(ctx context.Context, projectID string) ([]artifact.Artifact, error) {
	if list, ok := s.lists.Get(projectID); ok {
		s.metrics.listHits.Add(1)
		return cloneAll(list), nil
	}
	s.metrics.listMisses.Add(1)
	s.metrics.originReads.Add(1)
	gen := s.generation()
	list, err := s.origin.All(ctx, projectID)
	if err != nil {
		s.metrics.originReadErr.Add(1)
		return nil, err
	}
	s.fill(gen, func() { s.lists.Add(projectID, cloneAll(list)) })
	return list, nil
}

func cloneAll(in []artifact.Artifact) []artifact.Artifact {
	out := make([]artifact.Artifact, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

func (s *CachedStore) Metrics() MetricsSnapshot {
	if s == nil {
		return MetricsSnapshot{}
	}
	return s.metrics.snapshot()
}
