package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path"
	"strconv"
	"strings"

	"adflow/internal/artifact"
	"adflow/internal/gateway/repository/asset"
	"adflow/internal/utils"
)

// BlobStore keeps each artifact version as a JSON object in an asset store
// (S3/MinIO in production). Object keys carry a per-project sequence so a
// lexical listing is insertion order:
//
//	artifacts/<project>/<seq>-<type>-v<version>.json
//	artifact-ids/<id>  ->  object key of that artifact
type BlobStore struct {
	blobs asset.Store
	locks utils.KeyedMutex
}

func NewBlobStore(blobs asset.Store) (*BlobStore, error) {
	if blobs == nil {
		return nil, fmt.Errorf("asset store is nil")
	}
	return &BlobStore{blobs: blobs}, nil
}

const jsonContentType = "application/json"

func projectPrefix(projectID string) string { return "artifacts/" + projectID + "/" }

func idKey(id string) string { return "artifact-ids/" + id }

func objectKey(projectID string, seq int, t artifact.Type, version int) string {
	return fmt.Sprintf("%s%08d-%s-v%d.json", projectPrefix(projectID), seq, t, version)
}

// parseObjectKey extracts type and version from an object key's base name.
func parseObjectKey(key string) (artifact.Type, int, bool) {
	base := strings.TrimSuffix(path.Base(key), ".json")
	_, rest, ok := strings.Cut(base, "-")
	if !ok {
		return "", 0, false
	}
	i := strings.LastIndex(rest, "-v")
	if i < 0 {
		return "", 0, false
	}
	v, err := strconv.Atoi(rest[i+2:])
	if err != nil {
		return "", 0, false
	}
	return artifact.Type(rest[:i]), v, true
}

func (s *BlobStore) Save(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error) {
	a, err := prepare(a)
	if err != nil {
		return artifact.Artifact{}, err
	}
	unlock := s.locks.Lock(a.ProjectID)
	defer unlock()

	keys, err := s.blobs.List(ctx, projectPrefix(a.ProjectID))
	if err != nil {
		return artifact.Artifact{}, err
	}
	maxVersion := 0
	for _, k := range keys {
		t, v, ok := parseObjectKey(k)
		if !ok || t != a.Type {
			continue
		}
		if v == a.Version {
			return artifact.Artifact{}, fmt.Errorf("%w: %s v%d", ErrVersionConflict, a.Type, a.Version)
		}
		maxVersion = max(maxVersion, v)
	}
	if a.Version == 0 {
		a.Version = maxVersion + 1
	}

	key := objectKey(a.ProjectID, len(keys)+1, a.Type, a.Version)
	if err := s.write(ctx, key, a); err != nil {
		return artifact.Artifact{}, err
	}
	if err := s.blobs.Put(ctx, idKey(a.ID), []byte(key), "text/plain"); err != nil {
		return artifact.Artifact{}, fmt.Errorf("index artifact %s: %w", a.ID, err)
	}
	return a, nil
}

func (s *BlobStore) write(ctx context.Context, key string, a artifact.Artifact) error {
	raw, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("encode artifact: %w", err)
	}
	if err := s.blobs.Put(ctx, key, raw, jsonContentType); err != nil {
		return fmt.Errorf("write artifact %s: %w", key, err)
	}
	return nil
}

func (s *BlobStore) read(ctx context.Context, key string) (artifact.Artifact, error) {
	raw, err := s.blobs.Get(ctx, key)
	if errors.Is(err, asset.ErrNotFound) {
		return artifact.Artifact{}, ErrNotFound
	}
	if err != nil {
		return artifact.Artifact{}, err
	}
	var a artifact.Artifact
	if err := json.Unmarshal(raw, &a); err != nil {
		return artifact.Artifact{}, fmt.Errorf("decode artifact %s: %w", key, err)
	}
	return a, nil
}

func (s *BlobStore) Latest(ctx context.Context, projectID string, t artifact.Type) (artifact.Artifact, error) {
	keys, err := s.blobs.List(ctx, projectPrefix(projectID))
	if err != nil {
		return artifact.Artifact{}, err
	}
	bestKey, bestVersion := "", 0
	for _, k := range keys {
		kt, v, ok := parseObjectKey(k)
		if ok && kt == t && v > bestVersion {
			bestKey, bestVersion = k, v
		}
	}
	if bestKey == "" {
		return artifact.Artifact{}, ErrNotFound
	}
	return s.read(ctx, bestKey)
}

func (s *BlobStore) All(ctx context.Context, projectID string) ([]artifact.Artifact, error) {
	keys, err := s.blobs.List(ctx, projectPrefix(projectID))
	if err != nil {
		return nil, err
	}
	out := make([]artifact.Artifact, 0, len(keys))
	for _, k := range keys {
		a, err := s.read(ctx, k)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *BlobStore) keyOf(ctx context.Context, id string) (string, error) {
	raw, err := s.blobs.Get(ctx, idKey(id))
	if errors.Is(err, asset.ErrNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (s *BlobStore) Get(ctx context.Context, id string) (artifact.Artifact, error) {
	key, err := s.keyOf(ctx, id)
	if err != nil {
		return artifact.Artifact{}, err
	}
	return s.read(ctx, key)
}

func (s *BlobStore) MarkReviewed(ctx context.Context, id string, status artifact.Status, notes string) (artifact.Artifact, error) {
	key, err := s.keyOf(ctx, id)
	if err != nil {
		return artifact.Artifact{}, err
	}
	a, err := s.read(ctx, key)
	if err != nil {
		return artifact.Artifact{}, err
	}
	unlock := s.locks.Lock(a.ProjectID)
	defer unlock()

	// Re-read under the lock; the first read only located the project.
	if a, err = s.read(ctx, key); err != nil {
		return artifact.Artifact{}, err
	}
	if err := checkTransition(a, status); err != nil {
		return artifact.Artifact{}, err
	}
	a.Status = status
	a.ReviewNotes = notes
	a.UpdatedAt = now()
	if err := s.write(ctx, key, a); err != nil {
		return artifact.Artifact{}, err
	}
	return a, nil
}
