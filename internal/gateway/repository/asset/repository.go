package asset

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// Store keeps opaque blobs: rendered banners and serialized artifacts.
type Store interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
	Get(ctx context.Context, key string) ([]byte, error)
	// List returns keys under prefix in lexical order.
	List(ctx context.Context, prefix string) ([]string, error)
	// URL returns an address that serves the blob, or "" when the backend
	// cannot serve it directly.
	URL(ctx context.Context, key string) (string, error)
}

var ErrNotFound = errors.New("asset not found")

// Sink adapts a Store to the renderer's upload hook.
type Sink struct {
	Store Store
	// PublicPrefix is prepended to the key when the store has no URL of its own.
	PublicPrefix string
}

func (s Sink) PutAsset(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if s.Store == nil {
		return "", fmt.Errorf("asset store is nil")
	}
	if err := s.Store.Put(ctx, key, data, contentType); err != nil {
		return "", fmt.Errorf("put asset %s: %w", key, err)
	}
	u, err := s.Store.URL(ctx, key)
	if err != nil {
		return "", fmt.Errorf("asset url %s: %w", key, err)
	}
	if u == "" {
		u = strings.TrimRight(s.PublicPrefix, "/") + "/" + key
	}
	return u, nil
}

func normalizeKey(key string) (string, error) {
	key = strings.TrimLeft(strings.TrimSpace(key), "/")
	if key == "" {
		return "", fmt.Errorf("key is required")
	}
	if strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}
	return key, nil
}
