package asset

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()

	require.NoError(t, s.Put(ctx, "/banners/c1/a.png", []byte("png"), "image/png"))
	require.NoError(t, s.Put(ctx, "banners/c2/b.png", []byte("png2"), "image/png"))
	require.NoError(t, s.Put(ctx, "artifacts/p1/x.json", []byte("{}"), "application/json"))

	got, err := s.Get(ctx, "banners/c1/a.png")
	require.NoError(t, err)
	assert.Equal(t, []byte("png"), got)
	assert.Equal(t, "image/png", s.ContentType("banners/c1/a.png"))

	keys, err := s.List(ctx, "banners/")
	require.NoError(t, err)
	assert.Equal(t, []string{"banners/c1/a.png", "banners/c2/b.png"}, keys)

	_, err = s.Get(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound))

	assert.Error(t, s.Put(ctx, "  ", nil, ""))
	assert.Error(t, s.Put(ctx, "a/../b", nil, ""))
}

func TestSinkFallsBackToPublicPrefix(t *testing.T) {
	s := NewMemoryStore()
	u, err := Sink{Store: s, PublicPrefix: "/assets/"}.PutAsset(context.Background(), "banners/c1/a.png", []byte("x"), "image/png")
	require.NoError(t, err)
	assert.Equal(t, "/assets/banners/c1/a.png", u)

	_, err = Sink{}.PutAsset(context.Background(), "k", nil, "")
	assert.Error(t, err)
}

func TestS3ConfigCanUse(t *testing.T) {
	assert.False(t, S3Config{Endpoint: "minio:9000"}.CanUse())
	assert.True(t, S3Config{Endpoint: "minio:9000", AccessKey: "a", SecretKey: "s", Bucket: "b"}.CanUse())
	_, err := NewS3Store(S3Config{})
	assert.Error(t, err)
}
