package artifact

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"entgo.io/ent/dialect"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"adflow/internal/artifact"
	"adflow/internal/gateway/repository/asset"
)

func backends(t *testing.T) map[string]Store {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	sqlStore, err := NewSQLStore(db, dialect.SQLite)
	require.NoError(t, err)

	blobStore, err := NewBlobStore(asset.NewMemoryStore())
	require.NoError(t, err)

	return map[string]Store{
		"memory": NewMemoryStore(),
		"sqlite": sqlStore,
		"blob":   blobStore,
	}
}

func eachBackend(t *testing.T, fn func(t *testing.T, s Store)) {
	for name, s := range backends(t) {
		t.Run(name, func(t *testing.T) { fn(t, s) })
	}
}

func draft(projectID string, typ artifact.Type, content string) artifact.Artifact {
	return artifact.Artifact{
		ProjectID: projectID,
		Type:      typ,
		Status:    artifact.StatusReview,
		Content:   json.RawMessage(content),
		Producer:  "copywriter",
	}
}

func TestSaveAssignsVersions(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for i := 1; i <= 3; i++ {
			a, err := s.Save(ctx, draft("p1", artifact.TypeCopy, `{"n":1}`))
			require.NoError(t, err)
			assert.Equal(t, i, a.Version)
			assert.NotEmpty(t, a.ID)
		}
		other, err := s.Save(ctx, draft("p1", artifact.TypeStrategy, `{}`))
		require.NoError(t, err)
		assert.Equal(t, 1, other.Version)

		latest, err := s.Latest(ctx, "p1", artifact.TypeCopy)
		require.NoError(t, err)
		assert.Equal(t, 3, latest.Version)
		assert.JSONEq(t, `{"n":1}`, string(latest.Content))
	})
}

func TestLatestIgnoresWriteOrder(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, v := range []int{2, 3, 1} {
			a := draft("p1", artifact.TypeHypotheses, `{}`)
			a.Version = v
			_, err := s.Save(ctx, a)
			require.NoError(t, err)
		}
		latest, err := s.Latest(ctx, "p1", artifact.TypeHypotheses)
		require.NoError(t, err)
		assert.Equal(t, 3, latest.Version)

		dup := draft("p1", artifact.TypeHypotheses, `{}`)
		dup.Version = 2
		_, err = s.Save(ctx, dup)
		assert.True(t, errors.Is(err, ErrVersionConflict), "got %v", err)
	})
}

func TestLatestIgnoresStatus(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		approved := draft("p1", artifact.TypeCopy, `{}`)
		approved.Status = artifact.StatusApproved
		_, err := s.Save(ctx, approved)
		require.NoError(t, err)
		pending := draft("p1", artifact.TypeCopy, `{}`)
		pending.Status = artifact.StatusPending
		_, err = s.Save(ctx, pending)
		require.NoError(t, err)

		latest, err := s.Latest(ctx, "p1", artifact.TypeCopy)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusPending, latest.Status)

		best, err := LatestWithStatus(ctx, s, "p1", artifact.TypeCopy, artifact.StatusApproved)
		require.NoError(t, err)
		assert.Equal(t, 1, best.Version)
	})
}

func TestAllKeepsInsertionOrderAndProjects(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		order := []artifact.Type{artifact.TypeBrief, artifact.TypeStrategy, artifact.TypeBrief, artifact.TypeCopy}
		for _, typ := range order {
			_, err := s.Save(ctx, draft("p1", typ, `{}`))
			require.NoError(t, err)
		}
		_, err := s.Save(ctx, draft("p2", artifact.TypeCopy, `{}`))
		require.NoError(t, err)

		all, err := s.All(ctx, "p1")
		require.NoError(t, err)
		require.Len(t, all, len(order))
		for i, a := range all {
			assert.Equal(t, order[i], a.Type)
			assert.Equal(t, "p1", a.ProjectID)
		}
		assert.Equal(t, 2, all[2].Version)

		none, err := s.All(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, none)

		_, err = s.Latest(ctx, "nobody", artifact.TypeCopy)
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestMarkReviewed(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		a, err := s.Save(ctx, draft("p1", artifact.TypeCopy, `{"x":1}`))
		require.NoError(t, err)

		got, err := s.MarkReviewed(ctx, a.ID, artifact.StatusRevision, "score 5: tighten headlines")
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusRevision, got.Status)

		stored, err := s.Get(ctx, a.ID)
		require.NoError(t, err)
		assert.Equal(t, artifact.StatusRevision, stored.Status)
		assert.Equal(t, "score 5: tighten headlines", stored.ReviewNotes)
		assert.JSONEq(t, `{"x":1}`, string(stored.Content))
		assert.Equal(t, a.Version, stored.Version)

		_, err = s.MarkReviewed(ctx, a.ID, artifact.StatusApproved, "")
		assert.True(t, errors.Is(err, ErrInvalidTransition), "got %v", err)

		_, err = s.MarkReviewed(ctx, "missing", artifact.StatusApproved, "")
		assert.True(t, errors.Is(err, ErrNotFound))
	})
}

func TestEditLatest(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := EditLatest(ctx, s, "p1", artifact.TypeCopy, json.RawMessage(`{}`), "")
		assert.True(t, errors.Is(err, ErrNoArtifact), "got %v", err)

		orig := draft("p1", artifact.TypeCopy, `{"v":"agent"}`)
		orig.Status = artifact.StatusApproved
		first, err := s.Save(ctx, orig)
		require.NoError(t, err)

		edited, err := EditLatest(ctx, s, "p1", artifact.TypeCopy, json.RawMessage(`{"v":"user"}`), " shorter please ")
		require.NoError(t, err)
		assert.Equal(t, 2, edited.Version)
		assert.Equal(t, artifact.StatusUserEdited, edited.Status)
		assert.Equal(t, artifact.UserProducer, edited.Producer)
		assert.Equal(t, "shorter please", edited.UserFeedback)

		prev, err := s.Get(ctx, first.ID)
		require.NoError(t, err)
		assert.JSONEq(t, `{"v":"agent"}`, string(prev.Content))
		assert.Equal(t, artifact.StatusApproved, prev.Status)

		_, err = EditLatest(ctx, s, "p1", artifact.TypeCopy, json.RawMessage(`{not json`), "")
		assert.Error(t, err)
	})
}

func TestSaveValidates(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		_, err := s.Save(ctx, artifact.Artifact{Type: artifact.TypeCopy})
		assert.Error(t, err)
		_, err = s.Save(ctx, artifact.Artifact{ProjectID: "p1", Type: "poster"})
		assert.Error(t, err)
	})
}

func TestConcurrentSavesGetDistinctVersions(t *testing.T) {
	eachBackend(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		var wg sync.WaitGroup
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Save(ctx, draft("p1", artifact.TypeCopy, `{}`))
				assert.NoError(t, err)
			}()
		}
		wg.Wait()

		all, err := s.All(ctx, "p1")
		require.NoError(t, err)
		seen := map[int]bool{}
		for _, a := range all {
			assert.False(t, seen[a.Version], "duplicate version %d", a.Version)
			seen[a.Version] = true
		}
		assert.Len(t, seen, 10)
	})
}

func TestSQLSchemaRetriesAfterCanceledFirstCall(t *testing.T) {
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "artifacts.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })
	s, err := NewSQLStore(db, dialect.SQLite)
	require.NoError(t, err)

	canceled, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = s.Latest(canceled, "p1", artifact.TypeCopy)
	require.Error(t, err)

	a, err := s.Save(context.Background(), draft("p1", artifact.TypeCopy, `{}`))
	require.NoError(t, err)
	assert.Equal(t, 1, a.Version)
}
