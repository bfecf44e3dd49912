package artifact

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"adflow/internal/artifact"
	"adflow/internal/utils"
)

const tableArtifacts = "artifacts"

var artifactColumns = []string{
	"id", "project_id", "type", "status", "version", "content",
	"producer", "review_notes", "user_feedback", "created_at", "updated_at",
}

// SQLStore persists artifacts in Postgres (pgx) or SQLite. Queries are built
// with the ent dialect builder so one code path serves both.
type SQLStore struct {
	db      *sql.DB
	dialect string
	locks   utils.KeyedMutex

	schemaMu    sync.Mutex
	schemaReady bool
}

// NewSQLStore wraps db. dialectName is dialect.Postgres or dialect.SQLite.
func NewSQLStore(db *sql.DB, dialectName string) (*SQLStore, error) {
	switch dialectName {
	case dialect.Postgres, dialect.SQLite:
	default:
		return nil, fmt.Errorf("unsupported sql dialect %q", dialectName)
	}
	if db == nil {
		return nil, fmt.Errorf("db is nil")
	}
	return &SQLStore{db: db, dialect: dialectName}, nil
}

func (s *SQLStore) schema() []string {
	seq := "seq BIGSERIAL PRIMARY KEY"
	if s.dialect == dialect.SQLite {
		seq = "seq INTEGER PRIMARY KEY AUTOINCREMENT"
	}
	return []string{
		`CREATE TABLE IF NOT EXISTS artifacts (
    ` + seq + `,
    id TEXT NOT NULL UNIQUE,
    project_id TEXT NOT NULL,
    type TEXT NOT NULL,
    status TEXT NOT NULL,
    version INTEGER NOT NULL,
    content TEXT NOT NULL,
    producer TEXT NOT NULL DEFAULT '',
    review_notes TEXT NOT NULL DEFAULT '',
    user_feedback TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL,
    UNIQUE(project_id, type, version)
)`,
		`CREATE INDEX IF NOT EXISTS idx_artifacts_project ON artifacts(project_id)`,
	}
}

// ensureSchema creates the table on first use. A failed attempt is retried by
// the next call.
func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	for _, stmt := range s.schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("artifact schema: %w", err)
		}
	}
	s.schemaReady = true
	return nil
}

func (s *SQLStore) builder() *entsql.DialectBuilder { return entsql.Dialect(s.dialect) }

func (s *SQLStore) Save(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error) {
	a, err := prepare(a)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return artifact.Artifact{}, err
	}
	unlock := s.locks.Lock(a.ProjectID)
	defer unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return artifact.Artifact{}, err
	}
	defer func() { _ = tx.Rollback() }()

	versionPred := entsql.And(entsql.EQ("project_id", a.ProjectID), entsql.EQ("type", string(a.Type)))
	if a.Version == 0 {
		q, args := s.builder().Select(entsql.Max("version")).From(entsql.Table(tableArtifacts)).Where(versionPred).Query()
		var maxVersion sql.NullInt64
		if err := tx.QueryRowContext(ctx, q, args...).Scan(&maxVersion); err != nil {
			return artifact.Artifact{}, fmt.Errorf("next version: %w", err)
		}
		a.Version = int(maxVersion.Int64) + 1
	} else {
		q, args := s.builder().Select("id").From(entsql.Table(tableArtifacts)).
			Where(entsql.And(versionPred, entsql.EQ("version", a.Version))).Query()
		var existing string
		switch err := tx.QueryRowContext(ctx, q, args...).Scan(&existing); {
		case err == nil:
			return artifact.Artifact{}, fmt.Errorf("%w: %s v%d", ErrVersionConflict, a.Type, a.Version)
		case !errors.Is(err, sql.ErrNoRows):
			return artifact.Artifact{}, err
		}
	}

	q, args := s.builder().Insert(tableArtifacts).Columns(artifactColumns...).Values(
		a.ID, a.ProjectID, string(a.Type), string(a.Status), a.Version, string(a.Content),
		a.Producer, a.ReviewNotes, a.UserFeedback, a.CreatedAt.UnixNano(), a.UpdatedAt.UnixNano(),
	).Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return artifact.Artifact{}, fmt.Errorf("insert artifact: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return artifact.Artifact{}, err
	}
	return a, nil
}

func (s *SQLStore) Latest(ctx context.Context, projectID string, t artifact.Type) (artifact.Artifact, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return artifact.Artifact{}, err
	}
	q, args := s.builder().Select(artifactColumns...).From(entsql.Table(tableArtifacts)).
		Where(entsql.And(entsql.EQ("project_id", projectID), entsql.EQ("type", string(t)))).
		OrderBy(entsql.Desc("version")).Limit(1).Query()
	return scanOne(s.db.QueryRowContext(ctx, q, args...))
}

func (s *SQLStore) All(ctx context.Context, projectID string) ([]artifact.Artifact, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q, args := s.builder().Select(artifactColumns...).From(entsql.Table(tableArtifacts)).
		Where(entsql.EQ("project_id", projectID)).OrderBy(entsql.Asc("seq")).Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]artifact.Artifact, 0, 16)
	for rows.Next() {
		a, err := scanOne(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *SQLStore) Get(ctx context.Context, id string) (artifact.Artifact, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return artifact.Artifact{}, err
	}
	q, args := s.builder().Select(artifactColumns...).From(entsql.Table(tableArtifacts)).
		Where(entsql.EQ("id", id)).Query()
	return scanOne(s.db.QueryRowContext(ctx, q, args...))
}

func (s *SQLStore) MarkReviewed(ctx context.Context, id string, status artifact.Status, notes string) (artifact.Artifact, error) {
	current, err := s.Get(ctx, id)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if err := checkTransition(current, status); err != nil {
		return artifact.Artifact{}, err
	}
	ts := now()
	q, args := s.builder().Update(tableArtifacts).
		Set("status", string(status)).
		Set("review_notes", notes).
		Set("updated_at", ts.UnixNano()).
		Where(entsql.And(entsql.EQ("id", id), entsql.EQ("status", string(artifact.StatusReview)))).
		Query()
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("mark reviewed: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		// Someone else recorded a verdict between the read and the update.
		return artifact.Artifact{}, fmt.Errorf("%w: %s is no longer in review", ErrInvalidTransition, id)
	}
	current.Status = status
	current.ReviewNotes = notes
	current.UpdatedAt = ts
	return current, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOne(row rowScanner) (artifact.Artifact, error) {
	var (
		a                 artifact.Artifact
		typ, status, body string
		created, updated  int64
	)
	err := row.Scan(&a.ID, &a.ProjectID, &typ, &status, &a.Version, &body,
		&a.Producer, &a.ReviewNotes, &a.UserFeedback, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return artifact.Artifact{}, ErrNotFound
	}
	if err != nil {
		return artifact.Artifact{}, err
	}
	a.Type = artifact.Type(typ)
	a.Status = artifact.Status(status)
	a.Content = []byte(body)
	a.CreatedAt = time.Unix(0, created).UTC()
	a.UpdatedAt = time.Unix(0, updated).UTC()
	return a, nil
}
