package project

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"

	"adflow/internal/types"
)

const tableProjects = "projects"

var projectColumns = []string{
	"id", "owner_id", "name", "url", "status", "current_stage",
	"brief", "settings", "interview", "error_message", "created_at", "updated_at",
}

// SQLStore persists projects in Postgres or SQLite. Nested structs are kept
// as JSON text columns.
type SQLStore struct {
	db      *sql.DB
	dialect string

	schemaMu    sync.Mutex
	schemaReady bool
}

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

// ensureSchema creates the tables on first use. A failed attempt is retried
// by the next call.
func (s *SQLStore) ensureSchema(ctx context.Context) error {
	s.schemaMu.Lock()
	defer s.schemaMu.Unlock()
	if s.schemaReady {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS projects (
    id TEXT PRIMARY KEY,
    owner_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL DEFAULT '',
    url TEXT NOT NULL,
    status TEXT NOT NULL,
    current_stage INTEGER NOT NULL DEFAULT 0,
    brief TEXT NOT NULL DEFAULT '',
    settings TEXT NOT NULL DEFAULT '',
    interview TEXT NOT NULL DEFAULT '',
    error_message TEXT NOT NULL DEFAULT '',
    created_at BIGINT NOT NULL,
    updated_at BIGINT NOT NULL
)`,
		`CREATE INDEX IF NOT EXISTS idx_projects_owner ON projects(owner_id)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("project schema: %w", err)
		}
	}
	s.schemaReady = true
	return nil
}

func (s *SQLStore) builder() *entsql.DialectBuilder { return entsql.Dialect(s.dialect) }

func (s *SQLStore) Create(ctx context.Context, p types.Project) (types.Project, error) {
	p, err := prepareNew(p)
	if err != nil {
		return types.Project{}, err
	}
	if err := s.ensureSchema(ctx); err != nil {
		return types.Project{}, err
	}
	if _, err := s.Get(ctx, p.ID); err == nil {
		return types.Project{}, fmt.Errorf("%w: %s", ErrExists, p.ID)
	}
	row, err := encodeRow(p)
	if err != nil {
		return types.Project{}, err
	}
	q, args := s.builder().Insert(tableProjects).Columns(projectColumns...).Values(row...).Query()
	if _, err := s.db.ExecContext(ctx, q, args...); err != nil {
		return types.Project{}, fmt.Errorf("insert project: %w", err)
	}
	return p, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (types.Project, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return types.Project{}, err
	}
	q, args := s.builder().Select(projectColumns...).From(entsql.Table(tableProjects)).
		Where(entsql.EQ("id", id)).Query()
	return scanProject(s.db.QueryRowContext(ctx, q, args...))
}

func (s *SQLStore) Update(ctx context.Context, id string, fn func(*types.Project) error) (types.Project, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return types.Project{}, err
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Project{}, err
	}
	defer func() { _ = tx.Rollback() }()

	sel := s.builder().Select(projectColumns...).From(entsql.Table(tableProjects)).Where(entsql.EQ("id", id))
	if s.dialect == dialect.Postgres {
		sel = sel.ForUpdate()
	}
	q, args := sel.Query()
	current, err := scanProject(tx.QueryRowContext(ctx, q, args...))
	if err != nil {
		return types.Project{}, err
	}
	next := current.Clone()
	if err := fn(&next); err != nil {
		return types.Project{}, err
	}
	next.ID = current.ID
	next.CreatedAt = current.CreatedAt
	next.UpdatedAt = now()

	row, err := encodeRow(next)
	if err != nil {
		return types.Project{}, err
	}
	upd := s.builder().Update(tableProjects)
	for i, col := range projectColumns {
		if col == "id" || col == "created_at" {
			continue
		}
		upd = upd.Set(col, row[i])
	}
	q, args = upd.Where(entsql.EQ("id", id)).Query()
	if _, err := tx.ExecContext(ctx, q, args...); err != nil {
		return types.Project{}, fmt.Errorf("update project: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Project{}, err
	}
	return next, nil
}

func (s *SQLStore) ListByOwner(ctx context.Context, ownerID string) ([]types.Project, error) {
	if err := s.ensureSchema(ctx); err != nil {
		return nil, err
	}
	q, args := s.builder().Select(projectColumns...).From(entsql.Table(tableProjects)).
		Where(entsql.EQ("owner_id", ownerID)).
		OrderBy(entsql.Desc("created_at"), entsql.Desc("id")).Query()
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]types.Project, 0, 8)
	for rows.Next() {
		p, err := scanProject(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// encodeRow returns values in projectColumns order.
func encodeRow(p types.Project) ([]any, error) {
	brief, err := jsonText(p.Brief)
	if err != nil {
		return nil, err
	}
	settings, err := jsonText(p.Settings)
	if err != nil {
		return nil, err
	}
	interview, err := jsonText(p.Interview)
	if err != nil {
		return nil, err
	}
	return []any{
		p.ID, p.OwnerID, p.Name, p.URL, string(p.Status), p.CurrentStage,
		brief, settings, interview, p.ErrorMessage, p.CreatedAt.UnixNano(), p.UpdatedAt.UnixNano(),
	}, nil
}

func jsonText[T any](v *T) (string, error) {
	if v == nil {
		return "", nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode project field: %w", err)
	}
	return string(b), nil
}

func fromJSONText[T any](s string) (*T, error) {
	if s == "" {
		return nil, nil
	}
	var v T
	if err := json.Unmarshal([]byte(s), &v); err != nil {
		return nil, fmt.Errorf("decode project field: %w", err)
	}
	return &v, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProject(row rowScanner) (types.Project, error) {
	var (
		p                          types.Project
		status                     string
		brief, settings, interview string
		created, updated           int64
	)
	err := row.Scan(&p.ID, &p.OwnerID, &p.Name, &p.URL, &status, &p.CurrentStage,
		&brief, &settings, &interview, &p.ErrorMessage, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Project{}, ErrNotFound
	}
	if err != nil {
		return types.Project{}, err
	}
	p.Status = types.Status(status)
	if p.Brief, err = fromJSONText[types.Brief](brief); err != nil {
		return types.Project{}, err
	}
	if p.Settings, err = fromJSONText[types.Settings](settings); err != nil {
		return types.Project{}, err
	}
	if p.Interview, err = fromJSONText[types.Interview](interview); err != nil {
		return types.Project{}, err
	}
	p.CreatedAt = time.Unix(0, created).UTC()
	p.UpdatedAt = time.Unix(0, updated).UTC()
	return p, nil
}
