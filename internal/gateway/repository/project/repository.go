package project

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"adflow/internal/types"
	"adflow/internal/utils"
)

// Store persists projects. Update applies fn atomically: when fn returns an
// error nothing is written and that error is returned unchanged.
type Store interface {
	Create(ctx context.Context, p types.Project) (types.Project, error)
	Get(ctx context.Context, id string) (types.Project, error)
	Update(ctx context.Context, id string, fn func(*types.Project) error) (types.Project, error)
	// ListByOwner returns the owner's projects, newest first.
	ListByOwner(ctx context.Context, ownerID string) ([]types.Project, error)
}

var (
	ErrNotFound = errors.New("project not found")
	ErrExists   = errors.New("project already exists")
)

var now = func() time.Time { return time.Now().UTC() }

func prepareNew(p types.Project) (types.Project, error) {
	p = p.Clone()
	p.URL = strings.TrimSpace(p.URL)
	if p.URL == "" {
		return p, fmt.Errorf("url is required")
	}
	if p.ID == "" {
		p.ID = utils.NewID()
	}
	if p.Status == "" {
		p.Status = types.StatusCreated
	}
	ts := now()
	p.CreatedAt, p.UpdatedAt = ts, ts
	return p, nil
}
