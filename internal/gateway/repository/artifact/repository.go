package artifact

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"adflow/internal/artifact"
	"adflow/internal/utils"
)

// Store is the append-only, versioned log of stage outputs.
//
// Save never overwrites: a zero Version is assigned max+1 for the
// (project, type) pair, an explicit Version that already exists fails with
// ErrVersionConflict. Latest ignores status. All returns insertion order.
type Store interface {
	Save(ctx context.Context, a artifact.Artifact) (artifact.Artifact, error)
	Latest(ctx context.Context, projectID string, t artifact.Type) (artifact.Artifact, error)
	All(ctx context.Context, projectID string) ([]artifact.Artifact, error)
	Get(ctx context.Context, id string) (artifact.Artifact, error)
	// MarkReviewed records a review outcome on a version in review status.
	MarkReviewed(ctx context.Context, id string, status artifact.Status, notes string) (artifact.Artifact, error)
}

var (
	ErrNotFound          = errors.New("artifact not found")
	ErrVersionConflict   = errors.New("artifact version already exists")
	ErrInvalidTransition = errors.New("invalid artifact status transition")
	// ErrNoArtifact rejects a user edit of a type that has no version yet.
	ErrNoArtifact = errors.New("no artifact of this type to edit")
)

var now = func() time.Time { return time.Now().UTC() }

// prepare validates a new version and fills identity and timestamps.
// The version is left for the backend to assign.
func prepare(a artifact.Artifact) (artifact.Artifact, error) {
	a = a.Clone()
	a.ProjectID = strings.TrimSpace(a.ProjectID)
	if a.ProjectID == "" {
		return a, fmt.Errorf("project_id is required")
	}
	if _, err := artifact.ParseType(string(a.Type)); err != nil {
		return a, err
	}
	if a.Version < 0 {
		return a, fmt.Errorf("version must not be negative")
	}
	if a.Status == "" {
		a.Status = artifact.StatusPending
	}
	if len(a.Content) == 0 {
		a.Content = json.RawMessage("null")
	}
	if a.ID == "" {
		a.ID = utils.NewID()
	}
	ts := now()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = ts
	}
	a.UpdatedAt = ts
	return a, nil
}

func checkTransition(a artifact.Artifact, next artifact.Status) error {
	if !a.Status.CanMoveTo(next) {
		return fmt.Errorf("%w: %s v%d %s -> %s", ErrInvalidTransition, a.Type, a.Version, a.Status, next)
	}
	return nil
}

// EditLatest stores user-supplied content as a new user_edited version on
// top of the latest version of t. The superseded version is left untouched.
func EditLatest(ctx context.Context, s Store, projectID string, t artifact.Type, content json.RawMessage, feedback string) (artifact.Artifact, error) {
	if !json.Valid(content) {
		return artifact.Artifact{}, fmt.Errorf("edited content is not valid json")
	}
	if _, err := s.Latest(ctx, projectID, t); err != nil {
		if errors.Is(err, ErrNotFound) {
			return artifact.Artifact{}, fmt.Errorf("%w: %s", ErrNoArtifact, t)
		}
		return artifact.Artifact{}, err
	}
	return s.Save(ctx, artifact.Artifact{
		ProjectID:    projectID,
		Type:         t,
		Status:       artifact.StatusUserEdited,
		Content:      content,
		Producer:     artifact.UserProducer,
		UserFeedback: strings.TrimSpace(feedback),
	})
}

// LatestWithStatus walks back from the newest version of t and returns the
// first one in one of the given statuses.
func LatestWithStatus(ctx context.Context, s Store, projectID string, t artifact.Type, statuses ...artifact.Status) (artifact.Artifact, error) {
	all, err := s.All(ctx, projectID)
	if err != nil {
		return artifact.Artifact{}, err
	}
	best := -1
	for i, a := range all {
		if a.Type != t {
			continue
		}
		for _, st := range statuses {
			if a.Status == st && (best < 0 || a.Version > all[best].Version) {
				best = i
			}
		}
	}
	if best < 0 {
		return artifact.Artifact{}, ErrNotFound
	}
	return all[best], nil
}
