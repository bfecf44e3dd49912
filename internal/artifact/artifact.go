package artifact

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Type names the stage output an artifact holds.
type Type string

const (
	TypeBrief      Type = "brief"
	TypeQuestions  Type = "questions"
	TypeStrategy   Type = "strategy"
	TypeHypotheses Type = "hypotheses"
	TypeCopy       Type = "copy"
	TypeBanners    Type = "banners"
)

var allTypes = []Type{TypeBrief, TypeQuestions, TypeStrategy, TypeHypotheses, TypeCopy, TypeBanners}

func Types() []Type { return append([]Type(nil), allTypes...) }

func ParseType(raw string) (Type, error) {
	t := Type(strings.ToLower(strings.TrimSpace(raw)))
	for _, known := range allTypes {
		if t == known {
			return t, nil
		}
	}
	return "", fmt.Errorf("unknown artifact type %q", raw)
}

// Status is the lifecycle state of one artifact version.
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in_progress"
	StatusReview     Status = "review"
	StatusRevision   Status = "revision"
	StatusApproved   Status = "approved"
	StatusUserEdited Status = "user_edited"
)

// CanMoveTo reports whether a stored artifact may change from s to next.
// Only the outcome of a review may be recorded after the write.
func (s Status) CanMoveTo(next Status) bool {
	return s == StatusReview && (next == StatusApproved || next == StatusRevision)
}

// UserProducer attributes user-edited versions.
const UserProducer = "user"

// Artifact is one immutable version of a stage output.
type Artifact struct {
	ID           string          `json:"id"`
	ProjectID    string          `json:"project_id"`
	Type         Type            `json:"type"`
	Status       Status          `json:"status"`
	Version      int             `json:"version"`
	Content      json.RawMessage `json:"content"`
	Producer     string          `json:"producer"`
	ReviewNotes  string          `json:"review_notes,omitempty"`
	UserFeedback string          `json:"user_feedback,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Clone copies the artifact including its content bytes.
func (a Artifact) Clone() Artifact {
	out := a
	out.Content = append(json.RawMessage(nil), a.Content...)
	return out
}

// Decode unmarshals the artifact content into v.
func (a Artifact) Decode(v any) error {
	if len(a.Content) == 0 {
		return fmt.Errorf("artifact %s v%d: empty content", a.Type, a.Version)
	}
	if err := json.Unmarshal(a.Content, v); err != nil {
		return fmt.Errorf("artifact %s v%d: %w", a.Type, a.Version, err)
	}
	return nil
}

// EncodeContent marshals a stage payload for storage.
func EncodeContent(v any) (json.RawMessage, error) {
	if raw, ok := v.(json.RawMessage); ok {
		return append(json.RawMessage(nil), raw...), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode artifact content: %w", err)
	}
	return b, nil
}
