package project

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"go.uber.org/zap"

	"adflow/internal/artifact"
	artifactrepo "adflow/internal/gateway/repository/artifact"
	projectrepo "adflow/internal/gateway/repository/project"
	"adflow/internal/pipeline"
	"adflow/internal/types"
)

// ErrInvalidArgument marks a request the caller has to fix.
var ErrInvalidArgument = errors.New("invalid argument")

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidArgument, fmt.Sprintf(format, args...))
}

// Service is the trigger surface: project lifecycle, answers, status,
// events, artifacts and post-completion refinement.
type Service struct {
	runner    *pipeline.Runner
	pipeline  *pipeline.Pipeline
	projects  projectrepo.Store
	artifacts artifactrepo.Store
	log       *zap.Logger
}

func New(runner *pipeline.Runner, log *zap.Logger) *Service {
	if log == nil {
		log = zap.NewNop()
	}
	p := runner.Pipeline()
	return &Service{
		runner:    runner,
		pipeline:  p,
		projects:  p.Projects(),
		artifacts: p.Artifacts(),
		log:       log,
	}
}

// StatusView is a project plus what the runner knows about it.
type StatusView struct {
	Project types.Project      `json:"project"`
	Running bool               `json:"running"`
	LLM     *pipeline.LLMUsage `json:"llm,omitempty"`
}

func (s *Service) CreateProject(ctx context.Context, ownerID, rawURL, name string) (types.Project, error) {
	rawURL = strings.TrimSpace(rawURL)
	if rawURL == "" {
		return types.Project{}, invalid("url is required")
	}
	if !strings.Contains(rawURL, "://") {
		rawURL = "https://" + rawURL
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return types.Project{}, invalid("url %q is not an http(s) address", rawURL)
	}
	p, err := s.projects.Create(ctx, types.Project{
		OwnerID: strings.TrimSpace(ownerID),
		Name:    strings.TrimSpace(name),
		URL:     u.String(),
	})
	if err != nil {
		return types.Project{}, err
	}
	s.log.Info("project created", zap.String("project_id", p.ID), zap.String("url", p.URL))
	return p, nil
}

// StartPipeline launches the run in the background and returns at once.
func (s *Service) StartPipeline(ctx context.Context, projectID string) (StatusView, error) {
	if _, err := s.runner.Start(ctx, projectID); err != nil {
		return StatusView{}, err
	}
	return s.GetStatus(ctx, projectID)
}

// SubmitAnswers validates and stores the answers synchronously, then
// resumes the pipeline in the background.
func (s *Service) SubmitAnswers(ctx context.Context, projectID string, answers map[string]any) (StatusView, error) {
	if _, err := s.runner.Submit(ctx, projectID, answers); err != nil {
		return StatusView{}, err
	}
	return s.GetStatus(ctx, projectID)
}

// CancelRun stops the in-flight run of a project, if any.
func (s *Service) CancelRun(ctx context.Context, projectID string) (StatusView, error) {
	if run, ok := s.runner.Active(projectID); ok {
		run.Cancel()
		<-run.Done()
	}
	return s.GetStatus(ctx, projectID)
}

func (s *Service) GetStatus(ctx context.Context, projectID string) (StatusView, error) {
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		return StatusView{}, err
	}
	_, running := s.runner.Active(projectID)
	view := StatusView{Project: p, Running: running}
	if u, ok := s.pipeline.LLMUsage(projectID); ok {
		view.LLM = &u
	}
	return view, nil
}

func (s *Service) ListProjects(ctx context.Context, ownerID string) ([]types.Project, error) {
	return s.projects.ListByOwner(ctx, strings.TrimSpace(ownerID))
}

// StreamEvents follows a project's events until its run completes or fails.
// For a project already at rest the stream carries one synthetic event
// describing that state and closes.
//
// The subscription is taken before the status is read, so a run that ends in
// between is still seen: either its final event is buffered or the status
// read already reflects it.
func (s *Service) StreamEvents(ctx context.Context, projectID string, untilPause bool) (<-chan pipeline.Event, error) {
	opts := pipeline.StreamOptions{UntilPause: untilPause}
	live, stop := s.pipeline.Events().Follow(ctx, projectID, opts)
	p, err := s.projects.Get(ctx, projectID)
	if err != nil {
		stop()
		return nil, err
	}
	final := restingEvent(p, untilPause)
	if final == nil {
		return live, nil
	}

	stop()
	var buffered []pipeline.Event
	closed := false
	for ev := range live {
		buffered = append(buffered, ev)
		closed = closed || opts.Closes(ev)
	}
	if !closed {
		buffered = append(buffered, *final)
	}
	ch := make(chan pipeline.Event, len(buffered))
	for _, ev := range buffered {
		ch <- ev
	}
	close(ch)
	return ch, nil
}

// restingEvent describes a project no run will move on its own, or returns
// nil.
func restingEvent(p types.Project, untilPause bool) *pipeline.Event {
	switch {
	case p.Status == types.StatusCompleted:
		return &pipeline.Event{Type: pipeline.EventPipelineComplete, ProjectID: p.ID, Status: p.Status, Data: map[string]any{"project_id": p.ID}}
	case p.Status == types.StatusFailed:
		return &pipeline.Event{Type: pipeline.EventPipelineError, ProjectID: p.ID, Status: p.Status, Data: map[string]any{"error": p.ErrorMessage}}
	case p.Status == types.StatusQuestions && untilPause:
		return &pipeline.Event{Type: pipeline.EventStatusChanged, ProjectID: p.ID, Status: p.Status}
	}
	return nil
}

func (s *Service) ListArtifacts(ctx context.Context, projectID string) ([]artifact.Artifact, error) {
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return nil, err
	}
	return s.artifacts.All(ctx, projectID)
}

func (s *Service) LatestArtifact(ctx context.Context, projectID, rawType string) (artifact.Artifact, error) {
	t, err := artifact.ParseType(rawType)
	if err != nil {
		return artifact.Artifact{}, invalid("%v", err)
	}
	return s.artifacts.Latest(ctx, projectID, t)
}

func (s *Service) GetArtifact(ctx context.Context, artifactID string) (artifact.Artifact, error) {
	return s.artifacts.Get(ctx, strings.TrimSpace(artifactID))
}

// EditArtifact stores user content as a new user_edited version.
func (s *Service) EditArtifact(ctx context.Context, projectID, rawType string, content json.RawMessage, feedback string) (artifact.Artifact, error) {
	t, err := artifact.ParseType(rawType)
	if err != nil {
		return artifact.Artifact{}, invalid("%v", err)
	}
	if !json.Valid(content) {
		return artifact.Artifact{}, invalid("content is not valid json")
	}
	if _, err := s.projects.Get(ctx, projectID); err != nil {
		return artifact.Artifact{}, err
	}
	a, err := artifactrepo.EditLatest(ctx, s.artifacts, projectID, t, content, feedback)
	if err != nil {
		return artifact.Artifact{}, err
	}
	s.log.Info("artifact edited", zap.String("project_id", projectID), zap.String("type", string(t)), zap.Int("version", a.Version))
	return a, nil
}

func (s *Service) RegenerateItem(ctx context.Context, projectID, itemID, feedback string) (artifact.Artifact, error) {
	if strings.TrimSpace(itemID) == "" {
		return artifact.Artifact{}, invalid("item_id is required")
	}
	return s.pipeline.RegenerateItem(ctx, projectID, strings.TrimSpace(itemID), feedback)
}

func (s *Service) CreateVariation(ctx context.Context, projectID, itemID, kind string) (artifact.Artifact, error) {
	k, err := pipeline.ParseVariationKind(kind)
	if err != nil {
		return artifact.Artifact{}, err
	}
	if strings.TrimSpace(itemID) == "" {
		return artifact.Artifact{}, invalid("item_id is required")
	}
	return s.pipeline.CreateVariation(ctx, projectID, strings.TrimSpace(itemID), k)
}

func (s *Service) GenerateMore(ctx context.Context, projectID, platform string, count int) (artifact.Artifact, error) {
	pl, err := artifact.ParsePlatform(platform)
	if err != nil {
		return artifact.Artifact{}, invalid("%v", err)
	}
	return s.pipeline.GenerateMore(ctx, projectID, pl, count)
}

func (s *Service) Summary(ctx context.Context, projectID string) (string, error) {
	return s.pipeline.Summary(ctx, projectID)
}
