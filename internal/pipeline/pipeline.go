// Package pipeline runs a project through analysis, the optional client
// interview, strategy, hypotheses, copywriting and design.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"

	"adflow/internal/agent"
	"adflow/internal/artifact"
	artifactrepo "adflow/internal/gateway/repository/artifact"
	projectrepo "adflow/internal/gateway/repository/project"
	"adflow/internal/types"
	"adflow/internal/utils"
)

var (
	// ErrNotStartable rejects Run on a project that is neither new nor failed.
	ErrNotStartable = errors.New("project cannot be started in its current status")
	// ErrNotAwaitingAnswers rejects answers for a project not in the questions stage.
	ErrNotAwaitingAnswers = errors.New("project is not waiting for answers")
	// ErrNotResumable rejects Resume for a project that has not accepted answers.
	ErrNotResumable = errors.New("project cannot be resumed in its current status")
)

// Ingester fetches and summarizes the advertised source.
type Ingester interface {
	Fetch(ctx context.Context, url string) (types.SourceSummary, error)
}

type Config struct {
	// MaxRevisions is the number of creation attempts per stage. The last
	// attempt is accepted regardless of its review.
	MaxRevisions int
	// ApprovalScore is the review score that passes without the approved flag.
	ApprovalScore int
	// PausedCacheSize bounds the in-process cache of paused runs.
	PausedCacheSize int
}

func DefaultConfig() Config {
	return Config{
		MaxRevisions:    3,
		ApprovalScore:   artifact.DefaultApprovalScore,
		PausedCacheSize: 1024,
	}
}

func (c Config) maxRevisions() int {
	if c.MaxRevisions <= 0 {
		return 3
	}
	return c.MaxRevisions
}

func (c Config) approvalScore() int {
	if c.ApprovalScore <= 0 {
		return artifact.DefaultApprovalScore
	}
	return c.ApprovalScore
}

// pausedRun is what a project waiting at the questions stage needs to
// continue. The questions artifact is the source of truth; this is a cache.
type pausedRun struct {
	ArtifactID string
	Questions  artifact.Questions
}

// Pipeline is the orchestrator. It is safe for concurrent use across
// projects; a single project is driven by one run at a time.
type Pipeline struct {
	projects  projectrepo.Store
	artifacts artifactrepo.Store
	team      *agent.Team
	ingest    Ingester
	events    *Emitter
	paused    *lru.Cache[string, pausedRun]
	usage     *usageTracker
	locks     utils.KeyedMutex
	cfg       Config
	log       *zap.Logger
}

type Option func(*Pipeline)

func WithConfig(c Config) Option { return func(p *Pipeline) { p.cfg = c } }

func WithLogger(l *zap.Logger) Option { return func(p *Pipeline) { p.log = l } }

// WithEmitter shares an emitter, e.g. with the transport layer.
func WithEmitter(e *Emitter) Option { return func(p *Pipeline) { p.events = e } }

func New(projects projectrepo.Store, artifacts artifactrepo.Store, team *agent.Team, ingest Ingester, opts ...Option) (*Pipeline, error) {
	if projects == nil || artifacts == nil {
		return nil, fmt.Errorf("pipeline: stores are required")
	}
	if team == nil || team.Manager == nil || team.Strategist == nil || team.Copywriter == nil || team.Designer == nil {
		return nil, fmt.Errorf("pipeline: incomplete team")
	}
	if ingest == nil {
		return nil, fmt.Errorf("pipeline: ingester is required")
	}
	p := &Pipeline{
		projects:  projects,
		artifacts: artifacts,
		team:      team,
		ingest:    ingest,
		cfg:       DefaultConfig(),
	}
	for _, o := range opts {
		o(p)
	}
	if p.log == nil {
		p.log = zap.NewNop()
	}
	if p.events == nil {
		p.events = NewEmitter(p.log)
	}
	size := p.cfg.PausedCacheSize
	if size <= 0 {
		size = DefaultConfig().PausedCacheSize
	}
	cache, err := lru.New[string, pausedRun](size)
	if err != nil {
		return nil, fmt.Errorf("pipeline: paused cache: %w", err)
	}
	p.paused = cache
	if p.usage, err = newUsageTracker(size); err != nil {
		return nil, fmt.Errorf("pipeline: usage tracker: %w", err)
	}
	return p, nil
}

func (p *Pipeline) Events() *Emitter { return p.events }

func (p *Pipeline) Projects() projectrepo.Store { return p.projects }

func (p *Pipeline) Artifacts() artifactrepo.Store { return p.artifacts }

// Run analyzes the project's source and continues until completion, or
// returns early with the project parked at the questions stage. The project
// must be new or failed. A stage failure marks the project failed and is
// returned.
func (p *Pipeline) Run(ctx context.Context, projectID string) error {
	ctx = p.traced(ctx, projectID)
	proj, err := p.begin(ctx, projectID)
	if err != nil {
		return err
	}

	src, err := p.ingest.Fetch(ctx, proj.URL)
	if err != nil {
		return p.fail(ctx, projectID, fmt.Errorf("ingest %s: %w", proj.URL, err))
	}
	res := p.team.Manager.Execute(ctx, agent.AnalyzeRequest{Source: src})
	var analysis artifact.Analysis
	if err := res.Decode(&analysis); err != nil {
		return p.fail(ctx, projectID, fmt.Errorf("analyze: %w", err))
	}
	brief := analysis.Brief
	if brief.TargetURL == "" {
		brief.TargetURL = proj.URL
	}
	if _, err := p.save(ctx, projectID, artifact.TypeBrief, artifact.StatusApproved, p.team.Manager.Name(), brief); err != nil {
		return p.fail(ctx, projectID, err)
	}
	proj, err = p.projects.Update(ctx, projectID, func(pr *types.Project) error {
		b := brief
		pr.Brief = &b
		if pr.Name == "" {
			pr.Name = brief.BusinessName
		}
		return nil
	})
	if err != nil {
		return p.fail(ctx, projectID, err)
	}

	if len(analysis.Questions) > 0 {
		return p.pause(ctx, projectID, brief, analysis.Questions)
	}

	iv := types.DefaultInterview()
	proj, err = p.projects.Update(ctx, projectID, func(pr *types.Project) error {
		applyInterview(pr, iv)
		return nil
	})
	if err != nil {
		return p.fail(ctx, projectID, err)
	}
	return p.advance(ctx, proj)
}

// begin moves a startable project to analyzing.
func (p *Pipeline) begin(ctx context.Context, projectID string) (types.Project, error) {
	var prev types.Status
	proj, err := p.projects.Update(ctx, projectID, func(pr *types.Project) error {
		if pr.Status != types.StatusCreated && pr.Status != types.StatusFailed {
			return fmt.Errorf("%w: %s is %s", ErrNotStartable, pr.ID, pr.Status)
		}
		prev = pr.Status
		pr.Status = types.StatusAnalyzing
		pr.CurrentStage = types.StatusAnalyzing.Stage()
		pr.ErrorMessage = ""
		return nil
	})
	if err != nil {
		return types.Project{}, err
	}
	p.log.Info("pipeline started", zap.String("project_id", projectID), zap.String("from", string(prev)))
	p.statusChanged(projectID, prev, types.StatusAnalyzing)
	p.stageStart(projectID, types.StatusAnalyzing)
	return proj, nil
}

func (p *Pipeline) pause(ctx context.Context, projectID string, brief types.Brief, questions []artifact.Question) error {
	content := artifact.Questions{Questions: questions, Brief: &brief}
	saved, err := p.save(ctx, projectID, artifact.TypeQuestions, artifact.StatusPending, p.team.Manager.Name(), content)
	if err != nil {
		return p.fail(ctx, projectID, err)
	}
	p.paused.Add(projectID, pausedRun{ArtifactID: saved.ID, Questions: content})
	if err := p.setStatus(ctx, projectID, types.StatusQuestions); err != nil {
		return p.fail(ctx, projectID, err)
	}
	p.log.Info("waiting for answers", zap.String("project_id", projectID), zap.Int("questions", len(questions)))
	p.emit(projectID, EventQuestionsReady, map[string]any{
		"questions":   questions,
		"artifact_id": saved.ID,
	})
	return nil
}

// advance runs strategy through design and completes the project.
func (p *Pipeline) advance(ctx context.Context, proj types.Project) error {
	id := proj.ID
	in := agent.StageInput{
		ProjectID: id,
		URL:       proj.URL,
		Brief:     proj.Brief,
		Interview: proj.Interview,
		Settings:  proj.Settings,
	}

	strategy, err := acceptStage[artifact.Strategy](ctx, p, id, types.StatusStrategy, artifact.TypeStrategy, p.team.Strategist, in)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	in.Strategy = &strategy

	hypotheses, err := acceptStage[artifact.Hypotheses](ctx, p, id, types.StatusHypotheses, artifact.TypeHypotheses, p.team.Strategist, in)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	in.Hypotheses = &hypotheses

	creatives, err := acceptStage[artifact.CreativeSet](ctx, p, id, types.StatusCopywriting, artifact.TypeCopy, p.team.Copywriter, in)
	if err != nil {
		return p.fail(ctx, id, err)
	}
	in.Creatives = &creatives

	if err := p.design(ctx, id, in); err != nil {
		return p.fail(ctx, id, err)
	}

	if err := p.setStatus(ctx, id, types.StatusCompleted); err != nil {
		return p.fail(ctx, id, err)
	}
	p.log.Info("pipeline completed", zap.String("project_id", id))
	p.emit(id, EventPipelineComplete, map[string]any{"project_id": id})
	return nil
}

// acceptStage enters status and returns the decoded accepted output.
func acceptStage[T any](ctx context.Context, p *Pipeline, projectID string, status types.Status, target artifact.Type, worker agent.Agent, in agent.StageInput) (T, error) {
	var out T
	if err := p.enterStage(ctx, projectID, status); err != nil {
		return out, err
	}
	accepted, err := p.createWithReview(ctx, projectID, target, worker, in)
	if err != nil {
		return out, err
	}
	if err := accepted.Decode(&out); err != nil {
		return out, err
	}
	return out, nil
}

// design renders banners for the visual creatives. Without any, an empty
// approved banner set is stored and no review happens.
func (p *Pipeline) design(ctx context.Context, projectID string, in agent.StageInput) error {
	if err := p.enterStage(ctx, projectID, types.StatusDesign); err != nil {
		return err
	}
	if len(agent.VisualCreatives(in.Creatives, in.Strategy)) > 0 {
		_, err := p.createWithReview(ctx, projectID, artifact.TypeBanners, p.team.Designer, in)
		return err
	}
	saved, err := p.save(ctx, projectID, artifact.TypeBanners, artifact.StatusApproved, p.team.Designer.Name(), artifact.NewBannerSet(nil))
	if err != nil {
		return err
	}
	p.log.Info("no visual platforms, design skipped", zap.String("project_id", projectID))
	p.emit(projectID, EventArtifactApproved, map[string]any{
		"type":    artifact.TypeBanners,
		"version": saved.Version,
		"banners": 0,
	})
	return nil
}

func (p *Pipeline) enterStage(ctx context.Context, projectID string, status types.Status) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := p.setStatus(ctx, projectID, status); err != nil {
		return err
	}
	p.log.Info("stage started", zap.String("project_id", projectID), zap.String("stage", string(status)))
	p.stageStart(projectID, status)
	return nil
}

// setStatus records status and emits status_changed when it differs.
func (p *Pipeline) setStatus(ctx context.Context, projectID string, status types.Status) error {
	var prev types.Status
	_, err := p.projects.Update(ctx, projectID, func(pr *types.Project) error {
		prev = pr.Status
		pr.Status = status
		if n := status.Stage(); n >= 0 {
			pr.CurrentStage = n
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("set status %s: %w", status, err)
	}
	p.statusChanged(projectID, prev, status)
	return nil
}

// fail marks the project failed and returns err. The update outlives a
// cancelled run context.
func (p *Pipeline) fail(ctx context.Context, projectID string, err error) error {
	if cerr := ctx.Err(); cerr != nil && !errors.Is(err, cerr) {
		err = fmt.Errorf("%w: %v", cerr, err)
	}
	p.log.Error("pipeline failed", zap.String("project_id", projectID), zap.Error(err))

	var prev types.Status
	_, uerr := p.projects.Update(context.WithoutCancel(ctx), projectID, func(pr *types.Project) error {
		prev = pr.Status
		pr.Status = types.StatusFailed
		pr.ErrorMessage = err.Error()
		return nil
	})
	if uerr != nil {
		p.log.Error("record failure", zap.String("project_id", projectID), zap.Error(uerr))
	} else {
		p.statusChanged(projectID, prev, types.StatusFailed)
	}
	p.emit(projectID, EventPipelineError, map[string]any{"error": err.Error()})
	return err
}

func (p *Pipeline) save(ctx context.Context, projectID string, t artifact.Type, status artifact.Status, producer string, content any) (artifact.Artifact, error) {
	raw, err := artifact.EncodeContent(content)
	if err != nil {
		return artifact.Artifact{}, err
	}
	saved, err := p.artifacts.Save(ctx, artifact.Artifact{
		ProjectID: projectID,
		Type:      t,
		Status:    status,
		Content:   raw,
		Producer:  producer,
	})
	if err != nil {
		return artifact.Artifact{}, fmt.Errorf("save %s: %w", t, err)
	}
	return saved, nil
}

func applyInterview(pr *types.Project, iv types.Interview) {
	c := iv.Clone()
	s := c.Settings()
	pr.Interview = &c
	pr.Settings = &s
}

func (p *Pipeline) emit(projectID string, typ EventType, data map[string]any) {
	p.events.Emit(Event{Type: typ, ProjectID: projectID, Data: data})
}

func (p *Pipeline) stageStart(projectID string, status types.Status) {
	p.emit(projectID, EventStageStart, map[string]any{
		"stage": status.Stage(),
		"name":  string(status),
	})
}

func (p *Pipeline) statusChanged(projectID string, from, to types.Status) {
	if from == to {
		return
	}
	p.events.Emit(Event{
		Type:      EventStatusChanged,
		ProjectID: projectID,
		Status:    to,
		Data:      map[string]any{"from": string(from), "to": string(to)},
	})
}
