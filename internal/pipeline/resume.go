package pipeline

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"adflow/internal/artifact"
	artifactrepo "adflow/internal/gateway/repository/artifact"
	"adflow/internal/types"
)

// AcceptAnswers records the client's answers for a project parked at the
// questions stage and moves it to strategy. It does not run any stage; call
// Resume for that. A project in any other status is rejected with
// ErrNotAwaitingAnswers and nothing is written, so a second submit of the
// same answers fails.
func (p *Pipeline) AcceptAnswers(ctx context.Context, projectID string, answers map[string]any) (types.Project, error) {
	unlock := p.locks.Lock(projectID)
	defer unlock()

	proj, err := p.projects.Get(ctx, projectID)
	if err != nil {
		return types.Project{}, err
	}
	if proj.Status != types.StatusQuestions {
		return types.Project{}, fmt.Errorf("%w: %s is %s", ErrNotAwaitingAnswers, projectID, proj.Status)
	}
	paused, err := p.pausedRun(ctx, projectID)
	if err != nil {
		return types.Project{}, err
	}

	iv := types.MapInterviewWithHints(answers, paused.Questions.Hints())
	answered := paused.Questions.WithAnswers(iv)
	saved, err := p.save(ctx, projectID, artifact.TypeQuestions, artifact.StatusApproved, p.team.Manager.Name(), answered)
	if err != nil {
		return types.Project{}, err
	}

	proj, err = p.projects.Update(ctx, projectID, func(pr *types.Project) error {
		if pr.Status != types.StatusQuestions {
			return fmt.Errorf("%w: %s is %s", ErrNotAwaitingAnswers, projectID, pr.Status)
		}
		applyInterview(pr, iv)
		if pr.Brief == nil && answered.Brief != nil {
			b := *answered.Brief
			pr.Brief = &b
		}
		pr.Status = types.StatusStrategy
		pr.CurrentStage = types.StatusStrategy.Stage()
		return nil
	})
	if err != nil {
		return types.Project{}, err
	}
	p.paused.Remove(projectID)

	p.log.Info("answers accepted",
		zap.String("project_id", projectID),
		zap.String("artifact_id", saved.ID),
		zap.Int("answers", len(iv.Answers)))
	p.statusChanged(projectID, types.StatusQuestions, types.StatusStrategy)
	return proj, nil
}

// Resume runs strategy through design for a project whose answers were
// accepted.
func (p *Pipeline) Resume(ctx context.Context, projectID string) error {
	ctx = p.traced(ctx, projectID)
	proj, err := p.projects.Get(ctx, projectID)
	if err != nil {
		return err
	}
	if proj.Status != types.StatusStrategy || proj.Interview == nil {
		return fmt.Errorf("%w: %s is %s", ErrNotResumable, projectID, proj.Status)
	}
	return p.advance(ctx, proj)
}

// SubmitAnswers accepts the answers and runs the rest of the pipeline.
func (p *Pipeline) SubmitAnswers(ctx context.Context, projectID string, answers map[string]any) error {
	if _, err := p.AcceptAnswers(ctx, projectID, answers); err != nil {
		return err
	}
	return p.Resume(ctx, projectID)
}

// pausedRun returns the cached pause state or rebuilds it from the latest
// questions artifact, e.g. after a restart.
func (p *Pipeline) pausedRun(ctx context.Context, projectID string) (pausedRun, error) {
	if run, ok := p.paused.Get(projectID); ok {
		return run, nil
	}
	a, err := p.artifacts.Latest(ctx, projectID, artifact.TypeQuestions)
	if err != nil {
		if errors.Is(err, artifactrepo.ErrNotFound) {
			return pausedRun{}, fmt.Errorf("%w: %s has no questions", ErrNotAwaitingAnswers, projectID)
		}
		return pausedRun{}, err
	}
	var q artifact.Questions
	if err := a.Decode(&q); err != nil {
		return pausedRun{}, err
	}
	p.log.Debug("paused run rebuilt from store", zap.String("project_id", projectID), zap.String("artifact_id", a.ID))
	run := pausedRun{ArtifactID: a.ID, Questions: q}
	p.paused.Add(projectID, run)
	return run, nil
}

// Paused reports whether projectID has a cached paused run.
func (p *Pipeline) Paused(projectID string) bool {
	return p.paused.Contains(projectID)
}
