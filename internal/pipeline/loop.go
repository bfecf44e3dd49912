package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"adflow/internal/agent"
	"adflow/internal/artifact"
)

// createWithReview drives one stage to a single accepted artifact.
//
// Every attempt is stored with status review and then reviewed by the
// manager. A passing verdict approves it. A failed review call approves it
// as well. The attempt numbered MaxRevisions is approved whatever its score.
// Anything else is marked revision and fed back to worker as a revise
// request. A failed creation call aborts the stage.
func (p *Pipeline) createWithReview(ctx context.Context, projectID string, target artifact.Type, worker agent.Agent, in agent.StageInput) (artifact.Artifact, error) {
	maxAttempts := p.cfg.maxRevisions()
	log := p.log.With(zap.String("project_id", projectID), zap.String("artifact", string(target)))

	var req agent.Request = agent.CreateRequest{Target: target, Input: in}
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return artifact.Artifact{}, err
		}

		res := worker.Execute(ctx, req)
		if !res.OK() {
			return artifact.Artifact{}, fmt.Errorf("%s attempt %d: %w", target, attempt, res.Err)
		}
		saved, err := p.artifacts.Save(ctx, artifact.Artifact{
			ProjectID: projectID,
			Type:      target,
			Status:    artifact.StatusReview,
			Content:   res.Output,
			Producer:  worker.Name(),
		})
		if err != nil {
			return artifact.Artifact{}, fmt.Errorf("save %s: %w", target, err)
		}

		verdict, reviewErr := p.review(ctx, target, res.Output, in)
		switch {
		case reviewErr != nil:
			log.Warn("review failed, accepting output", zap.Int("attempt", attempt), zap.Error(reviewErr))
			saved, err = p.artifacts.MarkReviewed(ctx, saved.ID, artifact.StatusApproved, "review skipped: "+reviewErr.Error())
			if err != nil {
				return artifact.Artifact{}, err
			}
			p.emit(projectID, EventArtifactApproved, map[string]any{
				"type":           target,
				"version":        saved.Version,
				"review_skipped": true,
			})
			return saved, nil

		case verdict.Passes(p.cfg.approvalScore()):
			log.Info("artifact approved", zap.Int("attempt", attempt), zap.Int("score", verdict.Score), zap.Bool("approved", verdict.Approved))
			saved, err = p.artifacts.MarkReviewed(ctx, saved.ID, artifact.StatusApproved, verdict.Notes())
			if err != nil {
				return artifact.Artifact{}, err
			}
			p.emit(projectID, EventArtifactApproved, map[string]any{
				"type":    target,
				"version": saved.Version,
				"score":   verdict.Score,
			})
			return saved, nil

		case attempt >= maxAttempts:
			log.Warn("revision budget spent, accepting last output", zap.Int("attempt", attempt), zap.Int("score", verdict.Score))
			saved, err = p.artifacts.MarkReviewed(ctx, saved.ID, artifact.StatusApproved, verdict.Notes())
			if err != nil {
				return artifact.Artifact{}, err
			}
			p.emit(projectID, EventArtifactApproved, map[string]any{
				"type":    target,
				"version": saved.Version,
				"score":   verdict.Score,
				"forced":  true,
			})
			return saved, nil
		}

		log.Info("artifact needs revision", zap.Int("attempt", attempt), zap.Int("score", verdict.Score), zap.Bool("approved", verdict.Approved))
		if _, err := p.artifacts.MarkReviewed(ctx, saved.ID, artifact.StatusRevision, verdict.Notes()); err != nil {
			return artifact.Artifact{}, err
		}
		feedback := verdict.Guidance()
		p.emit(projectID, EventArtifactRevision, map[string]any{
			"type":     target,
			"version":  saved.Version,
			"revision": attempt,
			"score":    verdict.Score,
			"feedback": feedback,
		})
		req = agent.ReviseRequest{Target: target, Input: in, Previous: res.Output, Feedback: feedback}
	}
}

// review asks the manager for a verdict. Copy gets its limit breaches
// attached as known issues.
func (p *Pipeline) review(ctx context.Context, target artifact.Type, output json.RawMessage, in agent.StageInput) (artifact.Review, error) {
	req := agent.ReviewRequest{
		Target: target,
		Output: output,
		Input:  in,
	}
	if p.team.Prompts != nil {
		req.Criteria = p.team.Prompts.Criteria(target)
	}
	if target == artifact.TypeCopy {
		var set artifact.CreativeSet
		if err := json.Unmarshal(output, &set); err == nil {
			for _, v := range set.Violations() {
				req.Hints = append(req.Hints, v.String())
			}
		}
	}

	res := p.team.Manager.Execute(ctx, req)
	var verdict artifact.Review
	if err := res.Decode(&verdict); err != nil {
		return artifact.Review{}, err
	}
	return verdict.Clamp(), nil
}
