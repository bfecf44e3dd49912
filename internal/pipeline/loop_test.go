package pipeline

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adflow/internal/agent"
	"adflow/internal/artifact"
)

func TestLoopApprovesOnThirdAttempt(t *testing.T) {
	mgr := newStubManager()
	mgr.scores[artifact.TypeStrategy] = []int{3, 5, 9}
	worker := newStubWorker()
	worker.outputs[artifact.TypeStrategy] = []string{`{"summary":"one"}`, `{"summary":"two"}`, `{"summary":"three"}`}
	f := newFixture(t, mgr, worker)

	got, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeStrategy, worker, agent.StageInput{ProjectID: "p1"})
	require.NoError(t, err)
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, artifact.StatusApproved, got.Status)
	assert.JSONEq(t, `{"summary":"three"}`, string(got.Content))

	calls := worker.calls(artifact.TypeStrategy)
	require.Len(t, calls, 3)
	assert.IsType(t, agent.CreateRequest{}, calls[0])
	second, ok := calls[1].(agent.ReviseRequest)
	require.True(t, ok)
	assert.Equal(t, "fix 1", second.Feedback)
	assert.JSONEq(t, `{"summary":"one"}`, string(second.Previous))
	third := calls[2].(agent.ReviseRequest)
	assert.Equal(t, "fix 2", third.Feedback)

	versions := f.ofType(t, "p1", artifact.TypeStrategy)
	require.Len(t, versions, 3)
	assert.Equal(t, artifact.StatusRevision, versions[0].Status)
	assert.Equal(t, artifact.StatusRevision, versions[1].Status)
	assert.Equal(t, artifact.StatusApproved, versions[2].Status)
	assert.Contains(t, versions[0].ReviewNotes, "score 3/10")

	revisions := f.events.ofType(EventArtifactRevision)
	require.Len(t, revisions, 2)
	assert.Equal(t, 1, revisions[0].Data["revision"])
	assert.Equal(t, "fix 1", revisions[0].Data["feedback"])
	assert.Equal(t, 2, revisions[1].Data["revision"])
	approved := f.events.ofType(EventArtifactApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, 9, approved[0].Data["score"])
	assert.Nil(t, approved[0].Data["forced"])
}

func TestLoopForcesLastAttempt(t *testing.T) {
	mgr := newStubManager()
	mgr.scores[artifact.TypeHypotheses] = []int{1, 2, 3, 4, 5}
	worker := newStubWorker()
	worker.outputs[artifact.TypeHypotheses] = []string{`{"hypotheses":[],"rationale":"1"}`, `{"hypotheses":[],"rationale":"2"}`, `{"hypotheses":[],"rationale":"3"}`, `{"hypotheses":[],"rationale":"4"}`}
	f := newFixture(t, mgr, worker)

	got, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeHypotheses, worker, agent.StageInput{})
	require.NoError(t, err)
	assert.Len(t, worker.calls(artifact.TypeHypotheses), 3)
	assert.Equal(t, 3, mgr.reviewCount(artifact.TypeHypotheses))
	assert.Equal(t, 3, got.Version)
	assert.Equal(t, artifact.StatusApproved, got.Status)
	assert.Contains(t, string(got.Content), `"rationale":"3"`)

	latest, err := f.artifacts.Latest(context.Background(), "p1", artifact.TypeHypotheses)
	require.NoError(t, err)
	assert.Equal(t, 3, latest.Version)

	var kinds []EventType
	for _, ev := range f.events.all() {
		kinds = append(kinds, ev.Type)
	}
	assert.Equal(t, []EventType{EventArtifactRevision, EventArtifactRevision, EventArtifactApproved}, kinds)
	forced := f.events.ofType(EventArtifactApproved)[0]
	assert.Equal(t, true, forced.Data["forced"])
	assert.Equal(t, 3, forced.Data["score"])
}

func TestLoopHonoursConfiguredBudget(t *testing.T) {
	mgr := newStubManager()
	mgr.scores[artifact.TypeStrategy] = []int{1, 1, 1, 1, 1}
	worker := newStubWorker()
	f := newFixture(t, mgr, worker, WithConfig(Config{MaxRevisions: 5}))

	_, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeStrategy, worker, agent.StageInput{})
	require.NoError(t, err)
	assert.Len(t, worker.calls(artifact.TypeStrategy), 5)
	assert.Len(t, f.events.ofType(EventArtifactRevision), 4)
}

func TestLoopApprovedFlagPassesLowScore(t *testing.T) {
	mgr := &flagManager{stubManager: newStubManager()}
	worker := newStubWorker()
	f := newFixture(t, mgr.stubManager, worker)
	f.p.team.Manager = mgr

	got, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeStrategy, worker, agent.StageInput{})
	require.NoError(t, err)
	assert.Equal(t, 1, got.Version)
	assert.Len(t, worker.calls(artifact.TypeStrategy), 1)
}

// flagManager approves with a score below the threshold.
type flagManager struct{ *stubManager }

func (m *flagManager) Execute(ctx context.Context, req agent.Request) agent.Result {
	if _, ok := req.(agent.ReviewRequest); ok {
		return agent.Result{Output: []byte(`{"approved":true,"score":2}`)}
	}
	return m.stubManager.Execute(ctx, req)
}

func TestLoopAcceptsWhenReviewFails(t *testing.T) {
	mgr := newStubManager()
	mgr.reviewErr[artifact.TypeStrategy] = errProvider
	worker := newStubWorker()
	f := newFixture(t, mgr, worker)

	got, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeStrategy, worker, agent.StageInput{})
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusApproved, got.Status)
	assert.Contains(t, got.ReviewNotes, "review skipped")
	assert.Len(t, worker.calls(artifact.TypeStrategy), 1)

	approved := f.events.ofType(EventArtifactApproved)
	require.Len(t, approved, 1)
	assert.Equal(t, true, approved[0].Data["review_skipped"])
}

func TestLoopAbortsOnCreationFailure(t *testing.T) {
	mgr := newStubManager()
	worker := newStubWorker()
	worker.failures[artifact.TypeCopy] = errProvider
	f := newFixture(t, mgr, worker)

	_, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeCopy, worker, agent.StageInput{})
	require.Error(t, err)
	var gen *agent.GenerationError
	assert.True(t, errors.As(err, &gen))
	assert.ErrorIs(t, err, errProvider)
	assert.Empty(t, f.ofType(t, "p1", artifact.TypeCopy))
	assert.Zero(t, mgr.reviewCount(artifact.TypeCopy))
}

func TestLoopPassesCopyLimitBreachesToReview(t *testing.T) {
	mgr := newStubManager()
	worker := newStubWorker()
	long := strings.Repeat("a", 70)
	worker.outputs[artifact.TypeCopy] = []string{`{"creatives":[{"id":"c9","platform":"yandex_direct","yandex":{"headline":"` + long + `","text":"ok"}}]}`}
	f := newFixture(t, mgr, worker)

	_, err := f.p.createWithReview(context.Background(), "p1", artifact.TypeCopy, worker, agent.StageInput{})
	require.NoError(t, err)
	hints := mgr.hints[artifact.TypeCopy]
	require.Len(t, hints, 1)
	assert.Contains(t, hints[0], "c9")
	assert.Contains(t, hints[0], "yandex.headline")
}

func TestLoopStopsOnCancelledContext(t *testing.T) {
	worker := newStubWorker()
	f := newFixture(t, newStubManager(), worker)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := f.p.createWithReview(ctx, "p1", artifact.TypeStrategy, worker, agent.StageInput{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, worker.calls(artifact.TypeStrategy))
}
