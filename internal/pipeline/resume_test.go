package pipeline

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adflow/internal/artifact"
	"adflow/internal/types"
)

func pausedFixture(t *testing.T) (*fixture, types.Project) {
	t.Helper()
	f := newFixture(t, newStubManager(budgetQuestion, artifact.Question{ID: "goals", Question: "Goals?"}), newStubWorker())
	proj := f.project(t)
	require.NoError(t, f.p.Run(context.Background(), proj.ID))
	require.Equal(t, types.StatusQuestions, f.status(t, proj.ID).Status)
	return f, proj
}

func TestSubmitAnswersResumesFromStrategy(t *testing.T) {
	f, proj := pausedFixture(t)

	err := f.p.SubmitAnswers(context.Background(), proj.ID, map[string]any{
		"budget":          "120 000 руб",
		"goals":           []any{"sales"},
		"target_audience": "office workers",
	})
	require.NoError(t, err)

	got := f.status(t, proj.ID)
	assert.Equal(t, types.StatusCompleted, got.Status)
	require.NotNil(t, got.Settings)
	require.NotNil(t, got.Settings.BudgetMonthly)
	assert.Equal(t, 120000, *got.Settings.BudgetMonthly)
	assert.Equal(t, []string{"sales"}, got.Settings.Goals)
	assert.Equal(t, "office workers", got.Settings.TargetAudienceDescription)
	assert.False(t, f.p.Paused(proj.ID))

	qs := f.ofType(t, proj.ID, artifact.TypeQuestions)
	require.Len(t, qs, 2)
	assert.Equal(t, artifact.StatusPending, qs[0].Status)
	assert.Equal(t, artifact.StatusApproved, qs[1].Status)
	var content artifact.Questions
	require.NoError(t, qs[1].Decode(&content))
	assert.True(t, content.AllAnswered)
	require.NotNil(t, content.Interview)
	assert.Equal(t, "120 000 руб", content.Questions[0].Answer)

	assert.Equal(t, []types.Status{
		types.StatusAnalyzing,
		types.StatusQuestions,
		types.StatusStrategy,
		types.StatusHypotheses,
		types.StatusCopywriting,
		types.StatusDesign,
		types.StatusCompleted,
	}, f.events.statuses())
}

func TestUnparsableBudgetIsDropped(t *testing.T) {
	f, proj := pausedFixture(t)

	got, err := f.p.AcceptAnswers(context.Background(), proj.ID, map[string]any{"budget": "a lot"})
	require.NoError(t, err)
	assert.Equal(t, types.StatusStrategy, got.Status)
	require.NotNil(t, got.Interview)
	assert.Nil(t, got.Interview.BudgetMonthly)
	assert.Equal(t, "a lot", got.Interview.Answers["budget"])
}

func TestSubmitAnswersOutsideQuestionsChangesNothing(t *testing.T) {
	for _, setup := range []struct {
		name string
		prep func(t *testing.T, f *fixture, id string)
	}{
		{"created", func(*testing.T, *fixture, string) {}},
		{"completed", func(t *testing.T, f *fixture, id string) {
			require.NoError(t, f.p.Run(context.Background(), id))
		}},
	} {
		t.Run(setup.name, func(t *testing.T) {
			f := newFixture(t, newStubManager(), newStubWorker())
			proj := f.project(t)
			setup.prep(t, f, proj.ID)

			before := f.status(t, proj.ID)
			artifactsBefore, err := f.artifacts.All(context.Background(), proj.ID)
			require.NoError(t, err)
			eventsBefore := len(f.events.all())

			err = f.p.SubmitAnswers(context.Background(), proj.ID, map[string]any{"budget": 1000})
			require.ErrorIs(t, err, ErrNotAwaitingAnswers)

			assert.Equal(t, before, f.status(t, proj.ID))
			artifactsAfter, err := f.artifacts.All(context.Background(), proj.ID)
			require.NoError(t, err)
			assert.Equal(t, artifactsBefore, artifactsAfter)
			assert.Len(t, f.events.all(), eventsBefore)
			assert.False(t, f.p.Paused(proj.ID))
		})
	}
}

func TestDoubleSubmitIsRejected(t *testing.T) {
	f, proj := pausedFixture(t)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = f.p.AcceptAnswers(context.Background(), proj.ID, map[string]any{"budget": 5000})
		}()
	}
	wg.Wait()

	var ok, rejected int
	for _, err := range errs {
		switch {
		case err == nil:
			ok++
		case assert.ErrorIs(t, err, ErrNotAwaitingAnswers):
			rejected++
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, rejected)
	assert.Len(t, f.ofType(t, proj.ID, artifact.TypeQuestions), 2)
	assert.Equal(t, types.StatusStrategy, f.status(t, proj.ID).Status)

	require.NoError(t, f.p.Resume(context.Background(), proj.ID))
	assert.Equal(t, types.StatusCompleted, f.status(t, proj.ID).Status)
	assert.ErrorIs(t, f.p.SubmitAnswers(context.Background(), proj.ID, nil), ErrNotAwaitingAnswers)
}

func TestResumeAfterRestartRebuildsFromStore(t *testing.T) {
	f, proj := pausedFixture(t)

	restarted := f.build(t, okIngest())
	require.False(t, restarted.Paused(proj.ID))

	require.NoError(t, restarted.SubmitAnswers(context.Background(), proj.ID, map[string]any{"goals": "leads"}))
	got := f.status(t, proj.ID)
	assert.Equal(t, types.StatusCompleted, got.Status)
	assert.Equal(t, "Zerno", got.Brief.BusinessName)
	assert.Equal(t, []string{"leads"}, got.Settings.Goals)
}

func TestResumeRequiresAcceptedAnswers(t *testing.T) {
	f, proj := pausedFixture(t)
	assert.ErrorIs(t, f.p.Resume(context.Background(), proj.ID), ErrNotResumable)
	assert.Equal(t, types.StatusQuestions, f.status(t, proj.ID).Status)
}

func TestAnswersKeyedByQuestionIDUseQuestionText(t *testing.T) {
	f := newFixture(t, newStubManager(
		artifact.Question{ID: "q1", Question: "What is your monthly advertising budget?", QuestionType: "number"},
		artifact.Question{ID: "q2", Question: "What are your main goals?"},
	), newStubWorker())
	proj := f.project(t)
	require.NoError(t, f.p.Run(context.Background(), proj.ID))

	got, err := f.p.AcceptAnswers(context.Background(), proj.ID, map[string]any{"q1": "70000", "q2": "leads"})
	require.NoError(t, err)
	require.NotNil(t, got.Settings)
	require.NotNil(t, got.Settings.BudgetMonthly)
	assert.Equal(t, 70000, *got.Settings.BudgetMonthly)
	assert.Equal(t, []string{"leads"}, got.Settings.Goals)
}
