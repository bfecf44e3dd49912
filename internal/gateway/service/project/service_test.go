package project

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"adflow/internal/agent"
	"adflow/internal/artifact"
	artifactrepo "adflow/internal/gateway/repository/artifact"
	projectrepo "adflow/internal/gateway/repository/project"
	"adflow/internal/llm"
	"adflow/internal/llm/client"
	"adflow/internal/pipeline"
	"adflow/internal/types"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type staticSource struct{}

func (staticSource) Fetch(_ context.Context, url string) (types.SourceSummary, error) {
	return types.SourceSummary{URL: url, Kind: types.SourceWebsite, Site: &types.SiteSummary{Title: "Fake Coffee"}}, nil
}

func newService(t *testing.T, opts ...client.FakeOption) *Service {
	t.Helper()
	team, err := agent.NewTeam(client.NewFakeClient(opts...), nil, nil, nil)
	require.NoError(t, err)
	p, err := pipeline.New(projectrepo.NewMemoryStore(), artifactrepo.NewMemoryStore(), team, staticSource{})
	require.NoError(t, err)
	runner := pipeline.NewRunner(p)
	t.Cleanup(func() { require.NoError(t, runner.Shutdown(context.Background())) })
	return New(runner, nil)
}

func follow(t *testing.T, s *Service, projectID string, untilPause bool, start func()) []pipeline.Event {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	ch, err := s.StreamEvents(ctx, projectID, untilPause)
	require.NoError(t, err)
	start()
	var out []pipeline.Event
	for ev := range ch {
		out = append(out, ev)
	}
	require.NoError(t, ctx.Err(), "stream timed out")
	return out
}

func waitIdle(t *testing.T, s *Service, projectID string) {
	t.Helper()
	if run, ok := s.runner.Active(projectID); ok {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = run.Wait(ctx)
	}
}

func TestCreateProjectValidatesURL(t *testing.T) {
	s := newService(t)
	ctx := context.Background()

	for _, raw := range []string{"", "ftp://coffee.example", "https://"} {
		_, err := s.CreateProject(ctx, "u1", raw, "")
		assert.ErrorIs(t, err, ErrInvalidArgument, raw)
	}

	p, err := s.CreateProject(ctx, "u1", "coffee.example/shop", " Coffee ")
	require.NoError(t, err)
	assert.Equal(t, "https://coffee.example/shop", p.URL)
	assert.Equal(t, "Coffee", p.Name)
	assert.Equal(t, types.StatusCreated, p.Status)
}

func TestQuestionsFlowThroughService(t *testing.T) {
	s := newService(t)
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "u1", "https://coffee.example", "")
	require.NoError(t, err)

	events := follow(t, s, p.ID, true, func() {
		_, err := s.StartPipeline(ctx, p.ID)
		require.NoError(t, err)
	})
	require.NotEmpty(t, events)
	last := events[len(events)-1]
	assert.Equal(t, pipeline.EventQuestionsReady, last.Type)
	waitIdle(t, s, p.ID)

	st, err := s.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusQuestions, st.Project.Status)
	assert.False(t, st.Running)

	_, err = s.StartPipeline(ctx, p.ID)
	assert.ErrorIs(t, err, pipeline.ErrNotStartable)

	events = follow(t, s, p.ID, false, func() {
		_, err := s.SubmitAnswers(ctx, p.ID, map[string]any{"budget": "80000", "goals": "sales"})
		require.NoError(t, err)
	})
	assert.Equal(t, pipeline.EventPipelineComplete, events[len(events)-1].Type)
	waitIdle(t, s, p.ID)

	st, err = s.GetStatus(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, types.StatusCompleted, st.Project.Status)
	assert.Equal(t, 80000, *st.Project.Settings.BudgetMonthly)

	_, err = s.SubmitAnswers(ctx, p.ID, map[string]any{"budget": 1})
	assert.ErrorIs(t, err, pipeline.ErrNotAwaitingAnswers)

	// A finished project streams its final state and closes.
	events = follow(t, s, p.ID, false, func() {})
	require.Len(t, events, 1)
	assert.Equal(t, pipeline.EventPipelineComplete, events[0].Type)
}

func TestArtifactsAndRefinement(t *testing.T) {
	s := newService(t, client.FakeWithoutQuestions())
	ctx := context.Background()
	p, err := s.CreateProject(ctx, "u1", "https://coffee.example", "")
	require.NoError(t, err)
	follow(t, s, p.ID, false, func() {
		_, err := s.StartPipeline(ctx, p.ID)
		require.NoError(t, err)
	})
	waitIdle(t, s, p.ID)

	all, err := s.ListArtifacts(ctx, p.ID)
	require.NoError(t, err)
	require.NotEmpty(t, all)
	assert.Equal(t, artifact.TypeBrief, all[0].Type)

	banners, err := s.LatestArtifact(ctx, p.ID, "banners")
	require.NoError(t, err)
	var set artifact.BannerSet
	require.NoError(t, banners.Decode(&set))
	require.Equal(t, 1, set.TotalCount)
	assert.True(t, set.Banners[0].Placeholder)

	_, err = s.LatestArtifact(ctx, p.ID, "poster")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	got, err := s.GetArtifact(ctx, banners.ID)
	require.NoError(t, err)
	assert.Equal(t, banners.Version, got.Version)

	edited, err := s.EditArtifact(ctx, p.ID, "strategy", json.RawMessage(`{"summary":"mine"}`), "shorter please")
	require.NoError(t, err)
	assert.Equal(t, artifact.StatusUserEdited, edited.Status)
	assert.Equal(t, artifact.UserProducer, edited.Producer)
	assert.Equal(t, 2, edited.Version)
	_, err = s.EditArtifact(ctx, p.ID, "strategy", json.RawMessage(`{nope`), "")
	assert.ErrorIs(t, err, ErrInvalidArgument)

	regenerated, err := s.RegenerateItem(ctx, p.ID, "c1", "punchier")
	require.NoError(t, err)
	assert.Equal(t, 2, regenerated.Version)
	varied, err := s.CreateVariation(ctx, p.ID, "c1", "angle")
	require.NoError(t, err)
	assert.Equal(t, 3, varied.Version)
	_, err = s.CreateVariation(ctx, p.ID, "c1", "volume")
	assert.ErrorIs(t, err, pipeline.ErrInvalidRefinement)
	more, err := s.GenerateMore(ctx, p.ID, "vk_ads", 2)
	require.NoError(t, err)
	assert.Equal(t, 4, more.Version)
	_, err = s.GenerateMore(ctx, p.ID, "fax", 2)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	summary, err := s.Summary(ctx, p.ID)
	require.NoError(t, err)
	assert.Contains(t, summary, "summary")

	list, err := s.ListProjects(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "Fake Coffee", list[0].Name)
}

func TestUnknownProject(t *testing.T) {
	s := newService(t)
	_, err := s.GetStatus(context.Background(), "missing")
	assert.ErrorIs(t, err, projectrepo.ErrNotFound)
	_, err = s.StreamEvents(context.Background(), "missing", false)
	assert.ErrorIs(t, err, projectrepo.ErrNotFound)
}

// finishingStore runs onGet once, on the next Get, to let a run end while a
// caller is reading the project.
type finishingStore struct {
	projectrepo.Store
	mu    sync.Mutex
	onGet func(types.Project) types.Project
}

func (s *finishingStore) Get(ctx context.Context, id string) (types.Project, error) {
	p, err := s.Store.Get(ctx, id)
	s.mu.Lock()
	hook := s.onGet
	s.onGet = nil
	s.mu.Unlock()
	if err == nil && hook != nil {
		p = hook(p)
	}
	return p, err
}

func TestStreamEventsSeesRunEndingDuringSubscribe(t *testing.T) {
	for _, tc := range []struct {
		name  string
		stale bool
	}{
		{"status read before completion", true},
		{"status read after completion", false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			store := &finishingStore{Store: projectrepo.NewMemoryStore()}
			team, err := agent.NewTeam(client.NewFakeClient(), nil, nil, nil)
			require.NoError(t, err)
			p, err := pipeline.New(store, artifactrepo.NewMemoryStore(), team, staticSource{})
			require.NoError(t, err)
			runner := pipeline.NewRunner(p)
			t.Cleanup(func() { require.NoError(t, runner.Shutdown(context.Background())) })
			s := New(runner, nil)

			proj, err := s.CreateProject(ctx, "u1", "https://coffee.example", "")
			require.NoError(t, err)
			_, err = store.Update(ctx, proj.ID, func(pr *types.Project) error {
				pr.Status = types.StatusDesign
				return nil
			})
			require.NoError(t, err)

			store.onGet = func(read types.Project) types.Project {
				done, err := store.Store.Update(ctx, proj.ID, func(pr *types.Project) error {
					pr.Status = types.StatusCompleted
					return nil
				})
				require.NoError(t, err)
				p.Events().Emit(pipeline.Event{Type: pipeline.EventPipelineComplete, ProjectID: proj.ID, Status: types.StatusCompleted})
				if tc.stale {
					return read
				}
				return done
			}

			events := follow(t, s, proj.ID, false, func() {})
			require.Len(t, events, 1)
			assert.Equal(t, pipeline.EventPipelineComplete, events[0].Type)
		})
	}
}

func TestStatusReportsLLMUsage(t *testing.T) {
	ctx := context.Background()
	cli := llm.Wrap(client.NewFakeClient(client.FakeWithoutQuestions()), llm.WithHooks())
	team, err := agent.NewTeam(cli, nil, nil, nil)
	require.NoError(t, err)
	p, err := pipeline.New(projectrepo.NewMemoryStore(), artifactrepo.NewMemoryStore(), team, staticSource{})
	require.NoError(t, err)
	runner := pipeline.NewRunner(p)
	t.Cleanup(func() { require.NoError(t, runner.Shutdown(context.Background())) })
	s := New(runner, nil)

	proj, err := s.CreateProject(ctx, "u1", "https://coffee.example", "")
	require.NoError(t, err)
	st, err := s.GetStatus(ctx, proj.ID)
	require.NoError(t, err)
	assert.Nil(t, st.LLM)

	follow(t, s, proj.ID, false, func() {
		_, err := s.StartPipeline(ctx, proj.ID)
		require.NoError(t, err)
	})
	waitIdle(t, s, proj.ID)

	st, err = s.GetStatus(ctx, proj.ID)
	require.NoError(t, err)
	require.NotNil(t, st.LLM)
	assert.Positive(t, st.LLM.Calls[llm.PhaseAnalyze])
	assert.Positive(t, st.LLM.Calls[llm.PhaseStrategy])
	assert.Positive(t, st.LLM.Calls[llm.PhaseCopy])
	assert.Positive(t, st.LLM.Calls[llm.PhaseReview])
	assert.Zero(t, st.LLM.Failures)
}
