package agent

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adflow/internal/artifact"
	"adflow/internal/llm"
	"adflow/internal/llm/client"
	"adflow/internal/render"
	"adflow/internal/types"
)

// scripted answers GenerateJSON from a per-phase table.
type scripted struct {
	replies map[string]string
	err     error
	panics  bool
	calls   int
	inputs  []any
}

func (s *scripted) Name() string { return "scripted" }
func (s *scripted) Close() error { return nil }
func (s *scripted) GenerateJSON(ctx context.Context, prompt string, input any) (json.RawMessage, error) {
	s.calls++
	s.inputs = append(s.inputs, input)
	if s.panics {
		panic("provider exploded")
	}
	if s.err != nil {
		return nil, s.err
	}
	return json.RawMessage(s.replies[llm.PhaseFrom(ctx)]), nil
}
func (s *scripted) Complete(ctx context.Context, prompt string, input any) (string, error) {
	s.calls++
	return "  summary text \n", s.err
}

func TestProjectManagerAnalyze(t *testing.T) {
	pm := NewProjectManager(client.NewFakeClient(), nil)
	res := pm.Execute(context.Background(), AnalyzeRequest{Source: types.SourceSummary{URL: "https://coffee.example", Kind: types.SourceWebsite}})
	require.True(t, res.OK(), "err: %v", res.Err)

	var out artifact.Analysis
	require.NoError(t, res.Decode(&out))
	assert.Equal(t, "Fake Coffee", out.Brief.BusinessName)
	assert.Equal(t, "https://coffee.example", out.Brief.TargetURL)
	assert.Len(t, out.Questions, 2)
}

func TestProjectManagerReviewClampsScore(t *testing.T) {
	pm := NewProjectManager(&scripted{replies: map[string]string{
		llm.PhaseReview: `{"approved": false, "score": 42, "feedback": "wow"}`,
	}}, nil)
	res := pm.Execute(context.Background(), ReviewRequest{Target: artifact.TypeCopy, Output: json.RawMessage(`{}`)})
	require.True(t, res.OK())

	var r artifact.Review
	require.NoError(t, res.Decode(&r))
	assert.Equal(t, 10, r.Score)
}

func TestUnsupportedRequests(t *testing.T) {
	cli := client.NewFakeClient()
	cases := []struct {
		agent Agent
		req   Request
	}{
		{NewProjectManager(cli, nil), CreateRequest{Target: artifact.TypeStrategy}},
		{NewStrategist(cli, nil), ReviewRequest{Target: artifact.TypeStrategy}},
		{NewStrategist(cli, nil), CreateRequest{Target: artifact.TypeCopy}},
		{NewCopywriter(cli, nil), AnalyzeRequest{}},
		{NewDesigner(cli, nil, nil, nil), ReviseRequest{Target: artifact.TypeCopy}},
	}
	for _, tc := range cases {
		res := tc.agent.Execute(context.Background(), tc.req)
		var ue *UnsupportedRequestError
		require.True(t, errors.As(res.Err, &ue), "%s/%s: %v", tc.agent.Name(), tc.req.Kind(), res.Err)
		assert.Equal(t, tc.agent.Name(), ue.Agent)
		assert.Equal(t, tc.req.Kind(), ue.Kind)
	}
	assert.Zero(t, cli.Calls())
}

func TestTypedFailures(t *testing.T) {
	t.Run("schema mismatch", func(t *testing.T) {
		s := NewStrategist(&scripted{replies: map[string]string{llm.PhaseStrategy: `{"platforms": "all"}`}}, nil)
		res := s.Execute(context.Background(), CreateRequest{Target: artifact.TypeStrategy})
		var ve *ValidationError
		require.True(t, errors.As(res.Err, &ve), "got %v", res.Err)
		var sve *llm.SchemaValidationError
		assert.True(t, errors.As(res.Err, &sve))
		assert.Nil(t, res.Output)
	})
	t.Run("provider error", func(t *testing.T) {
		boom := errors.New("503")
		c := NewCopywriter(&scripted{err: boom}, nil)
		res := c.Execute(context.Background(), CreateRequest{Target: artifact.TypeCopy})
		var ge *GenerationError
		require.True(t, errors.As(res.Err, &ge))
		assert.ErrorIs(t, res.Err, boom)
	})
	t.Run("panic", func(t *testing.T) {
		c := NewCopywriter(&scripted{panics: true}, nil)
		res := c.Execute(context.Background(), ReviseRequest{Target: artifact.TypeCopy, Previous: json.RawMessage(`{}`)})
		var ge *GenerationError
		require.True(t, errors.As(res.Err, &ge))
		assert.Contains(t, ge.Error(), "provider exploded")
	})
}

func TestCopywriterNormalizesTotals(t *testing.T) {
	c := NewCopywriter(client.NewFakeClient(), nil)
	res := c.Execute(context.Background(), CreateRequest{Target: artifact.TypeCopy})
	require.True(t, res.OK())

	var set artifact.CreativeSet
	require.NoError(t, res.Decode(&set))
	assert.Equal(t, map[string]int{"yandex_direct": 1, "telegram_ads": 1}, set.TotalByPlatform)
}

type failingRenderer struct{ calls int }

func (f *failingRenderer) Render(ctx context.Context, spec artifact.BannerSpec) (string, error) {
	f.calls++
	return "", errors.New("render api down")
}

func TestDesignerNoVisualPlatforms(t *testing.T) {
	fake := client.NewFakeClient()
	d := NewDesigner(fake, nil, &failingRenderer{}, nil)
	set := &artifact.CreativeSet{Creatives: []artifact.Creative{
		{ID: "c2", Platform: artifact.TelegramAds, Telegram: &artifact.TelegramCreative{Text: "hi", ButtonText: "Go"}},
	}}
	res := d.Execute(context.Background(), CreateRequest{Target: artifact.TypeBanners, Input: StageInput{
		Creatives: set,
		Strategy:  &artifact.Strategy{Platforms: []artifact.PlatformStrategy{{Platform: artifact.TelegramAds, Enabled: true}}},
	}})
	require.True(t, res.OK())

	var banners artifact.BannerSet
	require.NoError(t, res.Decode(&banners))
	assert.Equal(t, 0, banners.TotalCount)
	assert.Empty(t, banners.Banners)
	assert.Zero(t, fake.Calls(), "no spec call without visual creatives")
}

func TestDesignerFallsBackToPlaceholder(t *testing.T) {
	r := &failingRenderer{}
	d := NewDesigner(client.NewFakeClient(), nil, r, nil)
	set := &artifact.CreativeSet{Creatives: []artifact.Creative{
		{ID: "c1", Platform: artifact.YandexDirect, Yandex: &artifact.YandexCreative{Headline: "h", Text: "t"}},
		{ID: "c2", Platform: artifact.TelegramAds, Telegram: &artifact.TelegramCreative{Text: "hi", ButtonText: "Go"}},
	}}
	res := d.Execute(context.Background(), CreateRequest{Target: artifact.TypeBanners, Input: StageInput{Creatives: set}})
	require.True(t, res.OK(), "err: %v", res.Err)

	var banners artifact.BannerSet
	require.NoError(t, res.Decode(&banners))
	require.Equal(t, 1, banners.TotalCount)
	b := banners.Banners[0]
	assert.Equal(t, "c1", b.CreativeID)
	assert.True(t, b.Placeholder)
	assert.Equal(t, render.PlaceholderURL(1080, 607), b.ImageURL)
	assert.Equal(t, 1, r.calls)
}

func TestVisualCreativesRespectsStrategy(t *testing.T) {
	set := &artifact.CreativeSet{Creatives: []artifact.Creative{
		{ID: "y", Platform: artifact.YandexDirect},
		{ID: "v", Platform: artifact.VKAds},
	}}
	strategy := &artifact.Strategy{Platforms: []artifact.PlatformStrategy{
		{Platform: artifact.YandexDirect, Enabled: false},
		{Platform: artifact.VKAds, Enabled: true},
	}}
	got := VisualCreatives(set, strategy)
	require.Len(t, got, 1)
	assert.Equal(t, "v", got[0].ID)
	assert.Len(t, VisualCreatives(set, nil), 2)
}

func TestSummarize(t *testing.T) {
	pm := NewProjectManager(&scripted{}, nil)
	out, err := pm.Summarize(context.Background(), StageInput{ProjectID: "p1"}, nil)
	require.NoError(t, err)
	assert.Equal(t, "summary text", out)
}

func TestDefaultPrompts(t *testing.T) {
	table, err := DefaultPrompts()
	require.NoError(t, err)
	assert.Len(t, table.Criteria(artifact.TypeCopy), 5)
	assert.Len(t, table.Criteria(artifact.TypeBanners), 3)
	assert.Equal(t, []string{"Overall quality and completeness"}, table.Criteria(artifact.TypeBrief))
	assert.Contains(t, table.Prompt(RoleCopywriter, "create"), "Yandex headline 56")

	_, err = ParsePrompts([]byte("roles: {}"))
	assert.Error(t, err)
}

func TestReviseKeepsCreateContext(t *testing.T) {
	in := StageInput{
		Brief:      &types.Brief{BusinessName: "Zerno"},
		Strategy:   &artifact.Strategy{Summary: "morning commuters"},
		Hypotheses: &artifact.Hypotheses{Rationale: "speed sells"},
		Settings:   &types.Settings{Goals: []string{"leads"}},
	}

	cli := &scripted{replies: map[string]string{
		llm.PhaseCopy:       `{"creatives": []}`,
		llm.PhaseStrategy:   `{"summary": "s"}`,
		llm.PhaseHypotheses: `{"hypotheses": [], "total_creatives": 1}`,
	}}
	cases := []struct {
		agent Agent
		req   ReviseRequest
		keys  []string
	}{
		{NewCopywriter(cli, nil), ReviseRequest{Target: artifact.TypeCopy, Input: in, Previous: json.RawMessage(`{}`), Feedback: "shorter"},
			[]string{"hypotheses", "strategy", "brief"}},
		{NewStrategist(cli, nil), ReviseRequest{Target: artifact.TypeStrategy, Input: in, Previous: json.RawMessage(`{}`), Feedback: "more vk"},
			[]string{"brief", "settings", "interview"}},
		{NewStrategist(cli, nil), ReviseRequest{Target: artifact.TypeHypotheses, Input: in, Previous: json.RawMessage(`{}`), Feedback: "bolder"},
			[]string{"strategy", "brief"}},
	}
	for _, tc := range cases {
		res := tc.agent.Execute(context.Background(), tc.req)
		require.True(t, res.OK(), "%s: %v", tc.req.Target, res.Err)

		got, ok := cli.inputs[len(cli.inputs)-1].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, tc.req.Feedback, got["feedback"])
		assert.Contains(t, got, "original")
		for _, k := range tc.keys {
			assert.Contains(t, got, k, "%s revise", tc.req.Target)
		}
	}
	copyInput := cli.inputs[0].(map[string]any)
	assert.Equal(t, in.Hypotheses, copyInput["hypotheses"])
	assert.Equal(t, in.Strategy, copyInput["strategy"])
}
