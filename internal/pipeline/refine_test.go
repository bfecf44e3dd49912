package pipeline

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adflow/internal/agent"
	"adflow/internal/artifact"
)

func completedFixture(t *testing.T) (*fixture, string) {
	t.Helper()
	f := newFixture(t, newStubManager(), newStubWorker())
	proj := f.project(t)
	require.NoError(t, f.p.Run(context.Background(), proj.ID))
	return f, proj.ID
}

func latestCopy(t *testing.T, f *fixture, projectID string) (artifact.Artifact, artifact.CreativeSet) {
	t.Helper()
	a, err := f.artifacts.Latest(context.Background(), projectID, artifact.TypeCopy)
	require.NoError(t, err)
	var set artifact.CreativeSet
	require.NoError(t, a.Decode(&set))
	return a, set
}

func TestRegenerateItem(t *testing.T) {
	f, id := completedFixture(t)
	f.worker.outputs[artifact.TypeCopy] = []string{`{"creatives":[{"id":"x","platform":"vk_ads","yandex":{"headline":"Brand new","text":"Still fresh"}}]}`}

	saved, err := f.p.RegenerateItem(context.Background(), id, "c1", "more energy")
	require.NoError(t, err)
	assert.Equal(t, 2, saved.Version)
	assert.Equal(t, artifact.StatusApproved, saved.Status)
	assert.Equal(t, "stub_worker", saved.Producer)

	_, set := latestCopy(t, f, id)
	require.Len(t, set.Creatives, 1)
	c := set.Creatives[0]
	assert.Equal(t, "c1", c.ID)
	assert.Equal(t, artifact.Platform("yandex_direct"), c.Platform)
	assert.Equal(t, "A", c.Variant)
	assert.Equal(t, "Brand new", c.Headline())

	reqs := f.worker.calls(artifact.TypeCopy)
	last := reqs[len(reqs)-1].(agent.CreateRequest)
	assert.NotEmpty(t, last.Input.Instruction)
	assert.Equal(t, "more energy", last.Input.Extra["feedback"])
	require.NotNil(t, last.Input.Strategy)

	approved := f.events.ofType(EventArtifactApproved)
	lastEv := approved[len(approved)-1]
	assert.Equal(t, "regenerate", lastEv.Data["refinement"])
	assert.Equal(t, 2, lastEv.Data["version"])
}

func TestCreateVariationAppendsNextVariant(t *testing.T) {
	f, id := completedFixture(t)

	_, err := f.p.CreateVariation(context.Background(), id, "c1", VariationTone)
	require.NoError(t, err)
	_, err = f.p.CreateVariation(context.Background(), id, "c1", VariationCTA)
	require.NoError(t, err)

	a, set := latestCopy(t, f, id)
	assert.Equal(t, 3, a.Version)
	require.Len(t, set.Creatives, 3)
	assert.Equal(t, "c1-b", set.Creatives[1].ID)
	assert.Equal(t, "B", set.Creatives[1].Variant)
	assert.Equal(t, "c1-c", set.Creatives[2].ID)
	assert.Equal(t, "C", set.Creatives[2].Variant)
	assert.Equal(t, "h1", set.Creatives[2].HypothesisID)
	assert.Equal(t, 3, set.TotalByPlatform["yandex_direct"])
}

func TestGenerateMore(t *testing.T) {
	f, id := completedFixture(t)
	f.worker.outputs[artifact.TypeCopy] = []string{`{"creatives":[
		{"id":"n1","hypothesis_id":"h1","telegram":{"text":"one"}},
		{"id":"n2","hypothesis_id":"h1","telegram":{"text":"two"}},
		{"id":"n3","hypothesis_id":"h1","telegram":{"text":"three"}}]}`}

	_, err := f.p.GenerateMore(context.Background(), id, artifact.Platform("telegram_ads"), 2)
	require.NoError(t, err)

	_, set := latestCopy(t, f, id)
	require.Len(t, set.Creatives, 3)
	assert.Equal(t, "n1", set.Creatives[1].ID)
	assert.Equal(t, "n2", set.Creatives[2].ID)
	for _, c := range set.Creatives[1:] {
		assert.Equal(t, artifact.Platform("telegram_ads"), c.Platform)
	}
	assert.Equal(t, "B", set.Creatives[1].Variant)
	assert.Equal(t, "C", set.Creatives[2].Variant)
}

func TestGenerateMoreKeepsIDsUnique(t *testing.T) {
	f, id := completedFixture(t)

	_, err := f.p.GenerateMore(context.Background(), id, artifact.Platform("yandex_direct"), 1)
	require.NoError(t, err)
	_, set := latestCopy(t, f, id)
	require.Len(t, set.Creatives, 2)
	assert.NotEqual(t, set.Creatives[0].ID, set.Creatives[1].ID)
}

func TestRefinementPreconditions(t *testing.T) {
	f, id := completedFixture(t)
	ctx := context.Background()

	_, err := f.p.RegenerateItem(ctx, id, "nope", "")
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = f.p.CreateVariation(ctx, id, "nope", VariationAngle)
	assert.ErrorIs(t, err, ErrItemNotFound)
	_, err = f.p.CreateVariation(ctx, id, "c1", VariationKind("louder"))
	assert.ErrorIs(t, err, ErrInvalidRefinement)
	for _, n := range []int{0, 11} {
		_, err = f.p.GenerateMore(ctx, id, artifact.Platform("vk_ads"), n)
		assert.ErrorIs(t, err, ErrInvalidRefinement)
	}
	_, err = f.p.GenerateMore(ctx, id, artifact.Platform("myspace"), 1)
	assert.ErrorIs(t, err, ErrInvalidRefinement)
	assert.Len(t, f.ofType(t, id, artifact.TypeCopy), 1)

	paused, proj := pausedFixture(t)
	_, err = paused.p.RegenerateItem(ctx, proj.ID, "c1", "")
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = paused.p.GenerateMore(ctx, proj.ID, artifact.Platform("vk_ads"), 1)
	assert.ErrorIs(t, err, ErrNotCompleted)
	_, err = paused.p.Summary(ctx, proj.ID)
	assert.ErrorIs(t, err, ErrNotCompleted)
}

func TestParseVariationKind(t *testing.T) {
	k, err := ParseVariationKind(" CTA ")
	require.NoError(t, err)
	assert.Equal(t, VariationCTA, k)
	_, err = ParseVariationKind("colour")
	assert.ErrorIs(t, err, ErrInvalidRefinement)
}

func TestSummary(t *testing.T) {
	f, id := completedFixture(t)
	got, err := f.p.Summary(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, "Zerno: 1 banners", got)
}
