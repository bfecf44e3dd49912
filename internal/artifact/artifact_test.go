package artifact

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"adflow/internal/types"
)

func TestStatusCanMoveTo(t *testing.T) {
	assert.True(t, StatusReview.CanMoveTo(StatusApproved))
	assert.True(t, StatusReview.CanMoveTo(StatusRevision))
	assert.False(t, StatusApproved.CanMoveTo(StatusRevision))
	assert.False(t, StatusRevision.CanMoveTo(StatusApproved))
	assert.False(t, StatusUserEdited.CanMoveTo(StatusApproved))
	assert.False(t, StatusReview.CanMoveTo(StatusUserEdited))
}

func TestReviewPasses(t *testing.T) {
	cases := []struct {
		name string
		r    Review
		want bool
	}{
		{"flag only", Review{Approved: true, Score: 2}, true},
		{"score only", Review{Score: 8}, true},
		{"neither", Review{Score: 7}, false},
		{"both", Review{Approved: true, Score: 10}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.r.Passes(DefaultApprovalScore))
		})
	}
}

func TestReviewGuidancePrefersInstructions(t *testing.T) {
	r := Review{Feedback: "too long", RevisionInstructions: "cut the headline to 40 chars"}
	assert.Equal(t, "cut the headline to 40 chars", r.Guidance())
	r.RevisionInstructions = "  "
	assert.Equal(t, "too long", r.Guidance())
}

func TestReviewClamp(t *testing.T) {
	assert.Equal(t, 10, Review{Score: 14}.Clamp().Score)
	assert.Equal(t, 0, Review{Score: -1}.Clamp().Score)
	assert.Equal(t, 6, Review{Score: 6}.Clamp().Score)
}

func TestCreativeSetViolations(t *testing.T) {
	set := CreativeSet{Creatives: []Creative{
		{ID: "c2", Platform: VKAds, VK: &VKCreative{Headline: strings.Repeat("я", 41), Text: "ok"}},
		{ID: "c1", Platform: YandexDirect, Yandex: &YandexCreative{
			Headline:   "short",
			Text:       strings.Repeat("x", 82),
			QuickLinks: []string{"a", "b", "c", "d", "e"},
		}},
		{ID: "c3", Platform: TelegramAds, Telegram: &TelegramCreative{Text: "fine", ButtonText: "Go"}},
	}}

	got := set.Violations()
	require.Len(t, got, 3)
	assert.Equal(t, "c1", got[0].CreativeID)
	assert.Equal(t, "yandex.text", got[0].Field)
	assert.Equal(t, 82, got[0].Length)
	assert.Equal(t, "yandex.quick_links", got[1].Field)
	assert.Equal(t, Violation{CreativeID: "c2", Field: "vk.headline", Length: 41, Max: 40}, got[2])
}

func TestCreativeSetNextVariant(t *testing.T) {
	set := CreativeSet{Creatives: []Creative{
		{ID: "a", HypothesisID: "h1", Variant: "A"},
		{ID: "b", HypothesisID: "h1", Variant: "B"},
		{ID: "c", HypothesisID: "h2", Variant: "A"},
	}}
	assert.Equal(t, "C", set.NextVariant("h1"))
	assert.Equal(t, "B", set.NextVariant("h2"))
	assert.Equal(t, "A", set.NextVariant("h9"))
}

func TestStrategyVisualPlatforms(t *testing.T) {
	s := Strategy{Platforms: []PlatformStrategy{
		{Platform: TelegramAds, Enabled: true},
		{Platform: VKAds, Enabled: false},
		{Platform: TelegramSeeding, Enabled: true},
	}}
	assert.Empty(t, s.VisualPlatforms())

	s.Platforms[1].Enabled = true
	assert.Equal(t, []Platform{VKAds}, s.VisualPlatforms())
}

func TestBannerSpecDimensions(t *testing.T) {
	w, h, err := BannerSpec{Size: "1080x607"}.Dimensions()
	require.NoError(t, err)
	assert.Equal(t, 1080, w)
	assert.Equal(t, 607, h)

	_, _, err = BannerSpec{Size: "big"}.Dimensions()
	assert.Error(t, err)
}

func TestQuestionsWithAnswers(t *testing.T) {
	q := Questions{
		Questions: []Question{{ID: "budget", Question: "Budget?"}, {ID: "goal", Question: "Goal?"}},
		Brief:     &types.Brief{BusinessName: "Acme"},
	}
	iv := types.MapInterview(map[string]any{"budget": "70 000", "goal": "leads"})

	got := q.WithAnswers(iv)
	assert.True(t, got.AllAnswered)
	assert.Equal(t, "70 000", got.Questions[0].Answer)
	assert.Equal(t, "leads", got.Questions[1].Answer)
	require.NotNil(t, got.Interview)
	require.NotNil(t, got.Interview.BudgetMonthly)
	assert.Equal(t, 70000, *got.Interview.BudgetMonthly)
	assert.Empty(t, q.Questions[0].Answer, "source must stay untouched")
}

func TestDecodeAndEncodeContent(t *testing.T) {
	raw, err := EncodeContent(NewBannerSet(nil))
	require.NoError(t, err)
	a := Artifact{Type: TypeBanners, Version: 1, Content: raw}

	var set BannerSet
	require.NoError(t, a.Decode(&set))
	assert.Equal(t, 0, set.TotalCount)
	assert.NotNil(t, set.Banners)

	assert.Error(t, Artifact{Type: TypeCopy}.Decode(&set))
}
