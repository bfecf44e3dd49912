package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapInterviewAliases(t *testing.T) {
	iv := MapInterview(map[string]any{
		"q_budget_monthly":   "120k",
		"main_goals":         []any{"leads", "brand awareness"},
		"target_audience":    "women 25-40",
		"preferred_channels": "vk_ads, telegram_ads",
		"excluded_platforms": []string{"google_ads"},
		"competitors":        "Foo; Bar",
		"brand_tone":         "friendly",
		"restrictions":       "no discounts",
		"favourite_colour":   "green",
	})

	require.NotNil(t, iv.BudgetMonthly)
	assert.Equal(t, 120000, *iv.BudgetMonthly)
	assert.Equal(t, []string{"leads", "brand awareness"}, iv.Goals)
	assert.Equal(t, "women 25-40", iv.TargetAudience)
	assert.Equal(t, []string{"vk_ads", "telegram_ads"}, iv.PreferredPlatforms)
	assert.Equal(t, []string{"google_ads"}, iv.ExcludedPlatforms)
	assert.Equal(t, []string{"Foo", "Bar"}, iv.Competitors)
	assert.Equal(t, "friendly", iv.BrandGuidelines)
	assert.Equal(t, "no discounts", iv.AdditionalNotes)
	assert.Equal(t, "green", iv.Answers["favourite_colour"])
}

func TestMapInterviewBudgetIsBestEffort(t *testing.T) {
	cases := []struct {
		in   any
		want *int
	}{
		{"50 000 руб", intp(50000)},
		{"50,000", intp(50000)},
		{"1.5m", intp(1500000)},
		{float64(70000), intp(70000)},
		{"about a lot", nil},
		{"", nil},
		{float64(-5), nil},
		{map[string]any{"x": 1}, nil},
	}
	for _, tc := range cases {
		iv := MapInterview(map[string]any{"budget": tc.in})
		if tc.want == nil {
			assert.Nil(t, iv.BudgetMonthly, "input %v", tc.in)
			continue
		}
		require.NotNil(t, iv.BudgetMonthly, "input %v", tc.in)
		assert.Equal(t, *tc.want, *iv.BudgetMonthly, "input %v", tc.in)
	}
}

func TestMapInterviewEmpty(t *testing.T) {
	iv := MapInterview(nil)
	assert.Nil(t, iv.BudgetMonthly)
	assert.Empty(t, iv.Answers)
}

func TestInterviewSettings(t *testing.T) {
	iv := DefaultInterview()
	s := iv.Settings()
	require.NotNil(t, s.BudgetMonthly)
	assert.Equal(t, 50000, *s.BudgetMonthly)
	assert.Equal(t, []string{"leads", "sales"}, s.Goals)

	*s.BudgetMonthly = 1
	assert.Equal(t, 50000, *iv.BudgetMonthly)
}

func TestStatusStage(t *testing.T) {
	assert.Equal(t, 0, StatusCreated.Stage())
	assert.Equal(t, 1, StatusQuestions.Stage())
	assert.Equal(t, 6, StatusCompleted.Stage())
	assert.Equal(t, -1, StatusFailed.Stage())
	assert.True(t, StatusFailed.Terminal())
	assert.False(t, StatusQuestions.Terminal())

	s, ok := ParseStatus(" Design ")
	assert.True(t, ok)
	assert.Equal(t, StatusDesign, s)
}

func intp(v int) *int { return &v }

func TestMapInterviewClassifiesOpaqueIDsByQuestionText(t *testing.T) {
	hints := map[string]string{
		"q1": "What is your monthly advertising budget?",
		"q2": "What are your main goals?",
		"q3": "Какая у вас целевая аудитория?",
		"q4": "Anything you would like us to know?",
	}
	iv := MapInterviewWithHints(map[string]any{
		"q1":         "70000",
		"q2":         "leads",
		"q3":         "студенты",
		"q4":         "open late",
		"competitor": "Foo",
	}, hints)

	require.NotNil(t, iv.BudgetMonthly)
	assert.Equal(t, 70000, *iv.BudgetMonthly)
	assert.Equal(t, []string{"leads"}, iv.Goals)
	assert.Equal(t, "студенты", iv.TargetAudience)
	assert.Equal(t, []string{"Foo"}, iv.Competitors)
	assert.Equal(t, "open late", iv.Answers["q4"])
	assert.Equal(t, "70000", iv.Answers["q1"])
}
