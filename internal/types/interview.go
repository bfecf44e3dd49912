package types

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"
	"unicode"
)

// Interview is the canonical form of the client's answers.
type Interview struct {
	BudgetMonthly      *int              `json:"budget_monthly,omitempty"`
	Goals              []string          `json:"goals,omitempty"`
	TargetAudience     string            `json:"target_audience,omitempty"`
	PreferredPlatforms []string          `json:"preferred_platforms,omitempty"`
	ExcludedPlatforms  []string          `json:"excluded_platforms,omitempty"`
	Competitors        []string          `json:"competitors,omitempty"`
	BrandGuidelines    string            `json:"brand_guidelines,omitempty"`
	AdditionalNotes    string            `json:"additional_notes,omitempty"`
	Answers            map[string]string `json:"answers,omitempty"`
}

const defaultBudgetMonthly = 50000

// DefaultInterview is used when the analysis produced no questions.
func DefaultInterview() Interview {
	b := defaultBudgetMonthly
	return Interview{
		BudgetMonthly: &b,
		Goals:         []string{"leads", "sales"},
	}
}

func (iv Interview) Clone() Interview {
	out := iv
	if iv.BudgetMonthly != nil {
		v := *iv.BudgetMonthly
		out.BudgetMonthly = &v
	}
	out.Goals = append([]string(nil), iv.Goals...)
	out.PreferredPlatforms = append([]string(nil), iv.PreferredPlatforms...)
	out.ExcludedPlatforms = append([]string(nil), iv.ExcludedPlatforms...)
	out.Competitors = append([]string(nil), iv.Competitors...)
	if iv.Answers != nil {
		out.Answers = make(map[string]string, len(iv.Answers))
		for k, v := range iv.Answers {
			out.Answers[k] = v
		}
	}
	return out
}

// Settings derives project settings from the interview.
func (iv Interview) Settings() Settings {
	c := iv.Clone()
	return Settings{
		BudgetMonthly:             c.BudgetMonthly,
		Goals:                     c.Goals,
		TargetAudienceDescription: c.TargetAudience,
		ExcludedPlatforms:         c.ExcludedPlatforms,
		BrandGuidelines:           c.BrandGuidelines,
		Competitors:               c.Competitors,
		AdditionalNotes:           c.AdditionalNotes,
	}
}

type interviewField int

const (
	fieldUnknown interviewField = iota
	fieldBudget
	fieldGoals
	fieldAudience
	fieldPlatforms
	fieldExcluded
	fieldCompetitors
	fieldBrand
	fieldNotes
)

// Order matters: "excluded_platforms" must be tested before "platforms".
var interviewAliases = []struct {
	field interviewField
	keys  []string
}{
	{fieldBudget, []string{"budget", "бюджет"}},
	{fieldExcluded, []string{"excluded", "exclude", "исключ"}},
	{fieldGoals, []string{"goal", "objective", "цель", "цели"}},
	{fieldAudience, []string{"audience", "target", "аудитор"}},
	{fieldPlatforms, []string{"platform", "channel", "площадк", "канал"}},
	{fieldCompetitors, []string{"competitor", "конкурент"}},
	{fieldBrand, []string{"brand", "guideline", "tone", "бренд"}},
	{fieldNotes, []string{"note", "restriction", "constraint", "wish", "comment", "огранич", "пожелан"}},
}

func classifyKey(key string) interviewField {
	k := strings.ToLower(strings.TrimSpace(key))
	for _, alias := range interviewAliases {
		for _, needle := range alias.keys {
			if strings.Contains(k, needle) {
				return alias.field
			}
		}
	}
	return fieldUnknown
}

// MapInterview converts a free-form answer payload into an Interview.
//
// Keys are matched by substring against the canonical fields, so both
// "budget" and "q_budget_monthly" land in BudgetMonthly. Values that cannot be
// interpreted for their field are dropped; unknown keys are kept verbatim in
// Answers. The mapping never fails.
func MapInterview(answers map[string]any) Interview {
	return MapInterviewWithHints(answers, nil)
}

// MapInterviewWithHints is MapInterview for answers keyed by opaque question
// ids. hints maps an answer key to the text of the question it answers; the
// text is classified first and the key is the fallback.
func MapInterviewWithHints(answers map[string]any, hints map[string]string) Interview {
	var iv Interview
	keys := make([]string, 0, len(answers))
	for k := range answers {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		raw := answers[key]
		text := answerText(raw)
		if text != "" {
			if iv.Answers == nil {
				iv.Answers = make(map[string]string, len(answers))
			}
			iv.Answers[key] = text
		}
		field := classifyKey(hints[key])
		if field == fieldUnknown {
			field = classifyKey(key)
		}
		switch field {
		case fieldBudget:
			if b, ok := parseBudget(raw); ok {
				iv.BudgetMonthly = &b
			}
		case fieldGoals:
			iv.Goals = appendUnique(iv.Goals, answerList(raw)...)
		case fieldAudience:
			iv.TargetAudience = joinNonEmpty(iv.TargetAudience, text)
		case fieldPlatforms:
			iv.PreferredPlatforms = appendUnique(iv.PreferredPlatforms, answerList(raw)...)
		case fieldExcluded:
			iv.ExcludedPlatforms = appendUnique(iv.ExcludedPlatforms, answerList(raw)...)
		case fieldCompetitors:
			iv.Competitors = appendUnique(iv.Competitors, answerList(raw)...)
		case fieldBrand:
			iv.BrandGuidelines = joinNonEmpty(iv.BrandGuidelines, text)
		case fieldNotes:
			iv.AdditionalNotes = joinNonEmpty(iv.AdditionalNotes, text)
		}
	}
	return iv
}

func answerText(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []any:
		parts := make([]string, 0, len(x))
		for _, item := range x {
			if s := answerText(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case []string:
		return strings.Join(x, ", ")
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case json.Number:
		return x.String()
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func answerList(v any) []string {
	var items []string
	switch x := v.(type) {
	case []any:
		for _, item := range x {
			items = append(items, answerText(item))
		}
	case []string:
		items = append(items, x...)
	default:
		items = strings.FieldsFunc(answerText(v), func(r rune) bool {
			return r == ',' || r == ';' || r == '\n'
		})
	}
	out := make([]string, 0, len(items))
	for _, s := range items {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// parseBudget accepts numbers and strings such as "50 000", "50000 rub",
// "120k" or "1.5m". Anything else is reported as not ok.
func parseBudget(v any) (int, bool) {
	switch x := v.(type) {
	case float64:
		return budgetFromFloat(x)
	case int:
		return budgetFromFloat(float64(x))
	case int64:
		return budgetFromFloat(float64(x))
	case json.Number:
		f, err := x.Float64()
		if err != nil {
			return 0, false
		}
		return budgetFromFloat(f)
	case string:
		return parseBudgetString(x)
	}
	return 0, false
}

func parseBudgetString(s string) (int, bool) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return 0, false
	}
	var digits strings.Builder
	multiplier := 1.0
	seenDigit := false
scan:
	for _, r := range s {
		switch {
		case unicode.IsDigit(r):
			digits.WriteRune(r)
			seenDigit = true
		case (r == '.' || r == ',') && seenDigit:
			digits.WriteRune('.')
		case unicode.IsSpace(r) || r == '_':
		case seenDigit && (r == 'k' || r == 'к'):
			multiplier = 1e3
		case seenDigit && (r == 'm' || r == 'м'):
			multiplier = 1e6
		default:
			if seenDigit {
				break scan
			}
		}
	}
	raw := digits.String()
	// "50,000" is a thousands separator, not a decimal point.
	if strings.Count(raw, ".") > 1 || (strings.Count(raw, ".") == 1 && multiplier == 1 && len(raw)-strings.Index(raw, ".") == 4) {
		raw = strings.ReplaceAll(raw, ".", "")
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, false
	}
	return budgetFromFloat(f * multiplier)
}

func budgetFromFloat(f float64) (int, bool) {
	if math.IsNaN(f) || math.IsInf(f, 0) || f < 0 || f > math.MaxInt32 {
		return 0, false
	}
	return int(math.Round(f)), true
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		found := false
		for _, cur := range dst {
			if strings.EqualFold(cur, v) {
				found = true
				break
			}
		}
		if !found {
			dst = append(dst, v)
		}
	}
	return dst
}

func joinNonEmpty(cur, next string) string {
	switch {
	case next == "":
		return cur
	case cur == "":
		return next
	default:
		return cur + "\n" + next
	}
}
