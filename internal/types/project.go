package types

import (
	"strings"
	"time"
)

// Status is the pipeline position of a project.
type Status string

const (
	StatusCreated     Status = "created"
	StatusAnalyzing   Status = "analyzing"
	StatusQuestions   Status = "questions"
	StatusStrategy    Status = "strategy"
	StatusHypotheses  Status = "hypotheses"
	StatusCopywriting Status = "copywriting"
	StatusDesign      Status = "design"
	StatusCompleted   Status = "completed"
	StatusFailed      Status = "failed"
)

// Terminal reports whether no further forward progress is possible without an
// explicit restart.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Stage returns the ordinal of the status in the forward sequence.
// Failed keeps no ordinal of its own and reports -1.
func (s Status) Stage() int {
	switch s {
	case StatusCreated:
		return 0
	case StatusAnalyzing, StatusQuestions:
		return 1
	case StatusStrategy:
		return 2
	case StatusHypotheses:
		return 3
	case StatusCopywriting:
		return 4
	case StatusDesign:
		return 5
	case StatusCompleted:
		return 6
	default:
		return -1
	}
}

func ParseStatus(raw string) (Status, bool) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	switch s {
	case StatusCreated, StatusAnalyzing, StatusQuestions, StatusStrategy, StatusHypotheses,
		StatusCopywriting, StatusDesign, StatusCompleted, StatusFailed:
		return s, true
	}
	return "", false
}

// Brief is what the analysis stage learned about the advertised business.
type Brief struct {
	BusinessName        string   `json:"business_name"`
	BusinessDescription string   `json:"business_description,omitempty"`
	ProductsServices    []string `json:"products_services,omitempty"`
	UniqueSellingPoints []string `json:"unique_selling_points,omitempty"`
	TargetURL           string   `json:"target_url,omitempty"`
	DetectedNiche       string   `json:"detected_niche,omitempty"`
	DetectedLanguage    string   `json:"detected_language,omitempty"`
}

// Settings are the campaign parameters derived from the interview.
type Settings struct {
	BudgetMonthly             *int     `json:"budget_monthly,omitempty"`
	Goals                     []string `json:"goals,omitempty"`
	TargetAudienceDescription string   `json:"target_audience_description,omitempty"`
	ExcludedPlatforms         []string `json:"excluded_platforms,omitempty"`
	BrandGuidelines           string   `json:"brand_guidelines,omitempty"`
	Competitors               []string `json:"competitors,omitempty"`
	AdditionalNotes           string   `json:"additional_notes,omitempty"`
}

// Project is one end-to-end request to build an advertising package.
type Project struct {
	ID           string     `json:"id"`
	OwnerID      string     `json:"owner_id"`
	Name         string     `json:"name"`
	URL          string     `json:"url"`
	Status       Status     `json:"status"`
	CurrentStage int        `json:"current_stage"`
	Brief        *Brief     `json:"brief,omitempty"`
	Settings     *Settings  `json:"settings,omitempty"`
	Interview    *Interview `json:"interview,omitempty"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

// Clone returns a deep copy so stores can hand out values without sharing
// mutable pointers across goroutines.
func (p Project) Clone() Project {
	out := p
	if p.Brief != nil {
		b := *p.Brief
		b.ProductsServices = append([]string(nil), p.Brief.ProductsServices...)
		b.UniqueSellingPoints = append([]string(nil), p.Brief.UniqueSellingPoints...)
		out.Brief = &b
	}
	if p.Settings != nil {
		s := *p.Settings
		if p.Settings.BudgetMonthly != nil {
			v := *p.Settings.BudgetMonthly
			s.BudgetMonthly = &v
		}
		s.Goals = append([]string(nil), p.Settings.Goals...)
		s.ExcludedPlatforms = append([]string(nil), p.Settings.ExcludedPlatforms...)
		s.Competitors = append([]string(nil), p.Settings.Competitors...)
		out.Settings = &s
	}
	if p.Interview != nil {
		iv := p.Interview.Clone()
		out.Interview = &iv
	}
	return out
}
