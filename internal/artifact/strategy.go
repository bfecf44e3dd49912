package artifact

import (
	"fmt"
	"strings"
)

// Platform is an advertising placement the pipeline can plan for.
type Platform string

const (
	YandexDirect    Platform = "yandex_direct"
	YandexBusiness  Platform = "yandex_business"
	VKAds           Platform = "vk_ads"
	VKMarket        Platform = "vk_market"
	TelegramAds     Platform = "telegram_ads"
	TelegramSeeding Platform = "telegram_seeding"
	GoogleAds       Platform = "google_ads"
	MetaAds         Platform = "meta_ads"
)

// PlatformSpec holds the copy limits and banner size for one platform.
// Zero limits mean the platform imposes none we check.
type PlatformSpec struct {
	Platform       Platform
	HeadlineMax    int
	TextMax        int
	TextFullMax    int
	ShortTextMax   int
	ButtonMax      int
	QuickLinksMax  int
	QuickLinkLen   int
	BannerSize     string
	NeedsBanner    bool
	DisplayName    string
	DefaultFormats []string
}

var catalog = map[Platform]PlatformSpec{
	YandexDirect: {
		Platform: YandexDirect, DisplayName: "Yandex Direct",
		HeadlineMax: 56, TextMax: 81, QuickLinksMax: 4, QuickLinkLen: 30,
		BannerSize: "1080x607", NeedsBanner: true,
		DefaultFormats: []string{"yd_text", "yd_text_image"},
	},
	YandexBusiness: {Platform: YandexBusiness, DisplayName: "Yandex Business"},
	VKAds: {
		Platform: VKAds, DisplayName: "VK Ads",
		HeadlineMax: 40, TextMax: 220, TextFullMax: 2000, ButtonMax: 25,
		BannerSize: "1080x607", NeedsBanner: true,
		DefaultFormats: []string{"vk_universal"},
	},
	VKMarket: {Platform: VKMarket, DisplayName: "VK Market"},
	TelegramAds: {
		Platform: TelegramAds, DisplayName: "Telegram Ads",
		TextMax: 160, ButtonMax: 25,
		DefaultFormats: []string{"tg_ads_text"},
	},
	TelegramSeeding: {
		Platform: TelegramSeeding, DisplayName: "Telegram seeding",
		TextMax: 1000, ShortTextMax: 300, ButtonMax: 25,
		DefaultFormats: []string{"tg_seeding_post"},
	},
	GoogleAds: {Platform: GoogleAds, DisplayName: "Google Ads"},
	MetaAds:   {Platform: MetaAds, DisplayName: "Meta Ads"},
}

var platformOrder = []Platform{
	YandexDirect, YandexBusiness, VKAds, VKMarket,
	TelegramAds, TelegramSeeding, GoogleAds, MetaAds,
}

// Platforms lists every known platform in catalog order.
func Platforms() []Platform { return append([]Platform(nil), platformOrder...) }

func ParsePlatform(raw string) (Platform, error) {
	p := Platform(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := catalog[p]; !ok {
		return "", fmt.Errorf("unknown platform %q", raw)
	}
	return p, nil
}

// Spec returns the catalog entry. Unknown platforms get an empty spec.
func (p Platform) Spec() PlatformSpec {
	if s, ok := catalog[p]; ok {
		return s
	}
	return PlatformSpec{Platform: p}
}

// Visual reports whether creatives for p are rendered as banners.
func (p Platform) Visual() bool { return p.Spec().NeedsBanner }

type TargetAudience struct {
	Name         string   `json:"name"`
	Description  string   `json:"description,omitempty"`
	Demographics string   `json:"demographics,omitempty"`
	Interests    []string `json:"interests,omitempty"`
	PainPoints   []string `json:"pain_points,omitempty"`
	Triggers     []string `json:"triggers,omitempty"`
}

type BudgetAllocation struct {
	Platform   Platform `json:"platform"`
	Percentage int      `json:"percentage"`
	AmountRub  *int     `json:"amount_rub,omitempty"`
	Rationale  string   `json:"rationale,omitempty"`
}

type PlatformStrategy struct {
	Platform          Platform `json:"platform"`
	Enabled           bool     `json:"enabled"`
	Formats           []string `json:"formats,omitempty"`
	TargetingApproach string   `json:"targeting_approach,omitempty"`
	CreativesCount    int      `json:"creatives_count,omitempty"`
	Notes             string   `json:"notes,omitempty"`
	Recommended       bool     `json:"recommended,omitempty"`
	Priority          int      `json:"priority,omitempty"`
	MinBudgetRub      int      `json:"min_budget_rub,omitempty"`
	ExpectedCPARange  string   `json:"expected_cpa_range,omitempty"`
}

// Strategy is the content of a strategy artifact.
type Strategy struct {
	Summary                string             `json:"summary"`
	TargetAudiences        []TargetAudience   `json:"target_audiences,omitempty"`
	Platforms              []PlatformStrategy `json:"platforms,omitempty"`
	BudgetAllocation       []BudgetAllocation `json:"budget_allocation,omitempty"`
	KeyMessages            []string           `json:"key_messages,omitempty"`
	ToneOfVoice            string             `json:"tone_of_voice,omitempty"`
	CompetitivePositioning string             `json:"competitive_positioning,omitempty"`
	SuccessMetrics         []string           `json:"success_metrics,omitempty"`
}

// EnabledPlatforms returns the platforms the strategy switched on, in order.
func (s Strategy) EnabledPlatforms() []Platform {
	var out []Platform
	for _, p := range s.Platforms {
		if p.Enabled {
			out = append(out, p.Platform)
		}
	}
	return out
}

// VisualPlatforms returns enabled platforms that need banners.
func (s Strategy) VisualPlatforms() []Platform {
	var out []Platform
	for _, p := range s.EnabledPlatforms() {
		if p.Visual() {
			out = append(out, p)
		}
	}
	return out
}

// Hypothesis is a testable message/audience/platform combination.
type Hypothesis struct {
	ID              string   `json:"id"`
	Name            string   `json:"name"`
	Description     string   `json:"description"`
	TargetAudience  string   `json:"target_audience"`
	Platform        Platform `json:"platform"`
	MessageAngle    string   `json:"message_angle"`
	ExpectedOutcome string   `json:"expected_outcome,omitempty"`
	Priority        int      `json:"priority,omitempty"`
	CreativesNeeded int      `json:"creatives_needed,omitempty"`
}

// Hypotheses is the content of a hypotheses artifact.
type Hypotheses struct {
	Hypotheses     []Hypothesis `json:"hypotheses"`
	TotalCreatives int          `json:"total_creatives,omitempty"`
	Rationale      string       `json:"rationale,omitempty"`
}
