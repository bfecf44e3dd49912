package artifact

import (
	"fmt"
	"sort"
	"unicode/utf8"
)

type YandexCreative struct {
	Headline   string   `json:"headline"`
	Text       string   `json:"text"`
	QuickLinks []string `json:"quick_links,omitempty"`
	ImageURL   string   `json:"image_url,omitempty"`
	ImageSize  string   `json:"image_size,omitempty"`
}

type VKCreative struct {
	Headline   string `json:"headline"`
	Text       string `json:"text"`
	TextFull   string `json:"text_full,omitempty"`
	ImageURL   string `json:"image_url,omitempty"`
	ImageSize  string `json:"image_size,omitempty"`
	ButtonText string `json:"button_text,omitempty"`
}

type TelegramCreative struct {
	Text       string `json:"text"`
	ButtonText string `json:"button_text"`
	ButtonURL  string `json:"button_url,omitempty"`
}

type TelegramSeedingCreative struct {
	Text                  string   `json:"text"`
	ShortText             string   `json:"short_text,omitempty"`
	ImagePrompt           string   `json:"image_prompt,omitempty"`
	HasImage              bool     `json:"has_image,omitempty"`
	ButtonText            string   `json:"button_text,omitempty"`
	ButtonURL             string   `json:"button_url,omitempty"`
	PostStyle             string   `json:"post_style,omitempty"`
	SuggestedChannelTypes []string `json:"suggested_channels_type,omitempty"`
}

// Creative is one ad. Exactly one platform payload is expected to be set.
type Creative struct {
	ID              string                   `json:"id"`
	HypothesisID    string                   `json:"hypothesis_id"`
	Platform        Platform                 `json:"platform"`
	Variant         string                   `json:"variant,omitempty"`
	Yandex          *YandexCreative          `json:"yandex,omitempty"`
	VK              *VKCreative              `json:"vk,omitempty"`
	Telegram        *TelegramCreative        `json:"telegram,omitempty"`
	TelegramSeeding *TelegramSeedingCreative `json:"telegram_seeding,omitempty"`
}

// Headline returns the most prominent line of the creative for banners.
func (c Creative) Headline() string {
	switch {
	case c.Yandex != nil:
		return c.Yandex.Headline
	case c.VK != nil:
		return c.VK.Headline
	case c.Telegram != nil:
		return c.Telegram.Text
	case c.TelegramSeeding != nil:
		return c.TelegramSeeding.ShortText
	}
	return ""
}

// Body returns the main ad text.
func (c Creative) Body() string {
	switch {
	case c.Yandex != nil:
		return c.Yandex.Text
	case c.VK != nil:
		return c.VK.Text
	case c.Telegram != nil:
		return c.Telegram.Text
	case c.TelegramSeeding != nil:
		return c.TelegramSeeding.Text
	}
	return ""
}

// CreativeSet is the content of a copy artifact.
type CreativeSet struct {
	Creatives       []Creative     `json:"creatives"`
	TotalByPlatform map[string]int `json:"total_by_platform,omitempty"`
}

func (s CreativeSet) CountByPlatform() map[string]int {
	out := make(map[string]int)
	for _, c := range s.Creatives {
		out[string(c.Platform)]++
	}
	return out
}

// Normalize recomputes the per-platform totals.
func (s *CreativeSet) Normalize() {
	s.TotalByPlatform = s.CountByPlatform()
}

// Find returns the index of the creative with the given id, or -1.
func (s CreativeSet) Find(id string) int {
	for i, c := range s.Creatives {
		if c.ID == id {
			return i
		}
	}
	return -1
}

// NextVariant returns the next unused variant letter for a hypothesis.
func (s CreativeSet) NextVariant(hypothesisID string) string {
	next := 'A'
	for _, c := range s.Creatives {
		if c.HypothesisID != hypothesisID || len(c.Variant) != 1 {
			continue
		}
		r := rune(c.Variant[0])
		if r >= next && r < 'Z' {
			next = r + 1
		}
	}
	return string(next)
}

// Clone deep-copies the set so items can be replaced without aliasing.
func (s CreativeSet) Clone() CreativeSet {
	out := CreativeSet{Creatives: make([]Creative, len(s.Creatives))}
	copy(out.Creatives, s.Creatives)
	if s.TotalByPlatform != nil {
		out.TotalByPlatform = make(map[string]int, len(s.TotalByPlatform))
		for k, v := range s.TotalByPlatform {
			out.TotalByPlatform[k] = v
		}
	}
	return out
}

// Violation is one character-limit breach.
type Violation struct {
	CreativeID string `json:"creative_id"`
	Field      string `json:"field"`
	Length     int    `json:"length"`
	Max        int    `json:"max"`
}

func (v Violation) String() string {
	return fmt.Sprintf("creative %s: %s is %d chars, limit %d", v.CreativeID, v.Field, v.Length, v.Max)
}

// Violations lists every field that exceeds its platform limit.
func (s CreativeSet) Violations() []Violation {
	var out []Violation
	check := func(id, field, value string, max int) {
		if max <= 0 {
			return
		}
		if n := utf8.RuneCountInString(value); n > max {
			out = append(out, Violation{CreativeID: id, Field: field, Length: n, Max: max})
		}
	}
	for _, c := range s.Creatives {
		if y := c.Yandex; y != nil {
			spec := YandexDirect.Spec()
			check(c.ID, "yandex.headline", y.Headline, spec.HeadlineMax)
			check(c.ID, "yandex.text", y.Text, spec.TextMax)
			if len(y.QuickLinks) > spec.QuickLinksMax {
				out = append(out, Violation{CreativeID: c.ID, Field: "yandex.quick_links", Length: len(y.QuickLinks), Max: spec.QuickLinksMax})
			}
			for i, ql := range y.QuickLinks {
				check(c.ID, fmt.Sprintf("yandex.quick_links[%d]", i), ql, spec.QuickLinkLen)
			}
		}
		if v := c.VK; v != nil {
			spec := VKAds.Spec()
			check(c.ID, "vk.headline", v.Headline, spec.HeadlineMax)
			check(c.ID, "vk.text", v.Text, spec.TextMax)
			check(c.ID, "vk.text_full", v.TextFull, spec.TextFullMax)
			check(c.ID, "vk.button_text", v.ButtonText, spec.ButtonMax)
		}
		if t := c.Telegram; t != nil {
			spec := TelegramAds.Spec()
			check(c.ID, "telegram.text", t.Text, spec.TextMax)
			check(c.ID, "telegram.button_text", t.ButtonText, spec.ButtonMax)
		}
		if t := c.TelegramSeeding; t != nil {
			spec := TelegramSeeding.Spec()
			check(c.ID, "telegram_seeding.text", t.Text, spec.TextMax)
			check(c.ID, "telegram_seeding.short_text", t.ShortText, spec.ShortTextMax)
			check(c.ID, "telegram_seeding.button_text", t.ButtonText, spec.ButtonMax)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreativeID < out[j].CreativeID })
	return out
}
