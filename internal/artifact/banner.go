package artifact

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// BannerSpec is the designer's brief for one rendered image.
type BannerSpec struct {
	CreativeID  string   `json:"creative_id"`
	Platform    Platform `json:"platform"`
	Size        string   `json:"size"`
	Headline    string   `json:"headline"`
	Text        string   `json:"text,omitempty"`
	StyleHints  string   `json:"style_hints,omitempty"`
	BrandColors []string `json:"brand_colors,omitempty"`
}

// Dimensions parses Size ("1080x607").
func (s BannerSpec) Dimensions() (int, int, error) {
	w, h, ok := strings.Cut(strings.ToLower(strings.TrimSpace(s.Size)), "x")
	if !ok {
		return 0, 0, fmt.Errorf("banner size %q: want WxH", s.Size)
	}
	width, err := strconv.Atoi(strings.TrimSpace(w))
	if err != nil || width <= 0 {
		return 0, 0, fmt.Errorf("banner size %q: bad width", s.Size)
	}
	height, err := strconv.Atoi(strings.TrimSpace(h))
	if err != nil || height <= 0 {
		return 0, 0, fmt.Errorf("banner size %q: bad height", s.Size)
	}
	return width, height, nil
}

// BannerSpecList is what the designer asks the model for.
type BannerSpecList struct {
	Specs []BannerSpec `json:"specs"`
}

type Banner struct {
	ID          string     `json:"id"`
	CreativeID  string     `json:"creative_id"`
	Spec        BannerSpec `json:"spec"`
	ImageURL    string     `json:"image_url"`
	Placeholder bool       `json:"placeholder,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

// BannerSet is the content of a banners artifact.
type BannerSet struct {
	Banners    []Banner `json:"banners"`
	TotalCount int      `json:"total_count"`
}

func NewBannerSet(banners []Banner) BannerSet {
	if banners == nil {
		banners = []Banner{}
	}
	return BannerSet{Banners: banners, TotalCount: len(banners)}
}
