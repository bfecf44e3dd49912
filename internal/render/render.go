package render

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"adflow/internal/artifact"
)

const negativePrompt = "blurry, low quality, distorted text, watermark, logo"

// AssetSink stores rendered bytes and returns a URL that serves them.
type AssetSink interface {
	PutAsset(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Client calls an image generation API. Without an API key it runs in mock
// mode and answers every request with a placeholder.
type Client struct {
	http    *http.Client
	baseURL string
	apiKey  string
	sink    AssetSink
	log     *zap.Logger
}

type Option func(*Client)

// WithAssetSink uploads inline image payloads instead of rejecting them.
func WithAssetSink(s AssetSink) Option { return func(c *Client) { c.sink = s } }

func WithHTTPClient(h *http.Client) Option { return func(c *Client) { c.http = h } }

func WithLogger(l *zap.Logger) Option { return func(c *Client) { c.log = l } }

func New(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		http:    &http.Client{Timeout: 120 * time.Second},
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:  strings.TrimSpace(apiKey),
		log:     zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// MockMode reports whether requests are answered with placeholders.
func (c *Client) MockMode() bool { return c.apiKey == "" || c.baseURL == "" }

type generateReq struct {
	Prompt         string `json:"prompt"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
	Style          string `json:"style"`
	NegativePrompt string `json:"negative_prompt"`
}

type generateResp struct {
	ImageURL    string `json:"image_url"`
	URL         string `json:"url"`
	ImageBase64 string `json:"image_base64"`
	MimeType    string `json:"mime_type"`
}

// Render returns a URL for the banner described by spec.
func (c *Client) Render(ctx context.Context, spec artifact.BannerSpec) (string, error) {
	w, h, err := spec.Dimensions()
	if err != nil {
		return "", err
	}
	if c.MockMode() {
		return PlaceholderURL(w, h), nil
	}
	body, _ := json.Marshal(generateReq{
		Prompt:         Prompt(spec, w, h),
		Width:          w,
		Height:         h,
		Style:          "professional advertising banner",
		NegativePrompt: negativePrompt,
	})
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return "", fmt.Errorf("render: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return "", fmt.Errorf("render: unexpected status %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}
	var out generateResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("render: decode response: %w", err)
	}
	switch {
	case out.ImageURL != "":
		return out.ImageURL, nil
	case out.URL != "":
		return out.URL, nil
	case out.ImageBase64 != "":
		return c.upload(ctx, spec, out)
	}
	return "", fmt.Errorf("render: response carries no image")
}

func (c *Client) upload(ctx context.Context, spec artifact.BannerSpec, out generateResp) (string, error) {
	if c.sink == nil {
		return "", fmt.Errorf("render: inline image returned but no asset sink configured")
	}
	data, err := base64.StdEncoding.DecodeString(out.ImageBase64)
	if err != nil {
		return "", fmt.Errorf("render: decode image: %w", err)
	}
	ct := out.MimeType
	if ct == "" {
		ct = http.DetectContentType(data)
	}
	key := fmt.Sprintf("banners/%s/%s%s", spec.CreativeID, uuid.Must(uuid.NewV7()).String(), extFor(ct))
	url, err := c.sink.PutAsset(ctx, key, data, ct)
	if err != nil {
		return "", fmt.Errorf("render: store image: %w", err)
	}
	c.log.Debug("banner stored", zap.String("key", key), zap.Int("bytes", len(data)))
	return url, nil
}

func extFor(contentType string) string {
	switch {
	case strings.Contains(contentType, "png"):
		return ".png"
	case strings.Contains(contentType, "jpeg"), strings.Contains(contentType, "jpg"):
		return ".jpg"
	case strings.Contains(contentType, "webp"):
		return ".webp"
	}
	return ""
}

// Prompt builds the image prompt for a spec of w x h pixels.
func Prompt(spec artifact.BannerSpec, w, h int) string {
	parts := []string{
		"Professional advertising banner design",
		fmt.Sprintf("Size: %dx%d pixels", w, h),
		"Content: " + strings.TrimSpace(spec.Headline+" "+spec.StyleHints),
	}
	if spec.Headline != "" {
		parts = append(parts, fmt.Sprintf("Main text overlay: '%s'", spec.Headline))
	}
	if len(spec.BrandColors) > 0 {
		parts = append(parts, "Brand colors: "+strings.Join(spec.BrandColors, ", "))
	}
	parts = append(parts,
		"Style: clean, modern, minimalist",
		"High contrast, readable text",
		"No watermarks, no stock photo marks",
	)
	return strings.Join(parts, ". ")
}

// PlaceholderURL is the deterministic stand-in image for a w x h banner.
func PlaceholderURL(w, h int) string {
	return fmt.Sprintf("https://placehold.co/%dx%d/1a1a2e/eee?text=Banner+%dx%d", w, h, w, h)
}

// Placeholder returns the stand-in for spec, falling back to the platform's
// banner size when the spec size is unusable.
func Placeholder(spec artifact.BannerSpec) string {
	w, h, err := spec.Dimensions()
	if err != nil {
		fallback := artifact.BannerSpec{Size: spec.Platform.Spec().BannerSize}
		if w, h, err = fallback.Dimensions(); err != nil {
			w, h = 1080, 607
		}
	}
	return PlaceholderURL(w, h)
}
