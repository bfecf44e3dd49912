package ingest

import (
	"context"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"adflow/internal/types"
)

const (
	maxPosts    = 5
	maxPostText = 500
)

// previewURL maps t.me/<name> to the public preview page t.me/s/<name>.
func (f *Fetcher) previewURL(u *url.URL) string {
	path := strings.Trim(u.Path, "/")
	if !strings.HasPrefix(path, "s/") {
		path = "s/" + path
	}
	return f.telegramBase + "/" + path
}

func (f *Fetcher) fetchChannel(ctx context.Context, u *url.URL) (*types.ChannelSummary, error) {
	doc, err := f.get(ctx, f.previewURL(u))
	if err != nil {
		return nil, err
	}
	return extractChannel(doc), nil
}

func extractChannel(doc *html.Node) *types.ChannelSummary {
	ch := &types.ChannelSummary{}
	if n := find(doc, withClass("tgme_channel_info_header_title")); n != nil {
		ch.ChannelName = text(n)
	}
	if n := find(doc, withClass("tgme_channel_info_header_username")); n != nil {
		ch.ChannelUsername = strings.TrimPrefix(text(n), "@")
	}
	if n := find(doc, withClass("tgme_channel_info_description")); n != nil {
		ch.Description = text(n)
	}
	if counter := find(doc, withClass("tgme_channel_info_counter")); counter != nil {
		if v := find(counter, withClass("counter_value")); v != nil {
			ch.Subscribers = parseSubscribers(text(v))
		}
	}
	if header := find(doc, withClass("tgme_channel_info_header")); header != nil {
		if img := find(header, isElement(atom.Img)); img != nil {
			ch.AvatarURL = attr(img, "src")
		}
	}
	for _, msg := range findAll(doc, withClass("tgme_widget_message_text"), 0) {
		if len(ch.RecentPosts) >= maxPosts {
			break
		}
		if t := text(msg); t != "" {
			ch.RecentPosts = append(ch.RecentPosts, truncateRunes(t, maxPostText))
		}
	}
	return ch
}

// parseSubscribers reads counters like "1 234", "12.5K" or "1.2M".
func parseSubscribers(s string) *int {
	s = strings.NewReplacer(" ", "", ",", "", " ", "").Replace(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	mult := 1.0
	switch {
	case strings.HasSuffix(s, "K"), strings.HasSuffix(s, "k"):
		mult, s = 1e3, s[:len(s)-1]
	case strings.HasSuffix(s, "M"), strings.HasSuffix(s, "m"):
		mult, s = 1e6, s[:len(s)-1]
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil
	}
	n := int(f*mult + 0.5)
	return &n
}
