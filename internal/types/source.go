package types

// SourceKind distinguishes the two ingestion shapes.
type SourceKind string

const (
	SourceWebsite SourceKind = "website"
	SourceChannel SourceKind = "telegram_channel"
)

// SiteSummary holds the fields extracted from a regular website.
type SiteSummary struct {
	Title            string            `json:"title,omitempty"`
	MetaDescription  string            `json:"meta_description,omitempty"`
	H1               string            `json:"h1,omitempty"`
	MainText         string            `json:"main_text,omitempty"`
	Images           []string          `json:"images,omitempty"`
	SocialLinks      []string          `json:"social_links,omitempty"`
	ContactInfo      map[string]string `json:"contact_info,omitempty"`
	DetectedLanguage string            `json:"detected_language,omitempty"`
}

// ChannelSummary holds the fields extracted from a Telegram channel preview.
type ChannelSummary struct {
	ChannelName     string   `json:"channel_name,omitempty"`
	ChannelUsername string   `json:"channel_username,omitempty"`
	Description     string   `json:"description,omitempty"`
	Subscribers     *int     `json:"subscribers,omitempty"`
	AvatarURL       string   `json:"avatar_url,omitempty"`
	RecentPosts     []string `json:"recent_posts,omitempty"`
}

// SourceSummary is the ingestion result fed into the analysis stage.
// Exactly one of Site and Channel is set, matching Kind.
type SourceSummary struct {
	URL     string          `json:"url"`
	Kind    SourceKind      `json:"kind"`
	Site    *SiteSummary    `json:"site,omitempty"`
	Channel *ChannelSummary `json:"channel,omitempty"`
}
