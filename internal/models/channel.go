package models

import "time"

// ChannelCandidate is a channel entry read from a playlist, before any business
// validation. Optional metadata stays nil when the playlist does not carry it.
type ChannelCandidate struct {
	Name       string  `json:"name" validate:"required"`
	StreamURL  string  `json:"stream_url" validate:"required,url"`
	LogoURL    *string `json:"logo_url,omitempty"`
	TvgID      *string `json:"tvg_id,omitempty"`
	TvgName    *string `json:"tvg_name,omitempty"`
	TvgLogo    *string `json:"tvg_logo,omitempty"`
	GroupTitle *string `json:"group_title,omitempty"`
	Category   *string `json:"category,omitempty"`
	Country    *string `json:"country,omitempty"`
	Language   *string `json:"language,omitempty"`

	// Line is the 1-based line number of the stream URL in the source playlist.
	Line int `json:"-"`
}

// ChannelRecord is a channel row as held by the channel store.
// (Name, StreamURL) is unique across non-deleted records.
type ChannelRecord struct {
	ID         int64     `json:"id,omitempty"`
	Name       string    `json:"name"`
	StreamURL  string    `json:"stream_url"`
	LogoURL    *string   `json:"logo_url,omitempty"`
	TvgID      *string   `json:"tvg_id,omitempty"`
	TvgName    *string   `json:"tvg_name,omitempty"`
	TvgLogo    *string   `json:"tvg_logo,omitempty"`
	GroupTitle string    `json:"group_title"`
	Category   *string   `json:"category,omitempty"`
	Country    *string   `json:"country,omitempty"`
	Language   *string   `json:"language,omitempty"`
	IsActive   bool      `json:"is_active"`
	SortOrder  int       `json:"sort_order"`
	CreatedAt  time.Time `json:"created_at"`
}

// NewChannelRecord applies the import defaults to a validated candidate.
func NewChannelRecord(c ChannelCandidate, now time.Time) ChannelRecord {
	group := DefaultGroupTitle
	if c.GroupTitle != nil && *c.GroupTitle != "" {
		group = *c.GroupTitle
	}
	return ChannelRecord{
		Name:       c.Name,
		StreamURL:  c.StreamURL,
		LogoURL:    c.LogoURL,
		TvgID:      c.TvgID,
		TvgName:    c.TvgName,
		TvgLogo:    c.TvgLogo,
		GroupTitle: group,
		Category:   c.Category,
		Country:    c.Country,
		Language:   c.Language,
		IsActive:   true,
		SortOrder:  DefaultSortOrder,
		CreatedAt:  now,
	}
}
