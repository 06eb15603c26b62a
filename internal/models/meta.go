package models

import (
	"strconv"
	"strings"
	"time"
)

// metaTextFields are the payload fields that may carry post text, in the
// order they are concatenated by Text.
var metaTextFields = []string{"message", "title", "description", "imageText"}

// MetaPost wraps a Facebook or Instagram post payload as returned by the
// CrowdTangle API.
type MetaPost struct {
	raw []byte
}

// NewMetaPost binds a raw CrowdTangle post payload.
func NewMetaPost(raw []byte) (*MetaPost, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	return &MetaPost{raw: raw}, nil
}

// Platform returns the platform recorded in the payload, lowercased
// ("facebook" or "instagram").
func (p *MetaPost) Platform() string {
	return strings.ToLower(getString(p.raw, "platform"))
}

// Type returns the CrowdTangle post type (status, photo, link, video, ...).
func (p *MetaPost) Type() string { return getString(p.raw, "type") }

func (p *MetaPost) Valid() bool { return p.ID() != "" }

func (p *MetaPost) ID() string {
	if id := getString(p.raw, "id"); id != "" {
		return id
	}
	// Some payloads carry a numeric id.
	if n, ok := getInt(p.raw, "id"); ok {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

func (p *MetaPost) UserID() string {
	if id := getString(p.raw, "account", "id"); id != "" {
		return id
	}
	if n, ok := getInt(p.raw, "account", "id"); ok {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

func (p *MetaPost) Permalink() string { return getString(p.raw, "postUrl") }

// CrowdTangle dates are UTC "2006-01-02 15:04:05" strings.
func parseMetaDate(s string) time.Time {
	ts, err := time.ParseInLocation("2006-01-02 15:04:05", s, time.UTC)
	if err != nil {
		return time.Time{}
	}
	return ts
}

func (p *MetaPost) CreatedAt() time.Time { return parseMetaDate(getString(p.raw, "date")) }

// UpdatedAt returns the last time CrowdTangle refreshed the post.
func (p *MetaPost) UpdatedAt() time.Time { return parseMetaDate(getString(p.raw, "updated")) }

// Text concatenates the message, title, description and imageText fields.
func (p *MetaPost) Text() string {
	var parts []string
	for _, field := range metaTextFields {
		if v := getString(p.raw, field); v != "" {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, " ")
}

// TextFields returns the individual text-bearing fields that are present.
func (p *MetaPost) TextFields() map[string]string {
	fields := make(map[string]string)
	for _, field := range metaTextFields {
		if v := getString(p.raw, field); v != "" {
			fields[field] = v
		}
	}
	return fields
}

// Hashtags scans the post text; CrowdTangle has no entities field.
func (p *MetaPost) Hashtags() []string { return HashtagsFromText(p.Text()) }

// URLs returns the expanded form of every link in expandedLinks.
func (p *MetaPost) URLs() []string {
	var urls []string
	forEach(p.raw, func(item []byte) {
		if u := getString(item, "expanded"); u != "" {
			urls = append(urls, u)
		}
	}, "expandedLinks")
	return urls
}

func (p *MetaPost) Media() []Media {
	var media []Media
	forEach(p.raw, func(item []byte) {
		m := Media{
			URL:     getString(item, "url"),
			Type:    getString(item, "type"),
			FullURL: getString(item, "full"),
		}
		if m.URL != "" {
			media = append(media, m)
		}
	}, "media")
	return media
}
