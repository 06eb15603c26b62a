package models

import (
	"strings"
	"time"
)

// fbAdTextFields are the Ad Library creative fields that carry text, all
// arrays of strings, in concatenation order.
var fbAdTextFields = []string{
	"ad_creative_bodies",
	"ad_creative_link_titles",
	"ad_creative_link_descriptions",
	"ad_creative_link_captions",
}

// FBAd wraps one Facebook Ad Library archive record.
type FBAd struct {
	raw []byte
}

// NewFBAd binds a raw ads_archive record.
func NewFBAd(raw []byte) (*FBAd, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	return &FBAd{raw: raw}, nil
}

func (a *FBAd) Platform() string { return "fb_ads" }

func (a *FBAd) Valid() bool { return a.ID() != "" }

func (a *FBAd) ID() string { return getString(a.raw, "id") }

// UserID returns the advertising page's ID.
func (a *FBAd) UserID() string { return getString(a.raw, "page_id") }

// PageName returns the advertising page's display name.
func (a *FBAd) PageName() string { return getString(a.raw, "page_name") }

// Permalink returns the ad snapshot URL.
func (a *FBAd) Permalink() string { return getString(a.raw, "ad_snapshot_url") }

// CreatedAt returns the ad delivery start time. The archive emits either a
// bare date or an RFC3339-style timestamp.
func (a *FBAd) CreatedAt() time.Time {
	s := getString(a.raw, "ad_delivery_start_time")
	if s == "" {
		return time.Time{}
	}
	for _, layout := range []string{"2006-01-02", time.RFC3339, "2006-01-02T15:04:05-0700"} {
		if ts, err := time.Parse(layout, s); err == nil {
			return ts.UTC()
		}
	}
	return time.Time{}
}

// Text concatenates every creative body, link title, description and caption.
func (a *FBAd) Text() string {
	var parts []string
	for _, field := range fbAdTextFields {
		forEach(a.raw, func(item []byte) {
			if s := strings.TrimSpace(string(item)); s != "" {
				parts = append(parts, s)
			}
		}, field)
	}
	return strings.Join(parts, " ")
}

func (a *FBAd) Hashtags() []string { return HashtagsFromText(a.Text()) }
func (a *FBAd) URLs() []string     { return ExtractURLs(a.Text()) }

// Ads carry no downloadable media objects; creatives are behind the snapshot
// URL.
func (a *FBAd) Media() []Media { return nil }
