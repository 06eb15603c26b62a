package models

import (
	"strings"
	"time"
)

// Tweet wraps a Twitter v1.1 tweet payload. Embedded retweeted_status,
// quoted_status and extended_tweet objects are wrapped recursively at
// construction so accessors can unwrap them.
type Tweet struct {
	raw []byte

	// Retweeted, Quoted and Extended hold the embedded tweet objects when
	// present, nil otherwise.
	Retweeted *Tweet
	Quoted    *Tweet
	Extended  *Tweet
}

// NewTweet binds a raw v1.1 tweet payload.
func NewTweet(raw []byte) (*Tweet, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	t := &Tweet{raw: raw}
	for _, e := range []struct {
		key string
		dst **Tweet
	}{
		{"retweeted_status", &t.Retweeted},
		{"quoted_status", &t.Quoted},
		{"extended_tweet", &t.Extended},
	} {
		if sub, ok := getObject(t.raw, e.key); ok {
			if inner, err := NewTweet(sub); err == nil {
				*e.dst = inner
			}
		}
	}
	return t, nil
}

func (t *Tweet) Platform() string { return "twitter" }

func (t *Tweet) IsRetweet() bool { return t.Retweeted != nil }
func (t *Tweet) IsQuote() bool   { return t.Quoted != nil }

// Valid requires id_str, user, text and created_at, the fields every tweet
// delivered by the streaming and REST APIs carries.
func (t *Tweet) Valid() bool {
	for _, key := range []string{"id_str", "user", "text", "created_at"} {
		if !hasKey(t.raw, key) {
			return false
		}
	}
	return true
}

func (t *Tweet) ID() string     { return getString(t.raw, "id_str") }
func (t *Tweet) UserID() string { return getString(t.raw, "user", "id_str") }

// ScreenName returns the author's screen_name.
func (t *Tweet) ScreenName() string { return getString(t.raw, "user", "screen_name") }

func (t *Tweet) Permalink() string {
	return "https://twitter.com/" + t.ScreenName() + "/status/" + t.ID()
}

// CreatedAt parses the v1.1 created_at format ("Mon Jan 02 15:04:05 +0000 2006").
func (t *Tweet) CreatedAt() time.Time {
	ts, err := time.Parse(time.RubyDate, getString(t.raw, "created_at"))
	if err != nil {
		return time.Time{}
	}
	return ts
}

// RetweetedPostID returns the ID of the retweeted tweet for retweets, of the
// quoted tweet for quotes, and "" otherwise.
func (t *Tweet) RetweetedPostID() string {
	if t.Retweeted != nil {
		return t.Retweeted.ID()
	}
	if t.Quoted != nil {
		return t.Quoted.ID()
	}
	return ""
}

// RetweetedUserID returns the original author's ID for retweets and quotes.
func (t *Tweet) RetweetedUserID() string {
	if t.Retweeted != nil {
		return t.Retweeted.UserID()
	}
	if t.Quoted != nil {
		return t.Quoted.UserID()
	}
	return ""
}

// Text returns full_text from the extended_tweet when present, the truncated
// text field otherwise.
func (t *Tweet) Text() string {
	if t.Extended != nil {
		return getString(t.Extended.raw, "full_text")
	}
	return getString(t.raw, "text")
}

// URLs returns expanded URLs from the tweet entities, excluding links back to
// twitter.com (self links). The extended_tweet entities are preferred: they
// are a superset of the truncated payload's.
func (t *Tweet) URLs() []string {
	return t.urls(false)
}

// URLsRecursive also collects URLs from the embedded retweet and quote.
func (t *Tweet) URLsRecursive() []string {
	return t.urls(true)
}

func (t *Tweet) urls(recursive bool) []string {
	src := t.raw
	if t.Extended != nil {
		src = t.Extended.raw
	}
	var urls []string
	forEach(src, func(item []byte) {
		expanded := getString(item, "expanded_url")
		if expanded != "" && !strings.Contains(expanded, "twitter.com") {
			urls = append(urls, expanded)
			return
		}
		if u := getString(item, "url"); u != "" {
			urls = append(urls, u)
		}
	}, "entities", "urls")

	if recursive {
		if t.Retweeted != nil {
			urls = append(urls, t.Retweeted.URLs()...)
		}
		if t.Quoted != nil {
			urls = append(urls, t.Quoted.URLs()...)
		}
	}
	return urls
}

// Hashtags returns the hashtag texts from the tweet entities, '#' excluded.
func (t *Tweet) Hashtags() []string {
	return t.hashtags(false)
}

// HashtagsRecursive also collects hashtags from the embedded retweet and quote.
func (t *Tweet) HashtagsRecursive() []string {
	return t.hashtags(true)
}

func (t *Tweet) hashtags(recursive bool) []string {
	src := t.raw
	if t.Extended != nil {
		src = t.Extended.raw
	}
	var tags []string
	forEach(src, func(item []byte) {
		if tag := getString(item, "text"); tag != "" {
			tags = append(tags, tag)
		}
	}, "entities", "hashtags")

	if recursive {
		if t.Retweeted != nil {
			tags = append(tags, t.Retweeted.Hashtags()...)
		}
		if t.Quoted != nil {
			tags = append(tags, t.Quoted.Hashtags()...)
		}
	}
	return tags
}

// Media returns the media objects from extended_entities.
func (t *Tweet) Media() []Media {
	return t.media(false)
}

// MediaRecursive also collects media from the embedded retweet and quote.
// Media from the original tweet is often duplicated into the retweet payload,
// so entries are deduplicated by URL.
func (t *Tweet) MediaRecursive() []Media {
	return t.media(true)
}

func (t *Tweet) media(recursive bool) []Media {
	src := t.raw
	if t.Extended != nil {
		src = t.Extended.raw
	}
	seen := make(map[string]bool)
	var media []Media
	add := func(m Media) {
		if m.URL == "" || seen[m.URL] {
			return
		}
		seen[m.URL] = true
		media = append(media, m)
	}
	forEach(src, func(item []byte) {
		add(Media{URL: getString(item, "media_url"), Type: getString(item, "type")})
	}, "extended_entities", "media")

	if recursive {
		if t.Retweeted != nil {
			for _, m := range t.Retweeted.Media() {
				add(m)
			}
		}
		if t.Quoted != nil {
			for _, m := range t.Quoted.Media() {
				add(m)
			}
		}
	}
	return media
}
