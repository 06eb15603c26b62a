package models

import (
	"strconv"
	"time"

	"github.com/buger/jsonparser"
)

// redditBase carries the accessors shared by submissions and comments.
type redditBase struct {
	raw []byte
}

func (p redditBase) Platform() string { return "reddit" }

func (p redditBase) ID() string { return getString(p.raw, "id") }

// UserID returns the author_fullname ("t2_..." style account ID).
func (p redditBase) UserID() string { return getString(p.raw, "author_fullname") }

// Author returns the human-readable username.
func (p redditBase) Author() string { return getString(p.raw, "author") }

func (p redditBase) Subreddit() string { return getString(p.raw, "subreddit") }

func (p redditBase) Valid() bool { return getString(p.raw, "id") != "" }

func (p redditBase) CreatedAt() time.Time {
	if n, ok := getInt(p.raw, "created_utc"); ok {
		return time.Unix(n, 0).UTC()
	}
	// Pushshift sometimes emits the timestamp as a float.
	if v, dt, _, err := jsonparser.Get(p.raw, "created_utc"); err == nil && dt == jsonparser.Number {
		if f, perr := strconv.ParseFloat(string(v), 64); perr == nil {
			return time.Unix(int64(f), 0).UTC()
		}
	}
	return time.Time{}
}

// Reddit posts have no media entities worth extracting; media URLs show up in
// the text and are handled by URLs.
func (p redditBase) Media() []Media { return nil }

// RedditSubmission wraps a Pushshift submission payload.
type RedditSubmission struct {
	redditBase
}

// NewRedditSubmission binds a raw Pushshift submission payload.
func NewRedditSubmission(raw []byte) (*RedditSubmission, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	return &RedditSubmission{redditBase{raw: raw}}, nil
}

func (p *RedditSubmission) Permalink() string { return getString(p.raw, "full_link") }

// Text concatenates the submission title and selftext.
func (p *RedditSubmission) Text() string {
	title := getString(p.raw, "title")
	body := getString(p.raw, "selftext")
	if title == "" {
		return body
	}
	if body == "" {
		return title
	}
	return title + " " + body
}

func (p *RedditSubmission) Hashtags() []string { return HashtagsFromText(p.Text()) }
func (p *RedditSubmission) URLs() []string     { return ExtractURLs(p.Text()) }

// RedditComment wraps a Pushshift comment payload.
type RedditComment struct {
	redditBase
}

// NewRedditComment binds a raw Pushshift comment payload.
func NewRedditComment(raw []byte) (*RedditComment, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	return &RedditComment{redditBase{raw: raw}}, nil
}

func (p *RedditComment) Permalink() string {
	return "https://www.reddit.com" + getString(p.raw, "permalink")
}

func (p *RedditComment) Text() string { return getString(p.raw, "body") }

func (p *RedditComment) Hashtags() []string { return HashtagsFromText(p.Text()) }
func (p *RedditComment) URLs() []string     { return ExtractURLs(p.Text()) }
