// Package models normalizes raw platform payloads behind a common accessor
// interface. Payloads are kept as the raw JSON bytes written during
// collection and probed lazily; accessors return zero values for fields the
// payload does not carry.
package models

import (
	"errors"
	"regexp"
	"strings"
	"time"

	"github.com/buger/jsonparser"
)

// ErrEmptyPayload is returned when a post is constructed from no data.
var ErrEmptyPayload = errors.New("models: empty post payload")

// Media is a single photo/video/gif attached to a post.
type Media struct {
	URL     string `json:"media_url"`
	Type    string `json:"media_type"`
	FullURL string `json:"media_full_url,omitempty"`
}

// Post is the common accessor interface over one social media post.
type Post interface {
	// Platform names the source platform ("twitter", "facebook", ...).
	Platform() string

	// ID returns the post ID as a string, or "" if absent.
	ID() string

	// UserID returns the authoring account ID as a string, or "" if absent.
	UserID() string

	// Permalink returns a browser-openable link to the post.
	Permalink() string

	// CreatedAt returns the post creation time, or the zero time if the
	// payload carries none.
	CreatedAt() time.Time

	// Text returns the full text of the post, concatenating the payload's
	// text-bearing fields where there are several.
	Text() string

	// Hashtags returns the post's hashtags without the '#' symbol.
	Hashtags() []string

	// URLs returns the URLs embedded in the post.
	URLs() []string

	// Media returns photos/videos attached to the post.
	Media() []Media

	// Valid reports whether the payload carries the fields the platform
	// guarantees for a well-formed post.
	Valid() bool
}

// getString probes a nested string field, returning "" when the path is
// absent or not a string.
func getString(raw []byte, keys ...string) string {
	s, err := jsonparser.GetString(raw, keys...)
	if err != nil {
		return ""
	}
	return s
}

func getInt(raw []byte, keys ...string) (int64, bool) {
	n, err := jsonparser.GetInt(raw, keys...)
	if err != nil {
		return 0, false
	}
	return n, true
}

// getObject probes a nested JSON object, returning its raw bytes.
func getObject(raw []byte, keys ...string) ([]byte, bool) {
	sub, dt, _, err := jsonparser.Get(raw, keys...)
	if err != nil || dt != jsonparser.Object {
		return nil, false
	}
	return sub, true
}

func hasKey(raw []byte, keys ...string) bool {
	_, dt, _, err := jsonparser.Get(raw, keys...)
	return err == nil && dt != jsonparser.NotExist && dt != jsonparser.Null
}

// forEach iterates the array at the key path. Missing paths are a no-op.
func forEach(raw []byte, fn func(item []byte), keys ...string) {
	jsonparser.ArrayEach(raw, func(value []byte, dt jsonparser.ValueType, _ int, _ error) {
		if dt == jsonparser.Null {
			return
		}
		fn(value)
	}, keys...)
}

var urlPattern = regexp.MustCompile(`https?://[^\s<>"')\]]+`)

// ExtractURLs pulls URL strings out of free text. Platforms without a
// structured entities field (Reddit, 4chan) fall back to this.
func ExtractURLs(text string) []string {
	return urlPattern.FindAllString(text, -1)
}

// HashtagsFromText scans free text for #tags. Chains like "#one#two" with no
// separating whitespace yield every tag in the chain.
func HashtagsFromText(text string) []string {
	var tags []string
	for _, part := range strings.Fields(text) {
		if !strings.HasPrefix(part, "#") {
			continue
		}
		for _, tag := range strings.Split(part[1:], "#") {
			if tag != "" {
				tags = append(tags, tag)
			}
		}
	}
	return tags
}
