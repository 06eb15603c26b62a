package models

import (
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// ChanPost wraps one 4chan post payload, either a thread opener or a reply.
// Replies carry the opener's ID in the resto field.
type ChanPost struct {
	raw   []byte
	board string
}

// NewChanPost binds a raw 4chan post payload from the /pol board.
func NewChanPost(raw []byte) (*ChanPost, error) {
	return NewChanPostOnBoard(raw, "pol")
}

// NewChanPostOnBoard binds a raw 4chan post payload from the named board.
func NewChanPostOnBoard(raw []byte, board string) (*ChanPost, error) {
	if len(raw) == 0 {
		return nil, ErrEmptyPayload
	}
	return &ChanPost{raw: raw, board: board}, nil
}

func (p *ChanPost) Platform() string { return "4chan" }

// IsReply reports whether the post replies to a thread opener.
func (p *ChanPost) IsReply() bool {
	n, ok := getInt(p.raw, "resto")
	return ok && n != 0
}

func (p *ChanPost) Valid() bool { return p.ID() != "" }

func (p *ChanPost) ID() string {
	if n, ok := getInt(p.raw, "no"); ok {
		return strconv.FormatInt(n, 10)
	}
	return ""
}

// UserID returns the poster name, "Anonymous" for nearly all posts.
func (p *ChanPost) UserID() string { return getString(p.raw, "name") }

func (p *ChanPost) Permalink() string {
	thread := p.ID()
	if n, ok := getInt(p.raw, "resto"); ok && n != 0 {
		thread = strconv.FormatInt(n, 10) + "#" + p.ID()
	}
	return "https://boards.4chan.org/" + p.board + "/thread/" + thread
}

func (p *ChanPost) CreatedAt() time.Time {
	if n, ok := getInt(p.raw, "time"); ok {
		return time.Unix(n, 0).UTC()
	}
	return time.Time{}
}

// Text returns the subject and comment for openers, the comment alone for
// replies. Comment bodies are HTML; markup is stripped.
func (p *ChanPost) Text() string {
	com := StripHTML(getString(p.raw, "com"))
	if p.IsReply() {
		return com
	}
	sub := StripHTML(getString(p.raw, "sub"))
	if sub == "" {
		return com
	}
	if com == "" {
		return sub
	}
	return sub + " " + com
}

func (p *ChanPost) Hashtags() []string { return HashtagsFromText(p.Text()) }
func (p *ChanPost) URLs() []string     { return ExtractURLs(p.Text()) }

// Media reconstructs the attached image URL from the tim and ext fields.
// Openers always carry an image; replies may not.
func (p *ChanPost) Media() []Media {
	tim, ok := getInt(p.raw, "tim")
	ext := getString(p.raw, "ext")
	if !ok || ext == "" {
		return nil
	}
	return []Media{{
		URL:  "https://i.4cdn.org/" + p.board + "/" + strconv.FormatInt(tim, 10) + ext,
		Type: "photo",
	}}
}

// StripHTML flattens an HTML fragment to its text content. Line-break tags
// become spaces so words on adjacent lines do not run together.
func StripHTML(fragment string) string {
	if fragment == "" {
		return ""
	}
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		if n.Type == html.ElementNode && (n.Data == "br" || n.Data == "p") {
			b.WriteString(" ")
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return strings.Join(strings.Fields(b.String()), " ")
}
