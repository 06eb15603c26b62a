package urltools

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/markusmobius/go-trafilatura"
	"github.com/temoto/robotstxt"
	"golang.org/x/time/rate"
)

const fetcherAgent = "civiclens"

// Article is the readable content behind an expanded link.
type Article struct {
	URL   string `json:"url"`
	Title string `json:"title"`
	Text  string `json:"text"`
}

// ArticleFetcher downloads linked pages and extracts their readable text.
// robots.txt is honored and cached per host.
type ArticleFetcher struct {
	client  *http.Client
	limiter *rate.Limiter

	mu     sync.Mutex
	robots map[string]*robotstxt.RobotsData
}

// ErrDisallowed marks a fetch the page's robots.txt forbids.
var ErrDisallowed = fmt.Errorf("fetch disallowed by robots.txt")

// NewArticleFetcher prepares a fetcher with a one-request-per-second limit.
func NewArticleFetcher() *ArticleFetcher {
	return &ArticleFetcher{
		client:  &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
		robots:  make(map[string]*robotstxt.RobotsData),
	}
}

// allowed consults the host's robots.txt. Unreachable or unparseable robots
// files allow everything.
func (f *ArticleFetcher) allowed(ctx context.Context, u *url.URL) bool {
	f.mu.Lock()
	data, ok := f.robots[u.Host]
	f.mu.Unlock()
	if !ok {
		data = f.fetchRobots(ctx, u)
		f.mu.Lock()
		f.robots[u.Host] = data
		f.mu.Unlock()
	}
	if data == nil {
		return true
	}
	return data.TestAgent(u.Path, fetcherAgent)
}

func (f *ArticleFetcher) fetchRobots(ctx context.Context, u *url.URL) *robotstxt.RobotsData {
	robotsURL := u.Scheme + "://" + u.Host + "/robots.txt"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, robotsURL, nil)
	if err != nil {
		return nil
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil
	}
	data, err := robotstxt.FromResponse(resp)
	if err != nil {
		return nil
	}
	return data
}

// Fetch downloads one page and extracts its readable text and title.
func (f *ArticleFetcher) Fetch(ctx context.Context, raw string) (*Article, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid URL: %w", err)
	}
	if !f.allowed(ctx, u) {
		return nil, ErrDisallowed
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, raw, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", fetcherAgent)
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	result, err := trafilatura.Extract(resp.Body, trafilatura.Options{OriginalURL: u})
	if err != nil {
		return nil, fmt.Errorf("failed to extract article: %w", err)
	}
	return &Article{
		URL:   resp.Request.URL.String(),
		Title: result.Metadata.Title,
		Text:  result.ContentText,
	}, nil
}
