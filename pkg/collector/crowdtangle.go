package collector

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civiclens/civiclens/pkg/store"
)

// ctTimeLayout is the timestamp format the CrowdTangle API takes and emits.
const ctTimeLayout = "2006-01-02T15:04:05"

// CrowdTangle queries the CrowdTangle API for keyword matches and list
// member posts across Facebook and Instagram.
type CrowdTangle struct {
	// BaseURL is the API root, "https://api.crowdtangle.com" in production.
	BaseURL string
	Token   string

	// Label names the output files and identifies the keyword set.
	Label string

	// Keywords are OR-ed in search queries.
	Keywords []string

	// ListIDs are the tracked dashboard lists ListPosts reads.
	ListIDs []string

	// DataDir receives the daily archives.
	DataDir string

	// Day selects the UTC day to collect. Zero means yesterday.
	Day time.Time

	// MaxQueries bounds one collection pass.
	MaxQueries int

	Retry RetryPolicy

	client client
	now    func() time.Time
}

// NewCrowdTangle prepares a keyword-search collector. The API allows 6
// calls a minute per token.
func NewCrowdTangle(token, label string, keywords []string, dataDir string, log *zap.Logger) *CrowdTangle {
	return &CrowdTangle{
		BaseURL:    "https://api.crowdtangle.com",
		Token:      token,
		Label:      label,
		Keywords:   keywords,
		DataDir:    dataDir,
		MaxQueries: 500,
		Retry:      RetryPolicy{Attempts: 10, Wait: 10 * time.Second},
		client:     newClient(60*time.Second, rate.Every(10*time.Second), log),
		now:        time.Now,
	}
}

func (c *CrowdTangle) Name() string { return "crowdtangle/" + c.Label }

// day is the UTC day one pass collects.
func (c *CrowdTangle) day() time.Time {
	if !c.Day.IsZero() {
		return c.Day
	}
	return c.now().Truncate(24*time.Hour).AddDate(0, 0, -1)
}

func (c *CrowdTangle) Describe() RunInfo {
	day := c.day()
	return RunInfo{
		Label:      c.Label,
		Day:        day,
		OutputFile: store.DailyPath(c.DataDir, c.Label, day),
	}
}

// Run collects one day's keyword matches.
func (c *CrowdTangle) Run(ctx context.Context) (int, error) {
	start := c.day()
	end := start.AddDate(0, 0, 1)

	w, err := store.NewWriter(store.DailyPath(c.DataDir, c.Label, start))
	if err != nil {
		return 0, err
	}
	defer w.Close()

	if err := c.Search(ctx, start, end, w); err != nil {
		return w.Count(), err
	}
	return w.Count(), w.Close()
}

// CrowdTangleLists collects the posts of tracked dashboard lists. It runs as
// its own job so list collection and keyword search keep separate schedules
// and output files.
type CrowdTangleLists struct {
	*CrowdTangle
}

// NewCrowdTangleLists prepares a list collector writing under its own label.
func NewCrowdTangleLists(token, label string, listIDs []string, dataDir string, log *zap.Logger) *CrowdTangleLists {
	c := NewCrowdTangle(token, label, nil, dataDir, log)
	c.ListIDs = listIDs
	return &CrowdTangleLists{c}
}

func (c *CrowdTangleLists) Name() string { return "crowdtangle_lists/" + c.Label }

// Run collects one day's posts from the configured lists.
func (c *CrowdTangleLists) Run(ctx context.Context) (int, error) {
	start := c.day()
	end := start.AddDate(0, 0, 1)

	w, err := store.NewWriter(store.DailyPath(c.DataDir, c.Label, start))
	if err != nil {
		return 0, err
	}
	defer w.Close()

	if err := c.ListPosts(ctx, start, end, w); err != nil {
		return w.Count(), err
	}
	return w.Count(), w.Close()
}

// List is one dashboard list, saved search or saved post list.
type List struct {
	ID    int64
	Title string
	Type  string
}

// Lists returns the dashboard lists the token can read. Their IDs configure
// the list collector.
func (c *CrowdTangle) Lists(ctx context.Context) ([]List, error) {
	q := url.Values{"token": {c.Token}}
	body, err := c.fetch(ctx, c.BaseURL+"/lists?"+q.Encode())
	if err != nil {
		return nil, err
	}
	var lists []List
	jsonparser.ArrayEach(body, func(item []byte, dt jsonparser.ValueType, _ int, _ error) {
		if dt != jsonparser.Object {
			return
		}
		var l List
		l.ID, _ = jsonparser.GetInt(item, "id")
		l.Title, _ = jsonparser.GetString(item, "title")
		l.Type, _ = jsonparser.GetString(item, "type")
		lists = append(lists, l)
	}, "result", "lists")
	return lists, nil
}

// Search pages backwards through /posts/search from end towards start,
// moving the end of the window to just before the oldest post of each page.
// Paging by date survives result sets deeper than the API's offset limit.
// The API intermittently returns an empty page mid-traversal, so empty pages
// are retried against the retry budget before the day counts as done.
func (c *CrowdTangle) Search(ctx context.Context, start, end time.Time, w *store.Writer) error {
	emptyPages := 0
	for queries := 0; queries < c.MaxQueries; queries++ {
		q := url.Values{
			"token":      {c.Token},
			"searchTerm": {strings.Join(c.Keywords, ",")},
			"startDate":  {start.Format(ctTimeLayout)},
			"endDate":    {end.Format(ctTimeLayout)},
			"sortBy":     {"date"},
			"language":   {"en"},
			"count":      {"10000"},
		}
		body, err := c.fetch(ctx, c.BaseURL+"/posts/search?"+q.Encode())
		if err != nil {
			return err
		}
		n, oldest, err := writePosts(body, w)
		if err != nil {
			return err
		}
		c.client.log.Info("search page collected", zap.String("label", c.Label),
			zap.Int("posts", n), zap.Time("end", end))
		if n == 0 {
			emptyPages++
			if emptyPages >= c.Retry.Attempts {
				return nil
			}
			if err := sleep(ctx, c.Retry.Wait); err != nil {
				return err
			}
			continue
		}
		emptyPages = 0
		if oldest.IsZero() || !oldest.After(start) {
			return nil
		}
		end = oldest.Add(-time.Second)
	}
	return fmt.Errorf("query cap %d reached before %s", c.MaxQueries, start.Format(ctTimeLayout))
}

// ListPosts pages through /posts for the configured lists by offset.
func (c *CrowdTangle) ListPosts(ctx context.Context, start, end time.Time, w *store.Writer) error {
	const pageSize = 100
	for page := 0; page < c.MaxQueries; page++ {
		if page > 0 {
			if err := sleep(ctx, 5*time.Second); err != nil {
				return err
			}
		}
		q := url.Values{
			"token":     {c.Token},
			"listIds":   {strings.Join(c.ListIDs, ",")},
			"startDate": {start.Format(ctTimeLayout)},
			"endDate":   {end.Format(ctTimeLayout)},
			"sortBy":    {"date"},
			"count":     {strconv.Itoa(pageSize)},
			"offset":    {strconv.Itoa(page * pageSize)},
		}
		body, err := c.fetch(ctx, c.BaseURL+"/posts?"+q.Encode())
		if err != nil {
			return err
		}
		n, _, err := writePosts(body, w)
		if err != nil {
			return err
		}
		if n < pageSize {
			return nil
		}
	}
	return fmt.Errorf("query cap %d reached", c.MaxQueries)
}

// fetch wraps one API call in the retry policy. Rate-limit responses back
// off exponentially so a shared token recovers.
func (c *CrowdTangle) fetch(ctx context.Context, u string) ([]byte, error) {
	var body []byte
	policy := c.Retry
	policy.Exponential = true
	err := policy.Do(ctx, func() error {
		var err error
		body, err = c.client.getJSON(ctx, u, nil)
		return err
	})
	return body, err
}

// writePosts appends every post of one API page and returns the page size
// and the oldest post date on the page.
func writePosts(body []byte, w *store.Writer) (int, time.Time, error) {
	var n int
	var oldest time.Time
	var werr error
	jsonparser.ArrayEach(body, func(post []byte, dt jsonparser.ValueType, _ int, _ error) {
		if werr != nil || dt != jsonparser.Object {
			return
		}
		if err := w.WriteRaw(post); err != nil {
			werr = err
			return
		}
		n++
		if s, err := jsonparser.GetString(post, "date"); err == nil {
			if ts, err := time.Parse("2006-01-02 15:04:05", s); err == nil {
				if oldest.IsZero() || ts.Before(oldest) {
					oldest = ts
				}
			}
		}
	}, "result", "posts")
	return n, oldest, werr
}
