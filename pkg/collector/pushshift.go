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

// Pushshift collects Reddit submissions or comments matching a keyword set
// from the Pushshift archive.
type Pushshift struct {
	// BaseURL is the API root, "https://api.pushshift.io" in production.
	BaseURL string

	// Kind is "submission" or "comment".
	Kind string

	// Label names the output files.
	Label string

	// Keywords are OR-ed in the query.
	Keywords []string

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

// NewPushshift prepares a collector for one record kind and keyword set.
func NewPushshift(kind, label string, keywords []string, dataDir string, log *zap.Logger) *Pushshift {
	return &Pushshift{
		BaseURL:    "https://api.pushshift.io",
		Kind:       kind,
		Label:      label,
		Keywords:   keywords,
		DataDir:    dataDir,
		MaxQueries: 20000,
		Retry:      RetryPolicy{Attempts: 10, Wait: 10 * time.Second},
		client:     newClient(60*time.Second, rate.Every(10*time.Second), log),
		now:        time.Now,
	}
}

func (p *Pushshift) Name() string { return "pushshift/" + p.Kind + "/" + p.Label }

// query is the OR of all keywords, each quoted so multi-word keywords match
// as phrases.
func (p *Pushshift) query() string {
	quoted := make([]string, len(p.Keywords))
	for i, kw := range p.Keywords {
		quoted[i] = `"` + kw + `"`
	}
	return strings.Join(quoted, "|")
}

// day is the UTC day one pass collects.
func (p *Pushshift) day() time.Time {
	if !p.Day.IsZero() {
		return p.Day
	}
	return p.now().Truncate(24*time.Hour).AddDate(0, 0, -1)
}

func (p *Pushshift) Describe() RunInfo {
	day := p.day()
	return RunInfo{
		Label:      p.Label,
		Day:        day,
		OutputFile: store.DailyPath(p.DataDir, p.Label, day),
	}
}

// Run collects one day's records.
func (p *Pushshift) Run(ctx context.Context) (int, error) {
	start := p.day()
	end := start.AddDate(0, 0, 1)

	w, err := store.NewWriter(store.DailyPath(p.DataDir, p.Label, start))
	if err != nil {
		return 0, err
	}
	defer w.Close()
	if err := p.Collect(ctx, start, end, w); err != nil {
		return w.Count(), err
	}
	return w.Count(), w.Close()
}

// Collect pages forwards from start to end, moving the start of the window
// past the newest record of each page. Pushshift returns records oldest
// first, so the last record of a page carries the page's newest timestamp.
func (p *Pushshift) Collect(ctx context.Context, start, end time.Time, w *store.Writer) error {
	after := start.Unix()
	before := end.Unix()
	for queries := 0; queries < p.MaxQueries; queries++ {
		if after >= before {
			return nil
		}
		q := url.Values{
			"q":      {p.query()},
			"size":   {"250"},
			"sort":   {"asc"},
			"after":  {strconv.FormatInt(after, 10)},
			"before": {strconv.FormatInt(before, 10)},
		}
		u := p.BaseURL + "/reddit/search/" + p.Kind + "/?" + q.Encode()

		var body []byte
		err := p.Retry.Do(ctx, func() error {
			var err error
			body, err = p.client.getJSON(ctx, u, nil)
			return err
		})
		if err != nil {
			return err
		}

		n, last, err := p.writePage(body, w)
		if err != nil {
			return err
		}
		p.client.log.Info("page collected", zap.String("label", p.Label),
			zap.String("kind", p.Kind), zap.Int("records", n), zap.Int64("after", after))
		if n == 0 {
			return nil
		}
		// The window only ever moves forwards. A page without usable
		// timestamps would otherwise rewind it and refetch forever.
		if last+1 <= after {
			return nil
		}
		after = last + 1
	}
	return fmt.Errorf("query cap %d reached", p.MaxQueries)
}

// createdUTC reads a record's created_utc, which Pushshift emits as an
// integer or a float depending on the archive era.
func createdUTC(rec []byte) int64 {
	v, dt, _, err := jsonparser.Get(rec, "created_utc")
	if err != nil || dt != jsonparser.Number {
		return 0
	}
	f, err := strconv.ParseFloat(string(v), 64)
	if err != nil {
		return 0
	}
	return int64(f)
}

// writePage appends every record of one page and returns the page size and
// the newest created_utc seen.
func (p *Pushshift) writePage(body []byte, w *store.Writer) (int, int64, error) {
	var n int
	var last int64
	var werr error
	jsonparser.ArrayEach(body, func(rec []byte, dt jsonparser.ValueType, _ int, _ error) {
		if werr != nil || dt != jsonparser.Object {
			return
		}
		if err := w.WriteRaw(rec); err != nil {
			werr = err
			return
		}
		n++
		if ts := createdUTC(rec); ts > last {
			last = ts
		}
	}, "data")
	return n, last, werr
}
