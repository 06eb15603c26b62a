package collector

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civiclens/civiclens/pkg/store"
)

// adFields is the field list requested for every archived ad.
var adFields = strings.Join([]string{
	"id",
	"ad_creation_time",
	"ad_creative_bodies",
	"ad_creative_link_captions",
	"ad_creative_link_descriptions",
	"ad_creative_link_titles",
	"ad_delivery_start_time",
	"ad_delivery_stop_time",
	"ad_snapshot_url",
	"bylines",
	"currency",
	"delivery_by_region",
	"demographic_distribution",
	"estimated_audience_size",
	"impressions",
	"languages",
	"page_id",
	"page_name",
	"publisher_platforms",
	"spend",
}, ",")

// maxTermsLen caps the length of one search_terms batch. The Ad Library
// search rejects long term lists, so keyword sets are split into batches
// under this length.
const maxTermsLen = 90

// FBAds collects political ads matching a keyword set from the Facebook Ad
// Library archive.
type FBAds struct {
	// BaseURL is the Graph API root including version,
	// "https://graph.facebook.com/v14.0" in production.
	BaseURL string

	// TokenFile holds the current long-lived access token. The file is
	// rewritten on every refresh; Ad Library tokens expire in about 60
	// days, so a standing collection must roll them forward.
	TokenFile string

	// AppID and AppSecret authenticate the token exchange.
	AppID     string
	AppSecret string

	// Label names the output files.
	Label string

	// Keywords are batched into comma-joined search_terms queries.
	Keywords []string

	// Country filters ad delivery, "US" by default.
	Country string

	// DataDir receives the daily archives.
	DataDir string

	// Day selects the UTC day to collect. Zero means yesterday.
	Day time.Time

	Retry RetryPolicy

	client client
	now    func() time.Time
}

// NewFBAds prepares an Ad Library collector.
func NewFBAds(tokenFile, appID, appSecret, label string, keywords []string, dataDir string, log *zap.Logger) *FBAds {
	return &FBAds{
		BaseURL:   "https://graph.facebook.com/v14.0",
		TokenFile: tokenFile,
		AppID:     appID,
		AppSecret: appSecret,
		Label:     label,
		Keywords:  keywords,
		Country:   "US",
		DataDir:   dataDir,
		Retry:     RetryPolicy{Attempts: 5, Wait: 30 * time.Second},
		client:    newClient(60*time.Second, rate.Every(2*time.Second), log),
		now:       time.Now,
	}
}

func (f *FBAds) Name() string { return "fb_ads/" + f.Label }

// day is the UTC day one pass collects.
func (f *FBAds) day() time.Time {
	if !f.Day.IsZero() {
		return f.Day
	}
	return f.now().AddDate(0, 0, -1).Truncate(24 * time.Hour)
}

func (f *FBAds) Describe() RunInfo {
	day := f.day()
	return RunInfo{
		Label:      f.Label,
		Day:        day,
		OutputFile: store.DailyPath(f.DataDir, f.Label, day),
	}
}

// RefreshToken exchanges the stored token for a fresh long-lived one and
// persists it.
func (f *FBAds) RefreshToken(ctx context.Context) error {
	current, err := f.token()
	if err != nil {
		return err
	}
	q := url.Values{
		"grant_type":        {"fb_exchange_token"},
		"client_id":         {f.AppID},
		"client_secret":     {f.AppSecret},
		"fb_exchange_token": {current},
	}
	body, err := f.client.getJSON(ctx, f.BaseURL+"/oauth/access_token?"+q.Encode(), nil)
	if err != nil {
		return fmt.Errorf("token exchange failed: %w", err)
	}
	fresh, err := jsonparser.GetString(body, "access_token")
	if err != nil || fresh == "" {
		return fmt.Errorf("token exchange returned no token")
	}
	if err := os.WriteFile(f.TokenFile, []byte(fresh), 0o600); err != nil {
		return fmt.Errorf("failed to persist token: %w", err)
	}
	f.client.log.Info("access token refreshed", zap.String("label", f.Label))
	return nil
}

func (f *FBAds) token() (string, error) {
	data, err := os.ReadFile(f.TokenFile)
	if err != nil {
		return "", fmt.Errorf("failed to read token file: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// batches splits the keywords into comma-joined search_terms strings no
// longer than maxTermsLen.
func (f *FBAds) batches() []string {
	var batches []string
	var current string
	for _, kw := range f.Keywords {
		switch {
		case current == "":
			current = kw
		case len(current)+1+len(kw) <= maxTermsLen:
			current += "," + kw
		default:
			batches = append(batches, current)
			current = kw
		}
	}
	if current != "" {
		batches = append(batches, current)
	}
	return batches
}

// Run refreshes the token, collects every keyword batch into a temp file
// each, and merges the temp files into the previous day's archive. The
// merge-then-remove keeps a crashed batch from leaving a truncated daily
// file behind.
func (f *FBAds) Run(ctx context.Context) (int, error) {
	if err := f.RefreshToken(ctx); err != nil {
		return 0, err
	}
	token, err := f.token()
	if err != nil {
		return 0, err
	}
	day := f.day()

	var tmpFiles []string
	defer func() {
		for _, p := range tmpFiles {
			os.Remove(p)
		}
	}()
	for i, terms := range f.batches() {
		tmp := filepath.Join(f.DataDir, fmt.Sprintf(".%s-batch-%d.json.gz", f.Label, i))
		tmpFiles = append(tmpFiles, tmp)
		if err := f.collectBatch(ctx, token, terms, day, tmp); err != nil {
			return 0, fmt.Errorf("batch %q failed: %w", terms, err)
		}
	}

	w, err := store.NewWriter(store.DailyPath(f.DataDir, f.Label, day))
	if err != nil {
		return 0, err
	}
	defer w.Close()
	for _, tmp := range tmpFiles {
		if err := store.ForEach(tmp, w.WriteRaw); err != nil {
			return w.Count(), err
		}
	}
	return w.Count(), w.Close()
}

// collectBatch walks the ads_archive pagination for one search_terms batch.
func (f *FBAds) collectBatch(ctx context.Context, token, terms string, day time.Time, path string) error {
	w, err := store.NewWriter(path)
	if err != nil {
		return err
	}
	defer w.Close()

	q := url.Values{
		"access_token":         {token},
		"search_terms":         {terms},
		"ad_reached_countries": {"['" + f.Country + "']"},
		"ad_delivery_date_min": {day.Format("2006-01-02")},
		"ad_delivery_date_max": {day.Format("2006-01-02")},
		"fields":               {adFields},
		"limit":                {"300"},
	}
	next := f.BaseURL + "/ads_archive?" + q.Encode()

	for next != "" {
		var body []byte
		err := f.Retry.Do(ctx, func() error {
			var err error
			body, err = f.client.getJSON(ctx, next, nil)
			return err
		})
		if err != nil {
			return err
		}

		var werr error
		var n int
		jsonparser.ArrayEach(body, func(ad []byte, dt jsonparser.ValueType, _ int, _ error) {
			if werr != nil || dt != jsonparser.Object {
				return
			}
			if err := w.WriteRaw(ad); err != nil {
				werr = err
				return
			}
			n++
		}, "data")
		if werr != nil {
			return werr
		}
		f.client.log.Info("ads page collected", zap.String("terms", terms), zap.Int("ads", n))

		next, _ = jsonparser.GetString(body, "paging", "next")
	}
	return w.Close()
}
