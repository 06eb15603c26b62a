package collector

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/buger/jsonparser"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/civiclens/civiclens/pkg/store"
)

// timelineCap is the deepest the v1.1 user timeline endpoint reaches.
const timelineCap = 3200

// TwitterBacksearch pulls the recent timeline of every followed account
// through the v1.1 REST API.
type TwitterBacksearch struct {
	// BaseURL is the API root, "https://api.twitter.com/1.1" in production.
	BaseURL string

	// BearerToken authenticates requests.
	BearerToken string

	// Label names the output files.
	Label string

	// UserIDs are the accounts whose timelines are collected.
	UserIDs []string

	// DataDir receives the daily archives.
	DataDir string

	client client
	now    func() time.Time
}

// NewTwitterBacksearch prepares a timeline collector. The timeline endpoint
// allows 1500 app-auth requests per 15 minutes; one request every 700ms
// stays inside that.
func NewTwitterBacksearch(token, label string, userIDs []string, dataDir string, log *zap.Logger) *TwitterBacksearch {
	return &TwitterBacksearch{
		BaseURL:     "https://api.twitter.com/1.1",
		BearerToken: token,
		Label:       label,
		UserIDs:     userIDs,
		DataDir:     dataDir,
		client:      newClient(30*time.Second, rate.Every(700*time.Millisecond), log),
		now:         time.Now,
	}
}

func (t *TwitterBacksearch) Name() string { return "twitter_backsearch/" + t.Label }

func (t *TwitterBacksearch) Describe() RunInfo {
	day := t.now().Truncate(24 * time.Hour)
	return RunInfo{
		Label:      t.Label,
		Day:        day,
		OutputFile: store.DailyPath(t.DataDir, t.Label, day),
	}
}

func (t *TwitterBacksearch) header() http.Header {
	return http.Header{"Authorization": {"Bearer " + t.BearerToken}}
}

// Run collects every followed account's timeline into today's archive. A
// failed credential aborts the whole run; any other per-user failure skips
// that user so one protected or deleted account cannot stall collection.
func (t *TwitterBacksearch) Run(ctx context.Context) (int, error) {
	w, err := store.NewWriter(store.DailyPath(t.DataDir, t.Label, t.now()))
	if err != nil {
		return 0, err
	}
	defer w.Close()

	for _, userID := range t.UserIDs {
		n, err := t.Timeline(ctx, userID, w)
		if err != nil {
			var se *StatusError
			if errors.As(err, &se) && (se.Code == http.StatusUnauthorized || se.Code == http.StatusForbidden) {
				return w.Count(), fmt.Errorf("credentials rejected: %w", err)
			}
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return w.Count(), err
			}
			t.client.log.Warn("timeline failed, skipping user",
				zap.String("user", userID), zap.Error(err))
			continue
		}
		t.client.log.Info("timeline collected",
			zap.String("user", userID), zap.Int("tweets", n))
	}
	return w.Count(), w.Close()
}

// Timeline pages backwards through one user's timeline, 200 tweets a page,
// until the endpoint's depth cap.
func (t *TwitterBacksearch) Timeline(ctx context.Context, userID string, w *store.Writer) (int, error) {
	var total int
	var maxID int64
	for total < timelineCap {
		q := url.Values{
			"user_id":     {userID},
			"count":       {"200"},
			"tweet_mode":  {"extended"},
			"include_rts": {"true"},
		}
		if maxID > 0 {
			q.Set("max_id", strconv.FormatInt(maxID, 10))
		}
		body, err := t.client.getJSON(ctx, t.BaseURL+"/statuses/user_timeline.json?"+q.Encode(), t.header())
		if err != nil {
			return total, err
		}

		var n int
		var minID int64
		var werr error
		jsonparser.ArrayEach(body, func(tweet []byte, dt jsonparser.ValueType, _ int, _ error) {
			if werr != nil || dt != jsonparser.Object {
				return
			}
			if err := w.WriteRaw(tweet); err != nil {
				werr = err
				return
			}
			n++
			if id, err := jsonparser.GetInt(tweet, "id"); err == nil && (minID == 0 || id < minID) {
				minID = id
			}
		})
		if werr != nil {
			return total, werr
		}
		total += n
		if n == 0 || minID == 0 {
			return total, nil
		}
		maxID = minID - 1
	}
	return total, nil
}

// TwitterStream holds the filtered statuses stream open and writes every
// line it delivers, reconnecting whenever the connection drops.
type TwitterStream struct {
	// StreamURL is the filter endpoint,
	// "https://stream.twitter.com/1.1/statuses/filter.json" in production.
	StreamURL string

	// Authorization is sent verbatim as the Authorization header. The
	// filter endpoint wants user-context OAuth, which an upstream signer
	// provides.
	Authorization string

	// Follow are the account IDs whose tweets the stream delivers.
	Follow []string

	// Label names the output files.
	Label string

	// DataDir receives the versioned stream files.
	DataDir string

	log     *zap.Logger
	httpc   *http.Client
	limiter *rate.Limiter
}

// NewTwitterStream prepares a filtered-stream collector.
func NewTwitterStream(authorization, label string, follow []string, dataDir string, log *zap.Logger) *TwitterStream {
	if log == nil {
		log = zap.NewNop()
	}
	return &TwitterStream{
		StreamURL:     "https://stream.twitter.com/1.1/statuses/filter.json",
		Authorization: authorization,
		Follow:        follow,
		Label:         label,
		DataDir:       dataDir,
		log:           log,
		// No client timeout: the stream connection stays open for days.
		httpc:   &http.Client{},
		limiter: rate.NewLimiter(rate.Every(10*time.Second), 1),
	}
}

func (s *TwitterStream) Name() string { return "twitter_stream/" + s.Label }

// Run streams until ctx is done. Rate-limit disconnects (420) back off five
// minutes, service unavailability (503) one minute, anything else ten
// seconds through the reconnect limiter.
func (s *TwitterStream) Run(ctx context.Context) error {
	sw := store.NewStreamWriter(s.DataDir, s.Label)
	defer sw.Close()

	for {
		if err := s.limiter.Wait(ctx); err != nil {
			return err
		}
		err := s.consume(ctx, sw)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		wait := time.Duration(0)
		var se *StatusError
		switch {
		case errors.As(err, &se) && se.Code == 420:
			wait = 5 * time.Minute
		case errors.As(err, &se) && se.Code == http.StatusServiceUnavailable:
			wait = time.Minute
		}
		s.log.Warn("stream disconnected", zap.Error(err), zap.Duration("backoff", wait))
		if wait > 0 {
			if err := sleep(ctx, wait); err != nil {
				return err
			}
		}
	}
}

// consume opens one stream connection and writes lines until it breaks.
func (s *TwitterStream) consume(ctx context.Context, sw *store.StreamWriter) error {
	form := url.Values{"follow": {strings.Join(s.Follow, ",")}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.StreamURL,
		strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", s.Authorization)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode}
	}
	s.log.Info("stream connected", zap.Int("follow", len(s.Follow)))

	r := bufio.NewReader(resp.Body)
	for {
		line, err := r.ReadBytes('\n')
		line = bytes.TrimSpace(line)
		// Blank lines are keep-alives.
		if len(line) > 0 {
			if werr := sw.WriteRaw(line); werr != nil {
				return werr
			}
			if werr := sw.Flush(); werr != nil {
				return werr
			}
		}
		if err != nil {
			return err
		}
	}
}
