package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens/pkg/store"
)

func newTestPushshift(t *testing.T, srvURL string) *Pushshift {
	p := NewPushshift("submission", "kw", []string{"ballot", "mail in"}, t.TempDir(), nil)
	p.BaseURL = srvURL
	p.Retry = RetryPolicy{Attempts: 2, Wait: time.Millisecond}
	p.client = fastClient()
	return p
}

func TestPushshiftQueryQuotesKeywords(t *testing.T) {
	p := newTestPushshift(t, "")
	assert.Equal(t, `"ballot"|"mail in"`, p.query())
}

func TestPushshiftCollectPagesForward(t *testing.T) {
	var afters []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/reddit/search/submission/", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, `"ballot"|"mail in"`, q.Get("q"))
		assert.Equal(t, "250", q.Get("size"))
		afters = append(afters, q.Get("after"))

		switch len(afters) {
		case 1:
			w.Write([]byte(`{"data":[
				{"id":"a","created_utc":1664960400},
				{"id":"b","created_utc":1664964000}
			]}`))
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	}))
	t.Cleanup(srv.Close)
	p := newTestPushshift(t, srv.URL)

	w, err := store.NewWriter(filepath.Join(t.TempDir(), "out.json.gz"))
	require.NoError(t, err)

	start := time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 10, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Collect(context.Background(), start, end, w))
	require.NoError(t, w.Close())

	require.Len(t, afters, 2)
	assert.Equal(t, "1664928000", afters[0])
	// The window start moves one second past the newest record seen.
	assert.Equal(t, "1664964001", afters[1])
	assert.Equal(t, 2, w.Count())
}

func TestPushshiftCollectStopsAtWindowEnd(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// Every record sits at the window edge.
		w.Write([]byte(`{"data":[{"id":"a","created_utc":1665014399}]}`))
	}))
	t.Cleanup(srv.Close)
	p := newTestPushshift(t, srv.URL)

	w, err := store.NewWriter(filepath.Join(t.TempDir(), "out.json.gz"))
	require.NoError(t, err)
	defer w.Close()

	start := time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 10, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Collect(context.Background(), start, end, w))
	assert.Equal(t, 1, calls)
}

func TestPushshiftCollectAdvancesOnFloatTimestamps(t *testing.T) {
	var afters []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		afters = append(afters, r.URL.Query().Get("after"))
		if len(afters) == 1 {
			// Older archive shards emit created_utc as a float.
			w.Write([]byte(`{"data":[{"id":"a","created_utc":1664928000.0}]}`))
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	p := newTestPushshift(t, srv.URL)

	w, err := store.NewWriter(filepath.Join(t.TempDir(), "out.json.gz"))
	require.NoError(t, err)
	defer w.Close()

	start := time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 10, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Collect(context.Background(), start, end, w))

	require.Len(t, afters, 2)
	assert.Equal(t, "1664928000", afters[0])
	assert.Equal(t, "1664928001", afters[1])
}

func TestPushshiftCollectNeverRewindsWindow(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		// A page whose records carry no usable timestamp must stop the
		// traversal instead of rewinding it to the epoch.
		w.Write([]byte(`{"data":[{"id":"a","created_utc":"oops"}]}`))
	}))
	t.Cleanup(srv.Close)
	p := newTestPushshift(t, srv.URL)

	w, err := store.NewWriter(filepath.Join(t.TempDir(), "out.json.gz"))
	require.NoError(t, err)
	defer w.Close()

	start := time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 10, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Collect(context.Background(), start, end, w))
	assert.Equal(t, 1, calls)
}

func TestPushshiftRunUsesConfiguredDay(t *testing.T) {
	var afters, befores []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		afters = append(afters, q.Get("after"))
		befores = append(befores, q.Get("before"))
		w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	p := newTestPushshift(t, srv.URL)
	p.Day = time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)

	_, err := p.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, afters, 1)
	assert.Equal(t, "1664928000", afters[0])
	assert.Equal(t, "1665014400", befores[0])

	info := p.Describe()
	assert.Equal(t, store.DailyPath(p.DataDir, "kw", p.Day), info.OutputFile)
	_, err = store.ReadAll(info.OutputFile)
	require.NoError(t, err)
}

func TestPushshiftRetriesServerErrors(t *testing.T) {
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			http.Error(w, "shard down", http.StatusBadGateway)
			return
		}
		w.Write([]byte(`{"data":[]}`))
	}))
	t.Cleanup(srv.Close)
	p := newTestPushshift(t, srv.URL)

	w, err := store.NewWriter(filepath.Join(t.TempDir(), "out.json.gz"))
	require.NoError(t, err)
	defer w.Close()

	start := time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)
	end := time.Date(2022, 10, 6, 0, 0, 0, 0, time.UTC)
	require.NoError(t, p.Collect(context.Background(), start, end, w))
	assert.Equal(t, 2, calls)
}
