package collector

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/civiclens/civiclens/pkg/store"
)

func newTestFBAds(t *testing.T, srvURL string, keywords []string) *FBAds {
	dir := t.TempDir()
	tokenFile := filepath.Join(dir, "token")
	require.NoError(t, os.WriteFile(tokenFile, []byte("old-token\n"), 0o600))

	f := NewFBAds(tokenFile, "app", "secret", "ads", keywords, dir, nil)
	f.BaseURL = srvURL
	f.Retry = RetryPolicy{Attempts: 2, Wait: time.Millisecond}
	f.client = fastClient()
	f.now = func() time.Time { return time.Date(2022, 10, 6, 3, 0, 0, 0, time.UTC) }
	return f
}

func TestFBAdsBatches(t *testing.T) {
	f := &FBAds{Keywords: []string{"ballot", "early voting", "mail in ballot", "drop box"}}
	batches := f.batches()
	require.NotEmpty(t, batches)
	for _, b := range batches {
		assert.LessOrEqual(t, len(b), maxTermsLen)
	}
	assert.Equal(t, []string{"ballot,early voting,mail in ballot,drop box"}, batches)

	long := &FBAds{Keywords: []string{
		"first keyword that is quite long indeed",
		"second keyword that is also quite long",
		"third keyword to overflow the batch",
	}}
	assert.Len(t, long.batches(), 2)
}

func TestFBAdsRefreshToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/oauth/access_token", r.URL.Path)
		q := r.URL.Query()
		assert.Equal(t, "fb_exchange_token", q.Get("grant_type"))
		assert.Equal(t, "old-token", q.Get("fb_exchange_token"))
		w.Write([]byte(`{"access_token":"new-token","token_type":"bearer"}`))
	}))
	t.Cleanup(srv.Close)
	f := newTestFBAds(t, srv.URL, []string{"ballot"})

	require.NoError(t, f.RefreshToken(context.Background()))
	tok, err := f.token()
	require.NoError(t, err)
	assert.Equal(t, "new-token", tok)
}

func TestFBAdsRunMergesBatches(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/oauth/access_token":
			w.Write([]byte(`{"access_token":"new-token"}`))
		case "/ads_archive":
			q := r.URL.Query()
			assert.Equal(t, "new-token", q.Get("access_token"))
			assert.Equal(t, "['US']", q.Get("ad_reached_countries"))
			assert.Equal(t, "2022-10-05", q.Get("ad_delivery_date_min"))
			if q.Get("after") == "page2" {
				w.Write([]byte(`{"data":[{"id":"3"}]}`))
				return
			}
			w.Write([]byte(`{"data":[{"id":"1"},{"id":"2"}],
				"paging":{"next":"` + srvURL(r) + `/ads_archive?access_token=new-token&after=page2"}}`))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	f := newTestFBAds(t, srv.URL, []string{"ballot"})

	n, err := f.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	day := time.Date(2022, 10, 5, 0, 0, 0, 0, time.UTC)
	lines, err := store.ReadAll(store.DailyPath(f.DataDir, "ads", day))
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	// Temp batch files are cleaned up after the merge.
	entries, err := os.ReadDir(f.DataDir)
	require.NoError(t, err)
	for _, e := range entries {
		assert.NotContains(t, e.Name(), "batch")
	}
}

// srvURL rebuilds the test server's base URL from the incoming request.
func srvURL(r *http.Request) string {
	return "http://" + r.Host
}
